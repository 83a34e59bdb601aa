package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	// Context usage: U16[0] is the key code.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released.
	// Context usage: U16[0] is the key code.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS.
	// Context usage: U32[0] is the width, U32[1] the height.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	U32 [4]uint32
	U16 [8]uint16
}

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventSystem dispatches events synchronously on the goroutine that fires them.
type EventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

// Register listens for events sent with the provided code. A listener already registered
// for the code is not registered again and false is returned.
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

// Unregister stops listener from receiving code. Returns false when no registration matched.
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends an event to listeners of the given code. If a handler returns true the event is
// considered handled and is not passed on to any more listeners.
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	es.mu.RLock()
	events := append([]registeredEvent(nil), es.registered[code]...)
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

func (es *EventSystem) Shutdown() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.registered = make(map[SystemEventCode][]registeredEvent)
}
