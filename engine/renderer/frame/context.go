package frame

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Device is the native side of the present loop. Every per slot call refers
// to one of the metadata.FrameOverlap frame slots.
type Device interface {
	WaitIdle() error
	// WaitForFence returns core.ErrFenceTimeout when the slot did not signal in time.
	WaitForFence(slot int, timeout time.Duration) error
	ResetFence(slot int) error
	// ResetFrameResources rewinds the per slot staging and descriptor memory.
	ResetFrameResources(slot int) error
	// AcquireNextImage returns core.ErrSurfaceOutOfDate when the swapchain must be recreated.
	AcquireNextImage(slot int, timeout time.Duration) (uint32, error)
	BeginCommands(slot int) error
	FinishCommands(slot int) error
	Submit(slot int) error
	// Present returns core.ErrSurfaceOutOfDate when the swapchain must be recreated.
	Present(slot int, image uint32) error
	RecreateSwapchain(width, height uint32) error
}

type Window interface {
	FramebufferSize() (width, height uint32)
}

type State uint8

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateSubmitted
	StatePresenting
)

// Frame describes the frame being recorded.
type Frame struct {
	Number uint64
	Slot   int
	Image  uint32
}

// Recorder records commands into the command buffer of f.Slot.
type Recorder func(f *Frame) error

type Stats struct {
	Presented     uint64
	Skipped       uint64
	Resizes         uint64
	FenceTimeouts   uint64
	AcquireTimeouts uint64
}

type Option func(*FrameContext)

func WithFenceTimeout(d time.Duration) Option {
	return func(fc *FrameContext) {
		fc.fenceTimeout = d
	}
}

// WithMaxFenceTimeouts sets how many consecutive fence timeouts are skipped
// before the device is considered hung.
func WithMaxFenceTimeouts(n int) Option {
	return func(fc *FrameContext) {
		fc.maxFenceTimeouts = n
	}
}

// FrameContext drives acquire, record, submit and present over
// metadata.FrameOverlap frame slots. Frame k only ever waits on the fence of
// slot k % metadata.FrameOverlap.
type FrameContext struct {
	device Device
	window Window

	fenceTimeout     time.Duration
	maxFenceTimeouts int

	frameNumber      uint64
	resizePending    bool
	fenceTimeoutsRun int
	state            State
	stats            Stats

	recorders []Recorder
	composer  Recorder
	overlays  []Recorder
}

func NewFrameContext(device Device, window Window, options ...Option) *FrameContext {
	fc := &FrameContext{
		device:           device,
		window:           window,
		fenceTimeout:     time.Second,
		maxFenceTimeouts: 3,
	}
	for _, o := range options {
		o(fc)
	}
	return fc
}

// AddRecorder appends a pass that draws into the internal draw target.
func (fc *FrameContext) AddRecorder(r Recorder) {
	fc.recorders = append(fc.recorders, r)
}

// SetComposer sets the pass that copies the draw target into the swapchain image.
func (fc *FrameContext) SetComposer(r Recorder) {
	fc.composer = r
}

// AddOverlay appends a pass drawn straight onto the swapchain image.
func (fc *FrameContext) AddOverlay(r Recorder) {
	fc.overlays = append(fc.overlays, r)
}

// Resized defers a swapchain rebuild to the start of the next frame.
func (fc *FrameContext) Resized(width, height uint32) {
	core.LogDebug("window resized to %dx%d", width, height)
	fc.resizePending = true
}

func (fc *FrameContext) ResizePending() bool {
	return fc.resizePending
}

func (fc *FrameContext) FrameNumber() uint64 {
	return fc.frameNumber
}

// Slot is the frame slot the next frame will use.
func (fc *FrameContext) Slot() int {
	return int(fc.frameNumber % metadata.FrameOverlap)
}

func (fc *FrameContext) State() State {
	return fc.state
}

func (fc *FrameContext) Stats() Stats {
	return fc.stats
}

// Draw runs one frame. It reports false without an error when the frame was
// skipped: the window is minimized, the surface went stale, no image was
// acquired in time or the slot fence timed out. Any returned error is fatal.
func (fc *FrameContext) Draw() (bool, error) {
	defer func() { fc.state = StateIdle }()

	if fc.resizePending {
		resized, err := fc.resize()
		if err != nil {
			return false, err
		}
		if !resized {
			fc.stats.Skipped++
			return false, nil
		}
	}

	slot := fc.Slot()
	fc.state = StateAcquiring

	if err := fc.device.WaitForFence(slot, fc.fenceTimeout); err != nil {
		if !errors.Is(err, core.ErrFenceTimeout) {
			return false, errors.Wrapf(err, "failed waiting on frame slot %d", slot)
		}
		fc.stats.FenceTimeouts++
		fc.fenceTimeoutsRun++
		if fc.fenceTimeoutsRun >= fc.maxFenceTimeouts {
			return false, errors.Wrapf(core.ErrDeviceHung, "frame slot %d timed out %d times in a row", slot, fc.fenceTimeoutsRun)
		}
		core.LogWarn("frame %d: fence of slot %d timed out after %s, skipping frame", fc.frameNumber, slot, fc.fenceTimeout)
		fc.stats.Skipped++
		return false, nil
	}
	fc.fenceTimeoutsRun = 0

	if err := fc.device.ResetFrameResources(slot); err != nil {
		return false, err
	}

	image, err := fc.device.AcquireNextImage(slot, fc.fenceTimeout)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrSurfaceOutOfDate):
		case errors.Is(err, core.ErrFenceTimeout):
			// No image within the timeout: the surface is rebuilt before the next try.
			fc.stats.AcquireTimeouts++
			core.LogWarn("frame %d: no swapchain image within %s, recreating swapchain", fc.frameNumber, fc.fenceTimeout)
		default:
			return false, errors.Wrap(err, "failed to acquire swapchain image")
		}
		fc.resizePending = true
		fc.stats.Skipped++
		return false, nil
	}

	// The fence is reset only once work that signals it is certain to be submitted.
	if err := fc.device.ResetFence(slot); err != nil {
		return false, err
	}

	fc.state = StateRecording
	if err := fc.device.BeginCommands(slot); err != nil {
		return false, err
	}
	frame := &Frame{Number: fc.frameNumber, Slot: slot, Image: image}
	if err := fc.record(frame); err != nil {
		return false, err
	}
	if err := fc.device.FinishCommands(slot); err != nil {
		return false, err
	}

	if err := fc.device.Submit(slot); err != nil {
		return false, errors.Wrap(err, "failed to submit frame")
	}
	fc.state = StateSubmitted

	fc.state = StatePresenting
	if err := fc.device.Present(slot, image); err != nil {
		if !errors.Is(err, core.ErrSurfaceOutOfDate) {
			return false, errors.Wrap(err, "failed to present frame")
		}
		fc.resizePending = true
	}

	fc.frameNumber++
	fc.stats.Presented++
	return true, nil
}

func (fc *FrameContext) record(f *Frame) error {
	for _, r := range fc.recorders {
		if err := r(f); err != nil {
			return err
		}
	}
	if fc.composer != nil {
		if err := fc.composer(f); err != nil {
			return err
		}
	}
	for _, r := range fc.overlays {
		if err := r(f); err != nil {
			return err
		}
	}
	return nil
}

// resize rebuilds the swapchain at the current window size. It reports false
// while the window has no area, the resize then stays pending.
func (fc *FrameContext) resize() (bool, error) {
	width, height := fc.window.FramebufferSize()
	if width == 0 || height == 0 {
		return false, nil
	}
	if err := fc.device.WaitIdle(); err != nil {
		return false, errors.Wrap(err, "failed to wait for device idle before resize")
	}
	if err := fc.device.RecreateSwapchain(width, height); err != nil {
		return false, errors.Wrapf(err, "failed to recreate swapchain at %dx%d", width, height)
	}
	core.LogInfo("swapchain recreated at %dx%d", width, height)
	fc.resizePending = false
	fc.stats.Resizes++
	return true, nil
}
