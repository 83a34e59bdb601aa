package engine

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Window events are polled at this interval while minimized.
const suspendedPollSeconds = 0.1

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config

	isRunning   atomic.Bool
	isSuspended bool

	events   *core.EventSystem
	platform *platform.Platform
	backend  *vulkan.VulkanRenderer
	renderer *renderer.Renderer

	width  uint32
	height uint32

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	if g.Config == nil {
		g.Config = core.DefaultConfig()
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(core.ParseLogLevel(g.Config.Application.LogLevel))

	events := core.NewEventSystem()
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.Config,
		events:       events,
		platform:     platform.New(events),
		width:        g.Config.Application.Width,
		height:       g.Config.Application.Height,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

func (e *Engine) Initialize(ctx context.Context) error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if err := e.platform.Startup(e.config.Application); err != nil {
		return err
	}

	e.backend = vulkan.New(e.platform, e.config)
	e.renderer = renderer.New(e.backend)
	if err := e.renderer.Initialize(ctx); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.backend); err != nil {
			return errors.Wrap(err, "game failed to initialize")
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives the frame loop until the window closes, the context is
// cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if ctx.Err() != nil {
			break
		}
		if !e.platform.PumpMessages() {
			break
		}
		if e.isSuspended {
			e.platform.WaitMessages(suspendedPollSeconds)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := core.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		fps, frameTime := e.metrics.Frame()
		packet := &metadata.RenderPacket{
			DeltaTime:   delta,
			FPS:         fps,
			FrameTimeMS: frameTime,
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(packet); err != nil {
				core.LogError("Game render failed, shutting down: %s", err)
				return err
			}
		}
		if err := e.renderer.DrawFrame(packet); err != nil {
			return err
		}

		e.metrics.Update(core.Now() - frameStartTime)
		e.lastTime = currentTime
	}
	return nil
}

// Stop asks the run loop to return after the current frame. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	var errs error
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	}
	e.events.Shutdown()
	errs = errors.CombineErrors(errs, e.platform.Shutdown())

	presented, skipped := uint64(0), uint64(0)
	if e.renderer != nil {
		presented, skipped = e.renderer.Frames()
	}
	core.LogInfo("engine shut down after %d frames (%d skipped)", presented, skipped)
	return errs
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("key %d pressed", data.U16[0])
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.U32[0], data.U32[1]
	if width == e.width && height == e.height {
		return true
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	e.renderer.OnResize(width, height)
	return true
}
