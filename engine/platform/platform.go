package platform

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/prism/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the glfw window the renderer presents to.
type Platform struct {
	Window *glfw.Window
	events *core.EventSystem
}

func New(events *core.EventSystem) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(config core.ApplicationConfig) error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(config.Width), int(config.Height), config.Name, nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "failed to create window")
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(config.PosX), int(config.PosY))
	p.Window.Show()

	core.LogInfo("window %q created at %dx%d", config.Name, config.Width, config.Height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events. It returns false once the
// window has been asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until a window event arrives or timeout seconds pass,
// used while minimized.
func (p *Platform) WaitMessages(timeout float64) {
	glfw.WaitEventsTimeout(timeout)
}

// FramebufferSize is the drawable size of the window in pixels, 0 x 0 while
// minimized.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(max(w, 0)), uint32(max(h, 0))
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create window surface")
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	var context core.EventContext
	context.U16[0] = uint16(key)
	switch action {
	case glfw.Press:
		if key == glfw.KeyEscape {
			p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
			return
		}
		p.events.Fire(core.EVENT_CODE_KEY_PRESSED, p, context)
	case glfw.Release:
		p.events.Fire(core.EVENT_CODE_KEY_RELEASED, p, context)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	var context core.EventContext
	context.U32[0] = uint32(max(width, 0))
	context.U32[1] = uint32(max(height, 0))
	p.events.Fire(core.EVENT_CODE_RESIZED, p, context)
}
