package engine

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Game is the application the engine runs. Every callback runs on the main
// goroutine, between frames.
type Game struct {
	Config       *core.Config
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize receives the renderer once it is ready to accept geometry.
type Initialize func(renderer *vulkan.VulkanRenderer) error
type Update func(deltaTime float64) error
type Render func(packet *metadata.RenderPacket) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
