package testbed

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// Radians per second.
const cameraRollSpeed = 0.1

type TestGame struct {
	*engine.Game
}

type quad struct {
	geometry *vulkan.Geometry
	offset   mgl32.Vec3
	scale    float32
	// Radians per second around the z axis.
	spin float32
}

type gameState struct {
	renderer *vulkan.VulkanRenderer
	camera   *Camera
	quads    []*quad
	angle    float32
	aspect   float32
}

func NewTestGame(config *core.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: config,
			State:  &gameState{aspect: 1, camera: NewCamera()},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(renderer *vulkan.VulkanRenderer) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)
	state.renderer = renderer

	tints := [][4]float32{
		{1, 1, 1, 1},
		{1, 0.6, 0.2, 1},
		{0.3, 0.7, 1, 1},
	}
	layout := []struct {
		offset mgl32.Vec3
		scale  float32
		spin   float32
	}{
		{mgl32.Vec3{0, 0, 0.5}, 0.9, 0.5},
		{mgl32.Vec3{-0.6, 0.4, 0.4}, 0.4, -1.5},
		{mgl32.Vec3{0.6, -0.4, 0.3}, 0.3, 2.5},
	}

	for i, l := range layout {
		material, err := renderer.AcquireMaterial(tints[i])
		if err != nil {
			return err
		}
		geometry, err := renderer.UploadGeometry(metadata.QuadGeometry("test_quad", material))
		if err != nil {
			return err
		}
		state.quads = append(state.quads, &quad{
			geometry: geometry,
			offset:   l.offset,
			scale:    l.scale,
			spin:     l.spin,
		})
	}
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.angle += float32(deltaTime)
	state.camera.Roll(cameraRollSpeed * float32(deltaTime))

	viewProjection := mgl32.Scale3D(1/state.aspect, 1, 1).Mul4(state.camera.View())
	for _, q := range state.quads {
		q.geometry.Transform = viewProjection.
			Mul4(mgl32.Translate3D(q.offset.X(), q.offset.Y(), q.offset.Z())).
			Mul4(mgl32.HomogRotate3DZ(q.spin * state.angle)).
			Mul4(mgl32.Scale3D(q.scale, q.scale, 1))
	}
	return nil
}

func (g *TestGame) Render(packet *metadata.RenderPacket) error {
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	state := g.State.(*gameState)
	state.aspect = float32(width) / float32(height)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.renderer == nil {
		return nil
	}
	for _, q := range state.quads {
		if err := state.renderer.DestroyGeometry(q.geometry); err != nil {
			return err
		}
		state.renderer.ReleaseMaterial(q.geometry.Material)
	}
	state.quads = nil
	return nil
}
