package renderer

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// RendererBackend is the graphics API specific half of the renderer.
type RendererBackend interface {
	Initialize(ctx context.Context) error
	Shutdown() error
	Resized(width, height uint32)
	// DrawFrame reports false when the frame was skipped, which is not an error.
	DrawFrame(packet *metadata.RenderPacket) (bool, error)
}

type Renderer struct {
	backend RendererBackend

	presented uint64
	skipped   uint64
}

func New(backend RendererBackend) *Renderer {
	return &Renderer{backend: backend}
}

func (r *Renderer) Initialize(ctx context.Context) error {
	if err := r.backend.Initialize(ctx); err != nil {
		return errors.Wrap(err, "failed to initialize renderer backend")
	}
	return nil
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}

func (r *Renderer) OnResize(width, height uint32) {
	r.backend.Resized(width, height)
}

// DrawFrame renders one frame. Returned errors are fatal.
func (r *Renderer) DrawFrame(packet *metadata.RenderPacket) error {
	presented, err := r.backend.DrawFrame(packet)
	if err != nil {
		core.LogError("renderer failed to draw a frame, shutting down: %s", err)
		return err
	}
	if presented {
		r.presented++
	} else {
		r.skipped++
	}
	return nil
}

// Frames returns how many frames were presented and how many were skipped.
func (r *Renderer) Frames() (presented, skipped uint64) {
	return r.presented, r.skipped
}
