package pipeline

import "github.com/google/uuid"

// Handle is the accessor contract the manager uses to read and replace the
// native objects of a pipeline without knowing how they are stored.
type Handle[P any, L any] interface {
	ID() uuid.UUID
	GetPipeline() P
	SetPipeline(P)
	GetLayout() L
	SetLayout(L)
}

type Pipeline[P any, L any] struct {
	id       uuid.UUID
	name     string
	pipeline P
	layout   L
}

func NewPipeline[P any, L any](name string, layout L) *Pipeline[P, L] {
	return &Pipeline[P, L]{
		id:     uuid.New(),
		name:   name,
		layout: layout,
	}
}

func (p *Pipeline[P, L]) ID() uuid.UUID        { return p.id }
func (p *Pipeline[P, L]) Name() string         { return p.name }
func (p *Pipeline[P, L]) GetPipeline() P       { return p.pipeline }
func (p *Pipeline[P, L]) SetPipeline(native P) { p.pipeline = native }
func (p *Pipeline[P, L]) GetLayout() L         { return p.layout }
func (p *Pipeline[P, L]) SetLayout(layout L)   { p.layout = layout }

// State of a registered pipeline.
type State uint8

const (
	StateRegistered State = iota
	StateCompiling
	StateBuilt
	// StateFailed means the last rebuild failed and the previous native
	// pipeline, if any, is still in use.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateCompiling:
		return "compiling"
	case StateBuilt:
		return "built"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
