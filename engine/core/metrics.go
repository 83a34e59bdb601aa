package core

import "github.com/spaghettifunk/prism/engine/containers"

const AVG_COUNT int = 30

// Metrics keeps a rolling frame time average and a frames per second counter.
type Metrics struct {
	samples            *containers.RingQueue[float64]
	msAverage          float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		samples: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

func (m *Metrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.samples.Push(frameMS)

	sum := 0.0
	m.samples.Each(func(v float64) { sum += v })
	m.msAverage = sum / float64(m.samples.Len())

	// Calculate Frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all Frames.
	m.frames++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAverage
}

func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAverage
}
