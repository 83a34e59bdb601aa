package metadata

// RenderPacket carries what the front end knows about the frame to the backend.
type RenderPacket struct {
	DeltaTime   float64
	FPS         float64
	FrameTimeMS float64
}
