package metadata

// Capacities of the renderer wide resource buffers, in elements unless noted.
const (
	VertexBufferCapacity      uint32 = 125_000
	IndexBufferCapacity       uint32 = 500_000
	DrawCommandBufferCapacity uint32 = 10_000
	MaterialSlotCount         uint32 = 1_000
	// Per frame resource staging buffer size in bytes.
	ResourceStagingBufferSize uint64 = 16 << 20
)

// FrameOverlap is the number of frames the CPU may record ahead of the GPU.
const FrameOverlap = 2
