package metadata

// Vertex is the layout of every element of the renderer vertex buffer.
type Vertex struct {
	Position [3]float32
	Color    [3]float32
}

// GeometryConfig describes geometry to upload into the renderer wide vertex
// and index buffers.
type GeometryConfig struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
	// Material is the slot in the material buffer the geometry is drawn with.
	Material uint32
	// Pipeline names the graphics pipeline drawing the geometry, the first
	// configured one when empty.
	Pipeline string
}

// QuadGeometry returns a unit quad centred on the origin with one color per corner.
func QuadGeometry(name string, material uint32) GeometryConfig {
	return GeometryConfig{
		Name: name,
		Vertices: []Vertex{
			{Position: [3]float32{-0.5, -0.5, 0}, Color: [3]float32{1, 0, 0}},
			{Position: [3]float32{0.5, -0.5, 0}, Color: [3]float32{0, 1, 0}},
			{Position: [3]float32{0.5, 0.5, 0}, Color: [3]float32{0, 0, 1}},
			{Position: [3]float32{-0.5, 0.5, 0}, Color: [3]float32{1, 1, 1}},
		},
		Indices:  []uint32{0, 1, 2, 2, 3, 0},
		Material: material,
	}
}
