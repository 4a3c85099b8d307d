package model

// MeshBuilderOption is a functional option for configuring a Mesh.
type MeshBuilderOption func(*mesh)

// WithName sets the mesh identifier.
//
// Parameters:
//   - name: the name of the mesh
//
// Returns:
//   - MeshBuilderOption: a function that sets the name
func WithName(name string) MeshBuilderOption {
	return func(m *mesh) {
		m.name = name
	}
}

// WithVertices sets the vertex list. The slice is copied.
//
// Parameters:
//   - vertices: the mesh vertices
//
// Returns:
//   - MeshBuilderOption: a function that sets the vertices
func WithVertices(vertices []Vertex) MeshBuilderOption {
	return func(m *mesh) {
		m.vertices = append([]Vertex(nil), vertices...)
	}
}

// WithIndices sets the triangle index list. The slice is copied.
//
// Parameters:
//   - indices: counter-clockwise triangle indices
//
// Returns:
//   - MeshBuilderOption: a function that sets the indices
func WithIndices(indices []uint32) MeshBuilderOption {
	return func(m *mesh) {
		m.indices = append([]uint32(nil), indices...)
	}
}
