package model

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// mesh is the implementation of the Mesh interface.
type mesh struct {
	name     string
	vertices []Vertex
	indices  []uint32
	bounds   common.AABB
}

// Mesh defines the interface for CPU-side triangle geometry handed to the renderer by value.
// A Mesh is immutable: accessors return copies, and the Resource Manager uploads it once
// and hands out a handle in its place.
type Mesh interface {
	// Name retrieves the mesh identifier.
	//
	// Returns:
	//   - string: the mesh name
	Name() string

	// Vertices returns a copy of the vertex list.
	//
	// Returns:
	//   - []Vertex: the vertices
	Vertices() []Vertex

	// Indices returns a copy of the index list, or nil for non-indexed meshes.
	//
	// Returns:
	//   - []uint32: the triangle indices
	Indices() []uint32

	// Indexed reports whether the mesh draws through an index list.
	//
	// Returns:
	//   - bool: true if indices are present
	Indexed() bool

	// VertexCount returns the number of vertices.
	//
	// Returns:
	//   - int: the vertex count
	VertexCount() int

	// ElementCount returns the number of vertices a draw call processes:
	// the index count for indexed meshes, the vertex count otherwise.
	//
	// Returns:
	//   - int: the element count
	ElementCount() int

	// Bounds returns the model-space axis-aligned bounding box.
	//
	// Returns:
	//   - common.AABB: the bounds
	Bounds() common.AABB

	// VertexData returns the packed vertex buffer contents.
	//
	// Returns:
	//   - []byte: the vertex data
	VertexData() []byte

	// IndexData returns the packed little-endian uint32 index buffer contents.
	//
	// Returns:
	//   - []byte: the index data, nil for non-indexed meshes
	IndexData() []byte

	// Validate checks that the mesh describes a triangle list with in-range indices.
	//
	// Returns:
	//   - error: ErrEmptyMesh, ErrNotTriangles or *IndexRangeError
	Validate() error
}

var _ Mesh = &mesh{}

// NewMesh creates a new Mesh from the given options. The bounding box is computed from
// the vertex positions.
//
// Parameters:
//   - options: functional options to configure the mesh
//
// Returns:
//   - Mesh: the newly created mesh
func NewMesh(options ...MeshBuilderOption) Mesh {
	m := &mesh{}
	for _, option := range options {
		option(m)
	}
	m.bounds = common.EmptyAABB()
	for _, v := range m.vertices {
		m.bounds = m.bounds.Extend(v.Position)
	}
	return m
}

func (m *mesh) Name() string {
	return m.name
}

func (m *mesh) Vertices() []Vertex {
	return append([]Vertex(nil), m.vertices...)
}

func (m *mesh) Indices() []uint32 {
	if m.indices == nil {
		return nil
	}
	return append([]uint32(nil), m.indices...)
}

func (m *mesh) Indexed() bool {
	return len(m.indices) > 0
}

func (m *mesh) VertexCount() int {
	return len(m.vertices)
}

func (m *mesh) ElementCount() int {
	if m.Indexed() {
		return len(m.indices)
	}
	return len(m.vertices)
}

func (m *mesh) Bounds() common.AABB {
	return m.bounds
}

func (m *mesh) VertexData() []byte {
	return MarshalVertices(m.vertices)
}

func (m *mesh) IndexData() []byte {
	if !m.Indexed() {
		return nil
	}
	buf := make([]byte, len(m.indices)*4)
	for i, idx := range m.indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

func (m *mesh) Validate() error {
	if len(m.vertices) == 0 {
		return ErrEmptyMesh
	}
	if m.ElementCount()%3 != 0 {
		return ErrNotTriangles
	}
	for i, idx := range m.indices {
		if int(idx) >= len(m.vertices) {
			return &IndexRangeError{Mesh: m.name, Position: i, Index: idx, VertexCount: len(m.vertices)}
		}
	}
	return nil
}
