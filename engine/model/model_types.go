package model

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// Mesh validation errors.
var (
	// ErrEmptyMesh is returned when a mesh has no vertices.
	ErrEmptyMesh = errors.New("model: mesh has no vertices")

	// ErrNotTriangles is returned when the element count is not a multiple of three.
	ErrNotTriangles = errors.New("model: element count is not a multiple of 3")
)

// IndexRangeError reports an index that points past the end of the vertex list.
type IndexRangeError struct {
	// Mesh is the name of the offending mesh.
	Mesh string
	// Position is the position of the index within the index list.
	Position int
	// Index is the out-of-range value.
	Index uint32
	// VertexCount is the number of vertices in the mesh.
	VertexCount int
}

func (e *IndexRangeError) Error() string {
	return fmt.Sprintf("model: mesh %q index %d at position %d exceeds vertex count %d",
		e.Mesh, e.Index, e.Position, e.VertexCount)
}

// Vertex is a single mesh vertex. Vertices are immutable once uploaded.
type Vertex struct {
	// Position is the model-space position. Full-screen geometry stores clip-space XY with Z = 0.
	Position mgl32.Vec3
	// Normal is the model-space surface normal.
	Normal mgl32.Vec3
	// UV is the texture coordinate.
	UV mgl32.Vec2
}

// VertexAttribute describes one vertex attribute as a pipeline input.
type VertexAttribute struct {
	// Name is the attribute's semantic name, matching the shader input member.
	Name string
	// Location is the shader input location.
	Location uint32
	// Format is the attribute format.
	Format gputypes.VertexFormat
	// Offset is the byte offset within a vertex.
	Offset uint64
}

// VertexLayout is the input layout of a vertex buffer.
type VertexLayout struct {
	// Stride is the byte distance between consecutive vertices.
	Stride uint64
	// Attributes are the attributes read from each vertex.
	Attributes []VertexAttribute
}

// Attribute returns the attribute at the given location.
//
// Parameters:
//   - location: the shader input location
//
// Returns:
//   - VertexAttribute: the attribute
//   - bool: false if no attribute uses that location
func (l VertexLayout) Attribute(location uint32) (VertexAttribute, bool) {
	for _, a := range l.Attributes {
		if a.Location == location {
			return a, true
		}
	}
	return VertexAttribute{}, false
}

// StandardLayout returns the layout of the Vertex type: position at location 0,
// normal at 1 and uv at 2, with a 32 byte stride.
//
// Returns:
//   - VertexLayout: the layout
func StandardLayout() VertexLayout {
	return VertexLayout{
		Stride: VertexSize,
		Attributes: []VertexAttribute{
			{Name: "position", Location: 0, Format: gputypes.VertexFormatFloat32x3, Offset: 0},
			{Name: "normal", Location: 1, Format: gputypes.VertexFormatFloat32x3, Offset: 12},
			{Name: "uv", Location: 2, Format: gputypes.VertexFormatFloat32x2, Offset: 24},
		},
	}
}

// Subset returns a copy of the layout keeping only the given locations.
// Depth-only and full-screen pipelines read a subset of the standard vertex.
//
// Parameters:
//   - locations: the locations to keep
//
// Returns:
//   - VertexLayout: the reduced layout with the original stride
func (l VertexLayout) Subset(locations ...uint32) VertexLayout {
	out := VertexLayout{Stride: l.Stride}
	for _, loc := range locations {
		if a, ok := l.Attribute(loc); ok {
			out.Attributes = append(out.Attributes, a)
		}
	}
	return out
}
