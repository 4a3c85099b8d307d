package model

import (
	"github.com/go-gl/mathgl/mgl32"
)

// cubeFaces lists each cube face as its outward normal and two in-plane axes
// with u x v = normal, so corners walked -u-v, +u-v, +u+v, -u+v are counter-clockwise.
var cubeFaces = [6]struct {
	n, u, v mgl32.Vec3
}{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
}

var quadCorners = [4]struct {
	su, sv float32
	uv     mgl32.Vec2
}{
	{-1, -1, mgl32.Vec2{0, 1}},
	{1, -1, mgl32.Vec2{1, 1}},
	{1, 1, mgl32.Vec2{1, 0}},
	{-1, 1, mgl32.Vec2{0, 0}},
}

// Cube builds an axis-aligned cube centered on the origin with per-face normals.
//
// Parameters:
//   - size: the edge length
//
// Returns:
//   - Mesh: a 24 vertex, 36 index mesh
func Cube(size float32) Mesh {
	h := size / 2
	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range cubeFaces {
		base := uint32(len(vertices))
		center := f.n.Mul(h)
		for _, c := range quadCorners {
			vertices = append(vertices, Vertex{
				Position: center.Add(f.u.Mul(c.su * h)).Add(f.v.Mul(c.sv * h)),
				Normal:   f.n,
				UV:       c.uv,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return NewMesh(WithName("cube"), WithVertices(vertices), WithIndices(indices))
}

// Plane builds a single-sided square in the XZ plane facing +Y, centered on the origin.
//
// Parameters:
//   - size: the edge length
//
// Returns:
//   - Mesh: a 4 vertex, 6 index mesh
func Plane(size float32) Mesh {
	f := cubeFaces[2]
	h := size / 2
	vertices := make([]Vertex, 0, 4)
	for _, c := range quadCorners {
		vertices = append(vertices, Vertex{
			Position: f.u.Mul(c.su * h).Add(f.v.Mul(c.sv * h)),
			Normal:   f.n,
			UV:       c.uv,
		})
	}
	return NewMesh(WithName("plane"), WithVertices(vertices), WithIndices([]uint32{0, 1, 2, 0, 2, 3}))
}
