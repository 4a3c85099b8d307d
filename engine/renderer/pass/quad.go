package pass

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
)

// UVPolicy selects where texture coordinate (0, 0) lies on screen.
type UVPolicy int

const (
	// UVTopLeft puts (0, 0) at the top-left corner, the WebGPU convention.
	UVTopLeft UVPolicy = iota
	// UVBottomLeft puts (0, 0) at the bottom-left corner, the OpenGL convention.
	UVBottomLeft
)

// String returns the policy name.
func (p UVPolicy) String() string {
	switch p {
	case UVTopLeft:
		return "top-left"
	case UVBottomLeft:
		return "bottom-left"
	default:
		return "unknown"
	}
}

// FullscreenQuad returns two counter-clockwise triangles covering clip space [-1, 1] at z = 0.
// The result depends only on the policy.
//
// Parameters:
//   - policy: the texture coordinate origin
//
// Returns:
//   - [6]model.Vertex: bottom-left, bottom-right, top-right, bottom-left, top-right, top-left
func FullscreenQuad(policy UVPolicy) [6]model.Vertex {
	corner := func(x, y float32) model.Vertex {
		u := (x + 1) / 2
		v := (1 - y) / 2
		if policy == UVBottomLeft {
			v = (y + 1) / 2
		}
		return model.Vertex{
			Position: mgl32.Vec3{x, y, 0},
			Normal:   mgl32.Vec3{0, 0, 1},
			UV:       mgl32.Vec2{u, v},
		}
	}
	bl, br, tr, tl := corner(-1, -1), corner(1, -1), corner(1, 1), corner(-1, 1)
	return [6]model.Vertex{bl, br, tr, bl, tr, tl}
}

// QuadMesh wraps FullscreenQuad in a mesh for upload.
func QuadMesh(policy UVPolicy) model.Mesh {
	q := FullscreenQuad(policy)
	return model.NewMesh(model.WithName("fullscreen-quad"), model.WithVertices(q[:]))
}
