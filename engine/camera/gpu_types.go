package camera

import (
	_ "embed"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// State is the immutable per-frame camera data carried by a scene snapshot.
type State struct {
	Position        mgl32.Vec3
	View            mgl32.Mat4
	Projection      mgl32.Mat4
	ViewProjection  mgl32.Mat4
	InverseViewProj mgl32.Mat4
	Near, Far       float32
}

// Frustum returns the world-space view frustum of the state.
func (s State) Frustum() common.Frustum {
	return common.ExtractFrustum(s.ViewProjection)
}

// Uniform packs the state into its GPU representation.
//
// Returns:
//   - GPUCameraUniform: the uniform block contents
func (s State) Uniform() GPUCameraUniform {
	return GPUCameraUniform{
		ViewProj:       s.ViewProjection,
		InvViewProj:    s.InverseViewProj,
		CameraPosition: s.Position,
	}
}

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (144 bytes, std140 aligned).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the GPU-aligned representation of the camera uniform buffer.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
// Size: 144 bytes (std140 / WGSL aligned).
type GPUCameraUniform struct {
	ViewProj       [16]float32 // offset   0: combined view-projection matrix (mat4x4<f32>)
	InvViewProj    [16]float32 // offset  64: inverse view-projection matrix (mat4x4<f32>)
	CameraPosition [3]float32  // offset 128: world-space camera position (vec3<f32>)
	_pad           float32     // offset 140: padding to 144 bytes
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (144)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutFloat32s(buf, 0, g.ViewProj[:]...)
	common.PutFloat32s(buf, 64, g.InvViewProj[:]...)
	common.PutFloat32s(buf, 128, g.CameraPosition[:]...)
	return buf
}
