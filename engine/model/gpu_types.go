package model

import (
	_ "embed"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// VertexSize is the packed size of one Vertex in bytes.
const VertexSize = 32

// GPUVertexSource is the canonical WGSL definition of the VertexInput struct.
// Matches the Vertex packing produced by MarshalVertices (32 bytes per vertex).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// MarshalVertices packs vertices into a tightly packed little-endian vertex buffer.
//
// Parameters:
//   - vertices: the vertices to pack
//
// Returns:
//   - []byte: len(vertices) * VertexSize bytes
func MarshalVertices(vertices []Vertex) []byte {
	buf := make([]byte, len(vertices)*VertexSize)
	for i, v := range vertices {
		off := i * VertexSize
		common.PutFloat32s(buf, off, v.Position[:]...)
		common.PutFloat32s(buf, off+12, v.Normal[:]...)
		common.PutFloat32s(buf, off+24, v.UV[:]...)
	}
	return buf
}

// GPULocalsSource is the canonical WGSL definition of the Locals struct.
// Matches GPULocals layout exactly (160 bytes, std140 aligned).
//
//go:embed assets/locals.wgsl
var GPULocalsSource string

// GPULocals is the per-draw uniform block. It is passed by value with each draw call and
// never retained across frames.
// Size: 160 bytes (std140 / WGSL aligned).
type GPULocals struct {
	Model         [16]float32 // offset   0: model-to-world matrix (mat4x4<f32>)
	LightViewProj [16]float32 // offset  64: light-space matrix, shadow passes only (mat4x4<f32>)
	Albedo        [4]float32  // offset 128: material base color (vec4<f32>)
	Params        [4]float32  // offset 144: x = roughness, y = metallic, zw unused (vec4<f32>)
}

// NewGPULocals builds the locals of a geometry draw.
//
// Parameters:
//   - modelMatrix: the drawable's world transform
//   - albedo: the material base color
//   - roughness: the material roughness in [0, 1]
//   - metallic: the material metallic factor in [0, 1]
//
// Returns:
//   - GPULocals: the per-draw block
func NewGPULocals(modelMatrix mgl32.Mat4, albedo [4]float32, roughness, metallic float32) GPULocals {
	return GPULocals{
		Model:  modelMatrix,
		Albedo: albedo,
		Params: [4]float32{roughness, metallic, 0, 0},
	}
}

// WithLightViewProj returns a copy of the locals carrying a light-space matrix.
func (g GPULocals) WithLightViewProj(vp mgl32.Mat4) GPULocals {
	g.LightViewProj = vp
	return g
}

// ModelMatrix returns the model matrix as an mgl32 matrix.
func (g *GPULocals) ModelMatrix() mgl32.Mat4 {
	return mgl32.Mat4(g.Model)
}

// Size returns the size of the GPULocals struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes (160)
func (g *GPULocals) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULocals struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 160-byte buffer ready for GPU upload
func (g *GPULocals) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutFloat32s(buf, 0, g.Model[:]...)
	common.PutFloat32s(buf, 64, g.LightViewProj[:]...)
	common.PutFloat32s(buf, 128, g.Albedo[:]...)
	common.PutFloat32s(buf, 144, g.Params[:]...)
	return buf
}
