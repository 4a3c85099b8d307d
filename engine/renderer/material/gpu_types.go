package material

import (
	_ "embed"
	"encoding/binary"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// GPUOverlayParamsSource is the canonical WGSL definition of the OverlayParams struct.
// Matches GPUOverlayParams layout exactly (32 bytes, std140 aligned).
//
//go:embed assets/overlay_params.wgsl
var GPUOverlayParamsSource string

// GPUOverlayParams is the GPU-aligned uniform controlling how the overlay layer is composited.
// The overlay texel is multiplied by Tint, its alpha scaled by Opacity, then blended over the
// scene color.
// Matches the WGSL OverlayParams struct layout exactly (see GPUOverlayParamsSource).
// Size: 32 bytes.
type GPUOverlayParams struct {
	Tint    [4]float32 // offset  0: RGBA multiplier applied to overlay texels
	Opacity float32    // offset 16: global overlay opacity in [0, 1]
	Enabled uint32     // offset 20: 0 skips the overlay entirely
	_pad    [2]uint32  // offset 24: padding to 32 bytes
}

// NewGPUOverlayParams returns the params of an untinted overlay.
//
// Parameters:
//   - enabled: whether an overlay layer was supplied this frame
//   - opacity: the global overlay opacity
//
// Returns:
//   - GPUOverlayParams: the uniform block
func NewGPUOverlayParams(enabled bool, opacity float32) GPUOverlayParams {
	p := GPUOverlayParams{Tint: [4]float32{1, 1, 1, 1}, Opacity: opacity}
	if enabled {
		p.Enabled = 1
	}
	return p
}

// Size returns the size of the GPUOverlayParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes
func (g *GPUOverlayParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUOverlayParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPUOverlayParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutFloat32s(buf, 0, g.Tint[:]...)
	common.PutFloat32s(buf, 16, g.Opacity)
	binary.LittleEndian.PutUint32(buf[20:24], g.Enabled)
	return buf
}

// Blend composites an overlay texel over a base color: the texel is tinted, its alpha scaled
// by the opacity, and the result mixed over base. A disabled overlay returns base unchanged.
//
// Parameters:
//   - base: the scene color
//   - texel: the RGBA overlay texel in [0, 1]
//
// Returns:
//   - mgl32.Vec3: the blended color
func (g *GPUOverlayParams) Blend(base mgl32.Vec3, texel mgl32.Vec4) mgl32.Vec3 {
	if g.Enabled == 0 {
		return base
	}
	o := mgl32.Vec4{texel[0] * g.Tint[0], texel[1] * g.Tint[1], texel[2] * g.Tint[2], texel[3] * g.Tint[3]}
	a := mgl32.Clamp(o[3]*g.Opacity, 0, 1)
	return base.Mul(1 - a).Add(o.Vec3().Mul(a))
}
