package postfx

import (
	_ "embed"
	"encoding/binary"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// GPUPostParamsSource is the canonical WGSL definition of the PostParams struct.
// Matches GPUPostParams layout exactly (16 bytes).
//
//go:embed assets/post_params.wgsl
var GPUPostParamsSource string

// GPUPostParams is the uniform block of the postprocessing composite.
// Size: 16 bytes.
type GPUPostParams struct {
	Exposure    float32 // offset  0: linear exposure multiplier
	Gamma       float32 // offset  4: display gamma, 1 disables the encode
	ToneMap     uint32  // offset  8: ToneMap operator
	OverlayMode uint32  // offset 12: OverlayMode
}

// Params converts the uniform back into composite parameters.
func (g *GPUPostParams) Params() Params {
	return Params{
		Exposure: g.Exposure,
		Gamma:    g.Gamma,
		ToneMap:  ToneMap(g.ToneMap),
		Overlay:  OverlayMode(g.OverlayMode),
	}
}

// Size returns the size of the GPUPostParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes (16)
func (g *GPUPostParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPostParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUPostParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutFloat32s(buf, 0, g.Exposure, g.Gamma)
	binary.LittleEndian.PutUint32(buf[8:12], g.ToneMap)
	binary.LittleEndian.PutUint32(buf[12:16], g.OverlayMode)
	return buf
}
