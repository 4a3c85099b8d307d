package software

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// Texture is the texel storage of a software target. Every texel holds four float channels;
// depth formats use the first. Unorm formats are quantized to 8 bits on store and sRGB formats
// hold encoded values that Load decodes.
type Texture struct {
	format        gputypes.TextureFormat
	width, height int
	layers        [][]float32
}

// supportedFormat reports whether the software device can create targets of the format.
func supportedFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR16Float, gputypes.TextureFormatR32Float,
		gputypes.TextureFormatRG16Float, gputypes.TextureFormatRG32Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA32Float,
		gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24Plus:
		return true
	}
	return false
}

func newTexture(format gputypes.TextureFormat, width, height, layers int) *Texture {
	t := &Texture{format: format, width: width, height: height, layers: make([][]float32, layers)}
	for i := range t.layers {
		t.layers[i] = make([]float32, width*height*4)
	}
	if format.HasDepth() {
		for i := range t.layers {
			t.fill(i, mgl32.Vec4{1, 0, 0, 0})
		}
	}
	return t
}

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat {
	return t.format
}

// Width returns the width in texels.
func (t *Texture) Width() int {
	return t.width
}

// Height returns the height in texels.
func (t *Texture) Height() int {
	return t.height
}

// Layers returns the array layer count.
func (t *Texture) Layers() int {
	return len(t.layers)
}

// Load reads one texel like WGSL textureLoad. Out-of-range coordinates read zero.
//
// Parameters:
//   - x, y: integer texel coordinates from the top-left
//   - layer: the array layer
//
// Returns:
//   - mgl32.Vec4: the texel, decoded to linear for sRGB formats
func (t *Texture) Load(x, y, layer int) mgl32.Vec4 {
	if x < 0 || y < 0 || x >= t.width || y >= t.height || layer < 0 || layer >= len(t.layers) {
		return mgl32.Vec4{}
	}
	i := (y*t.width + x) * 4
	d := t.layers[layer]
	v := mgl32.Vec4{d[i], d[i+1], d[i+2], d[i+3]}
	if t.format.IsSrgb() {
		v = mgl32.Vec4{srgbToLinear(v[0]), srgbToLinear(v[1]), srgbToLinear(v[2]), v[3]}
	}
	return v
}

// depthAt reads the raw depth of a texel, clamping coordinates to the edge.
func (t *Texture) depthAt(x, y, layer int) float32 {
	x = min(max(x, 0), t.width-1)
	y = min(max(y, 0), t.height-1)
	return t.layers[layer][(y*t.width+x)*4]
}

// SampleCompare performs a depth comparison sample like WGSL textureSampleCompareLevel. Nearest
// filtering takes one comparison; linear filtering blends the four surrounding comparisons.
//
// Parameters:
//   - s: the comparison sampler
//   - uv: normalized coordinates, v pointing down
//   - layer: the array layer, clamped to the valid range
//   - ref: the reference depth
//
// Returns:
//   - float32: the fraction of passing comparisons in [0, 1]
func (t *Texture) SampleCompare(s common.SamplerStagingData, uv mgl32.Vec2, layer int, ref float32) float32 {
	layer = min(max(layer, 0), len(t.layers)-1)
	u := address(s.AddressModeU, uv[0])
	v := address(s.AddressModeV, uv[1])
	pass := func(x, y int) float32 {
		if common.CompareDepth(s.Compare, ref, t.depthAt(x, y, layer)) {
			return 1
		}
		return 0
	}

	fx := u * float32(t.width)
	fy := v * float32(t.height)
	if s.MagFilter != gputypes.FilterModeLinear {
		return pass(int(math32.Floor(fx)), int(math32.Floor(fy)))
	}
	fx -= 0.5
	fy -= 0.5
	x0 := int(math32.Floor(fx))
	y0 := int(math32.Floor(fy))
	ax := fx - float32(x0)
	ay := fy - float32(y0)
	top := pass(x0, y0)*(1-ax) + pass(x0+1, y0)*ax
	bottom := pass(x0, y0+1)*(1-ax) + pass(x0+1, y0+1)*ax
	return top*(1-ay) + bottom*ay
}

// address applies an address mode to a normalized coordinate.
func address(mode gputypes.AddressMode, c float32) float32 {
	switch mode {
	case gputypes.AddressModeRepeat:
		return c - math32.Floor(c)
	default:
		return mgl32.Clamp(c, 0, 1)
	}
}

// store writes one texel, applying the format's quantization.
func (t *Texture) store(x, y, layer int, v mgl32.Vec4) {
	i := (y*t.width + x) * 4
	d := t.layers[layer]
	q := t.encode(v)
	d[i], d[i+1], d[i+2], d[i+3] = q[0], q[1], q[2], q[3]
}

// storeDepth writes the depth channel of a texel.
func (t *Texture) storeDepth(x, y, layer int, z float32) {
	t.layers[layer][(y*t.width+x)*4] = z
}

// fill sets every texel of a layer.
func (t *Texture) fill(layer int, v mgl32.Vec4) {
	q := t.encode(v)
	d := t.layers[layer]
	for i := 0; i < len(d); i += 4 {
		d[i], d[i+1], d[i+2], d[i+3] = q[0], q[1], q[2], q[3]
	}
}

// encode converts a shader output into the stored representation of the format.
func (t *Texture) encode(v mgl32.Vec4) mgl32.Vec4 {
	switch t.format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatR8Unorm:
		return mgl32.Vec4{unorm8(v[0]), unorm8(v[1]), unorm8(v[2]), unorm8(v[3])}
	case gputypes.TextureFormatRGBA8UnormSrgb, gputypes.TextureFormatBGRA8UnormSrgb:
		return mgl32.Vec4{
			unorm8(linearToSrgb(v[0])),
			unorm8(linearToSrgb(v[1])),
			unorm8(linearToSrgb(v[2])),
			unorm8(v[3]),
		}
	case gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24Plus:
		return mgl32.Vec4{mgl32.Clamp(v[0], 0, 1), 0, 0, 0}
	default:
		return v
	}
}

// raw returns a copy of a layer's stored values.
func (t *Texture) raw(layer int) []float32 {
	return append([]float32(nil), t.layers[layer]...)
}

// unorm8 quantizes a value to the nearest 8-bit normalized level. NaN stores as zero.
func unorm8(v float32) float32 {
	if math32.IsNaN(v) {
		return 0
	}
	return math32.Round(mgl32.Clamp(v, 0, 1)*255) / 255
}

func linearToSrgb(c float32) float32 {
	if math32.IsNaN(c) || c <= 0 {
		return 0
	}
	if c <= 0.0031308 {
		return c * 12.92
	}
	return 1.055*math32.Pow(c, 1/2.4) - 0.055
}

func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math32.Pow((c+0.055)/1.055, 2.4)
}
