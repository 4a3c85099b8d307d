package backend

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/x448/float16"
)

// DecodeTexels expands packed texel rows into four float channels per texel. Unorm formats map
// to [0, 1] without sRGB decoding, BGRA is swizzled to RGBA, and single-channel formats fill the
// first channel.
//
// Parameters:
//   - format: the texel format of pixels
//   - pixels: the packed rows
//   - width: texels per row
//   - height: the row count
//   - bytesPerRow: the row pitch, 0 for tightly packed rows
//
// Returns:
//   - []float32: width*height*4 floats
//   - error: ErrUnsupportedFormat for unknown formats or short data
func DecodeTexels(format gputypes.TextureFormat, pixels []byte, width, height, bytesPerRow int) ([]float32, error) {
	bpt := BytesPerTexel(format)
	if bytesPerRow == 0 {
		bytesPerRow = width * bpt
	}
	if bpt == 0 || height > 0 && len(pixels) < (height-1)*bytesPerRow+width*bpt {
		return nil, fmt.Errorf("%d bytes for %dx%d texels of %s: %w",
			len(pixels), width, height, format, ErrUnsupportedFormat)
	}
	f32 := func(b []byte) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	f16 := func(b []byte) float32 {
		return float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
	}
	out := make([]float32, width*height*4)
	for y := range height {
		row := pixels[y*bytesPerRow:]
		for x := range width {
			px := row[x*bpt : (x+1)*bpt]
			o := out[(y*width+x)*4 : (y*width+x)*4+4]
			switch format {
			case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
				o[0], o[1], o[2], o[3] = float32(px[0])/255, float32(px[1])/255, float32(px[2])/255, float32(px[3])/255
			case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
				o[0], o[1], o[2], o[3] = float32(px[2])/255, float32(px[1])/255, float32(px[0])/255, float32(px[3])/255
			case gputypes.TextureFormatR8Unorm:
				o[0] = float32(px[0]) / 255
			case gputypes.TextureFormatR16Float:
				o[0] = f16(px)
			case gputypes.TextureFormatRG16Float:
				o[0], o[1] = f16(px), f16(px[2:])
			case gputypes.TextureFormatRGBA16Float:
				o[0], o[1], o[2], o[3] = f16(px), f16(px[2:]), f16(px[4:]), f16(px[6:])
			case gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float:
				o[0] = f32(px)
			case gputypes.TextureFormatRG32Float:
				o[0], o[1] = f32(px), f32(px[4:])
			case gputypes.TextureFormatRGBA32Float:
				o[0], o[1], o[2], o[3] = f32(px), f32(px[4:]), f32(px[8:]), f32(px[12:])
			default:
				return nil, fmt.Errorf("texel format %s: %w", format, ErrUnsupportedFormat)
			}
		}
	}
	return out, nil
}

// EncodeTexels packs four-channel float texels into tightly packed rows of format, the inverse
// of DecodeTexels. Unorm channels are clamped and rounded.
//
// Parameters:
//   - format: the destination format
//   - texels: width*height*4 floats
//
// Returns:
//   - []byte: the packed rows
//   - error: ErrUnsupportedFormat for unknown formats
func EncodeTexels(format gputypes.TextureFormat, texels []float32) ([]byte, error) {
	bpt := BytesPerTexel(format)
	if bpt == 0 {
		return nil, fmt.Errorf("texel format %s: %w", format, ErrUnsupportedFormat)
	}
	n := len(texels) / 4
	out := make([]byte, n*bpt)
	u8 := func(v float32) byte {
		return byte(min(max(v, 0), 1)*255 + 0.5)
	}
	put16 := func(b []byte, v float32) {
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(v).Bits())
	}
	put32 := func(b []byte, v float32) {
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	}
	for i := range n {
		t := texels[i*4 : i*4+4]
		px := out[i*bpt : (i+1)*bpt]
		switch format {
		case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
			px[0], px[1], px[2], px[3] = u8(t[0]), u8(t[1]), u8(t[2]), u8(t[3])
		case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
			px[0], px[1], px[2], px[3] = u8(t[2]), u8(t[1]), u8(t[0]), u8(t[3])
		case gputypes.TextureFormatR8Unorm:
			px[0] = u8(t[0])
		case gputypes.TextureFormatR16Float:
			put16(px, t[0])
		case gputypes.TextureFormatRG16Float:
			put16(px, t[0])
			put16(px[2:], t[1])
		case gputypes.TextureFormatRGBA16Float:
			for c := range 4 {
				put16(px[c*2:], t[c])
			}
		case gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float:
			put32(px, t[0])
		case gputypes.TextureFormatRG32Float:
			put32(px, t[0])
			put32(px[4:], t[1])
		case gputypes.TextureFormatRGBA32Float:
			for c := range 4 {
				put32(px[c*4:], t[c])
			}
		default:
			return nil, fmt.Errorf("texel format %s: %w", format, ErrUnsupportedFormat)
		}
	}
	return out, nil
}
