package backend

import (
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// TargetData is a read-back layer of a target. Every texel is expanded to four float channels;
// depth formats store depth in the first channel.
type TargetData struct {
	// Format is the source format.
	Format gputypes.TextureFormat
	// Width and Height are the layer dimensions.
	Width, Height int
	// Data holds Width*Height*4 floats, row-major from the top-left texel.
	Data []float32
}

// At returns the texel at (x, y).
func (d TargetData) At(x, y int) mgl32.Vec4 {
	i := (y*d.Width + x) * 4
	return mgl32.Vec4{d.Data[i], d.Data[i+1], d.Data[i+2], d.Data[i+3]}
}

// Depth returns the depth value at (x, y) of a depth target.
func (d TargetData) Depth(x, y int) float32 {
	return d.Data[(y*d.Width+x)*4]
}

// Image converts the layer to an 8-bit image, clamping every channel to [0, 1]. Depth layers
// become grayscale.
//
// Returns:
//   - *image.NRGBA: the image
func (d TargetData) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, d.Width, d.Height))
	depth := d.Format.HasDepth()
	for y := range d.Height {
		for x := range d.Width {
			t := d.At(x, y)
			if depth {
				t = mgl32.Vec4{t[0], t[0], t[0], 1}
			}
			img.SetNRGBA(x, y, color.NRGBA{R: to8(t[0]), G: to8(t[1]), B: to8(t[2]), A: to8(t[3])})
		}
	}
	return img
}

func to8(v float32) uint8 {
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
