// Package overlay rasterizes GUI and HUD draw lists into the RGBA layer the postprocessing pass
// composites over, or under the tone map of, the lit scene.
package overlay

import (
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// Format is the texel format of a rasterized overlay layer.
const Format = gputypes.TextureFormatRGBA8Unorm

// commandKind tags a draw list entry.
type commandKind int

const (
	commandFill commandKind = iota
	commandImage
)

// command is one recorded draw.
type command struct {
	kind  commandKind
	rect  image.Rectangle
	color color.NRGBA
	src   *image.NRGBA
}

// DrawList is an ordered list of overlay draws in surface pixel coordinates, origin top-left.
// Later draws blend over earlier ones. The zero value is an empty list ready to use.
type DrawList struct {
	commands []command
	scaler   xdraw.Scaler
}

// NewDrawList creates an empty draw list that scales images with the given scaler.
//
// Parameters:
//   - scaler: the image scaler, nil for bilinear
//
// Returns:
//   - *DrawList: the list
func NewDrawList(scaler xdraw.Scaler) *DrawList {
	return &DrawList{scaler: scaler}
}

// FillRect records a solid rectangle.
//
// Parameters:
//   - r: the rectangle in surface pixels
//   - c: the fill color, blended by its alpha
//
// Returns:
//   - *DrawList: the list, for chaining
func (l *DrawList) FillRect(r image.Rectangle, c color.Color) *DrawList {
	l.commands = append(l.commands, command{
		kind:  commandFill,
		rect:  r.Canon(),
		color: color.NRGBAModel.Convert(c).(color.NRGBA),
	})
	return l
}

// DrawImage records an image scaled into a rectangle. The pixels are copied, so later changes
// to src do not affect the list.
//
// Parameters:
//   - src: the source image
//   - dst: the destination rectangle in surface pixels
//
// Returns:
//   - *DrawList: the list, for chaining
func (l *DrawList) DrawImage(src image.Image, dst image.Rectangle) *DrawList {
	b := src.Bounds()
	cp := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(cp, cp.Bounds(), src, b.Min, xdraw.Src)
	l.commands = append(l.commands, command{kind: commandImage, rect: dst.Canon(), src: cp})
	return l
}

// Len returns the number of recorded draws.
func (l *DrawList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.commands)
}

// Empty reports whether the list draws nothing.
func (l *DrawList) Empty() bool {
	return l.Len() == 0
}

// Clone returns an independent copy of the list. Recorded image pixels are immutable and shared.
//
// Returns:
//   - *DrawList: the copy, nil for a nil list
func (l *DrawList) Clone() *DrawList {
	if l == nil {
		return nil
	}
	return &DrawList{commands: append([]command(nil), l.commands...), scaler: l.scaler}
}

// Rasterize draws the list into a transparent layer of the given size. Draws outside the layer
// are clipped.
//
// Parameters:
//   - width, height: the layer size, normally the surface size
//
// Returns:
//   - *image.NRGBA: the layer, straight alpha
func (l *DrawList) Rasterize(width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if l == nil {
		return dst
	}
	scaler := l.scaler
	if scaler == nil {
		scaler = xdraw.BiLinear
	}
	for _, c := range l.commands {
		r := c.rect.Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		switch c.kind {
		case commandFill:
			xdraw.Draw(dst, r, image.NewUniform(c.color), image.Point{}, xdraw.Over)
		case commandImage:
			scaler.Scale(dst, c.rect, c.src, c.src.Bounds(), xdraw.Over, nil)
		}
	}
	return dst
}

// Staging rasterizes the list into upload-ready texel data.
//
// Parameters:
//   - width, height: the layer size
//
// Returns:
//   - common.TextureStagingData: RGBA8Unorm texels, tightly packed
func (l *DrawList) Staging(width, height int) common.TextureStagingData {
	img := l.Rasterize(width, height)
	return common.TextureStagingData{
		Pixels: img.Pix,
		Width:  uint32(width),
		Height: uint32(height),
		Format: Format,
	}
}
