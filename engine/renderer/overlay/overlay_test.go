package overlay

import (
	"image"
	"image/color"
	"testing"

	xdraw "golang.org/x/image/draw"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
)

func TestFillRectIsClippedAndOrdered(t *testing.T) {
	l := NewDrawList(nil).
		FillRect(image.Rect(1, 1, 3, 3), red).
		FillRect(image.Rect(2, 2, 10, 10), green)
	img := l.Rasterize(4, 4)

	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, color.NRGBA{}},
		{1, 1, red},
		{2, 2, green},
		{3, 3, green},
		{3, 0, color.NRGBA{}},
	}
	for _, tt := range tests {
		if got := img.NRGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestDrawImageScalesAndCopies(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, red)
	l := NewDrawList(xdraw.NearestNeighbor).DrawImage(src, image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, green)

	img := l.Rasterize(3, 3)
	for _, p := range []image.Point{{0, 0}, {1, 1}} {
		if got := img.NRGBAAt(p.X, p.Y); got != red {
			t.Errorf("pixel %v = %v, want the recorded red", p, got)
		}
	}
	if got := img.NRGBAAt(2, 2); got.A != 0 {
		t.Errorf("pixel outside the image = %v, want transparent", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewDrawList(nil).FillRect(image.Rect(0, 0, 1, 1), red)
	c := l.Clone()
	l.FillRect(image.Rect(0, 0, 1, 1), green)
	if c.Len() != 1 || l.Len() != 2 {
		t.Fatalf("lens = %d, %d; want clone 1, original 2", c.Len(), l.Len())
	}
	var nilList *DrawList
	if !nilList.Empty() || nilList.Clone() != nil {
		t.Fatal("nil list must be empty and clone to nil")
	}
}

func TestStaging(t *testing.T) {
	s := NewDrawList(nil).FillRect(image.Rect(0, 0, 1, 1), red).Staging(2, 3)
	if s.Width != 2 || s.Height != 3 || s.Format != Format {
		t.Fatalf("staging = %dx%d %s", s.Width, s.Height, s.Format)
	}
	if len(s.Pixels) != 2*3*4 {
		t.Fatalf("len(Pixels) = %d, want %d", len(s.Pixels), 2*3*4)
	}
	if s.Pixels[0] != 255 || s.Pixels[3] != 255 || s.Pixels[4+3] != 0 {
		t.Fatalf("pixels = %v, want red at the origin only", s.Pixels[:8])
	}
}
