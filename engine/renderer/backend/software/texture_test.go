package software

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

func TestUnorm8Quantization(t *testing.T) {
	tex := newTexture(gputypes.TextureFormatRGBA8Unorm, 1, 1, 1)
	tex.store(0, 0, 0, mgl32.Vec4{0.3, -1, 2, 0.5})
	got := tex.Load(0, 0, 0)
	want := mgl32.Vec4{77.0 / 255, 0, 1, 128.0 / 255}
	if got != want {
		t.Fatalf("Load = %v, want %v", got, want)
	}
}

func TestFloatFormatsKeepPrecision(t *testing.T) {
	tex := newTexture(gputypes.TextureFormatRGBA16Float, 1, 1, 1)
	v := mgl32.Vec4{3.25, -0.125, 1e3, 0.3}
	tex.store(0, 0, 0, v)
	if got := tex.Load(0, 0, 0); got != v {
		t.Fatalf("Load = %v, want %v", got, v)
	}
}

func TestSrgbStoresEncoded(t *testing.T) {
	tex := newTexture(gputypes.TextureFormatBGRA8UnormSrgb, 1, 1, 1)
	tex.store(0, 0, 0, mgl32.Vec4{0.5, 0, 1, 1})
	raw := tex.raw(0)
	if raw[0] < 0.7 || raw[0] > 0.75 {
		t.Fatalf("stored red = %v, want the sRGB encoding of 0.5", raw[0])
	}
	if got := tex.Load(0, 0, 0); mgl32.Abs(got[0]-0.5) > 0.01 || got[2] != 1 {
		t.Fatalf("Load = %v, want linear 0.5", got)
	}
}

func TestLoadOutOfRangeIsZero(t *testing.T) {
	tex := newTexture(gputypes.TextureFormatRGBA32Float, 2, 2, 1)
	tex.fill(0, mgl32.Vec4{1, 1, 1, 1})
	for _, c := range [][3]int{{-1, 0, 0}, {2, 0, 0}, {0, 2, 0}, {0, 0, 1}} {
		if got := tex.Load(c[0], c[1], c[2]); got != (mgl32.Vec4{}) {
			t.Errorf("Load%v = %v, want zero", c, got)
		}
	}
}

func TestDepthTargetsClearToFar(t *testing.T) {
	tex := newTexture(gputypes.TextureFormatDepth32Float, 2, 2, 3)
	for layer := range 3 {
		if got := tex.depthAt(1, 1, layer); got != 1 {
			t.Fatalf("layer %d depth = %v, want 1", layer, got)
		}
	}
}

func TestSampleCompare(t *testing.T) {
	tex := newTexture(gputypes.TextureFormatDepth32Float, 2, 1, 2)
	tex.storeDepth(0, 0, 1, 0.2)
	tex.storeDepth(1, 0, 1, 0.8)

	nearest := common.SamplerStagingData{
		MagFilter: gputypes.FilterModeNearest,
		Compare:   gputypes.CompareFunctionLessEqual,
	}.WithDefaults()
	tests := []struct {
		name  string
		uv    mgl32.Vec2
		layer int
		ref   float32
		want  float32
	}{
		{"occluded", mgl32.Vec2{0.25, 0.5}, 1, 0.5, 0},
		{"lit", mgl32.Vec2{0.75, 0.5}, 1, 0.5, 1},
		{"other layer", mgl32.Vec2{0.25, 0.5}, 0, 0.5, 1},
		{"clamped uv", mgl32.Vec2{-3, 0.5}, 1, 0.5, 0},
		{"clamped layer", mgl32.Vec2{0.75, 0.5}, 9, 0.5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tex.SampleCompare(nearest, tt.uv, tt.layer, tt.ref); got != tt.want {
				t.Fatalf("SampleCompare = %v, want %v", got, tt.want)
			}
		})
	}

	linear := nearest
	linear.MagFilter = gputypes.FilterModeLinear
	if got := tex.SampleCompare(linear, mgl32.Vec2{0.5, 0.5}, 1, 0.5); mgl32.Abs(got-0.5) > 1e-6 {
		t.Fatalf("linear SampleCompare at the texel boundary = %v, want 0.5", got)
	}
}
