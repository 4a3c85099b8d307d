package webgpu

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

func TestTextureFormatRoundTrip(t *testing.T) {
	for g, w := range textureFormats {
		got, err := textureFormat(g)
		if err != nil || got != w {
			t.Errorf("textureFormat(%s) = %v, %v; want %v", g, got, err, w)
		}
		back, ok := surfaceFormat(w)
		if !ok || back != g {
			t.Errorf("surfaceFormat(%v) = %s, %v; want %s", w, back, ok, g)
		}
	}
	if _, err := textureFormat(gputypes.TextureFormatBC1RGBAUnorm); !errors.Is(err, backend.ErrUnsupportedFormat) {
		t.Errorf("BC1 err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestVertexBufferLayout(t *testing.T) {
	l, err := vertexBufferLayout(model.StandardLayout())
	if err != nil {
		t.Fatalf("vertexBufferLayout: %v", err)
	}
	if l.ArrayStride != 32 {
		t.Errorf("stride = %d, want 32", l.ArrayStride)
	}
	want := []wgpu.VertexAttribute{
		{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
		{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
	}
	if len(l.Attributes) != len(want) {
		t.Fatalf("got %d attributes, want %d", len(l.Attributes), len(want))
	}
	for i := range want {
		if l.Attributes[i] != want[i] {
			t.Errorf("attribute %d = %+v, want %+v", i, l.Attributes[i], want[i])
		}
	}
}

func TestLayoutEntry(t *testing.T) {
	frag := wgpu.ShaderStageFragment
	tests := []struct {
		name  string
		kind  shader.BindingKind
		check func(e wgpu.BindGroupLayoutEntry) bool
	}{
		{"uniform", shader.BindingKindUniform, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Buffer.Type == wgpu.BufferBindingTypeUniform && e.Buffer.MinBindingSize == 64
		}},
		{"storage", shader.BindingKindStorage, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Buffer.Type == wgpu.BufferBindingTypeReadOnlyStorage
		}},
		{"unfilterable", shader.BindingKindUnfilterableTexture, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Texture.SampleType == wgpu.TextureSampleTypeUnfilterableFloat
		}},
		{"depth array", shader.BindingKindDepthTextureArray, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Texture.SampleType == wgpu.TextureSampleTypeDepth &&
				e.Texture.ViewDimension == wgpu.TextureViewDimension2DArray
		}},
		{"comparison", shader.BindingKindComparisonSampler, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Sampler.Type == wgpu.SamplerBindingTypeComparison
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := layoutEntry(3, tt.kind, frag, false, 64)
			if e.Binding != 3 || e.Visibility != frag {
				t.Fatalf("binding %d visibility %v", e.Binding, e.Visibility)
			}
			if !tt.check(e) {
				t.Errorf("unexpected entry %+v", e)
			}
		})
	}
	if e := layoutEntry(0, shader.BindingKindUniform, wgpu.ShaderStageVertex, true, 160); !e.Buffer.HasDynamicOffset {
		t.Error("locals entry has no dynamic offset")
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ n, align, want uint64 }{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{160, 16, 160},
		{161, 16, 176},
	}
	for _, tt := range tests {
		if got := alignUp(tt.n, tt.align); got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}

func TestPresentMode(t *testing.T) {
	if PresentModeVSync.native() != wgpu.PresentModeFifo {
		t.Error("vsync is not fifo")
	}
	if PresentModeUncapped.native() != wgpu.PresentModeImmediate {
		t.Error("uncapped is not immediate")
	}
}
