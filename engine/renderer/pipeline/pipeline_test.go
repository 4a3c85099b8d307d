package pipeline

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

func vertexIface() shader.Interface {
	return shader.Interface{
		Key:   "vs",
		Stage: gputypes.ShaderStageVertex,
		Inputs: []shader.Value{
			{Name: "position", Location: 0, Format: gputypes.VertexFormatFloat32x3},
			{Name: "normal", Location: 1, Format: gputypes.VertexFormatFloat32x3},
		},
		Outputs: []shader.Value{
			{Name: "world_normal", Location: 0, Format: gputypes.VertexFormatFloat32x3},
		},
		Bindings: []shader.Binding{
			{Name: "camera", Group: 0, Binding: 0, Kind: shader.BindingKindUniform, Size: 144},
		},
	}
}

func fragmentIface() *shader.Interface {
	return &shader.Interface{
		Key:    "fs",
		Stage:  gputypes.ShaderStageFragment,
		Inputs: []shader.Value{{Name: "world_normal", Location: 0, Format: gputypes.VertexFormatFloat32x3}},
		Outputs: []shader.Value{
			{Name: "color", Location: 0, Format: gputypes.VertexFormatFloat32x4},
		},
		Bindings: []shader.Binding{
			{Name: "albedo", Group: 0, Binding: 1, Kind: shader.BindingKindTexture},
		},
	}
}

func baseOptions() []PipelineBuilderOption {
	return []PipelineBuilderOption{
		WithVertexShader(shader.Spec{Key: "vs", Source: "x"}),
		WithFragmentShader(shader.Spec{Key: "fs", Source: "x"}),
		WithColorTargets(gputypes.TextureFormatRGBA8Unorm),
		WithDepth(gputypes.TextureFormatDepth32Float, gputypes.CompareFunctionLess, true),
		WithSlot("camera", "camera uniform", 0, 0, shader.BindingKindUniform),
		WithSlot("albedo", "albedo texture", 0, 1, shader.BindingKindUnfilterableTexture),
	}
}

func TestValidConfig(t *testing.T) {
	p, err := New(NewConfig("ok", baseOptions()...), vertexIface(), fragmentIface())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.DepthFormat() != gputypes.TextureFormatDepth32Float {
		t.Errorf("depth format = %s", p.DepthFormat())
	}
	formats := p.ColorFormats()
	formats[0] = gputypes.TextureFormatR8Unorm
	if p.ColorFormats()[0] != gputypes.TextureFormatRGBA8Unorm {
		t.Error("ColorFormats must return a copy")
	}
	if s, ok := p.Slot("albedo"); !ok || s.Binding != 1 {
		t.Errorf("slot lookup = %+v, %v", s, ok)
	}
}

func TestValidateMismatches(t *testing.T) {
	tests := []struct {
		name  string
		extra []PipelineBuilderOption
		vs    func(*shader.Interface)
		fs    func(*shader.Interface)
		field string
	}{
		{
			name:  "missing layout attribute",
			extra: []PipelineBuilderOption{WithVertexLayout(model.StandardLayout().Subset(0))},
			field: "normal",
		},
		{
			name: "incompatible attribute format",
			vs: func(i *shader.Interface) {
				i.Inputs[0].Format = gputypes.VertexFormatUint32x3
			},
			field: "position",
		},
		{
			name: "varying not written",
			fs: func(i *shader.Interface) {
				i.Inputs[0].Location = 4
			},
			field: "world_normal",
		},
		{
			name:  "output count",
			extra: []PipelineBuilderOption{WithColorTargets(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8Unorm)},
			field: "outputs",
		},
		{
			name:  "output class",
			extra: []PipelineBuilderOption{WithColorTargets(gputypes.TextureFormatRGBA8Uint)},
			field: "color",
		},
		{
			name: "binding kind",
			fs: func(i *shader.Interface) {
				i.Bindings[0].Kind = shader.BindingKindSampler
			},
			field: "albedo",
		},
		{
			name:  "unused slot",
			extra: []PipelineBuilderOption{WithSlot("extra", "unused", 2, 0, shader.BindingKindUniform)},
			field: "extra",
		},
		{
			name:  "duplicate slot",
			extra: []PipelineBuilderOption{WithSlot("again", "dup", 0, 0, shader.BindingKindUniform)},
			field: "again",
		},
		{
			name: "unslotted binding",
			vs: func(i *shader.Interface) {
				i.Bindings = append(i.Bindings, shader.Binding{Name: "lights", Group: 1, Binding: 0, Kind: shader.BindingKindStorage})
			},
			field: "lights",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := vertexIface()
			fs := fragmentIface()
			if tt.vs != nil {
				tt.vs(&vs)
			}
			if tt.fs != nil {
				tt.fs(fs)
			}
			cfg := NewConfig("bad", append(baseOptions(), tt.extra...)...)
			_, err := New(cfg, vs, fs)
			var mm *InterfaceMismatchError
			if !errors.As(err, &mm) {
				t.Fatalf("expected InterfaceMismatchError, got %v", err)
			}
			if mm.Field != tt.field {
				t.Errorf("field = %q, want %q (%v)", mm.Field, tt.field, err)
			}
		})
	}
}

func TestDepthOnlyRules(t *testing.T) {
	vs := vertexIface()
	vs.Outputs = nil
	vs.Inputs = vs.Inputs[:1]
	base := []PipelineBuilderOption{
		WithVertexShader(shader.Spec{Key: "shadow", Source: "x"}),
		WithVertexLayout(model.StandardLayout().Subset(0)),
		WithSlot("camera", "camera", 0, 0, shader.BindingKindUniform),
	}

	if _, err := New(NewConfig("no-depth", base...), vs, nil); err == nil {
		t.Error("depth-only pipeline without depth format must fail")
	}

	withTargets := append(append([]PipelineBuilderOption{}, base...),
		WithDepth(gputypes.TextureFormatDepth32Float, gputypes.CompareFunctionLess, true),
		WithColorTargets(gputypes.TextureFormatRGBA8Unorm))
	if _, err := New(NewConfig("targets", withTargets...), vs, nil); err == nil {
		t.Error("depth-only pipeline with color targets must fail")
	}

	ok := append(append([]PipelineBuilderOption{}, base...),
		WithDepth(gputypes.TextureFormatDepth32Float, gputypes.CompareFunctionLess, true),
		WithDepthBias(2, 1.5))
	p, err := New(NewConfig("shadow", ok...), vs, nil)
	if err != nil {
		t.Fatalf("valid depth-only pipeline: %v", err)
	}
	if _, has := p.FragmentInterface(); has {
		t.Error("depth-only pipeline should have no fragment interface")
	}
	if d := p.Config().Depth; d.Bias != 2 || d.SlopeScale != 1.5 {
		t.Errorf("depth bias = %+v", d)
	}
}

func TestConfigCloneIsDeep(t *testing.T) {
	cfg := NewConfig("c", baseOptions()...)
	clone := cfg.Clone()
	clone.Bindings[0].Name = "changed"
	clone.Depth.Write = false
	if cfg.Bindings[0].Name != "camera" || !cfg.Depth.Write {
		t.Error("Clone shares state with the original")
	}
}
