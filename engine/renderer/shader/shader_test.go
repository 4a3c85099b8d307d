package shader

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    AnnotationType
		wantNil bool
		wantErr bool
	}{
		{name: "plain code", line: "let x = 1.0;", wantNil: true},
		{name: "plain comment", line: "// nothing to see", wantNil: true},
		{name: "include", line: "//@oxy:include camera", want: annotationTypeInclude},
		{name: "indented include", line: "    // @oxy:include locals", want: annotationTypeInclude},
		{name: "group", line: "//@oxy:group 0 3 storage_read lights array<light>", want: AnnotationTypeBindingGroup},
		{name: "unknown type", line: "//@oxy:provider camera", wantErr: true},
		{name: "unknown struct", line: "//@oxy:include skeleton", wantErr: true},
		{name: "bad group number", line: "//@oxy:group a 0 storage_uniform camera camera", wantErr: true},
		{name: "bad address space", line: "//@oxy:group 0 0 storage_write camera camera", wantErr: true},
		{name: "missing args", line: "//@oxy:group 0 0 storage_uniform camera", wantErr: true},
		{name: "empty", line: "//@oxy:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAnnotation(tt.line, 1)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q", tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if a != nil {
					t.Fatalf("expected no annotation, got %+v", a)
				}
				return
			}
			if a == nil || a.Type != tt.want {
				t.Fatalf("got %+v, want type %s", a, tt.want)
			}
		})
	}
}

func TestPreProcessorExpandsAnnotations(t *testing.T) {
	src := strings.Join([]string{
		"//@oxy:include light",
		"//@oxy:include light",
		"//@oxy:include lighting_params",
		"//@oxy:group 0 3 storage_read lights array<light>",
		"//@oxy:group 0 4 storage_uniform params lighting_params",
		"fn f() {}",
	}, "\n")

	pp := NewPreProcessor()
	out, err := pp.Process(src)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Count(out, "struct Light {") != 1 {
		t.Errorf("Light struct should be injected exactly once:\n%s", out)
	}
	if !strings.Contains(out, "@group(0) @binding(3) var<storage, read> lights: array<Light>;") {
		t.Errorf("missing storage declaration:\n%s", out)
	}
	if !strings.Contains(out, "@group(0) @binding(4) var<uniform> params: LightingParams;") {
		t.Errorf("missing uniform declaration:\n%s", out)
	}
	if strings.Contains(out, "@oxy:") {
		t.Errorf("annotations left in output:\n%s", out)
	}
	decls := pp.Declarations()
	if len(decls) != 2 || *decls[0].Binding != 3 || *decls[1].Binding != 4 {
		t.Errorf("unexpected declarations %+v", decls)
	}
}

func TestNewSpecWrapsPreprocessErrors(t *testing.T) {
	_, err := NewSpec("bad", gputypes.ShaderStageVertex, "//@oxy:include nope", "vs_main")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Phase != "preprocess" {
		t.Fatalf("expected preprocess ParseError, got %v", err)
	}
}

const reflectSource = `
struct Out {
    @builtin(position) clip: vec4<f32>,
    @location(0) color: vec3<f32>,
}

@group(0) @binding(0) var<uniform> tint: vec4<f32>;
@group(0) @binding(1) var unused_tex: texture_2d<f32>;

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(3) id: u32) -> Out {
    var o: Out;
    o.clip = vec4<f32>(position, 1.0);
    o.color = tint.rgb;
    return o;
}

@fragment
fn fs_main(@location(0) color: vec3<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(color, 1.0);
}
`

func TestReflectVertexInterface(t *testing.T) {
	iface, err := Reflect(Spec{Key: "test", Stage: gputypes.ShaderStageVertex, Source: reflectSource, EntryPoint: "vs_main"})
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if in, ok := iface.Input(0); !ok || in.Format != gputypes.VertexFormatFloat32x3 {
		t.Errorf("input 0 = %+v, %v", in, ok)
	}
	if in, ok := iface.Input(3); !ok || in.Format != gputypes.VertexFormatUint32 {
		t.Errorf("input 3 = %+v, %v", in, ok)
	}
	if len(iface.Outputs) != 1 || iface.Outputs[0].Format != gputypes.VertexFormatFloat32x3 {
		t.Errorf("outputs = %+v", iface.Outputs)
	}
	if len(iface.Bindings) != 1 {
		t.Fatalf("bindings = %+v, want only the referenced uniform", iface.Bindings)
	}
	if b := iface.Bindings[0]; b.Name != "tint" || b.Kind != BindingKindUniform || b.Size != 16 {
		t.Errorf("binding = %+v", b)
	}
}

func TestReflectErrors(t *testing.T) {
	_, err := Reflect(Spec{Key: "test", Stage: gputypes.ShaderStageVertex, Source: reflectSource, EntryPoint: "missing"})
	if !errors.Is(err, ErrEntryPointNotFound) {
		t.Errorf("missing entry point: got %v", err)
	}
	_, err = Reflect(Spec{Key: "test", Stage: gputypes.ShaderStageVertex, Source: reflectSource, EntryPoint: "fs_main"})
	if !errors.Is(err, ErrStageMismatch) {
		t.Errorf("stage mismatch: got %v", err)
	}
	_, err = Reflect(Spec{Key: "test", Stage: gputypes.ShaderStageVertex, Source: "fn broken( {", EntryPoint: "vs_main"})
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("syntax error: got %v", err)
	}
}

func TestBindingKindCompatible(t *testing.T) {
	if !BindingKindTexture.Compatible(BindingKindUnfilterableTexture) {
		t.Error("sampled and unfilterable textures should be compatible")
	}
	if BindingKindSampler.Compatible(BindingKindComparisonSampler) {
		t.Error("filtering and comparison samplers must not be compatible")
	}
	if BindingKindDepthTexture.Compatible(BindingKindDepthTextureArray) {
		t.Error("depth texture and depth array must not be compatible")
	}
}
