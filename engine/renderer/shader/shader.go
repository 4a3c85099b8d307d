package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Reflection errors.
var (
	// ErrEntryPointNotFound is returned when the named entry point does not exist in the module.
	ErrEntryPointNotFound = errors.New("shader: entry point not found")

	// ErrStageMismatch is returned when the entry point exists but belongs to a different stage.
	ErrStageMismatch = errors.New("shader: entry point stage mismatch")

	// ErrUnsupportedStage is returned for stages other than vertex and fragment.
	ErrUnsupportedStage = errors.New("shader: unsupported stage")
)

// ParseError wraps a failure to parse, lower or validate WGSL source.
type ParseError struct {
	// Key is the shader key.
	Key string
	// Phase is the failing step: "preprocess", "parse", "lower" or "validate".
	Phase string
	// Err is the underlying error.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("shader: %s: %s failed: %v", e.Key, e.Phase, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Spec identifies one shader stage: WGSL source and the entry point to run.
type Spec struct {
	// Key uniquely identifies the shader. The software backend resolves its Go program by key.
	Key string
	// Stage is either gputypes.ShaderStageVertex or gputypes.ShaderStageFragment.
	Stage gputypes.ShaderStage
	// Source is the processed WGSL source, free of @oxy annotations.
	Source string
	// EntryPoint is the name of the entry function.
	EntryPoint string
}

// Empty reports whether the spec names no shader. Depth-only pipelines leave their fragment spec empty.
func (s Spec) Empty() bool {
	return s.Key == "" && s.Source == ""
}

// NewSpec runs the pre-processor over raw WGSL source and returns the resulting Spec.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - stage: the pipeline stage the entry point runs in
//   - source: WGSL source, possibly containing @oxy annotations
//   - entryPoint: the name of the entry function
//
// Returns:
//   - Spec: the processed shader spec
//   - error: a *ParseError if an annotation is malformed
func NewSpec(key string, stage gputypes.ShaderStage, source, entryPoint string) (Spec, error) {
	processed, err := NewPreProcessor().Process(source)
	if err != nil {
		return Spec{}, &ParseError{Key: key, Phase: "preprocess", Err: err}
	}
	return Spec{Key: key, Stage: stage, Source: processed, EntryPoint: entryPoint}, nil
}

// MustSpec is like NewSpec but panics on error. Used for embedded engine shaders.
func MustSpec(key string, stage gputypes.ShaderStage, source, entryPoint string) Spec {
	s, err := NewSpec(key, stage, source, entryPoint)
	if err != nil {
		panic(err)
	}
	return s
}

// BindingKind classifies a resource binding.
type BindingKind int

const (
	// BindingKindUniform is a var<uniform> buffer.
	BindingKindUniform BindingKind = iota
	// BindingKindStorage is a read-only var<storage> buffer.
	BindingKindStorage
	// BindingKindTexture is a sampled 2D float texture.
	BindingKindTexture
	// BindingKindUnfilterableTexture is a 2D float texture only read with textureLoad.
	// Reflection reports such textures as BindingKindTexture.
	BindingKindUnfilterableTexture
	// BindingKindDepthTexture is a texture_depth_2d.
	BindingKindDepthTexture
	// BindingKindDepthTextureArray is a texture_depth_2d_array.
	BindingKindDepthTextureArray
	// BindingKindSampler is a filtering sampler.
	BindingKindSampler
	// BindingKindComparisonSampler is a sampler_comparison.
	BindingKindComparisonSampler
)

// String returns the kind name.
func (k BindingKind) String() string {
	switch k {
	case BindingKindUniform:
		return "uniform"
	case BindingKindStorage:
		return "storage"
	case BindingKindTexture:
		return "texture"
	case BindingKindUnfilterableTexture:
		return "unfilterable_texture"
	case BindingKindDepthTexture:
		return "depth_texture"
	case BindingKindDepthTextureArray:
		return "depth_texture_array"
	case BindingKindSampler:
		return "sampler"
	case BindingKindComparisonSampler:
		return "comparison_sampler"
	default:
		return "unknown"
	}
}

// Compatible reports whether a slot declared with kind k can serve a shader binding of kind other.
// Sampled and unfilterable 2D textures share a WGSL type, so they are interchangeable.
func (k BindingKind) Compatible(other BindingKind) bool {
	if k == other {
		return true
	}
	tex := func(b BindingKind) bool {
		return b == BindingKindTexture || b == BindingKindUnfilterableTexture
	}
	return tex(k) && tex(other)
}

// IsTexture reports whether the kind binds a texture view.
func (k BindingKind) IsTexture() bool {
	switch k {
	case BindingKindTexture, BindingKindUnfilterableTexture, BindingKindDepthTexture, BindingKindDepthTextureArray:
		return true
	}
	return false
}

// IsSampler reports whether the kind binds a sampler.
func (k BindingKind) IsSampler() bool {
	return k == BindingKindSampler || k == BindingKindComparisonSampler
}

// IsBuffer reports whether the kind binds a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingKindUniform || k == BindingKindStorage
}

// Value is a user-defined stage input or output at a location. Its shape is expressed as the
// vertex format of the same component type and count (vec3<f32> is Float32x3).
type Value struct {
	// Name is the argument or struct member name.
	Name string
	// Location is the @location index.
	Location uint32
	// Format is the component type and count.
	Format gputypes.VertexFormat
}

// Binding is a resource variable declared with @group/@binding.
type Binding struct {
	// Name is the WGSL variable name.
	Name string
	// Group is the bind group index.
	Group uint32
	// Binding is the binding index within the group.
	Binding uint32
	// Kind is the resource class.
	Kind BindingKind
	// Size is the buffer size in bytes for uniform bindings, the element stride for runtime-sized
	// storage arrays, and 0 for textures and samplers.
	Size uint32
}

// Interface is the reflected interface of one entry point.
type Interface struct {
	// Key is the shader key.
	Key string
	// Stage is the entry point stage.
	Stage gputypes.ShaderStage
	// EntryPoint is the entry function name.
	EntryPoint string
	// Inputs are the user-defined inputs: vertex attributes for vertex shaders, varyings for fragment shaders.
	Inputs []Value
	// Outputs are the user-defined outputs: varyings for vertex shaders, color targets for fragment shaders.
	Outputs []Value
	// Bindings are the resources the entry point or its helpers reference, ordered by group then binding.
	Bindings []Binding
}

// Input returns the input at a location.
func (i Interface) Input(location uint32) (Value, bool) {
	return findValue(i.Inputs, location)
}

// Output returns the output at a location.
func (i Interface) Output(location uint32) (Value, bool) {
	return findValue(i.Outputs, location)
}

// Binding returns the binding at a group and binding index.
func (i Interface) Binding(group, binding uint32) (Binding, bool) {
	for _, b := range i.Bindings {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return Binding{}, false
}

func findValue(values []Value, location uint32) (Value, bool) {
	for _, v := range values {
		if v.Location == location {
			return v, true
		}
	}
	return Value{}, false
}
