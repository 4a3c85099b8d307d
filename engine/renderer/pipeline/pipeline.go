package pipeline

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// InterfaceMismatchError reports a pipeline config that does not agree with the declared
// interface of its shaders.
type InterfaceMismatchError struct {
	// Pipeline is the pipeline key.
	Pipeline string
	// Stage is "vertex", "fragment" or "config".
	Stage string
	// Field names the offending input, output, binding or slot.
	Field string
	// Reason describes the disagreement.
	Reason string
}

func (e *InterfaceMismatchError) Error() string {
	return fmt.Sprintf("pipeline: %s: %s %s: %s", e.Pipeline, e.Stage, e.Field, e.Reason)
}

// DepthState configures the depth attachment of a pipeline.
type DepthState struct {
	// Format is the depth target format.
	Format gputypes.TextureFormat
	// Compare is the depth test. CompareFunctionUndefined disables the test.
	Compare gputypes.CompareFunction
	// Write enables depth writes.
	Write bool
	// Bias is the constant depth bias in units of the smallest depth step.
	Bias int32
	// SlopeScale scales the bias by the fragment's depth slope.
	SlopeScale float32
}

// Slot is a named binding slot of a pipeline. Passes bind resources by slot name; the slot maps
// the name onto a group and binding index of the shaders.
type Slot struct {
	// Name is the handle passes bind by.
	Name string
	// Semantic describes what the slot carries, for diagnostics.
	Semantic string
	// Group is the bind group index.
	Group uint32
	// Binding is the binding index within the group.
	Binding uint32
	// Kind is the resource class the slot accepts.
	Kind shader.BindingKind
}

// Config is the full declaration of a render pipeline: its shaders, vertex input layout,
// output formats, fixed-function state and binding slots.
type Config struct {
	// Key uniquely identifies the pipeline.
	Key string
	// Vertex is the vertex shader.
	Vertex shader.Spec
	// Fragment is the fragment shader, empty for depth-only pipelines.
	Fragment shader.Spec
	// Layout is the vertex buffer layout.
	Layout model.VertexLayout
	// Outputs are the color target formats, indexed by fragment output location.
	Outputs []gputypes.TextureFormat
	// Depth is the depth state, nil for pipelines without a depth attachment.
	Depth *DepthState
	// Cull selects which faces are discarded.
	Cull gputypes.CullMode
	// FrontFace selects the winding of front faces.
	FrontFace gputypes.FrontFace
	// Bindings are the binding slots.
	Bindings []Slot
}

// DepthOnly reports whether the pipeline has no fragment stage.
func (c Config) DepthOnly() bool {
	return c.Fragment.Empty()
}

// DepthFormat returns the depth format, or TextureFormatUndefined without a depth attachment.
func (c Config) DepthFormat() gputypes.TextureFormat {
	if c.Depth == nil {
		return gputypes.TextureFormatUndefined
	}
	return c.Depth.Format
}

// Slot returns the slot with the given name.
//
// Parameters:
//   - name: the slot name
//
// Returns:
//   - Slot: the slot
//   - bool: false if no slot has that name
func (c Config) Slot(name string) (Slot, bool) {
	for _, s := range c.Bindings {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	out := c
	out.Layout.Attributes = slices.Clone(c.Layout.Attributes)
	out.Outputs = slices.Clone(c.Outputs)
	out.Bindings = slices.Clone(c.Bindings)
	if c.Depth != nil {
		d := *c.Depth
		out.Depth = &d
	}
	return out
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	cfg Config
	vs  shader.Interface
	fs  *shader.Interface
}

// Pipeline is an immutable, validated pipeline declaration together with the reflected
// interfaces of its shaders. Backends build their native pipeline state objects from it.
type Pipeline interface {
	// Key returns the unique key of the pipeline.
	//
	// Returns:
	//   - string: the pipeline key
	Key() string

	// Config returns a copy of the pipeline config.
	//
	// Returns:
	//   - Config: the config
	Config() Config

	// VertexInterface returns the reflected interface of the vertex shader.
	//
	// Returns:
	//   - shader.Interface: the vertex interface
	VertexInterface() shader.Interface

	// FragmentInterface returns the reflected interface of the fragment shader.
	//
	// Returns:
	//   - shader.Interface: the fragment interface
	//   - bool: false for depth-only pipelines
	FragmentInterface() (shader.Interface, bool)

	// ColorFormats returns the declared color target formats in location order.
	//
	// Returns:
	//   - []gputypes.TextureFormat: a copy of the formats
	ColorFormats() []gputypes.TextureFormat

	// DepthFormat returns the declared depth format.
	//
	// Returns:
	//   - gputypes.TextureFormat: the format, or TextureFormatUndefined without depth
	DepthFormat() gputypes.TextureFormat

	// Slot looks up a binding slot by name.
	//
	// Parameters:
	//   - name: the slot name
	//
	// Returns:
	//   - Slot: the slot
	//   - bool: false if the pipeline has no such slot
	Slot(name string) (Slot, bool)
}

var _ Pipeline = &pipeline{}

// New validates a config against the reflected interfaces of its shaders and returns the
// immutable pipeline.
//
// Parameters:
//   - cfg: the pipeline config
//   - vs: the reflected vertex interface
//   - fs: the reflected fragment interface, nil for depth-only pipelines
//
// Returns:
//   - Pipeline: the validated pipeline
//   - error: an *InterfaceMismatchError when the config and shaders disagree
func New(cfg Config, vs shader.Interface, fs *shader.Interface) (Pipeline, error) {
	if err := cfg.Validate(vs, fs); err != nil {
		return nil, err
	}
	p := &pipeline{cfg: cfg.Clone(), vs: vs}
	if fs != nil {
		f := *fs
		p.fs = &f
	}
	return p, nil
}

func (p *pipeline) Key() string {
	return p.cfg.Key
}

func (p *pipeline) Config() Config {
	return p.cfg.Clone()
}

func (p *pipeline) VertexInterface() shader.Interface {
	return p.vs
}

func (p *pipeline) FragmentInterface() (shader.Interface, bool) {
	if p.fs == nil {
		return shader.Interface{}, false
	}
	return *p.fs, true
}

func (p *pipeline) ColorFormats() []gputypes.TextureFormat {
	return slices.Clone(p.cfg.Outputs)
}

func (p *pipeline) DepthFormat() gputypes.TextureFormat {
	return p.cfg.DepthFormat()
}

func (p *pipeline) Slot(name string) (Slot, bool) {
	return p.cfg.Slot(name)
}
