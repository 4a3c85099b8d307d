package pipeline

import (
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a pipeline Config during construction.
type PipelineBuilderOption func(*Config)

// NewConfig creates a pipeline Config with the given key and options applied. The defaults are
// the standard vertex layout, counter-clockwise front faces and no culling.
//
// Parameters:
//   - key: the unique pipeline key
//   - options: functional options to configure the pipeline
//
// Returns:
//   - Config: the config, not yet validated
func NewConfig(key string, options ...PipelineBuilderOption) Config {
	c := Config{
		Key:       key,
		Layout:    model.StandardLayout(),
		FrontFace: gputypes.FrontFaceCCW,
		Cull:      gputypes.CullModeNone,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - s: the vertex shader spec
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader
func WithVertexShader(s shader.Spec) PipelineBuilderOption {
	return func(c *Config) {
		c.Vertex = s
	}
}

// WithFragmentShader sets the fragment shader for this pipeline.
//
// Parameters:
//   - s: the fragment shader spec
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader
func WithFragmentShader(s shader.Spec) PipelineBuilderOption {
	return func(c *Config) {
		c.Fragment = s
	}
}

// WithVertexLayout sets the vertex buffer layout.
//
// Parameters:
//   - layout: the layout
//
// Returns:
//   - PipelineBuilderOption: a function that sets the layout
func WithVertexLayout(layout model.VertexLayout) PipelineBuilderOption {
	return func(c *Config) {
		c.Layout = layout
	}
}

// WithColorTargets sets the color target formats in location order.
//
// Parameters:
//   - formats: one format per fragment output location
//
// Returns:
//   - PipelineBuilderOption: a function that sets the color targets
func WithColorTargets(formats ...gputypes.TextureFormat) PipelineBuilderOption {
	return func(c *Config) {
		c.Outputs = append([]gputypes.TextureFormat(nil), formats...)
	}
}

// WithDepth enables a depth attachment.
//
// Parameters:
//   - format: the depth format
//   - compare: the depth test function
//   - write: whether passing fragments write depth
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth state
func WithDepth(format gputypes.TextureFormat, compare gputypes.CompareFunction, write bool) PipelineBuilderOption {
	return func(c *Config) {
		if c.Depth == nil {
			c.Depth = &DepthState{}
		}
		c.Depth.Format = format
		c.Depth.Compare = compare
		c.Depth.Write = write
	}
}

// WithDepthBias sets the constant and slope-scaled depth bias. Has no effect without WithDepth
// applied first.
//
// Parameters:
//   - bias: the constant bias in depth steps
//   - slopeScale: the slope factor
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth bias
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(c *Config) {
		if c.Depth == nil {
			return
		}
		c.Depth.Bias = bias
		c.Depth.SlopeScale = slopeScale
	}
}

// WithCullMode sets the face culling mode.
func WithCullMode(mode gputypes.CullMode) PipelineBuilderOption {
	return func(c *Config) {
		c.Cull = mode
	}
}

// WithFrontFace sets the front face winding.
func WithFrontFace(face gputypes.FrontFace) PipelineBuilderOption {
	return func(c *Config) {
		c.FrontFace = face
	}
}

// WithSlot appends a binding slot.
//
// Parameters:
//   - name: the slot name passes bind by
//   - semantic: a description of the bound resource
//   - group: the bind group index
//   - binding: the binding index
//   - kind: the resource class
//
// Returns:
//   - PipelineBuilderOption: a function that appends the slot
func WithSlot(name, semantic string, group, binding uint32, kind shader.BindingKind) PipelineBuilderOption {
	return func(c *Config) {
		c.Bindings = append(c.Bindings, Slot{Name: name, Semantic: semantic, Group: group, Binding: binding, Kind: kind})
	}
}
