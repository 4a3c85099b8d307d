package webgpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

type object struct {
	dev      *device
	label    string
	released bool
}

func (o *object) Label() string {
	return o.label
}

func (o *object) markReleased() {
	o.released = true
}

type shaderObject struct {
	object
	spec   shader.Spec
	iface  shader.Interface
	module *wgpu.ShaderModule
}

var _ backend.Shader = &shaderObject{}

func (s *shaderObject) Spec() shader.Spec {
	return s.spec
}

func (s *shaderObject) Interface() shader.Interface {
	return s.iface
}

func (s *shaderObject) release() {
	s.module.Release()
}

// pipelineObject holds the render pipeline and one bind group layout per group index. The
// locals group, when present, is bound with a dynamic offset.
type pipelineObject struct {
	object
	decl          pipeline.Pipeline
	cfg           pipeline.Config
	render        *wgpu.RenderPipeline
	layout        *wgpu.PipelineLayout
	groups        []*wgpu.BindGroupLayout
	empty         map[uint32]*wgpu.BindGroup
	localsGroup   int
	localsBinding uint32
}

var _ backend.Pipeline = &pipelineObject{}

func (p *pipelineObject) Declaration() pipeline.Pipeline {
	return p.decl
}

func (p *pipelineObject) release() {
	if p.render != nil {
		p.render.Release()
		p.render = nil
	}
	p.releaseLayouts()
}

// releaseLayouts releases everything CreatePipeline made before the render pipeline.
func (p *pipelineObject) releaseLayouts() {
	for _, bg := range p.empty {
		bg.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	for _, g := range p.groups {
		g.Release()
	}
	p.empty, p.layout, p.groups = nil, nil, nil
}

// target is a texture with a full view for sampling and one view per layer for attachments.
// The surface target has no texture of its own; its view is the swapchain view of the open
// frame.
type target struct {
	object
	desc    backend.TargetDescriptor
	format  wgpu.TextureFormat
	texture *wgpu.Texture
	view    *wgpu.TextureView
	layers  []*wgpu.TextureView
	surface bool
}

var _ backend.Target = &target{}

func (t *target) Descriptor() backend.TargetDescriptor {
	return t.desc
}

// attachment returns the view rendering into one layer.
func (t *target) attachment(layer uint32) *wgpu.TextureView {
	if t.surface {
		return t.dev.frameView
	}
	return t.layers[layer]
}

func (t *target) release() {
	for _, v := range t.layers {
		v.Release()
	}
	if t.view != nil {
		t.view.Release()
	}
	if t.texture != nil {
		t.texture.Release()
	}
	t.layers, t.view, t.texture = nil, nil, nil
}

type meshObject struct {
	object
	mesh     model.Mesh
	vertices *wgpu.Buffer
	indices  *wgpu.Buffer
	count    uint32
}

var _ backend.Mesh = &meshObject{}

func (m *meshObject) Source() model.Mesh {
	return m.mesh
}

func (m *meshObject) release() {
	m.vertices.Release()
	if m.indices != nil {
		m.indices.Release()
	}
}

type samplerObject struct {
	object
	desc    common.SamplerStagingData
	sampler *wgpu.Sampler
}

var _ backend.Sampler = &samplerObject{}

func (s *samplerObject) Descriptor() common.SamplerStagingData {
	return s.desc
}

func (s *samplerObject) release() {
	s.sampler.Release()
}

// releaser is implemented by every object the device owns.
type releaser interface {
	backend.Resource
	markReleased()
	release()
}
