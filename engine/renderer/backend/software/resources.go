package software

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// object is the state shared by every software resource.
type object struct {
	dev      *device
	label    string
	released bool
}

func (o *object) Label() string {
	return o.label
}

type target struct {
	object
	desc backend.TargetDescriptor
	tex  *Texture
}

var _ backend.Target = &target{}

func (t *target) Descriptor() backend.TargetDescriptor {
	return t.desc
}

// Texture returns the storage of the target.
func (t *target) Texture() *Texture {
	return t.tex
}

type shaderObject struct {
	object
	spec     shader.Spec
	iface    shader.Interface
	vertex   VertexProgram
	fragment FragmentProgram
}

var _ backend.Shader = &shaderObject{}

func (s *shaderObject) Spec() shader.Spec {
	return s.spec
}

func (s *shaderObject) Interface() shader.Interface {
	return s.iface
}

type pipelineObject struct {
	object
	decl     pipeline.Pipeline
	cfg      pipeline.Config
	vertex   VertexProgram
	fragment FragmentProgram
	varyings int
}

var _ backend.Pipeline = &pipelineObject{}

func (p *pipelineObject) Declaration() pipeline.Pipeline {
	return p.decl
}

type meshObject struct {
	object
	mesh     model.Mesh
	vertices []model.Vertex
	indices  []uint32
}

var _ backend.Mesh = &meshObject{}

func (m *meshObject) Source() model.Mesh {
	return m.mesh
}

type samplerObject struct {
	object
	desc common.SamplerStagingData
}

var _ backend.Sampler = &samplerObject{}

func (s *samplerObject) Descriptor() common.SamplerStagingData {
	return s.desc
}
