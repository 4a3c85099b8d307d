package webgpu

import (
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// uniformAlignment is the size granularity of uniform bindings.
const uniformAlignment = 16

func (d *device) ownShader(s backend.Shader) (*shaderObject, error) {
	obj, ok := s.(*shaderObject)
	if !ok || obj.dev != d {
		return nil, backend.ErrForeignResource
	}
	if obj.released {
		return nil, fmt.Errorf("webgpu: shader %s: %w", obj.label, backend.ErrReleased)
	}
	return obj, nil
}

// CreatePipeline builds the bind group layouts, the pipeline layout and the render pipeline of a
// validated declaration. Groups without slots get an empty layout and a shared empty bind group.
func (d *device) CreatePipeline(p pipeline.Pipeline, vs, fs backend.Shader) (backend.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	vsObj, err := d.ownShader(vs)
	if err != nil {
		return nil, err
	}
	var fsObj *shaderObject
	if fs != nil {
		if fsObj, err = d.ownShader(fs); err != nil {
			return nil, err
		}
	}

	cfg := p.Config()
	obj := &pipelineObject{object: object{dev: d, label: cfg.Key}, decl: p, cfg: cfg, localsGroup: -1}
	fail := func(err error) (backend.Pipeline, error) {
		obj.releaseLayouts()
		return nil, fmt.Errorf("webgpu: pipeline %s: %w", cfg.Key, err)
	}

	if err := d.createGroups(obj, vsObj, fsObj); err != nil {
		return fail(err)
	}
	if obj.layout, err = d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            cfg.Key,
		BindGroupLayouts: obj.groups,
	}); err != nil {
		return fail(err)
	}
	vbl, err := vertexBufferLayout(cfg.Layout)
	if err != nil {
		return fail(err)
	}

	desc := &wgpu.RenderPipelineDescriptor{
		Label:  cfg.Key,
		Layout: obj.layout,
		Vertex: wgpu.VertexState{
			Module:     vsObj.module,
			EntryPoint: vsObj.spec.EntryPoint,
			Buffers:    []wgpu.VertexBufferLayout{vbl},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: frontFace(cfg.FrontFace),
			CullMode:  cullMode(cfg.Cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if fsObj != nil {
		targets := make([]wgpu.ColorTargetState, 0, len(cfg.Outputs))
		for _, f := range cfg.Outputs {
			native, err := textureFormat(f)
			if err != nil {
				return fail(err)
			}
			targets = append(targets, wgpu.ColorTargetState{Format: native, WriteMask: wgpu.ColorWriteMaskAll})
		}
		desc.Fragment = &wgpu.FragmentState{
			Module:     fsObj.module,
			EntryPoint: fsObj.spec.EntryPoint,
			Targets:    targets,
		}
	}
	if cfg.Depth != nil {
		native, err := textureFormat(cfg.Depth.Format)
		if err != nil {
			return fail(err)
		}
		compare := compareFunction(cfg.Depth.Compare)
		if compare == wgpu.CompareFunctionUndefined {
			compare = wgpu.CompareFunctionAlways
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:              native,
			DepthWriteEnabled:   cfg.Depth.Write,
			DepthCompare:        compare,
			DepthBias:           cfg.Depth.Bias,
			DepthBiasSlopeScale: cfg.Depth.SlopeScale,
			StencilFront:        wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:         wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	}
	if obj.render, err = d.dev.CreateRenderPipeline(desc); err != nil {
		return fail(err)
	}
	d.track(obj)
	d.logger.Debug("webgpu pipeline created", "pipeline", cfg.Key, "groups", len(obj.groups))
	return obj, nil
}

// createGroups creates one bind group layout per group index up to the highest slot group.
// Each entry is visible to the stages whose reflected interface declares it.
func (d *device) createGroups(obj *pipelineObject, vs, fs *shaderObject) error {
	byGroup := map[uint32][]pipeline.Slot{}
	var top uint32
	for _, s := range obj.cfg.Bindings {
		byGroup[s.Group] = append(byGroup[s.Group], s)
		top = max(top, s.Group+1)
	}
	obj.empty = map[uint32]*wgpu.BindGroup{}
	for g := range top {
		slots := byGroup[g]
		slices.SortFunc(slots, func(a, b pipeline.Slot) int { return int(a.Binding) - int(b.Binding) })
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(slots))
		for _, s := range slots {
			var vis wgpu.ShaderStage
			if _, ok := vs.iface.Binding(s.Group, s.Binding); ok {
				vis |= wgpu.ShaderStageVertex
			}
			if fs != nil {
				if _, ok := fs.iface.Binding(s.Group, s.Binding); ok {
					vis |= wgpu.ShaderStageFragment
				}
			}
			locals := s.Name == builtin.SlotLocals
			if locals {
				if len(slots) > 1 {
					return fmt.Errorf("group %d: slot %s must be alone in its group", g, s.Name)
				}
				obj.localsGroup, obj.localsBinding = int(g), s.Binding
			}
			entries = append(entries, layoutEntry(s.Binding, s.Kind, vis, locals, minBindingSize(s, vs, fs)))
		}
		layout, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s group %d", obj.cfg.Key, g),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("group %d layout: %w", g, err)
		}
		obj.groups = append(obj.groups, layout)
		if len(entries) == 0 {
			bg, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
				Label:  fmt.Sprintf("%s group %d", obj.cfg.Key, g),
				Layout: layout,
			})
			if err != nil {
				return fmt.Errorf("group %d: %w", g, err)
			}
			obj.empty[g] = bg
		}
	}
	return nil
}

// minBindingSize is the reflected size of a uniform binding, zero when unknown.
func minBindingSize(s pipeline.Slot, vs, fs *shaderObject) uint64 {
	if s.Kind != shader.BindingKindUniform {
		return 0
	}
	for _, obj := range []*shaderObject{vs, fs} {
		if obj == nil {
			continue
		}
		if b, ok := obj.iface.Binding(s.Group, s.Binding); ok && b.Size > 0 {
			return alignUp(uint64(b.Size), uniformAlignment)
		}
	}
	return 0
}
