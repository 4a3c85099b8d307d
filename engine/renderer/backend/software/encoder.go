package software

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// passEncoder records the draws of one pass into the open frame.
type passEncoder struct {
	dev        *device
	label      string
	pipe       *pipelineObject
	colors     []colorTarget
	depth      *Texture
	depthLayer int
	width      int
	height     int
	bindings   map[string]backend.Binding
	ended      bool
}

var _ backend.PassEncoder = &passEncoder{}

func (d *device) BeginPass(desc backend.PassDescriptor) (backend.PassEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if d.frame == nil {
		return nil, backend.ErrNoFrame
	}
	if d.frame.pass != nil {
		return nil, backend.ErrPassInProgress
	}

	enc := &passEncoder{dev: d, label: desc.Label, bindings: make(map[string]backend.Binding), width: -1}
	if desc.Pipeline != nil {
		p, ok := desc.Pipeline.(*pipelineObject)
		if !ok || p.dev != d {
			return nil, backend.ErrForeignResource
		}
		if p.released {
			return nil, fmt.Errorf("software: pipeline %s: %w", p.label, backend.ErrReleased)
		}
		enc.pipe = p
	}

	attach := func(t backend.Target, layer uint32) (*target, error) {
		tg, err := d.ownTarget(t)
		if err != nil {
			return nil, err
		}
		if tg == d.surface && d.surfaceLost {
			return nil, backend.ErrSurfaceLost
		}
		if int(layer) >= tg.tex.Layers() {
			return nil, fmt.Errorf("software: pass %s: target %s layer %d of %d: %w",
				desc.Label, tg.label, layer, tg.tex.Layers(), backend.ErrLimitExceeded)
		}
		if enc.width < 0 {
			enc.width, enc.height = tg.tex.Width(), tg.tex.Height()
		} else if enc.width != tg.tex.Width() || enc.height != tg.tex.Height() {
			return nil, fmt.Errorf("software: pass %s: target %s is %dx%d, pass is %dx%d: %w",
				desc.Label, tg.label, tg.tex.Width(), tg.tex.Height(), enc.width, enc.height, ErrAttachmentMismatch)
		}
		return tg, nil
	}

	var clears []func()
	for i, c := range desc.Colors {
		tg, err := attach(c.Target, c.Layer)
		if err != nil {
			return nil, err
		}
		if tg.desc.Format.HasDepth() {
			return nil, fmt.Errorf("software: pass %s: color attachment %d is a depth target: %w",
				desc.Label, i, ErrAttachmentMismatch)
		}
		enc.colors = append(enc.colors, colorTarget{tex: tg.tex, layer: int(c.Layer)})
		if c.Clear {
			tex, layer, value := tg.tex, int(c.Layer), clearColor(c.ClearValue)
			clears = append(clears, func() { tex.fill(layer, value) })
		}
	}
	if desc.Depth != nil {
		tg, err := attach(desc.Depth.Target, desc.Depth.Layer)
		if err != nil {
			return nil, err
		}
		if !tg.desc.Format.HasDepth() {
			return nil, fmt.Errorf("software: pass %s: depth attachment %s has format %s: %w",
				desc.Label, tg.label, tg.desc.Format, ErrAttachmentMismatch)
		}
		enc.depth, enc.depthLayer = tg.tex, int(desc.Depth.Layer)
		if desc.Depth.Clear {
			tex, layer := tg.tex, int(desc.Depth.Layer)
			value := desc.Depth.ClearDepth
			clears = append(clears, func() { tex.fill(layer, mgl32.Vec4{value, 0, 0, 0}) })
		}
	}
	if enc.pipe != nil {
		if err := enc.checkPipeline(desc); err != nil {
			return nil, err
		}
	}

	d.frame.commands = append(d.frame.commands, clears...)
	d.frame.pass = enc
	return enc, nil
}

// checkPipeline verifies the attachments against the pipeline's declared formats.
func (e *passEncoder) checkPipeline(desc backend.PassDescriptor) error {
	decl := e.pipe.decl
	formats := decl.ColorFormats()
	if len(formats) != len(desc.Colors) {
		return fmt.Errorf("software: pass %s: pipeline %s declares %d color targets, %d attached: %w",
			desc.Label, decl.Key(), len(formats), len(desc.Colors), ErrAttachmentMismatch)
	}
	for i, c := range desc.Colors {
		if got := c.Target.Descriptor().Format; got != formats[i] {
			return fmt.Errorf("software: pass %s: pipeline %s location %d wants %s, got %s: %w",
				desc.Label, decl.Key(), i, formats[i], got, ErrAttachmentMismatch)
		}
	}
	want := decl.DepthFormat()
	switch {
	case desc.Depth == nil && e.pipe.cfg.Depth != nil:
		return fmt.Errorf("software: pass %s: pipeline %s needs a %s depth attachment: %w",
			desc.Label, decl.Key(), want, ErrAttachmentMismatch)
	case desc.Depth != nil && desc.Depth.Target.Descriptor().Format != want:
		return fmt.Errorf("software: pass %s: pipeline %s wants depth %s, got %s: %w",
			desc.Label, decl.Key(), want, desc.Depth.Target.Descriptor().Format, ErrAttachmentMismatch)
	}
	return nil
}

func (e *passEncoder) SetBinding(slot string, b backend.Binding) error {
	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := e.active(); err != nil {
		return err
	}
	if e.pipe == nil {
		return ErrNoPipeline
	}
	s, ok := e.pipe.decl.Slot(slot)
	if !ok {
		return fmt.Errorf("software: pipeline %s slot %q: %w", e.pipe.label, slot, backend.ErrUnknownSlot)
	}
	if err := d.checkBinding(s, b); err != nil {
		return fmt.Errorf("software: pipeline %s slot %q: %w", e.pipe.label, slot, err)
	}
	e.bindings[slot] = b
	return nil
}

// checkBinding verifies a resource against a slot kind.
func (d *device) checkBinding(s pipeline.Slot, b backend.Binding) error {
	switch {
	case s.Kind.IsBuffer():
		if b.Buffer == nil {
			return fmt.Errorf("%s slot needs a buffer: %w", s.Kind, ErrBindingKind)
		}
	case s.Kind.IsTexture():
		if b.Target == nil {
			return fmt.Errorf("%s slot needs a target: %w", s.Kind, ErrBindingKind)
		}
		tg, err := d.ownTarget(b.Target)
		if err != nil {
			return err
		}
		depthKind := s.Kind == shader.BindingKindDepthTexture || s.Kind == shader.BindingKindDepthTextureArray
		if depthKind != tg.desc.Format.HasDepth() {
			return fmt.Errorf("%s slot cannot read %s: %w", s.Kind, tg.desc.Format, ErrBindingKind)
		}
	case s.Kind.IsSampler():
		if b.Sampler == nil {
			return fmt.Errorf("%s slot needs a sampler: %w", s.Kind, ErrBindingKind)
		}
		so, ok := b.Sampler.(*samplerObject)
		if !ok || so.dev != d {
			return backend.ErrForeignResource
		}
		if so.released {
			return fmt.Errorf("sampler %s: %w", so.label, backend.ErrReleased)
		}
		if so.desc.IsComparison() != (s.Kind == shader.BindingKindComparisonSampler) {
			return fmt.Errorf("%s slot cannot use sampler %s: %w", s.Kind, so.label, ErrBindingKind)
		}
	}
	return nil
}

func (e *passEncoder) Draw(mesh backend.Mesh, locals *model.GPULocals) error {
	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := e.active(); err != nil {
		return err
	}
	if e.pipe == nil {
		return ErrNoPipeline
	}
	m, ok := mesh.(*meshObject)
	if !ok || m.dev != d {
		return backend.ErrForeignResource
	}
	if m.released {
		return fmt.Errorf("software: mesh %s: %w", m.label, backend.ErrReleased)
	}

	res := &Resources{
		buffers:  make(map[string]backend.Buffer),
		textures: make(map[string]*Texture),
		samplers: make(map[string]common.SamplerStagingData),
	}
	if locals != nil {
		res.Locals = *locals
		res.HasLocals = true
	}
	for _, s := range e.pipe.cfg.Bindings {
		b, ok := e.bindings[s.Name]
		if !ok {
			if s.Name == builtin.SlotLocals {
				continue
			}
			return fmt.Errorf("software: pipeline %s slot %q: %w", e.pipe.label, s.Name, backend.ErrMissingBinding)
		}
		switch {
		case b.Buffer != nil:
			res.buffers[s.Name] = b.Buffer
		case b.Target != nil:
			tg, err := d.ownTarget(b.Target)
			if err != nil {
				return err
			}
			res.textures[s.Name] = tg.tex
		case b.Sampler != nil:
			res.samplers[s.Name] = b.Sampler.Descriptor()
		}
	}
	if _, ok := e.pipe.cfg.Slot(builtin.SlotLocals); ok && locals == nil {
		return fmt.Errorf("software: pipeline %s: nil locals: %w", e.pipe.label, backend.ErrMissingBinding)
	}

	vertex, err := e.pipe.vertex.BindVertex(res)
	if err != nil {
		return fmt.Errorf("software: pipeline %s vertex stage: %w", e.pipe.label, err)
	}
	var fragment FragmentFunc
	if e.pipe.fragment != nil {
		if fragment, err = e.pipe.fragment.BindFragment(res); err != nil {
			return fmt.Errorf("software: pipeline %s fragment stage: %w", e.pipe.label, err)
		}
	}

	rs := &rasterState{
		width:      e.width,
		height:     e.height,
		colors:     e.colors,
		depth:      e.depth,
		depthLayer: e.depthLayer,
		depthState: e.pipe.cfg.Depth,
		cull:       e.pipe.cfg.Cull,
		frontFace:  e.pipe.cfg.FrontFace,
		varyings:   e.pipe.varyings,
		fragment:   fragment,
	}
	vertices, indices := m.vertices, m.indices
	d.frame.commands = append(d.frame.commands, func() {
		d.raster.draw(rs, vertices, indices, vertex)
	})
	return nil
}

func (e *passEncoder) End() error {
	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := e.active(); err != nil {
		return err
	}
	e.ended = true
	d.frame.pass = nil
	return nil
}

// active reports whether the encoder may still record.
func (e *passEncoder) active() error {
	if err := e.dev.check(); err != nil {
		return err
	}
	if e.ended || e.dev.frame == nil || e.dev.frame.pass != e {
		return backend.ErrNoFrame
	}
	return nil
}
