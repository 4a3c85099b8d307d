package webgpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

var (
	// ErrBindingKind is returned by SetBinding when the resource does not fit the slot kind.
	ErrBindingKind = errors.New("webgpu: resource does not match slot kind")

	// ErrNoPipeline is returned by Draw in a pass opened without a pipeline.
	ErrNoPipeline = errors.New("webgpu: pass has no pipeline")
)

// passEncoder wraps one render pass of the frame encoder. Bind groups are rebuilt lazily at
// Draw for the groups whose bindings changed.
type passEncoder struct {
	dev      *device
	label    string
	pipe     *pipelineObject
	rp       *wgpu.RenderPassEncoder
	bindings map[string]backend.Binding
	dirty    map[uint32]bool
	ended    bool
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

	enc := &passEncoder{
		dev:      d,
		label:    desc.Label,
		bindings: make(map[string]backend.Binding),
		dirty:    make(map[uint32]bool),
	}
	if desc.Pipeline != nil {
		p, ok := desc.Pipeline.(*pipelineObject)
		if !ok || p.dev != d {
			return nil, backend.ErrForeignResource
		}
		if p.released {
			return nil, fmt.Errorf("webgpu: pipeline %s: %w", p.label, backend.ErrReleased)
		}
		enc.pipe = p
	}

	rpd := &wgpu.RenderPassDescriptor{Label: desc.Label}
	for _, c := range desc.Colors {
		tg, err := d.ownTarget(c.Target)
		if err != nil {
			return nil, err
		}
		if !tg.surface && c.Layer >= tg.desc.LayerCount() {
			return nil, fmt.Errorf("webgpu: pass %s: target %s layer %d: %w", desc.Label, tg.label, c.Layer, backend.ErrLimitExceeded)
		}
		att := wgpu.RenderPassColorAttachment{
			View:    tg.attachment(c.Layer),
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}
		if c.Clear {
			att.LoadOp = wgpu.LoadOpClear
			att.ClearValue = wgpu.Color{R: c.ClearValue.R, G: c.ClearValue.G, B: c.ClearValue.B, A: c.ClearValue.A}
		}
		rpd.ColorAttachments = append(rpd.ColorAttachments, att)
	}
	if desc.Depth != nil {
		tg, err := d.ownTarget(desc.Depth.Target)
		if err != nil {
			return nil, err
		}
		if desc.Depth.Layer >= tg.desc.LayerCount() {
			return nil, fmt.Errorf("webgpu: pass %s: target %s layer %d: %w", desc.Label, tg.label, desc.Depth.Layer, backend.ErrLimitExceeded)
		}
		att := &wgpu.RenderPassDepthStencilAttachment{
			View:            tg.attachment(desc.Depth.Layer),
			DepthLoadOp:     wgpu.LoadOpLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: desc.Depth.ClearDepth,
		}
		if desc.Depth.Clear {
			att.DepthLoadOp = wgpu.LoadOpClear
		}
		rpd.DepthStencilAttachment = att
	}

	enc.rp = d.frame.encoder.BeginRenderPass(rpd)
	if enc.pipe != nil {
		enc.rp.SetPipeline(enc.pipe.render)
		for g, bg := range enc.pipe.empty {
			enc.rp.SetBindGroup(g, bg, nil)
		}
		for _, s := range enc.pipe.cfg.Bindings {
			if s.Name != builtin.SlotLocals {
				enc.dirty[s.Group] = true
			}
		}
	}
	d.frame.pass = enc
	return enc, nil
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
		return fmt.Errorf("webgpu: pipeline %s slot %q: %w", e.pipe.label, slot, backend.ErrUnknownSlot)
	}
	if err := d.checkBinding(s, b); err != nil {
		return fmt.Errorf("webgpu: pipeline %s slot %q: %w", e.pipe.label, slot, err)
	}
	e.bindings[slot] = b
	e.dirty[s.Group] = true
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
		if tg.surface {
			return fmt.Errorf("%s slot cannot sample the surface: %w", s.Kind, ErrBindingKind)
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
		return fmt.Errorf("webgpu: mesh %s: %w", m.label, backend.ErrReleased)
	}

	for g, dirty := range e.dirty {
		if !dirty {
			continue
		}
		bg, err := e.bindGroup(g)
		if err != nil {
			return err
		}
		e.rp.SetBindGroup(g, bg, nil)
		e.dirty[g] = false
	}
	if e.pipe.localsGroup >= 0 {
		if locals == nil {
			return fmt.Errorf("webgpu: pipeline %s: nil locals: %w", e.pipe.label, backend.ErrMissingBinding)
		}
		chunk, offset, err := d.allocLocals(locals)
		if err != nil {
			return err
		}
		bg, err := chunk.bindGroup(d, e.pipe.groups[e.pipe.localsGroup], e.pipe.localsBinding)
		if err != nil {
			return err
		}
		e.rp.SetBindGroup(uint32(e.pipe.localsGroup), bg, []uint32{offset})
	}

	e.rp.SetVertexBuffer(0, m.vertices, 0, wgpu.WholeSize)
	if m.indices != nil {
		e.rp.SetIndexBuffer(m.indices, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		e.rp.DrawIndexed(m.count, 1, 0, 0, 0)
	} else {
		e.rp.Draw(m.count, 1, 0, 0)
	}
	d.frame.draws++
	return nil
}

// bindGroup builds the bind group of one group from the current bindings. Buffers are uploaded
// into frame-lifetime uniform or storage buffers.
func (e *passEncoder) bindGroup(g uint32) (*wgpu.BindGroup, error) {
	d := e.dev
	var entries []wgpu.BindGroupEntry
	for _, s := range e.pipe.cfg.Bindings {
		if s.Group != g || s.Name == builtin.SlotLocals {
			continue
		}
		b, ok := e.bindings[s.Name]
		if !ok {
			return nil, fmt.Errorf("webgpu: pipeline %s slot %q: %w", e.pipe.label, s.Name, backend.ErrMissingBinding)
		}
		entry := wgpu.BindGroupEntry{Binding: s.Binding}
		switch {
		case b.Buffer != nil:
			buf, size, err := d.frameBuffer(s, b.Buffer)
			if err != nil {
				return nil, err
			}
			entry.Buffer, entry.Size = buf, size
		case b.Target != nil:
			tg, err := d.ownTarget(b.Target)
			if err != nil {
				return nil, err
			}
			entry.TextureView = tg.view
		case b.Sampler != nil:
			entry.Sampler = b.Sampler.(*samplerObject).sampler
		}
		entries = append(entries, entry)
	}
	bg, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s group %d", e.pipe.label, g),
		Layout:  e.pipe.groups[g],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: pipeline %s group %d: %w", e.pipe.label, g, err)
	}
	d.frame.transient = append(d.frame.transient, bg.Release)
	return bg, nil
}

// frameBuffer uploads CPU data into a buffer released after the frame is submitted.
func (d *device) frameBuffer(s pipeline.Slot, data backend.Buffer) (*wgpu.Buffer, uint64, error) {
	contents := data.Marshal()
	usage := wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	if s.Kind == shader.BindingKindStorage {
		usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	}
	size := alignUp(uint64(max(len(contents), 1)), uniformAlignment)
	if uint64(len(contents)) < size {
		padded := make([]byte, size)
		copy(padded, contents)
		contents = padded
	}
	buf, err := d.dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    s.Name,
		Contents: contents,
		Usage:    usage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("webgpu: slot %s buffer: %w: %w", s.Name, backend.ErrOutOfMemory, err)
	}
	d.frame.transient = append(d.frame.transient, buf.Release)
	return buf, size, nil
}

func (e *passEncoder) End() error {
	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := e.active(); err != nil {
		return err
	}
	e.finish()
	return nil
}

// finish ends the render pass and detaches it from the frame.
func (e *passEncoder) finish() {
	if e.ended {
		return
	}
	e.rp.End()
	e.rp.Release()
	e.ended = true
	if e.dev.frame != nil && e.dev.frame.pass == e {
		e.dev.frame.pass = nil
	}
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
