package pass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/overlay"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/postfx"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// Postprocess composites the lit color and the optional overlay into the presentable surface.
type Postprocess struct {
	mgr      resource.Manager
	logger   *slog.Logger
	pipeline resource.PipelineHandle
	quad     resource.MeshHandle
	overlay  resource.TargetHandle
	lit      resource.TargetHandle
	params   postfx.Params
	opacity  float32
}

var _ Pass = &Postprocess{}

// NewPostprocess allocates the overlay layer and creates the composite pipeline for the current
// surface format.
//
// Parameters:
//   - mgr: the resource manager
//   - lit: the lit color target the pass reads
//   - opts: WithPostParams, WithOverlayOpacity, WithUVPolicy, WithLogger
//
// Returns:
//   - *Postprocess: the pass
//   - error: a resource error; nothing is left allocated on failure
func NewPostprocess(mgr resource.Manager, lit resource.TargetHandle, opts ...PassBuilderOption) (*Postprocess, error) {
	o := collect(opts)
	p := &Postprocess{mgr: mgr, logger: o.logger, lit: lit, opacity: o.overlayOpacity}

	surface := mgr.Device().SurfaceFormat()
	p.params = o.post.ForSurface(surface)

	var err error
	if p.quad, err = mgr.UploadMesh("postprocess.quad", QuadMesh(o.uv)); err != nil {
		return nil, err
	}
	if p.overlay, err = mgr.AllocateSurfaceTarget("postprocess.overlay", overlay.Format); err != nil {
		p.Release()
		return nil, err
	}
	if p.pipeline, err = mgr.CreatePipeline(builtin.PostprocessConfig(surface)); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *Postprocess) Name() string {
	return "postprocess"
}

// Params returns the composite parameters, adjusted for the surface format.
func (p *Postprocess) Params() postfx.Params {
	return p.params
}

// Overlay returns the overlay layer target.
func (p *Postprocess) Overlay() resource.TargetHandle {
	return p.overlay
}

// Execute uploads the rasterized overlay, if the snapshot carries one, and draws the composite
// into the surface.
func (p *Postprocess) Execute(ctx context.Context, f *Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list := f.Snapshot.Overlay()
	enabled := !list.Empty()
	if enabled {
		w, h := p.mgr.Size()
		if err := p.mgr.WriteTarget(p.overlay, 0, list.Staging(int(w), int(h))); err != nil {
			return fmt.Errorf("postprocess: overlay upload: %w", err)
		}
	}
	post := p.params.Uniform()
	over := material.NewGPUOverlayParams(enabled, p.opacity)

	bindings := map[string]backend.Binding{
		builtin.SlotPost:          {Buffer: &post},
		builtin.SlotOverlayParams: {Buffer: &over},
	}
	for slot, h := range map[string]resource.TargetHandle{
		builtin.SlotLitColor: p.lit,
		builtin.SlotOverlay:  p.overlay,
	} {
		b, err := target(p.mgr, h)
		if err != nil {
			return fmt.Errorf("postprocess: %w", err)
		}
		bindings[slot] = b
	}
	quad, err := p.mgr.Mesh(p.quad)
	if err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}

	enc, err := p.mgr.BeginPass(resource.PassDescriptor{
		Label:    "postprocess",
		Pipeline: p.pipeline,
		Colors:   []resource.ColorAttachment{{Target: p.mgr.Surface(), Clear: true}},
	})
	if err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}
	if err := bindAll(enc, bindings); err != nil {
		return errors.Join(fmt.Errorf("postprocess: %w", err), enc.End())
	}
	if err := enc.Draw(quad, nil); err != nil {
		return errors.Join(fmt.Errorf("postprocess: %w", err), enc.End())
	}
	if err := enc.End(); err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}
	return nil
}

// Release frees the overlay layer, the quad and the pipeline.
func (p *Postprocess) Release() {
	if p.overlay.Valid() {
		_ = p.mgr.Release(p.overlay)
	}
	if p.quad.Valid() {
		_ = p.mgr.Release(p.quad)
	}
	if p.pipeline.Valid() {
		_ = p.mgr.Release(p.pipeline)
	}
	p.overlay, p.quad, p.pipeline = 0, 0, 0
}
