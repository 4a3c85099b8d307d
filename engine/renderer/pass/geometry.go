package pass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// GBuffer holds the handles of the geometry pass targets. All are surface-sized.
type GBuffer struct {
	// Position is world position with w = 1 on covered pixels and 0 on the background.
	Position resource.TargetHandle
	// Normal is the world normal with roughness in w.
	Normal resource.TargetHandle
	// Albedo is the surface base color.
	Albedo resource.TargetHandle
	// Depth is the nearest-surface depth.
	Depth resource.TargetHandle
}

// Geometry is the pass that rasterizes every visible drawable into the G-buffer.
type Geometry struct {
	mgr      resource.Manager
	logger   *slog.Logger
	pipeline resource.PipelineHandle
	gbuf     GBuffer
}

var _ Pass = &Geometry{}

// NewGeometry allocates the G-buffer at the surface size and creates the geometry pipeline.
//
// Parameters:
//   - mgr: the resource manager
//   - opts: WithLogger
//
// Returns:
//   - *Geometry: the pass
//   - error: a resource error; nothing is left allocated on failure
func NewGeometry(mgr resource.Manager, opts ...PassBuilderOption) (*Geometry, error) {
	o := collect(opts)
	g := &Geometry{mgr: mgr, logger: o.logger}

	for _, t := range []struct {
		dst    *resource.TargetHandle
		label  string
		format gputypes.TextureFormat
	}{
		{&g.gbuf.Position, "gbuffer.position", builtin.GBufferPositionFormat},
		{&g.gbuf.Normal, "gbuffer.normal", builtin.GBufferNormalFormat},
		{&g.gbuf.Albedo, "gbuffer.albedo", builtin.GBufferAlbedoFormat},
		{&g.gbuf.Depth, "gbuffer.depth", builtin.DepthFormat},
	} {
		h, err := mgr.AllocateSurfaceTarget(t.label, t.format)
		if err != nil {
			g.Release()
			return nil, err
		}
		*t.dst = h
	}

	p, err := mgr.CreatePipeline(builtin.GeometryConfig())
	if err != nil {
		g.Release()
		return nil, err
	}
	g.pipeline = p
	return g, nil
}

func (g *Geometry) Name() string {
	return "geometry"
}

// GBuffer returns the target handles.
func (g *Geometry) GBuffer() GBuffer {
	return g.gbuf
}

// Execute clears the G-buffer and draws every drawable whose world bounds intersect the camera
// frustum, in submission order.
func (g *Geometry) Execute(ctx context.Context, f *Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc, err := g.mgr.BeginPass(resource.PassDescriptor{
		Label:    "geometry",
		Pipeline: g.pipeline,
		Colors: []resource.ColorAttachment{
			{Target: g.gbuf.Position, Clear: true},
			{Target: g.gbuf.Normal, Clear: true},
			{Target: g.gbuf.Albedo, Clear: true},
		},
		Depth: &resource.DepthAttachment{Target: g.gbuf.Depth, Clear: true, ClearDepth: 1},
	})
	if err != nil {
		return fmt.Errorf("geometry: %w", err)
	}

	cam := f.Snapshot.Camera()
	uniform := cam.Uniform()
	if err := enc.SetBinding(builtin.SlotCamera, backend.Binding{Buffer: &uniform}); err != nil {
		return errors.Join(fmt.Errorf("geometry: %w", err), enc.End())
	}
	frustum := cam.Frustum()
	for i := range f.Drawables {
		d := &f.Drawables[i]
		if !frustum.IntersectsAABB(d.Bounds) {
			f.Stats.Culled++
			continue
		}
		if err := enc.Draw(d.Mesh, &d.Locals); err != nil {
			return errors.Join(fmt.Errorf("geometry: drawable %d: %w", i, err), enc.End())
		}
		f.Stats.Drawn++
	}
	if err := enc.End(); err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	g.logger.Debug("geometry pass recorded", "drawn", f.Stats.Drawn, "culled", f.Stats.Culled)
	return nil
}

// Release frees the G-buffer and the pipeline.
func (g *Geometry) Release() {
	for _, h := range []resource.TargetHandle{g.gbuf.Position, g.gbuf.Normal, g.gbuf.Albedo, g.gbuf.Depth} {
		if h.Valid() {
			_ = g.mgr.Release(h)
		}
	}
	if g.pipeline.Valid() {
		_ = g.mgr.Release(g.pipeline)
	}
	g.gbuf, g.pipeline = GBuffer{}, 0
}
