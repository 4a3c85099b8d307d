package pass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// Lighting is the full-screen pass that shades every covered G-buffer pixel with the ambient
// term and the contribution of each light, attenuated by its shadow map when one is sampled.
// The result is unclamped HDR color.
type Lighting struct {
	mgr      resource.Manager
	logger   *slog.Logger
	pipeline resource.PipelineHandle
	quad     resource.MeshHandle
	lit      resource.TargetHandle
	gbuf     GBuffer
	shadows  *Shadows
}

var _ Pass = &Lighting{}

// NewLighting allocates the lit color target and creates the lighting pipeline.
//
// Parameters:
//   - mgr: the resource manager
//   - gbuf: the G-buffer the pass reads
//   - shadows: the shadow driver providing the atlas and sampler
//   - opts: WithUVPolicy, WithLogger
//
// Returns:
//   - *Lighting: the pass
//   - error: a resource error; nothing is left allocated on failure
func NewLighting(mgr resource.Manager, gbuf GBuffer, shadows *Shadows, opts ...PassBuilderOption) (*Lighting, error) {
	o := collect(opts)
	l := &Lighting{mgr: mgr, logger: o.logger, gbuf: gbuf, shadows: shadows}

	var err error
	if l.quad, err = mgr.UploadMesh("lighting.quad", QuadMesh(o.uv)); err != nil {
		return nil, err
	}
	if l.lit, err = mgr.AllocateSurfaceTarget("lighting.color", builtin.LitColorFormat); err != nil {
		l.Release()
		return nil, err
	}
	if l.pipeline, err = mgr.CreatePipeline(builtin.LightingConfig()); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (l *Lighting) Name() string {
	return "lighting"
}

// Output returns the lit color target.
func (l *Lighting) Output() resource.TargetHandle {
	return l.lit
}

// Lights packs the snapshot lights for upload, at most light.MaxGPULights in snapshot order.
// Lights absent from the frame's shadow maps, or whose map is not Ready, are unshadowed.
//
// Parameters:
//   - f: the frame, after the shadow pass
//   - cfg: the shadow configuration
//
// Returns:
//   - light.LightBuffer: the packed lights
func Lights(f *Frame, cfg light.ShadowConfig) light.LightBuffer {
	lights := f.Snapshot.Lights()
	buf := make(light.LightBuffer, 0, min(len(lights), light.MaxGPULights))
	for _, l := range lights {
		if len(buf) == light.MaxGPULights {
			break
		}
		buf = append(buf, light.NewGPULight(l, f.Shadows[l.ID()], cfg))
	}
	return buf
}

// Execute draws the full-screen quad with the G-buffer, lights and shadow atlas bound.
func (l *Lighting) Execute(ctx context.Context, f *Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := f.Snapshot
	lights := Lights(f, l.shadows.Config())
	if dropped := snap.LightCount() - len(lights); dropped > 0 {
		l.logger.Warn("light count over the per-frame cap", "cap", light.MaxGPULights, "dropped", dropped)
	}
	f.Stats.Lights = len(lights)

	ambient, eye, bg := snap.Ambient(), snap.Camera().Position, snap.Background()
	params := light.GPULightingParams{
		Ambient:        [4]float32{ambient[0], ambient[1], ambient[2], 0},
		CameraPosition: [4]float32{eye[0], eye[1], eye[2], 1},
		Background:     bg,
		LightCount:     uint32(len(lights)),
	}

	bindings := map[string]backend.Binding{
		builtin.SlotLights: {Buffer: lights},
		builtin.SlotParams: {Buffer: &params},
	}
	for slot, h := range map[string]resource.TargetHandle{
		builtin.SlotGPosition: l.gbuf.Position,
		builtin.SlotGNormal:   l.gbuf.Normal,
		builtin.SlotGAlbedo:   l.gbuf.Albedo,
		builtin.SlotShadowMap: l.shadows.Atlas(),
	} {
		b, err := target(l.mgr, h)
		if err != nil {
			return fmt.Errorf("lighting: %w", err)
		}
		bindings[slot] = b
	}
	smp, err := l.mgr.Sampler(l.shadows.Sampler())
	if err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	bindings[builtin.SlotShadowSampler] = backend.Binding{Sampler: smp}
	quad, err := l.mgr.Mesh(l.quad)
	if err != nil {
		return fmt.Errorf("lighting: %w", err)
	}

	enc, err := l.mgr.BeginPass(resource.PassDescriptor{
		Label:    "lighting",
		Pipeline: l.pipeline,
		Colors:   []resource.ColorAttachment{{Target: l.lit, Clear: true}},
	})
	if err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	if err := bindAll(enc, bindings); err != nil {
		return errors.Join(fmt.Errorf("lighting: %w", err), enc.End())
	}
	if err := enc.Draw(quad, nil); err != nil {
		return errors.Join(fmt.Errorf("lighting: %w", err), enc.End())
	}
	if err := enc.End(); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	return nil
}

// Release frees the lit target, the quad and the pipeline.
func (l *Lighting) Release() {
	if l.lit.Valid() {
		_ = l.mgr.Release(l.lit)
	}
	if l.quad.Valid() {
		_ = l.mgr.Release(l.quad)
	}
	if l.pipeline.Valid() {
		_ = l.mgr.Release(l.pipeline)
	}
	l.lit, l.quad, l.pipeline = 0, 0, 0
}
