package pass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// Shadows drives the shadow maps of every shadow-casting light. Maps are layers of one depth
// array target, the atlas. A directional or spot light owns one layer and a point light owns
// six consecutive layers, one per cube face.
//
// Each light moves through Unshadowed, Rendering and Ready. A light first seen in a frame is
// rendered but not sampled until Commit confirms the frame was submitted; a Ready light is
// re-rendered and sampled every frame. Shadows is not safe for concurrent use.
type Shadows struct {
	mgr     resource.Manager
	logger  *slog.Logger
	cfg     light.ShadowConfig
	workers int

	pipeline resource.PipelineHandle
	atlas    resource.TargetHandle
	sampler  resource.SamplerHandle

	// owners holds the light owning each atlas layer, uuid.Nil for free layers.
	owners  []uuid.UUID
	entries map[uuid.UUID]*light.ShadowMap
}

var _ Pass = &Shadows{}

// shadowJob is the per-light work of one frame. prepare fills it in parallel; submission reads
// it sequentially.
type shadowJob struct {
	light   light.Light
	sm      *light.ShadowMap
	views   []mgl32.Mat4
	visible [][]int
	empty   bool
	err     error
}

// NewShadows allocates the atlas, the comparison sampler and the depth-only pipeline.
//
// Parameters:
//   - mgr: the resource manager
//   - opts: WithShadowConfig, WithAtlasLayers, WithWorkers, WithLogger
//
// Returns:
//   - *Shadows: the driver
//   - error: a resource error; nothing is left allocated on failure
func NewShadows(mgr resource.Manager, opts ...PassBuilderOption) (*Shadows, error) {
	o := collect(opts)
	s := &Shadows{
		mgr:     mgr,
		logger:  o.logger,
		cfg:     o.shadow,
		workers: o.workers,
		owners:  make([]uuid.UUID, o.atlasLayers),
		entries: make(map[uuid.UUID]*light.ShadowMap),
	}
	res := uint32(max(s.cfg.Resolution, 1))

	var err error
	if s.atlas, err = mgr.AllocateTarget("shadow.atlas", builtin.DepthFormat, res, res,
		resource.WithLayers(uint32(o.atlasLayers))); err != nil {
		s.Release()
		return nil, err
	}
	filter := gputypes.FilterModeLinear
	if s.cfg.PCFRadius == 0 {
		filter = gputypes.FilterModeNearest
	}
	if s.sampler, err = mgr.CreateSampler("shadow.compare", common.SamplerStagingData{
		MagFilter: filter,
		MinFilter: filter,
		Compare:   gputypes.CompareFunctionLessEqual,
	}.WithDefaults()); err != nil {
		s.Release()
		return nil, err
	}
	if s.pipeline, err = mgr.CreatePipeline(builtin.ShadowConfig(
		builtin.DefaultShadowDepthBias, builtin.DefaultShadowSlopeScale)); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *Shadows) Name() string {
	return "shadow"
}

// Atlas returns the shadow atlas handle.
func (s *Shadows) Atlas() resource.TargetHandle {
	return s.atlas
}

// Sampler returns the comparison sampler handle.
func (s *Shadows) Sampler() resource.SamplerHandle {
	return s.sampler
}

// Config returns the shadow configuration.
func (s *Shadows) Config() light.ShadowConfig {
	return s.cfg
}

// State returns the shadow state of a light. Lights without a map are Unshadowed.
//
// Parameters:
//   - id: the light ID
//
// Returns:
//   - light.ShadowState: the state
func (s *Shadows) State(id uuid.UUID) light.ShadowState {
	if sm, ok := s.entries[id]; ok {
		return sm.State
	}
	return light.ShadowStateUnshadowed
}

// FreeLayers returns the number of unowned atlas layers.
func (s *Shadows) FreeLayers() int {
	n := 0
	for _, o := range s.owners {
		if o == uuid.Nil {
			n++
		}
	}
	return n
}

// Execute releases the layers of lights gone from the snapshot, assigns layers to new shadow
// casters, prepares every light's views in parallel and records one depth pass per view.
// Lights that cannot be rendered are logged as a ShadowRenderError and lit unshadowed.
func (s *Shadows) Execute(ctx context.Context, f *Frame) error {
	var casters []light.Light
	for _, l := range f.Snapshot.Lights() {
		if l.CastsShadows() {
			casters = append(casters, l)
		}
	}
	s.evict(casters)

	jobs := make([]*shadowJob, 0, len(casters))
	for _, l := range casters {
		sm, err := s.acquire(l)
		if err != nil {
			s.degrade(f, l.ID(), err)
			continue
		}
		jobs = append(jobs, &shadowJob{light: l, sm: sm})
	}

	boxes := f.Bounds()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			j.prepare(s.cfg, boxes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if j.err != nil {
			if j.sm.State == light.ShadowStateRendering {
				j.sm.State = light.ShadowStateUnshadowed
			}
			s.degrade(f, j.light.ID(), j.err)
			continue
		}
		for i := range j.views {
			if err := s.renderView(f, j, i); err != nil {
				return err
			}
		}
		j.sm.ViewProjections = j.views
		j.sm.Empty = j.empty

		frame := *j.sm
		frame.ViewProjections = slices.Clone(j.views)
		f.Shadows[j.light.ID()] = &frame
	}
	s.logger.Debug("shadow pass recorded", "lights", len(jobs), "views", f.Stats.ShadowViews,
		"draws", f.Stats.ShadowDraws, "free_layers", s.FreeLayers())
	return nil
}

// evict frees the layers of every light that is no longer a shadow caster.
func (s *Shadows) evict(casters []light.Light) {
	keep := make(map[uuid.UUID]int, len(casters))
	for _, l := range casters {
		keep[l.ID()] = l.ShadowLayerCount()
	}
	for id, sm := range s.entries {
		if n, ok := keep[id]; ok && n == sm.Layers {
			continue
		}
		s.freeLayers(id)
		delete(s.entries, id)
	}
}

// acquire returns the map of a light, allocating layers on first sight. Anything short of Ready
// is rendered this frame as Rendering.
func (s *Shadows) acquire(l light.Light) (*light.ShadowMap, error) {
	sm, ok := s.entries[l.ID()]
	if !ok {
		n := l.ShadowLayerCount()
		first, err := s.allocate(l.ID(), n)
		if err != nil {
			return nil, err
		}
		sm = &light.ShadowMap{State: light.ShadowStateUnshadowed, Layer: first, Layers: n}
		s.entries[l.ID()] = sm
	}
	if sm.State != light.ShadowStateReady {
		sm.State = light.ShadowStateRendering
	}
	return sm, nil
}

// allocate claims the first free run of n consecutive layers.
func (s *Shadows) allocate(id uuid.UUID, n int) (int, error) {
	run := 0
	for i, o := range s.owners {
		if o != uuid.Nil {
			run = 0
			continue
		}
		run++
		if run == n {
			first := i - n + 1
			for k := first; k <= i; k++ {
				s.owners[k] = id
			}
			return first, nil
		}
	}
	return -1, fmt.Errorf("%d layers wanted, %d free: %w", n, s.FreeLayers(), ErrAtlasExhausted)
}

func (s *Shadows) freeLayers(id uuid.UUID) {
	for i, o := range s.owners {
		if o == id {
			s.owners[i] = uuid.Nil
		}
	}
}

// degrade records a light that is lit unshadowed this frame.
func (s *Shadows) degrade(f *Frame, id uuid.UUID, reason error) {
	err := &ShadowRenderError{LightID: id, Reason: reason}
	f.Stats.DegradedLights++
	s.logger.Warn("light degraded to unshadowed", "light", id, "error", err)
}

// prepare computes the light's views, the range test and the per-view visible drawables.
func (j *shadowJob) prepare(cfg light.ShadowConfig, boxes []common.AABB) {
	j.views = j.light.ComputeViewProjections(cfg)
	if len(j.views) != j.sm.Layers {
		j.err = fmt.Errorf("%d views for %d layers: %w", len(j.views), j.sm.Layers, ErrViewCount)
		return
	}
	if j.light.Type() != light.LightTypeDirectional && !light.InfluencesAny(j.light, boxes) {
		j.empty = true
		return
	}
	j.visible = make([][]int, len(j.views))
	for i, vp := range j.views {
		frustum := common.ExtractFrustum(vp)
		for k, b := range boxes {
			if frustum.IntersectsAABB(b) {
				j.visible[i] = append(j.visible[i], k)
			}
		}
	}
}

// renderView records the depth pass of one view. An empty light's layers are only cleared.
func (s *Shadows) renderView(f *Frame, j *shadowJob, view int) error {
	desc := resource.PassDescriptor{
		Label: fmt.Sprintf("shadow %s face %d", j.light.ID(), view),
		Depth: &resource.DepthAttachment{
			Target:     s.atlas,
			Layer:      uint32(j.sm.Layer + view),
			Clear:      true,
			ClearDepth: 1,
		},
	}
	if !j.empty {
		desc.Pipeline = s.pipeline
	}
	enc, err := s.mgr.BeginPass(desc)
	if err != nil {
		return fmt.Errorf("shadow: %w", err)
	}
	if !j.empty {
		vp := j.views[view]
		for _, k := range j.visible[view] {
			d := &f.Drawables[k]
			locals := d.Locals.WithLightViewProj(vp)
			if err := enc.Draw(d.Mesh, &locals); err != nil {
				return errors.Join(fmt.Errorf("shadow: drawable %d: %w", k, err), enc.End())
			}
			f.Stats.ShadowDraws++
		}
	}
	if err := enc.End(); err != nil {
		return fmt.Errorf("shadow: %w", err)
	}
	f.Stats.ShadowViews++
	return nil
}

// Commit marks every map rendered in the submitted frame as Ready.
func (s *Shadows) Commit() {
	for _, sm := range s.entries {
		if sm.State == light.ShadowStateRendering {
			sm.State = light.ShadowStateReady
		}
	}
}

// Abort reverts the maps of an abandoned frame. Lights that were Rendering become Unshadowed and
// keep their layers; Ready lights keep their previous map.
func (s *Shadows) Abort() {
	for _, sm := range s.entries {
		if sm.State == light.ShadowStateRendering {
			sm.State = light.ShadowStateUnshadowed
		}
	}
}

// Release frees the atlas, the sampler and the pipeline and forgets every light.
func (s *Shadows) Release() {
	if s.atlas.Valid() {
		_ = s.mgr.Release(s.atlas)
	}
	if s.sampler.Valid() {
		_ = s.mgr.Release(s.sampler)
	}
	if s.pipeline.Valid() {
		_ = s.mgr.Release(s.pipeline)
	}
	s.atlas, s.sampler, s.pipeline = 0, 0, 0
	clear(s.entries)
	clear(s.owners)
}
