// Package renderer sequences the deferred pipeline. A Renderer owns the device, the resource
// manager and the four passes, and drives one frame per RenderFrame call through the states
// Idle, GeometrySubmitted, ShadowsSubmitted, LightingSubmitted, Composited and Presented.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// FrameState is the position of the renderer within a frame.
type FrameState int32

const (
	// StateIdle means no frame is being recorded.
	StateIdle FrameState = iota
	// StateGeometrySubmitted means the G-buffer has been recorded.
	StateGeometrySubmitted
	// StateShadowsSubmitted means every shadow map of the frame has been recorded.
	StateShadowsSubmitted
	// StateLightingSubmitted means the lit color has been recorded.
	StateLightingSubmitted
	// StateComposited means the composite into the surface has been recorded.
	StateComposited
	// StatePresented means the frame was submitted and presented.
	StatePresented
)

// String returns the state name.
func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGeometrySubmitted:
		return "geometry_submitted"
	case StateShadowsSubmitted:
		return "shadows_submitted"
	case StateLightingSubmitted:
		return "lighting_submitted"
	case StateComposited:
		return "composited"
	case StatePresented:
		return "presented"
	default:
		return fmt.Sprintf("FrameState(%d)", int32(s))
	}
}

// Target names accepted by ReadTarget.
const (
	TargetPosition = "position"
	TargetNormal   = "normal"
	TargetAlbedo   = "albedo"
	TargetDepth    = "depth"
	TargetLit      = "lit"
	TargetFinal    = "final"
)

// Stats summarizes the renderer's work.
type Stats struct {
	// Frames counts presented frames.
	Frames uint64
	// Aborted counts frames abandoned by cancellation or error.
	Aborted uint64
	// Last holds the per-pass counters of the last presented frame.
	Last pass.FrameStats
	// LastDuration is the wall time of the last presented frame.
	LastDuration time.Duration
	// Resources counts the live resources of the manager.
	Resources resource.Stats
}

// Renderer draws scene snapshots with deferred shading.
//
// All methods are safe for concurrent use. RenderFrame calls are serialized; Resize only records
// the new size, which is applied before the next frame starts.
type Renderer interface {
	// RenderFrame renders and presents one snapshot.
	//
	// Parameters:
	//   - ctx: cancels the frame between passes; the frame is then abandoned unsubmitted
	//   - snap: the frame input
	//
	// Returns:
	//   - error: ctx.Err() on cancellation, *DeviceLostError on device or surface loss, or a
	//     resource error
	RenderFrame(ctx context.Context, snap *scene.Snapshot) error

	// Resize requests a new surface size, applied before the next frame.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	Resize(width, height uint32)

	// State returns the current frame state.
	//
	// Returns:
	//   - FrameState: the state
	State() FrameState

	// ShadowState returns the shadow map state of a light.
	//
	// Parameters:
	//   - id: the light ID
	//
	// Returns:
	//   - light.ShadowState: ShadowStateUnshadowed for unknown lights
	ShadowState(id uuid.UUID) light.ShadowState

	// UploadMesh uploads a mesh snapshots can reference.
	//
	// Parameters:
	//   - label: the debug label
	//   - m: the mesh
	//
	// Returns:
	//   - resource.MeshHandle: the handle
	//   - error: a resource error
	UploadMesh(label string, m model.Mesh) (resource.MeshHandle, error)

	// Resources returns the resource manager.
	//
	// Returns:
	//   - resource.Manager: the manager owning every target and pipeline
	Resources() resource.Manager

	// ReadTarget reads back one of the frame's targets.
	//
	// Parameters:
	//   - name: position, normal, albedo, depth, lit or final
	//
	// Returns:
	//   - backend.TargetData: the decoded texels
	//   - error: ErrUnknownTarget or a device error
	ReadTarget(name string) (backend.TargetData, error)

	// Stats returns the renderer counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// Close releases the passes, every resource and the device.
	//
	// Returns:
	//   - error: the device close error
	Close() error
}

type renderer struct {
	mu       sync.Mutex
	logger   *slog.Logger
	dev      backend.Device
	mgr      resource.Manager
	profiler *profiler.Profiler
	passOpts []pass.PassBuilderOption
	timeout  time.Duration
	observe  func(FrameState)

	geometry *pass.Geometry
	shadows  *pass.Shadows
	lighting *pass.Lighting
	post     *pass.Postprocess

	state atomic.Int32

	resizeMu      sync.Mutex
	pendingWidth  uint32
	pendingHeight uint32
	resizePending bool

	lost   *DeviceLostError
	closed bool
	stats  Stats
}

var _ Renderer = &renderer{}

// NewRenderer builds the resource manager and the four passes on a device.
//
// Parameters:
//   - options: WithDevice is required; see renderer_builder.go for the rest
//
// Returns:
//   - Renderer: the renderer, in StateIdle
//   - error: ErrNoDevice or a resource error; nothing is left allocated on failure
func NewRenderer(options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{logger: Logger()}
	for _, option := range options {
		option(r)
	}
	if r.dev == nil {
		return nil, ErrNoDevice
	}
	if r.profiler == nil {
		r.profiler = profiler.NewProfiler(profiler.WithLogger(r.logger))
	}
	r.mgr = resource.NewManager(r.dev, resource.WithLogger(r.logger))

	opts := slices.Concat([]pass.PassBuilderOption{pass.WithLogger(r.logger)}, r.passOpts)
	if err := r.buildPasses(opts); err != nil {
		r.releasePasses()
		r.mgr.ReleaseAll()
		return nil, err
	}
	w, h := r.mgr.Size()
	r.logger.Info("renderer ready", "width", w, "height", h, "surface", r.dev.SurfaceFormat())
	return r, nil
}

func (r *renderer) buildPasses(opts []pass.PassBuilderOption) error {
	var err error
	if r.geometry, err = pass.NewGeometry(r.mgr, opts...); err != nil {
		return err
	}
	if r.shadows, err = pass.NewShadows(r.mgr, opts...); err != nil {
		return err
	}
	if r.lighting, err = pass.NewLighting(r.mgr, r.geometry.GBuffer(), r.shadows, opts...); err != nil {
		return err
	}
	if r.post, err = pass.NewPostprocess(r.mgr, r.lighting.Output(), opts...); err != nil {
		return err
	}
	return nil
}

func (r *renderer) releasePasses() {
	if r.post != nil {
		r.post.Release()
	}
	if r.lighting != nil {
		r.lighting.Release()
	}
	if r.shadows != nil {
		r.shadows.Release()
	}
	if r.geometry != nil {
		r.geometry.Release()
	}
}

func (r *renderer) setState(s FrameState) {
	r.state.Store(int32(s))
	if r.observe != nil {
		r.observe(s)
	}
}

func (r *renderer) State() FrameState {
	return FrameState(r.state.Load())
}

func (r *renderer) Resize(width, height uint32) {
	r.resizeMu.Lock()
	defer r.resizeMu.Unlock()
	r.pendingWidth, r.pendingHeight = width, height
	r.resizePending = true
}

// takeResize returns and clears the pending size.
func (r *renderer) takeResize() (uint32, uint32, bool) {
	r.resizeMu.Lock()
	defer r.resizeMu.Unlock()
	if !r.resizePending {
		return 0, 0, false
	}
	r.resizePending = false
	return r.pendingWidth, r.pendingHeight, true
}

// requeueResize puts a deferred size back unless a newer resize arrived meanwhile.
func (r *renderer) requeueResize(width, height uint32) {
	r.resizeMu.Lock()
	defer r.resizeMu.Unlock()
	if r.resizePending {
		return
	}
	r.pendingWidth, r.pendingHeight = width, height
	r.resizePending = true
}

func (r *renderer) RenderFrame(ctx context.Context, snap *scene.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return ErrClosed
	case r.lost != nil:
		return r.lost
	case snap == nil:
		return ErrNilSnapshot
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if w, h, ok := r.takeResize(); ok {
		if w == 0 || h == 0 {
			r.logger.Debug("resize to zero area deferred", "width", w, "height", h)
			r.requeueResize(w, h)
			return nil
		}
		if err := r.mgr.Resize(w, h); err != nil {
			return r.fail("resize", err)
		}
	}

	start := time.Now()
	f, err := pass.NewFrame(r.mgr, snap)
	if err != nil {
		return err
	}
	if err := r.dev.BeginFrame(); err != nil {
		return r.fail("begin frame", err)
	}

	for _, step := range []struct {
		p    pass.Pass
		next FrameState
	}{
		{r.geometry, StateGeometrySubmitted},
		{r.shadows, StateShadowsSubmitted},
		{r.lighting, StateLightingSubmitted},
		{r.post, StateComposited},
	} {
		if err := ctx.Err(); err != nil {
			r.abort()
			return err
		}
		passStart := time.Now()
		if err := step.p.Execute(ctx, f); err != nil {
			r.abort()
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			return r.fail(step.p.Name(), err)
		}
		elapsed := time.Since(passStart)
		r.profiler.Record(step.p.Name(), elapsed)
		r.logger.Debug("pass recorded", "pass", step.p.Name(), "elapsed", elapsed)
		r.setState(step.next)
	}
	if err := ctx.Err(); err != nil {
		r.abort()
		return err
	}

	if err := r.dev.EndFrame(); err != nil {
		r.abort()
		return r.fail("end frame", err)
	}
	r.shadows.Commit()
	if err := r.dev.Present(); err != nil {
		r.stats.Aborted++
		r.setState(StateIdle)
		return r.fail("present", err)
	}
	r.setState(StatePresented)

	r.stats.Frames++
	r.stats.Last = f.Stats
	r.stats.LastDuration = time.Since(start)
	r.profiler.Record("frame", r.stats.LastDuration)
	r.profiler.Tick()
	r.setState(StateIdle)
	return nil
}

// abort abandons the open frame and reverts shadow maps recorded in it.
func (r *renderer) abort() {
	r.dev.AbortFrame()
	r.shadows.Abort()
	r.stats.Aborted++
	r.setState(StateIdle)
}

// fail classifies a frame error. Device and surface loss become a sticky *DeviceLostError.
func (r *renderer) fail(op string, err error) error {
	if errors.Is(err, backend.ErrDeviceLost) || errors.Is(err, backend.ErrSurfaceLost) {
		r.lost = &DeviceLostError{Err: fmt.Errorf("%s: %w", op, err)}
		r.logger.Error("device lost", "op", op, "error", err)
		return r.lost
	}
	r.logger.Error("frame failed", "op", op, "error", err)
	return fmt.Errorf("renderer: %s: %w", op, err)
}

func (r *renderer) ShadowState(id uuid.UUID) light.ShadowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return light.ShadowStateUnshadowed
	}
	return r.shadows.State(id)
}

func (r *renderer) UploadMesh(label string, m model.Mesh) (resource.MeshHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	return r.mgr.UploadMesh(label, m)
}

func (r *renderer) Resources() resource.Manager {
	return r.mgr
}

func (r *renderer) ReadTarget(name string) (backend.TargetData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return backend.TargetData{}, ErrClosed
	}
	gbuf := r.geometry.GBuffer()
	var h resource.TargetHandle
	switch name {
	case TargetPosition:
		h = gbuf.Position
	case TargetNormal:
		h = gbuf.Normal
	case TargetAlbedo:
		h = gbuf.Albedo
	case TargetDepth:
		h = gbuf.Depth
	case TargetLit:
		h = r.lighting.Output()
	case TargetFinal:
		h = r.mgr.Surface()
	default:
		return backend.TargetData{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return r.mgr.ReadTarget(h, 0)
}

func (r *renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Resources = r.mgr.Stats()
	return s
}

func (r *renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.releasePasses()
	r.mgr.ReleaseAll()
	r.logger.Info("renderer closed", "frames", r.stats.Frames, "aborted", r.stats.Aborted)
	return r.dev.Close()
}
