// Package pass implements the four stages of the deferred pipeline: the geometry pass filling
// the G-buffer, the shadow driver rendering a depth map per shadowed light, the full-screen
// lighting pass and the postprocessing composite. Passes record into the open device frame
// through the resource manager and never own device memory directly.
package pass

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// Pass is one stage of the frame.
type Pass interface {
	// Name returns the pass name used in logs and profiles.
	Name() string

	// Execute records the pass into the open frame.
	//
	// Parameters:
	//   - ctx: cancels preparation work
	//   - f: the frame being rendered
	//
	// Returns:
	//   - error: a resource or device error; fatal to the frame
	Execute(ctx context.Context, f *Frame) error

	// Release frees the pass's targets and pipelines.
	Release()
}

// Drawable is a snapshot drawable resolved against the resource manager.
type Drawable struct {
	// Mesh is the device mesh.
	Mesh backend.Mesh
	// Bounds is the world-space bounding box.
	Bounds common.AABB
	// Locals is the per-draw block of the geometry pass.
	Locals model.GPULocals
}

// FrameStats counts the work of one frame.
type FrameStats struct {
	// Drawn and Culled count geometry pass drawables.
	Drawn, Culled int
	// ShadowViews counts rendered shadow layers, ShadowDraws their draw calls.
	ShadowViews, ShadowDraws int
	// Lights is the number of lights uploaded to the lighting pass.
	Lights int
	// DegradedLights counts shadow casters rendered unshadowed this frame.
	DegradedLights int
}

// Frame is the state the passes of one frame share. The shadow pass fills Shadows; the lighting
// pass reads it.
type Frame struct {
	// Snapshot is the frame input.
	Snapshot *scene.Snapshot
	// Drawables are the resolved snapshot drawables in submission order.
	Drawables []Drawable
	// Shadows maps light IDs to the shadow map handle the lighting pass samples this frame.
	Shadows map[uuid.UUID]*light.ShadowMap
	// Stats accumulates per-pass counters.
	Stats FrameStats
}

// NewFrame resolves the drawables of a snapshot.
//
// Parameters:
//   - mgr: the resource manager the mesh handles belong to
//   - snap: the snapshot
//
// Returns:
//   - *Frame: the frame
//   - error: a resource error for unknown mesh handles
func NewFrame(mgr resource.Manager, snap *scene.Snapshot) (*Frame, error) {
	f := &Frame{
		Snapshot:  snap,
		Drawables: make([]Drawable, 0, snap.DrawableCount()),
		Shadows:   make(map[uuid.UUID]*light.ShadowMap),
	}
	for i := range snap.DrawableCount() {
		d := snap.Drawable(i)
		mesh, err := mgr.Mesh(d.Mesh)
		if err != nil {
			return nil, fmt.Errorf("drawable %d: %w", i, err)
		}
		f.Drawables = append(f.Drawables, Drawable{
			Mesh:   mesh,
			Bounds: mesh.Source().Bounds().Transform(d.World),
			Locals: d.Material.Locals(d.World),
		})
	}
	return f, nil
}

// Bounds returns the world bounds of every drawable in order.
func (f *Frame) Bounds() []common.AABB {
	out := make([]common.AABB, len(f.Drawables))
	for i := range f.Drawables {
		out[i] = f.Drawables[i].Bounds
	}
	return out
}

// target resolves a handle to a binding.
func target(mgr resource.Manager, h resource.TargetHandle) (backend.Binding, error) {
	t, err := mgr.Target(h)
	if err != nil {
		return backend.Binding{}, err
	}
	return backend.Binding{Target: t}, nil
}

// bindAll sets each named binding on an encoder, stopping at the first failure.
func bindAll(enc backend.PassEncoder, bindings map[string]backend.Binding) error {
	for slot, b := range bindings {
		if err := enc.SetBinding(slot, b); err != nil {
			return fmt.Errorf("bind %s: %w", slot, err)
		}
	}
	return nil
}
