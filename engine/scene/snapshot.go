package scene

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/overlay"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/resource"
)

// Snapshot errors.
var (
	// ErrNoCamera is returned by Build when no camera was set.
	ErrNoCamera = errors.New("scene: snapshot has no camera")

	// ErrInvalidMesh is returned by Build for a drawable with a zero mesh handle.
	ErrInvalidMesh = errors.New("scene: drawable has no mesh")

	// ErrNilLight is returned by Build for a nil light.
	ErrNilLight = errors.New("scene: nil light")

	// ErrDuplicateLight is returned by Build when two lights share an ID.
	ErrDuplicateLight = errors.New("scene: duplicate light id")
)

// Default snapshot colors.
var (
	DefaultAmbient    = mgl32.Vec3{0.03, 0.03, 0.03}
	DefaultBackground = mgl32.Vec4{0, 0, 0, 1}
)

// Drawable is one mesh placed in the world.
type Drawable struct {
	// Mesh is the uploaded mesh.
	Mesh resource.MeshHandle
	// World is the model-to-world transform.
	World mgl32.Mat4
	// Material supplies albedo, roughness and metallic. Materials are immutable.
	Material material.Material
}

// Snapshot is the immutable per-frame scene input of the renderer: camera, ordered drawables,
// lights and the optional overlay. Accessors return copies, so neither the producer nor the
// renderer can change a snapshot after Build.
type Snapshot struct {
	frame      uint64
	camera     camera.State
	drawables  []Drawable
	lights     []light.Light
	ambient    mgl32.Vec3
	background mgl32.Vec4
	overlay    *overlay.DrawList
}

// Frame returns the producer's frame number.
func (s *Snapshot) Frame() uint64 {
	return s.frame
}

// Camera returns the camera state.
func (s *Snapshot) Camera() camera.State {
	return s.camera
}

// DrawableCount returns the number of drawables.
func (s *Snapshot) DrawableCount() int {
	return len(s.drawables)
}

// Drawable returns the i-th drawable in submission order.
func (s *Snapshot) Drawable(i int) Drawable {
	return s.drawables[i]
}

// Drawables returns a copy of the drawables in submission order.
func (s *Snapshot) Drawables() []Drawable {
	return slices.Clone(s.drawables)
}

// LightCount returns the number of lights.
func (s *Snapshot) LightCount() int {
	return len(s.lights)
}

// Lights returns clones of the lights. Clones keep the light IDs.
func (s *Snapshot) Lights() []light.Light {
	out := make([]light.Light, len(s.lights))
	for i, l := range s.lights {
		out[i] = l.Clone()
	}
	return out
}

// LightIDs returns the IDs of the lights in order.
func (s *Snapshot) LightIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(s.lights))
	for i, l := range s.lights {
		ids[i] = l.ID()
	}
	return ids
}

// Ambient returns the ambient light color.
func (s *Snapshot) Ambient() mgl32.Vec3 {
	return s.ambient
}

// Background returns the color of pixels no geometry covers.
func (s *Snapshot) Background() mgl32.Vec4 {
	return s.background
}

// Overlay returns a copy of the overlay draw list, nil when none was supplied.
func (s *Snapshot) Overlay() *overlay.DrawList {
	return s.overlay.Clone()
}

// SnapshotBuilder assembles a Snapshot. Every input is copied when added, so the caller may
// reuse or mutate its own objects afterwards. A builder may be reused after Build.
type SnapshotBuilder struct {
	s    Snapshot
	errs []error
	set  bool
}

// NewSnapshotBuilder creates a builder with the default ambient and background colors.
//
// Returns:
//   - *SnapshotBuilder: the builder
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{s: Snapshot{ambient: DefaultAmbient, background: DefaultBackground}}
}

// Frame sets the frame number reported by Snapshot.Frame.
func (b *SnapshotBuilder) Frame(n uint64) *SnapshotBuilder {
	b.s.frame = n
	return b
}

// Camera sets the camera state.
func (b *SnapshotBuilder) Camera(state camera.State) *SnapshotBuilder {
	b.s.camera = state
	b.set = true
	return b
}

// CameraFrom sets the camera state from a live camera.
func (b *SnapshotBuilder) CameraFrom(c camera.Camera) *SnapshotBuilder {
	if c == nil {
		return b
	}
	return b.Camera(c.State())
}

// Draw appends a drawable. A nil material draws with material.Default.
//
// Parameters:
//   - mesh: the uploaded mesh
//   - world: the model-to-world transform
//   - mat: the material
//
// Returns:
//   - *SnapshotBuilder: the builder, for chaining
func (b *SnapshotBuilder) Draw(mesh resource.MeshHandle, world mgl32.Mat4, mat material.Material) *SnapshotBuilder {
	if !mesh.Valid() {
		b.errs = append(b.errs, fmt.Errorf("drawable %d: %w", len(b.s.drawables), ErrInvalidMesh))
		return b
	}
	if mat == nil {
		mat = material.Default
	}
	b.s.drawables = append(b.s.drawables, Drawable{Mesh: mesh, World: world, Material: mat})
	return b
}

// Light appends a clone of a light.
func (b *SnapshotBuilder) Light(l light.Light) *SnapshotBuilder {
	if l == nil {
		b.errs = append(b.errs, ErrNilLight)
		return b
	}
	for _, o := range b.s.lights {
		if o.ID() == l.ID() {
			b.errs = append(b.errs, fmt.Errorf("light %s: %w", l.ID(), ErrDuplicateLight))
			return b
		}
	}
	b.s.lights = append(b.s.lights, l.Clone())
	return b
}

// Ambient sets the ambient light color.
func (b *SnapshotBuilder) Ambient(c mgl32.Vec3) *SnapshotBuilder {
	b.s.ambient = c
	return b
}

// Background sets the color of uncovered pixels.
func (b *SnapshotBuilder) Background(c mgl32.Vec4) *SnapshotBuilder {
	b.s.background = c
	return b
}

// Overlay sets a copy of the overlay draw list.
func (b *SnapshotBuilder) Overlay(l *overlay.DrawList) *SnapshotBuilder {
	b.s.overlay = l.Clone()
	return b
}

// Build validates the inputs and returns the snapshot.
//
// Returns:
//   - *Snapshot: the snapshot
//   - error: the joined input errors, or ErrNoCamera
func (b *SnapshotBuilder) Build() (*Snapshot, error) {
	errs := slices.Clone(b.errs)
	if !b.set {
		errs = append(errs, ErrNoCamera)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	s := b.s
	s.drawables = slices.Clone(b.s.drawables)
	s.lights = slices.Clone(b.s.lights)
	s.overlay = b.s.overlay.Clone()
	for i, l := range s.lights {
		s.lights[i] = l.Clone()
	}
	return &s, nil
}
