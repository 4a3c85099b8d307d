package light

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// ShadowMapResolution is the default width and height in texels of each shadow
// map layer.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units)
// used for the directional light shadow frustum. Controls how much of the scene
// around the focus point is captured in the shadow map.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane for the directional light's
// orthographic shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane for the directional light's
// orthographic shadow projection.
const DefaultShadowFar float32 = 200.0

// DefaultShadowBias is the constant depth bias applied to shadow comparisons
// to reduce shadow acne artifacts.
const DefaultShadowBias float32 = 0.001

// DefaultShadowNormalBiasScale is the multiplier applied to the shadow map
// texel world-size to compute the normal-offset bias. Typical values are 2.0–4.0.
const DefaultShadowNormalBiasScale float32 = 3.0

// DefaultPCFRadius is the default percentage-closer filter radius in texels.
// A radius of 0 takes a single comparison sample.
const DefaultPCFRadius = 1

// LocalShadowNear is the near plane used for point and spot light projections.
const LocalShadowNear float32 = 0.05

// CubeFaceCount is the number of views a point light captures.
const CubeFaceCount = 6

// ShadowConfig carries the renderer-wide shadow parameters that light projections
// and the lighting pass need.
type ShadowConfig struct {
	// Resolution is the width and height of each shadow layer in texels.
	Resolution int
	// HalfExtent is the orthographic half-size of the directional shadow frustum.
	HalfExtent float32
	// Near and Far bound the directional shadow frustum.
	Near, Far float32
	// Focus is the world-space point the directional shadow frustum is centered on.
	Focus mgl32.Vec3
	// Bias is the default constant depth bias.
	Bias float32
	// NormalBiasScale scales the per-texel world size into a normal offset.
	NormalBiasScale float32
	// PCFRadius is the filter radius in texels.
	PCFRadius int
}

// DefaultShadowConfig returns the default shadow parameters.
//
// Returns:
//   - ShadowConfig: the defaults
func DefaultShadowConfig() ShadowConfig {
	return ShadowConfig{
		Resolution:      ShadowMapResolution,
		HalfExtent:      DefaultShadowHalfExtent,
		Near:            DefaultShadowNear,
		Far:             DefaultShadowFar,
		Bias:            DefaultShadowBias,
		NormalBiasScale: DefaultShadowNormalBiasScale,
		PCFRadius:       DefaultPCFRadius,
	}
}

// ShadowState is the per-light shadow map lifecycle.
type ShadowState int

const (
	// ShadowStateUnshadowed means no usable map exists; the light is evaluated fully lit.
	ShadowStateUnshadowed ShadowState = iota
	// ShadowStateRendering means the map has been submitted this frame but is not yet sampled.
	ShadowStateRendering
	// ShadowStateReady means the map is complete and sampled by the lighting pass.
	ShadowStateReady
)

// String returns the state name.
func (s ShadowState) String() string {
	switch s {
	case ShadowStateUnshadowed:
		return "unshadowed"
	case ShadowStateRendering:
		return "rendering"
	case ShadowStateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ShadowMap is a light's handle into the shadow atlas.
type ShadowMap struct {
	// State is the lifecycle state of the map.
	State ShadowState
	// Layer is the first atlas layer owned by the light, or -1 when none is allocated.
	Layer int
	// Layers is the number of consecutive layers owned (1 or CubeFaceCount).
	Layers int
	// ViewProjections are the matrices the layers were rendered with this frame.
	ViewProjections []mgl32.Mat4
	// Empty is set when the light's range touched no geometry and the layers were only cleared.
	Empty bool
}

// Sampled reports whether the lighting pass should sample this map.
func (m *ShadowMap) Sampled() bool {
	return m != nil && m.State == ShadowStateReady && m.Layer >= 0 && len(m.ViewProjections) == m.Layers
}

// cubeFaces holds the view direction and up vector of each point light face,
// in +X, -X, +Y, -Y, +Z, -Z order.
var cubeFaces = [CubeFaceCount]struct {
	dir, up mgl32.Vec3
}{
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, -1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, -1, 0}},
}

// CubeFace returns the index of the point light face whose view contains the direction d,
// chosen by the major axis.
//
// Parameters:
//   - d: direction from the light to the sampled point
//
// Returns:
//   - int: face index in +X, -X, +Y, -Y, +Z, -Z order
func CubeFace(d mgl32.Vec3) int {
	ax, ay, az := math32.Abs(d[0]), math32.Abs(d[1]), math32.Abs(d[2])
	switch {
	case ax >= ay && ax >= az:
		if d[0] >= 0 {
			return 0
		}
		return 1
	case ay >= az:
		if d[1] >= 0 {
			return 2
		}
		return 3
	default:
		if d[2] >= 0 {
			return 4
		}
		return 5
	}
}

// directionalViewProjection builds the orthographic view-projection of a directional
// light. The eye sits behind the focus point, opposite the light direction, so the whole
// far range in front of the focus is captured.
func directionalViewProjection(dir mgl32.Vec3, cfg ShadowConfig) mgl32.Mat4 {
	dir = common.Normalize3(dir)
	if dir.Len() < common.Epsilon {
		dir = mgl32.Vec3{0, -1, 0}
	}
	eye := cfg.Focus.Sub(dir.Mul(cfg.Far * 0.5))
	view := common.LookAt(eye, cfg.Focus, common.StableUp(dir))
	proj := common.Ortho(-cfg.HalfExtent, cfg.HalfExtent, -cfg.HalfExtent, cfg.HalfExtent, cfg.Near, cfg.Far)
	return proj.Mul4(view)
}

// spotViewProjection builds the perspective view-projection of a spot light covering its
// outer cone out to its range.
func spotViewProjection(pos, dir mgl32.Vec3, outerCos, lightRange float32) mgl32.Mat4 {
	dir = common.Normalize3(dir)
	if dir.Len() < common.Epsilon {
		dir = mgl32.Vec3{0, -1, 0}
	}
	fov := 2 * math32.Acos(mgl32.Clamp(outerCos, -1, 1))
	fov = mgl32.Clamp(fov, mgl32.DegToRad(1), mgl32.DegToRad(170))
	view := common.LookAt(pos, pos.Add(dir), common.StableUp(dir))
	proj := common.Perspective(fov, 1, LocalShadowNear, localFar(lightRange))
	return proj.Mul4(view)
}

// pointFaceViewProjection builds the 90 degree view-projection of one cube face.
func pointFaceViewProjection(pos mgl32.Vec3, face int, lightRange float32) mgl32.Mat4 {
	f := cubeFaces[face]
	view := mgl32.LookAtV(pos, pos.Add(f.dir), f.up)
	proj := common.Perspective(math32.Pi/2, 1, LocalShadowNear, localFar(lightRange))
	return proj.Mul4(view)
}

// localFar keeps the far plane strictly beyond the near plane.
func localFar(lightRange float32) float32 {
	return math32.Max(lightRange, LocalShadowNear*2)
}

// NormalBias returns the world-space normal offset applied before projecting a surface
// point into the light's shadow map. It scales with the world size of one shadow texel.
// For perspective projections the texel size is measured at a quarter of the range.
//
// Parameters:
//   - l: the light
//   - cfg: shadow configuration
//
// Returns:
//   - float32: the normal offset in world units
func NormalBias(l Light, cfg ShadowConfig) float32 {
	res := float32(max(cfg.Resolution, 1))
	var texelWorld float32
	switch l.Type() {
	case LightTypeDirectional:
		texelWorld = 2.0 * cfg.HalfExtent / res
	case LightTypePoint:
		texelWorld = 2.0 * math32.Tan(math32.Pi/4) * l.Range() * 0.25 / res
	case LightTypeSpot:
		half := math32.Acos(mgl32.Clamp(l.OuterCone(), -1, 1))
		texelWorld = 2.0 * math32.Tan(half) * l.Range() * 0.25 / res
	}
	return texelWorld * cfg.NormalBiasScale
}
