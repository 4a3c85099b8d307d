package light

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// Influences reports whether the light can reach any point of the box.
// Directional lights reach everything. Point lights are bounded by a sphere of radius
// Range; spot lights additionally reject boxes entirely behind the cone apex.
//
// Parameters:
//   - l: the light
//   - box: a world-space bounding box
//
// Returns:
//   - bool: false only when the light provably cannot affect the box
func Influences(l Light, box common.AABB) bool {
	if box.Empty() {
		return false
	}
	switch l.Type() {
	case LightTypeDirectional:
		return true
	case LightTypePoint:
		return box.IntersectsSphere(l.Position(), l.Range())
	case LightTypeSpot:
		if !box.IntersectsSphere(l.Position(), l.Range()) {
			return false
		}
		return !behindApex(l.Position(), l.Direction(), l.OuterCone(), box)
	default:
		return true
	}
}

// InfluencesAny reports whether the light reaches at least one of the boxes.
//
// Parameters:
//   - l: the light
//   - boxes: world-space bounding boxes
//
// Returns:
//   - bool: true if any box is influenced
func InfluencesAny(l Light, boxes []common.AABB) bool {
	for _, b := range boxes {
		if Influences(l, b) {
			return true
		}
	}
	return false
}

// behindApex reports whether every corner of the box lies behind the plane through the
// spot apex. Only cones narrower than a hemisphere can reject this way.
func behindApex(apex, dir mgl32.Vec3, outerCos float32, box common.AABB) bool {
	if outerCos <= 0 {
		return false
	}
	for i := range 8 {
		corner := box.Min
		if i&1 != 0 {
			corner[0] = box.Max[0]
		}
		if i&2 != 0 {
			corner[1] = box.Max[1]
		}
		if i&4 != 0 {
			corner[2] = box.Max[2]
		}
		if corner.Sub(apex).Dot(dir) > 0 {
			return false
		}
	}
	return true
}
