package light

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// shadingEpsilon is the length below which a vector normalizes to zero.
const shadingEpsilon = 1e-6

// SafeNormalize normalizes v, returning the zero vector for near-zero input.
func SafeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l < shadingEpsilon {
		return mgl32.Vec3{}
	}
	return v.Mul(1 / l)
}

// RangeAttenuation is the smooth distance falloff of point and spot lights. It reaches zero at
// the light range and is zero for a non-positive range.
//
// Parameters:
//   - dist: distance from the light
//   - lightRange: the light range
//
// Returns:
//   - float32: the attenuation factor
func RangeAttenuation(dist, lightRange float32) float32 {
	if lightRange <= 0 {
		return 0
	}
	ratio := dist / lightRange
	falloff := mgl32.Clamp(1-ratio*ratio*ratio*ratio, 0, 1)
	return falloff * falloff / (dist*dist + 1)
}

// SpotFactor is the angular falloff of a spot light between its outer and inner cone cosines.
// Equal cones give a hard edge.
//
// Parameters:
//   - cosAngle: cosine of the angle between the spot axis and the direction to the point
//   - innerCone: cosine of the inner half-angle
//   - outerCone: cosine of the outer half-angle
//
// Returns:
//   - float32: the cone factor in [0, 1]
func SpotFactor(cosAngle, innerCone, outerCone float32) float32 {
	if innerCone-outerCone < shadingEpsilon {
		if cosAngle >= outerCone {
			return 1
		}
		return 0
	}
	t := mgl32.Clamp((cosAngle-outerCone)/(innerCone-outerCone), 0, 1)
	return t * t * (3 - 2*t)
}

// Shininess maps roughness in [0, 1] onto a Blinn-Phong exponent.
func Shininess(roughness float32) float32 {
	return 128 + (2-128)*roughness
}

// Contribution evaluates the Blinn-Phong diffuse and specular contribution of the light at a
// surface point, before shadowing. Directional lights have no attenuation.
//
// Parameters:
//   - p: world-space surface position
//   - n: unit surface normal
//   - v: unit direction from the surface to the camera
//   - albedo: surface base color
//   - roughness: surface roughness in [0, 1]
//
// Returns:
//   - mgl32.Vec3: the additive radiance
func (g *GPULight) Contribution(p, n, v, albedo mgl32.Vec3, roughness float32) mgl32.Vec3 {
	l := SafeNormalize(mgl32.Vec3(g.Direction).Mul(-1))
	attenuation := float32(1)
	if LightType(g.LightType) != LightTypeDirectional {
		toLight := mgl32.Vec3(g.Position).Sub(p)
		l = SafeNormalize(toLight)
		attenuation = RangeAttenuation(toLight.Len(), g.LightRange)
		if LightType(g.LightType) == LightTypeSpot {
			axis := SafeNormalize(mgl32.Vec3(g.Direction))
			attenuation *= SpotFactor(l.Mul(-1).Dot(axis), g.InnerCone, g.OuterCone)
		}
	}
	nDotL := math32.Max(n.Dot(l), 0)
	if nDotL <= 0 || attenuation <= 0 {
		return mgl32.Vec3{}
	}
	h := SafeNormalize(l.Add(v))
	specular := math32.Pow(math32.Max(n.Dot(h), 0), Shininess(roughness)) * (1 - roughness)
	radiance := mgl32.Vec3(g.Color).Mul(g.Intensity * attenuation)
	return mgl32.Vec3{
		(albedo[0]*nDotL + specular) * radiance[0],
		(albedo[1]*nDotL + specular) * radiance[1],
		(albedo[2]*nDotL + specular) * radiance[2],
	}
}

// ShadowLookup projects a surface point into the light's shadow map. The point is first pushed
// along the normal by the light's normal bias; point lights select the cube face by major axis.
//
// Parameters:
//   - p: world-space surface position
//   - n: unit surface normal
//
// Returns:
//   - mgl32.Vec2: the shadow map coordinate, v pointing down
//   - float32: the biased reference depth
//   - int: the atlas layer to sample
//   - bool: false when the point counts as lit without sampling (unshadowed, behind the light,
//     or outside the map)
func (g *GPULight) ShadowLookup(p, n mgl32.Vec3) (mgl32.Vec2, float32, int, bool) {
	if g.ShadowLayer < 0 {
		return mgl32.Vec2{}, 0, 0, false
	}
	world := p.Add(n.Mul(g.NormalBias))
	face := 0
	if LightType(g.LightType) == LightTypePoint {
		face = CubeFace(world.Sub(mgl32.Vec3(g.Position)))
	}
	clip := g.FaceViewProjection(face).Mul4x1(world.Vec4(1))
	if clip[3] <= 0 {
		return mgl32.Vec2{}, 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip[3])
	uv := mgl32.Vec2{ndc[0]*0.5 + 0.5, 0.5 - ndc[1]*0.5}
	if uv[0] < 0 || uv[0] > 1 || uv[1] < 0 || uv[1] > 1 {
		return mgl32.Vec2{}, 0, 0, false
	}
	if ndc[2] < 0 || ndc[2] > 1 {
		return mgl32.Vec2{}, 0, 0, false
	}
	return uv, ndc[2] - g.Bias, int(g.ShadowLayer) + face, true
}
