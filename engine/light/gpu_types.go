package light

import (
	"cmp"
	_ "embed"
	"encoding/binary"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// MaxGPULights is the maximum number of lights marshaled into the light storage buffer
// per frame. Lights beyond the cap are dropped in snapshot order.
const MaxGPULights = 256

// NoShadowLayer marks a GPULight that must be evaluated fully lit.
const NoShadowLayer int32 = -1

// GPULightSource is the canonical WGSL definition of the Light struct.
// Matches GPULight layout exactly (464 bytes, std430 aligned).
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULight is the GPU-aligned representation of a single light source.
// Matches the WGSL Light struct layout exactly (see GPULightSource).
// Size: 464 bytes (std430 / WGSL aligned).
type GPULight struct {
	Position        [3]float32     // offset   0: world-space position (point/spot)
	LightType       uint32         // offset  12: 0 = directional, 1 = point, 2 = spot
	Color           [3]float32     // offset  16: RGB color
	Intensity       float32        // offset  28: scalar multiplier
	Direction       [3]float32     // offset  32: normalized direction (directional/spot)
	LightRange      float32        // offset  44: attenuation cutoff distance
	InnerCone       float32        // offset  48: cos(inner half-angle) for spot
	OuterCone       float32        // offset  52: cos(outer half-angle) for spot
	ShadowLayer     int32          // offset  56: first atlas layer, NoShadowLayer when unshadowed
	ShadowLayers    uint32         // offset  60: 1, or 6 for point lights
	Bias            float32        // offset  64: constant depth bias
	NormalBias      float32        // offset  68: world-space normal offset
	TexelSize       float32        // offset  72: 1 / shadow resolution
	PCFRadius       float32        // offset  76: filter radius in texels
	ViewProjections [6][16]float32 // offset  80: light-space matrices, one per layer
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (464)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 464-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutFloat32s(buf, 0, g.Position[:]...)
	binary.LittleEndian.PutUint32(buf[12:16], g.LightType)
	common.PutFloat32s(buf, 16, g.Color[:]...)
	common.PutFloat32s(buf, 28, g.Intensity)
	common.PutFloat32s(buf, 32, g.Direction[:]...)
	common.PutFloat32s(buf, 44, g.LightRange, g.InnerCone, g.OuterCone)
	binary.LittleEndian.PutUint32(buf[56:60], uint32(g.ShadowLayer))
	binary.LittleEndian.PutUint32(buf[60:64], g.ShadowLayers)
	common.PutFloat32s(buf, 64, g.Bias, g.NormalBias, g.TexelSize, g.PCFRadius)
	for i := range g.ViewProjections {
		common.PutFloat32s(buf, 80+i*64, g.ViewProjections[i][:]...)
	}
	return buf
}

// Shadowed reports whether the lighting pass samples a shadow map for this light.
func (g *GPULight) Shadowed() bool {
	return g.ShadowLayer >= 0
}

// NewGPULight packs a light and its shadow handle. A nil or unsampled shadow map yields
// an unshadowed light.
//
// Parameters:
//   - l: the light
//   - sm: the light's shadow map handle, may be nil
//   - cfg: shadow configuration for bias and filter parameters
//
// Returns:
//   - GPULight: the packed light
func NewGPULight(l Light, sm *ShadowMap, cfg ShadowConfig) GPULight {
	g := GPULight{
		Position:    l.Position(),
		LightType:   uint32(l.Type()),
		Color:       l.Color(),
		Intensity:   l.Intensity(),
		Direction:   l.Direction(),
		LightRange:  l.Range(),
		InnerCone:   l.InnerCone(),
		OuterCone:   l.OuterCone(),
		ShadowLayer: NoShadowLayer,
	}
	if !l.CastsShadows() || !sm.Sampled() {
		return g
	}

	g.ShadowLayer = int32(sm.Layer)
	g.ShadowLayers = uint32(sm.Layers)
	g.Bias = cmp.Or(l.ShadowBias(), cfg.Bias)
	g.NormalBias = NormalBias(l, cfg)
	g.TexelSize = 1.0 / float32(max(cfg.Resolution, 1))
	g.PCFRadius = float32(cfg.PCFRadius)
	for i, vp := range sm.ViewProjections {
		if i >= len(g.ViewProjections) {
			break
		}
		g.ViewProjections[i] = vp
	}
	return g
}

// FaceViewProjection returns the matrix of layer i as an mgl32 matrix.
func (g *GPULight) FaceViewProjection(i int) mgl32.Mat4 {
	return mgl32.Mat4(g.ViewProjections[i])
}

// MarshalLightBuffer serializes lights into one contiguous storage buffer.
// An empty list still yields one zeroed element, since storage bindings cannot be empty.
//
// Parameters:
//   - lights: the packed lights
//
// Returns:
//   - []byte: the buffer contents
func MarshalLightBuffer(lights []GPULight) []byte {
	var stride GPULight
	if len(lights) == 0 {
		return make([]byte, stride.Size())
	}
	buf := make([]byte, 0, len(lights)*stride.Size())
	for i := range lights {
		buf = append(buf, lights[i].Marshal()...)
	}
	return buf
}

// GPULightingParamsSource is the canonical WGSL definition of the LightingParams struct.
// Matches GPULightingParams layout exactly (64 bytes, std140 aligned).
//
//go:embed assets/lighting_params.wgsl
var GPULightingParamsSource string

// GPULightingParams is the uniform block of the lighting pass.
// Size: 64 bytes.
type GPULightingParams struct {
	Ambient        [4]float32 // offset  0: scene ambient RGB, w unused
	CameraPosition [4]float32 // offset 16: world-space camera position, w unused
	Background     [4]float32 // offset 32: color written to uncovered pixels
	LightCount     uint32     // offset 48: number of valid entries in the light buffer
	_pad           [3]uint32  // offset 52: padding to 64 bytes
}

// Size returns the size of the GPULightingParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (p *GPULightingParams) Size() int {
	return int(unsafe.Sizeof(*p))
}

// Marshal serializes the GPULightingParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (p *GPULightingParams) Marshal() []byte {
	buf := make([]byte, p.Size())
	common.PutFloat32s(buf, 0, p.Ambient[:]...)
	common.PutFloat32s(buf, 16, p.CameraPosition[:]...)
	common.PutFloat32s(buf, 32, p.Background[:]...)
	binary.LittleEndian.PutUint32(buf[48:52], p.LightCount)
	return buf
}

// LightBuffer is the light storage buffer contents as a bindable resource.
type LightBuffer []GPULight

// Size returns the byte size of the marshaled buffer.
func (b LightBuffer) Size() int {
	var g GPULight
	return max(len(b), 1) * g.Size()
}

// Marshal serializes the buffer.
func (b LightBuffer) Marshal() []byte {
	return MarshalLightBuffer(b)
}
