package material

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
)

// material is the implementation of the Material interface.
type material struct {
	name      string
	baseColor [4]float32
	metallic  float32
	roughness float32
}

// Material defines the interface for a surface material written into the G-buffer.
//
// Surface properties are set at construction and are read-only through this interface,
// so a Material can be shared between drawables and scene snapshots without copying.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor of the material.
	// A value of 0.0 represents a dielectric surface, 1.0 represents a fully metallic surface.
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	// A value of 0.0 represents a perfectly smooth surface, 1.0 represents a fully rough surface.
	// The lighting pass derives the specular exponent from it.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// Locals packs the material together with a world transform into a geometry draw's
	// per-draw uniform block.
	//
	// Parameters:
	//   - world: the drawable's world transform
	//
	// Returns:
	//   - model.GPULocals: the per-draw block
	Locals(world mgl32.Mat4) model.GPULocals
}

var _ Material = &material{}

// Default is the material used for drawables submitted without one: opaque white, fully rough.
var Default = NewMaterial(WithName("default"))

// NewMaterial creates a new Material instance configured with the provided options.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		baseColor: [4]float32{1, 1, 1, 1},
		metallic:  0.0,
		roughness: 1.0,
	}
	for _, opt := range options {
		opt(m)
	}
	m.metallic = mgl32.Clamp(m.metallic, 0, 1)
	m.roughness = mgl32.Clamp(m.roughness, 0, 1)
	return m
}

func (m *material) Name() string {
	return m.name
}

func (m *material) BaseColor() [4]float32 {
	return m.baseColor
}

func (m *material) Metallic() float32 {
	return m.metallic
}

func (m *material) Roughness() float32 {
	return m.roughness
}

func (m *material) Locals(world mgl32.Mat4) model.GPULocals {
	return model.NewGPULocals(world, m.baseColor, m.roughness, m.metallic)
}
