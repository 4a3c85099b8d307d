// Package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"cmp"

	"github.com/gogpu/gputypes"
)

// TextureStagingData holds texel data for a render target pending upload.
// The overlay layer and the wgpu backend's target writes stage data through this type.
type TextureStagingData struct {
	// Pixels is the raw texel data laid out row-major, tightly packed for Format.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
	// Format describes how Pixels is encoded.
	Format gputypes.TextureFormat
}

// SamplerStagingData holds the configuration for a sampler pending creation.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW gputypes.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter gputypes.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter gputypes.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers, used in shadow mapping.
	// CompareFunctionUndefined makes a regular filtering sampler.
	Compare gputypes.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// IsComparison reports whether the sampler performs depth comparison.
func (s SamplerStagingData) IsComparison() bool {
	return s.Compare != gputypes.CompareFunctionUndefined
}

// WithDefaults fills unset fields with clamp-to-edge, linear filtering defaults.
//
// Returns:
//   - SamplerStagingData: a copy with every zero field replaced by its default
func (s SamplerStagingData) WithDefaults() SamplerStagingData {
	s.AddressModeU = cmp.Or(s.AddressModeU, gputypes.AddressModeClampToEdge)
	s.AddressModeV = cmp.Or(s.AddressModeV, gputypes.AddressModeClampToEdge)
	s.AddressModeW = cmp.Or(s.AddressModeW, gputypes.AddressModeClampToEdge)
	s.MagFilter = cmp.Or(s.MagFilter, gputypes.FilterModeLinear)
	s.MinFilter = cmp.Or(s.MinFilter, gputypes.FilterModeLinear)
	s.MipmapFilter = cmp.Or(s.MipmapFilter, gputypes.MipmapFilterModeNearest)
	s.LodMaxClamp = cmp.Or(s.LodMaxClamp, 32)
	s.MaxAnisotropy = cmp.Or(s.MaxAnisotropy, 1)
	return s
}

// CompareDepth evaluates a depth comparison function the way a comparison sampler does:
// ref is the incoming value and stored is the value in the depth texture.
//
// Parameters:
//   - fn: the comparison function
//   - ref: the reference (fragment) depth
//   - stored: the depth stored in the texture
//
// Returns:
//   - bool: true if the comparison passes
func CompareDepth(fn gputypes.CompareFunction, ref, stored float32) bool {
	switch fn {
	case gputypes.CompareFunctionNever:
		return false
	case gputypes.CompareFunctionLess:
		return ref < stored
	case gputypes.CompareFunctionEqual:
		return ref == stored
	case gputypes.CompareFunctionLessEqual:
		return ref <= stored
	case gputypes.CompareFunctionGreater:
		return ref > stored
	case gputypes.CompareFunctionNotEqual:
		return ref != stored
	case gputypes.CompareFunctionGreaterEqual:
		return ref >= stored
	default:
		return true
	}
}
