// Package postfx holds the color transforms of the postprocessing composite: exposure,
// tone mapping and gamma, plus the overlay compositing order.
package postfx

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"gopkg.in/yaml.v3"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
)

// ToneMap selects the operator that maps unbounded lit color into [0, 1].
type ToneMap uint32

const (
	// ToneMapNone clamps each channel to [0, 1].
	ToneMapNone ToneMap = iota
	// ToneMapReinhard applies c / (1 + c) per channel.
	ToneMapReinhard
	// ToneMapACES applies the Narkowicz fit of the ACES filmic curve.
	ToneMapACES
)

// String returns the configuration name of the operator.
func (t ToneMap) String() string {
	switch t {
	case ToneMapNone:
		return "none"
	case ToneMapReinhard:
		return "reinhard"
	case ToneMapACES:
		return "aces"
	default:
		return fmt.Sprintf("ToneMap(%d)", uint32(t))
	}
}

// ParseToneMap parses a configuration name into a ToneMap.
//
// Parameters:
//   - s: one of none, reinhard or aces (case-insensitive)
//
// Returns:
//   - ToneMap: the operator
//   - error: non-nil for an unknown name
func ParseToneMap(s string) (ToneMap, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ToneMapNone, nil
	case "reinhard":
		return ToneMapReinhard, nil
	case "aces":
		return ToneMapACES, nil
	}
	return 0, fmt.Errorf("postfx: unknown tone map %q", s)
}

// UnmarshalYAML decodes a tone map from its configuration name.
func (t *ToneMap) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseToneMap(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// OverlayMode selects where the overlay layer enters the composite.
type OverlayMode uint32

const (
	// OverlayAfterToneMap blends the overlay over the final display-referred image.
	OverlayAfterToneMap OverlayMode = iota
	// OverlayBeforeToneMap blends the overlay into the HDR color, so it is tone mapped with the scene.
	OverlayBeforeToneMap
)

// String returns the configuration name of the mode.
func (m OverlayMode) String() string {
	switch m {
	case OverlayAfterToneMap:
		return "after_tonemap"
	case OverlayBeforeToneMap:
		return "before_tonemap"
	default:
		return fmt.Sprintf("OverlayMode(%d)", uint32(m))
	}
}

// ParseOverlayMode parses a configuration name into an OverlayMode.
//
// Parameters:
//   - s: before_tonemap or after_tonemap (case-insensitive)
//
// Returns:
//   - OverlayMode: the mode
//   - error: non-nil for an unknown name
func ParseOverlayMode(s string) (OverlayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "after_tonemap", "":
		return OverlayAfterToneMap, nil
	case "before_tonemap":
		return OverlayBeforeToneMap, nil
	}
	return 0, fmt.Errorf("postfx: unknown overlay mode %q", s)
}

// UnmarshalYAML decodes an overlay mode from its configuration name.
func (m *OverlayMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseOverlayMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Params configures the composite.
type Params struct {
	// Exposure scales lit color before tone mapping.
	Exposure float32
	// Gamma is the display gamma. Values <= 0 or 1 disable the encode.
	Gamma float32
	// ToneMap is the tone mapping operator.
	ToneMap ToneMap
	// Overlay is the overlay compositing order.
	Overlay OverlayMode
}

// DefaultParams returns unit exposure, ACES tone mapping and 2.2 gamma.
//
// Returns:
//   - Params: the defaults
func DefaultParams() Params {
	return Params{Exposure: 1, Gamma: 2.2, ToneMap: ToneMapACES, Overlay: OverlayAfterToneMap}
}

// ForSurface returns a copy of p adjusted for the presentation format. sRGB surfaces encode
// on write, so the shader-side gamma encode is disabled for them.
//
// Parameters:
//   - format: the surface format
//
// Returns:
//   - Params: the adjusted params
func (p Params) ForSurface(format gputypes.TextureFormat) Params {
	if format.IsSrgb() {
		p.Gamma = 1
	}
	return p
}

// Map applies exposure, the tone map operator and the gamma encode to a linear HDR color.
//
// Parameters:
//   - hdr: the unbounded linear color
//
// Returns:
//   - mgl32.Vec3: the display color in [0, 1]
func (p Params) Map(hdr mgl32.Vec3) mgl32.Vec3 {
	return p.Encode(p.ToneMapColor(hdr.Mul(p.Exposure)))
}

// ToneMapColor applies only the tone map operator.
func (p Params) ToneMapColor(c mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for i, x := range c {
		if math32.IsNaN(x) || x < 0 {
			x = 0
		}
		switch p.ToneMap {
		case ToneMapReinhard:
			x = x / (1 + x)
		case ToneMapACES:
			x = (x * (2.51*x + 0.03)) / (x*(2.43*x+0.59) + 0.14)
		}
		out[i] = mgl32.Clamp(x, 0, 1)
	}
	return out
}

// Encode applies the gamma encode to a display color.
func (p Params) Encode(c mgl32.Vec3) mgl32.Vec3 {
	if p.Gamma <= 0 || p.Gamma == 1 {
		return c
	}
	inv := 1 / p.Gamma
	return mgl32.Vec3{math32.Pow(c[0], inv), math32.Pow(c[1], inv), math32.Pow(c[2], inv)}
}

// Uniform packs the params into their GPU representation.
//
// Returns:
//   - GPUPostParams: the uniform block
func (p Params) Uniform() GPUPostParams {
	return GPUPostParams{
		Exposure:    p.Exposure,
		Gamma:       p.Gamma,
		ToneMap:     uint32(p.ToneMap),
		OverlayMode: uint32(p.Overlay),
	}
}

// Composite runs the full composite of one pixel: exposure, the overlay blend at the configured
// point, tone mapping and the gamma encode.
//
// Parameters:
//   - hdr: the lit color
//   - overlayTexel: the overlay layer texel
//   - overlay: the overlay params, nil when no overlay is bound
//
// Returns:
//   - mgl32.Vec3: the display color
func (p Params) Composite(hdr mgl32.Vec3, overlayTexel mgl32.Vec4, overlay *material.GPUOverlayParams) mgl32.Vec3 {
	c := hdr.Mul(p.Exposure)
	if overlay != nil && p.Overlay == OverlayBeforeToneMap {
		c = overlay.Blend(c, overlayTexel)
	}
	c = p.Encode(p.ToneMapColor(c))
	if overlay != nil && p.Overlay == OverlayAfterToneMap {
		c = overlay.Blend(c, overlayTexel)
	}
	return c
}
