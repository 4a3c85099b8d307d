// Package config loads the renderer configuration from YAML. Values absent from a document keep
// the defaults of Default, so a file only needs the settings it changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"gopkg.in/yaml.v3"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/postfx"
)

// maxConfigSize bounds the files Load accepts.
const maxConfigSize = 1 << 20

// Config is the full renderer configuration.
type Config struct {
	Surface     SurfaceConfig     `yaml:"surface"`
	Shadows     ShadowsConfig     `yaml:"shadows"`
	Lighting    LightingConfig    `yaml:"lighting"`
	Postprocess PostprocessConfig `yaml:"postprocess"`
	Software    SoftwareConfig    `yaml:"software"`
	Frame       FrameConfig       `yaml:"frame"`
}

// SurfaceConfig sizes the presentable surface. The format applies to the software backend; a
// window surface picks its own.
type SurfaceConfig struct {
	Width  uint32        `yaml:"width"`
	Height uint32        `yaml:"height"`
	Format SurfaceFormat `yaml:"format"`
}

// ShadowsConfig holds the shadow atlas and filtering settings.
type ShadowsConfig struct {
	Resolution        int     `yaml:"resolution"`
	AtlasLayers       int     `yaml:"atlas_layers"`
	DirectionalExtent float32 `yaml:"directional_extent"`
	Near              float32 `yaml:"near"`
	Far               float32 `yaml:"far"`
	Bias              float32 `yaml:"bias"`
	NormalBias        float32 `yaml:"normal_bias"`
	PCFRadius         int     `yaml:"pcf_radius"`
	Workers           int     `yaml:"workers"`
}

// LightingConfig holds the scene-independent lighting settings.
type LightingConfig struct {
	Ambient [3]float32 `yaml:"ambient"`
}

// PostprocessConfig holds the composite settings.
type PostprocessConfig struct {
	ToneMap        postfx.ToneMap     `yaml:"tone_map"`
	Exposure       float32            `yaml:"exposure"`
	Gamma          float32            `yaml:"gamma"`
	Overlay        postfx.OverlayMode `yaml:"overlay"`
	OverlayOpacity float32            `yaml:"overlay_opacity"`
}

// SoftwareConfig tunes the CPU backend.
type SoftwareConfig struct {
	Workers      int    `yaml:"workers"`
	BandHeight   int    `yaml:"band_height"`
	MemoryBudget uint64 `yaml:"memory_budget"`
}

// FrameConfig bounds a single frame.
type FrameConfig struct {
	// Timeout cancels a frame that takes longer; zero disables it.
	Timeout Duration `yaml:"timeout"`
}

// Duration is a time.Duration written as a Go duration string such as "250ms".
type Duration time.Duration

// UnmarshalYAML decodes a duration string. A bare integer is read as milliseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("config: line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SurfaceFormat is a presentable texture format written by its WebGPU name.
type SurfaceFormat gputypes.TextureFormat

var surfaceFormats = map[string]gputypes.TextureFormat{
	"rgba8unorm":      gputypes.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb": gputypes.TextureFormatRGBA8UnormSrgb,
	"bgra8unorm":      gputypes.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb": gputypes.TextureFormatBGRA8UnormSrgb,
	"rgba16float":     gputypes.TextureFormatRGBA16Float,
}

// UnmarshalYAML decodes a format name such as rgba8unorm-srgb.
func (f *SurfaceFormat) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, ok := surfaceFormats[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return &ValidationError{Field: "surface.format", Reason: fmt.Sprintf("unsupported format %q", s)}
	}
	*f = SurfaceFormat(v)
	return nil
}

// Format returns the gputypes format.
func (f SurfaceFormat) Format() gputypes.TextureFormat {
	return gputypes.TextureFormat(f)
}

// ValidationError reports a configuration value outside its allowed range.
type ValidationError struct {
	// Field is the dotted YAML path of the value.
	Field string
	// Reason describes the violated constraint.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns a configuration that renders a 1280x720 frame with filtered shadows and ACES
// tone mapping.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	post := postfx.DefaultParams()
	return Config{
		Surface: SurfaceConfig{
			Width:  1280,
			Height: 720,
			Format: SurfaceFormat(gputypes.TextureFormatRGBA8Unorm),
		},
		Shadows: ShadowsConfig{
			Resolution:        light.ShadowMapResolution,
			AtlasLayers:       8,
			DirectionalExtent: light.DefaultShadowHalfExtent,
			Near:              light.DefaultShadowNear,
			Far:               light.DefaultShadowFar,
			Bias:              light.DefaultShadowBias,
			NormalBias:        light.DefaultShadowNormalBiasScale,
			PCFRadius:         light.DefaultPCFRadius,
		},
		Lighting: LightingConfig{Ambient: [3]float32{0.03, 0.03, 0.03}},
		Postprocess: PostprocessConfig{
			ToneMap:        post.ToneMap,
			Exposure:       post.Exposure,
			Gamma:          post.Gamma,
			Overlay:        post.Overlay,
			OverlayOpacity: 1,
		},
		Software: SoftwareConfig{BandHeight: 32},
	}
}

// Parse overlays a YAML document onto the defaults and validates the result. Unknown keys are
// rejected.
//
// Parameters:
//   - data: the YAML document, may be empty
//
// Returns:
//   - Config: the configuration
//   - error: a decode error or a *ValidationError
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return Config{}, verr
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if info.Size() > maxConfigSize {
		return Config{}, fmt.Errorf("config: %s is %d bytes, limit %d", path, info.Size(), maxConfigSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Validate checks every value against its allowed range.
//
// Returns:
//   - error: the first *ValidationError, or nil
func (c Config) Validate() error {
	checks := []struct {
		ok     bool
		field  string
		reason string
	}{
		{c.Surface.Width > 0 && c.Surface.Height > 0, "surface", "width and height must be positive"},
		{c.Shadows.Resolution > 0, "shadows.resolution", "must be positive"},
		{c.Shadows.AtlasLayers > 0, "shadows.atlas_layers", "must be positive"},
		{c.Shadows.DirectionalExtent > 0, "shadows.directional_extent", "must be positive"},
		{c.Shadows.Near > 0 && c.Shadows.Far > c.Shadows.Near, "shadows.near", "must satisfy 0 < near < far"},
		{c.Shadows.Bias >= 0, "shadows.bias", "must not be negative"},
		{c.Shadows.NormalBias >= 0, "shadows.normal_bias", "must not be negative"},
		{c.Shadows.PCFRadius >= 0, "shadows.pcf_radius", "must not be negative"},
		{c.Shadows.Workers >= 0, "shadows.workers", "must not be negative"},
		{c.Postprocess.Exposure > 0, "postprocess.exposure", "must be positive"},
		{c.Postprocess.Gamma >= 0, "postprocess.gamma", "must not be negative"},
		{c.Postprocess.OverlayOpacity >= 0 && c.Postprocess.OverlayOpacity <= 1, "postprocess.overlay_opacity", "must be in [0, 1]"},
		{c.Software.Workers >= 0, "software.workers", "must not be negative"},
		{c.Software.BandHeight > 0, "software.band_height", "must be positive"},
		{c.Frame.Timeout >= 0, "frame.timeout", "must not be negative"},
	}
	for _, ch := range checks {
		if !ch.ok {
			return &ValidationError{Field: ch.field, Reason: ch.reason}
		}
	}
	for i, v := range c.Lighting.Ambient {
		if v < 0 {
			return &ValidationError{Field: fmt.Sprintf("lighting.ambient[%d]", i), Reason: "must not be negative"}
		}
	}
	return nil
}

// ShadowConfig maps the shadow section onto the light package parameters.
func (c Config) ShadowConfig() light.ShadowConfig {
	return light.ShadowConfig{
		Resolution:      c.Shadows.Resolution,
		HalfExtent:      c.Shadows.DirectionalExtent,
		Near:            c.Shadows.Near,
		Far:             c.Shadows.Far,
		Bias:            c.Shadows.Bias,
		NormalBiasScale: c.Shadows.NormalBias,
		PCFRadius:       c.Shadows.PCFRadius,
	}
}

// PostParams maps the postprocess section onto the composite parameters.
func (c Config) PostParams() postfx.Params {
	return postfx.Params{
		Exposure: c.Postprocess.Exposure,
		Gamma:    c.Postprocess.Gamma,
		ToneMap:  c.Postprocess.ToneMap,
		Overlay:  c.Postprocess.Overlay,
	}
}

// Ambient returns the configured ambient color.
func (c Config) Ambient() mgl32.Vec3 {
	return mgl32.Vec3(c.Lighting.Ambient)
}
