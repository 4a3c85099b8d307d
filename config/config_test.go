package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/postfx"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	doc := []byte(`
surface:
  width: 320
  height: 200
  format: bgra8unorm-srgb
shadows:
  pcf_radius: 0
  atlas_layers: 12
postprocess:
  tone_map: reinhard
  overlay: before_tonemap
frame:
  timeout: 250ms
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Default()
	if cfg.Surface.Width != 320 || cfg.Surface.Height != 200 {
		t.Errorf("surface = %dx%d", cfg.Surface.Width, cfg.Surface.Height)
	}
	if cfg.Surface.Format.Format() != gputypes.TextureFormatBGRA8UnormSrgb {
		t.Errorf("format = %v", cfg.Surface.Format.Format())
	}
	if cfg.Shadows.PCFRadius != 0 || cfg.Shadows.AtlasLayers != 12 {
		t.Errorf("shadows = %+v", cfg.Shadows)
	}
	if cfg.Shadows.Resolution != def.Shadows.Resolution {
		t.Errorf("resolution = %d, want default %d", cfg.Shadows.Resolution, def.Shadows.Resolution)
	}
	if cfg.Postprocess.ToneMap != postfx.ToneMapReinhard || cfg.Postprocess.Overlay != postfx.OverlayBeforeToneMap {
		t.Errorf("postprocess = %+v", cfg.Postprocess)
	}
	if cfg.Postprocess.Exposure != def.Postprocess.Exposure {
		t.Errorf("exposure = %v, want default", cfg.Postprocess.Exposure)
	}
	if cfg.Frame.Timeout.Std() != 250*time.Millisecond {
		t.Errorf("timeout = %v", cfg.Frame.Timeout.Std())
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg != Default() {
		t.Errorf("empty document changed the defaults: %+v", cfg)
	}
}

func TestDurationMilliseconds(t *testing.T) {
	cfg, err := Parse([]byte("frame:\n  timeout: 40\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Frame.Timeout.Std() != 40*time.Millisecond {
		t.Errorf("timeout = %v, want 40ms", cfg.Frame.Timeout.Std())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"zero width", "surface:\n  width: 0\n", "surface"},
		{"negative pcf", "shadows:\n  pcf_radius: -1\n", "shadows.pcf_radius"},
		{"near past far", "shadows:\n  near: 10\n  far: 5\n", "shadows.near"},
		{"opacity", "postprocess:\n  overlay_opacity: 2\n", "postprocess.overlay_opacity"},
		{"format", "surface:\n  format: bc1\n", "surface.format"},
		{"ambient", "lighting:\n  ambient: [0.1, -1, 0]\n", "lighting.ambient[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestParseRejectsUnknownKeysAndValues(t *testing.T) {
	for _, doc := range []string{
		"surface:\n  depth: 3\n",
		"postprocess:\n  tone_map: filmic\n",
		"frame:\n  timeout: soon\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%q) succeeded", doc)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxy.yaml")
	if err := os.WriteFile(path, []byte("lighting:\n  ambient: [0.2, 0.2, 0.2]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ambient()[1] != 0.2 {
		t.Errorf("ambient = %v", cfg.Ambient())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestMappings(t *testing.T) {
	cfg := Default()
	cfg.Shadows.DirectionalExtent = 12
	cfg.Postprocess.Gamma = 1.8
	if got := cfg.ShadowConfig().HalfExtent; got != 12 {
		t.Errorf("HalfExtent = %v", got)
	}
	if got := cfg.PostParams().Gamma; got != 1.8 {
		t.Errorf("Gamma = %v", got)
	}
}
