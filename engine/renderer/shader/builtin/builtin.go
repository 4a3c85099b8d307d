// Package builtin embeds the WGSL of the renderer's passes and exports their shader keys and
// binding slot names. The software backend registers a Go program under each key.
package builtin

import (
	_ "embed"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Shader keys.
const (
	KeyGBufferVS     = "gbuffer.vs"
	KeyGBufferFS     = "gbuffer.fs"
	KeyShadowVS      = "shadow.vs"
	KeyFullscreenVS  = "fullscreen.vs"
	KeyLightingFS    = "lighting.fs"
	KeyPostprocessFS = "postprocess.fs"
)

// Entry point names shared by every builtin shader.
const (
	EntryVertex   = "vs_main"
	EntryFragment = "fs_main"
)

// Binding slot names. Each matches the WGSL variable it binds.
const (
	SlotCamera        = "camera"
	SlotLocals        = "locals"
	SlotGPosition     = "g_position"
	SlotGNormal       = "g_normal"
	SlotGAlbedo       = "g_albedo"
	SlotLights        = "lights"
	SlotParams        = "params"
	SlotShadowMap     = "shadow_map"
	SlotShadowSampler = "shadow_sampler"
	SlotLitColor      = "lit_color"
	SlotPost          = "post"
	SlotOverlay       = "overlay"
	SlotOverlayParams = "overlay_params"
)

// G-buffer color target locations.
const (
	GBufferPositionLocation = 0
	GBufferNormalLocation   = 1
	GBufferAlbedoLocation   = 2
)

//go:embed assets/gbuffer_vs.wgsl
var gbufferVSSource string

//go:embed assets/gbuffer_fs.wgsl
var gbufferFSSource string

//go:embed assets/shadow_vs.wgsl
var shadowVSSource string

//go:embed assets/fullscreen_vs.wgsl
var fullscreenVSSource string

//go:embed assets/lighting_fs.wgsl
var lightingFSSource string

//go:embed assets/postprocess_fs.wgsl
var postprocessFSSource string

// registry holds the processed spec of every builtin shader, built once at init.
var registry = map[string]shader.Spec{
	KeyGBufferVS:     shader.MustSpec(KeyGBufferVS, gputypes.ShaderStageVertex, gbufferVSSource, EntryVertex),
	KeyGBufferFS:     shader.MustSpec(KeyGBufferFS, gputypes.ShaderStageFragment, gbufferFSSource, EntryFragment),
	KeyShadowVS:      shader.MustSpec(KeyShadowVS, gputypes.ShaderStageVertex, shadowVSSource, EntryVertex),
	KeyFullscreenVS:  shader.MustSpec(KeyFullscreenVS, gputypes.ShaderStageVertex, fullscreenVSSource, EntryVertex),
	KeyLightingFS:    shader.MustSpec(KeyLightingFS, gputypes.ShaderStageFragment, lightingFSSource, EntryFragment),
	KeyPostprocessFS: shader.MustSpec(KeyPostprocessFS, gputypes.ShaderStageFragment, postprocessFSSource, EntryFragment),
}

// Spec returns the processed spec of a builtin shader.
//
// Parameters:
//   - key: one of the Key constants
//
// Returns:
//   - shader.Spec: the spec
//   - bool: false for unknown keys
func Spec(key string) (shader.Spec, bool) {
	s, ok := registry[key]
	return s, ok
}

// MustGet returns the spec of a builtin shader and panics for unknown keys.
func MustGet(key string) shader.Spec {
	s, ok := registry[key]
	if !ok {
		panic("builtin: unknown shader key " + key)
	}
	return s
}

// Keys returns every builtin shader key.
func Keys() []string {
	return []string{KeyGBufferVS, KeyGBufferFS, KeyShadowVS, KeyFullscreenVS, KeyLightingFS, KeyPostprocessFS}
}
