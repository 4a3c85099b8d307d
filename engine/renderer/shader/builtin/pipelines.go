package builtin

import (
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Pipeline keys.
const (
	PipelineGeometry    = "geometry"
	PipelineShadow      = "shadow"
	PipelineLighting    = "lighting"
	PipelinePostprocess = "postprocess"
)

// Target formats of the deferred passes.
const (
	GBufferPositionFormat = gputypes.TextureFormatRGBA32Float
	GBufferNormalFormat   = gputypes.TextureFormatRGBA16Float
	GBufferAlbedoFormat   = gputypes.TextureFormatRGBA8Unorm
	DepthFormat           = gputypes.TextureFormatDepth32Float
	LitColorFormat        = gputypes.TextureFormatRGBA16Float
	OverlayFormat         = gputypes.TextureFormatRGBA8Unorm
)

// Default shadow rasterization bias.
const (
	DefaultShadowDepthBias  int32   = 2
	DefaultShadowSlopeScale float32 = 1.5
)

// GeometryConfig declares the G-buffer pipeline: back-face culled, Less depth test with writes,
// three color targets.
//
// Returns:
//   - pipeline.Config: the declaration
func GeometryConfig() pipeline.Config {
	return pipeline.NewConfig(PipelineGeometry,
		pipeline.WithVertexShader(MustGet(KeyGBufferVS)),
		pipeline.WithFragmentShader(MustGet(KeyGBufferFS)),
		pipeline.WithColorTargets(GBufferPositionFormat, GBufferNormalFormat, GBufferAlbedoFormat),
		pipeline.WithDepth(DepthFormat, gputypes.CompareFunctionLess, true),
		pipeline.WithCullMode(gputypes.CullModeBack),
		pipeline.WithSlot(SlotCamera, "camera uniform", 0, 0, shader.BindingKindUniform),
		pipeline.WithSlot(SlotLocals, "per-draw locals", 1, 0, shader.BindingKindUniform),
	)
}

// ShadowConfig declares the depth-only shadow pipeline. Both faces are rasterized so open
// meshes occlude, and a slope-scaled bias counters acne.
//
// Parameters:
//   - bias: the constant depth bias
//   - slopeScale: the slope-scaled depth bias
//
// Returns:
//   - pipeline.Config: the declaration
func ShadowConfig(bias int32, slopeScale float32) pipeline.Config {
	return pipeline.NewConfig(PipelineShadow,
		pipeline.WithVertexShader(MustGet(KeyShadowVS)),
		pipeline.WithVertexLayout(pipelineLayout(0)),
		pipeline.WithDepth(DepthFormat, gputypes.CompareFunctionLess, true),
		pipeline.WithDepthBias(bias, slopeScale),
		pipeline.WithCullMode(gputypes.CullModeNone),
		pipeline.WithSlot(SlotLocals, "per-draw locals", 1, 0, shader.BindingKindUniform),
	)
}

// LightingConfig declares the full-screen lighting pipeline.
//
// Returns:
//   - pipeline.Config: the declaration
func LightingConfig() pipeline.Config {
	return pipeline.NewConfig(PipelineLighting,
		pipeline.WithVertexShader(MustGet(KeyFullscreenVS)),
		pipeline.WithFragmentShader(MustGet(KeyLightingFS)),
		pipeline.WithVertexLayout(pipelineLayout(0, 2)),
		pipeline.WithColorTargets(LitColorFormat),
		pipeline.WithSlot(SlotGPosition, "g-buffer world position", 0, 0, shader.BindingKindUnfilterableTexture),
		pipeline.WithSlot(SlotGNormal, "g-buffer normal and roughness", 0, 1, shader.BindingKindUnfilterableTexture),
		pipeline.WithSlot(SlotGAlbedo, "g-buffer albedo", 0, 2, shader.BindingKindUnfilterableTexture),
		pipeline.WithSlot(SlotLights, "light storage", 0, 3, shader.BindingKindStorage),
		pipeline.WithSlot(SlotParams, "lighting params", 0, 4, shader.BindingKindUniform),
		pipeline.WithSlot(SlotShadowMap, "shadow atlas", 0, 5, shader.BindingKindDepthTextureArray),
		pipeline.WithSlot(SlotShadowSampler, "shadow comparison sampler", 0, 6, shader.BindingKindComparisonSampler),
	)
}

// PostprocessConfig declares the composite pipeline writing the presentable surface.
//
// Parameters:
//   - surface: the surface format
//
// Returns:
//   - pipeline.Config: the declaration
func PostprocessConfig(surface gputypes.TextureFormat) pipeline.Config {
	return pipeline.NewConfig(PipelinePostprocess,
		pipeline.WithVertexShader(MustGet(KeyFullscreenVS)),
		pipeline.WithFragmentShader(MustGet(KeyPostprocessFS)),
		pipeline.WithVertexLayout(pipelineLayout(0, 2)),
		pipeline.WithColorTargets(surface),
		pipeline.WithSlot(SlotLitColor, "lit color", 0, 0, shader.BindingKindUnfilterableTexture),
		pipeline.WithSlot(SlotPost, "composite params", 0, 1, shader.BindingKindUniform),
		pipeline.WithSlot(SlotOverlay, "overlay layer", 0, 2, shader.BindingKindUnfilterableTexture),
		pipeline.WithSlot(SlotOverlayParams, "overlay params", 0, 3, shader.BindingKindUniform),
	)
}

// pipelineLayout is the standard vertex layout reduced to the given locations.
func pipelineLayout(locations ...uint32) model.VertexLayout {
	return model.StandardLayout().Subset(locations...)
}
