package pass

import (
	"log/slog"
	"runtime"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/postfx"
)

// DefaultAtlasLayers is the default layer count of the shadow atlas.
const DefaultAtlasLayers = 8

// DefaultOverlayOpacity is the default global opacity of the overlay layer.
const DefaultOverlayOpacity float32 = 1

// options collects the settings every pass constructor reads from.
type options struct {
	logger         *slog.Logger
	shadow         light.ShadowConfig
	atlasLayers    int
	workers        int
	post           postfx.Params
	overlayOpacity float32
	uv             UVPolicy
}

func defaultOptions() options {
	return options{
		logger:         slog.New(slog.DiscardHandler),
		shadow:         light.DefaultShadowConfig(),
		atlasLayers:    DefaultAtlasLayers,
		workers:        max(runtime.NumCPU()-1, 1),
		post:           postfx.DefaultParams(),
		overlayOpacity: DefaultOverlayOpacity,
		uv:             UVTopLeft,
	}
}

func collect(opts []PassBuilderOption) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PassBuilderOption is a functional option shared by the pass constructors. Each constructor
// reads only the settings it needs.
type PassBuilderOption func(*options)

// WithLogger sets the logger passes report degradations to.
//
// Parameters:
//   - logger: the logger, nil keeps the discarding default
//
// Returns:
//   - PassBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) PassBuilderOption {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithShadowConfig sets the shadow map resolution, projection and filtering parameters.
//
// Parameters:
//   - cfg: the shadow configuration
//
// Returns:
//   - PassBuilderOption: option function to apply
func WithShadowConfig(cfg light.ShadowConfig) PassBuilderOption {
	return func(o *options) {
		o.shadow = cfg
	}
}

// WithAtlasLayers sets how many shadow layers the atlas holds. A point light takes six.
//
// Parameters:
//   - n: the layer count (minimum 1)
//
// Returns:
//   - PassBuilderOption: option function to apply
func WithAtlasLayers(n int) PassBuilderOption {
	return func(o *options) {
		o.atlasLayers = max(n, 1)
	}
}

// WithWorkers bounds the goroutines preparing shadow views in parallel.
//
// Parameters:
//   - n: the worker count (minimum 1)
//
// Returns:
//   - PassBuilderOption: option function to apply
func WithWorkers(n int) PassBuilderOption {
	return func(o *options) {
		o.workers = max(n, 1)
	}
}

// WithPostParams sets exposure, tone mapping, gamma and the overlay order.
//
// Parameters:
//   - p: the composite parameters
//
// Returns:
//   - PassBuilderOption: option function to apply
func WithPostParams(p postfx.Params) PassBuilderOption {
	return func(o *options) {
		o.post = p
	}
}

// WithOverlayOpacity sets the global overlay opacity.
func WithOverlayOpacity(opacity float32) PassBuilderOption {
	return func(o *options) {
		o.overlayOpacity = opacity
	}
}

// WithUVPolicy sets the texture coordinate origin of the full-screen quad.
func WithUVPolicy(p UVPolicy) PassBuilderOption {
	return func(o *options) {
		o.uv = p
	}
}
