package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/config"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithDevice sets the device the renderer draws with. The renderer takes ownership and closes it
// in Close.
//
// Parameters:
//   - dev: a software or webgpu device
//
// Returns:
//   - RendererBuilderOption: a function that applies the device option to a renderer
func WithDevice(dev backend.Device) RendererBuilderOption {
	return func(r *renderer) {
		r.dev = dev
	}
}

// WithConfig maps a configuration onto the pass options and the frame timeout. Later pass
// options override it.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - RendererBuilderOption: a function that applies the configuration to a renderer
func WithConfig(cfg config.Config) RendererBuilderOption {
	return func(r *renderer) {
		r.passOpts = append(r.passOpts,
			pass.WithShadowConfig(cfg.ShadowConfig()),
			pass.WithAtlasLayers(cfg.Shadows.AtlasLayers),
			pass.WithPostParams(cfg.PostParams()),
			pass.WithOverlayOpacity(cfg.Postprocess.OverlayOpacity),
		)
		if cfg.Shadows.Workers > 0 {
			r.passOpts = append(r.passOpts, pass.WithWorkers(cfg.Shadows.Workers))
		}
		r.timeout = cfg.Frame.Timeout.Std()
	}
}

// WithPassOptions appends options handed to every pass constructor.
//
// Parameters:
//   - opts: the pass options
//
// Returns:
//   - RendererBuilderOption: a function that applies the pass options to a renderer
func WithPassOptions(opts ...pass.PassBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.passOpts = append(r.passOpts, opts...)
	}
}

// WithLogger sets the logger of the renderer, its resource manager and its passes. The default
// is the package logger at construction time.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger to a renderer
func WithLogger(logger *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithProfiler sets the profiler pass timings are recorded into.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - RendererBuilderOption: a function that applies the profiler to a renderer
func WithProfiler(p *profiler.Profiler) RendererBuilderOption {
	return func(r *renderer) {
		r.profiler = p
	}
}

// WithStateObserver registers a function called on every frame state transition, from the
// goroutine running RenderFrame.
//
// Parameters:
//   - fn: the observer
//
// Returns:
//   - RendererBuilderOption: a function that applies the observer to a renderer
func WithStateObserver(fn func(FrameState)) RendererBuilderOption {
	return func(r *renderer) {
		r.observe = fn
	}
}
