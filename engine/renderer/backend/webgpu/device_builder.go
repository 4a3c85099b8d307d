package webgpu

import (
	"log/slog"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// PresentMode controls how frames are presented to the surface.
type PresentMode int

const (
	// PresentModeVSync waits for vertical sync; the frame rate is capped at the display refresh.
	PresentModeVSync PresentMode = iota
	// PresentModeUncapped presents immediately and may tear.
	PresentModeUncapped
)

func (m PresentMode) native() wgpu.PresentMode {
	if m == PresentModeUncapped {
		return wgpu.PresentModeImmediate
	}
	return wgpu.PresentModeFifo
}

// DeviceBuilderOption is a functional option for configuring a webgpu Device.
type DeviceBuilderOption func(*device)

// WithSurfaceSize sets the initial surface size, normally the window framebuffer size.
//
// Parameters:
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//
// Returns:
//   - DeviceBuilderOption: a function that sets the surface size
func WithSurfaceSize(width, height uint32) DeviceBuilderOption {
	return func(d *device) {
		if width > 0 && height > 0 {
			d.width, d.height = width, height
		}
	}
}

// WithPresentMode sets the surface present mode.
//
// Parameters:
//   - mode: PresentModeVSync or PresentModeUncapped
//
// Returns:
//   - DeviceBuilderOption: a function that sets the present mode
func WithPresentMode(mode PresentMode) DeviceBuilderOption {
	return func(d *device) {
		d.presentMode = mode.native()
	}
}

// WithForceFallbackAdapter requests the platform's software adapter instead of a hardware GPU.
//
// Parameters:
//   - force: whether to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that sets the adapter preference
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *device) {
		d.forceFallback = force
	}
}

// WithLimits overrides the limits target allocation is checked against. Zero dimensions fall back
// to the adapter limits.
//
// Parameters:
//   - limits: the limits
//
// Returns:
//   - DeviceBuilderOption: a function that sets the limits
func WithLimits(limits backend.Limits) DeviceBuilderOption {
	return func(d *device) {
		d.limits = limits
	}
}

// WithMemoryBudget bounds the bytes of live targets.
//
// Parameters:
//   - bytes: the budget, 0 for unbounded
//
// Returns:
//   - DeviceBuilderOption: a function that sets the budget
func WithMemoryBudget(bytes uint64) DeviceBuilderOption {
	return func(d *device) {
		d.limits.MemoryBudget = bytes
	}
}

// WithLogger sets the device logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - DeviceBuilderOption: a function that sets the logger
func WithLogger(logger *slog.Logger) DeviceBuilderOption {
	return func(d *device) {
		if logger != nil {
			d.logger = logger
		}
	}
}
