package software

import (
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// DefaultBandHeight is the number of rows rasterized per worker task.
const DefaultBandHeight = 32

// DeviceBuilderOption is a functional option for configuring a software Device.
type DeviceBuilderOption func(*device)

// WithSurface sets the presentable surface format and size.
//
// Parameters:
//   - format: the surface format
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//
// Returns:
//   - DeviceBuilderOption: a function that sets the surface
func WithSurface(format gputypes.TextureFormat, width, height uint32) DeviceBuilderOption {
	return func(d *device) {
		d.surfaceFormat = format
		d.surfaceWidth = width
		d.surfaceHeight = height
	}
}

// WithWorkers sets the number of raster workers. Values below 2 rasterize on the calling goroutine.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - DeviceBuilderOption: a function that sets the worker count
func WithWorkers(n int) DeviceBuilderOption {
	return func(d *device) {
		d.workers = n
	}
}

// WithBandHeight sets the number of rows per raster task.
//
// Parameters:
//   - rows: rows per band, at least 1
//
// Returns:
//   - DeviceBuilderOption: a function that sets the band height
func WithBandHeight(rows int) DeviceBuilderOption {
	return func(d *device) {
		d.raster.bandHeight = max(rows, 1)
	}
}

// WithLimits sets the device limits.
//
// Parameters:
//   - limits: the limits allocation is checked against
//
// Returns:
//   - DeviceBuilderOption: a function that sets the limits
func WithLimits(limits backend.Limits) DeviceBuilderOption {
	return func(d *device) {
		d.limits = limits
	}
}

// WithMemoryBudget bounds the bytes of live targets, leaving the other limits unchanged.
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

// WithPrograms replaces the builtin program registry.
//
// Parameters:
//   - programs: the registry shaders are compiled against
//
// Returns:
//   - DeviceBuilderOption: a function that sets the registry
func WithPrograms(programs *Programs) DeviceBuilderOption {
	return func(d *device) {
		d.programs = programs
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
