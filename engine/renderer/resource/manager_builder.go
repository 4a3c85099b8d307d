package resource

import (
	"log/slog"
)

// ManagerBuilderOption is a functional option used to configure a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithLogger sets the logger pipeline creation and resizes are reported to.
//
// Parameters:
//   - logger: the logger, nil keeps the discarding default
//
// Returns:
//   - ManagerBuilderOption: a function that sets the logger
func WithLogger(logger *slog.Logger) ManagerBuilderOption {
	return func(m *manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// TargetOption configures a target allocation.
type TargetOption func(*targetRequest)

// targetRequest collects the optional parameters of a target allocation.
type targetRequest struct {
	layers uint32
}

// WithLayers allocates an array target.
//
// Parameters:
//   - layers: the array layer count
//
// Returns:
//   - TargetOption: a function that sets the layer count
func WithLayers(layers uint32) TargetOption {
	return func(r *targetRequest) {
		r.layers = layers
	}
}
