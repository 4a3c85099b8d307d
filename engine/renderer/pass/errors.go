package pass

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Shadow degradation reasons.
var (
	// ErrAtlasExhausted is the reason of a ShadowRenderError raised when the atlas has no free run
	// of layers for a light.
	ErrAtlasExhausted = errors.New("pass: shadow atlas exhausted")

	// ErrViewCount is the reason of a ShadowRenderError raised when a light produces a different
	// number of view-projections than it owns layers.
	ErrViewCount = errors.New("pass: shadow view count mismatch")
)

// ShadowRenderError reports a light whose shadow map could not be rendered this frame. The light
// is lit unshadowed and the frame continues.
type ShadowRenderError struct {
	// LightID identifies the light.
	LightID uuid.UUID
	// Reason is one of the Err* reasons of this package.
	Reason error
}

func (e *ShadowRenderError) Error() string {
	return fmt.Sprintf("pass: shadow for light %s: %v", e.LightID, e.Reason)
}

func (e *ShadowRenderError) Unwrap() error {
	return e.Reason
}
