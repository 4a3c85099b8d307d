package renderer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice is returned by NewRenderer when no device was supplied.
	ErrNoDevice = errors.New("renderer: no device")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("renderer: closed")

	// ErrNilSnapshot is returned by RenderFrame for a nil snapshot.
	ErrNilSnapshot = errors.New("renderer: nil snapshot")

	// ErrUnknownTarget is returned by ReadTarget for names other than the documented ones.
	ErrUnknownTarget = errors.New("renderer: unknown target")
)

// DeviceLostError reports that the device or the presentation surface is gone. It is fatal: the
// renderer returns it from every later RenderFrame and must be rebuilt on a new device.
type DeviceLostError struct {
	// Err wraps backend.ErrDeviceLost or backend.ErrSurfaceLost.
	Err error
}

func (e *DeviceLostError) Error() string {
	return fmt.Sprintf("renderer: device lost: %v", e.Err)
}

func (e *DeviceLostError) Unwrap() error {
	return e.Err
}
