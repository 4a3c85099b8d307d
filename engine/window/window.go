// Package window opens the desktop window the renderer presents into. It owns the GLFW event
// loop and forwards framebuffer resizes and key presses to callbacks.
package window

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrClosed is returned by calls on a closed window.
var ErrClosed = errors.New("window: closed")

// Key identifies a keyboard key by its GLFW key code.
type Key uint32

// Window is a presentable desktop window.
type Window interface {
	// SetUpdateCallback sets the function called once per event loop iteration, after pending
	// events are dispatched. Returning an error stops Run with that error.
	//
	// Parameters:
	//   - callback: the frame function, or nil
	SetUpdateCallback(callback func() error)

	// SetResizeCallback sets the function called when the framebuffer size changes. A minimized
	// window reports a zero size.
	//
	// Parameters:
	//   - callback: receives the framebuffer width and height in pixels
	SetResizeCallback(callback func(width, height uint32))

	// SetKeyCallback sets the function called for key presses and repeats. Escape always closes
	// the window and is not forwarded.
	//
	// Parameters:
	//   - callback: receives the pressed key
	SetKeyCallback(callback func(key Key))

	// SurfaceDescriptor returns the platform surface descriptor for backend/webgpu.New.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil once the window is closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Size returns the framebuffer size in pixels.
	Size() (uint32, uint32)

	// Run pumps events until the window is closed, ctx is done or the update callback fails.
	// It must be called from the goroutine that created the window.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: ctx.Err(), the update callback error, or nil when the user closed the window
	Run(ctx context.Context) error

	// Close destroys the window and terminates GLFW.
	Close() error
}

type engineWindow struct {
	logger *slog.Logger

	title     string
	width     int
	height    int
	minWidth  int
	minHeight int

	platform *glfwWindow

	onUpdate func() error
	onResize func(width, height uint32)
	onKey    func(key Key)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. The calling goroutine is locked to its OS thread, as
// GLFW requires every call to come from the main thread.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Window: the window
//   - error: an error if GLFW could not be initialized or the window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		logger:    slog.New(slog.DiscardHandler),
		title:     "oxy-deferred",
		width:     1280,
		height:    720,
		minWidth:  320,
		minHeight: 200,
	}
	for _, opt := range options {
		opt(w)
	}
	runtime.LockOSThread()
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	w.logger.Info("window created", "title", w.title, "width", w.width, "height", w.height)
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func() error) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height uint32)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyCallback(callback func(key Key)) {
	w.onKey = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return w.platform.surfaceDescriptor()
}

func (w *engineWindow) Size() (uint32, uint32) {
	return uint32(max(w.width, 0)), uint32(max(w.height, 0))
}

func (w *engineWindow) Run(ctx context.Context) error {
	if w.platform == nil {
		return ErrClosed
	}
	for w.platform.running() {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.platform.poll()
		if w.onUpdate != nil {
			if err := w.onUpdate(); err != nil {
				return err
			}
		}
		runtime.Gosched()
	}
	return nil
}

func (w *engineWindow) Close() error {
	if w.platform == nil {
		return ErrClosed
	}
	w.platform.destroy()
	w.platform = nil
	w.logger.Info("window closed")
	return nil
}

// resized records a framebuffer size change and forwards it.
func (w *engineWindow) resized(width, height int) {
	w.width, w.height = width, height
	w.logger.Debug("framebuffer resized", "width", width, "height", height)
	if w.onResize != nil {
		w.onResize(w.Size())
	}
}
