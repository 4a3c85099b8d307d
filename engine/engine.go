package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
)

// ErrNoRenderer is returned by NewEngine when no renderer was supplied.
var ErrNoRenderer = errors.New("engine: no renderer")

// ErrNoScene is returned by Run when no scene is set.
var ErrNoScene = errors.New("engine: no scene")

// Engine drives a scene through a renderer. Simulation ticks run on their own goroutine at a
// fixed rate; frames are rendered on the calling goroutine, inside the window event loop when a
// window is attached.
type Engine interface {
	// SetScene replaces the rendered scene.
	//
	// Parameters:
	//   - s: the scene
	SetScene(s scene.Scene)

	// Scene returns the rendered scene, or nil.
	Scene() scene.Scene

	// Renderer returns the renderer.
	Renderer() renderer.Renderer

	// SetTickCallback registers the function called each simulation tick after the scene advanced.
	//
	// Parameters:
	//   - callback: receives the tick delta in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called after each presented frame.
	//
	// Parameters:
	//   - callback: receives the zero-based frame index and the frame delta in seconds
	SetFrameCallback(callback func(frame uint64, deltaTime float32))

	// Run renders frames until ctx is done, the window closes, the frame limit is reached or a
	// frame fails with a device loss. Pass errors that leave the device usable are logged and the
	// loop continues.
	//
	// Parameters:
	//   - ctx: cancels the loop and the frame in flight
	//
	// Returns:
	//   - error: nil on a normal stop, otherwise the first fatal error
	Run(ctx context.Context) error
}

type engine struct {
	logger   *slog.Logger
	renderer renderer.Renderer
	window   window.Window

	mu    sync.Mutex
	scene scene.Scene

	tickRate   time.Duration
	frameLimit time.Duration
	maxFrames  uint64

	tickCallback  func(deltaTime float32)
	frameCallback func(frame uint64, deltaTime float32)

	frames    uint64
	lastFrame time.Time
}

var _ Engine = &engine{}

// NewEngine creates an Engine. With a window, its resize events are forwarded to the renderer and
// the scene camera aspect.
//
// Parameters:
//   - options: functional options; WithRenderer is required
//
// Returns:
//   - Engine: the engine
//   - error: ErrNoRenderer
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		logger:   slog.New(slog.DiscardHandler),
		tickRate: time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.renderer == nil {
		return nil, ErrNoRenderer
	}
	if e.window != nil {
		e.window.SetResizeCallback(e.resize)
	}
	return e, nil
}

// resize defers the surface resize to the next frame and keeps the projection in step.
func (e *engine) resize(width, height uint32) {
	e.renderer.Resize(width, height)
	if width == 0 || height == 0 {
		return
	}
	if s := e.Scene(); s != nil && s.Camera() != nil {
		s.Camera().SetAspect(float32(width) / float32(height))
	}
}

func (e *engine) SetScene(s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scene = s
}

func (e *engine) Scene() scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scene
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(frame uint64, deltaTime float32)) {
	e.frameCallback = callback
}

// errStop ends the loops without reporting an error.
var errStop = errors.New("engine: stop")

func (e *engine) Run(ctx context.Context) error {
	if e.Scene() == nil {
		return ErrNoScene
	}
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return e.tick(gctx)
	})

	// Frames stay on the calling goroutine; GLFW only accepts calls from the main thread.
	err := e.render(gctx)
	cancel()
	if tickErr := g.Wait(); err == nil && !errors.Is(tickErr, context.Canceled) {
		err = tickErr
	}
	e.logger.Info("engine stopped", "frames", e.frames)
	if errors.Is(err, errStop) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return nil
	}
	return err
}

// render runs the frame loop until it stops or fails.
func (e *engine) render(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render loop panicked", "panic", r)
			err = fmt.Errorf("engine: render loop panicked: %v", r)
		}
	}()
	if e.window != nil {
		e.window.SetUpdateCallback(func() error {
			return e.frame(ctx)
		})
		return e.window.Run(ctx)
	}
	for {
		if err := e.frame(ctx); err != nil {
			return err
		}
	}
}

// tick advances the scene at the configured rate.
func (e *engine) tick(ctx context.Context) error {
	ticker := time.NewTicker(e.tickRate)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if s := e.Scene(); s != nil {
				s.Update(dt)
			}
			if e.tickCallback != nil {
				e.tickCallback(float32(dt.Seconds()))
			}
		}
	}
}

// frame renders one frame of the current scene.
func (e *engine) frame(ctx context.Context) error {
	if e.maxFrames > 0 && e.frames >= e.maxFrames {
		return errStop
	}
	now := time.Now()
	if e.lastFrame.IsZero() {
		e.lastFrame = now
	}
	dt := float32(now.Sub(e.lastFrame).Seconds())
	e.lastFrame = now

	snap, err := e.Scene().Snapshot()
	if err != nil {
		return fmt.Errorf("engine: snapshot: %w", err)
	}
	if err := e.renderer.RenderFrame(ctx, snap); err != nil {
		var lost *renderer.DeviceLostError
		switch {
		case errors.As(err, &lost), errors.Is(err, renderer.ErrClosed):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}
		e.logger.Warn("frame dropped", "frame", e.frames, "error", err)
		return nil
	}
	if e.frameCallback != nil {
		e.frameCallback(e.frames, dt)
	}
	e.frames++

	if e.frameLimit > 0 {
		if remaining := e.frameLimit - time.Since(now); remaining > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(remaining):
			}
		}
	}
	return nil
}
