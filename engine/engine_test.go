package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend/software"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

func newTestRenderer(t *testing.T) (renderer.Renderer, software.Device) {
	t.Helper()
	dev, err := software.New(
		software.WithSurface(gputypes.TextureFormatRGBA8Unorm, 16, 16),
		software.WithWorkers(1),
	)
	if err != nil {
		t.Fatalf("software.New: %v", err)
	}
	shadow := light.DefaultShadowConfig()
	shadow.Resolution = 32
	r, err := renderer.NewRenderer(
		renderer.WithDevice(dev),
		renderer.WithPassOptions(pass.WithShadowConfig(shadow), pass.WithAtlasLayers(2)),
	)
	if err != nil {
		dev.Close()
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, dev
}

func newTestScene(t *testing.T, r renderer.Renderer) scene.Scene {
	t.Helper()
	cube, err := r.UploadMesh("cube", model.Cube(1))
	if err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	cam := camera.NewCamera(camera.WithPosition(0, 2, 5), camera.WithTarget(0, 0, 0))
	s := scene.NewScene("test", cam,
		scene.WithObjects(game_object.NewGameObject(
			game_object.WithMesh(cube),
			game_object.WithRotationSpeed(0, 1, 0),
		)),
		scene.WithLights(light.NewLight(light.LightTypeDirectional, light.WithDirection(0, -1, -1))),
	)
	t.Cleanup(s.Close)
	return s
}

func TestRunStopsAfterMaxFrames(t *testing.T) {
	r, dev := newTestRenderer(t)
	var seen []uint64
	e, err := NewEngine(WithRenderer(r), WithScene(newTestScene(t, r)), WithMaxFrames(3))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.SetFrameCallback(func(frame uint64, _ float32) {
		seen = append(seen, frame)
	})
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 3 || seen[2] != 2 {
		t.Errorf("frame callbacks = %v", seen)
	}
	if got := dev.FramesSubmitted(); got != 3 {
		t.Errorf("device submitted %d frames, want 3", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r, _ := newTestRenderer(t)
	e, err := NewEngine(WithRenderer(r), WithScene(newTestScene(t, r)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.SetFrameCallback(func(frame uint64, _ float32) {
		if frame == 1 {
			cancel()
		}
	})
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run after cancel = %v, want nil", err)
	}
}

func TestRunReportsDeviceLoss(t *testing.T) {
	r, dev := newTestRenderer(t)
	e, err := NewEngine(WithRenderer(r), WithScene(newTestScene(t, r)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	dev.LoseDevice()
	err = e.Run(context.Background())
	var lost *renderer.DeviceLostError
	if !errors.As(err, &lost) {
		t.Fatalf("Run = %v, want *renderer.DeviceLostError", err)
	}
}

func TestEngineGuards(t *testing.T) {
	if _, err := NewEngine(); !errors.Is(err, ErrNoRenderer) {
		t.Errorf("NewEngine() = %v, want ErrNoRenderer", err)
	}
	r, _ := newTestRenderer(t)
	e, err := NewEngine(WithRenderer(r))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Run(context.Background()); !errors.Is(err, ErrNoScene) {
		t.Errorf("Run without a scene = %v, want ErrNoScene", err)
	}
}
