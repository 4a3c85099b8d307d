package renderer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/config"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend/software"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

const testSize = 16

type fixture struct {
	dev     software.Device
	r       Renderer
	sun     light.Light
	snap    *scene.Snapshot
	states  []FrameState
	onState func(FrameState)
}

func newFixture(t *testing.T, extra ...RendererBuilderOption) *fixture {
	t.Helper()
	dev, err := software.New(
		software.WithSurface(gputypes.TextureFormatRGBA8Unorm, testSize, testSize),
		software.WithWorkers(1),
	)
	if err != nil {
		t.Fatalf("software.New: %v", err)
	}
	fx := &fixture{dev: dev}
	shadow := light.DefaultShadowConfig()
	shadow.Resolution = 32
	shadow.HalfExtent = 12
	opts := append([]RendererBuilderOption{
		WithDevice(dev),
		WithPassOptions(pass.WithShadowConfig(shadow), pass.WithWorkers(2)),
		WithStateObserver(func(s FrameState) {
			fx.states = append(fx.states, s)
			if fx.onState != nil {
				fx.onState(s)
			}
		}),
	}, extra...)
	if fx.r, err = NewRenderer(opts...); err != nil {
		dev.Close()
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() { fx.r.Close() })

	floor, err := fx.r.UploadMesh("floor", model.Plane(20))
	if err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	cube, err := fx.r.UploadMesh("cube", model.Cube(2))
	if err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	cam := camera.NewCamera(
		camera.WithPosition(0, 10, 0),
		camera.WithTarget(0, 0, 0),
		camera.WithUp(0, 0, -1),
		camera.WithFov(mgl32.DegToRad(90)),
	)
	fx.sun = light.NewLight(light.LightTypeDirectional, light.WithDirection(1, -1, 0))
	grey := material.NewMaterial(material.WithBaseColor([4]float32{0.8, 0.8, 0.8, 1}))
	fx.snap, err = scene.NewSnapshotBuilder().
		Camera(cam.State()).
		Draw(floor, mgl32.Ident4(), grey).
		Draw(cube, mgl32.Translate3D(0, 2, 0), grey).
		Light(fx.sun).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return fx
}

func TestRenderFrameStateSequence(t *testing.T) {
	fx := newFixture(t)
	if got := fx.r.State(); got != StateIdle {
		t.Fatalf("initial state = %s", got)
	}
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	want := []FrameState{
		StateGeometrySubmitted,
		StateShadowsSubmitted,
		StateLightingSubmitted,
		StateComposited,
		StatePresented,
		StateIdle,
	}
	if !slices.Equal(fx.states, want) {
		t.Fatalf("transitions = %v, want %v", fx.states, want)
	}
	stats := fx.r.Stats()
	if stats.Frames != 1 || stats.Aborted != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Last.Drawn == 0 || stats.Last.ShadowViews != 1 {
		t.Errorf("last frame = %+v, want draws and one shadow view", stats.Last)
	}
	if fx.dev.FramesSubmitted() != 1 {
		t.Errorf("device submitted %d frames", fx.dev.FramesSubmitted())
	}
}

func TestShadowStateAcrossFrames(t *testing.T) {
	fx := newFixture(t)
	if got := fx.r.ShadowState(fx.sun.ID()); got != light.ShadowStateUnshadowed {
		t.Fatalf("before the first frame = %s", got)
	}
	var during light.ShadowState
	fx.onState = func(s FrameState) {
		if s == StateLightingSubmitted {
			during = fx.r.(*renderer).shadows.State(fx.sun.ID())
		}
	}
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if during != light.ShadowStateRendering {
		t.Errorf("state while lighting = %s, want rendering", during)
	}
	if got := fx.r.ShadowState(fx.sun.ID()); got != light.ShadowStateReady {
		t.Errorf("after submission = %s, want ready", got)
	}
}

func TestCancellationAbandonsFrame(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.onState = func(s FrameState) {
		if s == StateShadowsSubmitted {
			cancel()
		}
	}
	err := fx.r.RenderFrame(ctx, fx.snap)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := fx.r.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if got := fx.r.ShadowState(fx.sun.ID()); got != light.ShadowStateUnshadowed {
		t.Errorf("shadow state = %s, want the abandoned map reverted", got)
	}
	if fx.dev.FramesSubmitted() != 0 {
		t.Errorf("an abandoned frame was submitted")
	}
	if stats := fx.r.Stats(); stats.Aborted != 1 || stats.Frames != 0 {
		t.Errorf("stats = %+v", stats)
	}

	fx.onState = nil
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame after cancellation: %v", err)
	}
}

func TestCanceledContextRendersNothing(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fx.r.RenderFrame(ctx, fx.snap); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(fx.states) != 0 {
		t.Errorf("transitions = %v, want none", fx.states)
	}
}

func TestDeviceLossIsSticky(t *testing.T) {
	fx := newFixture(t)
	fx.dev.LoseDevice()
	for i := range 2 {
		err := fx.r.RenderFrame(context.Background(), fx.snap)
		var lost *DeviceLostError
		if !errors.As(err, &lost) {
			t.Fatalf("call %d: err = %v, want *DeviceLostError", i, err)
		}
		if !errors.Is(err, backend.ErrDeviceLost) {
			t.Errorf("call %d: %v does not wrap backend.ErrDeviceLost", i, err)
		}
	}
	if got := fx.r.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestSurfaceLossIsFatal(t *testing.T) {
	fx := newFixture(t)
	fx.dev.LoseSurface()
	err := fx.r.RenderFrame(context.Background(), fx.snap)
	var lost *DeviceLostError
	if !errors.As(err, &lost) || !errors.Is(err, backend.ErrSurfaceLost) {
		t.Fatalf("err = %v, want *DeviceLostError wrapping ErrSurfaceLost", err)
	}
	if got := fx.r.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestResizeAppliesBeforeNextFrame(t *testing.T) {
	fx := newFixture(t)
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	mgr := fx.r.Resources()
	before := mgr.Stats()

	fx.r.Resize(24, 12)
	if w, h := mgr.Size(); w != testSize || h != testSize {
		t.Fatalf("resize applied eagerly: %dx%d", w, h)
	}
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	for _, name := range []string{TargetPosition, TargetLit, TargetFinal} {
		data, err := fx.r.ReadTarget(name)
		if err != nil {
			t.Fatalf("ReadTarget(%s): %v", name, err)
		}
		if data.Width != 24 || data.Height != 12 {
			t.Errorf("%s is %dx%d, want 24x12", name, data.Width, data.Height)
		}
	}

	fx.r.Resize(testSize, testSize)
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if after := mgr.Stats(); after != before {
		t.Errorf("resources after a round trip = %+v, want %+v", after, before)
	}
}

func TestReadTarget(t *testing.T) {
	fx := newFixture(t)
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	pos, err := fx.r.ReadTarget(TargetPosition)
	if err != nil {
		t.Fatalf("ReadTarget: %v", err)
	}
	if got := pos.At(testSize/2, testSize/2); got[3] != 1 {
		t.Errorf("center position w = %v, want covered", got[3])
	}
	if _, err := fx.r.ReadTarget("specular"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("err = %v, want ErrUnknownTarget", err)
	}
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Shadows.Resolution = 16
	cfg.Shadows.AtlasLayers = 2
	fx := newFixture(t, WithConfig(cfg))
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if got := fx.r.ShadowState(fx.sun.ID()); got != light.ShadowStateReady {
		t.Errorf("shadow state = %s", got)
	}
}

func TestRendererGuards(t *testing.T) {
	if _, err := NewRenderer(); !errors.Is(err, ErrNoDevice) {
		t.Errorf("NewRenderer() err = %v, want ErrNoDevice", err)
	}
	fx := newFixture(t)
	if err := fx.r.RenderFrame(context.Background(), nil); !errors.Is(err, ErrNilSnapshot) {
		t.Errorf("nil snapshot err = %v", err)
	}
	if err := fx.r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fx.r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := fx.r.RenderFrame(context.Background(), fx.snap); !errors.Is(err, ErrClosed) {
		t.Errorf("RenderFrame after Close err = %v", err)
	}
	if fx.dev.LiveResources() != 0 {
		t.Errorf("%d resources survive Close", fx.dev.LiveResources())
	}
}

func TestSetLogger(t *testing.T) {
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger() is nil after SetLogger(nil)")
	}
}

func TestPassLoggerOptionWins(t *testing.T) {
	var rendererLog, passLog bytes.Buffer
	fx := newFixture(t,
		WithLogger(slog.New(slog.NewTextHandler(&rendererLog, nil))),
		WithPassOptions(
			pass.WithLogger(slog.New(slog.NewTextHandler(&passLog, nil))),
			pass.WithAtlasLayers(1),
		),
	)
	box, err := fx.r.UploadMesh("box", model.Cube(2))
	if err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	lamp := light.NewLight(light.LightTypePoint, light.WithPosition(0, 5, 0), light.WithRange(20))
	snap, err := scene.NewSnapshotBuilder().
		Camera(fx.snap.Camera()).
		Draw(box, mgl32.Ident4(), material.NewMaterial()).
		Light(fx.sun).
		Light(lamp).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := fx.r.RenderFrame(context.Background(), snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if got := fx.r.Stats().Last.DegradedLights; got != 1 {
		t.Fatalf("degraded lights = %d, want 1", got)
	}
	if !strings.Contains(passLog.String(), "light degraded to unshadowed") {
		t.Errorf("pass logger missed the degradation warning: %q", passLog.String())
	}
	if strings.Contains(rendererLog.String(), "light degraded to unshadowed") {
		t.Errorf("renderer logger replaced the pass logger: %q", rendererLog.String())
	}
}

func TestZeroAreaResizeIsDeferred(t *testing.T) {
	fx := newFixture(t)
	mgr := fx.r.Resources()
	fx.r.Resize(0, 0)
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if w, h := mgr.Size(); w != testSize || h != testSize {
		t.Fatalf("size = %dx%d after a zero-area resize", w, h)
	}
	if fx.dev.FramesSubmitted() != 0 {
		t.Errorf("a frame was submitted at zero area")
	}

	// A resize landing between take and requeue must survive.
	r := fx.r.(*renderer)
	w, h, ok := r.takeResize()
	if !ok || w != 0 || h != 0 {
		t.Fatalf("pending = %dx%d %v, want the deferred zero size", w, h, ok)
	}
	r.Resize(24, 12)
	r.requeueResize(w, h)
	if err := fx.r.RenderFrame(context.Background(), fx.snap); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if w, h := mgr.Size(); w != 24 || h != 12 {
		t.Errorf("size = %dx%d, want 24x12", w, h)
	}
}
