// Command oxy-deferred renders a demo scene with the deferred pipeline. By default it renders a
// fixed number of frames on the software backend and writes the last one to a PNG file; with
// -window it opens a GLFW window and renders through WebGPU until the window is closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/schollz/progressbar/v3"

	"github.com/Carmen-Shannon/oxy-deferred/config"
	"github.com/Carmen-Shannon/oxy-deferred/engine"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend/software"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend/webgpu"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/overlay"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
)

// headlessShadowResolution caps the shadow map size on the CPU backend, which stores every
// atlas texel as four floats.
const headlessShadowResolution = 1024

type app struct {
	logger *slog.Logger
	cfg    config.Config
}

func (a *app) run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	configPath := fs.String("config", "", "YAML configuration file")
	frames := fs.Uint64("frames", 60, "frames to render in headless mode")
	out := fs.String("out", "frame.png", "PNG file the last headless frame is written to")
	windowed := fs.Bool("window", false, "render into a window through WebGPU")
	verbose := fs.Bool("v", false, "log per-frame detail")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	renderer.SetLogger(a.logger)

	a.cfg = config.Default()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *windowed {
		return a.runWindow(ctx)
	}
	return a.runHeadless(ctx, *frames, *out)
}

func (a *app) runHeadless(ctx context.Context, frames uint64, out string) error {
	if a.cfg.Shadows.Resolution > headlessShadowResolution {
		a.logger.Info("clamping shadow resolution for the software backend",
			"configured", a.cfg.Shadows.Resolution, "used", headlessShadowResolution)
		a.cfg.Shadows.Resolution = headlessShadowResolution
	}
	opts := []software.DeviceBuilderOption{
		software.WithSurface(a.cfg.Surface.Format.Format(), a.cfg.Surface.Width, a.cfg.Surface.Height),
		software.WithBandHeight(a.cfg.Software.BandHeight),
		software.WithLogger(a.logger),
	}
	if a.cfg.Software.Workers > 0 {
		opts = append(opts, software.WithWorkers(a.cfg.Software.Workers))
	}
	if a.cfg.Software.MemoryBudget > 0 {
		opts = append(opts, software.WithMemoryBudget(a.cfg.Software.MemoryBudget))
	}
	dev, err := software.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create software device: %w", err)
	}
	r, err := a.newRenderer(dev)
	if err != nil {
		return err
	}
	defer r.Close()

	s, err := a.demoScene(r)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := engine.NewEngine(
		engine.WithRenderer(r),
		engine.WithScene(s),
		engine.WithMaxFrames(frames),
		engine.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	pb := progressbar.Default(int64(frames))
	defer pb.Close()
	e.SetFrameCallback(func(uint64, float32) {
		pb.Add(1)
	})
	if err := e.Run(ctx); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	data, err := r.ReadTarget(renderer.TargetFinal)
	if err != nil {
		return fmt.Errorf("failed to read back the final frame: %w", err)
	}
	if err := writePNG(out, data.Image()); err != nil {
		return err
	}
	stats := r.Stats()
	a.logger.Info("frame written",
		"path", out,
		"frames", stats.Frames,
		"drawn", stats.Last.Drawn,
		"culled", stats.Last.Culled,
		"shadow_views", stats.Last.ShadowViews,
		"target_bytes", stats.Resources.TargetBytes)
	return nil
}

func (a *app) runWindow(ctx context.Context) error {
	w, err := window.NewWindow(
		window.WithTitle("oxy-deferred"),
		window.WithSize(int(a.cfg.Surface.Width), int(a.cfg.Surface.Height)),
		window.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	width, height := w.Size()
	dev, err := webgpu.New(w.SurfaceDescriptor(),
		webgpu.WithSurfaceSize(width, height),
		webgpu.WithPresentMode(webgpu.PresentModeVSync),
		webgpu.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create webgpu device: %w", err)
	}
	r, err := a.newRenderer(dev)
	if err != nil {
		return err
	}
	defer r.Close()

	s, err := a.demoScene(r)
	if err != nil {
		return err
	}
	defer s.Close()
	s.Camera().SetAspect(float32(width) / float32(max(height, 1)))

	e, err := engine.NewEngine(
		engine.WithRenderer(r),
		engine.WithWindow(w),
		engine.WithScene(s),
		engine.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	hud := hudOverlay()
	showHUD := true
	w.SetKeyCallback(func(key window.Key) {
		switch key {
		case window.KeyO:
			showHUD = !showHUD
			if showHUD {
				s.SetOverlay(hud)
			} else {
				s.SetOverlay(nil)
			}
		case window.KeySpace:
			for _, l := range s.Lights() {
				if l.Type() == light.LightTypeDirectional {
					l.SetCastsShadows(!l.CastsShadows())
				}
			}
		}
	})
	return e.Run(ctx)
}

func (a *app) newRenderer(dev backend.Device) (renderer.Renderer, error) {
	r, err := renderer.NewRenderer(
		renderer.WithDevice(dev),
		renderer.WithConfig(a.cfg),
		renderer.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	return r, nil
}

// demoScene builds a floor with a ring of spinning cubes, lit by a sun, two point lights and a
// spot light.
func (a *app) demoScene(r renderer.Renderer) (scene.Scene, error) {
	floor, err := r.UploadMesh("floor", model.Plane(40))
	if err != nil {
		return nil, err
	}
	cube, err := r.UploadMesh("cube", model.Cube(1))
	if err != nil {
		return nil, err
	}

	cam := camera.NewCamera(
		camera.WithPosition(0, 9, 16),
		camera.WithTarget(0, 0, 0),
		camera.WithFov(mgl32.DegToRad(50)),
		camera.WithAspect(float32(a.cfg.Surface.Width)/float32(a.cfg.Surface.Height)),
		camera.WithFar(200),
	)
	s := scene.NewScene("demo", cam,
		scene.WithAmbientColor(a.cfg.Ambient()),
		scene.WithBackground(mgl32.Vec4{0.05, 0.06, 0.09, 1}),
	)

	s.Add(game_object.NewGameObject(
		game_object.WithMesh(floor),
		game_object.WithMaterial(material.NewMaterial(
			material.WithBaseColor([4]float32{0.55, 0.55, 0.5, 1}),
			material.WithRoughness(0.9),
		)),
	))
	colors := [][4]float32{
		{0.8, 0.2, 0.2, 1},
		{0.2, 0.7, 0.3, 1},
		{0.2, 0.4, 0.9, 1},
		{0.9, 0.8, 0.2, 1},
		{0.7, 0.3, 0.8, 1},
		{0.9, 0.9, 0.9, 1},
	}
	for i, c := range colors {
		angle := float32(i) * 2 * mgl32.Pi / float32(len(colors))
		pos := mgl32.Rotate2D(angle).Mul2x1(mgl32.Vec2{5, 0})
		s.Add(game_object.NewGameObject(
			game_object.WithMesh(cube),
			game_object.WithPosition(pos[0], 0.5+float32(i%2), pos[1]),
			game_object.WithRotationSpeed(0, 0.4+0.1*float32(i), 0),
			game_object.WithMaterial(material.NewMaterial(
				material.WithBaseColor(c),
				material.WithMetallic(float32(i%3)/2),
			)),
		))
	}

	s.AddLight(light.NewLight(light.LightTypeDirectional,
		light.WithDirection(-0.4, -1, -0.3),
		light.WithIntensity(2.5),
	))
	s.AddLight(light.NewLight(light.LightTypePoint,
		light.WithPosition(0, 3, 0),
		light.WithColor(1, 0.6, 0.3),
		light.WithIntensity(6),
		light.WithRange(12),
	))
	s.AddLight(light.NewLight(light.LightTypePoint,
		light.WithPosition(-6, 2, 6),
		light.WithColor(0.3, 0.5, 1),
		light.WithIntensity(4),
		light.WithRange(10),
		light.WithCastsShadows(false),
	))
	s.AddLight(light.NewLight(light.LightTypeSpot,
		light.WithPosition(6, 6, 6),
		light.WithDirection(-1, -1, -1),
		light.WithSpotCone(15, 25),
		light.WithIntensity(8),
		light.WithRange(25),
	))
	s.SetOverlay(hudOverlay())
	return s, nil
}

// hudOverlay is a translucent panel in the top-left corner.
func hudOverlay() *overlay.DrawList {
	return overlay.NewDrawList(nil).
		FillRect(image.Rect(8, 8, 168, 40), color.NRGBA{R: 10, G: 10, B: 14, A: 160}).
		FillRect(image.Rect(14, 20, 160, 28), color.NRGBA{R: 90, G: 200, B: 120, A: 255})
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func main() {
	a := app{}

	if err := a.run(); err != nil {
		fmt.Fprintf(os.Stderr, "oxy-deferred: %v\n", err)
		os.Exit(1)
	}
}
