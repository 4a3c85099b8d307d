package software

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

const testSize = 8

func newTestDevice(t *testing.T, opts ...DeviceBuilderOption) Device {
	t.Helper()
	base := []DeviceBuilderOption{WithSurface(gputypes.TextureFormatRGBA8Unorm, testSize, testSize), WithWorkers(1)}
	d, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func createPipeline(t *testing.T, d Device, cfg pipeline.Config) backend.Pipeline {
	t.Helper()
	vs, err := d.CompileShader(cfg.Vertex)
	if err != nil {
		t.Fatalf("compile %s: %v", cfg.Vertex.Key, err)
	}
	var (
		fs      backend.Shader
		fsIface *shader.Interface
	)
	if !cfg.DepthOnly() {
		if fs, err = d.CompileShader(cfg.Fragment); err != nil {
			t.Fatalf("compile %s: %v", cfg.Fragment.Key, err)
		}
		iface := fs.Interface()
		fsIface = &iface
	}
	decl, err := pipeline.New(cfg, vs.Interface(), fsIface)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	p, err := d.CreatePipeline(decl, vs, fs)
	if err != nil {
		t.Fatalf("CreatePipeline: %v", err)
	}
	return p
}

func createTarget(t *testing.T, d Device, label string, format gputypes.TextureFormat) backend.Target {
	t.Helper()
	tg, err := d.CreateTarget(backend.TargetDescriptor{Label: label, Format: format, Width: testSize, Height: testSize})
	if err != nil {
		t.Fatalf("CreateTarget %s: %v", label, err)
	}
	return tg
}

// gbuffer is the target set of a geometry pass.
type gbuffer struct {
	position, normal, albedo, depth backend.Target
}

func newGBuffer(t *testing.T, d Device) gbuffer {
	return gbuffer{
		position: createTarget(t, d, "position", builtin.GBufferPositionFormat),
		normal:   createTarget(t, d, "normal", builtin.GBufferNormalFormat),
		albedo:   createTarget(t, d, "albedo", builtin.GBufferAlbedoFormat),
		depth:    createTarget(t, d, "depth", builtin.DepthFormat),
	}
}

func (g gbuffer) pass(p backend.Pipeline) backend.PassDescriptor {
	return backend.PassDescriptor{
		Label:    "geometry",
		Pipeline: p,
		Colors: []backend.ColorAttachment{
			{Target: g.position, Clear: true},
			{Target: g.normal, Clear: true},
			{Target: g.albedo, Clear: true},
		},
		Depth: &backend.DepthAttachment{Target: g.depth, Clear: true, ClearDepth: 1},
	}
}

// drawItem is one triangle mesh drawn with a flat albedo.
type drawItem struct {
	mesh   model.Mesh
	albedo [4]float32
}

func triangle(a, b, c mgl32.Vec3) model.Mesh {
	n := mgl32.Vec3{0, 0, 1}
	return model.NewMesh(model.WithName("tri"), model.WithVertices([]model.Vertex{
		{Position: a, Normal: n},
		{Position: b, Normal: n},
		{Position: c, Normal: n},
	}))
}

// renderGeometry draws items with an identity camera, so model space is clip space.
func renderGeometry(t *testing.T, d Device, items ...drawItem) gbuffer {
	t.Helper()
	p := createPipeline(t, d, builtin.GeometryConfig())
	g := newGBuffer(t, d)
	cam := camera.GPUCameraUniform{ViewProj: mgl32.Ident4(), InvViewProj: mgl32.Ident4()}

	if err := d.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	enc, err := d.BeginPass(g.pass(p))
	if err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	if err := enc.SetBinding(builtin.SlotCamera, backend.Binding{Buffer: &cam}); err != nil {
		t.Fatalf("SetBinding: %v", err)
	}
	for _, it := range items {
		m, err := d.CreateMesh("tri", it.mesh)
		if err != nil {
			t.Fatalf("CreateMesh: %v", err)
		}
		locals := model.NewGPULocals(mgl32.Ident4(), it.albedo, 0.5, 0)
		if err := enc.Draw(m, &locals); err != nil {
			t.Fatalf("Draw: %v", err)
		}
	}
	if err := enc.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	return g
}

func read(t *testing.T, d Device, tg backend.Target) backend.TargetData {
	t.Helper()
	data, err := d.ReadTarget(tg, 0)
	if err != nil {
		t.Fatalf("ReadTarget: %v", err)
	}
	return data
}

var red = [4]float32{1, 0, 0, 1}

func approx(a, b float32) bool {
	return mgl32.Abs(a-b) < 1e-5
}

func TestGeometryPassWritesCoveredPixels(t *testing.T) {
	d := newTestDevice(t)
	g := renderGeometry(t, d, drawItem{
		mesh:   triangle(mgl32.Vec3{-1, -1, 0.5}, mgl32.Vec3{1, -1, 0.5}, mgl32.Vec3{-1, 1, 0.5}),
		albedo: red,
	})

	pos := read(t, d, g.position)
	if got := pos.At(0, testSize-1); !approx(got[2], 0.5) || got[3] != 1 {
		t.Fatalf("covered position = %v, want z 0.5 and w 1", got)
	}
	if got := pos.At(testSize-1, 0); got[3] != 0 {
		t.Fatalf("uncovered position w = %v, want 0", got[3])
	}
	if got := read(t, d, g.depth).Depth(0, testSize-1); !approx(got, 0.5) {
		t.Fatalf("depth = %v, want 0.5", got)
	}
	if got := read(t, d, g.albedo).At(0, testSize-1); got != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Fatalf("albedo = %v", got)
	}
	if got := read(t, d, g.normal).At(0, testSize-1); !approx(got[2], 1) || got[3] != 0.5 {
		t.Fatalf("normal = %v, want (0,0,1) with roughness 0.5", got)
	}
}

func TestBackFacesAreCulled(t *testing.T) {
	d := newTestDevice(t)
	g := renderGeometry(t, d, drawItem{
		mesh:   triangle(mgl32.Vec3{-1, -1, 0.5}, mgl32.Vec3{-1, 1, 0.5}, mgl32.Vec3{1, -1, 0.5}),
		albedo: red,
	})
	pos := read(t, d, g.position)
	for y := range testSize {
		for x := range testSize {
			if pos.At(x, y)[3] != 0 {
				t.Fatalf("pixel (%d,%d) written by a clockwise triangle", x, y)
			}
		}
	}
}

func TestDepthTestKeepsNearest(t *testing.T) {
	d := newTestDevice(t)
	g := renderGeometry(t, d,
		drawItem{mesh: triangle(mgl32.Vec3{-1, -1, 0.5}, mgl32.Vec3{1, -1, 0.5}, mgl32.Vec3{-1, 1, 0.5}), albedo: red},
		drawItem{mesh: triangle(mgl32.Vec3{-1, -1, 0.8}, mgl32.Vec3{3, -1, 0.8}, mgl32.Vec3{-1, 3, 0.8}), albedo: [4]float32{0, 1, 0, 1}},
	)
	albedo := read(t, d, g.albedo)
	if got := albedo.At(0, testSize-1); got != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Fatalf("near pixel = %v, want red", got)
	}
	if got := albedo.At(testSize-1, 0); got != (mgl32.Vec4{0, 1, 0, 1}) {
		t.Fatalf("far-only pixel = %v, want green", got)
	}
}

func TestNearPlaneClipping(t *testing.T) {
	d := newTestDevice(t)
	// z = -y across the screen, so only the lower half lies in front of the near plane.
	g := renderGeometry(t, d, drawItem{
		mesh:   triangle(mgl32.Vec3{-1, -1, 1}, mgl32.Vec3{3, -1, 1}, mgl32.Vec3{-1, 3, -3}),
		albedo: red,
	})
	pos := read(t, d, g.position)
	for y := range testSize {
		covered := pos.At(0, y)[3] == 1
		if want := y >= testSize/2; covered != want {
			t.Errorf("row %d covered = %v, want %v", y, covered, want)
		}
	}
	depth := read(t, d, g.depth)
	for y := testSize / 2; y < testSize; y++ {
		if z := depth.Depth(0, y); z < 0 || z > 1 {
			t.Errorf("row %d depth %v outside [0,1]", y, z)
		}
	}
}

func TestBandParallelMatchesSerial(t *testing.T) {
	items := []drawItem{
		{mesh: triangle(mgl32.Vec3{-1, -1, 0.5}, mgl32.Vec3{1, -1, 0.5}, mgl32.Vec3{-1, 1, 0.5}), albedo: red},
		{mesh: triangle(mgl32.Vec3{-1, -1, 0.8}, mgl32.Vec3{3, -1, 0.2}, mgl32.Vec3{-1, 3, 0.9}), albedo: [4]float32{0, 0, 1, 1}},
	}
	serial := newTestDevice(t)
	parallel := newTestDevice(t, WithWorkers(4), WithBandHeight(1))
	a := read(t, serial, renderGeometry(t, serial, items...).albedo)
	b := read(t, parallel, renderGeometry(t, parallel, items...).albedo)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("texel value %d differs: serial %v, parallel %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestTargetAllocationLimits(t *testing.T) {
	d := newTestDevice(t,
		WithLimits(backend.Limits{MaxTextureDimension2D: 64, MaxTextureArrayLayers: 4}),
		WithMemoryBudget(64*64*4),
	)
	tests := []struct {
		name string
		desc backend.TargetDescriptor
		want error
	}{
		{"unsupported", backend.TargetDescriptor{Format: gputypes.TextureFormatBC1RGBAUnorm, Width: 4, Height: 4}, backend.ErrUnsupportedFormat},
		{"zero", backend.TargetDescriptor{Format: gputypes.TextureFormatRGBA8Unorm}, backend.ErrLimitExceeded},
		{"too wide", backend.TargetDescriptor{Format: gputypes.TextureFormatRGBA8Unorm, Width: 65, Height: 1}, backend.ErrLimitExceeded},
		{"too many layers", backend.TargetDescriptor{Format: gputypes.TextureFormatDepth32Float, Width: 4, Height: 4, Layers: 5}, backend.ErrLimitExceeded},
		{"over budget", backend.TargetDescriptor{Format: gputypes.TextureFormatRGBA32Float, Width: 64, Height: 64}, backend.ErrOutOfMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.CreateTarget(tt.desc); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if d.LiveResources() != 0 || d.MemoryUsage() != 0 {
		t.Fatalf("failed allocations leaked: live %d, memory %d", d.LiveResources(), d.MemoryUsage())
	}
}

func TestReleaseReturnsMemory(t *testing.T) {
	d := newTestDevice(t)
	tg := createTarget(t, d, "color", gputypes.TextureFormatRGBA8Unorm)
	if d.LiveResources() != 1 || d.MemoryUsage() != testSize*testSize*4 {
		t.Fatalf("live %d, memory %d", d.LiveResources(), d.MemoryUsage())
	}
	d.Release(tg)
	d.Release(tg)
	if d.LiveResources() != 0 || d.MemoryUsage() != 0 {
		t.Fatalf("after release: live %d, memory %d", d.LiveResources(), d.MemoryUsage())
	}
	if _, err := d.ReadTarget(tg, 0); !errors.Is(err, backend.ErrReleased) {
		t.Fatalf("ReadTarget released: %v", err)
	}
}

func TestForeignTargetRejected(t *testing.T) {
	a := newTestDevice(t)
	b := newTestDevice(t)
	tg := createTarget(t, a, "color", gputypes.TextureFormatRGBA8Unorm)
	if _, err := b.ReadTarget(tg, 0); !errors.Is(err, backend.ErrForeignResource) {
		t.Fatalf("err = %v, want ErrForeignResource", err)
	}
}

func TestFrameProtocol(t *testing.T) {
	d := newTestDevice(t)
	if _, err := d.BeginPass(backend.PassDescriptor{}); !errors.Is(err, backend.ErrNoFrame) {
		t.Fatalf("BeginPass outside frame: %v", err)
	}
	if err := d.EndFrame(); !errors.Is(err, backend.ErrNoFrame) {
		t.Fatalf("EndFrame outside frame: %v", err)
	}
	if err := d.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if err := d.BeginFrame(); !errors.Is(err, backend.ErrFrameInProgress) {
		t.Fatalf("nested BeginFrame: %v", err)
	}
	if err := d.Resize(16, 16); !errors.Is(err, backend.ErrFrameInProgress) {
		t.Fatalf("Resize in frame: %v", err)
	}
	enc, err := d.BeginPass(backend.PassDescriptor{Label: "clear"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.BeginPass(backend.PassDescriptor{}); !errors.Is(err, backend.ErrPassInProgress) {
		t.Fatalf("second pass: %v", err)
	}
	if err := d.EndFrame(); !errors.Is(err, backend.ErrPassInProgress) {
		t.Fatalf("EndFrame with open pass: %v", err)
	}
	if err := enc.Draw(nil, nil); !errors.Is(err, ErrNoPipeline) {
		t.Fatalf("Draw without pipeline: %v", err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); !errors.Is(err, backend.ErrNoFrame) {
		t.Fatalf("second End: %v", err)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := d.Present(); err != nil {
		t.Fatal(err)
	}
	if d.FramesSubmitted() != 1 {
		t.Fatalf("frames = %d", d.FramesSubmitted())
	}
}

func TestAbortFrameDropsCommands(t *testing.T) {
	d := newTestDevice(t)
	tg := createTarget(t, d, "color", gputypes.TextureFormatRGBA8Unorm)
	if err := d.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	enc, err := d.BeginPass(backend.PassDescriptor{
		Colors: []backend.ColorAttachment{{Target: tg, Clear: true, ClearValue: gputypes.Color{R: 1, A: 1}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.End(); err != nil {
		t.Fatal(err)
	}
	d.AbortFrame()
	if got := read(t, d, tg).At(0, 0); got != (mgl32.Vec4{}) {
		t.Fatalf("aborted clear executed: %v", got)
	}
	if err := d.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame after abort: %v", err)
	}
}

func TestBindingValidation(t *testing.T) {
	d := newTestDevice(t)
	p := createPipeline(t, d, builtin.GeometryConfig())
	g := newGBuffer(t, d)
	mesh, err := d.CreateMesh("tri", triangle(mgl32.Vec3{-1, -1, 0}, mgl32.Vec3{1, -1, 0}, mgl32.Vec3{-1, 1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	defer d.AbortFrame()
	enc, err := d.BeginPass(g.pass(p))
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.SetBinding("nope", backend.Binding{}); !errors.Is(err, backend.ErrUnknownSlot) {
		t.Fatalf("unknown slot: %v", err)
	}
	if err := enc.SetBinding(builtin.SlotCamera, backend.Binding{Target: g.albedo}); !errors.Is(err, ErrBindingKind) {
		t.Fatalf("texture in uniform slot: %v", err)
	}
	locals := model.NewGPULocals(mgl32.Ident4(), red, 0, 0)
	if err := enc.Draw(mesh, &locals); !errors.Is(err, backend.ErrMissingBinding) {
		t.Fatalf("draw without camera: %v", err)
	}
}

func TestAttachmentFormatsChecked(t *testing.T) {
	d := newTestDevice(t)
	p := createPipeline(t, d, builtin.GeometryConfig())
	g := newGBuffer(t, d)
	desc := g.pass(p)
	desc.Colors[0].Target = createTarget(t, d, "wrong", gputypes.TextureFormatRGBA8Unorm)
	if err := d.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	defer d.AbortFrame()
	if _, err := d.BeginPass(desc); !errors.Is(err, ErrAttachmentMismatch) {
		t.Fatalf("err = %v, want ErrAttachmentMismatch", err)
	}
}

func TestDeviceLoss(t *testing.T) {
	d := newTestDevice(t)
	d.LoseDevice()
	if err := d.BeginFrame(); !errors.Is(err, backend.ErrDeviceLost) {
		t.Fatalf("BeginFrame: %v", err)
	}
	if _, err := d.CreateTarget(backend.TargetDescriptor{Format: gputypes.TextureFormatRGBA8Unorm, Width: 1, Height: 1}); !errors.Is(err, backend.ErrDeviceLost) {
		t.Fatalf("CreateTarget: %v", err)
	}
}

func TestSurfaceLossRecoversOnResize(t *testing.T) {
	d := newTestDevice(t)
	d.LoseSurface()
	if err := d.Present(); !errors.Is(err, backend.ErrSurfaceLost) {
		t.Fatalf("Present: %v", err)
	}
	if err := d.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	_, err := d.BeginPass(backend.PassDescriptor{Colors: []backend.ColorAttachment{{Target: d.Surface()}}})
	if !errors.Is(err, backend.ErrSurfaceLost) {
		t.Fatalf("BeginPass on lost surface: %v", err)
	}
	d.AbortFrame()
	if err := d.Resize(testSize, testSize); err != nil {
		t.Fatal(err)
	}
	if err := d.Present(); err != nil {
		t.Fatalf("Present after resize: %v", err)
	}
}

func TestResizeReplacesSurface(t *testing.T) {
	d := newTestDevice(t)
	old := d.Surface()
	if err := d.Resize(4, 2); err != nil {
		t.Fatal(err)
	}
	if w, h := d.SurfaceSize(); w != 4 || h != 2 {
		t.Fatalf("size = %dx%d", w, h)
	}
	if d.Surface() == old {
		t.Fatal("surface not replaced")
	}
	if d.LiveResources() != 0 {
		t.Fatalf("surface counted as live resource")
	}
}

func TestCompileShaderNeedsProgram(t *testing.T) {
	d := newTestDevice(t, WithPrograms(NewPrograms()))
	if _, err := d.CompileShader(builtin.MustGet(builtin.KeyGBufferVS)); !errors.Is(err, ErrNoProgram) {
		t.Fatalf("err = %v, want ErrNoProgram", err)
	}
}
