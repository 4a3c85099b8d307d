package resource

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend/software"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

func newTestManager(t *testing.T, opts ...software.DeviceBuilderOption) (Manager, software.Device) {
	t.Helper()
	base := []software.DeviceBuilderOption{
		software.WithSurface(gputypes.TextureFormatRGBA8Unorm, 8, 8),
		software.WithWorkers(1),
	}
	dev, err := software.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("software.New: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return NewManager(dev), dev
}

// gbufferTargets allocates surface-sized G-buffer targets.
func gbufferTargets(t *testing.T, m Manager) (colors []TargetHandle, depth TargetHandle) {
	t.Helper()
	for _, f := range []gputypes.TextureFormat{builtin.GBufferPositionFormat, builtin.GBufferNormalFormat, builtin.GBufferAlbedoFormat} {
		h, err := m.AllocateSurfaceTarget(f.String(), f)
		if err != nil {
			t.Fatalf("AllocateSurfaceTarget %s: %v", f, err)
		}
		colors = append(colors, h)
	}
	depth, err := m.AllocateSurfaceTarget("depth", builtin.DepthFormat)
	if err != nil {
		t.Fatalf("AllocateSurfaceTarget depth: %v", err)
	}
	return colors, depth
}

func mustPipeline(t *testing.T, m Manager, cfg pipeline.Config) PipelineHandle {
	t.Helper()
	h, err := m.CreatePipeline(cfg)
	if err != nil {
		t.Fatalf("CreatePipeline %s: %v", cfg.Key, err)
	}
	return h
}

func TestAllocateTarget(t *testing.T) {
	m, _ := newTestManager(t)
	h, err := m.AllocateTarget("atlas", builtin.DepthFormat, 16, 16, WithLayers(6))
	if err != nil {
		t.Fatalf("AllocateTarget: %v", err)
	}
	desc, err := m.TargetDescriptor(h)
	if err != nil {
		t.Fatalf("TargetDescriptor: %v", err)
	}
	if desc.LayerCount() != 6 || desc.SizeDependent {
		t.Fatalf("descriptor = %+v, want 6 fixed-size layers", desc)
	}
	if got, want := m.Stats().TargetBytes, uint64(16*16*4*6); got != want {
		t.Fatalf("TargetBytes = %d, want %d", got, want)
	}
	data, err := m.ReadTarget(h, 5)
	if err != nil {
		t.Fatalf("ReadTarget: %v", err)
	}
	if data.Depth(3, 3) != 1 {
		t.Fatalf("fresh depth layer = %v, want 1", data.Depth(3, 3))
	}
}

func TestAllocationFailure(t *testing.T) {
	m, _ := newTestManager(t, software.WithMemoryBudget(1024))
	tests := []struct {
		name   string
		format gputypes.TextureFormat
		size   uint32
		cause  error
	}{
		{"unsupported format", gputypes.TextureFormatBC1RGBAUnorm, 4, backend.ErrUnsupportedFormat},
		{"over dimension limit", gputypes.TextureFormatRGBA8Unorm, 9000, backend.ErrLimitExceeded},
		{"over memory budget", gputypes.TextureFormatRGBA32Float, 16, backend.ErrOutOfMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AllocateTarget(tt.name, tt.format, tt.size, tt.size)
			if !errors.Is(err, ErrAllocationFailure) || !errors.Is(err, tt.cause) {
				t.Fatalf("err = %v, want allocation failure caused by %v", err, tt.cause)
			}
			var re *ResourceError
			if !errors.As(err, &re) || re.Op != "allocate" || re.Label != tt.name {
				t.Fatalf("err = %#v, want a ResourceError for %q", err, tt.name)
			}
		})
	}
	if n := m.Stats().Targets; n != 0 {
		t.Fatalf("failed allocations left %d targets", n)
	}
}

func TestCreatePipelineSharesShaders(t *testing.T) {
	m, _ := newTestManager(t)
	mustPipeline(t, m, builtin.LightingConfig())
	mustPipeline(t, m, builtin.PostprocessConfig(gputypes.TextureFormatRGBA8Unorm))
	mustPipeline(t, m, builtin.ShadowConfig(builtin.DefaultShadowDepthBias, builtin.DefaultShadowSlopeScale))
	s := m.Stats()
	if s.Pipelines != 3 {
		t.Fatalf("Pipelines = %d, want 3", s.Pipelines)
	}
	// fullscreen.vs, lighting.fs, postprocess.fs, shadow.vs
	if s.Shaders != 4 {
		t.Fatalf("Shaders = %d, want 4", s.Shaders)
	}
}

func TestCreatePipelineInterfaceMismatch(t *testing.T) {
	m, _ := newTestManager(t)
	cfg := builtin.GeometryConfig()
	cfg.Outputs = cfg.Outputs[:2]
	_, err := m.CreatePipeline(cfg)
	if !errors.Is(err, ErrInterfaceMismatch) {
		t.Fatalf("err = %v, want ErrInterfaceMismatch", err)
	}
	var ime *pipeline.InterfaceMismatchError
	if !errors.As(err, &ime) {
		t.Fatalf("err = %v, want a wrapped InterfaceMismatchError", err)
	}
	if m.Stats().Pipelines != 0 {
		t.Fatal("rejected pipeline was registered")
	}
}

func TestCreatePipelineCompileFailure(t *testing.T) {
	m, _ := newTestManager(t)
	cfg := builtin.GeometryConfig()
	cfg.Vertex.Key = "missing.vs"
	if _, err := m.CreatePipeline(cfg); !errors.Is(err, ErrCompileFailure) {
		t.Fatalf("err = %v, want ErrCompileFailure", err)
	}
}

func TestBindFormatMismatch(t *testing.T) {
	m, _ := newTestManager(t)
	geometry := mustPipeline(t, m, builtin.GeometryConfig())
	colors, depth := gbufferTargets(t, m)
	wrong, err := m.AllocateSurfaceTarget("wrong", gputypes.TextureFormatRGBA32Float)
	if err != nil {
		t.Fatalf("AllocateSurfaceTarget: %v", err)
	}

	if err := m.Bind(geometry, colors, depth); err != nil {
		t.Fatalf("Bind matching targets: %v", err)
	}
	tests := []struct {
		name   string
		colors []TargetHandle
		depth  TargetHandle
	}{
		{"too few colors", colors[:2], depth},
		{"wrong albedo format", []TargetHandle{colors[0], colors[1], wrong}, depth},
		{"missing depth", colors, 0},
		{"color as depth", colors, colors[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Bind(geometry, tt.colors, tt.depth); !errors.Is(err, ErrFormatMismatch) {
				t.Fatalf("err = %v, want ErrFormatMismatch", err)
			}
		})
	}
}

func TestBeginPassChecksFormatsFirst(t *testing.T) {
	m, dev := newTestManager(t)
	geometry := mustPipeline(t, m, builtin.GeometryConfig())
	colors, depth := gbufferTargets(t, m)

	if err := dev.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	defer dev.AbortFrame()
	_, err := m.BeginPass(PassDescriptor{
		Label:    "gbuffer",
		Pipeline: geometry,
		Colors:   []ColorAttachment{{Target: colors[0]}, {Target: colors[2]}, {Target: colors[1]}},
		Depth:    &DepthAttachment{Target: depth},
	})
	if !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("err = %v, want ErrFormatMismatch", err)
	}

	enc, err := m.BeginPass(PassDescriptor{
		Label:    "gbuffer",
		Pipeline: geometry,
		Colors:   []ColorAttachment{{Target: colors[0]}, {Target: colors[1]}, {Target: colors[2]}},
		Depth:    &DepthAttachment{Target: depth, Clear: true, ClearDepth: 1},
	})
	if err != nil {
		t.Fatalf("BeginPass: %v", err)
	}
	if err := enc.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestResizeReallocatesInPlace(t *testing.T) {
	m, dev := newTestManager(t)
	surfaceSized, err := m.AllocateSurfaceTarget("lit", builtin.LitColorFormat)
	if err != nil {
		t.Fatalf("AllocateSurfaceTarget: %v", err)
	}
	fixed, err := m.AllocateTarget("atlas", builtin.DepthFormat, 32, 32)
	if err != nil {
		t.Fatalf("AllocateTarget: %v", err)
	}
	before, _ := m.Target(surfaceSized)
	fixedBefore, _ := m.Target(fixed)
	live := dev.LiveResources()

	if err := m.Resize(8, 8); err != nil {
		t.Fatalf("same-size Resize: %v", err)
	}
	if same, _ := m.Target(surfaceSized); same != before {
		t.Fatal("same-size Resize reallocated a target")
	}

	if err := m.Resize(20, 10); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	desc, err := m.TargetDescriptor(surfaceSized)
	if err != nil {
		t.Fatalf("handle invalid after resize: %v", err)
	}
	if desc.Width != 20 || desc.Height != 10 {
		t.Fatalf("size-dependent target is %dx%d, want 20x10", desc.Width, desc.Height)
	}
	if after, _ := m.Target(surfaceSized); after == before {
		t.Fatal("size-dependent target was not reallocated")
	}
	if after, _ := m.Target(fixed); after != fixedBefore {
		t.Fatal("fixed-size target was reallocated")
	}
	if w, h := dev.SurfaceSize(); w != 20 || h != 10 {
		t.Fatalf("surface is %dx%d, want 20x10", w, h)
	}
	if got := dev.LiveResources(); got != live {
		t.Fatalf("live resources = %d after resize, want %d", got, live)
	}
}

func TestResizeFailureRecovers(t *testing.T) {
	m, _ := newTestManager(t, software.WithMemoryBudget(1024))
	h, err := m.AllocateSurfaceTarget("albedo", gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		t.Fatalf("AllocateSurfaceTarget: %v", err)
	}
	if err := m.Resize(32, 32); !errors.Is(err, ErrAllocationFailure) || !errors.Is(err, backend.ErrOutOfMemory) {
		t.Fatalf("err = %v, want allocation failure from the budget", err)
	}
	if _, err := m.Target(h); !errors.Is(err, ErrAllocationFailure) {
		t.Fatalf("lookup after failed resize = %v, want ErrAllocationFailure", err)
	}
	if err := m.Resize(16, 16); err != nil {
		t.Fatalf("Resize within budget: %v", err)
	}
	if _, err := m.Target(h); err != nil {
		t.Fatalf("lookup after recovery: %v", err)
	}
}

func TestMeshAndSampler(t *testing.T) {
	m, _ := newTestManager(t)
	mh, err := m.UploadMesh("cube", model.Cube(2))
	if err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	bounds, err := m.MeshBounds(mh)
	if err != nil {
		t.Fatalf("MeshBounds: %v", err)
	}
	if bounds.Max != (mgl32.Vec3{1, 1, 1}) {
		t.Fatalf("bounds = %+v, want unit half extents", bounds)
	}

	bad := model.NewMesh(model.WithName("bad"), model.WithVertices(make([]model.Vertex, 3)), model.WithIndices([]uint32{0, 1, 7}))
	if _, err := m.UploadMesh("bad", bad); !errors.Is(err, ErrAllocationFailure) {
		t.Fatalf("err = %v, want ErrAllocationFailure", err)
	}

	sh, err := m.CreateSampler("shadow", common.SamplerStagingData{Compare: gputypes.CompareFunctionLessEqual})
	if err != nil {
		t.Fatalf("CreateSampler: %v", err)
	}
	s, err := m.Sampler(sh)
	if err != nil {
		t.Fatalf("Sampler: %v", err)
	}
	if !s.Descriptor().IsComparison() {
		t.Fatal("sampler lost its compare function")
	}
}

func TestReleaseAndReleaseAll(t *testing.T) {
	m, dev := newTestManager(t)
	h, err := m.AllocateTarget("scratch", gputypes.TextureFormatRGBA8Unorm, 4, 4)
	if err != nil {
		t.Fatalf("AllocateTarget: %v", err)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(h); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("second Release = %v, want ErrUnknownHandle", err)
	}
	if err := m.Release(TargetHandle(0)); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("zero handle Release = %v, want ErrUnknownHandle", err)
	}
	if _, err := m.Target(h); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("lookup of released handle = %v, want ErrUnknownHandle", err)
	}

	mustPipeline(t, m, builtin.GeometryConfig())
	gbufferTargets(t, m)
	if _, err := m.UploadMesh("plane", model.Plane(4)); err != nil {
		t.Fatalf("UploadMesh: %v", err)
	}
	m.ReleaseAll()
	if got := dev.LiveResources(); got != 0 {
		t.Fatalf("live resources after ReleaseAll = %d, want 0", got)
	}
	if s := m.Stats(); s != (Stats{}) {
		t.Fatalf("Stats after ReleaseAll = %+v, want zero", s)
	}
}

func TestSurfaceHandle(t *testing.T) {
	m, dev := newTestManager(t)
	s := m.Surface()
	if !s.Valid() {
		t.Fatal("surface handle is invalid")
	}
	p := mustPipeline(t, m, builtin.PostprocessConfig(gputypes.TextureFormatRGBA8Unorm))
	if err := m.Bind(p, []TargetHandle{s}, 0); err != nil {
		t.Fatalf("Bind surface: %v", err)
	}
	if err := m.Resize(4, 2); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	desc, err := m.TargetDescriptor(s)
	if err != nil {
		t.Fatalf("TargetDescriptor: %v", err)
	}
	if desc.Width != 4 || desc.Height != 2 || !desc.SizeDependent {
		t.Fatalf("surface descriptor = %+v, want the resized surface", desc)
	}
	if got, _ := m.Target(s); got != dev.Surface() {
		t.Fatal("surface handle does not resolve to the current surface")
	}
	if err := m.Release(s); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("Release surface: %v, want ErrUnknownHandle", err)
	}
	if st := m.Stats(); st.Targets != 0 {
		t.Fatalf("surface counted in stats: %+v", st)
	}
}
