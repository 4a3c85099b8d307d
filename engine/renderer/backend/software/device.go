// Package software implements the backend contract on the CPU. Targets are float texel arrays,
// shaders are Go programs registered under the builtin shader keys, and triangles are
// rasterized in row bands on a worker pool. It renders headless and makes every pass of the
// renderer observable through ReadTarget.
package software

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Software device errors.
var (
	// ErrAttachmentMismatch is returned by BeginPass when attachments disagree with the pipeline
	// or with each other.
	ErrAttachmentMismatch = errors.New("software: attachments do not match pipeline")

	// ErrBindingKind is returned by SetBinding when the resource does not fit the slot kind.
	ErrBindingKind = errors.New("software: resource does not match slot kind")

	// ErrNoPipeline is returned by Draw in a pass opened without a pipeline.
	ErrNoPipeline = errors.New("software: pass has no pipeline")
)

// Device is the software backend device. Beyond the backend contract it can simulate device
// and surface loss and reports its live resources.
type Device interface {
	backend.Device

	// LoseDevice simulates device loss. Every later call fails with backend.ErrDeviceLost.
	LoseDevice()

	// LoseSurface simulates surface loss. Passes targeting the surface and Present fail with
	// backend.ErrSurfaceLost until the next Resize.
	LoseSurface()

	// Programs returns the program registry.
	//
	// Returns:
	//   - *Programs: the registry shaders are compiled against
	Programs() *Programs

	// LiveResources returns the number of created and unreleased resources, the surface excluded.
	//
	// Returns:
	//   - int: the live count
	LiveResources() int

	// MemoryUsage returns the bytes held by live targets.
	//
	// Returns:
	//   - uint64: the byte count
	MemoryUsage() uint64

	// FramesSubmitted returns the number of frames completed by EndFrame.
	//
	// Returns:
	//   - uint64: the frame count
	FramesSubmitted() uint64
}

// frame records the commands of the open frame. Commands run in order at EndFrame.
type frame struct {
	commands []func()
	pass     *passEncoder
}

type device struct {
	mu     sync.Mutex
	logger *slog.Logger
	limits backend.Limits

	programs *Programs
	workers  int
	raster   rasterizer

	surfaceFormat               gputypes.TextureFormat
	surfaceWidth, surfaceHeight uint32
	surface                     *target
	surfaceLost                 bool

	live   map[backend.Resource]struct{}
	memory uint64

	frame     *frame
	submitted uint64
	presented uint64
	lost      bool
	closed    bool
}

var _ Device = &device{}

// New creates a software device. The default is a 640x480 BGRA8UnormSrgb surface, the WebGPU
// default limits and one raster worker per CPU.
//
// Parameters:
//   - options: functional options to configure the device
//
// Returns:
//   - Device: the device
//   - error: an error if the surface cannot be created
func New(options ...DeviceBuilderOption) (Device, error) {
	d := &device{
		logger:        slog.New(slog.DiscardHandler),
		limits:        backend.DefaultLimits(),
		workers:       runtime.NumCPU(),
		raster:        rasterizer{bandHeight: DefaultBandHeight},
		surfaceFormat: gputypes.TextureFormatBGRA8UnormSrgb,
		surfaceWidth:  640,
		surfaceHeight: 480,
		live:          make(map[backend.Resource]struct{}),
	}
	for _, option := range options {
		option(d)
	}
	if d.programs == nil {
		d.programs = BuiltinPrograms()
	}

	surface, err := d.newTarget(backend.TargetDescriptor{
		Label:  "surface",
		Format: d.surfaceFormat,
		Width:  d.surfaceWidth,
		Height: d.surfaceHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("software: create surface: %w", err)
	}
	d.surface = surface

	if d.workers > 1 {
		d.raster.pool = worker.NewDynamicWorkerPool(d.workers, d.workers*4, time.Second)
	}
	d.logger.Info("software device created",
		"surface_format", d.surfaceFormat.String(),
		"width", d.surfaceWidth,
		"height", d.surfaceHeight,
		"workers", d.workers)
	return d, nil
}

// check returns the error every call fails with on a lost or closed device.
func (d *device) check() error {
	if d.lost || d.closed {
		return backend.ErrDeviceLost
	}
	return nil
}

func (d *device) LoseDevice() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.frame = nil
	d.logger.Warn("software device lost")
}

func (d *device) LoseSurface() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surfaceLost = true
	d.logger.Warn("software surface lost")
}

func (d *device) Programs() *Programs {
	return d.programs
}

func (d *device) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *device) MemoryUsage() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memory
}

func (d *device) FramesSubmitted() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

func (d *device) CompileShader(spec shader.Spec) (backend.Shader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}

	iface, err := shader.Reflect(spec)
	if err != nil {
		return nil, err
	}
	s := &shaderObject{object: object{dev: d, label: spec.Key}, spec: spec, iface: iface}
	switch spec.Stage {
	case gputypes.ShaderStageVertex:
		prog, ok := d.programs.Vertex(spec.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoProgram, spec.Key)
		}
		s.vertex = prog
	case gputypes.ShaderStageFragment:
		prog, ok := d.programs.Fragment(spec.Key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoProgram, spec.Key)
		}
		s.fragment = prog
	default:
		return nil, fmt.Errorf("%w: %s", shader.ErrUnsupportedStage, spec.Key)
	}
	d.live[s] = struct{}{}
	return s, nil
}

func (d *device) CreatePipeline(p pipeline.Pipeline, vs, fs backend.Shader) (backend.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}

	v, err := d.ownShader(vs)
	if err != nil {
		return nil, err
	}
	if v.vertex == nil {
		return nil, fmt.Errorf("software: pipeline %s: %w", p.Key(), shader.ErrStageMismatch)
	}
	obj := &pipelineObject{
		object: object{dev: d, label: p.Key()},
		decl:   p,
		cfg:    p.Config(),
		vertex: v.vertex,
	}
	if fs != nil {
		f, err := d.ownShader(fs)
		if err != nil {
			return nil, err
		}
		if f.fragment == nil {
			return nil, fmt.Errorf("software: pipeline %s: %w", p.Key(), shader.ErrStageMismatch)
		}
		obj.fragment = f.fragment
	}
	for _, out := range v.iface.Outputs {
		obj.varyings = max(obj.varyings, int(out.Location)+1)
	}
	obj.varyings = min(obj.varyings, MaxVaryings)

	d.live[obj] = struct{}{}
	d.logger.Debug("software pipeline created", "key", p.Key(), "depth_only", fs == nil)
	return obj, nil
}

func (d *device) CreateTarget(desc backend.TargetDescriptor) (backend.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}

	t, err := d.newTarget(desc)
	if err != nil {
		return nil, err
	}
	size := desc.ByteSize()
	if d.limits.MemoryBudget > 0 && d.memory+size > d.limits.MemoryBudget {
		return nil, fmt.Errorf("software: target %s needs %d bytes, %d of %d in use: %w",
			desc.Label, size, d.memory, d.limits.MemoryBudget, backend.ErrOutOfMemory)
	}
	d.memory += size
	d.live[t] = struct{}{}
	return t, nil
}

// newTarget validates a descriptor against the limits and allocates its storage.
func (d *device) newTarget(desc backend.TargetDescriptor) (*target, error) {
	if !supportedFormat(desc.Format) {
		return nil, fmt.Errorf("software: target %s format %s: %w", desc.Label, desc.Format, backend.ErrUnsupportedFormat)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("software: target %s has zero size: %w", desc.Label, backend.ErrLimitExceeded)
	}
	if desc.Width > d.limits.MaxTextureDimension2D || desc.Height > d.limits.MaxTextureDimension2D {
		return nil, fmt.Errorf("software: target %s is %dx%d, limit %d: %w",
			desc.Label, desc.Width, desc.Height, d.limits.MaxTextureDimension2D, backend.ErrLimitExceeded)
	}
	if desc.LayerCount() > d.limits.MaxTextureArrayLayers {
		return nil, fmt.Errorf("software: target %s has %d layers, limit %d: %w",
			desc.Label, desc.LayerCount(), d.limits.MaxTextureArrayLayers, backend.ErrLimitExceeded)
	}
	return &target{
		object: object{dev: d, label: desc.Label},
		desc:   desc,
		tex:    newTexture(desc.Format, int(desc.Width), int(desc.Height), int(desc.LayerCount())),
	}, nil
}

func (d *device) CreateSampler(label string, desc common.SamplerStagingData) (backend.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	s := &samplerObject{object: object{dev: d, label: label}, desc: desc.WithDefaults()}
	d.live[s] = struct{}{}
	return s, nil
}

func (d *device) CreateMesh(label string, m model.Mesh) (backend.Mesh, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("software: mesh %s: %w", label, err)
	}
	obj := &meshObject{
		object:   object{dev: d, label: label},
		mesh:     m,
		vertices: m.Vertices(),
		indices:  m.Indices(),
	}
	d.live[obj] = struct{}{}
	return obj, nil
}

func (d *device) WriteTarget(t backend.Target, layer uint32, data common.TextureStagingData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	tg, err := d.ownTarget(t)
	if err != nil {
		return err
	}
	if int(layer) >= tg.tex.Layers() {
		return fmt.Errorf("software: target %s layer %d of %d: %w", tg.label, layer, tg.tex.Layers(), backend.ErrLimitExceeded)
	}
	if data.Format != tg.desc.Format {
		return fmt.Errorf("software: staging format %s for target %s of %s: %w",
			data.Format, tg.label, tg.desc.Format, backend.ErrUnsupportedFormat)
	}
	if data.Width != tg.desc.Width || data.Height != tg.desc.Height {
		return fmt.Errorf("software: staging data is %dx%d, target %s is %dx%d",
			data.Width, data.Height, tg.label, tg.desc.Width, tg.desc.Height)
	}
	texels, err := backend.DecodeTexels(data.Format, data.Pixels, int(data.Width), int(data.Height), 0)
	if err != nil {
		return fmt.Errorf("software: target %s: %w", tg.label, err)
	}
	copy(tg.tex.layers[layer], texels)
	return nil
}

func (d *device) ReadTarget(t backend.Target, layer uint32) (backend.TargetData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return backend.TargetData{}, err
	}
	tg, err := d.ownTarget(t)
	if err != nil {
		return backend.TargetData{}, err
	}
	if int(layer) >= tg.tex.Layers() {
		return backend.TargetData{}, fmt.Errorf("software: target %s layer %d of %d: %w",
			tg.label, layer, tg.tex.Layers(), backend.ErrLimitExceeded)
	}
	return backend.TargetData{
		Format: tg.desc.Format,
		Width:  tg.tex.Width(),
		Height: tg.tex.Height(),
		Data:   tg.tex.raw(int(layer)),
	}, nil
}

func (d *device) Surface() backend.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surface
}

func (d *device) SurfaceFormat() gputypes.TextureFormat {
	return d.surfaceFormat
}

func (d *device) SurfaceSize() (uint32, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceWidth, d.surfaceHeight
}

func (d *device) Resize(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.frame != nil {
		return backend.ErrFrameInProgress
	}
	if width == d.surfaceWidth && height == d.surfaceHeight && !d.surfaceLost {
		return nil
	}
	surface, err := d.newTarget(backend.TargetDescriptor{Label: "surface", Format: d.surfaceFormat, Width: width, Height: height})
	if err != nil {
		return err
	}
	d.surface.released = true
	d.surface = surface
	d.surfaceWidth, d.surfaceHeight = width, height
	d.surfaceLost = false
	d.logger.Info("software surface resized", "width", width, "height", height)
	return nil
}

func (d *device) Limits() backend.Limits {
	return d.limits
}

func (d *device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.frame != nil {
		return backend.ErrFrameInProgress
	}
	d.frame = &frame{}
	return nil
}

func (d *device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.frame == nil {
		return backend.ErrNoFrame
	}
	if d.frame.pass != nil {
		return backend.ErrPassInProgress
	}
	commands := d.frame.commands
	d.frame = nil
	for _, cmd := range commands {
		cmd()
	}
	d.submitted++
	return nil
}

func (d *device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.frame != nil {
		return backend.ErrFrameInProgress
	}
	if d.surfaceLost {
		return backend.ErrSurfaceLost
	}
	d.presented++
	return nil
}

func (d *device) AbortFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame != nil {
		d.logger.Debug("software frame aborted", "commands", len(d.frame.commands))
	}
	d.frame = nil
}

func (d *device) Release(r backend.Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[r]; !ok {
		return
	}
	delete(d.live, r)
	switch o := r.(type) {
	case *target:
		d.memory -= o.desc.ByteSize()
		o.released = true
	case *shaderObject:
		o.released = true
	case *pipelineObject:
		o.released = true
	case *meshObject:
		o.released = true
	case *samplerObject:
		o.released = true
	}
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if len(d.live) > 0 {
		d.logger.Debug("software device closed with live resources", "count", len(d.live))
	}
	clear(d.live)
	d.memory = 0
	d.frame = nil
	d.closed = true
	if d.raster.pool != nil {
		d.raster.pool.Stop()
	}
	return nil
}

// ownTarget resolves a backend target to a live target of this device.
func (d *device) ownTarget(t backend.Target) (*target, error) {
	tg, ok := t.(*target)
	if !ok || tg.dev != d {
		return nil, backend.ErrForeignResource
	}
	if tg.released {
		return nil, fmt.Errorf("software: target %s: %w", tg.label, backend.ErrReleased)
	}
	return tg, nil
}

func (d *device) ownShader(s backend.Shader) (*shaderObject, error) {
	so, ok := s.(*shaderObject)
	if !ok || so.dev != d {
		return nil, backend.ErrForeignResource
	}
	if so.released {
		return nil, fmt.Errorf("software: shader %s: %w", so.label, backend.ErrReleased)
	}
	return so, nil
}

// clearColor converts an attachment clear value.
func clearColor(c gputypes.Color) mgl32.Vec4 {
	return mgl32.Vec4{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}
