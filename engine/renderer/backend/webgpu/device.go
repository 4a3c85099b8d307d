// Package webgpu implements the backend contract on a GPU through the cogentcore wgpu bindings.
// Bind group layouts are derived from the pipeline's binding slots and the reflected interfaces
// of its shaders, per-draw locals live in a dynamic-offset uniform buffer reused every frame,
// and array targets expose one attachment view per layer.
package webgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// ErrNoSurfaceFormat is returned by New when the surface offers no format the renderer can use.
var ErrNoSurfaceFormat = errors.New("webgpu: no supported surface format")

// readbackAlignment is the row pitch alignment of texture to buffer copies.
const readbackAlignment = 256

// frame is the open frame: one command encoder and the per-frame buffers released after
// submission.
type frame struct {
	encoder   *wgpu.CommandEncoder
	pass      *passEncoder
	transient []func()
	draws     int
}

type device struct {
	mu     sync.Mutex
	logger *slog.Logger
	limits backend.Limits

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	forceFallback bool
	presentMode   wgpu.PresentMode
	alphaMode     wgpu.CompositeAlphaMode
	uniformAlign  uint64

	surfaceTarget *target
	width, height uint32

	live   map[releaser]struct{}
	memory uint64
	locals []*localsChunk

	frame        *frame
	frameTexture *wgpu.Texture
	frameView    *wgpu.TextureView
	lost         bool
	closed       bool
}

var _ backend.Device = &device{}

// New creates a device presenting to the given surface. The calling goroutine is locked to its
// OS thread, as the windowing system requires.
//
// Parameters:
//   - surfaceDescriptor: the platform surface, e.g. from window.Window.SurfaceDescriptor
//   - options: functional options to configure the device
//
// Returns:
//   - backend.Device: the device
//   - error: an error if no adapter, device or usable surface format is available
func New(surfaceDescriptor *wgpu.SurfaceDescriptor, options ...DeviceBuilderOption) (backend.Device, error) {
	runtime.LockOSThread()
	d := &device{
		logger:      slog.New(slog.DiscardHandler),
		presentMode: wgpu.PresentModeFifo,
		width:       640,
		height:      480,
		live:        make(map[releaser]struct{}),
	}
	for _, option := range options {
		option(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	d.surface = d.instance.CreateSurface(surfaceDescriptor)

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallback,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.instance.Release()
		return nil, fmt.Errorf("webgpu: request adapter: %w", err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "oxy-deferred device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		d.adapter.Release()
		d.instance.Release()
		return nil, fmt.Errorf("webgpu: request device: %w", err)
	}
	d.dev = dev
	d.queue = dev.GetQueue()
	d.uniformAlign = uint64(max(limits.MinUniformBufferOffsetAlignment, 1))
	if d.limits.MaxTextureDimension2D == 0 {
		d.limits.MaxTextureDimension2D = limits.MaxTextureDimension2D
	}
	if d.limits.MaxTextureArrayLayers == 0 {
		d.limits.MaxTextureArrayLayers = limits.MaxTextureArrayLayers
	}

	if err := d.configure(d.width, d.height); err != nil {
		d.Close()
		return nil, err
	}
	d.logger.Info("webgpu device created", "surface", d.surfaceTarget.desc.Format,
		"width", d.width, "height", d.height)
	return d, nil
}

// configure (re)configures the surface at the given size, picking the first format the
// renderer supports.
func (d *device) configure(width, height uint32) error {
	caps := d.surface.GetCapabilities(d.adapter)
	var (
		format gputypes.TextureFormat
		native wgpu.TextureFormat
		found  bool
	)
	for _, f := range caps.Formats {
		if format, found = surfaceFormat(f); found {
			native = f
			break
		}
	}
	if !found {
		return ErrNoSurfaceFormat
	}
	if len(caps.AlphaModes) > 0 {
		d.alphaMode = caps.AlphaModes[0]
	}
	d.surface.Configure(d.adapter, d.dev, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      native,
		Width:       width,
		Height:      height,
		PresentMode: d.presentMode,
		AlphaMode:   d.alphaMode,
	})
	d.width, d.height = width, height
	d.surfaceTarget = &target{
		object:  object{dev: d, label: "surface"},
		desc:    backend.TargetDescriptor{Label: "surface", Format: format, Width: width, Height: height},
		format:  native,
		surface: true,
	}
	return nil
}

// check reports device loss and closure.
func (d *device) check() error {
	if d.lost || d.closed {
		return backend.ErrDeviceLost
	}
	return nil
}

// lose marks the device lost after a failed device call.
func (d *device) lose(op string, err error) error {
	d.lost = true
	d.logger.Error("webgpu device lost", "op", op, "error", err)
	return fmt.Errorf("webgpu: %s: %w: %w", op, backend.ErrDeviceLost, err)
}

func (d *device) track(r releaser) {
	d.live[r] = struct{}{}
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
	module, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          spec.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: spec.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: shader %s: %w", spec.Key, err)
	}
	s := &shaderObject{object: object{dev: d, label: spec.Key}, spec: spec, iface: iface, module: module}
	d.track(s)
	return s, nil
}

func (d *device) CreateTarget(desc backend.TargetDescriptor) (backend.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	format, err := textureFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	layers := desc.LayerCount()
	switch {
	case desc.Width == 0 || desc.Height == 0:
		return nil, fmt.Errorf("webgpu: target %s is %dx%d: %w", desc.Label, desc.Width, desc.Height, backend.ErrLimitExceeded)
	case desc.Width > d.limits.MaxTextureDimension2D || desc.Height > d.limits.MaxTextureDimension2D:
		return nil, fmt.Errorf("webgpu: target %s is %dx%d, limit %d: %w",
			desc.Label, desc.Width, desc.Height, d.limits.MaxTextureDimension2D, backend.ErrLimitExceeded)
	case layers > d.limits.MaxTextureArrayLayers:
		return nil, fmt.Errorf("webgpu: target %s has %d layers, limit %d: %w",
			desc.Label, layers, d.limits.MaxTextureArrayLayers, backend.ErrLimitExceeded)
	}
	size := desc.ByteSize()
	if d.limits.MemoryBudget > 0 && d.memory+size > d.limits.MemoryBudget {
		return nil, fmt.Errorf("webgpu: target %s needs %d bytes, %d of %d in use: %w",
			desc.Label, size, d.memory, d.limits.MemoryBudget, backend.ErrOutOfMemory)
	}

	tex, err := d.dev.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage: wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding |
			wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: target %s: %w: %w", desc.Label, backend.ErrOutOfMemory, err)
	}
	t := &target{object: object{dev: d, label: desc.Label}, desc: desc, format: format, texture: tex}

	aspect := wgpu.TextureAspectAll
	if desc.Format.HasDepth() {
		aspect = wgpu.TextureAspectDepthOnly
	}
	dim := wgpu.TextureViewDimension2D
	if desc.Layers > 1 {
		dim = wgpu.TextureViewDimension2DArray
	}
	if t.view, err = tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           desc.Label,
		Format:          format,
		Dimension:       dim,
		MipLevelCount:   1,
		ArrayLayerCount: layers,
		Aspect:          aspect,
	}); err != nil {
		t.release()
		return nil, fmt.Errorf("webgpu: target %s view: %w", desc.Label, err)
	}
	for layer := range layers {
		v, err := tex.CreateView(&wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("%s layer %d", desc.Label, layer),
			Format:          format,
			Dimension:       wgpu.TextureViewDimension2D,
			MipLevelCount:   1,
			BaseArrayLayer:  layer,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectAll,
		})
		if err != nil {
			t.release()
			return nil, fmt.Errorf("webgpu: target %s layer %d view: %w", desc.Label, layer, err)
		}
		t.layers = append(t.layers, v)
	}
	d.memory += size
	d.track(t)
	return t, nil
}

func (d *device) CreateSampler(label string, desc common.SamplerStagingData) (backend.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	desc = desc.WithDefaults()
	smp, err := d.dev.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  addressMode(desc.AddressModeU),
		AddressModeV:  addressMode(desc.AddressModeV),
		AddressModeW:  addressMode(desc.AddressModeW),
		MagFilter:     filterMode(desc.MagFilter),
		MinFilter:     filterMode(desc.MinFilter),
		MipmapFilter:  mipmapFilterMode(desc.MipmapFilter),
		LodMinClamp:   desc.LodMinClamp,
		LodMaxClamp:   desc.LodMaxClamp,
		MaxAnisotropy: desc.MaxAnisotropy,
		Compare:       compareFunction(desc.Compare),
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: sampler %s: %w", label, err)
	}
	s := &samplerObject{object: object{dev: d, label: label}, desc: desc, sampler: smp}
	d.track(s)
	return s, nil
}

func (d *device) CreateMesh(label string, m model.Mesh) (backend.Mesh, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	vb, err := d.dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label + " vertices",
		Contents: m.VertexData(),
		Usage:    wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: mesh %s: %w: %w", label, backend.ErrOutOfMemory, err)
	}
	obj := &meshObject{object: object{dev: d, label: label}, mesh: m, vertices: vb, count: uint32(m.ElementCount())}
	if m.Indexed() {
		if obj.indices, err = d.dev.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    label + " indices",
			Contents: m.IndexData(),
			Usage:    wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		}); err != nil {
			vb.Release()
			return nil, fmt.Errorf("webgpu: mesh %s: %w: %w", label, backend.ErrOutOfMemory, err)
		}
	}
	d.track(obj)
	return obj, nil
}

// ownTarget resolves a target created by this device.
func (d *device) ownTarget(t backend.Target) (*target, error) {
	tg, ok := t.(*target)
	if !ok || tg.dev != d {
		return nil, backend.ErrForeignResource
	}
	if tg.released {
		return nil, fmt.Errorf("webgpu: target %s: %w", tg.label, backend.ErrReleased)
	}
	return tg, nil
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
	if tg.surface || layer >= tg.desc.LayerCount() {
		return fmt.Errorf("webgpu: target %s layer %d: %w", tg.label, layer, backend.ErrLimitExceeded)
	}
	if data.Format != tg.desc.Format {
		return fmt.Errorf("webgpu: staging format %s for target %s of %s: %w",
			data.Format, tg.label, tg.desc.Format, backend.ErrUnsupportedFormat)
	}
	if data.Width != tg.desc.Width || data.Height != tg.desc.Height {
		return fmt.Errorf("webgpu: staging data is %dx%d, target %s is %dx%d",
			data.Width, data.Height, tg.label, tg.desc.Width, tg.desc.Height)
	}
	bpt := uint32(backend.BytesPerTexel(data.Format))
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tg.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: layer},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			BytesPerRow:  data.Width * bpt,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{Width: data.Width, Height: data.Height, DepthOrArrayLayers: 1},
	)
	return nil
}

// ReadTarget copies one layer into a mappable buffer and waits for the copy. The surface
// cannot be read back.
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
	if tg.surface {
		return backend.TargetData{}, fmt.Errorf("webgpu: surface readback: %w", backend.ErrUnsupportedFormat)
	}
	if layer >= tg.desc.LayerCount() {
		return backend.TargetData{}, fmt.Errorf("webgpu: target %s layer %d of %d: %w",
			tg.label, layer, tg.desc.LayerCount(), backend.ErrLimitExceeded)
	}

	w, h := tg.desc.Width, tg.desc.Height
	pitch := alignUp(uint64(w)*uint64(backend.BytesPerTexel(tg.desc.Format)), readbackAlignment)
	size := pitch * uint64(h)
	buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: tg.label + " readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return backend.TargetData{}, fmt.Errorf("webgpu: readback %s: %w: %w", tg.label, backend.ErrOutOfMemory, err)
	}
	defer buf.Release()

	enc, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		return backend.TargetData{}, d.lose("readback encoder", err)
	}
	defer enc.Release()
	aspect := wgpu.TextureAspectAll
	if tg.desc.Format.HasDepth() {
		aspect = wgpu.TextureAspectDepthOnly
	}
	enc.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: tg.texture, Origin: wgpu.Origin3D{Z: layer}, Aspect: aspect},
		&wgpu.ImageCopyBuffer{
			Buffer: buf,
			Layout: wgpu.TextureDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: h},
		},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return backend.TargetData{}, d.lose("readback submit", err)
	}
	defer cmd.Release()
	d.queue.Submit(cmd)

	var status wgpu.BufferMapAsyncStatus
	if err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return backend.TargetData{}, d.lose("readback map", err)
	}
	d.dev.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return backend.TargetData{}, d.lose("readback map", fmt.Errorf("map status %v", status))
	}
	texels, err := backend.DecodeTexels(tg.desc.Format, buf.GetMappedRange(0, uint(size)), int(w), int(h), int(pitch))
	buf.Unmap()
	if err != nil {
		return backend.TargetData{}, fmt.Errorf("webgpu: readback %s: %w", tg.label, err)
	}
	return backend.TargetData{Format: tg.desc.Format, Width: int(w), Height: int(h), Data: texels}, nil
}

func (d *device) Surface() backend.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceTarget
}

func (d *device) SurfaceFormat() gputypes.TextureFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaceTarget.desc.Format
}

func (d *device) SurfaceSize() (uint32, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
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
	if width == 0 || height == 0 {
		return fmt.Errorf("webgpu: surface %dx%d: %w", width, height, backend.ErrLimitExceeded)
	}
	if err := d.configure(width, height); err != nil {
		return err
	}
	d.logger.Info("webgpu surface resized", "width", width, "height", height)
	return nil
}

func (d *device) Limits() backend.Limits {
	return d.limits
}

// BeginFrame acquires the swapchain texture and opens the frame's command encoder.
func (d *device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.frame != nil || d.frameTexture != nil {
		return backend.ErrFrameInProgress
	}

	tex, err := d.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("webgpu: acquire surface: %w: %w", backend.ErrSurfaceLost, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("webgpu: surface view: %w: %w", backend.ErrSurfaceLost, err)
	}
	enc, err := d.dev.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		tex.Release()
		return d.lose("frame encoder", err)
	}
	d.frameTexture, d.frameView = tex, view
	d.frame = &frame{encoder: enc}
	return nil
}

// EndFrame uploads the frame's locals, submits the encoder and waits for the queue to drain.
func (d *device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	f := d.frame
	if f == nil {
		return backend.ErrNoFrame
	}
	if f.pass != nil {
		f.pass.finish()
	}
	d.frame = nil
	defer f.releaseTransient()
	defer f.encoder.Release()

	for _, c := range d.locals {
		c.flush(d.queue)
	}
	cmd, err := f.encoder.Finish(nil)
	if err != nil {
		return d.lose("finish frame", err)
	}
	defer cmd.Release()
	d.queue.Submit(cmd)
	d.dev.Poll(true, nil)
	d.logger.Debug("webgpu frame submitted", "draws", f.draws)
	return nil
}

func (d *device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.frameTexture == nil {
		return backend.ErrNoFrame
	}
	d.surface.Present()
	d.releaseSwapchain()
	return nil
}

func (d *device) releaseSwapchain() {
	if d.frameView != nil {
		d.frameView.Release()
		d.frameView = nil
	}
	if d.frameTexture != nil {
		d.frameTexture.Release()
		d.frameTexture = nil
	}
}

// AbortFrame drops the encoder unsubmitted and gives the swapchain texture back.
func (d *device) AbortFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f := d.frame; f != nil {
		if f.pass != nil {
			f.pass.finish()
		}
		f.encoder.Release()
		f.releaseTransient()
		d.frame = nil
	}
	for _, c := range d.locals {
		c.reset()
	}
	d.releaseSwapchain()
}

func (f *frame) releaseTransient() {
	for _, r := range f.transient {
		r()
	}
	f.transient = nil
}

func (d *device) Release(r backend.Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := r.(releaser)
	if !ok {
		return
	}
	if _, live := d.live[obj]; !live {
		return
	}
	delete(d.live, obj)
	if t, ok := obj.(*target); ok {
		d.memory -= t.desc.ByteSize()
	}
	obj.markReleased()
	obj.release()
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if d.frame != nil {
		d.frame.encoder.Release()
		d.frame.releaseTransient()
		d.frame = nil
	}
	d.releaseSwapchain()
	for obj := range d.live {
		obj.markReleased()
		obj.release()
	}
	clear(d.live)
	for _, c := range d.locals {
		c.release()
	}
	d.locals = nil
	d.memory = 0
	if d.queue != nil {
		d.queue.Release()
	}
	if d.dev != nil {
		d.dev.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
	d.closed = true
	return nil
}
