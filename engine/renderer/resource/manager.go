// Package resource owns every device object of the renderer. Passes and the orchestrator hold
// typed handles only; the Manager resolves them, checks pipeline and target formats against each
// other before a pass opens, and reallocates size-dependent targets in place on resize.
package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Stats counts the live resources of a Manager.
type Stats struct {
	Targets     int
	Pipelines   int
	Meshes      int
	Samplers    int
	Shaders     int
	TargetBytes uint64
}

// ColorAttachment attaches one layer of a managed target to a fragment output location.
type ColorAttachment struct {
	Target     TargetHandle
	Layer      uint32
	Clear      bool
	ClearValue gputypes.Color
}

// DepthAttachment attaches one layer of a managed depth target.
type DepthAttachment struct {
	Target     TargetHandle
	Layer      uint32
	Clear      bool
	ClearDepth float32
}

// PassDescriptor is a pass in terms of handles. A zero Pipeline makes a clear-only pass.
type PassDescriptor struct {
	Label    string
	Pipeline PipelineHandle
	Colors   []ColorAttachment
	Depth    *DepthAttachment
}

// targetEntry is a managed target. tex is nil after a failed reallocation.
type targetEntry struct {
	desc backend.TargetDescriptor
	tex  backend.Target
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu     sync.Mutex
	dev    backend.Device
	logger *slog.Logger

	next      uint32
	targets   map[uint32]*targetEntry
	pipelines map[uint32]backend.Pipeline
	meshes    map[uint32]backend.Mesh
	samplers  map[uint32]backend.Sampler
	shaders   map[string]backend.Shader
	surface   TargetHandle

	width, height uint32
	stale         bool
}

// Manager owns the targets, pipelines, meshes and samplers of one device and lends them out as
// handles.
type Manager interface {
	// Device returns the device the manager allocates from.
	//
	// Returns:
	//   - backend.Device: the device
	Device() backend.Device

	// AllocateTarget allocates a fixed-size render target.
	//
	// Parameters:
	//   - label: the debug label
	//   - format: the texel format
	//   - width, height: the size in texels
	//   - options: WithLayers for array targets
	//
	// Returns:
	//   - TargetHandle: the handle
	//   - error: ErrAllocationFailure if the device rejects the target
	AllocateTarget(label string, format gputypes.TextureFormat, width, height uint32, options ...TargetOption) (TargetHandle, error)

	// AllocateSurfaceTarget allocates a target that tracks the surface size across Resize.
	//
	// Parameters:
	//   - label: the debug label
	//   - format: the texel format
	//   - options: WithLayers for array targets
	//
	// Returns:
	//   - TargetHandle: the handle
	//   - error: ErrAllocationFailure if the device rejects the target
	AllocateSurfaceTarget(label string, format gputypes.TextureFormat, options ...TargetOption) (TargetHandle, error)

	// CreatePipeline compiles the config's shaders, validates the config against their reflected
	// interfaces and creates the device pipeline. Shaders are compiled once per key and shared.
	//
	// Parameters:
	//   - cfg: the pipeline declaration
	//
	// Returns:
	//   - PipelineHandle: the handle
	//   - error: ErrCompileFailure, ErrInterfaceMismatch or ErrAllocationFailure
	CreatePipeline(cfg pipeline.Config) (PipelineHandle, error)

	// Bind checks targets against the declared output and depth formats of a pipeline.
	//
	// Parameters:
	//   - p: the pipeline
	//   - colors: the color targets in location order
	//   - depth: the depth target, zero for none
	//
	// Returns:
	//   - error: ErrFormatMismatch if count or formats differ from the declaration
	Bind(p PipelineHandle, colors []TargetHandle, depth TargetHandle) error

	// BeginPass checks the attachments with Bind and opens a device pass.
	//
	// Parameters:
	//   - desc: the pass
	//
	// Returns:
	//   - backend.PassEncoder: the encoder
	//   - error: ErrFormatMismatch, ErrUnknownHandle or a device error
	BeginPass(desc PassDescriptor) (backend.PassEncoder, error)

	// Resize resizes the surface and reallocates every size-dependent target in place. Handles
	// stay valid. Resizing to the current size is a no-op.
	//
	// Parameters:
	//   - width, height: the new surface size
	//
	// Returns:
	//   - error: ErrAllocationFailure if a target cannot be recreated
	Resize(width, height uint32) error

	// Size returns the surface size size-dependent targets are allocated at.
	Size() (width, height uint32)

	// Surface returns the handle of the device's presentable target. It always resolves to the
	// current surface, is not counted in Stats and cannot be released.
	//
	// Returns:
	//   - TargetHandle: the surface handle
	Surface() TargetHandle

	// UploadMesh uploads a mesh.
	//
	// Parameters:
	//   - label: the debug label
	//   - m: the mesh
	//
	// Returns:
	//   - MeshHandle: the handle
	//   - error: ErrAllocationFailure if the device rejects the mesh
	UploadMesh(label string, m model.Mesh) (MeshHandle, error)

	// CreateSampler creates a sampler.
	//
	// Parameters:
	//   - label: the debug label
	//   - desc: the sampler parameters
	//
	// Returns:
	//   - SamplerHandle: the handle
	//   - error: ErrAllocationFailure if the device rejects the sampler
	CreateSampler(label string, desc common.SamplerStagingData) (SamplerHandle, error)

	// Target resolves a target handle.
	Target(h TargetHandle) (backend.Target, error)

	// TargetDescriptor returns the current descriptor of a target.
	TargetDescriptor(h TargetHandle) (backend.TargetDescriptor, error)

	// Pipeline resolves a pipeline handle.
	Pipeline(h PipelineHandle) (backend.Pipeline, error)

	// Mesh resolves a mesh handle.
	Mesh(h MeshHandle) (backend.Mesh, error)

	// MeshBounds returns the model-space bounds of a mesh.
	MeshBounds(h MeshHandle) (common.AABB, error)

	// Sampler resolves a sampler handle.
	Sampler(h SamplerHandle) (backend.Sampler, error)

	// WriteTarget uploads texels into one layer of a target.
	WriteTarget(h TargetHandle, layer uint32, data common.TextureStagingData) error

	// ReadTarget reads back one layer of a target.
	ReadTarget(h TargetHandle, layer uint32) (backend.TargetData, error)

	// Release frees the resource behind a handle. Releasing twice fails with ErrUnknownHandle.
	//
	// Parameters:
	//   - h: the handle
	//
	// Returns:
	//   - error: ErrUnknownHandle for zero, released or foreign handles
	Release(h Handle) error

	// ReleaseAll frees every resource, shared shaders included.
	ReleaseAll()

	// Stats reports the live resources.
	Stats() Stats
}

var _ Manager = &manager{}

// NewManager creates a Manager allocating from dev. Size-dependent targets start at the device
// surface size.
//
// Parameters:
//   - dev: the device
//   - options: functional options to configure the manager
//
// Returns:
//   - Manager: the manager
func NewManager(dev backend.Device, options ...ManagerBuilderOption) Manager {
	m := &manager{
		dev:       dev,
		logger:    slog.New(slog.DiscardHandler),
		targets:   make(map[uint32]*targetEntry),
		pipelines: make(map[uint32]backend.Pipeline),
		meshes:    make(map[uint32]backend.Mesh),
		samplers:  make(map[uint32]backend.Sampler),
		shaders:   make(map[string]backend.Shader),
	}
	m.width, m.height = dev.SurfaceSize()
	m.surface = TargetHandle(m.issue())
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *manager) Device() backend.Device {
	return m.dev
}

func (m *manager) AllocateTarget(label string, format gputypes.TextureFormat, width, height uint32, options ...TargetOption) (TargetHandle, error) {
	return m.allocate(label, format, width, height, false, options)
}

func (m *manager) AllocateSurfaceTarget(label string, format gputypes.TextureFormat, options ...TargetOption) (TargetHandle, error) {
	m.mu.Lock()
	w, h := m.width, m.height
	m.mu.Unlock()
	return m.allocate(label, format, w, h, true, options)
}

func (m *manager) allocate(label string, format gputypes.TextureFormat, width, height uint32, sizeDependent bool, options []TargetOption) (TargetHandle, error) {
	req := targetRequest{layers: 1}
	for _, option := range options {
		option(&req)
	}
	desc := backend.TargetDescriptor{
		Label:         label,
		Format:        format,
		Width:         width,
		Height:        height,
		Layers:        req.layers,
		SizeDependent: sizeDependent,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tex, err := m.dev.CreateTarget(desc)
	if err != nil {
		return 0, newError("allocate", label, ErrAllocationFailure, err)
	}
	id := m.issue()
	m.targets[id] = &targetEntry{desc: desc, tex: tex}
	return TargetHandle(id), nil
}

// issue returns the next handle id. Ids are never reused.
func (m *manager) issue() uint32 {
	m.next++
	return m.next
}

func (m *manager) CreatePipeline(cfg pipeline.Config) (PipelineHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs, err := m.compile(cfg.Vertex)
	if err != nil {
		return 0, newError("create pipeline", cfg.Key, ErrCompileFailure, err)
	}
	var fs backend.Shader
	var fsIface *shader.Interface
	if !cfg.DepthOnly() {
		if fs, err = m.compile(cfg.Fragment); err != nil {
			return 0, newError("create pipeline", cfg.Key, ErrCompileFailure, err)
		}
		iface := fs.Interface()
		fsIface = &iface
	}

	decl, err := pipeline.New(cfg, vs.Interface(), fsIface)
	if err != nil {
		return 0, newError("create pipeline", cfg.Key, ErrInterfaceMismatch, err)
	}
	p, err := m.dev.CreatePipeline(decl, vs, fs)
	if err != nil {
		return 0, newError("create pipeline", cfg.Key, ErrAllocationFailure, err)
	}
	id := m.issue()
	m.pipelines[id] = p
	m.logger.Info("pipeline created", "key", cfg.Key, "outputs", len(cfg.Outputs), "depth", cfg.DepthFormat())
	return PipelineHandle(id), nil
}

// compile returns the shared shader for a spec key, compiling it on first use.
func (m *manager) compile(spec shader.Spec) (backend.Shader, error) {
	if s, ok := m.shaders[spec.Key]; ok {
		return s, nil
	}
	s, err := m.dev.CompileShader(spec)
	if err != nil {
		return nil, err
	}
	m.shaders[spec.Key] = s
	return s, nil
}

func (m *manager) Bind(p PipelineHandle, colors []TargetHandle, depth TargetHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bind(p, colors, depth)
}

func (m *manager) bind(p PipelineHandle, colors []TargetHandle, depth TargetHandle) error {
	pso, ok := m.pipelines[p.id()]
	if !ok {
		return newError("bind", p.String(), ErrUnknownHandle, nil)
	}
	decl := pso.Declaration()
	formats := decl.ColorFormats()
	if len(formats) != len(colors) {
		return newError("bind", decl.Key(), ErrFormatMismatch,
			fmt.Errorf("pipeline declares %d color targets, %d bound", len(formats), len(colors)))
	}
	for i, h := range colors {
		e, err := m.entry("bind", h)
		if err != nil {
			return err
		}
		if e.desc.Format != formats[i] {
			return newError("bind", decl.Key(), ErrFormatMismatch,
				fmt.Errorf("location %d declares %s, target %s is %s", i, formats[i], e.desc.Label, e.desc.Format))
		}
	}

	want := decl.DepthFormat()
	switch {
	case !depth.Valid() && want != gputypes.TextureFormatUndefined:
		return newError("bind", decl.Key(), ErrFormatMismatch, fmt.Errorf("pipeline needs a %s depth target", want))
	case depth.Valid():
		e, err := m.entry("bind", depth)
		if err != nil {
			return err
		}
		if e.desc.Format != want {
			return newError("bind", decl.Key(), ErrFormatMismatch,
				fmt.Errorf("depth declares %s, target %s is %s", want, e.desc.Label, e.desc.Format))
		}
	}
	return nil
}

// entry resolves a live target entry.
func (m *manager) entry(op string, h TargetHandle) (*targetEntry, error) {
	if h == m.surface {
		return m.surfaceEntry(), nil
	}
	e, ok := m.targets[h.id()]
	if !ok {
		return nil, newError(op, h.String(), ErrUnknownHandle, nil)
	}
	if e.tex == nil {
		return nil, newError(op, e.desc.Label, ErrAllocationFailure, errors.New("target lost by a failed resize"))
	}
	return e, nil
}

// surfaceEntry describes the current device surface.
func (m *manager) surfaceEntry() *targetEntry {
	tex := m.dev.Surface()
	desc := tex.Descriptor()
	desc.SizeDependent = true
	return &targetEntry{desc: desc, tex: tex}
}

func (m *manager) BeginPass(desc PassDescriptor) (backend.PassEncoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var depth TargetHandle
	if desc.Depth != nil {
		depth = desc.Depth.Target
	}
	bd := backend.PassDescriptor{Label: desc.Label}
	if desc.Pipeline.Valid() {
		colors := make([]TargetHandle, len(desc.Colors))
		for i, c := range desc.Colors {
			colors[i] = c.Target
		}
		if err := m.bind(desc.Pipeline, colors, depth); err != nil {
			return nil, err
		}
		bd.Pipeline = m.pipelines[desc.Pipeline.id()]
	}
	for _, c := range desc.Colors {
		e, err := m.entry("begin pass", c.Target)
		if err != nil {
			return nil, err
		}
		bd.Colors = append(bd.Colors, backend.ColorAttachment{
			Target:     e.tex,
			Layer:      c.Layer,
			Clear:      c.Clear,
			ClearValue: c.ClearValue,
		})
	}
	if desc.Depth != nil {
		e, err := m.entry("begin pass", depth)
		if err != nil {
			return nil, err
		}
		bd.Depth = &backend.DepthAttachment{
			Target:     e.tex,
			Layer:      desc.Depth.Layer,
			Clear:      desc.Depth.Clear,
			ClearDepth: desc.Depth.ClearDepth,
		}
	}
	return m.dev.BeginPass(bd)
}

func (m *manager) Resize(width, height uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if width == m.width && height == m.height && !m.stale {
		return nil
	}
	if err := m.dev.Resize(width, height); err != nil {
		return newError("resize", fmt.Sprintf("%dx%d", width, height), ErrAllocationFailure, err)
	}

	m.stale = false
	var failed error
	for _, e := range m.targets {
		if !e.desc.SizeDependent {
			continue
		}
		// Free first so a tight memory budget can hold the new generation.
		if e.tex != nil {
			m.dev.Release(e.tex)
			e.tex = nil
		}
		desc := e.desc
		desc.Width, desc.Height = width, height
		tex, err := m.dev.CreateTarget(desc)
		if err != nil {
			m.stale = true
			failed = errors.Join(failed, newError("resize", desc.Label, ErrAllocationFailure, err))
			continue
		}
		e.desc, e.tex = desc, tex
	}
	m.width, m.height = width, height
	if failed != nil {
		return failed
	}
	m.logger.Info("size-dependent targets reallocated", "width", width, "height", height)
	return nil
}

func (m *manager) Size() (uint32, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

func (m *manager) Surface() TargetHandle {
	return m.surface
}

func (m *manager) UploadMesh(label string, mesh model.Mesh) (MeshHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, err := m.dev.CreateMesh(label, mesh)
	if err != nil {
		return 0, newError("upload mesh", label, ErrAllocationFailure, err)
	}
	id := m.issue()
	m.meshes[id] = bm
	return MeshHandle(id), nil
}

func (m *manager) CreateSampler(label string, desc common.SamplerStagingData) (SamplerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.dev.CreateSampler(label, desc)
	if err != nil {
		return 0, newError("create sampler", label, ErrAllocationFailure, err)
	}
	id := m.issue()
	m.samplers[id] = s
	return SamplerHandle(id), nil
}

func (m *manager) Target(h TargetHandle) (backend.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry("lookup", h)
	if err != nil {
		return nil, err
	}
	return e.tex, nil
}

func (m *manager) TargetDescriptor(h TargetHandle) (backend.TargetDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == m.surface {
		return m.surfaceEntry().desc, nil
	}
	e, ok := m.targets[h.id()]
	if !ok {
		return backend.TargetDescriptor{}, newError("lookup", h.String(), ErrUnknownHandle, nil)
	}
	return e.desc, nil
}

func (m *manager) Pipeline(h PipelineHandle) (backend.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[h.id()]
	if !ok {
		return nil, newError("lookup", h.String(), ErrUnknownHandle, nil)
	}
	return p, nil
}

func (m *manager) Mesh(h MeshHandle) (backend.Mesh, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bm, ok := m.meshes[h.id()]
	if !ok {
		return nil, newError("lookup", h.String(), ErrUnknownHandle, nil)
	}
	return bm, nil
}

func (m *manager) MeshBounds(h MeshHandle) (common.AABB, error) {
	bm, err := m.Mesh(h)
	if err != nil {
		return common.AABB{}, err
	}
	return bm.Source().Bounds(), nil
}

func (m *manager) Sampler(h SamplerHandle) (backend.Sampler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samplers[h.id()]
	if !ok {
		return nil, newError("lookup", h.String(), ErrUnknownHandle, nil)
	}
	return s, nil
}

func (m *manager) WriteTarget(h TargetHandle, layer uint32, data common.TextureStagingData) error {
	tex, err := m.Target(h)
	if err != nil {
		return err
	}
	return m.dev.WriteTarget(tex, layer, data)
}

func (m *manager) ReadTarget(h TargetHandle, layer uint32) (backend.TargetData, error) {
	tex, err := m.Target(h)
	if err != nil {
		return backend.TargetData{}, err
	}
	return m.dev.ReadTarget(tex, layer)
}

func (m *manager) Release(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil || !h.Valid() {
		return newError("release", "nil", ErrUnknownHandle, nil)
	}
	id := h.id()
	var r backend.Resource
	switch h.kind() {
	case kindTarget:
		if e, ok := m.targets[id]; ok {
			delete(m.targets, id)
			if e.tex == nil {
				return nil
			}
			r = e.tex
		}
	case kindPipeline:
		if p, ok := m.pipelines[id]; ok {
			delete(m.pipelines, id)
			r = p
		}
	case kindMesh:
		if bm, ok := m.meshes[id]; ok {
			delete(m.meshes, id)
			r = bm
		}
	case kindSampler:
		if s, ok := m.samplers[id]; ok {
			delete(m.samplers, id)
			r = s
		}
	}
	if r == nil {
		return newError("release", h.String(), ErrUnknownHandle, nil)
	}
	m.dev.Release(r)
	return nil
}

func (m *manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.targets {
		if e.tex != nil {
			m.dev.Release(e.tex)
		}
		delete(m.targets, id)
	}
	for id, p := range m.pipelines {
		m.dev.Release(p)
		delete(m.pipelines, id)
	}
	for id, bm := range m.meshes {
		m.dev.Release(bm)
		delete(m.meshes, id)
	}
	for id, s := range m.samplers {
		m.dev.Release(s)
		delete(m.samplers, id)
	}
	for key, s := range m.shaders {
		m.dev.Release(s)
		delete(m.shaders, key)
	}
}

func (m *manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Targets:   len(m.targets),
		Pipelines: len(m.pipelines),
		Meshes:    len(m.meshes),
		Samplers:  len(m.samplers),
		Shaders:   len(m.shaders),
	}
	for _, e := range m.targets {
		if e.tex != nil {
			s.TargetBytes += e.desc.ByteSize()
		}
	}
	return s
}
