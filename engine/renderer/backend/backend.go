// Package backend defines the device contract the renderer drives: shader compilation, pipeline
// state, render targets, meshes, samplers and the per-frame pass encoding protocol. The software
// subpackage is a CPU reference implementation; the wgpu subpackage drives a real GPU.
package backend

import (
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Device errors.
var (
	// ErrDeviceLost is returned by every call once the device has been lost.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrSurfaceLost is returned when the presentation surface can no longer be acquired.
	ErrSurfaceLost = errors.New("backend: surface lost")

	// ErrOutOfMemory is returned when an allocation exceeds the device memory budget.
	ErrOutOfMemory = errors.New("backend: out of memory")

	// ErrUnsupportedFormat is returned for texture formats the device cannot create or read back.
	ErrUnsupportedFormat = errors.New("backend: unsupported format")

	// ErrLimitExceeded is returned when a dimension or layer count exceeds the device limits.
	ErrLimitExceeded = errors.New("backend: limit exceeded")

	// ErrFrameInProgress is returned by BeginFrame while a frame is open, and by Resize during a frame.
	ErrFrameInProgress = errors.New("backend: frame in progress")

	// ErrNoFrame is returned by pass and submission calls made outside a frame.
	ErrNoFrame = errors.New("backend: no frame in progress")

	// ErrPassInProgress is returned by BeginPass while another pass is still open.
	ErrPassInProgress = errors.New("backend: pass in progress")

	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("backend: resource released")

	// ErrUnknownSlot is returned by SetBinding for names the pipeline does not declare.
	ErrUnknownSlot = errors.New("backend: unknown binding slot")

	// ErrMissingBinding is returned by Draw when a declared slot has nothing bound.
	ErrMissingBinding = errors.New("backend: missing binding")

	// ErrForeignResource is returned when a resource created by another device is passed in.
	ErrForeignResource = errors.New("backend: resource belongs to another device")
)

// Resource is any device object that can be released.
type Resource interface {
	// Label returns the debug label of the resource.
	Label() string
}

// Shader is a compiled shader stage with its reflected interface.
type Shader interface {
	Resource
	// Spec returns the source spec.
	Spec() shader.Spec
	// Interface returns the reflected entry point interface.
	Interface() shader.Interface
}

// Pipeline is a device pipeline state object.
type Pipeline interface {
	Resource
	// Declaration returns the validated pipeline declaration the object was built from.
	Declaration() pipeline.Pipeline
}

// Target is a render target or sampled texture, optionally layered.
type Target interface {
	Resource
	// Descriptor returns the creation parameters.
	Descriptor() TargetDescriptor
}

// Mesh is uploaded vertex and index data.
type Mesh interface {
	Resource
	// Source returns the CPU mesh the buffers were built from.
	Source() model.Mesh
}

// Sampler is a texture sampler.
type Sampler interface {
	Resource
	// Descriptor returns the sampler parameters.
	Descriptor() common.SamplerStagingData
}

// TargetDescriptor describes a render target.
type TargetDescriptor struct {
	// Label is the debug label.
	Label string
	// Format is the texel format.
	Format gputypes.TextureFormat
	// Width and Height are the dimensions in texels.
	Width, Height uint32
	// Layers is the array layer count. Zero is treated as one.
	Layers uint32
	// SizeDependent marks targets recreated at the surface size on resize.
	SizeDependent bool
}

// LayerCount returns the number of array layers, at least one.
func (d TargetDescriptor) LayerCount() uint32 {
	return max(d.Layers, 1)
}

// ByteSize returns the memory footprint of the target, or 0 for formats without a known size.
func (d TargetDescriptor) ByteSize() uint64 {
	return uint64(BytesPerTexel(d.Format)) * uint64(d.Width) * uint64(d.Height) * uint64(d.LayerCount())
}

// BytesPerTexel returns the storage size of one texel of a format, or 0 for unsupported formats.
//
// Parameters:
//   - f: the texture format
//
// Returns:
//   - int: bytes per texel
func BytesPerTexel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatR16Float:
		return 2
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatRG16Float:
		return 4
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRG32Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// Limits are the device capabilities allocation is checked against.
type Limits struct {
	// MaxTextureDimension2D bounds target width and height.
	MaxTextureDimension2D uint32
	// MaxTextureArrayLayers bounds the layer count of array targets.
	MaxTextureArrayLayers uint32
	// MemoryBudget bounds the total bytes of live targets. Zero means unbounded.
	MemoryBudget uint64
}

// DefaultLimits returns the WebGPU default limits with no memory budget.
func DefaultLimits() Limits {
	return Limits{MaxTextureDimension2D: 8192, MaxTextureArrayLayers: 256}
}

// ColorAttachment binds one layer of a target to a fragment output location.
type ColorAttachment struct {
	// Target is the attached target.
	Target Target
	// Layer is the array layer rendered to.
	Layer uint32
	// Clear clears the layer to ClearValue at pass start; otherwise contents are loaded.
	Clear bool
	// ClearValue is the clear color.
	ClearValue gputypes.Color
}

// DepthAttachment binds one layer of a depth target.
type DepthAttachment struct {
	// Target is the attached depth target.
	Target Target
	// Layer is the array layer rendered to.
	Layer uint32
	// Clear clears the layer to ClearDepth at pass start.
	Clear bool
	// ClearDepth is the clear value, normally 1.
	ClearDepth float32
}

// PassDescriptor describes one render pass.
type PassDescriptor struct {
	// Label is the debug label.
	Label string
	// Pipeline is the pipeline every draw of the pass uses. A nil pipeline makes a clear-only pass.
	Pipeline Pipeline
	// Colors are the color attachments in location order.
	Colors []ColorAttachment
	// Depth is the depth attachment, may be nil.
	Depth *DepthAttachment
}

// Buffer is CPU data bound as a uniform or storage buffer.
type Buffer interface {
	// Size returns the byte size of the marshaled data.
	Size() int
	// Marshal serializes the data in its GPU layout.
	Marshal() []byte
}

// Binding is the resource bound to a slot. Exactly one field is set, matching the slot kind.
type Binding struct {
	// Buffer backs uniform and storage slots.
	Buffer Buffer
	// Target backs texture slots. All layers are visible to array slots.
	Target Target
	// Sampler backs sampler slots.
	Sampler Sampler
}

// PassEncoder records the draws of one pass.
type PassEncoder interface {
	// SetBinding binds a resource to a named slot of the pass pipeline.
	//
	// Parameters:
	//   - slot: the slot name
	//   - b: the bound resource
	//
	// Returns:
	//   - error: ErrUnknownSlot, or a kind mismatch
	SetBinding(slot string, b Binding) error

	// Draw draws a mesh with per-draw locals. Locals are copied; the pointer is not retained.
	//
	// Parameters:
	//   - mesh: the mesh
	//   - locals: the per-draw block, may be nil for pipelines without a locals slot
	//
	// Returns:
	//   - error: ErrMissingBinding, ErrDeviceLost or a resource error
	Draw(mesh Mesh, locals *model.GPULocals) error

	// End finishes the pass.
	//
	// Returns:
	//   - error: a deferred execution error
	End() error
}

// Device is the rendering device.
type Device interface {
	// CompileShader reflects and compiles a shader stage.
	CompileShader(spec shader.Spec) (Shader, error)

	// CreatePipeline builds a pipeline state object. fs is nil for depth-only pipelines.
	CreatePipeline(p pipeline.Pipeline, vs, fs Shader) (Pipeline, error)

	// CreateTarget allocates a render target.
	CreateTarget(desc TargetDescriptor) (Target, error)

	// CreateSampler creates a sampler.
	CreateSampler(label string, desc common.SamplerStagingData) (Sampler, error)

	// CreateMesh uploads a mesh.
	CreateMesh(label string, m model.Mesh) (Mesh, error)

	// WriteTarget uploads texels into one layer of a target. The data must match the target size.
	WriteTarget(t Target, layer uint32, data common.TextureStagingData) error

	// ReadTarget reads back one layer of a target after the last submitted frame.
	ReadTarget(t Target, layer uint32) (TargetData, error)

	// Surface returns the presentable target. It is replaced on Resize.
	Surface() Target

	// SurfaceFormat returns the format of the presentable target.
	SurfaceFormat() gputypes.TextureFormat

	// SurfaceSize returns the size of the presentable target.
	SurfaceSize() (width, height uint32)

	// Resize reconfigures the surface. Fails with ErrFrameInProgress inside a frame.
	Resize(width, height uint32) error

	// Limits returns the device limits.
	Limits() Limits

	// BeginFrame opens a frame.
	BeginFrame() error

	// BeginPass opens a pass within the current frame.
	BeginPass(desc PassDescriptor) (PassEncoder, error)

	// EndFrame submits the frame's work and waits for completion.
	EndFrame() error

	// Present shows the surface of the last submitted frame.
	Present() error

	// AbortFrame drops the open frame without submitting it. A no-op outside a frame.
	AbortFrame()

	// Release frees a resource. Releasing twice is a no-op.
	Release(r Resource)

	// Close releases the device and every resource it still owns.
	Close() error
}
