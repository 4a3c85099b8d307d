package resource

import "fmt"

// handleKind tags the resource class a handle refers to.
type handleKind uint8

const (
	kindTarget handleKind = iota + 1
	kindPipeline
	kindMesh
	kindSampler
)

func (k handleKind) String() string {
	switch k {
	case kindTarget:
		return "target"
	case kindPipeline:
		return "pipeline"
	case kindMesh:
		return "mesh"
	case kindSampler:
		return "sampler"
	default:
		return "unknown"
	}
}

// Handle is any handle the Manager can release.
type Handle interface {
	fmt.Stringer
	// Valid reports whether the handle was issued by a manager. It says nothing about whether the
	// resource is still live.
	Valid() bool

	kind() handleKind
	id() uint32
}

// TargetHandle refers to a render target owned by a Manager. The zero value is invalid.
type TargetHandle uint32

// PipelineHandle refers to a pipeline state object owned by a Manager. The zero value is invalid.
type PipelineHandle uint32

// MeshHandle refers to an uploaded mesh owned by a Manager. The zero value is invalid.
type MeshHandle uint32

// SamplerHandle refers to a sampler owned by a Manager. The zero value is invalid.
type SamplerHandle uint32

var (
	_ Handle = TargetHandle(0)
	_ Handle = PipelineHandle(0)
	_ Handle = MeshHandle(0)
	_ Handle = SamplerHandle(0)
)

func (h TargetHandle) Valid() bool      { return h != 0 }
func (h TargetHandle) String() string   { return fmt.Sprintf("target#%d", uint32(h)) }
func (h TargetHandle) kind() handleKind { return kindTarget }
func (h TargetHandle) id() uint32       { return uint32(h) }

func (h PipelineHandle) Valid() bool      { return h != 0 }
func (h PipelineHandle) String() string   { return fmt.Sprintf("pipeline#%d", uint32(h)) }
func (h PipelineHandle) kind() handleKind { return kindPipeline }
func (h PipelineHandle) id() uint32       { return uint32(h) }

func (h MeshHandle) Valid() bool      { return h != 0 }
func (h MeshHandle) String() string   { return fmt.Sprintf("mesh#%d", uint32(h)) }
func (h MeshHandle) kind() handleKind { return kindMesh }
func (h MeshHandle) id() uint32       { return uint32(h) }

func (h SamplerHandle) Valid() bool      { return h != 0 }
func (h SamplerHandle) String() string   { return fmt.Sprintf("sampler#%d", uint32(h)) }
func (h SamplerHandle) kind() handleKind { return kindSampler }
func (h SamplerHandle) id() uint32       { return uint32(h) }
