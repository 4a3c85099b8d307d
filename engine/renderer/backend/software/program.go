package software

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// MaxVaryings is the number of inter-stage locations a program may use.
const MaxVaryings = 4

// ErrNoProgram is returned by CompileShader when no Go program is registered for a shader key.
var ErrNoProgram = errors.New("software: no program registered for shader")

// Varyings are the inter-stage values indexed by location.
type Varyings [MaxVaryings]mgl32.Vec4

// FragmentInput is the per-fragment input of a fragment program.
type FragmentInput struct {
	// Position is the fragment coordinate: pixel center xy, depth z and 1/w.
	Position mgl32.Vec4
	// Varyings are the perspective-correct interpolated vertex outputs.
	Varyings Varyings
}

// FragmentOutput holds the color written to each output location.
type FragmentOutput [MaxVaryings]mgl32.Vec4

// VertexFunc transforms one vertex into clip space.
type VertexFunc func(v *model.Vertex) (mgl32.Vec4, Varyings)

// FragmentFunc shades one fragment. It is called concurrently from several row bands and must
// not mutate shared state.
type FragmentFunc func(in *FragmentInput, out *FragmentOutput)

// VertexProgram is the Go twin of a WGSL vertex entry point.
type VertexProgram interface {
	// BindVertex resolves the program's resources for one draw.
	//
	// Parameters:
	//   - res: the draw's bound resources
	//
	// Returns:
	//   - VertexFunc: the per-vertex function
	//   - error: an error if a resource has the wrong type
	BindVertex(res *Resources) (VertexFunc, error)
}

// FragmentProgram is the Go twin of a WGSL fragment entry point.
type FragmentProgram interface {
	// BindFragment resolves the program's resources for one draw.
	//
	// Parameters:
	//   - res: the draw's bound resources
	//
	// Returns:
	//   - FragmentFunc: the per-fragment function
	//   - error: an error if a resource has the wrong type
	BindFragment(res *Resources) (FragmentFunc, error)
}

// VertexProgramFunc adapts a function to VertexProgram.
type VertexProgramFunc func(res *Resources) (VertexFunc, error)

// BindVertex calls f.
func (f VertexProgramFunc) BindVertex(res *Resources) (VertexFunc, error) {
	return f(res)
}

// FragmentProgramFunc adapts a function to FragmentProgram.
type FragmentProgramFunc func(res *Resources) (FragmentFunc, error)

// BindFragment calls f.
func (f FragmentProgramFunc) BindFragment(res *Resources) (FragmentFunc, error) {
	return f(res)
}

// Resources are the resources visible to the programs of one draw: the pass bindings snapshotted
// at draw time and the draw's locals.
type Resources struct {
	// Locals is a copy of the draw's locals.
	Locals model.GPULocals
	// HasLocals is false when the draw passed nil locals.
	HasLocals bool

	buffers  map[string]backend.Buffer
	textures map[string]*Texture
	samplers map[string]common.SamplerStagingData
}

// Buffer returns the buffer bound to a slot.
func (r *Resources) Buffer(slot string) (backend.Buffer, bool) {
	b, ok := r.buffers[slot]
	return b, ok
}

// Texture returns the texture bound to a slot.
func (r *Resources) Texture(slot string) (*Texture, bool) {
	t, ok := r.textures[slot]
	return t, ok
}

// Sampler returns the sampler bound to a slot.
func (r *Resources) Sampler(slot string) (common.SamplerStagingData, bool) {
	s, ok := r.samplers[slot]
	return s, ok
}

// BufferAs returns the buffer bound to a slot as a concrete type. Both T and *T bindings
// are accepted.
//
// Parameters:
//   - r: the draw resources
//   - slot: the slot name
//
// Returns:
//   - T: the buffer contents
//   - error: an error if the slot is empty or holds another type
func BufferAs[T any](r *Resources, slot string) (T, error) {
	var zero T
	b, ok := r.buffers[slot]
	if !ok {
		return zero, fmt.Errorf("software: slot %q: %w", slot, backend.ErrMissingBinding)
	}
	switch v := any(b).(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	return zero, fmt.Errorf("software: slot %q holds %T, want %T", slot, b, zero)
}

// TextureAt returns the texture bound to a slot or an error.
func (r *Resources) TextureAt(slot string) (*Texture, error) {
	t, ok := r.textures[slot]
	if !ok {
		return nil, fmt.Errorf("software: slot %q: %w", slot, backend.ErrMissingBinding)
	}
	return t, nil
}

// SamplerAt returns the sampler bound to a slot or an error.
func (r *Resources) SamplerAt(slot string) (common.SamplerStagingData, error) {
	s, ok := r.samplers[slot]
	if !ok {
		return common.SamplerStagingData{}, fmt.Errorf("software: slot %q: %w", slot, backend.ErrMissingBinding)
	}
	return s, nil
}

// Programs maps shader keys to their Go programs. A key may carry a vertex program, a fragment
// program, or both.
type Programs struct {
	vertex   map[string]VertexProgram
	fragment map[string]FragmentProgram
}

// NewPrograms returns an empty program registry.
func NewPrograms() *Programs {
	return &Programs{vertex: make(map[string]VertexProgram), fragment: make(map[string]FragmentProgram)}
}

// RegisterVertex registers the vertex program of a shader key, replacing any previous one.
func (p *Programs) RegisterVertex(key string, prog VertexProgram) {
	p.vertex[key] = prog
}

// RegisterFragment registers the fragment program of a shader key, replacing any previous one.
func (p *Programs) RegisterFragment(key string, prog FragmentProgram) {
	p.fragment[key] = prog
}

// Vertex returns the vertex program of a key.
func (p *Programs) Vertex(key string) (VertexProgram, bool) {
	prog, ok := p.vertex[key]
	return prog, ok
}

// Fragment returns the fragment program of a key.
func (p *Programs) Fragment(key string) (FragmentProgram, bool) {
	prog, ok := p.fragment[key]
	return prog, ok
}
