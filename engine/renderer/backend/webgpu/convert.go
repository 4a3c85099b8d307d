package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

var textureFormats = map[gputypes.TextureFormat]wgpu.TextureFormat{
	gputypes.TextureFormatR8Unorm:        wgpu.TextureFormatR8Unorm,
	gputypes.TextureFormatR16Float:       wgpu.TextureFormatR16Float,
	gputypes.TextureFormatRG16Float:      wgpu.TextureFormatRG16Float,
	gputypes.TextureFormatR32Float:       wgpu.TextureFormatR32Float,
	gputypes.TextureFormatRG32Float:      wgpu.TextureFormatRG32Float,
	gputypes.TextureFormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	gputypes.TextureFormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	gputypes.TextureFormatRGBA32Float:    wgpu.TextureFormatRGBA32Float,
	gputypes.TextureFormatDepth24Plus:    wgpu.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth32Float:   wgpu.TextureFormatDepth32Float,
}

// textureFormat maps a gputypes format onto the wgpu format.
func textureFormat(f gputypes.TextureFormat) (wgpu.TextureFormat, error) {
	if w, ok := textureFormats[f]; ok {
		return w, nil
	}
	return wgpu.TextureFormatUndefined, fmt.Errorf("webgpu: texture format %s: %w", f, backend.ErrUnsupportedFormat)
}

// surfaceFormat maps a wgpu surface format back onto gputypes.
func surfaceFormat(w wgpu.TextureFormat) (gputypes.TextureFormat, bool) {
	for g, v := range textureFormats {
		if v == w {
			return g, true
		}
	}
	return gputypes.TextureFormatUndefined, false
}

func vertexFormat(f gputypes.VertexFormat) (wgpu.VertexFormat, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return wgpu.VertexFormatFloat32, nil
	case gputypes.VertexFormatFloat32x2:
		return wgpu.VertexFormatFloat32x2, nil
	case gputypes.VertexFormatFloat32x3:
		return wgpu.VertexFormatFloat32x3, nil
	case gputypes.VertexFormatFloat32x4:
		return wgpu.VertexFormatFloat32x4, nil
	default:
		return wgpu.VertexFormatUndefined, fmt.Errorf("webgpu: vertex format %s: %w", f, backend.ErrUnsupportedFormat)
	}
}

func compareFunction(f gputypes.CompareFunction) wgpu.CompareFunction {
	switch f {
	case gputypes.CompareFunctionNever:
		return wgpu.CompareFunctionNever
	case gputypes.CompareFunctionLess:
		return wgpu.CompareFunctionLess
	case gputypes.CompareFunctionEqual:
		return wgpu.CompareFunctionEqual
	case gputypes.CompareFunctionLessEqual:
		return wgpu.CompareFunctionLessEqual
	case gputypes.CompareFunctionGreater:
		return wgpu.CompareFunctionGreater
	case gputypes.CompareFunctionNotEqual:
		return wgpu.CompareFunctionNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return wgpu.CompareFunctionGreaterEqual
	case gputypes.CompareFunctionAlways:
		return wgpu.CompareFunctionAlways
	default:
		return wgpu.CompareFunctionUndefined
	}
}

func cullMode(c gputypes.CullMode) wgpu.CullMode {
	switch c {
	case gputypes.CullModeFront:
		return wgpu.CullModeFront
	case gputypes.CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func frontFace(f gputypes.FrontFace) wgpu.FrontFace {
	if f == gputypes.FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func addressMode(m gputypes.AddressMode) wgpu.AddressMode {
	switch m {
	case gputypes.AddressModeRepeat:
		return wgpu.AddressModeRepeat
	case gputypes.AddressModeMirrorRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeClampToEdge
	}
}

func filterMode(m gputypes.FilterMode) wgpu.FilterMode {
	if m == gputypes.FilterModeNearest {
		return wgpu.FilterModeNearest
	}
	return wgpu.FilterModeLinear
}

func mipmapFilterMode(m gputypes.MipmapFilterMode) wgpu.MipmapFilterMode {
	if m == gputypes.MipmapFilterModeLinear {
		return wgpu.MipmapFilterModeLinear
	}
	return wgpu.MipmapFilterModeNearest
}

// vertexBufferLayout converts a model layout into the single vertex buffer layout of a pipeline.
func vertexBufferLayout(l model.VertexLayout) (wgpu.VertexBufferLayout, error) {
	out := wgpu.VertexBufferLayout{
		ArrayStride: l.Stride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  make([]wgpu.VertexAttribute, 0, len(l.Attributes)),
	}
	for _, a := range l.Attributes {
		f, err := vertexFormat(a.Format)
		if err != nil {
			return wgpu.VertexBufferLayout{}, err
		}
		out.Attributes = append(out.Attributes, wgpu.VertexAttribute{
			Format:         f,
			Offset:         a.Offset,
			ShaderLocation: a.Location,
		})
	}
	return out, nil
}

// layoutEntry converts a binding slot into a bind group layout entry visible to the given stages.
// Locals slots use a dynamic offset into the per-frame locals buffer.
func layoutEntry(binding uint32, kind shader.BindingKind, visibility wgpu.ShaderStage, dynamic bool, minSize uint64) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}
	switch kind {
	case shader.BindingKindUniform:
		e.Buffer = wgpu.BufferBindingLayout{
			Type:             wgpu.BufferBindingTypeUniform,
			HasDynamicOffset: dynamic,
			MinBindingSize:   minSize,
		}
	case shader.BindingKindStorage:
		e.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}
	case shader.BindingKindTexture:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case shader.BindingKindUnfilterableTexture:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case shader.BindingKindDepthTexture:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeDepth,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case shader.BindingKindDepthTextureArray:
		e.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeDepth,
			ViewDimension: wgpu.TextureViewDimension2DArray,
		}
	case shader.BindingKindSampler:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	case shader.BindingKindComparisonSampler:
		e.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeComparison}
	}
	return e
}

// alignUp rounds n up to a multiple of align.
func alignUp(n, align uint64) uint64 {
	return (n + align - 1) / align * align
}
