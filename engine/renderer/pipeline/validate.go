package pipeline

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Validate checks the config against the reflected shader interfaces:
//   - every vertex input has a layout attribute at the same location with a compatible format
//   - every fragment input is produced by the vertex stage with the same format
//   - fragment outputs and color targets correspond one-to-one by location
//   - every shader binding has a slot with the same group, binding and a compatible kind
//   - every slot is used by at least one stage
//   - a depth-only pipeline declares a depth format and no color targets
//
// Parameters:
//   - vs: the reflected vertex interface
//   - fs: the reflected fragment interface, nil for depth-only pipelines
//
// Returns:
//   - error: the first *InterfaceMismatchError found, or nil
func (c Config) Validate(vs shader.Interface, fs *shader.Interface) error {
	mismatch := func(stage, field, format string, args ...any) error {
		return &InterfaceMismatchError{Pipeline: c.Key, Stage: stage, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if c.DepthOnly() != (fs == nil) {
		return mismatch("config", "fragment", "fragment shader and fragment interface must be supplied together")
	}
	if c.Depth != nil && !c.Depth.Format.HasDepth() {
		return mismatch("config", "depth", "format %s has no depth aspect", c.Depth.Format)
	}
	if fs == nil {
		if c.Depth == nil {
			return mismatch("config", "depth", "depth-only pipeline needs a depth format")
		}
		if len(c.Outputs) > 0 {
			return mismatch("config", "outputs", "depth-only pipeline declares %d color targets", len(c.Outputs))
		}
	}

	for _, in := range vs.Inputs {
		attr, ok := c.Layout.Attribute(in.Location)
		if !ok {
			return mismatch("vertex", in.Name, "no layout attribute at location %d", in.Location)
		}
		if !vertexFormatsCompatible(attr.Format, in.Format) {
			return mismatch("vertex", in.Name, "layout format %s cannot feed %s", attr.Format, in.Format)
		}
		if c.Layout.Stride > 0 && attr.Offset+attr.Format.Size() > c.Layout.Stride {
			return mismatch("vertex", in.Name, "attribute exceeds stride %d", c.Layout.Stride)
		}
	}

	if fs != nil {
		for _, in := range fs.Inputs {
			out, ok := vs.Output(in.Location)
			if !ok {
				return mismatch("fragment", in.Name, "location %d is not written by the vertex stage", in.Location)
			}
			if out.Format != in.Format {
				return mismatch("fragment", in.Name, "vertex writes %s, fragment reads %s", out.Format, in.Format)
			}
		}
		if len(fs.Outputs) != len(c.Outputs) {
			return mismatch("fragment", "outputs", "shader writes %d targets, config declares %d", len(fs.Outputs), len(c.Outputs))
		}
		for loc, format := range c.Outputs {
			out, ok := fs.Output(uint32(loc))
			if !ok {
				return mismatch("fragment", fmt.Sprintf("location %d", loc), "no shader output for target %s", format)
			}
			if !outputCompatible(out.Format, format) {
				return mismatch("fragment", out.Name, "output %s cannot be written to %s", out.Format, format)
			}
		}
	}

	if err := c.validateSlots(); err != nil {
		return err
	}
	used := make(map[[2]uint32]bool)
	check := func(stage string, iface shader.Interface) error {
		for _, b := range iface.Bindings {
			slot, ok := c.slotAt(b.Group, b.Binding)
			if !ok {
				return mismatch(stage, b.Name, "no slot for @group(%d) @binding(%d)", b.Group, b.Binding)
			}
			if !slot.Kind.Compatible(b.Kind) {
				return mismatch(stage, b.Name, "slot %q is %s, shader declares %s", slot.Name, slot.Kind, b.Kind)
			}
			used[[2]uint32{b.Group, b.Binding}] = true
		}
		return nil
	}
	if err := check("vertex", vs); err != nil {
		return err
	}
	if fs != nil {
		if err := check("fragment", *fs); err != nil {
			return err
		}
	}
	for _, s := range c.Bindings {
		if !used[[2]uint32{s.Group, s.Binding}] {
			return mismatch("config", s.Name, "slot @group(%d) @binding(%d) is not used by any stage", s.Group, s.Binding)
		}
	}
	return nil
}

// validateSlots rejects duplicate slot names and duplicate group/binding pairs.
func (c Config) validateSlots() error {
	names := make(map[string]bool, len(c.Bindings))
	places := make(map[[2]uint32]string, len(c.Bindings))
	for _, s := range c.Bindings {
		if s.Name == "" {
			return &InterfaceMismatchError{Pipeline: c.Key, Stage: "config", Field: "slot", Reason: "slot has no name"}
		}
		if names[s.Name] {
			return &InterfaceMismatchError{Pipeline: c.Key, Stage: "config", Field: s.Name, Reason: "duplicate slot name"}
		}
		names[s.Name] = true
		key := [2]uint32{s.Group, s.Binding}
		if other, ok := places[key]; ok {
			return &InterfaceMismatchError{Pipeline: c.Key, Stage: "config", Field: s.Name,
				Reason: fmt.Sprintf("@group(%d) @binding(%d) already used by slot %q", s.Group, s.Binding, other)}
		}
		places[key] = s.Name
	}
	return nil
}

func (c Config) slotAt(group, binding uint32) (Slot, bool) {
	for _, s := range c.Bindings {
		if s.Group == group && s.Binding == binding {
			return s, true
		}
	}
	return Slot{}, false
}

// numericClass groups formats by the shader scalar type they present.
type numericClass int

const (
	classUnknown numericClass = iota
	classFloat
	classUint
	classSint
)

// vertexShape returns the shader-side class and component count of a vertex format.
func vertexShape(f gputypes.VertexFormat) (numericClass, int) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return classFloat, 1
	case gputypes.VertexFormatFloat32x2, gputypes.VertexFormatFloat16x2, gputypes.VertexFormatUnorm8x2,
		gputypes.VertexFormatSnorm8x2, gputypes.VertexFormatUnorm16x2, gputypes.VertexFormatSnorm16x2:
		return classFloat, 2
	case gputypes.VertexFormatFloat32x3:
		return classFloat, 3
	case gputypes.VertexFormatFloat32x4, gputypes.VertexFormatFloat16x4, gputypes.VertexFormatUnorm8x4, gputypes.VertexFormatUnorm1010102,
		gputypes.VertexFormatSnorm8x4, gputypes.VertexFormatUnorm16x4, gputypes.VertexFormatSnorm16x4:
		return classFloat, 4
	case gputypes.VertexFormatUint32:
		return classUint, 1
	case gputypes.VertexFormatUint32x2, gputypes.VertexFormatUint8x2, gputypes.VertexFormatUint16x2:
		return classUint, 2
	case gputypes.VertexFormatUint32x3:
		return classUint, 3
	case gputypes.VertexFormatUint32x4, gputypes.VertexFormatUint8x4, gputypes.VertexFormatUint16x4:
		return classUint, 4
	case gputypes.VertexFormatSint32:
		return classSint, 1
	case gputypes.VertexFormatSint32x2, gputypes.VertexFormatSint8x2, gputypes.VertexFormatSint16x2:
		return classSint, 2
	case gputypes.VertexFormatSint32x3:
		return classSint, 3
	case gputypes.VertexFormatSint32x4, gputypes.VertexFormatSint8x4, gputypes.VertexFormatSint16x4:
		return classSint, 4
	default:
		return classUnknown, 0
	}
}

// vertexFormatsCompatible reports whether a buffer attribute can feed a shader input. The
// numeric class must match and the attribute must supply at least the components the shader reads.
func vertexFormatsCompatible(attr, input gputypes.VertexFormat) bool {
	ac, an := vertexShape(attr)
	ic, in := vertexShape(input)
	return ac != classUnknown && ac == ic && an >= in
}

// textureShape returns the shader-side class and channel count of a color target format.
func textureShape(f gputypes.TextureFormat) (numericClass, int) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm, gputypes.TextureFormatR16Float,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm:
		return classFloat, 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Snorm:
		return classFloat, 2
	case gputypes.TextureFormatRG11B10Ufloat:
		return classFloat, 3
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb, gputypes.TextureFormatRGBA8Snorm,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm:
		return classFloat, 4
	case gputypes.TextureFormatR8Uint, gputypes.TextureFormatR16Uint, gputypes.TextureFormatR32Uint:
		return classUint, 1
	case gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG32Uint:
		return classUint, 2
	case gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGB10A2Uint:
		return classUint, 4
	case gputypes.TextureFormatR8Sint, gputypes.TextureFormatR16Sint, gputypes.TextureFormatR32Sint:
		return classSint, 1
	case gputypes.TextureFormatRG8Sint, gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG32Sint:
		return classSint, 2
	case gputypes.TextureFormatRGBA8Sint, gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA32Sint:
		return classSint, 4
	default:
		return classUnknown, 0
	}
}

// IsColorFormat reports whether the format can be used as a color target.
func IsColorFormat(f gputypes.TextureFormat) bool {
	c, _ := textureShape(f)
	return c != classUnknown
}

// outputCompatible reports whether a fragment output can be written to a color target: the
// numeric class must match and the output must cover every channel of the target.
func outputCompatible(out gputypes.VertexFormat, target gputypes.TextureFormat) bool {
	oc, on := vertexShape(out)
	tc, tn := textureShape(target)
	return oc != classUnknown && oc == tc && on >= tn
}
