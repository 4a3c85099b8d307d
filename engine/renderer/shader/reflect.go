package shader

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// Reflect parses, lowers and validates the WGSL of a spec with naga and extracts the declared
// interface of its entry point.
//
// Parameters:
//   - spec: the shader to reflect
//
// Returns:
//   - Interface: the entry point's inputs, outputs and bindings
//   - error: *ParseError, ErrEntryPointNotFound, ErrStageMismatch or ErrUnsupportedStage
func Reflect(spec Spec) (Interface, error) {
	want, err := irStage(spec.Stage)
	if err != nil {
		return Interface{}, fmt.Errorf("shader: %s: %w", spec.Key, err)
	}

	ast, err := naga.Parse(spec.Source)
	if err != nil {
		return Interface{}, &ParseError{Key: spec.Key, Phase: "parse", Err: err}
	}
	module, err := naga.LowerWithSource(ast, spec.Source)
	if err != nil {
		return Interface{}, &ParseError{Key: spec.Key, Phase: "lower", Err: err}
	}
	issues, err := naga.Validate(module)
	if err != nil {
		return Interface{}, &ParseError{Key: spec.Key, Phase: "validate", Err: err}
	}
	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i := range issues {
			msgs[i] = issues[i].Error()
		}
		return Interface{}, &ParseError{Key: spec.Key, Phase: "validate", Err: errors.New(strings.Join(msgs, "; "))}
	}

	var ep *ir.EntryPoint
	for i := range module.EntryPoints {
		if module.EntryPoints[i].Name == spec.EntryPoint {
			ep = &module.EntryPoints[i]
			break
		}
	}
	if ep == nil {
		return Interface{}, fmt.Errorf("shader: %s: %q: %w", spec.Key, spec.EntryPoint, ErrEntryPointNotFound)
	}
	if ep.Stage != want {
		return Interface{}, fmt.Errorf("shader: %s: %q: %w", spec.Key, spec.EntryPoint, ErrStageMismatch)
	}

	iface := Interface{Key: spec.Key, Stage: spec.Stage, EntryPoint: spec.EntryPoint}
	for _, arg := range ep.Function.Arguments {
		iface.Inputs = append(iface.Inputs, collectValues(module, arg.Name, arg.Type, arg.Binding)...)
	}
	if ep.Function.Result != nil {
		iface.Outputs = collectValues(module, "", ep.Function.Result.Type, ep.Function.Result.Binding)
	}
	iface.Bindings = collectBindings(module, ep)
	return iface, nil
}

// irStage maps a gputypes stage onto the naga IR stage.
func irStage(s gputypes.ShaderStage) (ir.ShaderStage, error) {
	switch s {
	case gputypes.ShaderStageVertex:
		return ir.StageVertex, nil
	case gputypes.ShaderStageFragment:
		return ir.StageFragment, nil
	default:
		return 0, ErrUnsupportedStage
	}
}

// collectValues returns the location-bound values of an argument or result. Struct types are
// flattened into their members; builtins are skipped.
func collectValues(m *ir.Module, name string, th ir.TypeHandle, b *ir.Binding) []Value {
	if b != nil {
		loc, ok := locationOf(*b)
		if !ok {
			return nil
		}
		return []Value{{Name: name, Location: loc, Format: valueFormat(m, th)}}
	}
	if int(th) >= len(m.Types) {
		return nil
	}
	st, ok := m.Types[th].Inner.(ir.StructType)
	if !ok {
		return nil
	}
	var out []Value
	for _, mem := range st.Members {
		out = append(out, collectValues(m, mem.Name, mem.Type, mem.Binding)...)
	}
	return out
}

// locationOf extracts the location of a binding, returning false for builtins.
func locationOf(b ir.Binding) (uint32, bool) {
	switch v := b.(type) {
	case ir.LocationBinding:
		return v.Location, true
	case *ir.LocationBinding:
		return v.Location, true
	default:
		return 0, false
	}
}

// valueFormat expresses a scalar or vector type as the vertex format of the same shape.
func valueFormat(m *ir.Module, th ir.TypeHandle) gputypes.VertexFormat {
	if int(th) >= len(m.Types) {
		return gputypes.VertexFormatUndefined
	}
	var scalar ir.ScalarType
	size := 1
	switch t := m.Types[th].Inner.(type) {
	case ir.ScalarType:
		scalar = t
	case ir.VectorType:
		scalar = t.Scalar
		size = int(t.Size)
	default:
		return gputypes.VertexFormatUndefined
	}
	if scalar.Width != 4 {
		return gputypes.VertexFormatUndefined
	}
	var table [4]gputypes.VertexFormat
	switch scalar.Kind {
	case ir.ScalarFloat:
		table = [4]gputypes.VertexFormat{gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2, gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4}
	case ir.ScalarUint:
		table = [4]gputypes.VertexFormat{gputypes.VertexFormatUint32, gputypes.VertexFormatUint32x2, gputypes.VertexFormatUint32x3, gputypes.VertexFormatUint32x4}
	case ir.ScalarSint:
		table = [4]gputypes.VertexFormat{gputypes.VertexFormatSint32, gputypes.VertexFormatSint32x2, gputypes.VertexFormatSint32x3, gputypes.VertexFormatSint32x4}
	default:
		return gputypes.VertexFormatUndefined
	}
	if size < 1 || size > 4 {
		return gputypes.VertexFormatUndefined
	}
	return table[size-1]
}

// collectBindings returns the resource globals referenced by the entry point or by any helper
// function of the module. Each shader file carries a single entry point, so every helper serves it.
func collectBindings(m *ir.Module, ep *ir.EntryPoint) []Binding {
	used := make(map[ir.GlobalVariableHandle]bool)
	mark := func(fn *ir.Function) {
		for _, e := range fn.Expressions {
			switch g := e.Kind.(type) {
			case ir.ExprGlobalVariable:
				used[g.Variable] = true
			case *ir.ExprGlobalVariable:
				used[g.Variable] = true
			}
		}
	}
	mark(&ep.Function)
	for i := range m.Functions {
		mark(&m.Functions[i])
	}

	var out []Binding
	for h, gv := range m.GlobalVariables {
		if gv.Binding == nil || !used[ir.GlobalVariableHandle(h)] {
			continue
		}
		kind, size, ok := bindingKind(m, gv)
		if !ok {
			continue
		}
		out = append(out, Binding{
			Name:    gv.Name,
			Group:   gv.Binding.Group,
			Binding: gv.Binding.Binding,
			Kind:    kind,
			Size:    size,
		})
	}
	slices.SortFunc(out, func(a, b Binding) int {
		if a.Group != b.Group {
			return int(a.Group) - int(b.Group)
		}
		return int(a.Binding) - int(b.Binding)
	})
	return out
}

// bindingKind classifies a global resource variable.
func bindingKind(m *ir.Module, gv ir.GlobalVariable) (BindingKind, uint32, bool) {
	if int(gv.Type) >= len(m.Types) {
		return 0, 0, false
	}
	inner := m.Types[gv.Type].Inner
	switch gv.Space {
	case ir.SpaceUniform:
		return BindingKindUniform, typeSize(m, inner), true
	case ir.SpaceStorage:
		return BindingKindStorage, typeSize(m, inner), true
	}

	switch t := inner.(type) {
	case ir.SamplerType:
		if t.Comparison {
			return BindingKindComparisonSampler, 0, true
		}
		return BindingKindSampler, 0, true
	case ir.ImageType:
		if t.Class == ir.ImageClassDepth {
			if t.Arrayed {
				return BindingKindDepthTextureArray, 0, true
			}
			return BindingKindDepthTexture, 0, true
		}
		return BindingKindTexture, 0, true
	}
	return 0, 0, false
}

// typeSize returns the byte span of a buffer type. Runtime-sized arrays report their element stride.
func typeSize(m *ir.Module, inner ir.TypeInner) uint32 {
	switch t := inner.(type) {
	case ir.StructType:
		return t.Span
	case ir.ArrayType:
		if t.Size.Constant != nil {
			return *t.Size.Constant * t.Stride
		}
		return t.Stride
	case ir.ScalarType:
		return uint32(t.Width)
	case ir.VectorType:
		return uint32(t.Size) * uint32(t.Scalar.Width)
	case ir.MatrixType:
		rows := uint32(t.Rows)
		if rows == 3 {
			rows = 4
		}
		return uint32(t.Columns) * rows * uint32(t.Scalar.Width)
	}
	return 0
}
