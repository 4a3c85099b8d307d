// annotations.go defines the annotation types, argument constants, and parser for the
// WGSL pre-processor. Annotations are single-line WGSL comments prefixed with @oxy: that
// inject the canonical struct definitions of the engine's GPU types and generate the
// matching @group/@binding declarations, so every pass shader agrees with the Go-side
// packing of its uniform and storage blocks.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition
	// at the annotation site.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include camera
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// and records it in the PreProcessor's declarations list.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 0 storage_uniform camera camera
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Annotation is a parsed @oxy: annotation.
type Annotation struct {
	// Type is the kind of annotation.
	Type AnnotationType

	// Args are the positional arguments following the type. For include annotations this
	// is the struct type; for group annotations it is address space, variable name and type.
	Args []AnnotationArg

	// Line is the 1-based source line the annotation was found on.
	Line int

	// Group is the bind group index, set for group annotations only.
	Group *int

	// Binding is the binding index, set for group annotations only.
	Binding *int
}

// AnnotationArg is a single positional annotation argument.
type AnnotationArg string

// Struct type arguments. Each has a registryEntry in the PreProcessor.
const (
	// AnnotationArgCamera is the CameraUniform struct.
	AnnotationArgCamera AnnotationArg = "camera"

	// AnnotationArgVertex is the VertexInput struct of the standard vertex layout.
	AnnotationArgVertex AnnotationArg = "vertex"

	// AnnotationArgLocals is the per-draw Locals struct.
	AnnotationArgLocals AnnotationArg = "locals"

	// AnnotationArgLight is the Light struct stored in the light buffer.
	AnnotationArgLight AnnotationArg = "light"

	// AnnotationArgLightingParams is the LightingParams uniform of the lighting pass.
	AnnotationArgLightingParams AnnotationArg = "lighting_params"

	// AnnotationArgPostParams is the PostParams uniform of the composite.
	AnnotationArgPostParams AnnotationArg = "post_params"

	// AnnotationArgOverlayParams is the OverlayParams uniform of the composite.
	AnnotationArgOverlayParams AnnotationArg = "overlay_params"
)

// Address space arguments for @oxy:group annotations.
const (
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	annotationArgStorageTypeRead AnnotationArg = "storage_read"
)

// validStructTypes lists all AnnotationArg values accepted as struct types in
// @oxy:include and @oxy:group annotations.
var validStructTypes = []AnnotationArg{
	AnnotationArgCamera,
	AnnotationArgVertex,
	AnnotationArgLocals,
	AnnotationArgLight,
	AnnotationArgLightingParams,
	AnnotationArgPostParams,
	AnnotationArgOverlayParams,
}

// validAddressSpaces lists all AnnotationArg values accepted as address spaces in
// @oxy:group annotations.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires exactly five arguments (group, binding, address space, name, type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation: %v", lineNum, args[1], err)
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation: %v", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		typeArg := args[5]
		if inner, ok := strings.CutPrefix(typeArg, "array<"); ok {
			typeArg = strings.TrimSuffix(inner, ">")
		}
		if !slices.Contains(validStructTypes, AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", lineNum, args[5])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
