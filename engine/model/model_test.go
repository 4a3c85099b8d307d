package model

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

func TestCubeWindingFacesOutward(t *testing.T) {
	m := Cube(2)
	if err := m.Validate(); err != nil {
		t.Fatalf("cube invalid: %v", err)
	}
	v := m.Vertices()
	idx := m.Indices()
	for i := 0; i < len(idx); i += 3 {
		a, b, c := v[idx[i]], v[idx[i+1]], v[idx[i+2]]
		n := b.Position.Sub(a.Position).Cross(c.Position.Sub(a.Position))
		if n.Dot(a.Normal) <= 0 {
			t.Fatalf("triangle %d winds against its normal %v", i/3, a.Normal)
		}
		if a.Position.Dot(a.Normal) <= 0 {
			t.Fatalf("triangle %d normal %v points inward", i/3, a.Normal)
		}
	}
	want := common.AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	if m.Bounds() != want {
		t.Fatalf("bounds = %v, want %v", m.Bounds(), want)
	}
}

func TestPlaneFacesUp(t *testing.T) {
	m := Plane(4)
	v := m.Vertices()
	n := v[1].Position.Sub(v[0].Position).Cross(v[2].Position.Sub(v[0].Position))
	if n[1] <= 0 {
		t.Fatalf("plane winding normal %v, want +Y", n)
	}
	if b := m.Bounds(); b.Min[1] != 0 || b.Max[1] != 0 || b.Max[0] != 2 {
		t.Fatalf("unexpected bounds %v", b)
	}
}

func TestMeshIsImmutable(t *testing.T) {
	verts := []Vertex{{Position: mgl32.Vec3{0, 0, 0}}, {Position: mgl32.Vec3{1, 0, 0}}, {Position: mgl32.Vec3{0, 1, 0}}}
	m := NewMesh(WithVertices(verts))
	verts[0].Position = mgl32.Vec3{9, 9, 9}
	m.Vertices()[1].Position = mgl32.Vec3{7, 7, 7}

	got := m.Vertices()
	if got[0].Position != (mgl32.Vec3{}) || got[1].Position != (mgl32.Vec3{1, 0, 0}) {
		t.Fatalf("mesh changed through caller slices: %v", got)
	}
	if m.Indexed() || m.ElementCount() != 3 {
		t.Fatalf("non-indexed mesh reports indexed=%v elements=%d", m.Indexed(), m.ElementCount())
	}
}

func TestValidate(t *testing.T) {
	tri := []Vertex{{}, {}, {}}
	tests := []struct {
		name string
		mesh Mesh
		want error
	}{
		{"empty", NewMesh(), ErrEmptyMesh},
		{"not triangles", NewMesh(WithVertices(tri[:2])), ErrNotTriangles},
		{"ok", NewMesh(WithVertices(tri), WithIndices([]uint32{0, 1, 2})), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.mesh.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	var rangeErr *IndexRangeError
	err := NewMesh(WithName("bad"), WithVertices(tri), WithIndices([]uint32{0, 1, 3})).Validate()
	if !errors.As(err, &rangeErr) || rangeErr.Position != 2 || rangeErr.Index != 3 {
		t.Fatalf("Validate() = %v, want IndexRangeError at position 2", err)
	}
}

func TestMarshalLayouts(t *testing.T) {
	v := []Vertex{{Position: mgl32.Vec3{1, 2, 3}, Normal: mgl32.Vec3{0, 1, 0}, UV: mgl32.Vec2{0.5, 0.25}}}
	buf := MarshalVertices(v)
	if len(buf) != VertexSize {
		t.Fatalf("vertex buffer is %d bytes", len(buf))
	}
	if common.Float32At(buf, 16) != 1 || common.Float32At(buf, 28) != 0.25 {
		t.Fatal("vertex fields at wrong offsets")
	}

	l := NewGPULocals(mgl32.Translate3D(4, 5, 6), [4]float32{0.2, 0.4, 0.6, 1}, 0.7, 0)
	lb := l.Marshal()
	if len(lb) != 160 {
		t.Fatalf("locals are %d bytes", len(lb))
	}
	if common.Float32At(lb, 48) != 4 || common.Float32At(lb, 132) != 0.4 || common.Float32At(lb, 144) != 0.7 {
		t.Fatal("locals fields at wrong offsets")
	}

	layout := StandardLayout()
	if a, ok := layout.Attribute(2); !ok || a.Offset != 24 || layout.Stride != VertexSize {
		t.Fatalf("unexpected uv attribute %+v", a)
	}
	if sub := layout.Subset(0, 2); len(sub.Attributes) != 2 || sub.Stride != VertexSize {
		t.Fatalf("subset = %+v", sub)
	}
}
