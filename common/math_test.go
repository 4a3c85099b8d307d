package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

func approx(a, b float32) bool {
	return math32.Abs(a-b) < 1e-4
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := Perspective(math32.Pi/2, 1, 0.5, 50)

	near, _ := TransformPoint(proj, mgl32.Vec3{0, 0, -0.5})
	far, _ := TransformPoint(proj, mgl32.Vec3{0, 0, -50})
	if !approx(near[2], 0) {
		t.Fatalf("near plane depth = %v, want 0", near[2])
	}
	if !approx(far[2], 1) {
		t.Fatalf("far plane depth = %v, want 1", far[2])
	}
}

func TestOrthoDepthRange(t *testing.T) {
	proj := Ortho(-2, 2, -2, 2, 1, 11)

	tests := []struct {
		name  string
		point mgl32.Vec3
		want  mgl32.Vec3
	}{
		{"near center", mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 0}},
		{"far corner", mgl32.Vec3{2, -2, -11}, mgl32.Vec3{1, -1, 1}},
		{"middle", mgl32.Vec3{1, 1, -6}, mgl32.Vec3{0.5, 0.5, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := TransformPoint(proj, tt.point)
			if !got.ApproxEqualThreshold(tt.want, 1e-5) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLookAtDegenerateInputs(t *testing.T) {
	tests := []struct {
		name           string
		eye, center, up mgl32.Vec3
	}{
		{"eye equals center", mgl32.Vec3{1, 2, 3}, mgl32.Vec3{1, 2, 3}, mgl32.Vec3{0, 1, 0}},
		{"looking straight down", mgl32.Vec3{0, 5, 0}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{"zero up", mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := LookAt(tt.eye, tt.center, tt.up)
			for i, v := range m {
				if math32.IsNaN(v) || math32.IsInf(v, 0) {
					t.Fatalf("element %d is %v", i, v)
				}
			}
		})
	}
}

func TestBuildModelMatrixTranslatesAndScales(t *testing.T) {
	m := BuildModelMatrix(mgl32.Vec3{1, 2, 3}, mgl32.Vec3{}, mgl32.Vec3{2, 2, 2})
	got, _ := TransformPoint(m, mgl32.Vec3{1, 1, 1})
	if !got.ApproxEqual(mgl32.Vec3{3, 4, 5}) {
		t.Fatalf("got %v, want [3 4 5]", got)
	}
}

func TestNormalize3ZeroVector(t *testing.T) {
	if got := Normalize3(mgl32.Vec3{}); got != (mgl32.Vec3{}) {
		t.Fatalf("got %v, want zero vector", got)
	}
	if got := Normalize3(mgl32.Vec3{0, 3, 4}); !got.ApproxEqual(mgl32.Vec3{0, 0.6, 0.8}) {
		t.Fatalf("got %v", got)
	}
}

func TestFrustumContainsPoint(t *testing.T) {
	view := LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := Perspective(math32.Pi/2, 1, 0.1, 20)
	f := ExtractFrustum(proj.Mul4(view))

	if !f.ContainsPoint(mgl32.Vec3{}) {
		t.Fatal("origin should be inside")
	}
	if f.ContainsPoint(mgl32.Vec3{0, 0, 6}) {
		t.Fatal("point behind the camera should be outside")
	}
	if f.ContainsPoint(mgl32.Vec3{0, 0, -30}) {
		t.Fatal("point beyond far plane should be outside")
	}
	if f.ContainsPoint(mgl32.Vec3{10, 0, 0}) {
		t.Fatal("point outside the 90 degree cone should be outside")
	}
}

func TestFrustumIntersectsAABB(t *testing.T) {
	view := LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := Perspective(math32.Pi/2, 1, 0.1, 20)
	f := ExtractFrustum(proj.Mul4(view))

	inside := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	straddling := AABB{Min: mgl32.Vec3{4, -1, -1}, Max: mgl32.Vec3{20, 1, 1}}
	outside := AABB{Min: mgl32.Vec3{50, 50, 50}, Max: mgl32.Vec3{51, 51, 51}}

	if !f.IntersectsAABB(inside) {
		t.Error("inside box rejected")
	}
	if !f.IntersectsAABB(straddling) {
		t.Error("straddling box rejected")
	}
	if f.IntersectsAABB(outside) {
		t.Error("outside box accepted")
	}
	if f.IntersectsAABB(EmptyAABB()) {
		t.Error("empty box accepted")
	}
}

func TestAABBTransformAndSphere(t *testing.T) {
	box := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	moved := box.Transform(mgl32.Translate3D(10, 0, 0).Mul4(mgl32.HomogRotate3DY(math32.Pi / 4)))

	if !approx(moved.Center()[0], 10) {
		t.Fatalf("center x = %v, want 10", moved.Center()[0])
	}
	if !approx(moved.Max[0]-moved.Min[0], 2*math32.Sqrt(2)) {
		t.Fatalf("rotated width = %v", moved.Max[0]-moved.Min[0])
	}
	if !moved.IntersectsSphere(mgl32.Vec3{7, 0, 0}, 2) {
		t.Error("sphere touching the box should intersect")
	}
	if moved.IntersectsSphere(mgl32.Vec3{0, 0, 0}, 2) {
		t.Error("distant sphere should not intersect")
	}
}

func TestCompareDepth(t *testing.T) {
	tests := []struct {
		fn          gputypes.CompareFunction
		ref, stored float32
		want        bool
	}{
		{gputypes.CompareFunctionLess, 0.4, 0.5, true},
		{gputypes.CompareFunctionLess, 0.5, 0.5, false},
		{gputypes.CompareFunctionLessEqual, 0.5, 0.5, true},
		{gputypes.CompareFunctionGreater, 0.6, 0.5, true},
		{gputypes.CompareFunctionNever, 0, 1, false},
		{gputypes.CompareFunctionAlways, 1, 0, true},
	}
	for _, tt := range tests {
		if got := CompareDepth(tt.fn, tt.ref, tt.stored); got != tt.want {
			t.Errorf("%v(%v, %v) = %v, want %v", tt.fn, tt.ref, tt.stored, got, tt.want)
		}
	}
}

func TestSamplerWithDefaults(t *testing.T) {
	s := SamplerStagingData{Compare: gputypes.CompareFunctionLess}.WithDefaults()
	if s.AddressModeU != gputypes.AddressModeClampToEdge || s.MagFilter != gputypes.FilterModeLinear {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if !s.IsComparison() {
		t.Fatal("comparison flag lost")
	}
	if s.AddressModeV != gputypes.AddressModeClampToEdge || s.AddressModeW != gputypes.AddressModeClampToEdge {
		t.Errorf("address modes = %v, %v", s.AddressModeV, s.AddressModeW)
	}
	if s.MinFilter != gputypes.FilterModeLinear || s.MipmapFilter != gputypes.MipmapFilterModeNearest {
		t.Errorf("filters = %v, %v", s.MinFilter, s.MipmapFilter)
	}
	if s.LodMaxClamp != 32 || s.MaxAnisotropy != 1 {
		t.Errorf("LodMaxClamp = %v, MaxAnisotropy = %d", s.LodMaxClamp, s.MaxAnisotropy)
	}

	kept := SamplerStagingData{
		AddressModeU:  gputypes.AddressModeRepeat,
		MagFilter:     gputypes.FilterModeNearest,
		LodMaxClamp:   4,
		MaxAnisotropy: 8,
	}.WithDefaults()
	if kept.AddressModeU != gputypes.AddressModeRepeat || kept.MagFilter != gputypes.FilterModeNearest {
		t.Errorf("set fields overwritten: %+v", kept)
	}
	if kept.LodMaxClamp != 4 || kept.MaxAnisotropy != 8 {
		t.Errorf("set limits overwritten: %+v", kept)
	}
}
