package material

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNewMaterialClampsFactors(t *testing.T) {
	m := NewMaterial(WithRoughness(1.5), WithMetallic(-1))
	if m.Roughness() != 1 || m.Metallic() != 0 {
		t.Fatalf("roughness=%v metallic=%v, want clamped 1 and 0", m.Roughness(), m.Metallic())
	}
}

func TestLocalsCarryMaterial(t *testing.T) {
	m := NewMaterial(WithBaseColor([4]float32{0.1, 0.2, 0.3, 1}), WithRoughness(0.25))
	world := mgl32.Translate3D(1, 2, 3)
	l := m.Locals(world)

	if l.ModelMatrix() != world {
		t.Fatal("model matrix not carried")
	}
	if l.Albedo != m.BaseColor() || l.Params[0] != 0.25 {
		t.Fatalf("albedo=%v params=%v", l.Albedo, l.Params)
	}
	if l.LightViewProj != ([16]float32{}) {
		t.Fatal("geometry locals must not carry a light matrix")
	}
}

func TestOverlayParamsLayout(t *testing.T) {
	p := NewGPUOverlayParams(true, 0.5)
	buf := p.Marshal()
	if len(buf) != 32 || p.Size() != 32 {
		t.Fatalf("overlay params are %d bytes", len(buf))
	}
	if buf[20] != 1 {
		t.Fatal("enabled flag not at offset 20")
	}
	if off := NewGPUOverlayParams(false, 1); off.Enabled != 0 {
		t.Fatal("disabled overlay marked enabled")
	}
}
