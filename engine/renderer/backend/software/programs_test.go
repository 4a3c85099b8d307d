package software

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/postfx"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// lightingFixture is a one-pixel G-buffer lit by the lighting program.
type lightingFixture struct {
	position, normal, albedo, shadow *Texture
	lights                           light.LightBuffer
	params                           light.GPULightingParams
}

func newLightingFixture() *lightingFixture {
	f := &lightingFixture{
		position: newTexture(builtin.GBufferPositionFormat, 1, 1, 1),
		normal:   newTexture(builtin.GBufferNormalFormat, 1, 1, 1),
		albedo:   newTexture(builtin.GBufferAlbedoFormat, 1, 1, 1),
		shadow:   newTexture(builtin.DepthFormat, 1, 1, 1),
		params: light.GPULightingParams{
			Ambient:        [4]float32{0.2, 0.4, 0.6, 0},
			CameraPosition: [4]float32{0, 5, 5, 0},
			Background:     [4]float32{0.1, 0.2, 0.3, 1},
		},
	}
	f.position.store(0, 0, 0, mgl32.Vec4{0, 0, 0, 1})
	f.normal.store(0, 0, 0, mgl32.Vec4{0, 1, 0, 0.5})
	f.albedo.store(0, 0, 0, mgl32.Vec4{1, 0.5, 0.2, 1})
	return f
}

func (f *lightingFixture) shade(t *testing.T) mgl32.Vec4 {
	t.Helper()
	f.params.LightCount = uint32(len(f.lights))
	params := f.params
	res := &Resources{
		buffers: map[string]backend.Buffer{
			builtin.SlotLights: f.lights,
			builtin.SlotParams: &params,
		},
		textures: map[string]*Texture{
			builtin.SlotGPosition: f.position,
			builtin.SlotGNormal:   f.normal,
			builtin.SlotGAlbedo:   f.albedo,
			builtin.SlotShadowMap: f.shadow,
		},
		samplers: map[string]common.SamplerStagingData{
			builtin.SlotShadowSampler: common.SamplerStagingData{Compare: gputypes.CompareFunctionLessEqual}.WithDefaults(),
		},
	}
	fn, err := bindLightingFragment(res)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	var out FragmentOutput
	fn(&FragmentInput{Position: mgl32.Vec4{0.5, 0.5, 0, 1}}, &out)
	return out[0]
}

func (f *lightingFixture) ambientOnly() mgl32.Vec4 {
	a := f.albedo.Load(0, 0, 0)
	return mgl32.Vec4{f.params.Ambient[0] * a[0], f.params.Ambient[1] * a[1], f.params.Ambient[2] * a[2], 1}
}

func TestLightingWithoutLightsIsAmbient(t *testing.T) {
	f := newLightingFixture()
	if got, want := f.shade(t), f.ambientOnly(); got != want {
		t.Fatalf("color = %v, want ambient * albedo %v", got, want)
	}
}

func TestLightingBackgroundPixel(t *testing.T) {
	f := newLightingFixture()
	f.position.store(0, 0, 0, mgl32.Vec4{})
	if got := f.shade(t); got != mgl32.Vec4(f.params.Background) {
		t.Fatalf("color = %v, want background", got)
	}
}

func TestLightingShadowVisibility(t *testing.T) {
	l := light.NewLight(light.LightTypeDirectional,
		light.WithDirection(0, -1, 0),
		light.WithColor(1, 1, 1),
		light.WithIntensity(1),
		light.WithCastsShadows(true))
	cfg := light.DefaultShadowConfig()
	sm := &light.ShadowMap{State: light.ShadowStateReady, Layer: 0, Layers: 1, ViewProjections: l.ComputeViewProjections(cfg)}

	f := newLightingFixture()
	f.lights = light.LightBuffer{light.NewGPULight(l, sm, cfg)}

	lit := f.shade(t)
	if lit[1] <= f.ambientOnly()[1] {
		t.Fatalf("unoccluded color %v not brighter than ambient", lit)
	}

	f.shadow.fill(0, mgl32.Vec4{0, 0, 0, 0})
	if got, want := f.shade(t), f.ambientOnly(); got != want {
		t.Fatalf("occluded color = %v, want ambient %v", got, want)
	}
}

func TestPostprocessComposite(t *testing.T) {
	lit := newTexture(builtin.LitColorFormat, 2, 2, 1)
	lit.fill(0, mgl32.Vec4{0.25, 0.5, 1, 1})
	over := newTexture(builtin.OverlayFormat, 2, 2, 1)
	over.store(1, 1, 0, mgl32.Vec4{1, 0, 0, 1})

	params := postfx.Params{Exposure: 1, Gamma: 1, ToneMap: postfx.ToneMapNone, Overlay: postfx.OverlayAfterToneMap}
	post := params.Uniform()
	overlay := material.NewGPUOverlayParams(true, 1)
	res := &Resources{
		buffers: map[string]backend.Buffer{
			builtin.SlotPost:          &post,
			builtin.SlotOverlayParams: &overlay,
		},
		textures: map[string]*Texture{
			builtin.SlotLitColor: lit,
			builtin.SlotOverlay:  over,
		},
	}
	fn, err := bindPostprocessFragment(res)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	var out FragmentOutput
	fn(&FragmentInput{Varyings: Varyings{{0.25, 0.25, 0, 0}}}, &out)
	if out[0] != (mgl32.Vec4{0.25, 0.5, 1, 1}) {
		t.Fatalf("uncovered texel = %v, want lit color", out[0])
	}
	fn(&FragmentInput{Varyings: Varyings{{0.75, 0.75, 0, 0}}}, &out)
	if out[0] != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Fatalf("overlay texel = %v, want opaque red", out[0])
	}
}

func TestBufferAs(t *testing.T) {
	params := light.GPULightingParams{LightCount: 3}
	var nilParams *light.GPULightingParams
	res := &Resources{buffers: map[string]backend.Buffer{
		"lights": light.LightBuffer{{}, {}},
		"params": &params,
		"nil":    nilParams,
	}}

	lights, err := BufferAs[light.LightBuffer](res, "lights")
	if err != nil {
		t.Fatalf("value binding: %v", err)
	}
	if len(lights) != 2 {
		t.Errorf("len(lights) = %d, want 2", len(lights))
	}
	got, err := BufferAs[light.GPULightingParams](res, "params")
	if err != nil {
		t.Fatalf("pointer binding: %v", err)
	}
	if got.LightCount != 3 {
		t.Errorf("LightCount = %d, want 3", got.LightCount)
	}

	if _, err := BufferAs[light.GPULightingParams](res, "missing"); !errors.Is(err, backend.ErrMissingBinding) {
		t.Errorf("missing slot err = %v, want ErrMissingBinding", err)
	}
	for _, slot := range []string{"nil", "lights"} {
		if _, err := BufferAs[light.GPULightingParams](res, slot); err == nil {
			t.Errorf("%s: BufferAs succeeded", slot)
		}
	}
}
