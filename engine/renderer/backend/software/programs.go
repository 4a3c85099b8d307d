package software

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/postfx"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader/builtin"
)

// BuiltinPrograms returns a registry holding the Go twin of every builtin shader.
//
// Returns:
//   - *Programs: the registry
func BuiltinPrograms() *Programs {
	p := NewPrograms()
	p.RegisterVertex(builtin.KeyGBufferVS, VertexProgramFunc(bindGBufferVertex))
	p.RegisterFragment(builtin.KeyGBufferFS, FragmentProgramFunc(bindGBufferFragment))
	p.RegisterVertex(builtin.KeyShadowVS, VertexProgramFunc(bindShadowVertex))
	p.RegisterVertex(builtin.KeyFullscreenVS, VertexProgramFunc(bindFullscreenVertex))
	p.RegisterFragment(builtin.KeyLightingFS, FragmentProgramFunc(bindLightingFragment))
	p.RegisterFragment(builtin.KeyPostprocessFS, FragmentProgramFunc(bindPostprocessFragment))
	return p
}

func bindGBufferVertex(res *Resources) (VertexFunc, error) {
	cam, err := BufferAs[camera.GPUCameraUniform](res, builtin.SlotCamera)
	if err != nil {
		return nil, err
	}
	viewProj := mgl32.Mat4(cam.ViewProj)
	modelMatrix := res.Locals.ModelMatrix()
	return func(v *model.Vertex) (mgl32.Vec4, Varyings) {
		world := modelMatrix.Mul4x1(v.Position.Vec4(1))
		var out Varyings
		out[0] = world
		out[1] = modelMatrix.Mul4x1(v.Normal.Vec4(0))
		out[2] = mgl32.Vec4{v.UV[0], v.UV[1], 0, 0}
		return viewProj.Mul4x1(world), out
	}, nil
}

func bindGBufferFragment(res *Resources) (FragmentFunc, error) {
	albedo := res.Locals.Albedo
	roughness := res.Locals.Params[0]
	return func(in *FragmentInput, out *FragmentOutput) {
		w := in.Varyings[0]
		n := light.SafeNormalize(in.Varyings[1].Vec3())
		out[builtin.GBufferPositionLocation] = mgl32.Vec4{w[0], w[1], w[2], 1}
		out[builtin.GBufferNormalLocation] = n.Vec4(roughness)
		out[builtin.GBufferAlbedoLocation] = mgl32.Vec4{albedo[0], albedo[1], albedo[2], 1}
	}, nil
}

func bindShadowVertex(res *Resources) (VertexFunc, error) {
	mvp := mgl32.Mat4(res.Locals.LightViewProj).Mul4(res.Locals.ModelMatrix())
	return func(v *model.Vertex) (mgl32.Vec4, Varyings) {
		return mvp.Mul4x1(v.Position.Vec4(1)), Varyings{}
	}, nil
}

func bindFullscreenVertex(*Resources) (VertexFunc, error) {
	return func(v *model.Vertex) (mgl32.Vec4, Varyings) {
		var out Varyings
		out[0] = mgl32.Vec4{v.UV[0], v.UV[1], 0, 0}
		return mgl32.Vec4{v.Position[0], v.Position[1], 0, 1}, out
	}, nil
}

// lightingResources are the resolved bindings of the lighting program.
type lightingResources struct {
	position, normal, albedo *Texture
	shadowMap                *Texture
	lights                   light.LightBuffer
	params                   light.GPULightingParams
}

func bindLightingFragment(res *Resources) (FragmentFunc, error) {
	var (
		lr  lightingResources
		err error
	)
	if lr.position, err = res.TextureAt(builtin.SlotGPosition); err != nil {
		return nil, err
	}
	if lr.normal, err = res.TextureAt(builtin.SlotGNormal); err != nil {
		return nil, err
	}
	if lr.albedo, err = res.TextureAt(builtin.SlotGAlbedo); err != nil {
		return nil, err
	}
	if lr.shadowMap, err = res.TextureAt(builtin.SlotShadowMap); err != nil {
		return nil, err
	}
	if lr.lights, err = BufferAs[light.LightBuffer](res, builtin.SlotLights); err != nil {
		return nil, err
	}
	if lr.params, err = BufferAs[light.GPULightingParams](res, builtin.SlotParams); err != nil {
		return nil, err
	}
	smp, err := res.SamplerAt(builtin.SlotShadowSampler)
	if err != nil {
		return nil, err
	}

	count := min(int(lr.params.LightCount), len(lr.lights))
	visibility := func(g *light.GPULight, p, n mgl32.Vec3) float32 {
		uv, ref, layer, ok := g.ShadowLookup(p, n)
		if !ok {
			return 1
		}
		radius := int(g.PCFRadius)
		var lit, taps float32
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				offset := mgl32.Vec2{float32(x), float32(y)}.Mul(g.TexelSize)
				lit += lr.shadowMap.SampleCompare(smp, uv.Add(offset), layer, ref)
				taps++
			}
		}
		return lit / taps
	}

	ambient := mgl32.Vec4(lr.params.Ambient).Vec3()
	eye := mgl32.Vec4(lr.params.CameraPosition).Vec3()
	background := mgl32.Vec4(lr.params.Background)
	return func(in *FragmentInput, out *FragmentOutput) {
		x, y := int(in.Position[0]), int(in.Position[1])
		ws := lr.position.Load(x, y, 0)
		if ws[3] == 0 {
			out[0] = background
			return
		}
		ns := lr.normal.Load(x, y, 0)
		albedo := lr.albedo.Load(x, y, 0).Vec3()
		world := ws.Vec3()
		n := light.SafeNormalize(ns.Vec3())
		roughness := mgl32.Clamp(ns[3], 0, 1)
		v := light.SafeNormalize(eye.Sub(world))
		color := mgl32.Vec3{ambient[0] * albedo[0], ambient[1] * albedo[1], ambient[2] * albedo[2]}
		for i := 0; i < count; i++ {
			g := &lr.lights[i]
			vis := visibility(g, world, n)
			color = color.Add(g.Contribution(world, n, v, albedo, roughness).Mul(vis))
		}
		out[0] = color.Vec4(1)
	}, nil
}

func bindPostprocessFragment(res *Resources) (FragmentFunc, error) {
	lit, err := res.TextureAt(builtin.SlotLitColor)
	if err != nil {
		return nil, err
	}
	over, err := res.TextureAt(builtin.SlotOverlay)
	if err != nil {
		return nil, err
	}
	post, err := BufferAs[postfx.GPUPostParams](res, builtin.SlotPost)
	if err != nil {
		return nil, err
	}
	overlay, err := BufferAs[material.GPUOverlayParams](res, builtin.SlotOverlayParams)
	if err != nil {
		return nil, err
	}
	params := post.Params()
	return func(in *FragmentInput, out *FragmentOutput) {
		uv := in.Varyings[0].Vec2()
		lx, ly := toTexel(uv, lit)
		ox, oy := toTexel(uv, over)
		c := params.Composite(lit.Load(lx, ly, 0).Vec3(), over.Load(ox, oy, 0), &overlay)
		out[0] = c.Vec4(1)
	}, nil
}

// toTexel maps a normalized coordinate to the covering texel of t, clamped to the edge.
func toTexel(uv mgl32.Vec2, t *Texture) (int, int) {
	w, h := float32(t.width), float32(t.height)
	x := mgl32.Clamp(math32.Floor(uv[0]*w), 0, w-1)
	y := mgl32.Clamp(math32.Floor(uv[1]*h), 0, h-1)
	return int(x), int(y)
}
