package software

import (
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pipeline"
)

// depthBiasUnit is the minimum resolvable difference of a 32-bit float depth near 1.
const depthBiasUnit = 1.0 / (1 << 23)

// minClipW keeps clipped vertices strictly in front of the eye.
const minClipW = 1e-6

// clipVertex is a vertex after the vertex stage.
type clipVertex struct {
	pos  mgl32.Vec4
	vary Varyings
}

// screenTriangle is a clipped, culled triangle in pixel space ready for scan conversion.
type screenTriangle struct {
	x, y, z, invW [3]float32
	vary          [3]Varyings
	area          float32
	bias          float32
	minX, maxX    int
	minY, maxY    int
}

// colorTarget is one bound color attachment layer.
type colorTarget struct {
	tex   *Texture
	layer int
}

// rasterState is everything the scan converter needs for one draw.
type rasterState struct {
	width, height int
	colors        []colorTarget
	depth         *Texture
	depthLayer    int
	depthState    *pipeline.DepthState
	cull          gputypes.CullMode
	frontFace     gputypes.FrontFace
	varyings      int
	fragment      FragmentFunc
}

// rasterizer scan converts triangles in horizontal bands on a worker pool.
type rasterizer struct {
	pool       worker.DynamicWorkerPool
	bandHeight int
}

// draw runs the vertex stage over a mesh and rasterizes the resulting triangles.
//
// Parameters:
//   - rs: the draw state
//   - vertices: the mesh vertices
//   - indices: the triangle indices, nil for non-indexed meshes
//   - vertex: the bound vertex function
func (r *rasterizer) draw(rs *rasterState, vertices []model.Vertex, indices []uint32, vertex VertexFunc) {
	transformed := make([]clipVertex, len(vertices))
	for i := range vertices {
		pos, vary := vertex(&vertices[i])
		transformed[i] = clipVertex{pos: pos, vary: vary}
	}

	count := len(vertices)
	if indices != nil {
		count = len(indices)
	}
	element := func(i int) clipVertex {
		if indices != nil {
			return transformed[indices[i]]
		}
		return transformed[i]
	}

	var tris []screenTriangle
	for i := 0; i+2 < count; i += 3 {
		tris = rs.setup([3]clipVertex{element(i), element(i + 1), element(i + 2)}, tris)
	}
	if len(tris) == 0 {
		return
	}
	r.bands(rs.height, func(y0, y1 int) {
		rs.scan(tris, y0, y1)
	})
}

// bands splits rows [0, height) into bands and runs fn on each, returning after all complete.
func (r *rasterizer) bands(height int, fn func(y0, y1 int)) {
	band := max(r.bandHeight, 1)
	if r.pool == nil || height <= band {
		fn(0, height)
		return
	}
	var wg sync.WaitGroup
	id := 0
	for y := 0; y < height; y += band {
		y0, y1 := y, min(y+band, height)
		wg.Add(1)
		r.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				fn(y0, y1)
				return nil, nil
			},
		})
		id++
	}
	wg.Wait()
}

// setup clips a triangle against the near plane, culls it, and appends the surviving pieces.
func (rs *rasterState) setup(tri [3]clipVertex, out []screenTriangle) []screenTriangle {
	poly := clipPolygon(tri[:], func(v clipVertex) float32 { return v.pos[2] })
	poly = clipPolygon(poly, func(v clipVertex) float32 { return v.pos[3] - minClipW })
	for i := 1; i+1 < len(poly); i++ {
		if st, ok := rs.project(poly[0], poly[i], poly[i+1]); ok {
			out = append(out, st)
		}
	}
	return out
}

// clipPolygon clips a convex polygon against the half-space dist >= 0.
func clipPolygon(in []clipVertex, dist func(clipVertex) float32) []clipVertex {
	if len(in) == 0 {
		return nil
	}
	out := make([]clipVertex, 0, len(in)+2)
	for i := range in {
		a := in[i]
		b := in[(i+1)%len(in)]
		da, db := dist(a), dist(b)
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			out = append(out, lerpVertex(a, b, t))
		}
	}
	return out
}

func lerpVertex(a, b clipVertex, t float32) clipVertex {
	v := clipVertex{pos: a.pos.Add(b.pos.Sub(a.pos).Mul(t))}
	for i := range v.vary {
		v.vary[i] = a.vary[i].Add(b.vary[i].Sub(a.vary[i]).Mul(t))
	}
	return v
}

// project performs the perspective divide, face culling and viewport transform.
func (rs *rasterState) project(a, b, c clipVertex) (screenTriangle, bool) {
	var st screenTriangle
	var ndc [3]mgl32.Vec3
	for i, v := range [3]clipVertex{a, b, c} {
		inv := 1 / v.pos[3]
		ndc[i] = mgl32.Vec3{v.pos[0] * inv, v.pos[1] * inv, v.pos[2] * inv}
		st.invW[i] = inv
		st.vary[i] = v.vary
		st.x[i] = (ndc[i][0]*0.5 + 0.5) * float32(rs.width)
		st.y[i] = (0.5 - ndc[i][1]*0.5) * float32(rs.height)
		st.z[i] = ndc[i][2]
	}

	ndcArea := (ndc[1][0]-ndc[0][0])*(ndc[2][1]-ndc[0][1]) - (ndc[2][0]-ndc[0][0])*(ndc[1][1]-ndc[0][1])
	if ndcArea == 0 || math32.IsNaN(ndcArea) {
		return st, false
	}
	front := ndcArea > 0
	if rs.frontFace == gputypes.FrontFaceCW {
		front = !front
	}
	switch rs.cull {
	case gputypes.CullModeBack:
		if !front {
			return st, false
		}
	case gputypes.CullModeFront:
		if front {
			return st, false
		}
	}

	st.area = edge(st.x[0], st.y[0], st.x[1], st.y[1], st.x[2], st.y[2])
	if st.area == 0 {
		return st, false
	}
	st.minX = max(int(math32.Floor(min(st.x[0], st.x[1], st.x[2]))), 0)
	st.maxX = min(int(math32.Ceil(max(st.x[0], st.x[1], st.x[2]))), rs.width-1)
	st.minY = max(int(math32.Floor(min(st.y[0], st.y[1], st.y[2]))), 0)
	st.maxY = min(int(math32.Ceil(max(st.y[0], st.y[1], st.y[2]))), rs.height-1)
	if st.minX > st.maxX || st.minY > st.maxY {
		return st, false
	}
	st.bias = rs.depthBias(&st)
	return st, true
}

// depthBias returns the constant plus slope-scaled bias of a triangle.
func (rs *rasterState) depthBias(st *screenTriangle) float32 {
	if rs.depthState == nil || (rs.depthState.Bias == 0 && rs.depthState.SlopeScale == 0) {
		return 0
	}
	e1x, e1y, e1z := st.x[1]-st.x[0], st.y[1]-st.y[0], st.z[1]-st.z[0]
	e2x, e2y, e2z := st.x[2]-st.x[0], st.y[2]-st.y[0], st.z[2]-st.z[0]
	nx := e1y*e2z - e1z*e2y
	ny := e1z*e2x - e1x*e2z
	nz := e1x*e2y - e1y*e2x
	slope := max(math32.Abs(nx/nz), math32.Abs(ny/nz))
	return float32(rs.depthState.Bias)*depthBiasUnit + rs.depthState.SlopeScale*slope
}

// edge is the doubled signed area of (a, b, p).
func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// scan shades the pixels of rows [y0, y1) covered by the triangles, in submission order.
func (rs *rasterState) scan(tris []screenTriangle, y0, y1 int) {
	var (
		in  FragmentInput
		out FragmentOutput
	)
	for t := range tris {
		st := &tris[t]
		rowStart := max(st.minY, y0)
		rowEnd := min(st.maxY, y1-1)
		for y := rowStart; y <= rowEnd; y++ {
			py := float32(y) + 0.5
			for x := st.minX; x <= st.maxX; x++ {
				px := float32(x) + 0.5
				w0 := edge(st.x[1], st.y[1], st.x[2], st.y[2], px, py) / st.area
				w1 := edge(st.x[2], st.y[2], st.x[0], st.y[0], px, py) / st.area
				w2 := edge(st.x[0], st.y[0], st.x[1], st.y[1], px, py) / st.area
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				z := w0*st.z[0] + w1*st.z[1] + w2*st.z[2]
				if z < 0 || z > 1 {
					continue
				}
				z = mgl32.Clamp(z+st.bias, 0, 1)
				if rs.depth != nil && rs.depthState != nil {
					stored := rs.depth.depthAt(x, y, rs.depthLayer)
					if rs.depthState.Compare != gputypes.CompareFunctionUndefined &&
						!common.CompareDepth(rs.depthState.Compare, z, stored) {
						continue
					}
				}
				if rs.fragment != nil {
					rs.interpolate(st, w0, w1, w2, &in)
					in.Position = mgl32.Vec4{px, py, z, w0*st.invW[0] + w1*st.invW[1] + w2*st.invW[2]}
					out = FragmentOutput{}
					rs.fragment(&in, &out)
					for i, c := range rs.colors {
						c.tex.store(x, y, c.layer, out[i])
					}
				}
				if rs.depth != nil && rs.depthState != nil && rs.depthState.Write {
					rs.depth.storeDepth(x, y, rs.depthLayer, z)
				}
			}
		}
	}
}

// interpolate fills the perspective-correct varyings of a fragment.
func (rs *rasterState) interpolate(st *screenTriangle, w0, w1, w2 float32, in *FragmentInput) {
	p0, p1, p2 := w0*st.invW[0], w1*st.invW[1], w2*st.invW[2]
	sum := p0 + p1 + p2
	if sum != 0 {
		p0, p1, p2 = p0/sum, p1/sum, p2/sum
	}
	for i := 0; i < rs.varyings; i++ {
		a, b, c := st.vary[0][i], st.vary[1][i], st.vary[2][i]
		in.Varyings[i] = a.Mul(p0).Add(b.Mul(p1)).Add(c.Mul(p2))
	}
}
