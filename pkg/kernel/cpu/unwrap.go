package cpu

import (
	"math"

	"github.com/chazu/meshforge/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// chartMargin is the fraction of an atlas cell left empty on each side.
const chartMargin = 1.0 / 16

// unwrapCharts gives every face its own chart: the face is split off with
// private vertices, flattened into its plane and packed into a square grid
// atlas. The returned uv holds one (u, v) pair per returned vertex.
func unwrapCharts(s *soup) (kernel.Buffers, []float32) {
	nf := len(s.faces)
	out := &soup{
		verts: make([]r3.Vec, 0, nf*3),
		faces: make([][3]int, 0, nf),
	}
	uv := make([]float32, 0, nf*6)
	if nf == 0 {
		return out.pack(), uv
	}

	cols := int(math.Ceil(math.Sqrt(float64(nf))))
	cell := 1 / float64(cols)
	for fi, f := range s.faces {
		base := len(out.verts)
		out.verts = append(out.verts, s.verts[f[0]], s.verts[f[1]], s.verts[f[2]])
		out.faces = append(out.faces, [3]int{base, base + 1, base + 2})

		flat := flatten(s.verts[f[0]], s.verts[f[1]], s.verts[f[2]])
		col, row := fi%cols, fi/cols
		for _, p := range flat {
			u := (float64(col) + chartMargin + p[0]*(1-2*chartMargin)) * cell
			v := (float64(row) + chartMargin + p[1]*(1-2*chartMargin)) * cell
			uv = append(uv, float32(u), float32(v))
		}
	}
	return out.pack(), uv
}

// flatten maps a triangle into its own plane and normalizes it into the
// unit square, preserving aspect ratio. Degenerate triangles collapse to
// the origin.
func flatten(a, b, c r3.Vec) [3][2]float64 {
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	l1 := r3.Norm(e1)
	n := r3.Cross(e1, e2)
	if l1 == 0 || r3.Norm(n) == 0 {
		return [3][2]float64{}
	}
	u := r3.Scale(1/l1, e1)
	v := r3.Unit(r3.Cross(n, e1))

	pts := [3][2]float64{
		{0, 0},
		{l1, 0},
		{r3.Dot(e2, u), r3.Dot(e2, v)},
	}
	minX := math.Min(0, pts[2][0])
	maxX := math.Max(l1, pts[2][0])
	maxY := pts[2][1]
	size := math.Max(maxX-minX, maxY)
	for i := range pts {
		pts[i][0] = (pts[i][0] - minX) / size
		pts[i][1] /= size
	}
	return pts
}
