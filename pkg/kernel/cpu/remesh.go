package cpu

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

// weldTolerance is the vertex merge distance in voxels.
const weldTolerance = 1e-4

// Grid point states during the sign flood.
const (
	cellUnknown uint8 = iota
	cellBand
	cellOutside
)

// Remesh rebuilds the surface of b as the zero level set of a narrow-band
// distance field sampled in normalized coordinates, then moves every new
// vertex ProjectBack of the way toward the closest point of the source.
// Normalized coordinates are (v - Center) / Scale; the grid spacing there
// is 1/Resolution and Band is measured in grid cells.
func (k *Kernel) Remesh(b kernel.Buffers, p kernel.RemeshParams) (kernel.Buffers, error) {
	if err := checkBuffers(b); err != nil {
		return kernel.Buffers{}, err
	}
	if b.FaceCount() == 0 {
		return kernel.Buffers{}, nil
	}
	if p.Resolution <= 0 {
		return kernel.Buffers{}, kernel.Failure("remesh", fmt.Errorf("resolution %d", p.Resolution))
	}
	if !(p.Scale > 0) {
		return kernel.Buffers{}, kernel.Failure("remesh", errors.New("degenerate bounds"))
	}

	var tree *bvh
	switch t := p.BVH.(type) {
	case nil:
		tree = newBVH(unpack(b))
	case *bvh:
		tree = t
	default:
		return kernel.Buffers{}, kernel.Failure("remesh", fmt.Errorf("foreign bvh %T", p.BVH))
	}

	g, err := k.newGrid(p)
	if err != nil {
		return kernel.Buffers{}, kernel.Failure("remesh", err)
	}
	g.fill(tree)

	cells := g.n - 1
	tris := render.ToTriangles(g, render.NewMarchingCubesUniform(cells))
	s := g.weld(tris)
	if len(s.faces) == 0 {
		return kernel.Buffers{}, kernel.Failure("remesh", errors.New("no surface extracted"))
	}

	for i, v := range s.verts {
		w := g.toWorld(v)
		if cp, _, _, ok := tree.closest(w); ok {
			w = r3.Add(w, r3.Scale(p.ProjectBack, r3.Sub(cp, w)))
		}
		s.verts[i] = w
	}
	return s.pack(), nil
}

// grid is a signed distance field sampled on a regular lattice in
// normalized coordinates. It implements sdf.SDF3.
type grid struct {
	n      int     // samples per axis
	h      float64 // spacing
	origin float64 // normalized coordinate of sample 0 on every axis
	radius float64 // band radius in normalized units
	vals   []float32
	center r3.Vec
	scale  float64
}

func (k *Kernel) newGrid(p kernel.RemeshParams) (*grid, error) {
	band := math.Max(p.Band, 0)
	pad := int(math.Ceil(band)) + 2
	n := p.Resolution + 1 + 2*pad
	if n*n*n > k.maxGridPoints {
		return nil, fmt.Errorf("grid of %d^3 samples exceeds limit of %d", n, k.maxGridPoints)
	}
	h := 1 / float64(p.Resolution)
	return &grid{
		n:      n,
		h:      h,
		origin: -0.5 - float64(pad)*h,
		radius: (band + 1) * h,
		vals:   make([]float32, n*n*n),
		center: r3.Vec{X: float64(p.Center[0]), Y: float64(p.Center[1]), Z: float64(p.Center[2])},
		scale:  float64(p.Scale),
	}, nil
}

func (g *grid) index(i, j, l int) int { return (l*g.n+j)*g.n + i }

func (g *grid) point(i, j, l int) r3.Vec {
	return r3.Vec{
		X: g.origin + float64(i)*g.h,
		Y: g.origin + float64(j)*g.h,
		Z: g.origin + float64(l)*g.h,
	}
}

func (g *grid) toWorld(v r3.Vec) r3.Vec {
	return r3.Add(g.center, r3.Scale(g.scale, v))
}

func (g *grid) toGrid(w r3.Vec) r3.Vec {
	return r3.Scale(1/g.scale, r3.Sub(w, g.center))
}

// fill computes exact signed distances for samples within the band of any
// source face, then floods the remaining samples from the lattice boundary:
// reached samples are outside, the rest inside.
func (g *grid) fill(tree *bvh) {
	state := make([]uint8, len(g.vals))
	visited := make([]bool, len(g.vals))
	for _, t := range tree.tris {
		lo := g.toGrid(r3.Vec{
			X: math.Min(t.a.X, math.Min(t.b.X, t.c.X)),
			Y: math.Min(t.a.Y, math.Min(t.b.Y, t.c.Y)),
			Z: math.Min(t.a.Z, math.Min(t.b.Z, t.c.Z)),
		})
		hi := g.toGrid(r3.Vec{
			X: math.Max(t.a.X, math.Max(t.b.X, t.c.X)),
			Y: math.Max(t.a.Y, math.Max(t.b.Y, t.c.Y)),
			Z: math.Max(t.a.Z, math.Max(t.b.Z, t.c.Z)),
		})
		i0, i1 := g.span(lo.X, hi.X)
		j0, j1 := g.span(lo.Y, hi.Y)
		l0, l1 := g.span(lo.Z, hi.Z)
		for l := l0; l <= l1; l++ {
			for j := j0; j <= j1; j++ {
				for i := i0; i <= i1; i++ {
					idx := g.index(i, j, l)
					if visited[idx] {
						continue
					}
					visited[idx] = true
					g.sample(tree, idx, g.point(i, j, l), state)
				}
			}
		}
	}

	queue := make([]int, 0, g.n*g.n*6)
	seed := func(i, j, l int) {
		idx := g.index(i, j, l)
		if state[idx] == cellUnknown {
			state[idx] = cellOutside
			queue = append(queue, idx)
		}
	}
	last := g.n - 1
	for a := 0; a < g.n; a++ {
		for b := 0; b < g.n; b++ {
			seed(0, a, b)
			seed(last, a, b)
			seed(a, 0, b)
			seed(a, last, b)
			seed(a, b, 0)
			seed(a, b, last)
		}
	}
	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		i, j, l := idx%g.n, (idx/g.n)%g.n, idx/(g.n*g.n)
		for _, d := range [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}} {
			ni, nj, nl := i+d[0], j+d[1], l+d[2]
			if ni < 0 || nj < 0 || nl < 0 || ni > last || nj > last || nl > last {
				continue
			}
			seed(ni, nj, nl)
		}
	}

	r := float32(g.radius)
	for idx, st := range state {
		switch st {
		case cellOutside:
			g.vals[idx] = r
		case cellUnknown:
			g.vals[idx] = -r
		}
	}
}

// span returns the sample index range within the band of [lo, hi].
func (g *grid) span(lo, hi float64) (int, int) {
	a := int(math.Floor((lo - g.radius - g.origin) / g.h))
	b := int(math.Ceil((hi + g.radius - g.origin) / g.h))
	return max(a, 0), min(b, g.n-1)
}

// sample stores the signed distance at one lattice point if it lies within
// the band. The sign comes from the normals of the closest faces.
func (g *grid) sample(tree *bvh, idx int, p r3.Vec, state []uint8) {
	w := g.toWorld(p)
	cp, normal, dist, ok := tree.closest(w)
	if !ok {
		return
	}
	d := dist / g.scale
	if d > g.radius {
		return
	}
	if r3.Dot(r3.Sub(w, cp), normal) < 0 {
		d = -d
	}
	g.vals[idx] = float32(d)
	state[idx] = cellBand
}

// Evaluate implements sdf.SDF3 by trilinear interpolation. Points off the
// lattice are outside.
func (g *grid) Evaluate(p v3.Vec) float64 {
	fx := (p.X - g.origin) / g.h
	fy := (p.Y - g.origin) / g.h
	fz := (p.Z - g.origin) / g.h
	last := float64(g.n - 1)
	if fx < 0 || fy < 0 || fz < 0 || fx > last || fy > last || fz > last {
		return g.radius
	}
	i := min(int(fx), g.n-2)
	j := min(int(fy), g.n-2)
	l := min(int(fz), g.n-2)
	tx, ty, tz := fx-float64(i), fy-float64(j), fz-float64(l)

	v := func(di, dj, dl int) float64 { return float64(g.vals[g.index(i+di, j+dj, l+dl)]) }
	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	c00 := lerp(v(0, 0, 0), v(1, 0, 0), tx)
	c10 := lerp(v(0, 1, 0), v(1, 1, 0), tx)
	c01 := lerp(v(0, 0, 1), v(1, 0, 1), tx)
	c11 := lerp(v(0, 1, 1), v(1, 1, 1), tx)
	return lerp(lerp(c00, c10, ty), lerp(c01, c11, ty), tz)
}

// BoundingBox implements sdf.SDF3.
func (g *grid) BoundingBox() sdf.Box3 {
	hi := g.origin + float64(g.n-1)*g.h
	return sdf.Box3{
		Min: v3.Vec{X: g.origin, Y: g.origin, Z: g.origin},
		Max: v3.Vec{X: hi, Y: hi, Z: hi},
	}
}

// weld merges marching cubes output into an indexed mesh, joining vertices
// closer than weldTolerance cells and dropping collapsed faces.
func (g *grid) weld(tris []*sdf.Triangle3) *soup {
	q := weldTolerance * g.h
	s := &soup{}
	ids := make(map[[3]int64]int, len(tris))
	vertex := func(v v3.Vec) int {
		key := [3]int64{int64(math.Round(v.X / q)), int64(math.Round(v.Y / q)), int64(math.Round(v.Z / q))}
		if id, ok := ids[key]; ok {
			return id
		}
		id := len(s.verts)
		ids[key] = id
		s.verts = append(s.verts, r3.Vec{X: v.X, Y: v.Y, Z: v.Z})
		return id
	}
	for _, t := range tris {
		f := [3]int{vertex(t[0]), vertex(t[1]), vertex(t[2])}
		if !degenerate(f) {
			s.faces = append(s.faces, f)
		}
	}
	s.removeDuplicateFaces()
	s.compact()
	return s
}
