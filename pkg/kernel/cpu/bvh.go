package cpu

import (
	"math"

	"github.com/chazu/meshforge/pkg/kernel"
	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r3"
)

var _ kernel.BVH = (*bvh)(nil)

// rectPad keeps every triangle box strictly positive in each dimension.
const rectPad = 1e-9

// triangle is a source face stored in the BVH.
type triangle struct {
	a, b, c r3.Vec
	n       r3.Vec // unit normal, zero for degenerate faces
	rect    rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (t *triangle) Bounds() rtreego.Rect { return t.rect }

// bvh is an R-tree over the faces of a mesh. It answers closest-point
// queries for the remesher.
type bvh struct {
	tree *rtreego.Rtree
	tris []*triangle
	tol  float64
}

// Triangles returns the number of indexed faces.
func (t *bvh) Triangles() int { return len(t.tris) }

// BuildBVH indexes the faces of b for closest-point queries.
func (k *Kernel) BuildBVH(b kernel.Buffers) (kernel.BVH, error) {
	if err := checkBuffers(b); err != nil {
		return nil, err
	}
	return newBVH(unpack(b)), nil
}

func newBVH(s *soup) *bvh {
	t := &bvh{
		tris: make([]*triangle, 0, len(s.faces)),
		tol:  1e-9 * math.Max(1, s.extent()),
	}
	objs := make([]rtreego.Spatial, 0, len(s.faces))
	for _, f := range s.faces {
		tri := &triangle{a: s.verts[f[0]], b: s.verts[f[1]], c: s.verts[f[2]]}
		if n := s.normal(f); r3.Norm(n) > 0 {
			tri.n = r3.Unit(n)
		}
		lo := rtreego.Point{
			math.Min(tri.a.X, math.Min(tri.b.X, tri.c.X)) - rectPad,
			math.Min(tri.a.Y, math.Min(tri.b.Y, tri.c.Y)) - rectPad,
			math.Min(tri.a.Z, math.Min(tri.b.Z, tri.c.Z)) - rectPad,
		}
		hi := rtreego.Point{
			math.Max(tri.a.X, math.Max(tri.b.X, tri.c.X)) + rectPad,
			math.Max(tri.a.Y, math.Max(tri.b.Y, tri.c.Y)) + rectPad,
			math.Max(tri.a.Z, math.Max(tri.b.Z, tri.c.Z)) + rectPad,
		}
		tri.rect, _ = rtreego.NewRectFromPoints(lo, hi)
		t.tris = append(t.tris, tri)
		objs = append(objs, tri)
	}
	t.tree = rtreego.NewTree(3, 25, 50, objs...)
	return t
}

// closest returns the point of the indexed surface nearest to p, the
// distance to it, and the summed normals of every face that attains that
// distance. ok is false for an empty tree.
func (t *bvh) closest(p r3.Vec) (cp, normal r3.Vec, dist float64, ok bool) {
	q := rtreego.Point{p.X, p.Y, p.Z}
	nearest := t.tree.NearestNeighbor(q)
	if nearest == nil {
		return r3.Vec{}, r3.Vec{}, 0, false
	}
	seed := nearest.(*triangle)
	bound := r3.Norm(r3.Sub(seed.closest(p), p))

	dist = math.Inf(1)
	for _, obj := range t.tree.SearchIntersect(q.ToRect(bound + t.tol)) {
		tri := obj.(*triangle)
		c := tri.closest(p)
		d := r3.Norm(r3.Sub(c, p))
		switch {
		case d < dist-t.tol:
			cp, normal, dist = c, tri.n, d
		case d <= dist+t.tol:
			normal = r3.Add(normal, tri.n)
			if d < dist {
				cp, dist = c, d
			}
		}
	}
	return cp, normal, dist, true
}

// closest returns the point of the triangle nearest to p.
func (t *triangle) closest(p r3.Vec) r3.Vec {
	if t.n == (r3.Vec{}) {
		return closestOnDegenerate(p, t.a, t.b, t.c)
	}
	a, b, c := t.a, t.b, t.c
	ab, ac, ap := r3.Sub(b, a), r3.Sub(c, a), r3.Sub(p, a)
	d1, d2 := r3.Dot(ab, ap), r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := r3.Sub(p, b)
	d3, d4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return r3.Add(a, r3.Scale(d1/(d1-d3), ab))
	}
	cpv := r3.Sub(p, c)
	d5, d6 := r3.Dot(ab, cpv), r3.Dot(ac, cpv)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return r3.Add(a, r3.Scale(d2/(d2-d6), ac))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}
	denom := 1 / (va + vb + vc)
	return r3.Add(a, r3.Add(r3.Scale(vb*denom, ab), r3.Scale(vc*denom, ac)))
}

// closestOnDegenerate handles zero-area faces as their three edges.
func closestOnDegenerate(p, a, b, c r3.Vec) r3.Vec {
	best := a
	bestD := math.Inf(1)
	for _, seg := range [3][2]r3.Vec{{a, b}, {b, c}, {c, a}} {
		q := closestOnSegment(p, seg[0], seg[1])
		if d := r3.Norm2(r3.Sub(q, p)); d < bestD {
			best, bestD = q, d
		}
	}
	return best
}

func closestOnSegment(p, a, b r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	t := r3.Dot(r3.Sub(p, a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	return r3.Add(a, r3.Scale(t, ab))
}
