package cpu

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// halfEdge is a directed boundary edge as traversed by its only face.
type halfEdge struct {
	from, to int
}

// boundaryLoops returns the closed boundary loops of the mesh. Each loop
// lists the boundary half-edges in traversal order. Open chains that do not
// close (non-manifold boundaries) are not reported.
func (s *soup) boundaryLoops() [][]halfEdge {
	ef := s.edgeFaces()

	var boundary []halfEdge
	for _, f := range s.faces {
		for c := 0; c < 3; c++ {
			a, b := f[c], f[(c+1)%3]
			if len(ef[undirected(a, b)]) == 1 {
				boundary = append(boundary, halfEdge{a, b})
			}
		}
	}

	out := make(map[int][]int, len(boundary)) // vertex -> indices into boundary
	for i, he := range boundary {
		out[he.from] = append(out[he.from], i)
	}
	used := make([]bool, len(boundary))

	var loops [][]halfEdge
	for start := range boundary {
		if used[start] {
			continue
		}
		used[start] = true
		loop := []halfEdge{boundary[start]}
		origin := boundary[start].from
		cur := boundary[start].to
		closed := false
		for steps := 0; steps < len(boundary); steps++ {
			if cur == origin {
				closed = true
				break
			}
			next := -1
			for _, cand := range out[cur] {
				if !used[cand] {
					next = cand
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			loop = append(loop, boundary[next])
			cur = boundary[next].to
		}
		if closed && len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}

// perimeter returns the summed length of the loop's edges.
func (s *soup) perimeter(loop []halfEdge) float64 {
	var p float64
	for _, he := range loop {
		p += r3.Norm(r3.Sub(s.verts[he.to], s.verts[he.from]))
	}
	return p
}

// fillHoles closes every boundary loop whose perimeter is at most
// maxPerimeter. Triangular holes get a single face; larger holes get a fan
// around a new vertex at the loop centroid. New faces run against the
// boundary direction so they agree with the winding of their neighbours.
func (s *soup) fillHoles(maxPerimeter float64) {
	for _, loop := range s.boundaryLoops() {
		if s.perimeter(loop) > maxPerimeter {
			continue
		}
		if len(loop) == 3 {
			s.faces = append(s.faces, [3]int{loop[0].from, loop[2].from, loop[1].from})
			continue
		}
		var c r3.Vec
		for _, he := range loop {
			c = r3.Add(c, s.verts[he.from])
		}
		s.verts = append(s.verts, r3.Scale(1/float64(len(loop)), c))
		center := len(s.verts) - 1
		for _, he := range loop {
			s.faces = append(s.faces, [3]int{he.to, he.from, center})
		}
	}
}
