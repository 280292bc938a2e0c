package cpu

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxSimplifyPasses bounds the number of collapse sweeps.
const maxSimplifyPasses = 64

// simplify reduces the face count toward target by collapsing the shortest
// edges to their midpoints. Each sweep collapses an independent set of
// edges (no two collapses touch the same one-ring), so a sweep never folds
// a face over a collapse made in the same sweep. Faces are only ever
// removed, never added.
func (s *soup) simplify(target int) {
	if len(s.faces) <= target {
		return
	}
	for pass := 0; pass < maxSimplifyPasses && len(s.faces) > target; pass++ {
		if !s.collapsePass(len(s.faces) - target) {
			break
		}
	}
	s.compact()
}

// collapsePass collapses edges until about budget faces have been removed.
// It reports whether any face was removed.
func (s *soup) collapsePass(budget int) bool {
	ef := s.edgeFaces()
	edges := sortedEdges(ef)
	lengths := make(map[edge]float64, len(edges))
	for _, e := range edges {
		lengths[e] = r3.Norm(r3.Sub(s.verts[e.a], s.verts[e.b]))
	}
	slices.SortStableFunc(edges, func(x, y edge) int {
		switch {
		case lengths[x] < lengths[y]:
			return -1
		case lengths[x] > lengths[y]:
			return 1
		}
		return 0
	})

	ring := make(map[int][]int, len(s.verts)) // vertex -> incident faces
	for fi, f := range s.faces {
		for _, v := range f {
			ring[v] = append(ring[v], fi)
		}
	}

	remap := make([]int, len(s.verts))
	for i := range remap {
		remap[i] = i
	}
	locked := make([]bool, len(s.verts))
	removed := 0
	for _, e := range edges {
		if removed >= budget {
			break
		}
		if locked[e.a] || locked[e.b] {
			continue
		}
		s.verts[e.a] = r3.Scale(0.5, r3.Add(s.verts[e.a], s.verts[e.b]))
		remap[e.b] = e.a
		for _, v := range []int{e.a, e.b} {
			for _, fi := range ring[v] {
				for _, w := range s.faces[fi] {
					locked[w] = true
				}
			}
		}
		removed += len(ef[e])
	}

	before := len(s.faces)
	for fi, f := range s.faces {
		s.faces[fi] = [3]int{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
	s.keepFaces(func(i int) bool { return !degenerate(s.faces[i]) })
	s.removeDuplicateFaces()
	return len(s.faces) < before
}
