package cpu

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxRepairPasses bounds the edge-splitting fixpoint loop.
const maxRepairPasses = 8

// removeDuplicateFaces keeps the first face of every vertex set, regardless
// of winding.
func (s *soup) removeDuplicateFaces() {
	seen := make(map[[3]int]struct{}, len(s.faces))
	s.keepFaces(func(i int) bool {
		key := s.faces[i]
		slices.Sort(key[:])
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})
}

// repairNonManifoldEdges detaches every face beyond the second on an edge
// by giving it private copies of the edge's endpoints.
func (s *soup) repairNonManifoldEdges() {
	for pass := 0; pass < maxRepairPasses; pass++ {
		ef := s.edgeFaces()
		changed := false
		for _, e := range sortedEdges(ef) {
			fs := ef[e]
			if len(fs) <= 2 {
				continue
			}
			for _, fi := range fs[2:] {
				f := s.faces[fi]
				if !contains(f, e.a) || !contains(f, e.b) {
					continue // already detached through another edge
				}
				for c, v := range f {
					if v == e.a || v == e.b {
						s.verts = append(s.verts, s.verts[v])
						f[c] = len(s.verts) - 1
					}
				}
				s.faces[fi] = f
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// removeNonManifoldFaces deletes the faces beyond the first two on every
// edge shared by more than two faces.
func (s *soup) removeNonManifoldFaces() {
	ef := s.edgeFaces()
	drop := make(map[int]bool)
	for _, fs := range ef {
		if len(fs) > 2 {
			for _, fi := range fs[2:] {
				drop[fi] = true
			}
		}
	}
	if len(drop) == 0 {
		return
	}
	s.keepFaces(func(i int) bool { return !drop[i] })
	s.compact()
}

// removeSmallComponents drops components whose surface area is below
// threshold times the squared extent of the whole mesh.
func (s *soup) removeSmallComponents(threshold float64) {
	if len(s.faces) == 0 {
		return
	}
	ext := s.extent()
	minArea := threshold * ext * ext

	labels, n := s.components(s.edgeFaces())
	areas := make([]float64, n)
	for i, f := range s.faces {
		areas[labels[i]] += s.area(f)
	}
	s.keepFaces(func(i int) bool { return areas[labels[i]] >= minArea })
	s.compact()
}

// unifyOrientation propagates winding across manifold edges, then flips any
// component whose signed volume is negative so it faces outward.
func (s *soup) unifyOrientation() {
	if len(s.faces) == 0 {
		return
	}
	ef := s.edgeFaces()
	visited := make([]bool, len(s.faces))

	for seed := range s.faces {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		comp := []int{seed}
		for q := 0; q < len(comp); q++ {
			fi := comp[q]
			f := s.faces[fi]
			for c := 0; c < 3; c++ {
				a, b := f[c], f[(c+1)%3]
				fs := ef[undirected(a, b)]
				if len(fs) != 2 {
					continue // boundary or non-manifold: no propagation
				}
				g := fs[0]
				if g == fi {
					g = fs[1]
				}
				if visited[g] {
					continue
				}
				if hasDirected(s.faces[g], a, b) {
					s.faces[g][1], s.faces[g][2] = s.faces[g][2], s.faces[g][1]
				}
				visited[g] = true
				comp = append(comp, g)
			}
		}
		if s.signedVolume(comp) < 0 {
			for _, fi := range comp {
				s.faces[fi][1], s.faces[fi][2] = s.faces[fi][2], s.faces[fi][1]
			}
		}
	}
}

// signedVolume returns six times the signed volume enclosed by faces,
// measured from the centroid of their vertices.
func (s *soup) signedVolume(faces []int) float64 {
	var centroid r3.Vec
	n := 0
	for _, fi := range faces {
		for _, v := range s.faces[fi] {
			centroid = r3.Add(centroid, s.verts[v])
			n++
		}
	}
	centroid = r3.Scale(1/float64(n), centroid)

	var vol float64
	for _, fi := range faces {
		f := s.faces[fi]
		a := r3.Sub(s.verts[f[0]], centroid)
		b := r3.Sub(s.verts[f[1]], centroid)
		c := r3.Sub(s.verts[f[2]], centroid)
		vol += r3.Dot(a, r3.Cross(b, c))
	}
	return vol
}
