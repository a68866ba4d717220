package gjk

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
)

const (
	epaMaxIterations = 32
	epaMaxFaces      = 128
)

var epaTolerance = fixed.FromRatio(1, 10000)

// Penetration is the minimum translation separating two overlapping sets.
// Moving B by Normal*Depth resolves the overlap, so Normal points from A to B.
type Penetration struct {
	Normal         fixed.Vec3
	Depth          fixed.Fixed
	PointA, PointB fixed.Vec3
}

type epaFace struct {
	v      [3]int
	normal fixed.Vec3
	dist   fixed.Fixed
}

type epaEdge struct {
	a, b int
}

// Scratch is reusable EPA storage owned by the caller
type Scratch struct {
	verts []Vertex
	faces []epaFace
	edges []epaEdge
}

// EPA expands the tetrahedron left in s by an intersecting Distance call.
// ok is false when the simplex is degenerate; callers fall back to a projection test.
func EPA(a, b SupportFunc, s *Simplex, scratch *Scratch) (Penetration, bool) {
	if s.Count < 4 || s.volume6() == 0 {
		return Penetration{}, false
	}
	verts := append(scratch.verts[:0], s.V[:]...)
	faces := scratch.faces[:0]
	for _, f := range [4][3]int{{0, 1, 2}, {0, 3, 1}, {0, 2, 3}, {1, 3, 2}} {
		face, ok := makeFace(verts, f[0], f[1], f[2])
		if !ok {
			return Penetration{}, false
		}
		faces = append(faces, face)
	}

	var best epaFace
	for iter := 0; ; iter++ {
		bi := -1
		for i := range faces {
			if bi < 0 || faces[i].dist < faces[bi].dist {
				bi = i
			}
		}
		if bi < 0 {
			return Penetration{}, false
		}
		best = faces[bi]
		if iter >= epaMaxIterations || len(faces) >= epaMaxFaces {
			break
		}
		w := MinkowskiSupport(a, b, best.normal)
		if w.W.Dot(best.normal)-best.dist <= epaTolerance {
			break
		}

		verts = append(verts, w)
		wi := len(verts) - 1
		edges := scratch.edges[:0]
		kept := faces[:0]
		for _, f := range faces {
			if f.normal.Dot(w.W.Sub(verts[f.v[0]].W)) > 0 {
				for k := 0; k < 3; k++ {
					edges = addHorizonEdge(edges, f.v[k], f.v[(k+1)%3])
				}
			} else {
				kept = append(kept, f)
			}
		}
		faces = kept
		for _, e := range edges {
			face, ok := makeFace(verts, e.a, e.b, wi)
			if ok {
				faces = append(faces, face)
			}
		}
		scratch.edges = edges
	}
	scratch.verts, scratch.faces = verts, faces

	// witness points from the barycentric of the origin's projection on the face
	p := best.normal.Scale(best.dist)
	va, vb, vc := verts[best.v[0]], verts[best.v[1]], verts[best.v[2]]
	_, _, wts := ClosestOnTriangle(p, va.W, vb.W, vc.W)
	pen := Penetration{Normal: best.normal, Depth: best.dist}
	pen.PointA = va.A.Scale(wts[0]).Add(vb.A.Scale(wts[1])).Add(vc.A.Scale(wts[2]))
	pen.PointB = va.B.Scale(wts[0]).Add(vb.B.Scale(wts[1])).Add(vc.B.Scale(wts[2]))
	return pen, true
}

func makeFace(verts []Vertex, i, j, k int) (epaFace, bool) {
	a, b, c := verts[i].W, verts[j].W, verts[k].W
	n := b.Sub(a).Cross(c.Sub(a)).Normalize()
	if n.IsZero() {
		return epaFace{}, false
	}
	d := n.Dot(a)
	if d < 0 {
		// keep faces oriented away from the origin
		return epaFace{v: [3]int{i, k, j}, normal: n.Negate(), dist: -d}, true
	}
	return epaFace{v: [3]int{i, j, k}, normal: n, dist: d}, true
}

// addHorizonEdge removes the reversed edge if present (shared by two removed faces)
func addHorizonEdge(edges []epaEdge, a, b int) []epaEdge {
	for i, e := range edges {
		if e.a == b && e.b == a {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return append(edges, epaEdge{a, b})
}

// ProjectionOverlap measures how far A and B overlap along a unit direction n,
// used when EPA cannot run on a degenerate simplex.
func ProjectionOverlap(a, b SupportFunc, n fixed.Vec3) fixed.Fixed {
	maxA := a(n).Dot(n)
	minB := b(n.Negate()).Dot(n)
	return maxA - minB
}
