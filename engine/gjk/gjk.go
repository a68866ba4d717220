// Package gjk computes distances and closest points between convex sets given by
// support mappings, on the Minkowski difference A - B.
package gjk

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
)

const maxIterations = 48

var (
	// relative progress below which the search stops
	relTolerance = fixed.FromRatio(1, 10000)
	// squared distance treated as touching
	touchSq = fixed.FromRatio(1, 100000000)
)

// SupportFunc returns the extreme point of a convex set along dir
type SupportFunc func(dir fixed.Vec3) fixed.Vec3

// Vertex is a point of the Minkowski difference with its two sources
type Vertex struct {
	W, A, B fixed.Vec3
}

// Simplex holds up to four vertices
type Simplex struct {
	V     [4]Vertex
	Count int
}

// Reset empties the simplex
func (s *Simplex) Reset() {
	s.Count = 0
}

// Result of a distance query
type Result struct {
	Intersecting bool
	Distance     fixed.Fixed
	// closest points on A and B; meaningless when intersecting
	PointA, PointB fixed.Vec3
	Iterations     int
}

// MinkowskiSupport returns the support of A - B along dir
func MinkowskiSupport(a, b SupportFunc, dir fixed.Vec3) Vertex {
	pa := a(dir)
	pb := b(dir.Negate())
	return Vertex{W: pa.Sub(pb), A: pa, B: pb}
}

// Distance runs GJK from initialDir. On intersection the simplex is left holding the
// vertices that enclose (or touch) the origin.
func Distance(a, b SupportFunc, initialDir fixed.Vec3, s *Simplex) Result {
	if initialDir.IsZero() {
		initialDir = fixed.UnitX
	}
	s.Reset()
	s.V[0] = MinkowskiSupport(a, b, initialDir)
	s.Count = 1
	v := s.V[0].W
	var bary [4]fixed.Fixed
	bary[0] = fixed.One

	res := Result{}
	for res.Iterations = 0; res.Iterations < maxIterations; res.Iterations++ {
		vv := v.LengthSquared()
		if vv <= touchSq {
			res.Intersecting = true
			return res
		}
		w := MinkowskiSupport(a, b, v.Negate())
		// no meaningful progress toward the origin: v is the closest point
		if vv-v.Dot(w.W) <= vv.Mul(relTolerance) || s.contains(w.W) {
			break
		}
		s.V[s.Count] = w
		s.Count++

		var inside bool
		v, inside = s.closest(&bary)
		if inside {
			res.Intersecting = true
			return res
		}
	}

	res.Distance = v.Length()
	for i := 0; i < s.Count; i++ {
		res.PointA = res.PointA.Add(s.V[i].A.Scale(bary[i]))
		res.PointB = res.PointB.Add(s.V[i].B.Scale(bary[i]))
	}
	return res
}

func (s *Simplex) contains(w fixed.Vec3) bool {
	for i := 0; i < s.Count; i++ {
		if s.V[i].W == w {
			return true
		}
	}
	return false
}

// closest reduces the simplex to the feature nearest the origin, writes barycentric
// weights for the remaining vertices and returns the closest point.
func (s *Simplex) closest(bary *[4]fixed.Fixed) (fixed.Vec3, bool) {
	switch s.Count {
	case 1:
		bary[0] = fixed.One
		return s.V[0].W, false
	case 2:
		return s.closestSegment(bary), false
	case 3:
		return s.closestTriangle(bary), false
	default:
		return s.closestTetrahedron(bary)
	}
}

func (s *Simplex) keep(idx ...int) {
	var nv [4]Vertex
	for i, k := range idx {
		nv[i] = s.V[k]
	}
	s.V = nv
	s.Count = len(idx)
}

func (s *Simplex) closestSegment(bary *[4]fixed.Fixed) fixed.Vec3 {
	a, b := s.V[0].W, s.V[1].W
	ab := b.Sub(a)
	denom := ab.LengthSquared()
	t := a.Negate().Dot(ab)
	if t <= 0 || denom == 0 {
		s.keep(0)
		bary[0] = fixed.One
		return a
	}
	if t >= denom {
		s.keep(1)
		bary[0] = fixed.One
		return b
	}
	t = t.Div(denom)
	bary[0], bary[1] = fixed.One-t, t
	return a.Add(ab.Scale(t))
}

func (s *Simplex) closestTriangle(bary *[4]fixed.Fixed) fixed.Vec3 {
	p, idx, w := ClosestOnTriangle(fixed.Vec3{}, s.V[0].W, s.V[1].W, s.V[2].W)
	var kept []int
	var weights []fixed.Fixed
	for i := 0; i < 3; i++ {
		if idx[i] {
			kept = append(kept, i)
			weights = append(weights, w[i])
		}
	}
	s.keep(kept...)
	for i, wt := range weights {
		bary[i] = wt
	}
	return p
}

func (s *Simplex) closestTetrahedron(bary *[4]fixed.Fixed) (fixed.Vec3, bool) {
	if s.volume6() == 0 {
		// flat: drop the newest vertex
		s.Count = 3
		return s.closestTriangle(bary), false
	}
	faces := [4][3]int{{0, 1, 2}, {0, 2, 3}, {0, 3, 1}, {1, 3, 2}}
	opposite := [4]int{3, 1, 2, 0}
	best := fixed.MaxValue
	var bestP fixed.Vec3
	var bestIdx [3]bool
	var bestW [3]fixed.Fixed
	bestFace := -1
	for f, face := range faces {
		a, b, c := s.V[face[0]].W, s.V[face[1]].W, s.V[face[2]].W
		d := s.V[opposite[f]].W
		n := b.Sub(a).Cross(c.Sub(a))
		// origin and the opposite vertex strictly on different sides
		sideO := a.Negate().Dot(n)
		sideD := d.Sub(a).Dot(n)
		outside := sideO != 0 && sideD != 0 && (sideO > 0) != (sideD > 0)
		if !outside {
			continue
		}
		p, idx, w := ClosestOnTriangle(fixed.Vec3{}, a, b, c)
		if dd := p.LengthSquared(); dd < best {
			best, bestP, bestIdx, bestW, bestFace = dd, p, idx, w, f
		}
	}
	if bestFace < 0 {
		return fixed.Vec3{}, true
	}
	var kept []int
	var weights []fixed.Fixed
	for i := 0; i < 3; i++ {
		if bestIdx[i] {
			kept = append(kept, faces[bestFace][i])
			weights = append(weights, bestW[i])
		}
	}
	s.keep(kept...)
	for i, wt := range weights {
		bary[i] = wt
	}
	return bestP, false
}

func (s *Simplex) volume6() fixed.Fixed {
	a := s.V[0].W
	return s.V[1].W.Sub(a).Cross(s.V[2].W.Sub(a)).Dot(s.V[3].W.Sub(a))
}

// ClosestOnTriangle returns the point of triangle abc nearest to p, which vertices
// support it and their barycentric weights.
func ClosestOnTriangle(p, a, b, c fixed.Vec3) (fixed.Vec3, [3]bool, [3]fixed.Fixed) {
	ab, ac, ap := b.Sub(a), c.Sub(a), p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, [3]bool{true, false, false}, [3]fixed.Fixed{fixed.One, 0, 0}
	}
	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, [3]bool{false, true, false}, [3]fixed.Fixed{0, fixed.One, 0}
	}
	vc := d1.Mul(d4) - d3.Mul(d2)
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1.Div(d1 - d3)
		return a.Add(ab.Scale(v)), [3]bool{true, true, false}, [3]fixed.Fixed{fixed.One - v, v, 0}
	}
	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, [3]bool{false, false, true}, [3]fixed.Fixed{0, 0, fixed.One}
	}
	vb := d5.Mul(d2) - d1.Mul(d6)
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2.Div(d2 - d6)
		return a.Add(ac.Scale(w)), [3]bool{true, false, true}, [3]fixed.Fixed{fixed.One - w, 0, w}
	}
	va := d3.Mul(d6) - d5.Mul(d4)
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3).Div((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Scale(w)), [3]bool{false, true, true}, [3]fixed.Fixed{0, fixed.One - w, w}
	}
	denom := va + vb + vc
	if denom == 0 {
		return a, [3]bool{true, false, false}, [3]fixed.Fixed{fixed.One, 0, 0}
	}
	v := vb.Div(denom)
	w := vc.Div(denom)
	u := fixed.One - v - w
	return a.Add(ab.Scale(v)).Add(ac.Scale(w)), [3]bool{true, true, true}, [3]fixed.Fixed{u, v, w}
}

// PointSupport is the support mapping of a single point
func PointSupport(p fixed.Vec3) SupportFunc {
	return func(fixed.Vec3) fixed.Vec3 { return p }
}
