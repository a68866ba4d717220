package narrowphase

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gjk"
	"github.com/xiaonanln/gwphys/engine/shape"
)

// edgeParallelCosine decides when two edges are treated as parallel
var edgeParallelCosine = fixed.FromRatio(95, 100)

func supportOf(c shape.Convex, t shape.Transform) gjk.SupportFunc {
	return func(dir fixed.Vec3) fixed.Vec3 {
		return shape.WorldSupport(c, t, dir)
	}
}

// collideSpheres is the closed form sphere-sphere test
func (ts *Tester) collideSpheres(a *shape.Sphere, ta shape.Transform, b *shape.Sphere, tb shape.Transform, out []Contact) []Contact {
	d := tb.Position.Sub(ta.Position)
	n, dist := d.NormalizeLen()
	if dist == 0 {
		n = fixed.UnitY
	}
	sep := dist - a.Radius - b.Radius
	if sep > ts.ContactMargin {
		return out
	}
	pa := ta.Position.Add(n.Scale(a.Radius))
	pb := tb.Position.Sub(n.Scale(b.Radius))
	return append(out, Contact{
		Position: pa.Add(pb).DivScalar(fixed.Two),
		Normal:   n,
		Depth:    -sep,
		ID:       0,
	})
}

// collideConvex finds the contact normal with GJK (separated) or EPA (overlapping) on the
// shape cores and builds up to MaxContacts points by clipping the two extreme features.
// ids of the returned points are their index in the clipped output.
func (ts *Tester) collideConvex(a shape.Convex, ta shape.Transform, b shape.Convex, tb shape.Transform, out []Contact) []Contact {
	normal, depth, pa, pb, ok := ts.penetration(a, ta, b, tb)
	if !ok {
		return out
	}
	return ts.buildManifold(a, ta, b, tb, normal, depth, pa, pb, out)
}

// penetration returns the unit normal from A to B, the depth including margins and the
// witness points on both surfaces. ok is false when the shapes are further apart than the
// contact margin.
func (ts *Tester) penetration(a shape.Convex, ta shape.Transform, b shape.Convex, tb shape.Transform) (n fixed.Vec3, depth fixed.Fixed, pa, pb fixed.Vec3, ok bool) {
	supA, supB := supportOf(a, ta), supportOf(b, tb)
	mA, mB := a.Margin(), b.Margin()
	initial := ta.Position.Sub(tb.Position)
	res := gjk.Distance(supA, supB, initial, &ts.simplex)
	if !res.Intersecting && res.Distance > 0 {
		sep := res.Distance - mA - mB
		if sep > ts.ContactMargin {
			return
		}
		n = res.PointB.Sub(res.PointA).DivScalar(res.Distance)
		pa = res.PointA.Add(n.Scale(mA))
		pb = res.PointB.Sub(n.Scale(mB))
		return n, -sep, pa, pb, true
	}

	if pen, epaOK := gjk.EPA(supA, supB, &ts.simplex, &ts.epa); epaOK && !pen.Normal.IsZero() {
		n = pen.Normal
		depth = pen.Depth + mA + mB
		pa = pen.PointA.Add(n.Scale(mA))
		pb = pen.PointB.Sub(n.Scale(mB))
		return n, depth, pa, pb, true
	}

	n = tb.Position.Sub(ta.Position).Normalize()
	if n.IsZero() {
		n = fixed.UnitY
	}
	depth = gjk.ProjectionOverlap(supA, supB, n) + mA + mB
	if depth < -ts.ContactMargin {
		return
	}
	pa = supA(n).Add(n.Scale(mA))
	pb = supB(n.Negate()).Sub(n.Scale(mB))
	return n, depth, pa, pb, true
}

// buildManifold clips the incident feature against the side planes of the reference
// feature. The reference is the feature with more vertices; A wins ties.
func (ts *Tester) buildManifold(a shape.Convex, ta shape.Transform, b shape.Convex, tb shape.Transform, n fixed.Vec3, depth fixed.Fixed, pa, pb fixed.Vec3, out []Contact) []Contact {
	ts.featA = shape.WorldFeature(a, ta, n, ts.featA[:0])
	ts.featB = shape.WorldFeature(b, tb, n.Negate(), ts.featB[:0])

	ref, inc, refN := ts.featA, ts.featB, n
	if len(ts.featB) > len(ts.featA) {
		ref, inc, refN = ts.featB, ts.featA, n.Negate()
	}

	single := func() []Contact {
		return append(out, Contact{Position: pa.Add(pb).DivScalar(fixed.Two), Normal: n, Depth: depth, ID: 0})
	}
	if len(ref) < 2 {
		return single()
	}
	if len(ref) == 2 && len(inc) == 2 {
		e1 := ref[1].Sub(ref[0]).Normalize()
		e2 := inc[1].Sub(inc[0]).Normalize()
		if e1.Dot(e2).Abs() < edgeParallelCosine {
			return single()
		}
	}

	clipped := ts.clipToReference(ref, inc, refN)
	start := len(out)
	var id int64
	for _, p := range clipped {
		s := p.Sub(ref[0]).Dot(refN)
		if s > ts.ContactMargin {
			continue
		}
		out = append(out, Contact{
			Position: p.Sub(refN.Scale(s.DivInt(2))),
			Normal:   n,
			Depth:    -s,
			ID:       id,
		})
		id++
	}
	if len(out) == start {
		return single()
	}
	return append(out[:start], Reduce(out[start:])...)
}

// clipToReference clips the incident points against the planes bounding the reference
// face (or the two end planes of a reference edge)
func (ts *Tester) clipToReference(ref, inc []fixed.Vec3, refN fixed.Vec3) []fixed.Vec3 {
	poly := append(ts.clipA[:0], inc...)
	tmp := ts.clipB[:0]

	clip := func(origin, planeN fixed.Vec3) {
		tmp = tmp[:0]
		switch len(poly) {
		case 0:
		case 1:
			if poly[0].Sub(origin).Dot(planeN) <= 0 {
				tmp = append(tmp, poly[0])
			}
		case 2:
			tmp = clipSegment(poly[0], poly[1], origin, planeN, tmp)
		default:
			tmp = clipPolygon(poly, origin, planeN, tmp)
		}
		poly, tmp = tmp, poly
	}

	if len(ref) == 2 {
		e := ref[1].Sub(ref[0])
		clip(ref[1], e)
		clip(ref[0], e.Negate())
	} else {
		var center fixed.Vec3
		for _, r := range ref {
			center = center.Add(r)
		}
		center = center.DivScalar(fixed.FromInt(int64(len(ref))))
		for i := range ref {
			r0, r1 := ref[i], ref[(i+1)%len(ref)]
			side := refN.Cross(r1.Sub(r0))
			if side.Dot(center.Sub(r0)) > 0 {
				side = side.Negate()
			}
			clip(r0, side)
		}
	}
	ts.clipA, ts.clipB = poly, tmp
	return poly
}

// clipSegment keeps the part of segment p-q with (x-origin).n <= 0
func clipSegment(p, q, origin, n fixed.Vec3, out []fixed.Vec3) []fixed.Vec3 {
	dp, dq := p.Sub(origin).Dot(n), q.Sub(origin).Dot(n)
	if dp <= 0 {
		out = append(out, p)
	}
	if dp < 0 && dq > 0 || dp > 0 && dq < 0 {
		out = append(out, lerpAt(p, q, dp, dq))
	}
	if dq <= 0 {
		out = append(out, q)
	}
	return out
}

// clipPolygon is one Sutherland-Hodgman pass
func clipPolygon(poly []fixed.Vec3, origin, n fixed.Vec3, out []fixed.Vec3) []fixed.Vec3 {
	prev := poly[len(poly)-1]
	dPrev := prev.Sub(origin).Dot(n)
	for _, cur := range poly {
		dCur := cur.Sub(origin).Dot(n)
		if dCur <= 0 {
			if dPrev > 0 {
				out = append(out, lerpAt(prev, cur, dPrev, dCur))
			}
			out = append(out, cur)
		} else if dPrev < 0 {
			out = append(out, lerpAt(prev, cur, dPrev, dCur))
		}
		prev, dPrev = cur, dCur
	}
	return out
}

func lerpAt(p, q fixed.Vec3, dp, dq fixed.Fixed) fixed.Vec3 {
	t := dp.Div(dp - dq)
	return p.Add(q.Sub(p).Scale(t))
}
