package narrowphase

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gjk"
	"github.com/xiaonanln/gwphys/engine/shape"
)

var (
	castTolerance = fixed.FromRatio(1, 10000)
	castMaxSteps  = 32
)

// RayCast intersects a world ray with a collidable. The hit normal is in world space.
func RayCast(c Collidable, origin, dir fixed.Vec3, maxT fixed.Fixed) (shape.RayHit, bool) {
	switch s := c.Shape.(type) {
	case shape.TriangleSource:
		return s.RayCast(origin, dir, maxT)
	case *shape.Compound:
		lo := c.Transform.ApplyInverse(origin)
		ld := c.Transform.Orientation.InverseRotate(dir)
		hit, ok := s.RayCastLocal(lo, ld, maxT)
		if ok {
			hit.Normal = c.Transform.Orientation.Rotate(hit.Normal)
		}
		return hit, ok
	case shape.Convex:
		lo := c.Transform.ApplyInverse(origin)
		ld := c.Transform.Orientation.InverseRotate(dir)
		hit, ok := s.RayCastLocal(lo, ld, maxT)
		if ok {
			hit.Normal = c.Transform.Orientation.Rotate(hit.Normal)
		}
		return hit, ok
	}
	return shape.RayHit{}, false
}

// CastHit is the result of a convex sweep
type CastHit struct {
	// T is the fraction of the sweep at first contact, in [0, 1]
	T fixed.Fixed
	// Normal points from the target toward the swept shape
	Normal   fixed.Vec3
	Position fixed.Vec3
}

// ConvexCast sweeps a convex from its transform along sweep and returns the first contact
// with target, by conservative advancement over the GJK distance.
func (ts *Tester) ConvexCast(c shape.Convex, from shape.Transform, sweep fixed.Vec3, target Collidable) (CastHit, bool) {
	switch s := target.Shape.(type) {
	case shape.TriangleSource:
		lo := shape.WorldAABB(c, from)
		hi := shape.WorldAABB(c, shape.Transform{Position: from.Position.Add(sweep), Orientation: from.Orientation})
		ts.tris = s.OverlappingTriangles(lo.Merge(hi), ts.tris[:0])
		best, found := CastHit{T: fixed.MaxValue}, false
		for _, i := range ts.tris {
			tri := s.TriangleAt(i)
			// one sided triangles cannot be hit from behind
			if tri.Sidedness != shape.DoubleSided && sweep.Dot(tri.Normal()) >= 0 {
				continue
			}
			if hit, ok := ts.castConvex(c, from, sweep, &tri, shape.IdentityTransform); ok && hit.T < best.T {
				best, found = hit, true
			}
		}
		return best, found
	case *shape.Compound:
		best, found := CastHit{T: fixed.MaxValue}, false
		for _, ch := range s.Children {
			if hit, ok := ts.castConvex(c, from, sweep, ch.Shape, target.Transform.Compose(ch.Local)); ok && hit.T < best.T {
				best, found = hit, true
			}
		}
		return best, found
	case shape.Convex:
		return ts.castConvex(c, from, sweep, s, target.Transform)
	}
	return CastHit{}, false
}

func (ts *Tester) castConvex(a shape.Convex, from shape.Transform, sweep fixed.Vec3, b shape.Convex, tb shape.Transform) (CastHit, bool) {
	supB := supportOf(b, tb)
	margins := a.Margin() + b.Margin()
	t := fixed.Zero
	pose := from
	normal := sweep.Negate().Normalize()
	for step := 0; step < castMaxSteps; step++ {
		pose.Position = from.Position.Add(sweep.Scale(t))
		res := gjk.Distance(supportOf(a, pose), supB, pose.Position.Sub(tb.Position), &ts.simplex)
		if res.Intersecting || res.Distance == 0 {
			return CastHit{T: t, Normal: normal, Position: pose.Position}, true
		}
		n := res.PointB.Sub(res.PointA).DivScalar(res.Distance)
		normal = n.Negate()
		gap := res.Distance - margins
		if gap <= castTolerance {
			return CastHit{T: t, Normal: normal, Position: res.PointB.Sub(n.Scale(b.Margin()))}, true
		}
		closing := sweep.Dot(n)
		if closing <= 0 {
			return CastHit{}, false
		}
		t += gap.Div(closing)
		if t > fixed.One {
			return CastHit{}, false
		}
	}
	return CastHit{}, false
}
