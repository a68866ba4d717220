// Package narrowphase generates contact points for broad phase pairs and answers ray and
// sweep queries against single shapes.
package narrowphase

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gjk"
	"github.com/xiaonanln/gwphys/engine/shape"
)

const (
	compoundShiftA = 48
	compoundShiftB = 32
	triangleShift  = 2
	// insideID tags the contact made by the solid mesh inside test
	insideID int64 = 1 << 62
)

// Collidable is one side of a test: a shape posed in world space. Meshes and terrains are
// already in world space and ignore the transform.
type Collidable struct {
	Shape     shape.Shape
	Transform shape.Transform
}

// Tester runs pair tests. It owns the scratch buffers reused across pairs and is not safe
// for concurrent use.
type Tester struct {
	// ContactMargin is the separation under which speculative contacts are still produced
	ContactMargin fixed.Fixed

	simplex gjk.Simplex
	epa     gjk.Scratch
	featA   []fixed.Vec3
	featB   []fixed.Vec3
	clipA   []fixed.Vec3
	clipB   []fixed.Vec3
	tris    []int
}

// NewTester creates a tester
func NewTester(contactMargin fixed.Fixed) *Tester {
	return &Tester{ContactMargin: contactMargin}
}

// Collide appends the contacts between a and b to out, with normals from a to b. keyed
// reports whether the contact ids are stable feature keys; otherwise the manifold assigns
// slot ids.
func (ts *Tester) Collide(a, b Collidable, out []Contact) (contacts []Contact, keyed bool) {
	ka, kb := a.Shape.Kind(), b.Shape.Kind()
	switch {
	case isStatic(ka) && isStatic(kb):
		return out, true
	case isStatic(ka):
		start := len(out)
		out, keyed = ts.Collide(b, a, out)
		flip(out[start:])
		return out, keyed
	case ka == shape.KindCompound:
		return ts.collideCompoundA(a, b, out), true
	case kb == shape.KindCompound:
		return ts.collideCompoundB(a, b, out), true
	case isStatic(kb):
		return ts.collideTriangles(a.Shape.(shape.Convex), a.Transform, b.Shape.(shape.TriangleSource), out), true
	}

	ca, cb := a.Shape.(shape.Convex), b.Shape.(shape.Convex)
	if sa, ok := ca.(*shape.Sphere); ok {
		if sb, ok := cb.(*shape.Sphere); ok {
			return ts.collideSpheres(sa, a.Transform, sb, b.Transform, out), false
		}
	}
	return ts.collideConvex(ca, a.Transform, cb, b.Transform, out), false
}

func isStatic(k shape.Kind) bool {
	return k == shape.KindStaticMesh || k == shape.KindTerrain
}

func flip(cs []Contact) {
	for i := range cs {
		cs[i].Normal = cs[i].Normal.Negate()
	}
}

func (ts *Tester) collideCompoundA(a, b Collidable, out []Contact) []Contact {
	comp := a.Shape.(*shape.Compound)
	for i, ch := range comp.Children {
		start := len(out)
		out, _ = ts.Collide(Collidable{Shape: ch.Shape, Transform: a.Transform.Compose(ch.Local)}, b, out)
		for k := start; k < len(out); k++ {
			out[k].ID |= int64(i+1) << compoundShiftA
		}
	}
	return out
}

func (ts *Tester) collideCompoundB(a, b Collidable, out []Contact) []Contact {
	comp := b.Shape.(*shape.Compound)
	for i, ch := range comp.Children {
		start := len(out)
		out, _ = ts.Collide(a, Collidable{Shape: ch.Shape, Transform: b.Transform.Compose(ch.Local)}, out)
		for k := start; k < len(out); k++ {
			out[k].ID |= int64(i+1) << compoundShiftB
		}
	}
	return out
}

// collideTriangles tests a convex against the triangles of a mesh or terrain whose bounds
// overlap the convex. Triangle contacts are keyed by triangle index.
func (ts *Tester) collideTriangles(c shape.Convex, t shape.Transform, src shape.TriangleSource, out []Contact) []Contact {
	box := shape.WorldAABB(c, t).Expand(ts.ContactMargin)
	ts.tris = src.OverlappingTriangles(box, ts.tris[:0])
	start := len(out)
	for _, i := range ts.tris {
		tri := src.TriangleAt(i)
		before := len(out)
		out = ts.collideTriangle(c, t, &tri, out)
		for k := before; k < len(out); k++ {
			out[k].ID = int64(i)<<triangleShift | out[k].ID&(1<<triangleShift-1)
		}
	}
	if len(out) == start {
		if mesh, ok := src.(*shape.StaticMesh); ok && mesh.Solid && mesh.IsPointInside(t.Position) {
			out = ts.insideContact(c, t, mesh, out)
		}
	}
	if len(out)-start > MaxContacts {
		out = append(out[:start], Reduce(out[start:])...)
	}
	return out
}

// collideTriangle applies sidedness: one sided triangles only push along their face normal
// and ignore shapes whose center is behind them
func (ts *Tester) collideTriangle(c shape.Convex, t shape.Transform, tri *shape.Triangle, out []Contact) []Contact {
	if tri.Sidedness == shape.DoubleSided {
		return ts.collideConvex(c, t, tri, shape.IdentityTransform, out)
	}
	face := tri.Normal()
	if t.Position.Sub(tri.A).Dot(face) < 0 {
		return out
	}
	n, depth, pa, pb, ok := ts.penetration(c, t, tri, shape.IdentityTransform)
	if !ok {
		return out
	}
	if depth > 0 || !tri.Accepts(n) {
		n = face.Negate()
		supA := supportOf(c, t)
		depth = gjk.ProjectionOverlap(supA, supportOf(tri, shape.IdentityTransform), n) + c.Margin()
		if depth < -ts.ContactMargin {
			return out
		}
		pa = supA(n).Add(n.Scale(c.Margin()))
		pb = pa.Sub(n.Scale(depth))
	}
	return ts.buildManifold(c, t, tri, shape.IdentityTransform, n, depth, pa, pb, out)
}

// insideContact pushes a convex that sits fully inside a solid mesh out through the
// nearest wall found along the six axes
func (ts *Tester) insideContact(c shape.Convex, t shape.Transform, mesh *shape.StaticMesh, out []Contact) []Contact {
	box := mesh.LocalAABB()
	maxT := box.Max.Sub(box.Min).Length().MulInt(2)
	dirs := [6]fixed.Vec3{fixed.UnitX, fixed.UnitX.Negate(), fixed.UnitY, fixed.UnitY.Negate(), fixed.UnitZ, fixed.UnitZ.Negate()}
	best := shape.RayHit{T: fixed.MaxValue}
	var bestDir fixed.Vec3
	found := false
	for _, d := range dirs {
		if hit, ok := rayThroughMesh(mesh, t.Position, d, maxT); ok && hit.T < best.T {
			best, bestDir, found = hit, d, true
		}
	}
	if !found {
		return out
	}
	n := bestDir.Negate()
	extent := shape.SupportWithMargin(c, t.Orientation.InverseRotate(n))
	depth := best.T + t.Orientation.Rotate(extent).Dot(n)
	return append(out, Contact{
		Position: t.Position.Add(bestDir.Scale(best.T)),
		Normal:   n,
		Depth:    depth,
		ID:       insideID,
	})
}

// rayThroughMesh finds the nearest wall regardless of the triangle sidedness
func rayThroughMesh(mesh *shape.StaticMesh, origin, dir fixed.Vec3, maxT fixed.Fixed) (shape.RayHit, bool) {
	best := shape.RayHit{T: fixed.MaxValue, Triangle: -1}
	found := false
	for i := 0; i < mesh.TriangleCount(); i++ {
		tri := mesh.TriangleAt(i)
		tri.Sidedness = shape.DoubleSided
		if hit, ok := tri.RayCastLocal(origin, dir, maxT); ok && hit.T < best.T {
			hit.Triangle = i
			best, found = hit, true
		}
	}
	return best, found
}
