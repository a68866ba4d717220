package narrowphase

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/shape"
)

var tolerance = fixed.FromRatio(1, 1000)

func near(a, b fixed.Fixed) bool {
	return (a - b).Abs() <= tolerance
}

func at(s shape.Shape, p fixed.Vec3) Collidable {
	return Collidable{Shape: s, Transform: shape.Transform{Position: p, Orientation: fixed.QuatIdentity}}
}

func TestSphereSphere(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	s, _ := shape.NewSphere(fixed.One)
	cs, keyed := ts.Collide(at(s, fixed.V3i(0, 0, 0)), at(s, fixed.V3(fixed.FromRatio(3, 2), 0, 0)), nil)
	assert.T(t, !keyed)
	assert.Equal(t, 1, len(cs))
	assert.Equal(t, fixed.UnitX, cs[0].Normal)
	assert.Equal(t, fixed.Half, cs[0].Depth)
	assert.T(t, near(cs[0].Position.X, fixed.FromRatio(3, 4)))

	cs, _ = ts.Collide(at(s, fixed.V3i(0, 0, 0)), at(s, fixed.V3i(3, 0, 0)), nil)
	assert.Equal(t, 0, len(cs))
}

func TestBoxOnBox(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	b, _ := shape.NewBox(fixed.V3i(1, 1, 1))
	top := at(b, fixed.V3(0, fixed.FromRatio(19, 10), 0))
	cs, _ := ts.Collide(at(b, fixed.Vec3{}), top, nil)
	assert.Equal(t, 4, len(cs))
	for _, c := range cs {
		assert.T(t, c.Normal.Y > fixed.FromRatio(999, 1000))
		assert.T(t, near(c.Depth, fixed.FromRatio(1, 10)))
		assert.T(t, near(c.Position.Y, fixed.FromRatio(95, 100)))
	}

	// reversed order flips the normal
	cs, _ = ts.Collide(top, at(b, fixed.Vec3{}), nil)
	assert.Equal(t, 4, len(cs))
	assert.T(t, cs[0].Normal.Y < -fixed.FromRatio(999, 1000))
}

func TestSphereOnBoxSeparated(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 10))
	s, _ := shape.NewSphere(fixed.Half)
	b, _ := shape.NewBox(fixed.V3i(1, 1, 1))
	cs, _ := ts.Collide(at(s, fixed.V3(0, fixed.FromRatio(155, 100), 0)), at(b, fixed.Vec3{}), nil)
	assert.Equal(t, 1, len(cs))
	assert.T(t, near(cs[0].Normal.Y, -fixed.One))
	assert.T(t, near(cs[0].Depth, -fixed.FromRatio(5, 100)))

	cs, _ = ts.Collide(at(s, fixed.V3(0, fixed.Two, 0)), at(b, fixed.Vec3{}), nil)
	assert.Equal(t, 0, len(cs))
}

func flatTerrain(t *testing.T) *shape.Terrain {
	h := [][]fixed.Fixed{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	ter, err := shape.NewTerrain(h, fixed.Two, fixed.Two, shape.IdentityTransform)
	assert.T(t, err == nil)
	return ter
}

func TestSphereOnTerrain(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	s, _ := shape.NewSphere(fixed.Half)
	ter := flatTerrain(t)
	ball := at(s, fixed.V3(fixed.One, fixed.FromRatio(4, 10), fixed.Half))

	cs, keyed := ts.Collide(ball, Collidable{Shape: ter}, nil)
	assert.T(t, keyed)
	assert.Equal(t, 1, len(cs))
	assert.T(t, near(cs[0].Normal.Y, -fixed.One))
	assert.T(t, near(cs[0].Depth, fixed.FromRatio(1, 10)))
	assert.Equal(t, int64(0), cs[0].ID>>triangleShift)

	cs, _ = ts.Collide(Collidable{Shape: ter}, ball, nil)
	assert.Equal(t, 1, len(cs))
	assert.T(t, near(cs[0].Normal.Y, fixed.One))
}

func TestBoxOnTerrainSpansTriangles(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	b, _ := shape.NewBox(fixed.V3(fixed.Half, fixed.Half, fixed.Half))
	ter := flatTerrain(t)
	cs, _ := ts.Collide(at(b, fixed.V3(fixed.Two, fixed.FromRatio(49, 100), fixed.Two)), Collidable{Shape: ter}, nil)
	assert.T(t, len(cs) >= 3 && len(cs) <= MaxContacts)
	for _, c := range cs {
		assert.T(t, near(c.Depth, fixed.FromRatio(1, 100)))
		assert.T(t, near(c.Normal.Y, -fixed.One))
	}
}

func TestOneSidedMeshIgnoresBackside(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	verts := []fixed.Vec3{fixed.V3i(-5, 0, -5), fixed.V3i(-5, 0, 5), fixed.V3i(5, 0, -5), fixed.V3i(5, 0, 5)}
	mesh, err := shape.NewStaticMesh(verts, []int{0, 1, 2, 2, 1, 3}, shape.IdentityTransform, fixed.V3i(1, 1, 1), shape.CounterClockwise, false)
	assert.T(t, err == nil)
	s, _ := shape.NewSphere(fixed.Half)

	cs, _ := ts.Collide(at(s, fixed.V3(0, fixed.FromRatio(4, 10), 0)), Collidable{Shape: mesh}, nil)
	assert.T(t, len(cs) >= 1)
	cs, _ = ts.Collide(at(s, fixed.V3(0, -fixed.FromRatio(4, 10), 0)), Collidable{Shape: mesh}, nil)
	assert.Equal(t, 0, len(cs))
}

func TestSolidMeshInsideContact(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	verts := []fixed.Vec3{
		fixed.V3i(-1, -1, -1), fixed.V3i(1, -1, -1), fixed.V3i(1, 1, -1), fixed.V3i(-1, 1, -1),
		fixed.V3i(-1, -1, 1), fixed.V3i(1, -1, 1), fixed.V3i(1, 1, 1), fixed.V3i(-1, 1, 1),
	}
	idx := []int{0, 2, 1, 0, 3, 2, 4, 5, 6, 4, 6, 7, 0, 1, 5, 0, 5, 4, 3, 7, 6, 3, 6, 2, 0, 4, 7, 0, 7, 3, 1, 2, 6, 1, 6, 5}
	mesh, err := shape.NewStaticMesh(verts, idx, shape.Transform{Position: fixed.V3i(10, 0, 0)}, fixed.V3i(2, 2, 2), shape.CounterClockwise, true)
	assert.T(t, err == nil)
	s, _ := shape.NewSphere(fixed.FromRatio(1, 4))
	ball := at(s, fixed.V3(fixed.FromRatio(105, 10), fixed.FromRatio(2, 10), fixed.FromRatio(1, 10)))

	cs, _ := ts.Collide(ball, Collidable{Shape: mesh}, nil)
	assert.Equal(t, 1, len(cs))
	assert.Equal(t, insideID, cs[0].ID)
	assert.Equal(t, -fixed.One, cs[0].Normal.X)
	assert.T(t, near(cs[0].Depth, fixed.FromRatio(175, 100)))

	mesh.Solid = false
	cs, _ = ts.Collide(ball, Collidable{Shape: mesh}, nil)
	assert.Equal(t, 0, len(cs))
}

func TestCompoundKeys(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	s, _ := shape.NewSphere(fixed.Half)
	comp, _ := shape.NewCompound([]shape.CompoundChild{
		{Shape: s, Local: shape.Transform{Position: fixed.V3i(-1, 0, 0)}},
		{Shape: s, Local: shape.Transform{Position: fixed.V3i(1, 0, 0)}},
	})
	ter := flatTerrain(t)
	cs, keyed := ts.Collide(at(comp, fixed.V3(fixed.Two, fixed.FromRatio(45, 100), fixed.Half)), Collidable{Shape: ter}, nil)
	assert.T(t, keyed)
	assert.Equal(t, 2, len(cs))
	assert.T(t, cs[0].ID != cs[1].ID)
	assert.Equal(t, int64(1), cs[0].ID>>compoundShiftA)
	assert.Equal(t, int64(2), cs[1].ID>>compoundShiftA)
}

func contactAt(x, y, z int64) Contact {
	return Contact{Position: fixed.V3i(x, y, z)}
}

func TestManifoldSlotHeuristic(t *testing.T) {
	var m Manifold
	m.Update([]Contact{contactAt(0, 0, 0), contactAt(1, 0, 0)}, false)
	assert.Equal(t, 2, m.Count)
	assert.Equal(t, int64(0), m.Contacts[0].ID)
	assert.Equal(t, int64(1), m.Contacts[1].ID)
	m.Contacts[0].NormalImpulse = fixed.FromInt(5)
	m.Contacts[1].NormalImpulse = fixed.FromInt(7)

	small := fixed.FromRatio(1, 100)
	moved := []Contact{
		{Position: fixed.V3(fixed.One+small, 0, 0)},
		{Position: fixed.V3(small, 0, 0)},
		contactAt(0, 0, 1),
	}
	m.Update(moved, false)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, int64(1), m.Contacts[0].ID)
	assert.Equal(t, fixed.FromInt(7), m.Contacts[0].NormalImpulse)
	assert.Equal(t, int64(0), m.Contacts[1].ID)
	assert.Equal(t, fixed.FromInt(5), m.Contacts[1].NormalImpulse)
	assert.Equal(t, int64(2), m.Contacts[2].ID)
	assert.Equal(t, fixed.Zero, m.Contacts[2].NormalImpulse)

	// vanished points lose their impulses
	m.Update([]Contact{contactAt(5, 0, 0)}, false)
	assert.Equal(t, 1, m.Count)
	assert.Equal(t, int64(0), m.Contacts[0].ID)
	assert.Equal(t, fixed.Zero, m.Contacts[0].NormalImpulse)
}

func TestManifoldKeyed(t *testing.T) {
	var m Manifold
	m.Update([]Contact{{ID: 17}, {ID: 42}}, true)
	m.Contacts[1].NormalImpulse = fixed.Two
	m.Update([]Contact{{ID: 42, Position: fixed.V3i(9, 9, 9)}, {ID: 5}}, true)
	assert.Equal(t, fixed.Two, m.Contacts[0].NormalImpulse)
	assert.Equal(t, fixed.Zero, m.Contacts[1].NormalImpulse)
}

func TestReduceKeepsDeepest(t *testing.T) {
	var cs []Contact
	for i := int64(0); i < 8; i++ {
		c := contactAt(i%3, 0, i/3)
		c.Depth = fixed.FromRatio(i, 100)
		cs = append(cs, c)
	}
	cs[5].Depth = fixed.One
	out := Reduce(cs)
	assert.Equal(t, MaxContacts, len(out))
	assert.Equal(t, fixed.One, out[0].Depth)
}

func TestRayCast(t *testing.T) {
	b, _ := shape.NewBox(fixed.V3i(1, 2, 3))
	c := Collidable{Shape: b, Transform: shape.Transform{Orientation: fixed.FromAxisAngle(fixed.UnitY, fixed.HalfPi)}}
	hit, ok := RayCast(c, fixed.V3i(-5, 0, 0), fixed.UnitX, fixed.FromInt(10))
	assert.T(t, ok)
	assert.T(t, near(hit.T, fixed.Two))
	assert.T(t, near(hit.Normal.X, -fixed.One))

	_, ok = RayCast(c, fixed.V3i(-5, 3, 0), fixed.UnitX, fixed.FromInt(10))
	assert.T(t, !ok)

	hit, ok = RayCast(Collidable{Shape: flatTerrain(t)}, fixed.V3(fixed.One, fixed.Two, fixed.Half), fixed.UnitY.Negate(), fixed.FromInt(10))
	assert.T(t, ok)
	assert.T(t, near(hit.T, fixed.Two))
}

func TestConvexCast(t *testing.T) {
	ts := NewTester(fixed.FromRatio(1, 100))
	s, _ := shape.NewSphere(fixed.Half)
	b, _ := shape.NewBox(fixed.V3i(1, 1, 1))
	from := shape.Transform{Position: fixed.V3i(-5, 0, 0), Orientation: fixed.QuatIdentity}

	hit, ok := ts.ConvexCast(s, from, fixed.V3i(10, 0, 0), at(b, fixed.Vec3{}))
	assert.T(t, ok)
	assert.T(t, near(hit.T, fixed.FromRatio(35, 100)))
	assert.T(t, near(hit.Normal.X, -fixed.One))

	_, ok = ts.ConvexCast(s, from, fixed.V3i(0, 10, 0), at(b, fixed.Vec3{}))
	assert.T(t, !ok)

	_, ok = ts.ConvexCast(s, from, fixed.V3i(2, 0, 0), at(b, fixed.Vec3{}))
	assert.T(t, !ok)

	down := shape.Transform{Position: fixed.V3(fixed.One, fixed.FromInt(3), fixed.Half), Orientation: fixed.QuatIdentity}
	hit, ok = ts.ConvexCast(s, down, fixed.V3i(0, -10, 0), Collidable{Shape: flatTerrain(t)})
	assert.T(t, ok)
	assert.T(t, near(hit.T, fixed.FromRatio(25, 100)))
}
