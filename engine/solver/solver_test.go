package solver

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/narrowphase"
	"github.com/xiaonanln/gwphys/engine/shape"
)

var (
	dt      = fixed.FromRatio(1, 60)
	gravity = fixed.V3i(0, -10, 0)
)

func near(a, b, tol fixed.Fixed) bool {
	return (a - b).Abs() <= tol
}

func newBody(t *testing.T, s shape.Shape, pos fixed.Vec3, mass fixed.Fixed) *body.RigidBody {
	b, err := body.New(body.Desc{Shape: s, Position: pos, Mass: mass, Friction: fixed.Half})
	assert.T(t, err == nil)
	return b
}

func newSphereBody(t *testing.T, radius fixed.Fixed, pos fixed.Vec3, mass fixed.Fixed) *body.RigidBody {
	s, err := shape.NewSphere(radius)
	assert.T(t, err == nil)
	return newBody(t, s, pos, mass)
}

func newBoxBody(t *testing.T, half, pos fixed.Vec3, mass fixed.Fixed) *body.RigidBody {
	s, err := shape.NewBox(half)
	assert.T(t, err == nil)
	return newBody(t, s, pos, mass)
}

func step(s *Solver, g fixed.Vec3, bodies ...*body.RigidBody) {
	for _, b := range bodies {
		b.IntegrateVelocity(g, dt)
	}
	s.Prepare(dt)
	s.Solve()
	for _, b := range bodies {
		b.IntegratePose(dt)
	}
}

func TestSpringCoefficients(t *testing.T) {
	erp, soft := SpringSettings{Stiffness: fixed.FromInt(30000), Damping: fixed.FromInt(100)}.Coefficients(dt)
	assert.T(t, near(erp, fixed.FromInt(50), fixed.FromRatio(1, 1000)), erp)
	assert.T(t, near(soft, fixed.FromRatio(1, 10), fixed.FromRatio(1, 1000)), soft)

	erp, soft = SpringSettings{}.Coefficients(dt)
	assert.Equal(t, fixed.Zero, erp)
	assert.Equal(t, fixed.Zero, soft)
}

func TestSolverOrder(t *testing.T) {
	a := newSphereBody(t, fixed.One, fixed.Vec3{}, 0)
	b := newSphereBody(t, fixed.One, fixed.V3i(3, 0, 0), fixed.One)
	s := New(DefaultSettings())
	j1 := NewDistanceJoint(a, b, a.Position, b.Position)
	j2 := NewBallSocketJoint(a, b, a.Position)
	j3 := NewAngularMotor(a, b, fixed.UnitY, fixed.One, fixed.One)
	s1, s2, s3 := s.Add(j1), s.Add(j2), s.Add(j3)
	assert.T(t, s1 < s2 && s2 < s3)
	assert.T(t, s.Remove(s2))
	assert.T(t, !s.Remove(s2))

	var kinds []Kind
	s.Constraints(func(seq uint64, c Constraint) {
		kinds = append(kinds, c.Kind())
	})
	assert.Equal(t, []Kind{KindDistanceJoint, KindAngularMotor}, kinds)
	assert.Equal(t, "AngularMotor", KindAngularMotor.String())
}

func TestInactiveConstraintsSkipped(t *testing.T) {
	a := newSphereBody(t, fixed.One, fixed.Vec3{}, 0)
	b := newSphereBody(t, fixed.One, fixed.V3i(3, 0, 0), fixed.One)
	s := New(DefaultSettings())
	s.Add(NewDistanceJoint(a, b, a.Position, b.Position))
	s.Prepare(dt)
	assert.Equal(t, 1, s.ActiveCount())

	b.Sleep()
	s.Prepare(dt)
	assert.Equal(t, 0, s.ActiveCount())
}

func TestBallSocketPendulum(t *testing.T) {
	anchor := newSphereBody(t, fixed.FromRatio(1, 10), fixed.Vec3{}, 0)
	bob := newSphereBody(t, fixed.FromRatio(1, 10), fixed.V3i(1, 0, 0), fixed.One)
	s := New(DefaultSettings())
	s.Add(NewBallSocketJoint(anchor, bob, anchor.Position))
	for i := 0; i < 120; i++ {
		step(s, gravity, anchor, bob)
		assert.T(t, near(bob.Position.Length(), fixed.One, fixed.FromRatio(1, 20)), i, bob.Position)
	}
	assert.T(t, bob.Position.Y < 0)
	assert.Equal(t, fixed.Vec3{}, anchor.Position)
}

// softness adds to the jacobian mass: two unit masses along one axis give K = 2
func TestRowSoftness(t *testing.T) {
	a := newSphereBody(t, fixed.One, fixed.Vec3{}, fixed.One)
	b := newSphereBody(t, fixed.One, fixed.V3i(3, 0, 0), fixed.One)
	var r row
	r.setPoint(fixed.Vec3{}, fixed.Vec3{}, fixed.UnitX)
	r.prepare(a, b, fixed.Half)
	tol := fixed.FromRatio(1, 1000000)
	assert.T(t, near(r.effMass, fixed.FromRatio(2, 5), tol), r.effMass)
	assert.T(t, near(r.softness, fixed.FromRatio(1, 5), tol), r.softness)

	r.prepare(a, b, 0)
	assert.T(t, near(r.effMass, fixed.Half, tol), r.effMass)
	assert.Equal(t, fixed.Zero, r.softness)
}

func TestDistanceJointDegenerate(t *testing.T) {
	a := newSphereBody(t, fixed.One, fixed.Vec3{}, fixed.One)
	b := newSphereBody(t, fixed.One, fixed.Vec3{}, fixed.One)
	j := NewDistanceJoint(a, b, fixed.Vec3{}, fixed.Vec3{})
	s := New(DefaultSettings())
	s.Add(j)
	step(s, fixed.Vec3{}, a, b)
	assert.Equal(t, fixed.Zero, j.Distance)
}

func TestDistanceLimit(t *testing.T) {
	a := newSphereBody(t, fixed.FromRatio(1, 10), fixed.Vec3{}, 0)
	b := newSphereBody(t, fixed.FromRatio(1, 10), fixed.V3i(1, 0, 0), fixed.One)
	b.LinearVelocity = fixed.V3i(3, 0, 0)
	l := NewDistanceLimit(a, b, a.Position, b.Position, fixed.Half, fixed.Two)
	s := New(DefaultSettings())
	s.Add(l)
	for i := 0; i < 120; i++ {
		step(s, fixed.Vec3{}, a, b)
	}
	assert.T(t, b.Position.X <= fixed.Two+fixed.FromRatio(1, 10), b.Position)
	assert.T(t, b.Position.X >= fixed.FromRatio(4, 10), b.Position)
}

func TestAngleSide(t *testing.T) {
	lo, hi := -fixed.Half, fixed.Half
	side, _ := angleSide(fixed.FromRatio(1, 4), fixed.FromRatio(1, 4), lo, hi)
	assert.Equal(t, limitInactive, side)

	side, err := angleSide(fixed.One, fixed.FromRatio(84, 100), lo, hi)
	assert.Equal(t, limitUpper, side)
	assert.Equal(t, fixed.Half, err)

	side, err = angleSide(-fixed.One, -fixed.FromRatio(84, 100), lo, hi)
	assert.Equal(t, limitLower, side)
	assert.Equal(t, -fixed.Half, err)

	// past pi the angle wraps negative but the sine keeps the upper side
	side, _ = angleSide(-fixed.Pi+fixed.FromRatio(1, 100), fixed.FromRatio(1, 100), lo, hi)
	assert.Equal(t, limitUpper, side)

	lo, hi = side.bounds()
	assert.Equal(t, fixed.Zero, hi)
	assert.Equal(t, fixed.MinValue, lo)
}

func TestRevoluteLimitStopsSpin(t *testing.T) {
	a := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.Vec3{}, 0)
	b := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.V3i(2, 0, 0), fixed.One)
	b.AngularVelocity = fixed.V3i(0, 3, 0)
	l := NewRevoluteLimit(a, b, fixed.UnitY, fixed.UnitX, -fixed.Half, fixed.Half)
	s := New(DefaultSettings())
	s.Add(l)
	for i := 0; i < 90; i++ {
		step(s, fixed.Vec3{}, a, b)
		angle, _ := l.Angle()
		assert.T(t, angle <= fixed.Half+fixed.FromRatio(1, 10), i, angle)
	}
}

func TestTwistLimit(t *testing.T) {
	a := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.Vec3{}, 0)
	b := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.V3i(0, 2, 0), fixed.One)
	b.AngularVelocity = fixed.V3i(0, -3, 0)
	l := NewTwistLimit(a, b, fixed.UnitY, fixed.Half)
	angle, _, _ := l.Twist()
	assert.T(t, near(angle, 0, fixed.FromRatio(1, 1000)))
	s := New(DefaultSettings())
	s.Add(l)
	for i := 0; i < 90; i++ {
		step(s, fixed.Vec3{}, a, b)
		angle, _, _ = l.Twist()
		assert.T(t, angle >= -fixed.Half-fixed.FromRatio(1, 10), i, angle)
	}
}

func TestRevoluteAngularJointKeepsAxis(t *testing.T) {
	a := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.Vec3{}, 0)
	b := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.V3i(2, 0, 0), fixed.One)
	b.AngularVelocity = fixed.V3i(1, 2, 0)
	j := NewRevoluteAngularJoint(a, b, fixed.UnitY)
	s := New(DefaultSettings())
	s.Add(j)
	for i := 0; i < 60; i++ {
		step(s, fixed.Vec3{}, a, b)
	}
	axis := b.Orientation.Rotate(j.LocalAxisB)
	assert.T(t, axis.Y > fixed.FromRatio(99, 100), axis)
	assert.T(t, b.AngularVelocity.Y > fixed.One, b.AngularVelocity)
}

func TestPointOnLineJoint(t *testing.T) {
	a := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.Vec3{}, 0)
	b := newSphereBody(t, fixed.FromRatio(1, 4), fixed.V3i(1, 0, 0), fixed.One)
	b.LinearVelocity = fixed.V3i(2, 3, 0)
	s := New(DefaultSettings())
	s.Add(NewPointOnLineJoint(a, b, fixed.Vec3{}, fixed.UnitX, b.Position))
	for i := 0; i < 30; i++ {
		step(s, fixed.Vec3{}, a, b)
	}
	assert.T(t, b.Position.X > fixed.FromRatio(19, 10), b.Position)
	assert.T(t, near(b.Position.Y, 0, fixed.FromRatio(1, 20)), b.Position)
	assert.T(t, near(b.Position.Z, 0, fixed.FromRatio(1, 20)), b.Position)
}

func TestMotors(t *testing.T) {
	a := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.Vec3{}, 0)
	b := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.V3i(2, 0, 0), fixed.One)
	s := New(DefaultSettings())
	s.Add(NewAngularMotor(a, b, fixed.UnitY, fixed.Two, fixed.FromInt(1000)))
	s.Add(NewLinearAxisMotor(a, b, a.Position, b.Position, fixed.UnitZ, fixed.One, fixed.FromInt(1000)))
	for i := 0; i < 10; i++ {
		step(s, fixed.Vec3{}, a, b)
	}
	assert.T(t, near(b.AngularVelocity.Y, fixed.Two, fixed.FromRatio(1, 100)), b.AngularVelocity)
	assert.T(t, near(b.LinearVelocity.Z, fixed.One, fixed.FromRatio(1, 100)), b.LinearVelocity)

	// a weak motor cannot reach its target in one tick
	c := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.V3i(4, 0, 0), fixed.One)
	weak := New(DefaultSettings())
	weak.Add(NewAngularMotor(a, c, fixed.UnitY, fixed.FromInt(100), fixed.One))
	step(weak, fixed.Vec3{}, a, c)
	assert.T(t, c.AngularVelocity.Y < fixed.One, c.AngularVelocity)
	assert.T(t, c.AngularVelocity.Y > 0)
}

// collide refreshes the manifold between two bodies
func collide(ts *narrowphase.Tester, m *narrowphase.Manifold, a, b *body.RigidBody) {
	cs, keyed := ts.Collide(
		narrowphase.Collidable{Shape: a.Shape, Transform: a.Transform()},
		narrowphase.Collidable{Shape: b.Shape, Transform: b.Transform()}, nil)
	m.Update(cs, keyed)
}

func TestSphereRestsOnBox(t *testing.T) {
	ground := newBoxBody(t, fixed.V3i(5, 1, 5), fixed.Vec3{}, 0)
	ball := newSphereBody(t, fixed.Half, fixed.V3i(0, 3, 0), fixed.One)
	ts := narrowphase.NewTester(fixed.FromRatio(1, 4))
	var m narrowphase.Manifold
	settings := DefaultSettings()
	s := New(settings)
	s.Add(NewContactManifoldConstraint(ground, ball, &m, &s.Settings))
	for i := 0; i < 240; i++ {
		collide(ts, &m, ground, ball)
		step(s, gravity, ground, ball)
		assert.T(t, ball.Position.Y > fixed.FromRatio(14, 10), i, ball.Position)
	}
	want := fixed.FromRatio(3, 2)
	assert.T(t, near(ball.Position.Y, want, fixed.FromRatio(2, 1000)), ball.Position)
	assert.T(t, near(ball.LinearVelocity.Y, 0, fixed.FromRatio(1, 100)), ball.LinearVelocity)
	assert.Equal(t, 1, m.Count)
	assert.T(t, m.Contacts[0].NormalImpulse > 0)
}

func TestFrictionStopsSliding(t *testing.T) {
	ground := newBoxBody(t, fixed.V3i(10, 1, 10), fixed.Vec3{}, 0)
	crate := newBoxBody(t, fixed.V3(fixed.Half, fixed.Half, fixed.Half), fixed.V3(0, fixed.FromRatio(151, 100), 0), fixed.One)
	crate.LinearVelocity = fixed.V3i(2, 0, 0)
	ts := narrowphase.NewTester(fixed.FromRatio(1, 10))
	var m narrowphase.Manifold
	s := New(DefaultSettings())
	mc := NewContactManifoldConstraint(ground, crate, &m, &s.Settings)
	assert.Equal(t, fixed.Half, mc.Friction)
	s.Add(mc)
	for i := 0; i < 120; i++ {
		collide(ts, &m, ground, crate)
		step(s, gravity, ground, crate)
	}
	assert.Equal(t, 4, m.Count)
	assert.T(t, near(crate.LinearVelocity.X, 0, fixed.FromRatio(1, 100)), crate.LinearVelocity)
	// deceleration is mu * g, so the crate slides about v^2 / (2 mu g) = 0.4
	assert.T(t, crate.Position.X > fixed.FromRatio(3, 10) && crate.Position.X < fixed.FromRatio(6, 10), crate.Position)
	assert.T(t, mc.NormalImpulse() > 0)
}

func TestRestitutionBounces(t *testing.T) {
	ground := newBoxBody(t, fixed.V3i(5, 1, 5), fixed.Vec3{}, 0)
	ball := newSphereBody(t, fixed.Half, fixed.V3(0, fixed.FromRatio(3, 2), 0), fixed.One)
	ball.Restitution = fixed.FromRatio(8, 10)
	ball.LinearVelocity = fixed.V3i(0, -5, 0)
	ts := narrowphase.NewTester(fixed.FromRatio(1, 4))
	var m narrowphase.Manifold
	s := New(DefaultSettings())
	s.Add(NewContactManifoldConstraint(ground, ball, &m, &s.Settings))
	collide(ts, &m, ground, ball)
	step(s, fixed.Vec3{}, ground, ball)
	assert.T(t, near(ball.LinearVelocity.Y, fixed.FromInt(4), fixed.FromRatio(1, 10)), ball.LinearVelocity)
}
