package body

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/shape"
)

var dt = fixed.FromRatio(1, 60)

func newBox(t *testing.T, mass fixed.Fixed) *RigidBody {
	box, err := shape.NewBox(fixed.V3i(1, 1, 1))
	assert.T(t, err == nil)
	b, err := New(Desc{Shape: box, Mass: mass, Position: fixed.V3i(0, 10, 0)})
	assert.T(t, err == nil)
	return b
}

func TestNewRejectsStaticShapes(t *testing.T) {
	ter, _ := shape.NewTerrain([][]fixed.Fixed{{0, 0}, {0, 0}}, fixed.One, fixed.One, shape.IdentityTransform)
	_, err := New(Desc{Shape: ter, Mass: fixed.One})
	assert.Equal(t, ErrUnsupportedShape, errors.Cause(err))
	_, err = New(Desc{})
	assert.Equal(t, ErrUnsupportedShape, errors.Cause(err))
}

func TestKinematicIgnoresImpulse(t *testing.T) {
	b := newBox(t, 0)
	assert.T(t, !b.IsDynamic())
	assert.Equal(t, fixed.Zero, b.InvMass)
	b.ApplyImpulse(fixed.V3i(10, 0, 0), b.Position.Add(fixed.UnitY))
	assert.Equal(t, fixed.Vec3{}, b.LinearVelocity)
	assert.Equal(t, fixed.Vec3{}, b.AngularVelocity)

	b.IntegrateVelocity(fixed.V3i(0, -10, 0), dt)
	assert.Equal(t, fixed.Vec3{}, b.LinearVelocity)

	// kinematic bodies still follow their velocity
	b.LinearVelocity = fixed.V3i(6, 0, 0)
	b.IntegratePose(fixed.FromRatio(1, 2))
	assert.Equal(t, fixed.V3i(3, 10, 0), b.Position)
}

func TestIntegrate(t *testing.T) {
	b := newBox(t, fixed.Two)
	assert.T(t, b.IsDynamic())
	assert.Equal(t, fixed.Half, b.InvMass)

	gravity := fixed.V3i(0, -6, 0)
	b.IntegrateVelocity(gravity, fixed.FromRatio(1, 2))
	assert.Equal(t, fixed.V3i(0, -3, 0), b.LinearVelocity)
	b.IntegratePose(fixed.FromRatio(1, 2))
	assert.Equal(t, fixed.FromRatio(17, 2), b.Position.Y)

	b.ApplyForce(fixed.V3i(4, 0, 0))
	b.IntegrateVelocity(fixed.Vec3{}, fixed.One)
	assert.Equal(t, fixed.Two, b.LinearVelocity.X)
	// forces are cleared once integrated
	b.IntegrateVelocity(fixed.Vec3{}, fixed.One)
	assert.Equal(t, fixed.Two, b.LinearVelocity.X)
}

func TestOrientationStaysNormalized(t *testing.T) {
	b := newBox(t, fixed.One)
	b.AngularVelocity = fixed.V3(fixed.FromInt(3), fixed.One, -fixed.Two)
	for i := 0; i < 600; i++ {
		b.IntegratePose(dt)
	}
	l := b.Orientation.LengthSquared()
	assert.T(t, (l-fixed.One).Abs() < fixed.FromRatio(1, 10000))
	assert.T(t, b.AABB.Contains(b.Position))
}

func TestApplyImpulseWakes(t *testing.T) {
	b := newBox(t, fixed.One)
	for i := 0; i < 10; i++ {
		b.UpdateActivity(fixed.FromRatio(1, 10), 5)
	}
	assert.Equal(t, 5, b.SleepTicks)
	b.Sleep()
	assert.T(t, !b.Active())

	b.IntegrateVelocity(fixed.V3i(0, -10, 0), dt)
	assert.Equal(t, fixed.Vec3{}, b.LinearVelocity)

	b.ApplyImpulse(fixed.V3i(0, 1, 0), b.Position)
	assert.T(t, b.Active())
	assert.Equal(t, 0, b.SleepTicks)
	assert.Equal(t, fixed.One, b.LinearVelocity.Y)
	assert.T(t, !b.UpdateActivity(fixed.FromRatio(1, 10), 5))
}

func TestOffCenterImpulseSpins(t *testing.T) {
	b := newBox(t, fixed.One)
	b.ApplyImpulse(fixed.V3i(1, 0, 0), b.Position.Add(fixed.UnitY))
	assert.T(t, b.AngularVelocity.Z < 0)
	assert.Equal(t, fixed.Zero, b.AngularVelocity.X)
}

func TestShouldCollide(t *testing.T) {
	a, b := newBox(t, fixed.One), newBox(t, fixed.One)
	assert.T(t, a.ShouldCollide(b))
	a.Group, b.Mask = 2, 1
	assert.T(t, !a.ShouldCollide(b))
	assert.T(t, !b.ShouldCollide(a))
}
