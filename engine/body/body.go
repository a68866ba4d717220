// Package body holds rigid body state and its per tick integration.
package body

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/shape"
)

// ErrUnsupportedShape is returned for shapes that cannot move, such as meshes and terrains
var ErrUnsupportedShape = errors.New("body: shape cannot be attached to a rigid body")

// Desc describes a body to create. A zero Mass makes the body kinematic.
type Desc struct {
	Shape          shape.Shape
	Position       fixed.Vec3
	Orientation    fixed.Quat
	LinearVelocity fixed.Vec3
	Mass           fixed.Fixed
	LinearDamping  fixed.Fixed
	AngularDamping fixed.Fixed
	Friction       fixed.Fixed
	Restitution    fixed.Fixed
	// Group and Mask filter collisions: two bodies collide when each group intersects the other mask
	Group uint32
	Mask  uint32
}

// RigidBody is a simulated body
type RigidBody struct {
	Shape shape.Shape

	Position        fixed.Vec3
	Orientation     fixed.Quat
	LinearVelocity  fixed.Vec3
	AngularVelocity fixed.Vec3

	Mass            fixed.Fixed
	InvMass         fixed.Fixed
	LocalInvInertia fixed.Mat3
	WorldInvInertia fixed.Mat3

	LinearDamping  fixed.Fixed
	AngularDamping fixed.Fixed
	Friction       fixed.Fixed
	Restitution    fixed.Fixed
	Group, Mask    uint32

	// AABB is the world bounds, refreshed by UpdateAABB
	AABB fixed.AABB

	// SleepTicks counts consecutive ticks spent below the sleep velocity
	SleepTicks int
	Sleeping   bool

	dynamic bool
	force   fixed.Vec3
	torque  fixed.Vec3
}

// New creates a body from desc. Meshes and terrains are rejected.
func New(desc Desc) (*RigidBody, error) {
	if desc.Shape == nil {
		return nil, errors.Wrap(ErrUnsupportedShape, "nil shape")
	}
	if desc.Mass < 0 {
		return nil, errors.Errorf("body: negative mass %s", desc.Mass)
	}
	b := &RigidBody{
		Shape:          desc.Shape,
		Position:       desc.Position,
		Orientation:    desc.Orientation,
		LinearVelocity: desc.LinearVelocity,
		LinearDamping:  desc.LinearDamping,
		AngularDamping: desc.AngularDamping,
		Friction:       desc.Friction,
		Restitution:    desc.Restitution,
		Group:          desc.Group,
		Mask:           desc.Mask,
	}
	if b.Orientation == (fixed.Quat{}) {
		b.Orientation = fixed.QuatIdentity
	} else {
		b.Orientation = b.Orientation.Normalize()
	}
	if b.Group == 0 && b.Mask == 0 {
		b.Group, b.Mask = 1, ^uint32(0)
	}

	var inertia fixed.Mat3
	switch s := desc.Shape.(type) {
	case *shape.Compound:
		if desc.Mass > 0 {
			inertia = s.InertiaForMass(desc.Mass)
		}
	case shape.Convex:
		if desc.Mass > 0 {
			inertia = shape.InertiaForMass(s, desc.Mass)
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedShape, "%s", desc.Shape.Kind())
	}
	if desc.Mass > 0 {
		b.dynamic = true
		b.Mass = desc.Mass
		b.InvMass = fixed.One.Div(desc.Mass)
		b.LocalInvInertia = inertia.Inverse()
	} else {
		b.LinearVelocity = fixed.Vec3{}
	}
	b.UpdateWorldInertia()
	b.UpdateAABB()
	return b, nil
}

// IsDynamic is false for kinematic bodies, which have zero inverse mass and inertia
func (b *RigidBody) IsDynamic() bool {
	return b.dynamic
}

// Transform returns the pose
func (b *RigidBody) Transform() shape.Transform {
	return shape.Transform{Position: b.Position, Orientation: b.Orientation}
}

// UpdateWorldInertia rotates the local inverse inertia into world space
func (b *RigidBody) UpdateWorldInertia() {
	if !b.dynamic {
		b.WorldInvInertia = fixed.Mat3{}
		return
	}
	b.WorldInvInertia = b.LocalInvInertia.RotateInertia(fixed.FromQuat(b.Orientation))
}

// UpdateAABB refreshes the world bounds from the pose
func (b *RigidBody) UpdateAABB() {
	b.AABB = shape.WorldAABB(b.Shape, b.Transform())
}

// ApplyForce accumulates a force through the center of mass until the next IntegrateVelocity
func (b *RigidBody) ApplyForce(f fixed.Vec3) {
	b.force = b.force.Add(f)
}

// ApplyTorque accumulates a torque until the next IntegrateVelocity
func (b *RigidBody) ApplyTorque(t fixed.Vec3) {
	b.torque = b.torque.Add(t)
}

// ApplyForceAt accumulates a force applied at a world point
func (b *RigidBody) ApplyForceAt(f, point fixed.Vec3) {
	b.force = b.force.Add(f)
	b.torque = b.torque.Add(point.Sub(b.Position).Cross(f))
}

// ApplyImpulse changes the velocity by an impulse at a world point and wakes the body.
// It does nothing on kinematic bodies.
func (b *RigidBody) ApplyImpulse(impulse, point fixed.Vec3) {
	if !b.dynamic {
		return
	}
	b.Wake()
	b.ApplyLinearImpulse(impulse)
	b.ApplyAngularImpulse(point.Sub(b.Position).Cross(impulse))
}

// ApplyLinearImpulse is the solver side of ApplyImpulse; it does not wake the body
func (b *RigidBody) ApplyLinearImpulse(impulse fixed.Vec3) {
	if !b.dynamic {
		return
	}
	b.LinearVelocity = b.LinearVelocity.Add(impulse.Scale(b.InvMass))
}

// ApplyAngularImpulse is the solver side of ApplyImpulse; it does not wake the body
func (b *RigidBody) ApplyAngularImpulse(impulse fixed.Vec3) {
	if !b.dynamic {
		return
	}
	b.AngularVelocity = b.AngularVelocity.Add(b.WorldInvInertia.MulVec(impulse))
}

// SetVelocity overrides both velocities and wakes the body
func (b *RigidBody) SetVelocity(linear, angular fixed.Vec3) {
	b.LinearVelocity = linear
	b.AngularVelocity = angular
	b.Wake()
}

// VelocityAt returns the velocity of a world point attached to the body
func (b *RigidBody) VelocityAt(point fixed.Vec3) fixed.Vec3 {
	return b.LinearVelocity.Add(b.AngularVelocity.Cross(point.Sub(b.Position)))
}

// IntegrateVelocity applies gravity, accumulated forces and damping, then clears the accumulators
func (b *RigidBody) IntegrateVelocity(gravity fixed.Vec3, dt fixed.Fixed) {
	if !b.dynamic || b.Sleeping {
		b.force, b.torque = fixed.Vec3{}, fixed.Vec3{}
		return
	}
	accel := gravity.Add(b.force.Scale(b.InvMass))
	b.LinearVelocity = b.LinearVelocity.Add(accel.Scale(dt))
	b.AngularVelocity = b.AngularVelocity.Add(b.WorldInvInertia.MulVec(b.torque).Scale(dt))
	b.LinearVelocity = b.LinearVelocity.Scale(dampingFactor(b.LinearDamping, dt))
	b.AngularVelocity = b.AngularVelocity.Scale(dampingFactor(b.AngularDamping, dt))
	b.force, b.torque = fixed.Vec3{}, fixed.Vec3{}
}

func dampingFactor(damping, dt fixed.Fixed) fixed.Fixed {
	if damping <= 0 {
		return fixed.One
	}
	return fixed.Max(fixed.One-damping.Mul(dt), 0)
}

// IntegratePose moves the body by its velocities and renormalizes the orientation
func (b *RigidBody) IntegratePose(dt fixed.Fixed) {
	if b.Sleeping {
		return
	}
	b.Position = b.Position.Add(b.LinearVelocity.Scale(dt))
	if !b.AngularVelocity.IsZero() {
		b.Orientation = b.Orientation.AddScaledAngularVelocity(b.AngularVelocity, dt)
	} else {
		b.Orientation = b.Orientation.Normalize()
	}
	b.UpdateWorldInertia()
	b.UpdateAABB()
}

// UpdateActivity advances the sleep timer. It reports whether the body has been slow for at
// least sleepTicks ticks.
func (b *RigidBody) UpdateActivity(sleepVelocity fixed.Fixed, sleepTicks int) bool {
	if !b.dynamic {
		return true
	}
	limit := sleepVelocity.Mul(sleepVelocity)
	if b.LinearVelocity.LengthSquared() > limit || b.AngularVelocity.LengthSquared() > limit {
		b.SleepTicks = 0
		return false
	}
	if b.SleepTicks < sleepTicks {
		b.SleepTicks++
	}
	return b.SleepTicks >= sleepTicks
}

// Sleep stops the body until it is woken
func (b *RigidBody) Sleep() {
	if !b.dynamic {
		return
	}
	b.Sleeping = true
	b.LinearVelocity = fixed.Vec3{}
	b.AngularVelocity = fixed.Vec3{}
}

// Wake resumes simulation and restarts the sleep timer
func (b *RigidBody) Wake() {
	b.Sleeping = false
	b.SleepTicks = 0
}

// Active reports whether the body takes part in the solve
func (b *RigidBody) Active() bool {
	return b.dynamic && !b.Sleeping
}

// ShouldCollide applies the group/mask filter
func (b *RigidBody) ShouldCollide(o *RigidBody) bool {
	return b.Group&o.Mask != 0 && o.Group&b.Mask != 0
}
