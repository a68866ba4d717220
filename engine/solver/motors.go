package solver

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// AngularMotor drives the relative angular velocity around an axis of A toward a target
type AngularMotor struct {
	jointBase
	LocalAxisA     fixed.Vec3
	TargetVelocity fixed.Fixed
	// MaxForce bounds the torque; zero disables the motor
	MaxForce fixed.Fixed

	maxImpulse fixed.Fixed
	row        row
}

// NewAngularMotor creates a motor around a world axis
func NewAngularMotor(a, b *body.RigidBody, axis fixed.Vec3, targetVelocity, maxForce fixed.Fixed) *AngularMotor {
	return &AngularMotor{
		jointBase:      newJointBase(a, b),
		LocalAxisA:     localDir(a, axis),
		TargetVelocity: targetVelocity,
		MaxForce:       maxForce,
	}
}

func (m *AngularMotor) Kind() Kind { return KindAngularMotor }

func (m *AngularMotor) Update(dt fixed.Fixed) {
	m.maxImpulse = m.MaxForce.Mul(dt)
	m.row.setAngular(m.A.Orientation.Rotate(m.LocalAxisA))
	m.row.prepare(m.A, m.B, 0)
	m.row.bias = m.TargetVelocity
	m.row.accum = fixed.Clamp(m.row.accum, -m.maxImpulse, m.maxImpulse)
}

func (m *AngularMotor) ExclusiveUpdate() {
	m.row.warmStart(m.A, m.B)
}

func (m *AngularMotor) SolveIteration() fixed.Fixed {
	return m.row.solve(m.A, m.B, -m.maxImpulse, m.maxImpulse)
}

// LinearAxisMotor drives the relative velocity of two anchors along an axis of A
type LinearAxisMotor struct {
	jointBase
	LocalAnchorA   fixed.Vec3
	LocalAnchorB   fixed.Vec3
	LocalAxisA     fixed.Vec3
	TargetVelocity fixed.Fixed
	MaxForce       fixed.Fixed

	maxImpulse fixed.Fixed
	row        row
}

// NewLinearAxisMotor creates a motor between two world anchors along a world axis
func NewLinearAxisMotor(a, b *body.RigidBody, anchorA, anchorB, axis fixed.Vec3, targetVelocity, maxForce fixed.Fixed) *LinearAxisMotor {
	return &LinearAxisMotor{
		jointBase:      newJointBase(a, b),
		LocalAnchorA:   localPoint(a, anchorA),
		LocalAnchorB:   localPoint(b, anchorB),
		LocalAxisA:     localDir(a, axis),
		TargetVelocity: targetVelocity,
		MaxForce:       maxForce,
	}
}

func (m *LinearAxisMotor) Kind() Kind { return KindLinearAxisMotor }

func (m *LinearAxisMotor) Update(dt fixed.Fixed) {
	m.maxImpulse = m.MaxForce.Mul(dt)
	rA, rB, _ := m.anchors(m.LocalAnchorA, m.LocalAnchorB)
	m.row.setPoint(rA, rB, m.A.Orientation.Rotate(m.LocalAxisA))
	m.row.prepare(m.A, m.B, 0)
	m.row.bias = m.TargetVelocity
	m.row.accum = fixed.Clamp(m.row.accum, -m.maxImpulse, m.maxImpulse)
}

func (m *LinearAxisMotor) ExclusiveUpdate() {
	m.row.warmStart(m.A, m.B)
}

func (m *LinearAxisMotor) SolveIteration() fixed.Fixed {
	return m.row.solve(m.A, m.B, -m.maxImpulse, m.maxImpulse)
}
