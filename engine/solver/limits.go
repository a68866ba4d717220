package solver

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// limitSide is the bound a limit currently pushes against
type limitSide int

const (
	limitInactive limitSide = iota
	limitLower
	limitUpper
)

// bounds returns the accumulated impulse range of a one sided row
func (s limitSide) bounds() (lo, hi fixed.Fixed) {
	if s == limitLower {
		return 0, fixed.MaxValue
	}
	return fixed.MinValue, 0
}

// angleSide picks the violated side of [min, max] from the raw sine of the measured angle
func angleSide(angle, sin, min, max fixed.Fixed) (limitSide, fixed.Fixed) {
	if angle >= min && angle <= max {
		return limitInactive, 0
	}
	if sin >= 0 {
		return limitUpper, angle - max
	}
	return limitLower, angle - min
}

// RevoluteLimit bounds the rotation of B around a hinge axis of A to [Min, Max]
type RevoluteLimit struct {
	jointBase
	LocalAxisA    fixed.Vec3
	LocalMeasureA fixed.Vec3
	LocalMeasureB fixed.Vec3
	Min, Max      fixed.Fixed

	side limitSide
	row  row
}

// NewRevoluteLimit measures the angle around a world axis from a world reference vector
// perpendicular to it. The current pose is angle zero.
func NewRevoluteLimit(a, b *body.RigidBody, axis, measure fixed.Vec3, min, max fixed.Fixed) *RevoluteLimit {
	return &RevoluteLimit{
		jointBase:     newJointBase(a, b),
		LocalAxisA:    localDir(a, axis),
		LocalMeasureA: localDir(a, measure),
		LocalMeasureB: localDir(b, measure),
		Min:           min,
		Max:           max,
	}
}

func (l *RevoluteLimit) Kind() Kind { return KindRevoluteLimit }

// Angle returns the current hinge angle and its raw sine
func (l *RevoluteLimit) Angle() (angle, sin fixed.Fixed) {
	axis := l.A.Orientation.Rotate(l.LocalAxisA)
	xA := l.A.Orientation.Rotate(l.LocalMeasureA)
	xB := l.B.Orientation.Rotate(l.LocalMeasureB)
	xB = xB.Sub(axis.Scale(xB.Dot(axis)))
	sin = xA.Cross(xB).Dot(axis)
	return fixed.Atan2(sin, xA.Dot(xB)), sin
}

func (l *RevoluteLimit) Update(dt fixed.Fixed) {
	l.updateSpring(dt)
	angle, sin := l.Angle()
	var err fixed.Fixed
	side := l.side
	l.side, err = angleSide(angle, sin, l.Min, l.Max)
	if l.side != side {
		l.row.accum = 0
	}
	if l.side == limitInactive {
		return
	}
	l.row.setAngular(l.A.Orientation.Rotate(l.LocalAxisA))
	l.row.prepare(l.A, l.B, l.softness)
	l.row.bias = l.bias(err)
}

func (l *RevoluteLimit) ExclusiveUpdate() {
	if l.side != limitInactive {
		l.row.warmStart(l.A, l.B)
	}
}

func (l *RevoluteLimit) SolveIteration() fixed.Fixed {
	if l.side == limitInactive {
		return 0
	}
	lo, hi := l.side.bounds()
	return l.row.solve(l.A, l.B, lo, hi)
}

// TwistLimit bounds the twist of B around its axis relative to the axis of A, ignoring swing
type TwistLimit struct {
	jointBase
	LocalAxisA    fixed.Vec3
	LocalAxisB    fixed.Vec3
	LocalMeasureA fixed.Vec3
	LocalMeasureB fixed.Vec3
	MaxAngle      fixed.Fixed

	side limitSide
	row  row
}

// NewTwistLimit limits twist around a world axis shared by both bodies in the current pose
func NewTwistLimit(a, b *body.RigidBody, axis fixed.Vec3, maxAngle fixed.Fixed) *TwistLimit {
	measure := fixed.Perpendicular(axis)
	return &TwistLimit{
		jointBase:     newJointBase(a, b),
		LocalAxisA:    localDir(a, axis),
		LocalAxisB:    localDir(b, axis),
		LocalMeasureA: localDir(a, measure),
		LocalMeasureB: localDir(b, measure),
		MaxAngle:      maxAngle,
	}
}

func (l *TwistLimit) Kind() Kind { return KindTwistLimit }

// Twist returns the twist angle, its raw sine and the world twist axis
func (l *TwistLimit) Twist() (angle, sin fixed.Fixed, axis fixed.Vec3) {
	axisA := l.A.Orientation.Rotate(l.LocalAxisA)
	axisB := l.B.Orientation.Rotate(l.LocalAxisB)
	xA := l.A.Orientation.Rotate(l.LocalMeasureA)
	// remove the swing by rotating B's measure onto A's axis
	xB := fixed.RotationBetween(axisB, axisA).Rotate(l.B.Orientation.Rotate(l.LocalMeasureB))
	sin = xA.Cross(xB).Dot(axisA)
	axis = directionOr(axisA.Add(axisB), axisA)
	return fixed.Atan2(sin, xA.Dot(xB)), sin, axis
}

func (l *TwistLimit) Update(dt fixed.Fixed) {
	l.updateSpring(dt)
	angle, sin, axis := l.Twist()
	var err fixed.Fixed
	side := l.side
	l.side, err = angleSide(angle, sin, -l.MaxAngle, l.MaxAngle)
	if l.side != side {
		l.row.accum = 0
	}
	if l.side == limitInactive {
		return
	}
	l.row.setAngular(axis)
	l.row.prepare(l.A, l.B, l.softness)
	l.row.bias = l.bias(err)
}

func (l *TwistLimit) ExclusiveUpdate() {
	if l.side != limitInactive {
		l.row.warmStart(l.A, l.B)
	}
}

func (l *TwistLimit) SolveIteration() fixed.Fixed {
	if l.side == limitInactive {
		return 0
	}
	lo, hi := l.side.bounds()
	return l.row.solve(l.A, l.B, lo, hi)
}

// DistanceLimit keeps the distance between two anchors within [Min, Max]
type DistanceLimit struct {
	jointBase
	LocalAnchorA fixed.Vec3
	LocalAnchorB fixed.Vec3
	Min, Max     fixed.Fixed

	side limitSide
	row  row
}

// NewDistanceLimit limits the distance between two world anchors
func NewDistanceLimit(a, b *body.RigidBody, anchorA, anchorB fixed.Vec3, min, max fixed.Fixed) *DistanceLimit {
	return &DistanceLimit{
		jointBase:    newJointBase(a, b),
		LocalAnchorA: localPoint(a, anchorA),
		LocalAnchorB: localPoint(b, anchorB),
		Min:          min,
		Max:          max,
	}
}

func (l *DistanceLimit) Kind() Kind { return KindDistanceLimit }

func (l *DistanceLimit) Update(dt fixed.Fixed) {
	l.updateSpring(dt)
	rA, rB, gap := l.anchors(l.LocalAnchorA, l.LocalAnchorB)
	dist := gap.Length()
	side := l.side
	var err fixed.Fixed
	switch {
	case dist > l.Max:
		l.side, err = limitUpper, dist-l.Max
	case dist < l.Min:
		l.side, err = limitLower, dist-l.Min
	default:
		l.side = limitInactive
	}
	if l.side != side {
		l.row.accum = 0
	}
	if l.side == limitInactive {
		return
	}
	l.row.setPoint(rA, rB, directionOr(gap, l.B.Position.Sub(l.A.Position)))
	l.row.prepare(l.A, l.B, l.softness)
	l.row.bias = l.bias(err)
}

func (l *DistanceLimit) ExclusiveUpdate() {
	if l.side != limitInactive {
		l.row.warmStart(l.A, l.B)
	}
}

func (l *DistanceLimit) SolveIteration() fixed.Fixed {
	if l.side == limitInactive {
		return 0
	}
	lo, hi := l.side.bounds()
	return l.row.solve(l.A, l.B, lo, hi)
}
