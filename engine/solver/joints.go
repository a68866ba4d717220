package solver

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// jointBase holds what every joint, limit and motor shares
type jointBase struct {
	A, B *body.RigidBody

	Spring                SpringSettings
	MaxCorrectiveVelocity fixed.Fixed

	errorReduction fixed.Fixed
	softness       fixed.Fixed
}

func newJointBase(a, b *body.RigidBody) jointBase {
	return jointBase{A: a, B: b, Spring: DefaultJointSpring, MaxCorrectiveVelocity: fixed.Two}
}

func (j *jointBase) Bodies() (a, b *body.RigidBody) {
	return j.A, j.B
}

func (j *jointBase) updateSpring(dt fixed.Fixed) {
	j.errorReduction, j.softness = j.Spring.Coefficients(dt)
}

func (j *jointBase) bias(err fixed.Fixed) fixed.Fixed {
	return positionBias(err, j.errorReduction, j.MaxCorrectiveVelocity)
}

// anchors returns the world offsets of two body-local anchors and the gap between them
func (j *jointBase) anchors(localA, localB fixed.Vec3) (rA, rB, gap fixed.Vec3) {
	rA = j.A.Orientation.Rotate(localA)
	rB = j.B.Orientation.Rotate(localB)
	gap = j.B.Position.Add(rB).Sub(j.A.Position.Add(rA))
	return
}

func localPoint(b *body.RigidBody, world fixed.Vec3) fixed.Vec3 {
	return b.Orientation.InverseRotate(world.Sub(b.Position))
}

func localDir(b *body.RigidBody, world fixed.Vec3) fixed.Vec3 {
	return b.Orientation.InverseRotate(world).Normalize()
}

var worldAxes = [3]fixed.Vec3{fixed.UnitX, fixed.UnitY, fixed.UnitZ}

// BallSocketJoint pins an anchor of B to an anchor of A
type BallSocketJoint struct {
	jointBase
	LocalAnchorA fixed.Vec3
	LocalAnchorB fixed.Vec3

	rows [3]row
}

// NewBallSocketJoint joins a and b at a world anchor
func NewBallSocketJoint(a, b *body.RigidBody, anchor fixed.Vec3) *BallSocketJoint {
	return &BallSocketJoint{
		jointBase:    newJointBase(a, b),
		LocalAnchorA: localPoint(a, anchor),
		LocalAnchorB: localPoint(b, anchor),
	}
}

func (j *BallSocketJoint) Kind() Kind { return KindBallSocketJoint }

func (j *BallSocketJoint) Update(dt fixed.Fixed) {
	j.updateSpring(dt)
	rA, rB, gap := j.anchors(j.LocalAnchorA, j.LocalAnchorB)
	for i := range j.rows {
		r := &j.rows[i]
		r.setPoint(rA, rB, worldAxes[i])
		r.prepare(j.A, j.B, j.softness)
		r.bias = j.bias(gap.Get(i))
	}
}

func (j *BallSocketJoint) ExclusiveUpdate() {
	for i := range j.rows {
		j.rows[i].warmStart(j.A, j.B)
	}
}

func (j *BallSocketJoint) SolveIteration() fixed.Fixed {
	var d fixed.Fixed
	for i := range j.rows {
		d += j.rows[i].solve(j.A, j.B, fixed.MinValue, fixed.MaxValue)
	}
	return d
}

// DistanceJoint keeps two anchors at a fixed distance
type DistanceJoint struct {
	jointBase
	LocalAnchorA fixed.Vec3
	LocalAnchorB fixed.Vec3
	Distance     fixed.Fixed

	row row
}

// NewDistanceJoint keeps the current distance between two world anchors
func NewDistanceJoint(a, b *body.RigidBody, anchorA, anchorB fixed.Vec3) *DistanceJoint {
	return &DistanceJoint{
		jointBase:    newJointBase(a, b),
		LocalAnchorA: localPoint(a, anchorA),
		LocalAnchorB: localPoint(b, anchorB),
		Distance:     fixed.Distance(anchorA, anchorB),
	}
}

func (j *DistanceJoint) Kind() Kind { return KindDistanceJoint }

func (j *DistanceJoint) Update(dt fixed.Fixed) {
	j.updateSpring(dt)
	rA, rB, gap := j.anchors(j.LocalAnchorA, j.LocalAnchorB)
	dir := directionOr(gap, j.B.Position.Sub(j.A.Position))
	j.row.setPoint(rA, rB, dir)
	j.row.prepare(j.A, j.B, j.softness)
	j.row.bias = j.bias(gap.Length() - j.Distance)
}

func (j *DistanceJoint) ExclusiveUpdate() {
	j.row.warmStart(j.A, j.B)
}

func (j *DistanceJoint) SolveIteration() fixed.Fixed {
	return j.row.solve(j.A, j.B, fixed.MinValue, fixed.MaxValue)
}

// PointOnLineJoint keeps an anchor of B on a line fixed to A
type PointOnLineJoint struct {
	jointBase
	LocalLineOrigin    fixed.Vec3
	LocalLineDirection fixed.Vec3
	LocalAnchorB       fixed.Vec3

	rows [2]row
}

// NewPointOnLineJoint constrains anchor (world) of b to the world line through origin
// along dir, attached to a
func NewPointOnLineJoint(a, b *body.RigidBody, origin, dir, anchor fixed.Vec3) *PointOnLineJoint {
	return &PointOnLineJoint{
		jointBase:          newJointBase(a, b),
		LocalLineOrigin:    localPoint(a, origin),
		LocalLineDirection: localDir(a, dir),
		LocalAnchorB:       localPoint(b, anchor),
	}
}

func (j *PointOnLineJoint) Kind() Kind { return KindPointOnLineJoint }

func (j *PointOnLineJoint) Update(dt fixed.Fixed) {
	j.updateSpring(dt)
	_, rB, gap := j.anchors(j.LocalLineOrigin, j.LocalAnchorB)
	// the constrained point on A is the one coincident with B's anchor
	rA := j.B.Position.Add(rB).Sub(j.A.Position)
	axis := j.A.Orientation.Rotate(j.LocalLineDirection)
	t1, t2 := fixed.TangentBasis(axis)
	for i, t := range [2]fixed.Vec3{t1, t2} {
		r := &j.rows[i]
		r.setPoint(rA, rB, t)
		r.prepare(j.A, j.B, j.softness)
		r.bias = j.bias(gap.Dot(t))
	}
}

func (j *PointOnLineJoint) ExclusiveUpdate() {
	for i := range j.rows {
		j.rows[i].warmStart(j.A, j.B)
	}
}

func (j *PointOnLineJoint) SolveIteration() fixed.Fixed {
	var d fixed.Fixed
	for i := range j.rows {
		d += j.rows[i].solve(j.A, j.B, fixed.MinValue, fixed.MaxValue)
	}
	return d
}

// RevoluteAngularJoint keeps a hinge axis of B aligned with the one of A, leaving rotation
// around it free
type RevoluteAngularJoint struct {
	jointBase
	LocalAxisA fixed.Vec3
	LocalAxisB fixed.Vec3

	rows [2]row
}

// NewRevoluteAngularJoint aligns both bodies on a world hinge axis
func NewRevoluteAngularJoint(a, b *body.RigidBody, axis fixed.Vec3) *RevoluteAngularJoint {
	return &RevoluteAngularJoint{
		jointBase:  newJointBase(a, b),
		LocalAxisA: localDir(a, axis),
		LocalAxisB: localDir(b, axis),
	}
}

func (j *RevoluteAngularJoint) Kind() Kind { return KindRevoluteAngularJoint }

func (j *RevoluteAngularJoint) Update(dt fixed.Fixed) {
	j.updateSpring(dt)
	axisA := j.A.Orientation.Rotate(j.LocalAxisA)
	axisB := j.B.Orientation.Rotate(j.LocalAxisB)
	err := axisA.Cross(axisB)
	t1, t2 := fixed.TangentBasis(axisA)
	for i, t := range [2]fixed.Vec3{t1, t2} {
		r := &j.rows[i]
		r.setAngular(t)
		r.prepare(j.A, j.B, j.softness)
		r.bias = j.bias(err.Dot(t))
	}
}

func (j *RevoluteAngularJoint) ExclusiveUpdate() {
	for i := range j.rows {
		j.rows[i].warmStart(j.A, j.B)
	}
}

func (j *RevoluteAngularJoint) SolveIteration() fixed.Fixed {
	var d fixed.Fixed
	for i := range j.rows {
		d += j.rows[i].solve(j.A, j.B, fixed.MinValue, fixed.MaxValue)
	}
	return d
}
