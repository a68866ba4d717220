package solver

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// row is one scalar constraint J v = bias between two bodies
type row struct {
	linA, angA, linB, angB fixed.Vec3
	// M^-1 J^T
	mLinA, mAngA, mLinB, mAngB fixed.Vec3

	effMass fixed.Fixed
	bias    fixed.Fixed
	// feedback of the accumulated impulse, s * effMass
	softness fixed.Fixed
	accum    fixed.Fixed
}

// setPoint makes the row constrain the relative velocity of two anchor points along dir
func (r *row) setPoint(rA, rB, dir fixed.Vec3) {
	r.linA = dir.Negate()
	r.angA = rA.Cross(dir).Negate()
	r.linB = dir
	r.angB = rB.Cross(dir)
}

// setAngular makes the row constrain the relative angular velocity around axis
func (r *row) setAngular(axis fixed.Vec3) {
	r.linA, r.linB = fixed.Vec3{}, fixed.Vec3{}
	r.angA = axis.Negate()
	r.angB = axis
}

func (r *row) prepare(a, b *body.RigidBody, softness fixed.Fixed) {
	r.mLinA = r.linA.Scale(a.InvMass)
	r.mAngA = a.WorldInvInertia.MulVec(r.angA)
	r.mLinB = r.linB.Scale(b.InvMass)
	r.mAngB = b.WorldInvInertia.MulVec(r.angB)
	k := r.linA.Dot(r.mLinA) + r.angA.Dot(r.mAngA) + r.linB.Dot(r.mLinB) + r.angB.Dot(r.mAngB)
	if k <= 0 {
		r.effMass, r.softness = 0, 0
		return
	}
	// softness is added to the jacobian mass, not scaled by it
	r.effMass = fixed.One.Div(k + softness)
	r.softness = softness.Mul(r.effMass)
}

func (r *row) velocity(a, b *body.RigidBody) fixed.Fixed {
	return r.linA.Dot(a.LinearVelocity) + r.angA.Dot(a.AngularVelocity) +
		r.linB.Dot(b.LinearVelocity) + r.angB.Dot(b.AngularVelocity)
}

func (r *row) apply(a, b *body.RigidBody, lambda fixed.Fixed) {
	if lambda == 0 {
		return
	}
	a.LinearVelocity = a.LinearVelocity.Add(r.mLinA.Scale(lambda))
	a.AngularVelocity = a.AngularVelocity.Add(r.mAngA.Scale(lambda))
	b.LinearVelocity = b.LinearVelocity.Add(r.mLinB.Scale(lambda))
	b.AngularVelocity = b.AngularVelocity.Add(r.mAngB.Scale(lambda))
}

func (r *row) warmStart(a, b *body.RigidBody) {
	r.apply(a, b, r.accum)
}

// solve applies one clamped impulse and returns its magnitude
func (r *row) solve(a, b *body.RigidBody, lo, hi fixed.Fixed) fixed.Fixed {
	if r.effMass == 0 {
		return 0
	}
	lambda := (r.bias - r.velocity(a, b)).Mul(r.effMass) - r.accum.Mul(r.softness)
	old := r.accum
	r.accum = fixed.Clamp(old+lambda, lo, hi)
	d := r.accum - old
	r.apply(a, b, d)
	return d.Abs()
}

// positionBias turns a position error into a clamped corrective velocity
func positionBias(err, errorReduction, maxCorrective fixed.Fixed) fixed.Fixed {
	return fixed.Clamp(-err.Mul(errorReduction), -maxCorrective, maxCorrective)
}

// directionOr normalizes v, substituting a deterministic perpendicular of fallback when v
// is degenerate
func directionOr(v, fallback fixed.Vec3) fixed.Vec3 {
	n := v.Normalize()
	if n.IsZero() {
		return fixed.Perpendicular(fallback)
	}
	return n
}
