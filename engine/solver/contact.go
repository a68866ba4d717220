package solver

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/narrowphase"
)

// PenetrationConstraint keeps one contact point from closing further than its depth allows.
// Speculative contacts (negative depth) let the bodies approach until they touch.
type PenetrationConstraint struct {
	A, B        *body.RigidBody
	Contact     *narrowphase.Contact
	Restitution fixed.Fixed
	settings    *Settings

	row row
}

// NewPenetrationConstraint creates a constraint for one contact. Impulses are read from and
// written back to the contact.
func NewPenetrationConstraint(a, b *body.RigidBody, c *narrowphase.Contact, restitution fixed.Fixed, settings *Settings) *PenetrationConstraint {
	return &PenetrationConstraint{A: a, B: b, Contact: c, Restitution: restitution, settings: settings}
}

func (p *PenetrationConstraint) Kind() Kind { return KindPenetrationConstraint }

func (p *PenetrationConstraint) Bodies() (a, b *body.RigidBody) { return p.A, p.B }

func (p *PenetrationConstraint) Update(dt fixed.Fixed) {
	c := p.Contact
	rA := c.Position.Sub(p.A.Position)
	rB := c.Position.Sub(p.B.Position)
	p.row.setPoint(rA, rB, c.Normal)
	erp, soft := p.settings.ContactSpring.Coefficients(dt)
	if c.Depth <= 0 {
		// separated contacts only limit the approach velocity and stay rigid
		soft = 0
	}
	p.row.prepare(p.A, p.B, soft)

	var bias fixed.Fixed
	switch {
	case c.Depth > p.settings.AllowedPenetration:
		bias = fixed.Min((c.Depth - p.settings.AllowedPenetration).Mul(erp), p.settings.MaxCorrectiveVelocity)
	case c.Depth < 0 && dt > 0:
		bias = c.Depth.Div(dt)
	}
	if p.Restitution > 0 {
		if vn := p.row.velocity(p.A, p.B); vn < -p.settings.BounceThreshold {
			bias = fixed.Max(bias, -vn.Mul(p.Restitution))
		}
	}
	p.row.bias = bias
	p.row.accum = c.NormalImpulse
}

func (p *PenetrationConstraint) ExclusiveUpdate() {
	p.row.warmStart(p.A, p.B)
}

func (p *PenetrationConstraint) SolveIteration() fixed.Fixed {
	d := p.row.solve(p.A, p.B, 0, fixed.MaxValue)
	p.Contact.NormalImpulse = p.row.accum
	return d
}

// NormalImpulse returns the impulse accumulated this tick
func (p *PenetrationConstraint) NormalImpulse() fixed.Fixed {
	return p.row.accum
}

// FrictionConstraint opposes sliding at one contact, bounded by the friction coefficient
// times the normal impulse of its penetration constraint
type FrictionConstraint struct {
	A, B        *body.RigidBody
	Contact     *narrowphase.Contact
	Coefficient fixed.Fixed
	Normal      *PenetrationConstraint

	rows [2]row
}

// NewFrictionConstraint creates the friction of the contact handled by normal
func NewFrictionConstraint(normal *PenetrationConstraint, coefficient fixed.Fixed) *FrictionConstraint {
	return &FrictionConstraint{A: normal.A, B: normal.B, Contact: normal.Contact, Coefficient: coefficient, Normal: normal}
}

func (f *FrictionConstraint) Kind() Kind { return KindFrictionConstraint }

func (f *FrictionConstraint) Bodies() (a, b *body.RigidBody) { return f.A, f.B }

func (f *FrictionConstraint) Update(dt fixed.Fixed) {
	c := f.Contact
	rA := c.Position.Sub(f.A.Position)
	rB := c.Position.Sub(f.B.Position)
	t1, t2 := fixed.TangentBasis(c.Normal)
	for i, t := range [2]fixed.Vec3{t1, t2} {
		r := &f.rows[i]
		r.setPoint(rA, rB, t)
		r.prepare(f.A, f.B, 0)
		r.bias = 0
		r.accum = c.TangentImpulse[i]
	}
}

func (f *FrictionConstraint) ExclusiveUpdate() {
	for i := range f.rows {
		f.rows[i].warmStart(f.A, f.B)
	}
}

func (f *FrictionConstraint) SolveIteration() fixed.Fixed {
	bound := f.Coefficient.Mul(f.Normal.NormalImpulse())
	var d fixed.Fixed
	for i := range f.rows {
		d += f.rows[i].solve(f.A, f.B, -bound, bound)
		f.Contact.TangentImpulse[i] = f.rows[i].accum
	}
	return d
}

// ContactManifoldConstraint owns the penetration and friction constraints of every point in
// a manifold. The manifold is shared with the narrow phase, so accumulated impulses survive
// into the next tick for warm starting.
type ContactManifoldConstraint struct {
	A, B     *body.RigidBody
	Manifold *narrowphase.Manifold

	Friction    fixed.Fixed
	Restitution fixed.Fixed

	penetration [narrowphase.MaxContacts]PenetrationConstraint
	friction    [narrowphase.MaxContacts]FrictionConstraint
	count       int
}

// NewContactManifoldConstraint combines the materials of both bodies: friction is averaged and
// restitution takes the larger value
func NewContactManifoldConstraint(a, b *body.RigidBody, m *narrowphase.Manifold, settings *Settings) *ContactManifoldConstraint {
	c := &ContactManifoldConstraint{
		A:           a,
		B:           b,
		Manifold:    m,
		Friction:    (a.Friction + b.Friction).DivInt(2),
		Restitution: fixed.Max(a.Restitution, b.Restitution),
	}
	for i := range c.penetration {
		p := &c.penetration[i]
		p.A, p.B, p.settings = a, b, settings
		p.Contact = &m.Contacts[i]
		c.friction[i] = FrictionConstraint{A: a, B: b, Contact: p.Contact, Normal: p}
	}
	return c
}

func (c *ContactManifoldConstraint) Kind() Kind { return KindContactManifoldConstraint }

func (c *ContactManifoldConstraint) Bodies() (a, b *body.RigidBody) { return c.A, c.B }

func (c *ContactManifoldConstraint) Update(dt fixed.Fixed) {
	c.count = c.Manifold.Count
	for i := 0; i < c.count; i++ {
		c.penetration[i].Restitution = c.Restitution
		c.penetration[i].Update(dt)
		c.friction[i].Coefficient = c.Friction
		c.friction[i].Update(dt)
	}
}

func (c *ContactManifoldConstraint) ExclusiveUpdate() {
	for i := 0; i < c.count; i++ {
		c.penetration[i].ExclusiveUpdate()
		c.friction[i].ExclusiveUpdate()
	}
}

func (c *ContactManifoldConstraint) SolveIteration() fixed.Fixed {
	var d fixed.Fixed
	for i := 0; i < c.count; i++ {
		d += c.friction[i].SolveIteration()
	}
	for i := 0; i < c.count; i++ {
		d += c.penetration[i].SolveIteration()
	}
	return d
}

// NormalImpulse returns the total normal impulse applied this tick
func (c *ContactManifoldConstraint) NormalImpulse() fixed.Fixed {
	var sum fixed.Fixed
	for i := 0; i < c.count; i++ {
		sum += c.penetration[i].NormalImpulse()
	}
	return sum
}
