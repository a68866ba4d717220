// Package solver implements joints, limits, motors and contacts as one sequential impulse
// system with warm starting and soft constraints.
package solver

import (
	"sort"

	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// Kind tags the closed set of constraint variants
type Kind int

const (
	KindBallSocketJoint Kind = iota
	KindDistanceJoint
	KindPointOnLineJoint
	KindRevoluteAngularJoint
	KindRevoluteLimit
	KindTwistLimit
	KindDistanceLimit
	KindAngularMotor
	KindLinearAxisMotor
	KindPenetrationConstraint
	KindFrictionConstraint
	KindContactManifoldConstraint
)

var kindNames = [...]string{
	"BallSocketJoint", "DistanceJoint", "PointOnLineJoint", "RevoluteAngularJoint",
	"RevoluteLimit", "TwistLimit", "DistanceLimit", "AngularMotor", "LinearAxisMotor",
	"PenetrationConstraint", "FrictionConstraint", "ContactManifoldConstraint",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// Constraint is the capability shared by all variants.
//
// Update recomputes jacobians, effective mass and bias for the tick. ExclusiveUpdate
// applies the impulse accumulated in the previous tick and keeps it. SolveIteration
// applies one corrective impulse and returns its magnitude.
type Constraint interface {
	Kind() Kind
	Bodies() (a, b *body.RigidBody)
	Update(dt fixed.Fixed)
	ExclusiveUpdate()
	SolveIteration() fixed.Fixed
}

// SpringSettings makes a constraint soft. Zero stiffness and damping make it rigid without
// position correction.
type SpringSettings struct {
	Stiffness fixed.Fixed
	Damping   fixed.Fixed
}

// Coefficients returns the error reduction rate (per second) and the relative softness
func (s SpringSettings) Coefficients(dt fixed.Fixed) (errorReduction, softness fixed.Fixed) {
	d := dt.Mul(s.Stiffness) + s.Damping
	if d <= 0 || dt <= 0 {
		return 0, 0
	}
	m := fixed.One.Div(d)
	return s.Stiffness.Mul(m), m.Div(dt)
}

// Settings are shared by all contact constraints of a solver
type Settings struct {
	ContactSpring         SpringSettings
	MaxCorrectiveVelocity fixed.Fixed
	// AllowedPenetration is the overlap left uncorrected to keep contacts alive
	AllowedPenetration fixed.Fixed
	// BounceThreshold is the approach speed under which restitution is ignored
	BounceThreshold fixed.Fixed
	Iterations      int
}

// DefaultSettings returns the settings used when no configuration is given
func DefaultSettings() Settings {
	return Settings{
		ContactSpring:         SpringSettings{Stiffness: fixed.FromInt(30000), Damping: fixed.FromInt(100)},
		MaxCorrectiveVelocity: fixed.Two,
		AllowedPenetration:    fixed.FromRatio(1, 10000),
		BounceThreshold:       fixed.One,
		Iterations:            10,
	}
}

// DefaultJointSpring is used by joint constructors
var DefaultJointSpring = SpringSettings{Stiffness: fixed.FromInt(30000), Damping: fixed.FromInt(100)}

type entry struct {
	seq uint64
	c   Constraint
}

// Solver runs its constraints in insertion order for a fixed number of iterations
type Solver struct {
	Settings Settings

	entries []entry
	active  []Constraint
	nextSeq uint64
}

// New creates a solver
func New(settings Settings) *Solver {
	if settings.Iterations <= 0 {
		settings.Iterations = 1
	}
	return &Solver{Settings: settings, nextSeq: 1}
}

// Add appends a constraint and returns its insertion sequence
func (s *Solver) Add(c Constraint) uint64 {
	seq := s.nextSeq
	s.nextSeq++
	s.entries = append(s.entries, entry{seq: seq, c: c})
	return seq
}

// Remove deletes the constraint added with seq, keeping the order of the others
func (s *Solver) Remove(seq uint64) bool {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].seq >= seq })
	if i == len(s.entries) || s.entries[i].seq != seq {
		return false
	}
	copy(s.entries[i:], s.entries[i+1:])
	s.entries[len(s.entries)-1] = entry{}
	s.entries = s.entries[:len(s.entries)-1]
	return true
}

// Len returns the number of constraints
func (s *Solver) Len() int {
	return len(s.entries)
}

// Constraints calls fn for every constraint in insertion order
func (s *Solver) Constraints(fn func(seq uint64, c Constraint)) {
	for _, e := range s.entries {
		fn(e.seq, e.c)
	}
}

func isActive(c Constraint) bool {
	a, b := c.Bodies()
	return a.Active() || b.Active()
}

// Prepare selects the constraints touching an awake dynamic body, updates them and warm
// starts them
func (s *Solver) Prepare(dt fixed.Fixed) {
	s.active = s.active[:0]
	for _, e := range s.entries {
		if isActive(e.c) {
			s.active = append(s.active, e.c)
		}
	}
	for _, c := range s.active {
		c.Update(dt)
	}
	for _, c := range s.active {
		c.ExclusiveUpdate()
	}
}

// Solve runs the configured number of iterations over the prepared constraints. It returns
// the impulse magnitude applied by the last iteration.
func (s *Solver) Solve() fixed.Fixed {
	var delta fixed.Fixed
	for i := 0; i < s.Settings.Iterations; i++ {
		delta = 0
		for _, c := range s.active {
			delta += c.SolveIteration()
		}
	}
	return delta
}

// ActiveCount returns the number of constraints selected by the last Prepare
func (s *Solver) ActiveCount() int {
	return len(s.active)
}
