// Package space runs the fixed tick pipeline over bodies, statics, contacts and constraints.
//
// A Space is single threaded. It has no clock: the tick duration is fixed at creation and
// every call to Step advances exactly one tick.
package space

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/broadphase"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/narrowphase"
	"github.com/xiaonanln/gwphys/engine/opmon"
	"github.com/xiaonanln/gwphys/engine/shape"
	"github.com/xiaonanln/gwphys/engine/solver"
)

var (
	// ErrDesynchronized is returned by every Step after a tick failed halfway
	ErrDesynchronized = errors.New("space: desynchronized")
	// ErrStaleHandle is returned for handles of removed bodies, statics or constraints
	ErrStaleHandle = errors.New("space: stale handle")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("space: closed")
	// ErrInStep is returned when the space is modified from inside a tick
	ErrInStep = errors.New("space: cannot be modified during a step")
)

// Phase is the stage of the tick pipeline
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseApplyForces
	PhaseUpdateBroadPhase
	PhaseNarrowPhase
	PhaseUpdateConstraints
	PhaseSolveIterations
	PhaseIntegratePositions
	PhaseDeactivation
)

var phaseNames = [...]string{
	"Idle", "ApplyForces", "UpdateBroadPhase", "NarrowPhase", "UpdateConstraints",
	"SolveIterations", "IntegratePositions", "Deactivation",
}

var phaseOps = [...]string{
	"", "space.ApplyForces", "space.UpdateBroadPhase", "space.NarrowPhase", "space.UpdateConstraints",
	"space.SolveIterations", "space.IntegratePositions", "space.Deactivation",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// Settings are fixed for the life of a space
type Settings struct {
	TickDuration fixed.Fixed
	Gravity      fixed.Vec3
	Solver       solver.Settings
	// ContactMargin is the gap under which speculative contacts are generated
	ContactMargin fixed.Fixed
	// SleepVelocity and SleepTicks control deactivation; zero SleepTicks disables it
	SleepVelocity      fixed.Fixed
	SleepTicks         int
	DefaultFriction    fixed.Fixed
	DefaultRestitution fixed.Fixed
}

// DefaultSettings returns a 60Hz earth gravity setup
func DefaultSettings() Settings {
	return Settings{
		TickDuration:    fixed.FromRatio(1, 60),
		Gravity:         fixed.V3(0, fixed.FromRatio(-981, 100), 0),
		Solver:          solver.DefaultSettings(),
		ContactMargin:   fixed.FromRatio(1, 4),
		SleepVelocity:   fixed.FromRatio(1, 20),
		SleepTicks:      60,
		DefaultFriction: fixed.Half,
	}
}

// contactPair is a live broad phase pair with its persistent manifold
type contactPair struct {
	key        broadphase.PairKey
	a, b       ref
	manifold   narrowphase.Manifold
	constraint *solver.ContactManifoldConstraint
	seq        uint64
}

// Space owns the simulation state
type Space struct {
	settings Settings

	bodies          []bodySlot
	freeBodies      []int32
	bodyIndex       map[*body.RigidBody]int32
	statics         []staticSlot
	freeStatics     []int32
	constraints     []constraintSlot
	freeConstraints []int32

	bp        *broadphase.BroadPhase
	proxies   map[broadphase.ID]ref
	nextProxy broadphase.ID
	pairs     map[broadphase.PairKey]*contactPair
	pairList  []*contactPair

	tester *narrowphase.Tester
	solver *solver.Solver
	// world stands in for statics on the far side of contact constraints
	world *body.RigidBody

	// scratch
	contacts []narrowphase.Contact
	ids      []broadphase.ID
	parent   []int32

	phase       Phase
	desynced    bool
	closed      bool
	tick        uint64
	lastImpulse fixed.Fixed

	// OnPhase, when set, is called as each phase starts
	OnPhase func(Phase)
}

// New creates an empty space
func New(settings Settings) *Space {
	if settings.TickDuration <= 0 {
		gwlog.Panicf("space: tick duration must be positive, got %s", settings.TickDuration)
	}
	anchor, _ := shape.NewSphere(fixed.One)
	world, err := body.New(body.Desc{Shape: anchor})
	if err != nil {
		gwlog.Panicf("space: create world body: %v", err)
	}
	s := &Space{
		settings:  settings,
		bodyIndex: map[*body.RigidBody]int32{},
		bp:        broadphase.New(),
		proxies:   map[broadphase.ID]ref{},
		nextProxy: 1,
		pairs:     map[broadphase.PairKey]*contactPair{},
		tester:    narrowphase.NewTester(settings.ContactMargin),
		solver:    solver.New(settings.Solver),
		world:     world,
	}
	return s
}

// Settings returns the settings the space was created with
func (s *Space) Settings() Settings {
	return s.settings
}

// Phase returns the phase being executed, PhaseIdle between ticks
func (s *Space) Phase() Phase {
	return s.phase
}

// TickCount returns the number of completed ticks
func (s *Space) TickCount() uint64 {
	return s.tick
}

// LastNormalImpulse returns the sum of contact normal impulses applied in the last tick
func (s *Space) LastNormalImpulse() fixed.Fixed {
	return s.lastImpulse
}

// Desynchronized reports whether a tick failed halfway
func (s *Space) Desynchronized() bool {
	return s.desynced
}

// Step advances the simulation by one tick. A panic inside the pipeline leaves the state
// partially updated; the space is then desynchronized and refuses further ticks.
func (s *Space) Step() (err error) {
	if s.closed {
		return ErrClosed
	}
	if s.desynced {
		return ErrDesynchronized
	}
	defer func() {
		if r := recover(); r != nil {
			s.desynced = true
			gwlog.TraceError("space: tick %d failed in phase %s: %v", s.tick+1, s.phase, r)
			err = errors.Wrapf(ErrDesynchronized, "tick %d phase %s: %v", s.tick+1, s.phase, r)
		}
		s.phase = PhaseIdle
	}()

	s.runPhase(PhaseApplyForces, s.applyForces)
	s.runPhase(PhaseUpdateBroadPhase, s.updateBroadPhase)
	s.runPhase(PhaseNarrowPhase, s.narrowPhase)
	s.runPhase(PhaseUpdateConstraints, s.updateConstraints)
	s.runPhase(PhaseSolveIterations, s.solveIterations)
	s.runPhase(PhaseIntegratePositions, s.integratePositions)
	s.runPhase(PhaseDeactivation, s.deactivate)
	s.tick++
	return nil
}

func (s *Space) runPhase(p Phase, f func()) {
	s.phase = p
	if s.OnPhase != nil {
		s.OnPhase(p)
	}
	op := opmon.StartOperation(phaseOps[p])
	f()
	op.Finish(consts.OPMON_STEP_WARN_THRESHOLD)
}

func (s *Space) applyForces() {
	for i := range s.bodies {
		slot := &s.bodies[i]
		if slot.alive && slot.body.Active() {
			slot.body.IntegrateVelocity(s.settings.Gravity, s.settings.TickDuration)
		}
	}
}

// moving reports whether a body can start new contacts this tick
func moving(b *body.RigidBody) bool {
	if b.IsDynamic() {
		return !b.Sleeping
	}
	return !b.LinearVelocity.IsZero() || !b.AngularVelocity.IsZero()
}

// proxyBox is the body bounds swept by one tick of velocity and grown by the contact margin
func (s *Space) proxyBox(b *body.RigidBody) fixed.AABB {
	box := b.AABB
	d := b.LinearVelocity.Scale(s.settings.TickDuration)
	box = box.Merge(fixed.AABB{Min: box.Min.Add(d), Max: box.Max.Add(d)})
	return box.Expand(s.settings.ContactMargin)
}

func (s *Space) updateBroadPhase() {
	for i := range s.bodies {
		slot := &s.bodies[i]
		if slot.alive && moving(slot.body) {
			s.bp.Move(slot.proxy, s.proxyBox(slot.body))
		}
	}
	added, removed := s.bp.Update()
	for _, k := range removed {
		s.retirePair(k)
	}
	for _, k := range added {
		s.createPair(k)
	}
}

func (s *Space) bodyOf(r ref) *body.RigidBody {
	if r.static {
		return s.world
	}
	return s.bodies[r.index].body
}

func (s *Space) collidable(r ref) narrowphase.Collidable {
	if r.static {
		return narrowphase.Collidable{Shape: s.statics[r.index].source, Transform: shape.IdentityTransform}
	}
	b := s.bodies[r.index].body
	return narrowphase.Collidable{Shape: b.Shape, Transform: b.Transform()}
}

func (s *Space) createPair(k broadphase.PairKey) {
	if _, ok := s.pairs[k]; ok {
		return
	}
	p := &contactPair{key: k, a: s.proxies[k.A], b: s.proxies[k.B]}
	ba, bb := s.bodyOf(p.a), s.bodyOf(p.b)
	p.constraint = solver.NewContactManifoldConstraint(ba, bb, &p.manifold, &s.solver.Settings)
	for _, r := range [2]ref{p.a, p.b} {
		if r.static {
			desc := s.statics[r.index].desc
			other := bb
			if r == p.b {
				other = ba
			}
			p.constraint.Friction = (other.Friction + desc.Friction).DivInt(2)
			p.constraint.Restitution = fixed.Max(other.Restitution, desc.Restitution)
		}
	}
	p.seq = s.solver.Add(p.constraint)
	s.pairs[k] = p
	i := sort.Search(len(s.pairList), func(i int) bool { return !s.pairList[i].key.Less(k) })
	s.pairList = append(s.pairList, nil)
	copy(s.pairList[i+1:], s.pairList[i:])
	s.pairList[i] = p
	if consts.DEBUG_CONTACTS {
		gwlog.Debugf("space: pair %d-%d created", k.A, k.B)
	}
}

func (s *Space) retirePair(k broadphase.PairKey) {
	p, ok := s.pairs[k]
	if !ok {
		return
	}
	s.solver.Remove(p.seq)
	delete(s.pairs, k)
	i := sort.Search(len(s.pairList), func(i int) bool { return !s.pairList[i].key.Less(k) })
	if i < len(s.pairList) && s.pairList[i] == p {
		copy(s.pairList[i:], s.pairList[i+1:])
		s.pairList[len(s.pairList)-1] = nil
		s.pairList = s.pairList[:len(s.pairList)-1]
	}
	if consts.DEBUG_CONTACTS {
		gwlog.Debugf("space: pair %d-%d retired", k.A, k.B)
	}
}

func (s *Space) removePairsOf(proxy broadphase.ID) {
	var keys []broadphase.PairKey
	for _, p := range s.pairList {
		if p.key.A == proxy || p.key.B == proxy {
			keys = append(keys, p.key)
		}
	}
	for _, k := range keys {
		s.retirePair(k)
	}
}

func (s *Space) narrowPhase() {
	for _, p := range s.pairList {
		ba, bb := s.bodyOf(p.a), s.bodyOf(p.b)
		if !moving(ba) && !moving(bb) {
			continue
		}
		var keyed bool
		s.contacts, keyed = s.tester.Collide(s.collidable(p.a), s.collidable(p.b), s.contacts[:0])
		p.manifold.Update(s.contacts, keyed)
		if p.manifold.Count == 0 {
			continue
		}
		// a moving body touching a sleeping one wakes its island
		if ba.IsDynamic() && ba.Sleeping {
			s.wakeIsland(ba)
		}
		if bb.IsDynamic() && bb.Sleeping {
			s.wakeIsland(bb)
		}
	}
	for i := range s.constraints {
		cs := &s.constraints[i]
		if !cs.alive {
			continue
		}
		ba, bb := cs.c.Bodies()
		if ba.Active() && bb.IsDynamic() && bb.Sleeping {
			s.wakeIsland(bb)
		} else if bb.Active() && ba.IsDynamic() && ba.Sleeping {
			s.wakeIsland(ba)
		}
	}
}

func (s *Space) updateConstraints() {
	s.solver.Prepare(s.settings.TickDuration)
}

func (s *Space) solveIterations() {
	s.solver.Solve()
	s.lastImpulse = 0
	for _, p := range s.pairList {
		ba, bb := s.bodyOf(p.a), s.bodyOf(p.b)
		if ba.Active() || bb.Active() {
			s.lastImpulse += p.constraint.NormalImpulse()
		}
	}
}

func (s *Space) integratePositions() {
	for i := range s.bodies {
		slot := &s.bodies[i]
		if slot.alive && moving(slot.body) {
			slot.body.IntegratePose(s.settings.TickDuration)
		}
	}
}

// Close releases all constraints and then all bodies, each in handle order
func (s *Space) Close() {
	if s.closed {
		return
	}
	for i := range s.constraints {
		if s.constraints[i].alive {
			s.removeConstraintSlot(int32(i))
		}
	}
	for _, p := range s.pairList {
		s.solver.Remove(p.seq)
	}
	s.pairList = nil
	s.pairs = map[broadphase.PairKey]*contactPair{}
	for i := range s.bodies {
		slot := &s.bodies[i]
		if !slot.alive {
			continue
		}
		s.bp.Remove(slot.proxy)
		delete(s.bodyIndex, slot.body)
		slot.body = nil
		slot.alive = false
		slot.gen++
	}
	for i := range s.statics {
		slot := &s.statics[i]
		if slot.alive {
			s.bp.Remove(slot.proxy)
			slot.source = nil
			slot.alive = false
			slot.gen++
		}
	}
	s.closed = true
}
