package space

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/broadphase"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gwlog"
	"github.com/xiaonanln/gwphys/engine/shape"
	"github.com/xiaonanln/gwphys/engine/solver"
)

// BodyID is a handle to a body slot. The generation makes handles of removed bodies stale.
type BodyID struct {
	Index      int32
	Generation uint32
}

func (id BodyID) String() string {
	return fmt.Sprintf("Body<%d.%d>", id.Index, id.Generation)
}

// StaticID is a handle to a static mesh or terrain
type StaticID struct {
	Index      int32
	Generation uint32
}

func (id StaticID) String() string {
	return fmt.Sprintf("Static<%d.%d>", id.Index, id.Generation)
}

// ConstraintID is a handle to a joint, limit or motor
type ConstraintID struct {
	Index      int32
	Generation uint32
}

func (id ConstraintID) String() string {
	return fmt.Sprintf("Constraint<%d.%d>", id.Index, id.Generation)
}

// StaticDesc describes the material and filter of a static collidable
type StaticDesc struct {
	Friction    fixed.Fixed
	Restitution fixed.Fixed
	Group       uint32
	Mask        uint32
}

type bodySlot struct {
	body  *body.RigidBody
	proxy broadphase.ID
	gen   uint32
	alive bool
}

type staticSlot struct {
	source shape.TriangleSource
	desc   StaticDesc
	proxy  broadphase.ID
	gen    uint32
	alive  bool
}

type constraintSlot struct {
	c     solver.Constraint
	seq   uint64
	gen   uint32
	alive bool
}

// ref names the owner of a broad phase proxy
type ref struct {
	static bool
	index  int32
}

// allocSlot pops the free list or grows the slot count
func allocSlot(free *[]int32, n int) (int32, bool) {
	if l := len(*free); l > 0 {
		i := (*free)[l-1]
		*free = (*free)[:l-1]
		return i, true
	}
	return int32(n), false
}

func (s *Space) checkMutable() error {
	if s.closed {
		return ErrClosed
	}
	if s.phase != PhaseIdle {
		return ErrInStep
	}
	return nil
}

func (s *Space) newProxy(r ref) broadphase.ID {
	id := s.nextProxy
	s.nextProxy++
	s.proxies[id] = r
	return id
}

// AddBody creates a body from desc. A zero friction or restitution takes the configured
// default.
func (s *Space) AddBody(desc body.Desc) (BodyID, error) {
	if err := s.checkMutable(); err != nil {
		return BodyID{}, err
	}
	if desc.Friction == 0 {
		desc.Friction = s.settings.DefaultFriction
	}
	if desc.Restitution == 0 {
		desc.Restitution = s.settings.DefaultRestitution
	}
	b, err := body.New(desc)
	if err != nil {
		return BodyID{}, err
	}
	index, reused := allocSlot(&s.freeBodies, len(s.bodies))
	if !reused {
		s.bodies = append(s.bodies, bodySlot{})
	}
	slot := &s.bodies[index]
	slot.body = b
	slot.alive = true
	slot.proxy = s.newProxy(ref{index: index})
	s.bodyIndex[b] = index
	s.bp.Add(slot.proxy, s.proxyBox(b), b.Group, b.Mask, b.IsDynamic())
	id := BodyID{Index: index, Generation: slot.gen}
	if consts.DEBUG_SPACES {
		gwlog.Debugf("space: add %s shape %s mass %s", id, b.Shape.Kind(), b.Mass)
	}
	return id, nil
}

func (s *Space) bodySlot(id BodyID) (*bodySlot, error) {
	if id.Index < 0 || int(id.Index) >= len(s.bodies) {
		return nil, errors.Wrapf(ErrStaleHandle, "%s", id)
	}
	slot := &s.bodies[id.Index]
	if !slot.alive || slot.gen != id.Generation {
		return nil, errors.Wrapf(ErrStaleHandle, "%s", id)
	}
	return slot, nil
}

// Body returns the body behind a handle
func (s *Space) Body(id BodyID) (*body.RigidBody, error) {
	slot, err := s.bodySlot(id)
	if err != nil {
		return nil, err
	}
	return slot.body, nil
}

// BodyIDOf returns the handle of a body owned by the space
func (s *Space) BodyIDOf(b *body.RigidBody) (BodyID, bool) {
	index, ok := s.bodyIndex[b]
	if !ok {
		return BodyID{}, false
	}
	return BodyID{Index: index, Generation: s.bodies[index].gen}, true
}

// RemoveBody deletes a body together with its contacts and the constraints attached to it
func (s *Space) RemoveBody(id BodyID) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	slot, err := s.bodySlot(id)
	if err != nil {
		return err
	}
	b := slot.body
	for i := range s.constraints {
		cs := &s.constraints[i]
		if !cs.alive {
			continue
		}
		if ba, bb := cs.c.Bodies(); ba == b || bb == b {
			s.removeConstraintSlot(int32(i))
		}
	}
	s.removePairsOf(slot.proxy)
	s.bp.Remove(slot.proxy)
	delete(s.proxies, slot.proxy)
	delete(s.bodyIndex, b)
	slot.body = nil
	slot.alive = false
	slot.gen++
	s.freeBodies = append(s.freeBodies, id.Index)
	if consts.DEBUG_SPACES {
		gwlog.Debugf("space: remove %s", id)
	}
	return nil
}

// AddStaticMesh adds a static mesh
func (s *Space) AddStaticMesh(mesh *shape.StaticMesh, desc StaticDesc) (StaticID, error) {
	return s.addStatic(mesh, desc)
}

// AddTerrain adds a height field terrain
func (s *Space) AddTerrain(terrain *shape.Terrain, desc StaticDesc) (StaticID, error) {
	return s.addStatic(terrain, desc)
}

func (s *Space) addStatic(src shape.TriangleSource, desc StaticDesc) (StaticID, error) {
	if err := s.checkMutable(); err != nil {
		return StaticID{}, err
	}
	if src == nil {
		return StaticID{}, errors.New("space: nil static shape")
	}
	if desc.Friction == 0 {
		desc.Friction = s.settings.DefaultFriction
	}
	if desc.Restitution == 0 {
		desc.Restitution = s.settings.DefaultRestitution
	}
	if desc.Group == 0 && desc.Mask == 0 {
		desc.Group, desc.Mask = 1, ^uint32(0)
	}
	index, reused := allocSlot(&s.freeStatics, len(s.statics))
	if !reused {
		s.statics = append(s.statics, staticSlot{})
	}
	slot := &s.statics[index]
	slot.source = src
	slot.desc = desc
	slot.alive = true
	slot.proxy = s.newProxy(ref{static: true, index: index})
	s.bp.Add(slot.proxy, src.LocalAABB(), desc.Group, desc.Mask, false)
	id := StaticID{Index: index, Generation: slot.gen}
	if consts.DEBUG_SPACES {
		gwlog.Debugf("space: add %s %s with %d triangles", id, src.Kind(), src.TriangleCount())
	}
	return id, nil
}

func (s *Space) staticSlot(id StaticID) (*staticSlot, error) {
	if id.Index < 0 || int(id.Index) >= len(s.statics) {
		return nil, errors.Wrapf(ErrStaleHandle, "%s", id)
	}
	slot := &s.statics[id.Index]
	if !slot.alive || slot.gen != id.Generation {
		return nil, errors.Wrapf(ErrStaleHandle, "%s", id)
	}
	return slot, nil
}

// RemoveStatic deletes a static mesh or terrain
func (s *Space) RemoveStatic(id StaticID) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	slot, err := s.staticSlot(id)
	if err != nil {
		return err
	}
	s.removePairsOf(slot.proxy)
	s.bp.Remove(slot.proxy)
	delete(s.proxies, slot.proxy)
	slot.source = nil
	slot.alive = false
	slot.gen++
	s.freeStatics = append(s.freeStatics, id.Index)
	return nil
}

// SetCollisionRule enables or disables collisions between two bodies
func (s *Space) SetCollisionRule(a, b BodyID, collide bool) error {
	sa, err := s.bodySlot(a)
	if err != nil {
		return err
	}
	sb, err := s.bodySlot(b)
	if err != nil {
		return err
	}
	s.bp.SetCollisionRule(sa.proxy, sb.proxy, collide)
	return nil
}

// SetStaticCollisionRule enables or disables collisions between a body and a static
func (s *Space) SetStaticCollisionRule(b BodyID, st StaticID, collide bool) error {
	sb, err := s.bodySlot(b)
	if err != nil {
		return err
	}
	ss, err := s.staticSlot(st)
	if err != nil {
		return err
	}
	s.bp.SetCollisionRule(sb.proxy, ss.proxy, collide)
	return nil
}

// AddConstraint adds a joint, limit or motor between two bodies of the space
func (s *Space) AddConstraint(c solver.Constraint) (ConstraintID, error) {
	if err := s.checkMutable(); err != nil {
		return ConstraintID{}, err
	}
	if c.Kind() == solver.KindContactManifoldConstraint {
		return ConstraintID{}, errors.New("space: contact constraints are owned by the space")
	}
	a, b := c.Bodies()
	for _, x := range [2]*body.RigidBody{a, b} {
		if _, ok := s.bodyIndex[x]; !ok && x != s.world {
			return ConstraintID{}, errors.Errorf("space: %s references a body outside the space", c.Kind())
		}
	}
	index, reused := allocSlot(&s.freeConstraints, len(s.constraints))
	if !reused {
		s.constraints = append(s.constraints, constraintSlot{})
	}
	slot := &s.constraints[index]
	slot.c = c
	slot.alive = true
	slot.seq = s.solver.Add(c)
	id := ConstraintID{Index: index, Generation: slot.gen}
	if consts.DEBUG_SPACES {
		gwlog.Debugf("space: add %s %s", id, c.Kind())
	}
	return id, nil
}

// RemoveConstraint removes a joint, limit or motor
func (s *Space) RemoveConstraint(id ConstraintID) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if id.Index < 0 || int(id.Index) >= len(s.constraints) {
		return errors.Wrapf(ErrStaleHandle, "%s", id)
	}
	slot := &s.constraints[id.Index]
	if !slot.alive || slot.gen != id.Generation {
		return errors.Wrapf(ErrStaleHandle, "%s", id)
	}
	s.removeConstraintSlot(id.Index)
	return nil
}

func (s *Space) removeConstraintSlot(index int32) {
	slot := &s.constraints[index]
	s.solver.Remove(slot.seq)
	slot.c = nil
	slot.alive = false
	slot.gen++
	s.freeConstraints = append(s.freeConstraints, index)
}

// World returns the kinematic body standing for the static world. Joints may anchor to it.
func (s *Space) World() *body.RigidBody {
	return s.world
}
