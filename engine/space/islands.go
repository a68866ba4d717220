package space

import (
	"github.com/xiaonanln/gwphys/engine/body"
	"github.com/xiaonanln/gwphys/engine/consts"
	"github.com/xiaonanln/gwphys/engine/gwlog"
)

// neighbors calls fn for every dynamic body touching or jointed to b
func (s *Space) neighbors(b *body.RigidBody, fn func(o *body.RigidBody)) {
	for _, p := range s.pairList {
		if p.manifold.Count == 0 {
			continue
		}
		ba, bb := s.bodyOf(p.a), s.bodyOf(p.b)
		if ba == b && bb.IsDynamic() {
			fn(bb)
		} else if bb == b && ba.IsDynamic() {
			fn(ba)
		}
	}
	for i := range s.constraints {
		cs := &s.constraints[i]
		if !cs.alive {
			continue
		}
		ba, bb := cs.c.Bodies()
		if ba == b && bb.IsDynamic() {
			fn(bb)
		} else if bb == b && ba.IsDynamic() {
			fn(ba)
		}
	}
}

// wakeIsland wakes start and every sleeping body connected to it
func (s *Space) wakeIsland(start *body.RigidBody) {
	start.Wake()
	stack := []*body.RigidBody{start}
	woken := 1
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.neighbors(b, func(o *body.RigidBody) {
			if o.Sleeping {
				o.Wake()
				stack = append(stack, o)
				woken++
			}
		})
	}
	if consts.DEBUG_SLEEP {
		gwlog.Debugf("space: tick %d woke island of %d bodies", s.tick+1, woken)
	}
}

func (s *Space) find(i int32) int32 {
	for s.parent[i] != i {
		s.parent[i] = s.parent[s.parent[i]]
		i = s.parent[i]
	}
	return i
}

func (s *Space) union(a, b int32) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	// the lower index becomes the root so the result does not depend on visit order
	if ra < rb {
		s.parent[rb] = ra
	} else {
		s.parent[ra] = rb
	}
}

// deactivate puts to sleep every island whose bodies all stayed slow for SleepTicks ticks.
// Kinematic bodies and statics do not join islands.
func (s *Space) deactivate() {
	if s.settings.SleepTicks <= 0 {
		return
	}
	n := len(s.bodies)
	s.parent = s.parent[:0]
	for i := 0; i < n; i++ {
		s.parent = append(s.parent, int32(i))
	}
	link := func(ba, bb *body.RigidBody) {
		if !ba.IsDynamic() || !bb.IsDynamic() {
			return
		}
		ia, oka := s.bodyIndex[ba]
		ib, okb := s.bodyIndex[bb]
		if oka && okb {
			s.union(ia, ib)
		}
	}
	for _, p := range s.pairList {
		if p.manifold.Count > 0 && !p.a.static && !p.b.static {
			link(s.bodyOf(p.a), s.bodyOf(p.b))
		}
	}
	for i := range s.constraints {
		if cs := &s.constraints[i]; cs.alive {
			link(cs.c.Bodies())
		}
	}

	// an island stays awake while any member is still moving
	awake := make(map[int32]bool)
	for i := 0; i < n; i++ {
		slot := &s.bodies[i]
		if !slot.alive || !slot.body.IsDynamic() {
			continue
		}
		root := s.find(int32(i))
		if slot.body.Sleeping {
			continue
		}
		if !slot.body.UpdateActivity(s.settings.SleepVelocity, s.settings.SleepTicks) {
			awake[root] = true
		}
	}
	slept := 0
	for i := 0; i < n; i++ {
		slot := &s.bodies[i]
		if !slot.alive || !slot.body.Active() || awake[s.find(int32(i))] {
			continue
		}
		slot.body.Sleep()
		slept++
	}
	if consts.DEBUG_SLEEP && slept > 0 {
		gwlog.Debugf("space: tick %d put %d bodies to sleep", s.tick+1, slept)
	}
}
