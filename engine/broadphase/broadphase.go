// Package broadphase finds overlapping bounding boxes with a sort and sweep list.
//
// The reported pairs depend only on the boxes, ids and collision rules. They never depend on
// the order proxies were added in.
package broadphase

import (
	"sort"

	"github.com/xiaonanln/gwphys/engine/fixed"
)

// ID identifies a collidable
type ID int32

// PairKey is an unordered pair stored as (min, max)
type PairKey struct {
	A, B ID
}

// MakePairKey orders the ids
func MakePairKey(a, b ID) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// Less orders keys by A then B
func (k PairKey) Less(o PairKey) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}

func sortKeys(keys []PairKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// Proxy is the broad phase entry of one collidable
type Proxy struct {
	ID      ID
	Box     fixed.AABB
	Group   uint32
	Mask    uint32
	Dynamic bool

	prev, next *Proxy
}

func (p *Proxy) before(o *Proxy) bool {
	if p.Box.Min.X != o.Box.Min.X {
		return p.Box.Min.X < o.Box.Min.X
	}
	return p.ID < o.ID
}

// BroadPhase tracks proxies and the current overlapping pair set
type BroadPhase struct {
	list    *sweepList
	proxies map[ID]*Proxy
	// noCollide holds explicit per pair exclusions
	noCollide map[PairKey]struct{}
	pairs     map[PairKey]struct{}
	sorted    []PairKey
}

// New creates an empty broad phase
func New() *BroadPhase {
	return &BroadPhase{
		list:      newSweepList(),
		proxies:   map[ID]*Proxy{},
		noCollide: map[PairKey]struct{}{},
		pairs:     map[PairKey]struct{}{},
	}
}

// Add registers a collidable; adding an existing id replaces its box and filter
func (bp *BroadPhase) Add(id ID, box fixed.AABB, group, mask uint32, dynamic bool) {
	if p, ok := bp.proxies[id]; ok {
		p.Group, p.Mask, p.Dynamic = group, mask, dynamic
		bp.Move(id, box)
		return
	}
	p := &Proxy{ID: id, Box: box, Group: group, Mask: mask, Dynamic: dynamic}
	bp.proxies[id] = p
	bp.list.Insert(p)
}

// Remove unregisters a collidable. Its pairs are reported as removed by the next Update.
func (bp *BroadPhase) Remove(id ID) {
	p, ok := bp.proxies[id]
	if !ok {
		return
	}
	bp.list.Remove(p)
	delete(bp.proxies, id)
	for k := range bp.noCollide {
		if k.A == id || k.B == id {
			delete(bp.noCollide, k)
		}
	}
}

// Move updates the box of a collidable
func (bp *BroadPhase) Move(id ID, box fixed.AABB) {
	p, ok := bp.proxies[id]
	if !ok {
		return
	}
	p.Box = box
	bp.list.Move(p)
}

// SetDynamic changes whether the collidable counts as dynamic
func (bp *BroadPhase) SetDynamic(id ID, dynamic bool) {
	if p, ok := bp.proxies[id]; ok {
		p.Dynamic = dynamic
	}
}

// SetCollisionRule enables or disables collisions between two collidables
func (bp *BroadPhase) SetCollisionRule(a, b ID, collide bool) {
	k := MakePairKey(a, b)
	if collide {
		delete(bp.noCollide, k)
	} else {
		bp.noCollide[k] = struct{}{}
	}
}

// CanCollide applies the dynamic, group/mask and per pair rules
func (bp *BroadPhase) CanCollide(a, b *Proxy) bool {
	if !a.Dynamic && !b.Dynamic {
		return false
	}
	if a.Group&b.Mask == 0 || b.Group&a.Mask == 0 {
		return false
	}
	_, excluded := bp.noCollide[MakePairKey(a.ID, b.ID)]
	return !excluded
}

// Len returns the number of proxies
func (bp *BroadPhase) Len() int {
	return len(bp.proxies)
}

// Update sweeps the list and returns the pairs that started and stopped overlapping since
// the previous Update, both sorted by key.
func (bp *BroadPhase) Update() (added, removed []PairKey) {
	current := make(map[PairKey]struct{}, len(bp.pairs))
	for p := bp.list.head; p != nil; p = p.next {
		for q := p.next; q != nil && q.Box.Min.X <= p.Box.Max.X; q = q.next {
			if !p.Box.Overlaps(q.Box) || !bp.CanCollide(p, q) {
				continue
			}
			k := MakePairKey(p.ID, q.ID)
			current[k] = struct{}{}
			if _, ok := bp.pairs[k]; !ok {
				added = append(added, k)
			}
		}
	}
	for k := range bp.pairs {
		if _, ok := current[k]; !ok {
			removed = append(removed, k)
		}
	}
	bp.pairs = current
	bp.sorted = bp.sorted[:0]
	for k := range current {
		bp.sorted = append(bp.sorted, k)
	}
	sortKeys(bp.sorted)
	sortKeys(added)
	sortKeys(removed)
	return
}

// Pairs returns the pair set of the last Update sorted by key. The slice is reused.
func (bp *BroadPhase) Pairs() []PairKey {
	return bp.sorted
}

// QueryAABB appends the ids of proxies overlapping box, ascending
func (bp *BroadPhase) QueryAABB(box fixed.AABB, buf []ID) []ID {
	start := len(buf)
	for p := bp.list.head; p != nil && p.Box.Min.X <= box.Max.X; p = p.next {
		if p.Box.Overlaps(box) {
			buf = append(buf, p.ID)
		}
	}
	ids := buf[start:]
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return buf
}
