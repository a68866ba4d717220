package narrowphase

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// MaxContacts is the manifold capacity
const MaxContacts = 4

// noID marks a candidate waiting for a slot
const noID int64 = -1

// Contact is one point of a manifold. Normal points from A to B; Depth is positive when
// the shapes overlap.
type Contact struct {
	Position fixed.Vec3
	Normal   fixed.Vec3
	Depth    fixed.Fixed
	ID       int64

	// accumulated impulses carried across ticks for warm starting
	NormalImpulse  fixed.Fixed
	TangentImpulse [2]fixed.Fixed
}

// Manifold is the persistent contact set of one pair
type Manifold struct {
	Contacts [MaxContacts]Contact
	Count    int
}

// slotMatchDistance is how far a point may move between ticks and keep its slot
var slotMatchDistance = fixed.FromRatio(1, 20)

// Points returns the live contacts
func (m *Manifold) Points() []Contact {
	return m.Contacts[:m.Count]
}

// Clear drops all points and their impulses
func (m *Manifold) Clear() {
	m.Count = 0
}

// Update replaces the points with candidates (at most MaxContacts, see Reduce).
// Keyed candidates carry stable ids and match old points by id. Otherwise each candidate
// reuses the id and impulses of the nearest unmatched old point within slotMatchDistance
// and the rest take the lowest free slot id 0..3. Old points that find no match lose
// their impulses.
func (m *Manifold) Update(candidates []Contact, keyed bool) {
	var next [MaxContacts]Contact
	n := copy(next[:], candidates)
	old := m.Contacts
	oldCount := m.Count

	if keyed {
		for i := 0; i < n; i++ {
			next[i].NormalImpulse, next[i].TangentImpulse = 0, [2]fixed.Fixed{}
			for j := 0; j < oldCount; j++ {
				if old[j].ID == next[i].ID {
					next[i].NormalImpulse = old[j].NormalImpulse
					next[i].TangentImpulse = old[j].TangentImpulse
					break
				}
			}
		}
	} else {
		var matched [MaxContacts]bool
		var used [MaxContacts]bool
		limit := slotMatchDistance.Mul(slotMatchDistance)
		for i := 0; i < n; i++ {
			best, bestD := -1, limit
			for j := 0; j < oldCount; j++ {
				if matched[j] {
					continue
				}
				if d := next[i].Position.Sub(old[j].Position).LengthSquared(); d <= bestD {
					best, bestD = j, d
				}
			}
			if best < 0 {
				next[i].ID = noID
				next[i].NormalImpulse, next[i].TangentImpulse = 0, [2]fixed.Fixed{}
				continue
			}
			matched[best] = true
			next[i].ID = old[best].ID
			next[i].NormalImpulse = old[best].NormalImpulse
			next[i].TangentImpulse = old[best].TangentImpulse
			if old[best].ID >= 0 && old[best].ID < MaxContacts {
				used[old[best].ID] = true
			}
		}
		for i := 0; i < n; i++ {
			if next[i].ID != noID {
				continue
			}
			for slot := 0; slot < MaxContacts; slot++ {
				if !used[slot] {
					used[slot] = true
					next[i].ID = int64(slot)
					break
				}
			}
		}
	}
	m.Contacts = next
	m.Count = n
}

// Reduce keeps at most MaxContacts candidates spanning the largest area. The deepest
// point is always kept; ties resolve to the lower index.
func Reduce(cands []Contact) []Contact {
	if len(cands) <= MaxContacts {
		return cands
	}
	var picked [MaxContacts]int
	picked[0] = 0
	for i := range cands {
		if cands[i].Depth > cands[picked[0]].Depth {
			picked[0] = i
		}
	}
	p0 := cands[picked[0]].Position

	picked[1] = -1
	var bestD fixed.Fixed = -1
	for i := range cands {
		if d := cands[i].Position.Sub(p0).LengthSquared(); i != picked[0] && d > bestD {
			picked[1], bestD = i, d
		}
	}
	p1 := cands[picked[1]].Position

	picked[2] = -1
	bestD = -1
	for i := range cands {
		if i == picked[0] || i == picked[1] {
			continue
		}
		if a := triArea2(p0, p1, cands[i].Position); a > bestD {
			picked[2], bestD = i, a
		}
	}
	p2 := cands[picked[2]].Position

	picked[3] = -1
	bestD = -1
	for i := range cands {
		if i == picked[0] || i == picked[1] || i == picked[2] {
			continue
		}
		p := cands[i].Position
		// points inside the triangle add nothing; this sum grows with the distance outside
		a := triArea2(p0, p1, p) + triArea2(p1, p2, p) + triArea2(p2, p0, p)
		if a > bestD {
			picked[3], bestD = i, a
		}
	}

	var out [MaxContacts]Contact
	for k, i := range picked {
		out[k] = cands[i]
	}
	cands = cands[:MaxContacts]
	copy(cands, out[:])
	return cands
}

// triArea2 is twice the area of a triangle
func triArea2(a, b, c fixed.Vec3) fixed.Fixed {
	return b.Sub(a).Cross(c.Sub(a)).Length()
}
