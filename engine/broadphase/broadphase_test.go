package broadphase

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

func init() {
	rand.Seed(time.Now().Unix())
}

func randBox() fixed.AABB {
	x, y, z := int64(rand.Intn(50)), int64(rand.Intn(50)), int64(rand.Intn(50))
	return fixed.AABB{Min: fixed.V3i(x, y, z), Max: fixed.V3i(x+1+int64(rand.Intn(5)), y+1+int64(rand.Intn(5)), z+1+int64(rand.Intn(5)))}
}

func checkList(t *testing.T, bp *BroadPhase, n int) {
	list := bp.list
	if list.head == nil {
		assert.T(t, list.tail == nil)
		assert.Equal(t, 0, n)
		return
	}
	assert.T(t, list.head.prev == nil)
	assert.T(t, list.tail.next == nil)
	count := 0
	for p := list.head; p != nil; p = p.next {
		count++
		if p.next != nil {
			assert.T(t, p.before(p.next))
			assert.T(t, p.next.prev == p)
		} else {
			assert.T(t, list.tail == p)
		}
	}
	assert.Equal(t, n, count)
}

func bruteForce(bp *BroadPhase) []PairKey {
	var keys []PairKey
	for _, a := range bp.proxies {
		for _, b := range bp.proxies {
			if a.ID < b.ID && a.Box.Overlaps(b.Box) && bp.CanCollide(a, b) {
				keys = append(keys, MakePairKey(a.ID, b.ID))
			}
		}
	}
	sortKeys(keys)
	return keys
}

func TestSweepListInsertRemoveMove(t *testing.T) {
	for i := 0; i < 300; i++ {
		bp := New()
		n := 1 + rand.Intn(60)
		for j := 0; j < n; j++ {
			bp.Add(ID(j), randBox(), 1, 1, true)
		}
		checkList(t, bp, n)
		for r := 0; r < 50; r++ {
			bp.Move(ID(rand.Intn(n)), randBox())
			checkList(t, bp, n)
		}
		removed := 0
		for j := 0; j < n; j += 3 {
			bp.Remove(ID(j))
			removed++
		}
		checkList(t, bp, n-removed)
	}
}

func TestUpdateMatchesBruteForce(t *testing.T) {
	for i := 0; i < 100; i++ {
		bp := New()
		n := 1 + rand.Intn(60)
		for j := 0; j < n; j++ {
			bp.Add(ID(j), randBox(), 1, 1, rand.Intn(4) != 0)
		}
		bp.Update()
		assert.Equal(t, bruteForce(bp), append([]PairKey(nil), bp.Pairs()...))
	}
}

func TestPairsIndependentOfInsertionOrder(t *testing.T) {
	boxes := make([]fixed.AABB, 40)
	for i := range boxes {
		boxes[i] = randBox()
	}
	// ties on the sweep axis
	boxes[3].Min.X, boxes[7].Min.X = boxes[5].Min.X, boxes[5].Min.X

	forward, backward := New(), New()
	for i := range boxes {
		forward.Add(ID(i), boxes[i], 1, 1, true)
	}
	for i := len(boxes) - 1; i >= 0; i-- {
		backward.Add(ID(i), boxes[i], 1, 1, true)
	}
	a1, _ := forward.Update()
	a2, _ := backward.Update()
	assert.Equal(t, a1, a2)
	assert.Equal(t, forward.Pairs(), backward.Pairs())

	var order1, order2 []ID
	for p := forward.list.head; p != nil; p = p.next {
		order1 = append(order1, p.ID)
	}
	for p := backward.list.head; p != nil; p = p.next {
		order2 = append(order2, p.ID)
	}
	assert.Equal(t, order1, order2)
}

func TestPairsRetiredSameTick(t *testing.T) {
	bp := New()
	bp.Add(1, fixed.AABB{Min: fixed.V3i(0, 0, 0), Max: fixed.V3i(2, 2, 2)}, 1, 1, true)
	bp.Add(2, fixed.AABB{Min: fixed.V3i(1, 1, 1), Max: fixed.V3i(3, 3, 3)}, 1, 1, true)
	added, removed := bp.Update()
	assert.Equal(t, []PairKey{{1, 2}}, added)
	assert.Equal(t, 0, len(removed))

	added, removed = bp.Update()
	assert.Equal(t, 0, len(added))
	assert.Equal(t, 0, len(removed))

	bp.Move(2, fixed.AABB{Min: fixed.V3i(5, 1, 1), Max: fixed.V3i(7, 3, 3)})
	added, removed = bp.Update()
	assert.Equal(t, 0, len(added))
	assert.Equal(t, []PairKey{{1, 2}}, removed)
	assert.Equal(t, 0, len(bp.Pairs()))
}

func TestCollisionRules(t *testing.T) {
	box := fixed.AABB{Min: fixed.V3i(0, 0, 0), Max: fixed.V3i(1, 1, 1)}
	bp := New()
	bp.Add(1, box, 1, 1, false)
	bp.Add(2, box, 1, 1, false)
	bp.Add(3, box, 1, 1, true)
	bp.Add(4, box, 2, 2, true)
	bp.Update()
	// two non dynamic proxies never pair, 4 is filtered by group/mask
	assert.Equal(t, []PairKey{{1, 3}, {2, 3}}, bp.Pairs())

	bp.SetCollisionRule(3, 1, false)
	_, removed := bp.Update()
	assert.Equal(t, []PairKey{{1, 3}}, removed)
	assert.Equal(t, []PairKey{{2, 3}}, bp.Pairs())

	bp.SetCollisionRule(1, 3, true)
	added, _ := bp.Update()
	assert.Equal(t, []PairKey{{1, 3}}, added)

	bp.Remove(3)
	_, removed = bp.Update()
	assert.Equal(t, []PairKey{{1, 3}, {2, 3}}, removed)

	assert.Equal(t, []ID{1, 2, 4}, bp.QueryAABB(box, nil))
}
