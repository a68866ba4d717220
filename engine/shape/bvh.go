package shape

import (
	"sort"

	"github.com/xiaonanln/gwphys/engine/fixed"
)

const bvhLeafSize = 4

type bvhNode struct {
	box         fixed.AABB
	left, right int32
	start, end  int32
}

// BVH is a static bounding volume tree over indexed boxes, built by median splits
type BVH struct {
	nodes []bvhNode
	order []int32
	boxes []fixed.AABB
}

// NewBVH builds a tree; the boxes slice is retained
func NewBVH(boxes []fixed.AABB) *BVH {
	b := &BVH{boxes: boxes, order: make([]int32, len(boxes))}
	for i := range b.order {
		b.order[i] = int32(i)
	}
	if len(boxes) > 0 {
		b.build(0, int32(len(boxes)))
	}
	return b
}

func (b *BVH) build(start, end int32) int32 {
	box := fixed.EmptyAABB()
	cbox := fixed.EmptyAABB()
	for _, i := range b.order[start:end] {
		box = box.Merge(b.boxes[i])
		cbox = cbox.MergePoint(b.boxes[i].Center())
	}
	id := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{box: box, left: -1, right: -1, start: start, end: end})
	if end-start <= bvhLeafSize {
		return id
	}

	size := cbox.Max.Sub(cbox.Min)
	axis := 0
	if size.Y > size.Get(axis) {
		axis = 1
	}
	if size.Z > size.Get(axis) {
		axis = 2
	}
	part := b.order[start:end]
	sort.SliceStable(part, func(i, j int) bool {
		ci := b.boxes[part[i]].Min.Get(axis) + b.boxes[part[i]].Max.Get(axis)
		cj := b.boxes[part[j]].Min.Get(axis) + b.boxes[part[j]].Max.Get(axis)
		if ci != cj {
			return ci < cj
		}
		return part[i] < part[j]
	})
	mid := start + (end-start)/2
	left := b.build(start, mid)
	right := b.build(mid, end)
	b.nodes[id].left, b.nodes[id].right = left, right
	return id
}

// Query appends the indices of all boxes overlapping q, sorted ascending
func (b *BVH) Query(q fixed.AABB, buf []int) []int {
	if len(b.nodes) == 0 {
		return buf
	}
	start := len(buf)
	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		n := &b.nodes[stack[sp]]
		if !n.box.Overlaps(q) {
			continue
		}
		if n.left < 0 {
			for _, i := range b.order[n.start:n.end] {
				if b.boxes[i].Overlaps(q) {
					buf = append(buf, int(i))
				}
			}
			continue
		}
		stack[sp] = n.left
		stack[sp+1] = n.right
		sp += 2
	}
	sort.Ints(buf[start:])
	return buf
}

// RayQuery visits leaves whose boxes the ray reaches before the current maxT.
// visit returns the updated maxT.
func (b *BVH) RayQuery(origin, dir fixed.Vec3, maxT fixed.Fixed, visit func(i int, maxT fixed.Fixed) fixed.Fixed) {
	if len(b.nodes) == 0 {
		return
	}
	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		n := &b.nodes[stack[sp]]
		if _, ok := n.box.RayIntersect(origin, dir, maxT); !ok {
			continue
		}
		if n.left < 0 {
			for _, i := range b.order[n.start:n.end] {
				maxT = visit(int(i), maxT)
			}
			continue
		}
		stack[sp] = n.right
		stack[sp+1] = n.left
		sp += 2
	}
}
