package shape

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// TriangleSource is implemented by static meshes and terrains.
// All coordinates are world space.
type TriangleSource interface {
	Shape
	TriangleCount() int
	TriangleAt(i int) Triangle
	// OverlappingTriangles appends indices of triangles whose bounds overlap box, ascending
	OverlappingTriangles(box fixed.AABB, buf []int) []int
	RayCast(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool)
}

// StaticMesh is an immovable triangle soup baked into world space
type StaticMesh struct {
	triangles []Triangle
	Sidedness Sidedness
	// Solid meshes also report convexes fully inside them
	Solid bool
	bvh   *BVH
	aabb  fixed.AABB
}

// NewStaticMesh scales, rotates and translates the indexed triangles into world space.
// Zero area triangles are dropped.
func NewStaticMesh(vertices []fixed.Vec3, indices []int, transform Transform, scale fixed.Vec3, sidedness Sidedness, solid bool) (*StaticMesh, error) {
	if len(indices) < 3 || len(indices)%3 != 0 {
		return nil, errors.Wrapf(ErrEmptyMesh, "%d indices", len(indices))
	}
	if transform.Orientation == (fixed.Quat{}) {
		transform.Orientation = fixed.QuatIdentity
	}
	world := make([]fixed.Vec3, len(vertices))
	for i, v := range vertices {
		world[i] = transform.Apply(v.MulComponents(scale))
	}
	m := &StaticMesh{Sidedness: sidedness, Solid: solid, aabb: fixed.EmptyAABB()}
	boxes := make([]fixed.AABB, 0, len(indices)/3)
	for i := 0; i < len(indices); i += 3 {
		for _, idx := range indices[i : i+3] {
			if idx < 0 || idx >= len(world) {
				return nil, errors.Errorf("shape: mesh index %d out of range [0, %d)", idx, len(world))
			}
		}
		t := Triangle{A: world[indices[i]], B: world[indices[i+1]], C: world[indices[i+2]], Sidedness: sidedness}
		if !t.init() {
			continue
		}
		m.triangles = append(m.triangles, t)
		box := t.LocalAABB()
		boxes = append(boxes, box)
		m.aabb = m.aabb.Merge(box)
	}
	if len(m.triangles) == 0 {
		return nil, errors.Wrap(ErrEmptyMesh, "all triangles degenerate")
	}
	m.bvh = NewBVH(boxes)
	return m, nil
}

func (m *StaticMesh) Kind() Kind { return KindStaticMesh }

func (m *StaticMesh) LocalAABB() fixed.AABB { return m.aabb }

func (m *StaticMesh) TriangleCount() int { return len(m.triangles) }

func (m *StaticMesh) TriangleAt(i int) Triangle { return m.triangles[i] }

func (m *StaticMesh) OverlappingTriangles(box fixed.AABB, buf []int) []int {
	return m.bvh.Query(box, buf)
}

// RayCast returns the nearest hit; equal distances resolve to the lower triangle index
func (m *StaticMesh) RayCast(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	best := RayHit{T: fixed.MaxValue, Triangle: -1}
	found := false
	m.bvh.RayQuery(origin, dir, maxT, func(i int, limit fixed.Fixed) fixed.Fixed {
		hit, ok := m.triangles[i].RayCastLocal(origin, dir, limit)
		if ok && (hit.T < best.T || hit.T == best.T && i < best.Triangle) {
			hit.Triangle = i
			best, found = hit, true
			return hit.T
		}
		return limit
	})
	return best, found
}

// insideRayDir is skewed off the axes so parity rays rarely graze edges
var insideRayDir = fixed.Vec3{X: fixed.One, Y: fixed.FromRatio(1, 7), Z: fixed.FromRatio(1, 13)}

// IsPointInside counts crossings of a fixed ray through all triangle sides
func (m *StaticMesh) IsPointInside(p fixed.Vec3) bool {
	if !m.aabb.Contains(p) {
		return false
	}
	maxT := m.aabb.Max.Sub(m.aabb.Min).Length().MulInt(2)
	crossings := 0
	m.bvh.RayQuery(p, insideRayDir, maxT, func(i int, limit fixed.Fixed) fixed.Fixed {
		t := m.triangles[i]
		t.Sidedness = DoubleSided
		if _, ok := t.RayCastLocal(p, insideRayDir, limit); ok {
			crossings++
		}
		return limit
	})
	return crossings%2 == 1
}
