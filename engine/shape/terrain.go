package shape

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// Terrain is a height field. Heights[row][col] sits at local
// (col*ColSpacing, height, row*RowSpacing); triangles face local +Y.
type Terrain struct {
	Heights    [][]fixed.Fixed
	RowSpacing fixed.Fixed
	ColSpacing fixed.Fixed
	Transform  Transform
	rows, cols int
	grid       fixed.AABB
	aabb       fixed.AABB
	rot        fixed.Mat3
}

// NewTerrain validates the grid; heights are copied
func NewTerrain(heights [][]fixed.Fixed, rowSpacing, colSpacing fixed.Fixed, transform Transform) (*Terrain, error) {
	if len(heights) < 2 || len(heights[0]) < 2 {
		return nil, errors.Wrap(ErrBadHeightField, "need at least 2x2 samples")
	}
	if rowSpacing <= 0 || colSpacing <= 0 {
		return nil, errors.Wrap(ErrInvalidDimension, "terrain spacing")
	}
	if transform.Orientation == (fixed.Quat{}) {
		transform.Orientation = fixed.QuatIdentity
	}
	t := &Terrain{
		RowSpacing: rowSpacing,
		ColSpacing: colSpacing,
		Transform:  transform,
		rows:       len(heights),
		cols:       len(heights[0]),
		rot:        fixed.FromQuat(transform.Orientation),
	}
	lo, hi := fixed.MaxValue, fixed.MinValue
	t.Heights = make([][]fixed.Fixed, t.rows)
	for r, row := range heights {
		if len(row) != t.cols {
			return nil, errors.Wrapf(ErrBadHeightField, "row %d has %d samples, want %d", r, len(row), t.cols)
		}
		t.Heights[r] = append([]fixed.Fixed(nil), row...)
		for _, h := range row {
			lo, hi = fixed.Min(lo, h), fixed.Max(hi, h)
		}
	}
	t.grid = fixed.AABB{
		Min: fixed.Vec3{Y: lo},
		Max: fixed.Vec3{X: colSpacing.MulInt(int64(t.cols - 1)), Y: hi, Z: rowSpacing.MulInt(int64(t.rows - 1))},
	}
	t.aabb = fixed.TransformAABB(t.grid, t.rot, transform.Position)
	return t, nil
}

func (t *Terrain) Kind() Kind { return KindTerrain }

// LocalAABB bounds the terrain in world space; like StaticMesh, triangles come out
// already transformed
func (t *Terrain) LocalAABB() fixed.AABB { return t.aabb }

// GridAABB bounds the grid before the terrain transform
func (t *Terrain) GridAABB() fixed.AABB { return t.grid }

// Rows returns the sample rows
func (t *Terrain) Rows() int { return t.rows }

// Cols returns the sample columns
func (t *Terrain) Cols() int { return t.cols }

func (t *Terrain) TriangleCount() int {
	return (t.rows - 1) * (t.cols - 1) * 2
}

func (t *Terrain) vertex(r, c int) fixed.Vec3 {
	local := fixed.Vec3{X: t.ColSpacing.MulInt(int64(c)), Y: t.Heights[r][c], Z: t.RowSpacing.MulInt(int64(r))}
	return t.Transform.Apply(local)
}

// TriangleAt builds triangle i in world space
func (t *Terrain) TriangleAt(i int) Triangle {
	cell := i / 2
	r, c := cell/(t.cols-1), cell%(t.cols-1)
	var tri Triangle
	if i%2 == 0 {
		tri = Triangle{A: t.vertex(r, c), B: t.vertex(r+1, c), C: t.vertex(r, c+1)}
	} else {
		tri = Triangle{A: t.vertex(r, c+1), B: t.vertex(r+1, c), C: t.vertex(r+1, c+1)}
	}
	tri.Sidedness = CounterClockwise
	tri.init()
	return tri
}

// cellRange maps a world box to the clamped cell rectangle it covers
func (t *Terrain) cellRange(box fixed.AABB) (r0, r1, c0, c1 int, ok bool) {
	inv := t.Transform.Orientation.Conjugate()
	local := fixed.TransformAABB(box, fixed.FromQuat(inv), inv.Rotate(t.Transform.Position.Negate()))
	if local.Max.Y < t.grid.Min.Y || local.Min.Y > t.grid.Max.Y {
		return 0, 0, 0, 0, false
	}
	c0 = int(local.Min.X.Div(t.ColSpacing).Floor().Int())
	c1 = int(local.Max.X.Div(t.ColSpacing).Floor().Int())
	r0 = int(local.Min.Z.Div(t.RowSpacing).Floor().Int())
	r1 = int(local.Max.Z.Div(t.RowSpacing).Floor().Int())
	if c1 < 0 || r1 < 0 || c0 > t.cols-2 || r0 > t.rows-2 {
		return 0, 0, 0, 0, false
	}
	if c0 < 0 {
		c0 = 0
	}
	if r0 < 0 {
		r0 = 0
	}
	if c1 > t.cols-2 {
		c1 = t.cols - 2
	}
	if r1 > t.rows-2 {
		r1 = t.rows - 2
	}
	return r0, r1, c0, c1, true
}

func (t *Terrain) OverlappingTriangles(box fixed.AABB, buf []int) []int {
	r0, r1, c0, c1, ok := t.cellRange(box)
	if !ok {
		return buf
	}
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			cell := r*(t.cols-1) + c
			for k := 0; k < 2; k++ {
				i := cell*2 + k
				tri := t.TriangleAt(i)
				if tri.LocalAABB().Overlaps(box) {
					buf = append(buf, i)
				}
			}
		}
	}
	return buf
}

// RayCast tests the cells under the ray segment's bounds
func (t *Terrain) RayCast(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	end := origin.Add(dir.Scale(maxT))
	seg := fixed.AABB{Min: fixed.MinVec3(origin, end), Max: fixed.MaxVec3(origin, end)}
	var idx []int
	idx = t.OverlappingTriangles(seg, idx)
	best := RayHit{T: fixed.MaxValue, Triangle: -1}
	found := false
	for _, i := range idx {
		tri := t.TriangleAt(i)
		if hit, ok := tri.RayCastLocal(origin, dir, maxT); ok && hit.T < best.T {
			hit.Triangle = i
			best, found = hit, true
		}
	}
	return best, found
}
