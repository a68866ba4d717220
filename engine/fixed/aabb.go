package fixed

// AABB is an axis aligned bounding box
type AABB struct {
	Min, Max Vec3
}

// EmptyAABB returns an inverted box that any Merge will replace
func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{MaxValue, MaxValue, MaxValue},
		Max: Vec3{MinValue, MinValue, MinValue},
	}
}

// Overlaps reports whether two boxes intersect, touching counts
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Contains reports whether p lies in the box
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Merge returns the union of two boxes
func (b AABB) Merge(o AABB) AABB {
	return AABB{MinVec3(b.Min, o.Min), MaxVec3(b.Max, o.Max)}
}

// MergePoint grows the box to contain p
func (b AABB) MergePoint(p Vec3) AABB {
	return AABB{MinVec3(b.Min, p), MaxVec3(b.Max, p)}
}

// Expand grows the box by m on every side
func (b AABB) Expand(m Fixed) AABB {
	d := Vec3{m, m, m}
	return AABB{b.Min.Sub(d), b.Max.Add(d)}
}

// Center of the box
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(Half)
}

// Extents returns the half size
func (b AABB) Extents() Vec3 {
	return b.Max.Sub(b.Min).Scale(Half)
}

// RayIntersect runs the slab test for a ray origin + t*dir, t in [0, maxT].
// Returns the entry t on hit.
func (b AABB) RayIntersect(origin, dir Vec3, maxT Fixed) (Fixed, bool) {
	tmin, tmax := Zero, maxT
	for i := 0; i < 3; i++ {
		o, d := origin.Get(i), dir.Get(i)
		lo, hi := b.Min.Get(i), b.Max.Get(i)
		if d == 0 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1 := (lo - o).Div(d)
		t2 := (hi - o).Div(d)
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = Max(tmin, t1)
		tmax = Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// TransformAABB returns the world box of a local box under rotation r and translation t
func TransformAABB(local AABB, r Mat3, t Vec3) AABB {
	c := r.MulVec(local.Center()).Add(t)
	e := local.Extents()
	var we Vec3
	for i := 0; i < 3; i++ {
		row := r.Row(i).Abs()
		we = we.With(i, row.Dot(e))
	}
	return AABB{c.Sub(we), c.Add(we)}
}
