package shape

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/gjk"
)

var degenerateHullTolerance = fixed.FromRatio(1, 1000)

// ConvexHull is the convex hull of a point cloud. Points are recentered on their mean;
// Center holds the offset that was removed.
type ConvexHull struct {
	Points []fixed.Vec3
	Center fixed.Vec3
	aabb   fixed.AABB
}

// NewConvexHull builds a hull from at least four non coplanar points
func NewConvexHull(points []fixed.Vec3) (*ConvexHull, error) {
	if len(points) == 0 {
		return nil, ErrEmptyHull
	}
	if len(points) < 4 {
		return nil, errors.Wrapf(ErrDegenerateHull, "%d points", len(points))
	}

	var sum fixed.Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	center := sum.DivScalar(fixed.FromInt(int64(len(points))))
	local := make([]fixed.Vec3, len(points))
	aabb := fixed.EmptyAABB()
	for i, p := range points {
		local[i] = p.Sub(center)
		aabb = aabb.MergePoint(local[i])
	}
	if err := checkSpansVolume(local); err != nil {
		return nil, err
	}
	return &ConvexHull{Points: local, Center: center, aabb: aabb}, nil
}

// checkSpansVolume finds a far point, a far line and a far plane in turn
func checkSpansVolume(pts []fixed.Vec3) error {
	p0 := pts[0]
	far := func(metric func(p fixed.Vec3) fixed.Fixed) (fixed.Vec3, fixed.Fixed) {
		best, bestV := pts[0], fixed.MinValue
		for _, p := range pts {
			if v := metric(p); v > bestV {
				best, bestV = p, v
			}
		}
		return best, bestV
	}
	p1, d1 := far(func(p fixed.Vec3) fixed.Fixed { return p.Sub(p0).Length() })
	if d1 <= degenerateHullTolerance {
		return errors.Wrap(ErrDegenerateHull, "all points coincide")
	}
	axis := p1.Sub(p0).Normalize()
	p2, d2 := far(func(p fixed.Vec3) fixed.Fixed { return p.Sub(p0).Cross(axis).Length() })
	if d2 <= degenerateHullTolerance {
		return errors.Wrap(ErrDegenerateHull, "points are collinear")
	}
	n := p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
	_, d3 := far(func(p fixed.Vec3) fixed.Fixed { return p.Sub(p0).Dot(n).Abs() })
	if d3 <= degenerateHullTolerance {
		return errors.Wrap(ErrDegenerateHull, "points are coplanar")
	}
	return nil
}

func (h *ConvexHull) Kind() Kind { return KindConvexHull }

func (h *ConvexHull) Margin() fixed.Fixed { return 0 }

func (h *ConvexHull) LocalSupport(dir fixed.Vec3) fixed.Vec3 {
	best := h.Points[0]
	bestD := best.Dot(dir)
	for _, p := range h.Points[1:] {
		if d := p.Dot(dir); d > bestD {
			best, bestD = p, d
		}
	}
	return best
}

func (h *ConvexHull) LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	n := dir.Normalize()
	if n.IsZero() {
		return append(buf, h.Points[0])
	}
	maxD := h.LocalSupport(n).Dot(n)
	start := len(buf)
	for _, p := range h.Points {
		if p.Dot(n) >= maxD-featureTolerance {
			buf = append(buf, p)
		}
	}
	face := buf[start:]
	if len(face) > 2 {
		sortAroundAxis(face, n)
	}
	return buf
}

// sortAroundAxis orders coplanar points by angle around their mean
func sortAroundAxis(pts []fixed.Vec3, n fixed.Vec3) {
	var c fixed.Vec3
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.DivScalar(fixed.FromInt(int64(len(pts))))
	t1, t2 := fixed.TangentBasis(n)
	angles := make([]fixed.Fixed, len(pts))
	idx := make([]int, len(pts))
	for i, p := range pts {
		d := p.Sub(c)
		angles[i] = fixed.Atan2(d.Dot(t2), d.Dot(t1))
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return angles[idx[a]] < angles[idx[b]] })
	sorted := make([]fixed.Vec3, len(pts))
	for i, k := range idx {
		sorted[i] = pts[k]
	}
	copy(pts, sorted)
}

func (h *ConvexHull) LocalAABB() fixed.AABB { return h.aabb }

// Volume approximates the hull by its bounding box
func (h *ConvexHull) Volume() fixed.Fixed {
	e := h.aabb.Extents()
	return e.X.Mul(e.Y).Mul(e.Z).MulInt(8)
}

func (h *ConvexHull) VolumeInertia() fixed.Mat3 {
	return boxInertia(h.aabb.Extents(), h.Volume())
}

func (h *ConvexHull) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	return rayCastConvex(h, origin, dir, maxT)
}

var (
	rayHitTolerance = fixed.FromRatio(1, 10000)
	rayMaxSteps     = 32
)

// rayCastConvex advances along the ray by the GJK distance until the shape is reached
func rayCastConvex(c Convex, origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	dn, dl := dir.NormalizeLen()
	if dl == 0 {
		return RayHit{}, false
	}
	if _, ok := c.LocalAABB().RayIntersect(origin, dir, maxT); !ok {
		return RayHit{}, false
	}
	var simplex gjk.Simplex
	support := func(d fixed.Vec3) fixed.Vec3 { return c.LocalSupport(d) }
	t := fixed.Zero
	normal := dn.Negate()
	for step := 0; step < rayMaxSteps; step++ {
		p := origin.Add(dir.Scale(t))
		res := gjk.Distance(gjk.PointSupport(p), support, dn, &simplex)
		if res.Intersecting {
			return RayHit{T: t, Normal: normal, Triangle: -1}, true
		}
		sep := res.Distance - c.Margin()
		away := p.Sub(res.PointB)
		if !away.IsZero() {
			normal = away.Normalize()
		}
		if sep <= rayHitTolerance {
			return RayHit{T: t, Normal: normal, Triangle: -1}, true
		}
		// moving away from the closest point means a miss
		if away.Dot(dn) >= 0 {
			return RayHit{}, false
		}
		t += sep.Div(dl)
		if t > maxT {
			return RayHit{}, false
		}
	}
	return RayHit{}, false
}
