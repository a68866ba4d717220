package space

import (
	"github.com/xiaonanln/gwphys/engine/fixed"
	"github.com/xiaonanln/gwphys/engine/narrowphase"
	"github.com/xiaonanln/gwphys/engine/shape"
)

// Hit identifies what a query hit
type Hit struct {
	// Static is set when the hit is on a static mesh or terrain; then Body is zero
	Static   bool
	Body     BodyID
	StaticID StaticID
}

// RayResult is the nearest hit of a ray
type RayResult struct {
	Hit
	T        fixed.Fixed
	Position fixed.Vec3
	Normal   fixed.Vec3
	// Triangle is the triangle index for static hits
	Triangle int
}

// CastResult is the first contact of a convex sweep
type CastResult struct {
	Hit
	narrowphase.CastHit
}

func (s *Space) hitOf(r ref) Hit {
	if r.static {
		return Hit{Static: true, StaticID: StaticID{Index: r.index, Generation: s.statics[r.index].gen}}
	}
	return Hit{Body: BodyID{Index: r.index, Generation: s.bodies[r.index].gen}}
}

// RayCast returns the nearest hit of the ray origin + t*dir for t in [0, maxT]. Equal
// distances resolve to the collidable added first.
func (s *Space) RayCast(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayResult, bool) {
	end := origin.Add(dir.Scale(maxT))
	box := fixed.AABB{Min: fixed.MinVec3(origin, end), Max: fixed.MaxVec3(origin, end)}
	s.ids = s.bp.QueryAABB(box, s.ids[:0])
	best := RayResult{T: fixed.MaxValue}
	found := false
	for _, id := range s.ids {
		r := s.proxies[id]
		hit, ok := narrowphase.RayCast(s.collidable(r), origin, dir, maxT)
		if !ok || hit.T >= best.T {
			continue
		}
		best = RayResult{
			Hit:      s.hitOf(r),
			T:        hit.T,
			Position: origin.Add(dir.Scale(hit.T)),
			Normal:   hit.Normal,
			Triangle: hit.Triangle,
		}
		found = true
	}
	return best, found
}

// ConvexCast sweeps a convex shape from a pose along sweep and returns the first contact.
// Bodies for which skip returns true are ignored; skip may be nil.
func (s *Space) ConvexCast(c shape.Convex, from shape.Transform, sweep fixed.Vec3, skip func(BodyID) bool) (CastResult, bool) {
	lo := shape.WorldAABB(c, from)
	box := lo.Merge(fixed.AABB{Min: lo.Min.Add(sweep), Max: lo.Max.Add(sweep)})
	s.ids = s.bp.QueryAABB(box, s.ids[:0])
	best := CastResult{CastHit: narrowphase.CastHit{T: fixed.MaxValue}}
	found := false
	for _, id := range s.ids {
		r := s.proxies[id]
		h := s.hitOf(r)
		if !h.Static && skip != nil && skip(h.Body) {
			continue
		}
		hit, ok := s.tester.ConvexCast(c, from, sweep, s.collidable(r))
		if !ok || hit.T >= best.T {
			continue
		}
		best = CastResult{Hit: h, CastHit: hit}
		found = true
	}
	return best, found
}
