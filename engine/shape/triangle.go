package shape

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// Sidedness selects which faces of a triangle collide
type Sidedness int

const (
	// CounterClockwise triangles face toward (B-A)x(C-A)
	CounterClockwise Sidedness = iota
	// Clockwise triangles face away from (B-A)x(C-A)
	Clockwise
	// DoubleSided triangles collide from both sides
	DoubleSided
)

// Triangle is a one or two sided triangle
type Triangle struct {
	A, B, C   fixed.Vec3
	Sidedness Sidedness
	normal    fixed.Vec3
}

// NewTriangle creates a triangle; zero area fails
func NewTriangle(a, b, c fixed.Vec3, sidedness Sidedness) (*Triangle, error) {
	t := &Triangle{A: a, B: b, C: c, Sidedness: sidedness}
	if t.init() {
		return t, nil
	}
	return nil, errors.Wrapf(ErrDegenerateTriangle, "%s %s %s", a, b, c)
}

func (t *Triangle) init() bool {
	t.normal = t.B.Sub(t.A).Cross(t.C.Sub(t.A)).Normalize()
	return !t.normal.IsZero()
}

// Normal returns the unit normal of the collidable face; for DoubleSided it is the
// counter clockwise one.
func (t *Triangle) Normal() fixed.Vec3 {
	if t.Sidedness == Clockwise {
		return t.normal.Negate()
	}
	return t.normal
}

// Accepts reports whether a contact normal pointing from a body toward this triangle
// is allowed by the sidedness.
func (t *Triangle) Accepts(normalTowardTriangle fixed.Vec3) bool {
	if t.Sidedness == DoubleSided {
		return true
	}
	return normalTowardTriangle.Dot(t.Normal()) <= 0
}

func (t *Triangle) Kind() Kind { return KindTriangle }

func (t *Triangle) Margin() fixed.Fixed { return 0 }

func (t *Triangle) LocalSupport(dir fixed.Vec3) fixed.Vec3 {
	best, bestD := t.A, t.A.Dot(dir)
	if d := t.B.Dot(dir); d > bestD {
		best, bestD = t.B, d
	}
	if d := t.C.Dot(dir); d > bestD {
		best = t.C
	}
	return best
}

func (t *Triangle) LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	n := dir.Normalize()
	if n.Dot(t.normal).Abs() >= faceCosine {
		return append(buf, t.A, t.B, t.C)
	}
	maxD := t.LocalSupport(n).Dot(n)
	for _, v := range [3]fixed.Vec3{t.A, t.B, t.C} {
		if v.Dot(n) >= maxD-featureTolerance {
			buf = append(buf, v)
		}
	}
	return buf
}

func (t *Triangle) LocalAABB() fixed.AABB {
	return fixed.AABB{
		Min: fixed.MinVec3(t.A, fixed.MinVec3(t.B, t.C)),
		Max: fixed.MaxVec3(t.A, fixed.MaxVec3(t.B, t.C)),
	}
}

func (t *Triangle) Volume() fixed.Fixed { return 0 }

func (t *Triangle) VolumeInertia() fixed.Mat3 { return fixed.Mat3{} }

// RayCastLocal intersects the ray with the collidable side(s) of the triangle
func (t *Triangle) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	e1, e2 := t.B.Sub(t.A), t.C.Sub(t.A)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det == 0 {
		return RayHit{}, false
	}
	// det == -dir.(e1 x e2): positive when the ray hits the ccw front
	switch t.Sidedness {
	case CounterClockwise:
		if det < 0 {
			return RayHit{}, false
		}
	case Clockwise:
		if det > 0 {
			return RayHit{}, false
		}
	}
	s := origin.Sub(t.A)
	u := s.Dot(p).Div(det)
	if u < 0 || u > fixed.One {
		return RayHit{}, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q).Div(det)
	if v < 0 || u+v > fixed.One {
		return RayHit{}, false
	}
	tt := e2.Dot(q).Div(det)
	if tt < 0 || tt > maxT {
		return RayHit{}, false
	}
	n := t.normal
	if n.Dot(dir) > 0 {
		n = n.Negate()
	}
	return RayHit{T: tt, Normal: n, Triangle: -1}, true
}
