package shape

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwphys/engine/fixed"
)

// sqrt(1/2)
const sqrtHalf fixed.Fixed = 3037000500

var fourThirdsPi = fixed.Pi.MulInt(4).DivInt(3)

// Sphere is a point core with the radius as margin
type Sphere struct {
	Radius fixed.Fixed
}

// NewSphere creates a sphere
func NewSphere(radius fixed.Fixed) (*Sphere, error) {
	if radius <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "sphere radius %s", radius)
	}
	return &Sphere{Radius: radius}, nil
}

func (s *Sphere) Kind() Kind { return KindSphere }

func (s *Sphere) LocalSupport(dir fixed.Vec3) fixed.Vec3 { return fixed.Vec3{} }

func (s *Sphere) Margin() fixed.Fixed { return s.Radius }

func (s *Sphere) LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	n := dir.Normalize()
	if n.IsZero() {
		n = fixed.UnitY
	}
	return append(buf, n.Scale(s.Radius))
}

func (s *Sphere) LocalAABB() fixed.AABB {
	r := s.Radius
	return fixed.AABB{Min: fixed.Vec3{X: -r, Y: -r, Z: -r}, Max: fixed.Vec3{X: r, Y: r, Z: r}}
}

func (s *Sphere) Volume() fixed.Fixed {
	r := s.Radius
	return fourThirdsPi.Mul(r).Mul(r).Mul(r)
}

func (s *Sphere) VolumeInertia() fixed.Mat3 {
	i := s.Volume().Mul(s.Radius).Mul(s.Radius).MulInt(2).DivInt(5)
	return fixed.Diagonal(fixed.Vec3{X: i, Y: i, Z: i})
}

func (s *Sphere) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	return raySphere(origin, dir, fixed.Vec3{}, s.Radius, maxT)
}

func raySphere(origin, dir, center fixed.Vec3, r, maxT fixed.Fixed) (RayHit, bool) {
	o := origin.Sub(center)
	c := o.LengthSquared() - r.Mul(r)
	if c <= 0 {
		n := o.Normalize()
		if n.IsZero() {
			n = dir.Negate().Normalize()
		}
		return RayHit{T: 0, Normal: n, Triangle: -1}, true
	}
	b := o.Dot(dir)
	if b >= 0 {
		return RayHit{}, false
	}
	a := dir.LengthSquared()
	disc := b.Mul(b) - a.Mul(c)
	if disc < 0 || a == 0 {
		return RayHit{}, false
	}
	t := (-b - disc.Sqrt()).Div(a)
	if t > maxT {
		return RayHit{}, false
	}
	if t < 0 {
		t = 0
	}
	p := o.Add(dir.Scale(t))
	return RayHit{T: t, Normal: p.Normalize(), Triangle: -1}, true
}

// Box is centered at the local origin
type Box struct {
	HalfExtents fixed.Vec3
}

// NewBox creates a box from half extents
func NewBox(halfExtents fixed.Vec3) (*Box, error) {
	if halfExtents.X <= 0 || halfExtents.Y <= 0 || halfExtents.Z <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "box half extents %s", halfExtents)
	}
	return &Box{HalfExtents: halfExtents}, nil
}

func (b *Box) Kind() Kind { return KindBox }

func (b *Box) Margin() fixed.Fixed { return 0 }

func (b *Box) LocalSupport(dir fixed.Vec3) fixed.Vec3 {
	h := b.HalfExtents
	if dir.X < 0 {
		h.X = -h.X
	}
	if dir.Y < 0 {
		h.Y = -h.Y
	}
	if dir.Z < 0 {
		h.Z = -h.Z
	}
	return h
}

func (b *Box) LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	n := dir.Normalize()
	if n.IsZero() {
		return append(buf, b.LocalSupport(dir))
	}
	a := n.Abs()
	axis := 0
	if a.Y > a.Get(axis) {
		axis = 1
	}
	if a.Z > a.Get(axis) {
		axis = 2
	}
	h := b.HalfExtents
	if a.Get(axis) >= faceCosine {
		j, k := (axis+1)%3, (axis+2)%3
		side := h.Get(axis)
		if n.Get(axis) < 0 {
			side = -side
		}
		hj, hk := h.Get(j), h.Get(k)
		corners := [4][2]fixed.Fixed{{hj, hk}, {-hj, hk}, {-hj, -hk}, {hj, -hk}}
		for _, c := range corners {
			var v fixed.Vec3
			v = v.With(axis, side).With(j, c[0]).With(k, c[1])
			buf = append(buf, v)
		}
		return buf
	}
	// edge when one component is negligible, vertex otherwise
	s := b.LocalSupport(n)
	for i := 0; i < 3; i++ {
		if a.Get(i) < fixed.One-faceCosine {
			return append(buf, s, s.With(i, -s.Get(i)))
		}
	}
	return append(buf, s)
}

func (b *Box) LocalAABB() fixed.AABB {
	return fixed.AABB{Min: b.HalfExtents.Negate(), Max: b.HalfExtents}
}

func (b *Box) Volume() fixed.Fixed {
	h := b.HalfExtents
	return h.X.Mul(h.Y).Mul(h.Z).MulInt(8)
}

func (b *Box) VolumeInertia() fixed.Mat3 {
	return boxInertia(b.HalfExtents, b.Volume())
}

func (b *Box) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	box := b.LocalAABB()
	if box.Contains(origin) {
		return RayHit{T: 0, Normal: dir.Negate().Normalize(), Triangle: -1}, true
	}
	tmin, tmax := fixed.Zero, maxT
	var normal fixed.Vec3
	for i := 0; i < 3; i++ {
		o, d := origin.Get(i), dir.Get(i)
		lo, hi := box.Min.Get(i), box.Max.Get(i)
		if d == 0 {
			if o < lo || o > hi {
				return RayHit{}, false
			}
			continue
		}
		t1, t2 := (lo-o).Div(d), (hi-o).Div(d)
		sign := -fixed.One
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = fixed.One
		}
		if t1 > tmin {
			tmin = t1
			normal = fixed.Vec3{}.With(i, sign)
		}
		tmax = fixed.Min(tmax, t2)
		if tmin > tmax {
			return RayHit{}, false
		}
	}
	return RayHit{T: tmin, Normal: normal, Triangle: -1}, true
}

// Capsule is a segment along local Y with the radius as margin
type Capsule struct {
	HalfLength fixed.Fixed
	Radius     fixed.Fixed
}

// NewCapsule creates a capsule
func NewCapsule(halfLength, radius fixed.Fixed) (*Capsule, error) {
	if halfLength <= 0 || radius <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "capsule half length %s radius %s", halfLength, radius)
	}
	return &Capsule{HalfLength: halfLength, Radius: radius}, nil
}

func (c *Capsule) Kind() Kind { return KindCapsule }

func (c *Capsule) Margin() fixed.Fixed { return c.Radius }

func (c *Capsule) LocalSupport(dir fixed.Vec3) fixed.Vec3 {
	if dir.Y < 0 {
		return fixed.Vec3{Y: -c.HalfLength}
	}
	return fixed.Vec3{Y: c.HalfLength}
}

func (c *Capsule) LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	n := dir.Normalize()
	if n.IsZero() {
		n = fixed.UnitY
	}
	off := n.Scale(c.Radius)
	if n.Y.Abs() <= fixed.One-faceCosine {
		return append(buf, fixed.Vec3{Y: c.HalfLength}.Add(off), fixed.Vec3{Y: -c.HalfLength}.Add(off))
	}
	return append(buf, c.LocalSupport(n).Add(off))
}

func (c *Capsule) LocalAABB() fixed.AABB {
	r, h := c.Radius, c.HalfLength
	return fixed.AABB{Min: fixed.Vec3{X: -r, Y: -h - r, Z: -r}, Max: fixed.Vec3{X: r, Y: h + r, Z: r}}
}

func (c *Capsule) cylinderVolume() fixed.Fixed {
	return fixed.Pi.Mul(c.Radius).Mul(c.Radius).Mul(c.HalfLength).MulInt(2)
}

func (c *Capsule) sphereVolume() fixed.Fixed {
	r := c.Radius
	return fourThirdsPi.Mul(r).Mul(r).Mul(r)
}

func (c *Capsule) Volume() fixed.Fixed {
	return c.cylinderVolume() + c.sphereVolume()
}

func (c *Capsule) VolumeInertia() fixed.Mat3 {
	mc, ms := c.cylinderVolume(), c.sphereVolume()
	r2 := c.Radius.Mul(c.Radius)
	hl := c.HalfLength
	iy := mc.Mul(r2).DivInt(2) + ms.Mul(r2).MulInt(2).DivInt(5)
	// hemispheres shifted to the segment ends
	ix := mc.Mul(hl.Mul(hl).DivInt(3)+r2.DivInt(4)) +
		ms.Mul(r2.MulInt(2).DivInt(5)+hl.Mul(hl)+hl.Mul(c.Radius).MulInt(3).DivInt(4))
	return fixed.Diagonal(fixed.Vec3{X: ix, Y: iy, Z: ix})
}

func (c *Capsule) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	best := RayHit{T: fixed.MaxValue, Triangle: -1}
	found := false
	if hit, ok := raySideCylinder(origin, dir, c.Radius, c.HalfLength, maxT); ok {
		best, found = hit, true
	}
	for _, y := range [2]fixed.Fixed{c.HalfLength, -c.HalfLength} {
		if hit, ok := raySphere(origin, dir, fixed.Vec3{Y: y}, c.Radius, maxT); ok && hit.T < best.T {
			best, found = hit, true
		}
	}
	return best, found
}

// raySideCylinder hits the curved side of a Y aligned cylinder with |y| <= h
func raySideCylinder(origin, dir fixed.Vec3, r, h, maxT fixed.Fixed) (RayHit, bool) {
	a := dir.X.Mul(dir.X) + dir.Z.Mul(dir.Z)
	if a == 0 {
		return RayHit{}, false
	}
	b := origin.X.Mul(dir.X) + origin.Z.Mul(dir.Z)
	c := origin.X.Mul(origin.X) + origin.Z.Mul(origin.Z) - r.Mul(r)
	if c <= 0 && origin.Y.Abs() <= h {
		return RayHit{T: 0, Normal: dir.Negate().Normalize(), Triangle: -1}, true
	}
	if c > 0 && b >= 0 {
		return RayHit{}, false
	}
	disc := b.Mul(b) - a.Mul(c)
	if disc < 0 {
		return RayHit{}, false
	}
	t := (-b - disc.Sqrt()).Div(a)
	if t < 0 || t > maxT {
		return RayHit{}, false
	}
	p := origin.Add(dir.Scale(t))
	if p.Y.Abs() > h {
		return RayHit{}, false
	}
	return RayHit{T: t, Normal: fixed.Vec3{X: p.X, Z: p.Z}.Normalize(), Triangle: -1}, true
}

// Cylinder is aligned with local Y
type Cylinder struct {
	HalfHeight fixed.Fixed
	Radius     fixed.Fixed
}

// NewCylinder creates a cylinder
func NewCylinder(halfHeight, radius fixed.Fixed) (*Cylinder, error) {
	if halfHeight <= 0 || radius <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "cylinder half height %s radius %s", halfHeight, radius)
	}
	return &Cylinder{HalfHeight: halfHeight, Radius: radius}, nil
}

func (c *Cylinder) Kind() Kind { return KindCylinder }

func (c *Cylinder) Margin() fixed.Fixed { return 0 }

func (c *Cylinder) LocalSupport(dir fixed.Vec3) fixed.Vec3 {
	horiz := fixed.Vec3{X: dir.X, Z: dir.Z}.Normalize().Scale(c.Radius)
	if dir.Y < 0 {
		horiz.Y = -c.HalfHeight
	} else {
		horiz.Y = c.HalfHeight
	}
	return horiz
}

func (c *Cylinder) LocalFeature(dir fixed.Vec3, buf []fixed.Vec3) []fixed.Vec3 {
	n := dir.Normalize()
	if n.IsZero() {
		n = fixed.UnitY
	}
	if n.Y.Abs() >= faceCosine {
		y := c.HalfHeight
		if n.Y < 0 {
			y = -y
		}
		r, d := c.Radius, c.Radius.Mul(sqrtHalf)
		rim := [8][2]fixed.Fixed{{r, 0}, {d, d}, {0, r}, {-d, d}, {-r, 0}, {-d, -d}, {0, -r}, {d, -d}}
		for _, p := range rim {
			buf = append(buf, fixed.Vec3{X: p[0], Y: y, Z: p[1]})
		}
		return buf
	}
	s := c.LocalSupport(n)
	if n.Y.Abs() <= fixed.One-faceCosine {
		return append(buf, s.With(1, c.HalfHeight), s.With(1, -c.HalfHeight))
	}
	return append(buf, s)
}

func (c *Cylinder) LocalAABB() fixed.AABB {
	r, h := c.Radius, c.HalfHeight
	return fixed.AABB{Min: fixed.Vec3{X: -r, Y: -h, Z: -r}, Max: fixed.Vec3{X: r, Y: h, Z: r}}
}

func (c *Cylinder) Volume() fixed.Fixed {
	return fixed.Pi.Mul(c.Radius).Mul(c.Radius).Mul(c.HalfHeight).MulInt(2)
}

func (c *Cylinder) VolumeInertia() fixed.Mat3 {
	v := c.Volume()
	r2 := c.Radius.Mul(c.Radius)
	h2 := c.HalfHeight.Mul(c.HalfHeight)
	iy := v.Mul(r2).DivInt(2)
	ix := v.Mul(r2.MulInt(3) + h2.MulInt(4)).DivInt(12)
	return fixed.Diagonal(fixed.Vec3{X: ix, Y: iy, Z: ix})
}

func (c *Cylinder) RayCastLocal(origin, dir fixed.Vec3, maxT fixed.Fixed) (RayHit, bool) {
	best := RayHit{T: fixed.MaxValue, Triangle: -1}
	found := false
	if hit, ok := raySideCylinder(origin, dir, c.Radius, c.HalfHeight, maxT); ok {
		best, found = hit, true
	}
	if dir.Y != 0 {
		r2 := c.Radius.Mul(c.Radius)
		for _, y := range [2]fixed.Fixed{c.HalfHeight, -c.HalfHeight} {
			t := (y - origin.Y).Div(dir.Y)
			if t < 0 || t > maxT || t >= best.T {
				continue
			}
			p := origin.Add(dir.Scale(t))
			if p.X.Mul(p.X)+p.Z.Mul(p.Z) > r2 {
				continue
			}
			// only the cap facing the ray
			if (y > 0) == (dir.Y < 0) {
				best, found = RayHit{T: t, Normal: fixed.Vec3{Y: y.Sign()}, Triangle: -1}, true
			}
		}
	}
	return best, found
}
