package fixed

import "fmt"

// Quat is a rotation quaternion
type Quat struct {
	X, Y, Z, W Fixed
}

// QuatIdentity is the no-rotation quaternion
var QuatIdentity = Quat{0, 0, 0, One}

func (q Quat) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", q.X, q.Y, q.Z, q.W)
}

// FromAxisAngle builds a rotation of angle radians around a unit axis
func FromAxisAngle(axis Vec3, angle Fixed) Quat {
	half := angle.DivInt(2)
	s, c := SinCos(half)
	return Quat{axis.X.Mul(s), axis.Y.Mul(s), axis.Z.Mul(s), c}
}

// Mul returns q*o (apply o, then q)
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W.Mul(o.X) + q.X.Mul(o.W) + q.Y.Mul(o.Z) - q.Z.Mul(o.Y),
		Y: q.W.Mul(o.Y) - q.X.Mul(o.Z) + q.Y.Mul(o.W) + q.Z.Mul(o.X),
		Z: q.W.Mul(o.Z) + q.X.Mul(o.Y) - q.Y.Mul(o.X) + q.Z.Mul(o.W),
		W: q.W.Mul(o.W) - q.X.Mul(o.X) - q.Y.Mul(o.Y) - q.Z.Mul(o.Z),
	}
}

// Conjugate returns the inverse of a unit quaternion
func (q Quat) Conjugate() Quat {
	return Quat{-q.X, -q.Y, -q.Z, q.W}
}

// Dot of two quaternions
func (q Quat) Dot(o Quat) Fixed {
	return q.X.Mul(o.X) + q.Y.Mul(o.Y) + q.Z.Mul(o.Z) + q.W.Mul(o.W)
}

// LengthSquared of the quaternion
func (q Quat) LengthSquared() Fixed {
	return q.Dot(q)
}

// Normalize returns a unit quaternion; a zero quaternion becomes identity
func (q Quat) Normalize() Quat {
	l := q.LengthSquared().Sqrt()
	if l == 0 {
		return QuatIdentity
	}
	return Quat{q.X.Div(l), q.Y.Div(l), q.Z.Div(l), q.W.Div(l)}
}

// Rotate applies the rotation to v
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(Two)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// InverseRotate applies the inverse rotation to v
func (q Quat) InverseRotate(v Vec3) Vec3 {
	return q.Conjugate().Rotate(v)
}

// AddScaledAngularVelocity integrates q by angular velocity w over dt and renormalizes.
// q' = q + dt/2 * (w, 0) * q
func (q Quat) AddScaledAngularVelocity(w Vec3, dt Fixed) Quat {
	h := dt.DivInt(2)
	wx, wy, wz := w.X.Mul(h), w.Y.Mul(h), w.Z.Mul(h)
	d := Quat{
		X: wx.Mul(q.W) + wy.Mul(q.Z) - wz.Mul(q.Y),
		Y: wy.Mul(q.W) + wz.Mul(q.X) - wx.Mul(q.Z),
		Z: wz.Mul(q.W) + wx.Mul(q.Y) - wy.Mul(q.X),
		W: -(wx.Mul(q.X) + wy.Mul(q.Y) + wz.Mul(q.Z)),
	}
	return Quat{q.X + d.X, q.Y + d.Y, q.Z + d.Z, q.W + d.W}.Normalize()
}

// AxisAngle decomposes the quaternion into a unit axis and an angle in [-Pi, Pi]
func (q Quat) AxisAngle() (Vec3, Fixed) {
	if q.W < 0 {
		q = Quat{-q.X, -q.Y, -q.Z, -q.W}
	}
	v := Vec3{q.X, q.Y, q.Z}
	axis, s := v.NormalizeLen()
	if s == 0 {
		return UnitY, 0
	}
	angle := Atan2(s, q.W).MulInt(2)
	return axis, WrapAngle(angle)
}

// RotationBetween returns the shortest rotation taking unit vector a onto unit vector b
func RotationBetween(a, b Vec3) Quat {
	d := a.Dot(b)
	if d <= -One+Epsilon*1024 {
		p := Perpendicular(a)
		return Quat{p.X, p.Y, p.Z, 0}
	}
	c := a.Cross(b)
	return Quat{c.X, c.Y, c.Z, One + d}.Normalize()
}
