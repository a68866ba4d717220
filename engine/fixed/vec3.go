package fixed

import "fmt"

// Vec3 is a 3D vector of fixed-point components
type Vec3 struct {
	X, Y, Z Fixed
}

// Axis vectors
var (
	Vec3Zero = Vec3{}
	UnitX    = Vec3{One, 0, 0}
	UnitY    = Vec3{0, One, 0}
	UnitZ    = Vec3{0, 0, One}
)

// V3 builds a Vec3 from fixed components
func V3(x, y, z Fixed) Vec3 {
	return Vec3{x, y, z}
}

// V3i builds a Vec3 from integers
func V3i(x, y, z int64) Vec3 {
	return Vec3{FromInt(x), FromInt(y), FromInt(z)}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%s, %s, %s)", v.X, v.Y, v.Z)
}

// Add returns v+o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v-o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v*s
func (v Vec3) Scale(s Fixed) Vec3 {
	return Vec3{v.X.Mul(s), v.Y.Mul(s), v.Z.Mul(s)}
}

// DivScalar returns v/s
func (v Vec3) DivScalar(s Fixed) Vec3 {
	return Vec3{v.X.Div(s), v.Y.Div(s), v.Z.Div(s)}
}

// MulComponents multiplies component-wise
func (v Vec3) MulComponents(o Vec3) Vec3 {
	return Vec3{v.X.Mul(o.X), v.Y.Mul(o.Y), v.Z.Mul(o.Z)}
}

// Negate returns -v
func (v Vec3) Negate() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

// Dot product
func (v Vec3) Dot(o Vec3) Fixed {
	return v.X.Mul(o.X) + v.Y.Mul(o.Y) + v.Z.Mul(o.Z)
}

// Cross product
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y.Mul(o.Z) - v.Z.Mul(o.Y),
		v.Z.Mul(o.X) - v.X.Mul(o.Z),
		v.X.Mul(o.Y) - v.Y.Mul(o.X),
	}
}

// LengthSquared returns |v|^2
func (v Vec3) LengthSquared() Fixed {
	return v.Dot(v)
}

// squaring stays exact between these bounds on the largest component
var (
	lengthScaleMin = FromRatio(1, 256)
	lengthScaleMax = FromInt(1 << 15)
)

// Length returns |v|. Vectors whose square would saturate or underflow are
// scaled by their largest component first.
func (v Vec3) Length() Fixed {
	a := v.Abs()
	m := Max(a.X, Max(a.Y, a.Z))
	if m == 0 {
		return 0
	}
	if m >= lengthScaleMin && m <= lengthScaleMax {
		return v.LengthSquared().Sqrt()
	}
	return v.DivScalar(m).LengthSquared().Sqrt().Mul(m)
}

// Normalize returns the unit vector of v, or zero for a zero vector
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.DivScalar(l)
}

// NormalizeLen normalizes and also returns the original length
func (v Vec3) NormalizeLen() (Vec3, Fixed) {
	l := v.Length()
	if l == 0 {
		return Vec3{}, 0
	}
	return v.DivScalar(l), l
}

// IsZero reports whether all components are zero
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Get returns the component by index 0..2
func (v Vec3) Get(i int) Fixed {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// With returns v with component i replaced
func (v Vec3) With(i int, val Fixed) Vec3 {
	switch i {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	default:
		v.Z = val
	}
	return v
}

// Abs returns the component-wise absolute value
func (v Vec3) Abs() Vec3 {
	return Vec3{v.X.Abs(), v.Y.Abs(), v.Z.Abs()}
}

// MinVec3 returns the component-wise minimum
func MinVec3(a, b Vec3) Vec3 {
	return Vec3{Min(a.X, b.X), Min(a.Y, b.Y), Min(a.Z, b.Z)}
}

// MaxVec3 returns the component-wise maximum
func MaxVec3(a, b Vec3) Vec3 {
	return Vec3{Max(a.X, b.X), Max(a.Y, b.Y), Max(a.Z, b.Z)}
}

// Distance between two points
func Distance(a, b Vec3) Fixed {
	return a.Sub(b).Length()
}

// Perpendicular returns a unit vector perpendicular to v.
// The axis is chosen from the smallest component of v, so the result only depends on v.
// A zero vector yields UnitX.
func Perpendicular(v Vec3) Vec3 {
	if v.IsZero() {
		return UnitX
	}
	a := v.Abs()
	var axis Vec3
	if a.X <= a.Y && a.X <= a.Z {
		axis = UnitX
	} else if a.Y <= a.Z {
		axis = UnitY
	} else {
		axis = UnitZ
	}
	p := v.Cross(axis).Normalize()
	if p.IsZero() {
		// v too small to survive the cross product
		return axis
	}
	return p
}

// TangentBasis returns two unit vectors orthogonal to n and to each other
func TangentBasis(n Vec3) (t1, t2 Vec3) {
	t1 = Perpendicular(n)
	t2 = n.Cross(t1).Normalize()
	return
}
