package fixed

// Mat3 is a row-major 3x3 matrix; vectors are treated as columns
type Mat3 struct {
	M [3][3]Fixed
}

// Mat3Identity returns the identity matrix
func Mat3Identity() Mat3 {
	return Diagonal(Vec3{One, One, One})
}

// Diagonal builds a diagonal matrix
func Diagonal(d Vec3) Mat3 {
	var m Mat3
	m.M[0][0], m.M[1][1], m.M[2][2] = d.X, d.Y, d.Z
	return m
}

// SkewSymmetric returns the matrix S such that S*v == a.Cross(v)
func SkewSymmetric(a Vec3) Mat3 {
	return Mat3{M: [3][3]Fixed{
		{0, -a.Z, a.Y},
		{a.Z, 0, -a.X},
		{-a.Y, a.X, 0},
	}}
}

// FromQuat builds the rotation matrix of a unit quaternion
func FromQuat(q Quat) Mat3 {
	xx, yy, zz := q.X.Mul(q.X), q.Y.Mul(q.Y), q.Z.Mul(q.Z)
	xy, xz, yz := q.X.Mul(q.Y), q.X.Mul(q.Z), q.Y.Mul(q.Z)
	wx, wy, wz := q.W.Mul(q.X), q.W.Mul(q.Y), q.W.Mul(q.Z)
	return Mat3{M: [3][3]Fixed{
		{One - (yy+zz).MulInt(2), (xy - wz).MulInt(2), (xz + wy).MulInt(2)},
		{(xy + wz).MulInt(2), One - (xx+zz).MulInt(2), (yz - wx).MulInt(2)},
		{(xz - wy).MulInt(2), (yz + wx).MulInt(2), One - (xx+yy).MulInt(2)},
	}}
}

// Row returns row i as a vector
func (m Mat3) Row(i int) Vec3 {
	return Vec3{m.M[i][0], m.M[i][1], m.M[i][2]}
}

// Col returns column j as a vector
func (m Mat3) Col(j int) Vec3 {
	return Vec3{m.M[0][j], m.M[1][j], m.M[2][j]}
}

// MulVec returns m*v
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{m.Row(0).Dot(v), m.Row(1).Dot(v), m.Row(2).Dot(v)}
}

// Mul returns m*o
func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		row := m.Row(i)
		for j := 0; j < 3; j++ {
			r.M[i][j] = row.Dot(o.Col(j))
		}
	}
	return r
}

// Transpose returns m^T
func (m Mat3) Transpose() Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.M[i][j] = m.M[j][i]
		}
	}
	return r
}

// Add returns m+o
func (m Mat3) Add(o Mat3) Mat3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.M[i][j] += o.M[i][j]
		}
	}
	return m
}

// Sub returns m-o
func (m Mat3) Sub(o Mat3) Mat3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.M[i][j] -= o.M[i][j]
		}
	}
	return m
}

// Scale multiplies every element by s
func (m Mat3) Scale(s Fixed) Mat3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.M[i][j] = m.M[i][j].Mul(s)
		}
	}
	return m
}

// Determinant of m
func (m Mat3) Determinant() Fixed {
	return m.Row(0).Dot(m.Row(1).Cross(m.Row(2)))
}

// Inverse returns m^-1, or the zero matrix if m is singular
func (m Mat3) Inverse() Mat3 {
	det := m.Determinant()
	if det == 0 {
		return Mat3{}
	}
	r0, r1, r2 := m.Row(0), m.Row(1), m.Row(2)
	// columns of the inverse are the cross products of the rows
	c0, c1, c2 := r1.Cross(r2), r2.Cross(r0), r0.Cross(r1)
	return Mat3{M: [3][3]Fixed{
		{c0.X.Div(det), c1.X.Div(det), c2.X.Div(det)},
		{c0.Y.Div(det), c1.Y.Div(det), c2.Y.Div(det)},
		{c0.Z.Div(det), c1.Z.Div(det), c2.Z.Div(det)},
	}}
}

// RotateInertia returns R * m * R^T
func (m Mat3) RotateInertia(r Mat3) Mat3 {
	return r.Mul(m).Mul(r.Transpose())
}
