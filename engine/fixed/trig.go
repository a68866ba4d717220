package fixed

// Polynomial approximations on reduced ranges. Coefficients are built from integer
// ratios so the tables are identical on every platform.

// sin terms up to x^13
const sinTerms = 6

var (
	// 1/3, 1/5, ... 1/15
	atanCoeffs = [...]Fixed{
		FromRatio(1, 3),
		FromRatio(1, 5),
		FromRatio(1, 7),
		FromRatio(1, 9),
		FromRatio(1, 11),
		FromRatio(1, 13),
		FromRatio(1, 15),
	}

	sixthPi     Fixed = 2248839617
	invSqrt3    Fixed = 2479700525
	tanPiOver12 Fixed = 1150833018
)

// WrapAngle maps an angle into [-Pi, Pi]
func WrapAngle(a Fixed) Fixed {
	a = a % TwoPi
	if a > Pi {
		a -= TwoPi
	} else if a < -Pi {
		a += TwoPi
	}
	return a
}

// Sin returns the sine of a radian angle
func Sin(a Fixed) Fixed {
	a = WrapAngle(a)
	// fold into [-Pi/2, Pi/2]
	if a > HalfPi {
		a = Pi - a
	} else if a < -HalfPi {
		a = -Pi - a
	}
	x2 := a.Mul(a)
	// x * (1 - x^2/(2*3) * (1 - x^2/(4*5) * (1 - ...)))
	acc := One
	for k := int64(sinTerms); k >= 1; k-- {
		acc = One - x2.Mul(acc).DivInt((2*k)*(2*k+1))
	}
	return a.Mul(acc)
}

// Cos returns the cosine of a radian angle
func Cos(a Fixed) Fixed {
	return Sin(WrapAngle(a) + HalfPi)
}

// SinCos returns both sine and cosine
func SinCos(a Fixed) (sin, cos Fixed) {
	return Sin(a), Cos(a)
}

func atanSmall(x Fixed) Fixed {
	x2 := x.Mul(x)
	var acc Fixed
	for i := len(atanCoeffs) - 1; i >= 0; i-- {
		c := atanCoeffs[i]
		if i%2 == 0 {
			c = -c
		}
		acc = (acc + c).Mul(x2)
	}
	return x + acc.Mul(x)
}

// Atan returns the arc tangent in [-Pi/2, Pi/2]
func Atan(x Fixed) Fixed {
	neg := x < 0
	if neg {
		x = -x
	}
	var r Fixed
	invert := x > One
	if invert {
		x = One.Div(x)
	}
	if x > tanPiOver12 {
		// atan(x) = Pi/6 + atan((x - 1/sqrt3) / (1 + x/sqrt3))
		r = sixthPi + atanSmall((x-invSqrt3).Div(One+x.Mul(invSqrt3)))
	} else {
		r = atanSmall(x)
	}
	if invert {
		r = HalfPi - r
	}
	if neg {
		return -r
	}
	return r
}

// Atan2 returns the angle of (x, y) in [-Pi, Pi]
func Atan2(y, x Fixed) Fixed {
	if x == 0 {
		if y > 0 {
			return HalfPi
		}
		if y < 0 {
			return -HalfPi
		}
		return 0
	}
	var r Fixed
	if y.Abs() <= x.Abs() {
		r = Atan(y.Div(x))
	} else {
		r = HalfPi - Atan(x.Div(y))
		if y < 0 {
			r -= Pi
		}
		return WrapAngle(r)
	}
	if x < 0 {
		if y >= 0 {
			r += Pi
		} else {
			r -= Pi
		}
	}
	return r
}

// Asin returns the arc sine, input clamped to [-1, 1]
func Asin(x Fixed) Fixed {
	x = Clamp(x, -One, One)
	return Atan2(x, (One - x.Mul(x)).Sqrt())
}

// Acos returns the arc cosine, input clamped to [-1, 1]
func Acos(x Fixed) Fixed {
	x = Clamp(x, -One, One)
	return Atan2((One - x.Mul(x)).Sqrt(), x)
}
