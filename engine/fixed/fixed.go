// Package fixed implements the deterministic Q32.32 fixed-point arithmetic used by every
// simulation-affecting computation.
//
// Nothing in this package consults the floating point unit for values that end up in
// simulation state. Float64 conversion exists only for log formatting.
package fixed

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/pkg/errors"
)

// Q32.32 layout
const (
	FracBits = 32
	fracMask = 1<<FracBits - 1
)

// Fixed is a signed Q32.32 fixed-point number
type Fixed int64

// Common values
const (
	Zero    Fixed = 0
	One     Fixed = 1 << FracBits
	Half    Fixed = One >> 1
	Two     Fixed = One << 1
	Epsilon Fixed = 1 // smallest positive value

	MaxValue Fixed = math.MaxInt64
	MinValue Fixed = math.MinInt64

	Pi     Fixed = 13493037705
	TwoPi  Fixed = 26986075409
	HalfPi Fixed = 6746518852
)

var (
	errParseEmpty  = errors.New("fixed: empty string")
	errParseSyntax = errors.New("fixed: invalid syntax")
	errParseRange  = errors.New("fixed: value out of range")
)

// FromInt converts an integer to Fixed
func FromInt(i int64) Fixed {
	return Fixed(i << FracBits)
}

// FromRaw wraps a raw Q32.32 bit pattern
func FromRaw(raw int64) Fixed {
	return Fixed(raw)
}

// FromRatio returns num/den computed with integer division only.
// Both num and den must fit in 31 bits.
func FromRatio(num, den int64) Fixed {
	return FromInt(num).Div(FromInt(den))
}

// Parse parses a decimal string such as "-9.81" into Fixed without touching float.
func Parse(s string) (Fixed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errParseEmpty
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}
	intPart, fracPart := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, errParseSyntax
	}

	var ip int64
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return 0, errors.Wrapf(errParseSyntax, "%q", s)
		}
		ip = ip*10 + int64(c-'0')
		if ip > math.MaxInt32 {
			return 0, errors.Wrapf(errParseRange, "%q", s)
		}
	}

	// fraction: accumulate up to 18 decimal digits, then scale into 32 fractional bits
	var num, den uint64 = 0, 1
	for i, c := range fracPart {
		if c < '0' || c > '9' {
			return 0, errors.Wrapf(errParseSyntax, "%q", s)
		}
		if i >= 18 {
			continue
		}
		num = num*10 + uint64(c-'0')
		den *= 10
	}
	hi, lo := bits.Mul64(num, 1<<FracBits)
	frac, rem := bits.Div64(hi, lo, den)
	if rem*2 >= den {
		frac++
	}

	v := Fixed(ip<<FracBits) + Fixed(frac)
	if neg {
		v = -v
	}
	return v, nil
}

// MustParse is like Parse but panics on error; used for package-level constants.
func MustParse(s string) Fixed {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Raw returns the raw bit pattern
func (a Fixed) Raw() int64 {
	return int64(a)
}

// Int truncates toward negative infinity
func (a Fixed) Int() int64 {
	return int64(a) >> FracBits
}

// Float64 is for logs and debug output only.
func (a Fixed) Float64() float64 {
	return float64(a) / float64(One)
}

func (a Fixed) String() string {
	neg := a < 0
	u := uint64(a)
	if neg {
		u = uint64(-a)
	}
	ip := u >> FracBits
	// 6 decimal digits, rounded
	hi, lo := bits.Mul64(u&fracMask, 1000000)
	fp, _ := bits.Div64(hi, lo, 1<<FracBits)
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%06d", sign, ip, fp)
}

// Add returns a+b
func (a Fixed) Add(b Fixed) Fixed { return a + b }

// Sub returns a-b
func (a Fixed) Sub(b Fixed) Fixed { return a - b }

// Neg returns -a
func (a Fixed) Neg() Fixed { return -a }

// Mul returns a*b using a 128-bit intermediate, saturating on overflow
func (a Fixed) Mul(b Fixed) Fixed {
	if a == 0 || b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}

	hi, lo := bits.Mul64(ua, ub)
	// Q64.64 -> Q32.32
	if hi>>(FracBits-1) != 0 {
		if negative {
			return MinValue
		}
		return MaxValue
	}
	result := Fixed((hi << (64 - FracBits)) | (lo >> FracBits))
	if negative {
		return -result
	}
	return result
}

// Div returns a/b, 0 if b is 0, saturating on overflow
func (a Fixed) Div(b Fixed) Fixed {
	if b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}

	hi := ua >> (64 - FracBits)
	lo := ua << FracBits
	if hi >= ub {
		if negative {
			return MinValue
		}
		return MaxValue
	}

	quo, _ := bits.Div64(hi, lo, ub)
	if quo > math.MaxInt64 {
		if negative {
			return MinValue
		}
		return MaxValue
	}
	if negative {
		return -Fixed(quo)
	}
	return Fixed(quo)
}

// MulInt multiplies by a plain integer
func (a Fixed) MulInt(n int64) Fixed {
	return a * Fixed(n)
}

// DivInt divides by a plain integer, truncating toward zero
func (a Fixed) DivInt(n int64) Fixed {
	if n == 0 {
		return 0
	}
	return a / Fixed(n)
}

// MulDiv computes a*b/c with a 128-bit intermediate
func MulDiv(a, b, c Fixed) Fixed {
	if c == 0 {
		return 0
	}
	neg := ((a < 0) != (b < 0)) != (c < 0)
	ua, ub, uc := uint64(a), uint64(b), uint64(c)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	if c < 0 {
		uc = uint64(-c)
	}
	hi, lo := bits.Mul64(ua, ub)
	if hi >= uc {
		if neg {
			return MinValue
		}
		return MaxValue
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		q = math.MaxInt64
	}
	if neg {
		return -Fixed(q)
	}
	return Fixed(q)
}

// Abs returns |a|
func (a Fixed) Abs() Fixed {
	if a < 0 {
		return -a
	}
	return a
}

// Sign returns -One, 0 or One
func (a Fixed) Sign() Fixed {
	if a < 0 {
		return -One
	}
	if a > 0 {
		return One
	}
	return 0
}

// Sqrt returns the floor square root; negative inputs return 0
func (a Fixed) Sqrt() Fixed {
	if a <= 0 {
		return 0
	}
	// sqrt(a * 2^32) on the 96-bit value, bit by bit
	hi := uint64(a) >> (64 - FracBits)
	lo := uint64(a) << FracBits
	var r uint64
	for b := 47; b >= 0; b-- {
		c := r | 1<<uint(b)
		h, l := bits.Mul64(c, c)
		if h < hi || (h == hi && l <= lo) {
			r = c
		}
	}
	return Fixed(r)
}

// Floor rounds down to an integer value
func (a Fixed) Floor() Fixed {
	return a &^ fracMask
}

// Ceil rounds up to an integer value
func (a Fixed) Ceil() Fixed {
	f := a.Floor()
	if f != a {
		return f + One
	}
	return f
}

// Min returns the smaller value
func Min(a, b Fixed) Fixed {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger value
func Max(a, b Fixed) Fixed {
	if a > b {
		return a
	}
	return b
}

// Clamp limits v into [lo, hi]
func Clamp(v, lo, hi Fixed) Fixed {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp interpolates between a and b by t in [0, One]
func Lerp(a, b, t Fixed) Fixed {
	return a + (b - a).Mul(t)
}
