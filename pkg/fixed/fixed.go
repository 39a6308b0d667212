// Package fixed implements the signed Q8.8 fixed-point scalar shared by every
// stage of the pipeline. Arithmetic wraps at 16 bits the same way the
// hardware datapath does; nothing here saturates.
package fixed

import "strconv"

const (
	FracBits = 8
	Scale    = 1 << FracBits // 256
)

// Point is a 16-bit signed value representing Raw/256.
// The zero value is 0.0.
type Point struct {
	raw int16
}

// Zero is the additive identity.
var Zero = Point{}

// One is 1.0 (raw 256).
var One = Point{raw: Scale}

// FromRaw wraps an existing raw representation.
func FromRaw(raw int16) Point { return Point{raw: raw} }

// FromFloat converts a real number by scaling by 256 and truncating toward
// zero. Values outside [-128, 128) wrap modulo 2^16.
func FromFloat(v float64) Point {
	return Point{raw: int16(int64(v * Scale))}
}

// Raw returns the underlying 16-bit representation.
func (p Point) Raw() int16 { return p.raw }

// Float widens the value to a float64. The conversion is exact.
func (p Point) Float() float64 { return float64(p.raw) / Scale }

// Add returns p+o truncated to 16 bits.
func (p Point) Add(o Point) Point { return Point{raw: p.raw + o.raw} }

// Sub returns p-o truncated to 16 bits.
func (p Point) Sub(o Point) Point { return Point{raw: p.raw - o.raw} }

// Mul widens both operands to 32 bits, multiplies, shifts right by FracBits
// (arithmetic, so it rounds toward negative infinity) and truncates back to
// 16 bits.
func (p Point) Mul(o Point) Point {
	prod := int32(p.raw) * int32(o.raw)
	return Point{raw: int16(prod >> FracBits)}
}

// Gt reports p > o on the signed raw values.
func (p Point) Gt(o Point) bool { return p.raw > o.raw }

// Lt reports p < o on the signed raw values.
func (p Point) Lt(o Point) bool { return p.raw < o.raw }

// ReLU returns p if its raw value is strictly positive, else Zero.
func ReLU(p Point) Point {
	if p.raw > 0 {
		return p
	}
	return Zero
}

func (p Point) String() string {
	return strconv.FormatFloat(p.Float(), 'f', -1, 64)
}
