package alu

import (
	"math"

	"github.com/sarchlab/smtsim/insts"
)

// CanonicalNaN is the single NaN pattern produced by float operations.
const CanonicalNaN uint32 = 0x7FFFFFFF

// reciprocalMask keeps the sign, exponent and six mantissa bits.
const reciprocalMask uint32 = 0xFFFE0000

func toFloat(v uint32) float32 {
	return math.Float32frombits(v)
}

// IsNaN reports whether the bit pattern encodes a NaN.
func IsNaN(v uint32) bool {
	return v>>23&0xFF == 0xFF && v&0x7FFFFF != 0
}

// fromFloat converts a result back to bits, folding every NaN payload into
// CanonicalNaN.
func fromFloat(f float32) uint32 {
	v := math.Float32bits(f)
	if IsNaN(v) {
		return CanonicalNaN
	}
	return v
}

// FAdd adds two single precision values.
func FAdd(a, b uint32) uint32 {
	return fromFloat(toFloat(a) + toFloat(b))
}

// FSub subtracts b from a.
func FSub(a, b uint32) uint32 {
	return fromFloat(toFloat(a) - toFloat(b))
}

// FMul multiplies two single precision values.
func FMul(a, b uint32) uint32 {
	return fromFloat(toFloat(a) * toFloat(b))
}

// Reciprocal returns a low-precision estimate of 1/b, accurate to six
// mantissa bits. Software refines it with Newton-Raphson steps. A zero
// input yields an infinity of the same sign.
func Reciprocal(b uint32) uint32 {
	result := fromFloat(1.0 / toFloat(b&reciprocalMask))
	if !IsNaN(result) {
		result &= reciprocalMask
	}
	return result
}

// IToF converts a signed integer to single precision, rounding to nearest.
func IToF(b uint32) uint32 {
	return math.Float32bits(float32(int32(b)))
}

// FToI converts single precision to a signed integer, truncating toward
// zero. Magnitudes below one produce 0. NaN, infinities and values outside
// the int32 range produce 0x80000000.
func FToI(b uint32) uint32 {
	exponent := int(b>>23&0xFF) - 127
	if b>>23&0xFF == 0xFF {
		return 0x80000000
	}
	if exponent < 0 {
		return 0
	}
	if exponent >= 31 {
		return 0x80000000
	}

	significand := b&0x7FFFFF | 0x800000
	var magnitude uint32
	if exponent >= 23 {
		magnitude = significand << uint(exponent-23)
	} else {
		magnitude = significand >> uint(23-exponent)
	}

	if b&0x80000000 != 0 {
		return -magnitude
	}
	return magnitude
}

// FCompare evaluates a floating point compare. Every compare involving a
// NaN operand is false, including not-equal.
func FCompare(op insts.Op, a, b uint32) bool {
	if IsNaN(a) || IsNaN(b) {
		return false
	}

	fa, fb := toFloat(a), toFloat(b)
	switch op {
	case insts.OpCmpGtF:
		return fa > fb
	case insts.OpCmpGeF:
		return fa >= fb
	case insts.OpCmpLtF:
		return fa < fb
	case insts.OpCmpLeF:
		return fa <= fb
	case insts.OpCmpEqF:
		return fa == fb
	case insts.OpCmpNeF:
		return fa != fb
	}
	return false
}
