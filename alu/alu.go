// Package alu provides the pure operand functions behind every arithmetic
// opcode. Operands and results are raw 32-bit patterns; floating point
// values are IEEE-754 single precision bit patterns.
package alu

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/sarchlab/smtsim/insts"
)

// ErrDivideByZero is returned by signed division with a zero divisor.
var ErrDivideByZero = errors.New("divide by zero")

// ErrNotALUOp is returned for opcodes the ALU does not evaluate directly
// (lane permutes, compares through Scalar, and trap opcodes).
var ErrNotALUOp = errors.New("opcode is not an ALU operation")

// Scalar evaluates a non-compare opcode on two operands. Unary opcodes read
// only b.
func Scalar(op insts.Op, a, b uint32) (uint32, error) {
	switch op {
	case insts.OpOr:
		return a | b, nil
	case insts.OpAnd:
		return a & b, nil
	case insts.OpAndn:
		return a &^ b, nil
	case insts.OpXor:
		return a ^ b, nil
	case insts.OpNot:
		return ^b, nil
	case insts.OpNeg:
		return -b, nil
	case insts.OpAdd:
		return a + b, nil
	case insts.OpSub:
		return a - b, nil
	case insts.OpMull:
		return a * b, nil
	case insts.OpMulhI:
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32), nil
	case insts.OpMulhU:
		return uint32(uint64(a) * uint64(b) >> 32), nil
	case insts.OpDiv:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		// MinInt32 / -1 wraps to MinInt32
		return uint32(int32(a) / int32(b)), nil
	case insts.OpAshr:
		return uint32(int32(a) >> (b & 31)), nil
	case insts.OpShr:
		return a >> (b & 31), nil
	case insts.OpShl:
		return a << (b & 31), nil
	case insts.OpClz:
		return CountLeadingZeros(b), nil
	case insts.OpCtz:
		return CountTrailingZeros(b), nil
	case insts.OpMove:
		return b, nil
	case insts.OpSext8:
		return SignExtend8(b), nil
	case insts.OpSext16:
		return SignExtend16(b), nil
	case insts.OpZext8:
		return b & 0xFF, nil
	case insts.OpZext16:
		return b & 0xFFFF, nil
	case insts.OpFAdd:
		return FAdd(a, b), nil
	case insts.OpFSub:
		return FSub(a, b), nil
	case insts.OpFMul:
		return FMul(a, b), nil
	case insts.OpReciprocal:
		return Reciprocal(b), nil
	case insts.OpFtoi:
		return FToI(b), nil
	case insts.OpItof:
		return IToF(b), nil
	}
	return 0, fmt.Errorf("%w: %v", ErrNotALUOp, op)
}

// Compare evaluates a compare opcode on two operands.
func Compare(op insts.Op, a, b uint32) (bool, error) {
	switch op {
	case insts.OpCmpEq:
		return a == b, nil
	case insts.OpCmpNe:
		return a != b, nil
	case insts.OpCmpGtI:
		return int32(a) > int32(b), nil
	case insts.OpCmpGeI:
		return int32(a) >= int32(b), nil
	case insts.OpCmpLtI:
		return int32(a) < int32(b), nil
	case insts.OpCmpLeI:
		return int32(a) <= int32(b), nil
	case insts.OpCmpGtU:
		return a > b, nil
	case insts.OpCmpGeU:
		return a >= b, nil
	case insts.OpCmpLtU:
		return a < b, nil
	case insts.OpCmpLeU:
		return a <= b, nil
	case insts.OpCmpGtF, insts.OpCmpGeF, insts.OpCmpLtF, insts.OpCmpLeF,
		insts.OpCmpEqF, insts.OpCmpNeF:
		return FCompare(op, a, b), nil
	}
	return false, fmt.Errorf("%w: %v is not a compare", ErrNotALUOp, op)
}

// ScalarCompareResult is the value a scalar compare writes to its destination.
func ScalarCompareResult(result bool) uint32 {
	if result {
		return 0xFFFFFFFF
	}
	return 0
}

// CountLeadingZeros returns the number of leading zero bits; zero yields 32.
func CountLeadingZeros(v uint32) uint32 {
	return uint32(bits.LeadingZeros32(v))
}

// CountTrailingZeros returns the number of trailing zero bits; zero yields 32.
func CountTrailingZeros(v uint32) uint32 {
	return uint32(bits.TrailingZeros32(v))
}

// SignExtend8 sign-extends the low byte.
func SignExtend8(v uint32) uint32 {
	return uint32(int32(int8(v)))
}

// SignExtend16 sign-extends the low halfword.
func SignExtend16(v uint32) uint32 {
	return uint32(int32(int16(v)))
}
