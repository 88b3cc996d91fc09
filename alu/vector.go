package alu

import (
	"github.com/sarchlab/smtsim/insts"
)

// NumLanes is the number of 32-bit lanes in a vector register.
const NumLanes = 16

// Vector holds one vector register, indexed by lane.
type Vector [NumLanes]uint32

// Mask selects vector lanes. Lane 0 is bit 15 and lane 15 is bit 0.
type Mask uint16

// FullMask selects every lane.
const FullMask Mask = 0xFFFF

// LaneBit returns the mask bit of a lane.
func LaneBit(lane int) Mask {
	return 1 << (NumLanes - 1 - lane)
}

// Active reports whether the lane is selected.
func (m Mask) Active(lane int) bool {
	return m&LaneBit(lane) != 0
}

// ResolveMask turns a masking discipline and the mask register contents
// into the set of lanes an instruction writes.
func ResolveMask(mode insts.MaskMode, reg uint32) Mask {
	switch mode {
	case insts.MaskReg:
		return Mask(reg)
	case insts.MaskInverted:
		return ^Mask(reg)
	default:
		return FullMask
	}
}

// Splat replicates a scalar into every lane.
func Splat(v uint32) Vector {
	var out Vector
	for lane := range out {
		out[lane] = v
	}
	return out
}

// Merge returns dst with the selected lanes replaced by src.
func Merge(dst, src Vector, mask Mask) Vector {
	for lane := range dst {
		if mask.Active(lane) {
			dst[lane] = src[lane]
		}
	}
	return dst
}

// VectorOp evaluates a non-compare opcode lane by lane over the selected
// lanes. Unselected lanes of the result are zero. A fault in any selected
// lane aborts the whole operation.
func VectorOp(op insts.Op, a, b Vector, mask Mask) (Vector, error) {
	var out Vector
	for lane := range out {
		if !mask.Active(lane) {
			continue
		}
		v, err := Scalar(op, a[lane], b[lane])
		if err != nil {
			return Vector{}, err
		}
		out[lane] = v
	}
	return out, nil
}

// VectorCompare evaluates a compare opcode per lane and packs the results,
// lane 0 in bit 15. Unselected lanes contribute 0.
func VectorCompare(op insts.Op, a, b Vector, mask Mask) (uint32, error) {
	var packed Mask
	for lane := range a {
		if !mask.Active(lane) {
			continue
		}
		ok, err := Compare(op, a[lane], b[lane])
		if err != nil {
			return 0, err
		}
		if ok {
			packed |= LaneBit(lane)
		}
	}
	return uint32(packed), nil
}

// Shuffle permutes src: lane i of the result is src[idx[i] & 15].
func Shuffle(src, idx Vector) Vector {
	var out Vector
	for lane := range out {
		out[lane] = src[idx[lane]&(NumLanes-1)]
	}
	return out
}

// GetLane extracts the lane selected by the low four bits of idx.
func GetLane(v Vector, idx uint32) uint32 {
	return v[idx&(NumLanes-1)]
}
