package emu

import (
	"errors"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/insts"
)

// executeArith runs formats A and B. Every result is computed before any
// register is written, so a divide fault leaves the strand untouched.
func (s *Strand) executeArith(inst *insts.Instruction) error {
	switch inst.Op {
	case insts.OpBreakpoint:
		return &Fault{Cause: CauseBreakpoint}
	case insts.OpSyscall:
		return &Fault{Cause: CauseSyscall}
	}

	// Second operand as a scalar: the immediate, or s[src2]
	var operand2 uint32
	if inst.HasImm {
		operand2 = uint32(inst.Imm)
	} else if !inst.VectorSrc2 {
		operand2 = s.regs.ReadScalar(inst.Src2)
	}

	if !inst.VectorSrc1 && !inst.VectorDest {
		return s.executeScalarArith(inst, operand2)
	}

	mask := alu.ResolveMask(inst.Mask, s.regs.ReadScalar(inst.MaskReg))

	var a alu.Vector
	if inst.VectorSrc1 {
		a = s.regs.ReadVector(inst.Src1)
	} else {
		a = alu.Splat(s.regs.ReadScalar(inst.Src1))
	}

	if inst.Op == insts.OpGetLane {
		s.writeScalar(inst.Dest, alu.GetLane(a, operand2))
		return nil
	}

	var b alu.Vector
	if inst.VectorSrc2 {
		b = s.regs.ReadVector(inst.Src2)
	} else {
		b = alu.Splat(operand2)
	}

	if inst.Op.IsCompare() {
		packed, err := alu.VectorCompare(inst.Op, a, b, mask)
		if err != nil {
			return aluFault(err)
		}
		s.writeScalar(inst.Dest, packed)
		return nil
	}

	var result alu.Vector
	if inst.Op == insts.OpShuffle {
		result = alu.Shuffle(a, b)
	} else {
		var err error
		result, err = alu.VectorOp(inst.Op, a, b, mask)
		if err != nil {
			return aluFault(err)
		}
	}
	s.writeVector(inst.Dest, result, mask)
	return nil
}

func (s *Strand) executeScalarArith(inst *insts.Instruction, operand2 uint32) error {
	a := s.regs.ReadScalar(inst.Src1)

	if inst.Op.IsCompare() {
		ok, err := alu.Compare(inst.Op, a, operand2)
		if err != nil {
			return aluFault(err)
		}
		s.writeScalar(inst.Dest, alu.ScalarCompareResult(ok))
		return nil
	}

	result, err := alu.Scalar(inst.Op, a, operand2)
	if err != nil {
		return aluFault(err)
	}
	s.writeScalar(inst.Dest, result)
	return nil
}

// aluFault maps an ALU error onto the trap it raises.
func aluFault(err error) error {
	if errors.Is(err, alu.ErrDivideByZero) {
		return &Fault{Cause: CauseDivideByZero}
	}
	return &Fault{Cause: CauseIllegalInstruction}
}
