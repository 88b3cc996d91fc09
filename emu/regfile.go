// Package emu provides functional emulation of the SMT vector processor:
// memory, per-strand register files, instruction execution, the trap
// controller and the round-robin strand scheduler.
package emu

import (
	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/insts"
)

// NumRegisters is the number of scalar and of vector registers per strand.
const NumRegisters = 32

// RegFile represents one strand's architectural registers.
// It contains 31 general-purpose scalar registers (s0-s30), the program
// counter (aliased as s31) and 32 vector registers (v0-v31).
type RegFile struct {
	// S holds scalar registers s0-s30. S[31] is unused; s31 is PC.
	S [NumRegisters]uint32

	// V holds the vector registers.
	V [NumRegisters]alu.Vector

	// PC is the program counter. While an instruction executes it already
	// points at the following instruction.
	PC uint32
}

// ReadScalar reads a scalar register. Register 31 returns PC.
func (r *RegFile) ReadScalar(reg uint8) uint32 {
	if reg == insts.PCRegister {
		return r.PC
	}
	return r.S[reg&31]
}

// WriteScalar writes a scalar register. Writing register 31 is a jump.
func (r *RegFile) WriteScalar(reg uint8, value uint32) {
	if reg == insts.PCRegister {
		r.PC = value
		return
	}
	r.S[reg&31] = value
}

// ReadVector reads a vector register.
func (r *RegFile) ReadVector(reg uint8) alu.Vector {
	return r.V[reg&31]
}

// WriteVector writes the selected lanes of a vector register.
func (r *RegFile) WriteVector(reg uint8, value alu.Vector, mask alu.Mask) {
	r.V[reg&31] = alu.Merge(r.V[reg&31], value, mask)
}
