package benchmarks

import (
	"fmt"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/insts"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// exercises a different part of the processor and checks its result.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		scalarLoop(),
		vectorLoop(),
		blockCopy(),
		callReturn(),
		syncCounter(),
	}
}

func addi(dest, src uint8, imm int32) uint32 {
	return insts.EncodeB(insts.BFmtScalar, insts.OpAdd, dest, src, imm, 0)
}

var halt = insts.EncodeSetControl(0, emu.CRHalt)

func expectScalar(p *emu.Processor, strand int, reg uint8, want uint32) error {
	if got := p.Strand(strand).Regs().ReadScalar(reg); got != want {
		return fmt.Errorf("strand %d s%d = %d, want %d", strand, reg, got, want)
	}
	return nil
}

// 1. Scalar Loop - counted loop with a dependent accumulator
func scalarLoop() Benchmark {
	const iterations = 1000
	return Benchmark{
		Name:        "scalar_loop",
		Description: "1000-iteration counted loop - measures scalar ALU and branch throughput",
		Program: BuildProgram(
			addi(1, 0, iterations),
			addi(2, 2, 3), // 4: loop
			addi(1, 1, -1),
			insts.EncodeE(insts.BranchNotZero, 1, -12),
			halt,
		),
		Check: func(p *emu.Processor) error {
			return expectScalar(p, 0, 2, 3*iterations)
		},
	}
}

// 2. Vector Loop - 16-lane accumulate
func vectorLoop() Benchmark {
	const iterations = 100
	return Benchmark{
		Name:        "vector_loop",
		Description: "100 vector/vector adds - measures 16-lane ALU throughput",
		Program: BuildProgram(
			addi(1, 0, iterations),
			insts.EncodeB(insts.BFmtScalarToVector, insts.OpAdd, 1, 0, 2, 0),
			insts.EncodeA(insts.AFmtVectorVector, insts.OpAdd, 2, 2, 1, 0), // 8: loop
			addi(1, 1, -1),
			insts.EncodeE(insts.BranchNotZero, 1, -12),
			halt,
		),
		Check: func(p *emu.Processor) error {
			v := p.Strand(0).Regs().ReadVector(2)
			if v != alu.Splat(2*iterations) {
				return fmt.Errorf("v2 = %v, want all lanes %d", v, 2*iterations)
			}
			return nil
		},
	}
}

// 3. Block Copy - streaming 64-byte block loads and stores
func blockCopy() Benchmark {
	const (
		src   = 0x1000
		dst   = 0x2000
		lines = 32
	)
	return Benchmark{
		Name:        "block_copy",
		Description: "copy 32 cache lines with block load/store - measures D-cache streaming",
		Setup: func(p *emu.Processor) error {
			for i := uint32(0); i < lines*16; i++ {
				if err := p.Memory().PokeWord(src+4*i, i*7+1); err != nil {
					return err
				}
			}
			return nil
		},
		Program: BuildProgram(
			addi(1, 0, 1),
			insts.EncodeB(insts.BFmtScalar, insts.OpShl, 1, 1, 12, 0), // s1 = src
			insts.EncodeB(insts.BFmtScalar, insts.OpShl, 2, 1, 1, 0),  // s2 = dst
			addi(3, 0, lines),
			insts.EncodeC(true, insts.MemBlock, 4, 1, 0, 0), // 16: loop
			insts.EncodeC(false, insts.MemBlock, 4, 2, 0, 0),
			addi(1, 1, 64),
			addi(2, 2, 64),
			addi(3, 3, -1),
			insts.EncodeE(insts.BranchNotZero, 3, -24),
			halt,
		),
		Check: func(p *emu.Processor) error {
			for i := uint32(0); i < lines*16; i++ {
				got, err := p.Memory().PeekWord(dst + 4*i)
				if err != nil {
					return err
				}
				if got != i*7+1 {
					return fmt.Errorf("word %d = %d, want %d", i, got, i*7+1)
				}
			}
			return nil
		},
	}
}

// 4. Call/Return - subroutine calls through the link register
func callReturn() Benchmark {
	const calls = 200
	return Benchmark{
		Name:        "call_return",
		Description: "200 calls to a leaf function - measures call and indirect jump cost",
		Program: BuildProgram(
			addi(1, 0, calls),
			insts.EncodeE(insts.BranchCall, 0, 12), // 4: call 20
			addi(1, 1, -1),
			insts.EncodeE(insts.BranchNotZero, 1, -12),
			halt,
			addi(2, 2, 1), // 20: leaf
			insts.EncodeA(insts.AFmtScalar, insts.OpMove, insts.PCRegister, 0, insts.LinkRegister, 0),
		),
		Check: func(p *emu.Processor) error {
			return expectScalar(p, 0, 2, calls)
		},
	}
}

// 5. Sync Counter - four strands incrementing one word with load/store sync
func syncCounter() Benchmark {
	const (
		iterations = 100
		counter    = 0x400
	)
	getcr := insts.EncodeGetControl
	setcr := insts.EncodeSetControl
	return Benchmark{
		Name:        "sync_counter",
		Description: "4 strands x 100 atomic increments - measures synchronized access under contention",
		Program: BuildProgram(
			getcr(6, emu.CRStrandID),
			insts.EncodeE(insts.BranchNotZero, 6, 8),
			addi(5, 0, 0xF),
			setcr(5, emu.CREnableMask),
			addi(1, 0, counter), // 16
			addi(2, 0, iterations),
			insts.EncodeC(true, insts.MemSync, 3, 1, 0, 0), // 24: retry
			addi(3, 3, 1),
			insts.EncodeC(false, insts.MemSync, 3, 1, 0, 0),
			insts.EncodeE(insts.BranchZero, 3, -16),
			addi(2, 2, -1),
			insts.EncodeE(insts.BranchNotZero, 2, -24),
			setcr(0, emu.CRHaltStrand),
		),
		Check: func(p *emu.Processor) error {
			got, err := p.Memory().PeekWord(counter)
			if err != nil {
				return err
			}
			if got != emu.NumStrands*iterations {
				return fmt.Errorf("counter = %d, want %d", got, emu.NumStrands*iterations)
			}
			return nil
		},
	}
}
