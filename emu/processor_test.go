package emu_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/insts"
)

const handlerPC = 0x40

// enableTraps installs handlerPC and turns traps on, in four instructions.
func enableTraps(flags int32) []uint32 {
	return []uint32{
		addi(1, 0, handlerPC),
		setcr(1, emu.CRTrapHandler),
		addi(2, 0, flags),
		setcr(2, emu.CRFlags),
	}
}

var _ = Describe("Processor", func() {
	var (
		p      *emu.Processor
		stdout *bytes.Buffer
		stderr *bytes.Buffer
		ctx    context.Context
	)

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		ctx = context.Background()
		p = emu.NewProcessor(
			emu.WithMemorySize(0x10000),
			emu.WithStdout(stdout),
			emu.WithStderr(stderr),
		)
	})

	regs := func(strand int) *emu.RegFile {
		return p.Strand(strand).Regs()
	}

	Describe("reset state", func() {
		It("should start strands at PC 0 in supervisor mode with traps off", func() {
			for i := 0; i < emu.NumStrands; i++ {
				s := p.Strand(i)
				Expect(s.PC()).To(Equal(uint32(0)))
				Expect(s.Supervisor()).To(BeTrue())
				Expect(s.TrapsEnabled()).To(BeFalse())
			}
			Expect(p.EnableMask()).To(Equal(uint32(1)))
		})
	})

	Describe("scalar execution", func() {
		It("should execute immediate arithmetic", func() {
			load(p, 0,
				addi(1, 0, 5),
				addi(2, 1, -3),
				scalarOp(insts.OpMull, 3, 1, 2),
				halt)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Instructions).To(Equal(uint64(4)))
			Expect(regs(0).S[1]).To(Equal(uint32(5)))
			Expect(regs(0).S[2]).To(Equal(uint32(2)))
			Expect(regs(0).S[3]).To(Equal(uint32(10)))
		})

		It("should write all ones for a true scalar compare", func() {
			load(p, 0,
				addi(1, 0, -1),
				insts.EncodeB(insts.BFmtScalar, insts.OpCmpLtI, 2, 1, 0, 0),
				insts.EncodeB(insts.BFmtScalar, insts.OpCmpLtU, 3, 1, 0, 0),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[2]).To(Equal(uint32(0xFFFFFFFF)))
			Expect(regs(0).S[3]).To(Equal(uint32(0)))
		})

		It("should treat register 31 as the PC", func() {
			load(p, 0,
				addi(1, 31, 0), // reads the address of the next instruction
				addi(31, 31, 4), // skips one instruction
				addi(2, 0, 1),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[1]).To(Equal(uint32(4)))
			Expect(regs(0).S[2]).To(Equal(uint32(0)))
		})

		It("should treat the all-zero word as a no-op", func() {
			rec := &emu.Recorder{}
			p = emu.NewProcessor(emu.WithMemorySize(0x1000), emu.WithTracer(rec))
			load(p, 0, 0, 0, halt)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(rec.Events).To(BeEmpty())
		})
	})

	Describe("vector execution", func() {
		It("should honor masked and inverted-masked writes", func() {
			load(p, 0,
				insts.EncodeB(insts.BFmtScalarToVector, insts.OpAdd, 1, 0, 5, 0), // v1 = 5
				addi(2, 0, 0xF),
				insts.EncodeB(insts.BFmtScalar, insts.OpShl, 2, 2, 12, 0), // s2 = 0xF000
				insts.EncodeA(insts.AFmtVectorVectorMask, insts.OpAdd, 3, 1, 1, 2),
				insts.EncodeA(insts.AFmtVectorVectorInv, insts.OpAdd, 4, 1, 1, 2),
				halt)

			p.Run(ctx)

			v3 := regs(0).V[3]
			v4 := regs(0).V[4]
			for lane := 0; lane < alu.NumLanes; lane++ {
				if lane < 4 {
					Expect(v3[lane]).To(Equal(uint32(10)))
					Expect(v4[lane]).To(Equal(uint32(0)))
				} else {
					Expect(v3[lane]).To(Equal(uint32(0)))
					Expect(v4[lane]).To(Equal(uint32(10)))
				}
			}
		})

		It("should pack vector compares with lane 0 in bit 15", func() {
			load(p, 0,
				insts.EncodeB(insts.BFmtScalarToVector, insts.OpAdd, 1, 0, 5, 0),
				addi(2, 0, 0xF),
				insts.EncodeB(insts.BFmtScalar, insts.OpShl, 2, 2, 12, 0),
				insts.EncodeA(insts.AFmtVectorVectorMask, insts.OpAdd, 3, 1, 1, 2),
				insts.EncodeA(insts.AFmtVectorVector, insts.OpCmpGtI, 5, 3, 1, 0),
				insts.EncodeA(insts.AFmtVectorScalar, insts.OpGetLane, 6, 3, 0, 0),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[5]).To(Equal(uint32(0xF000)))
			Expect(regs(0).S[6]).To(Equal(uint32(10)))
		})

		It("should store and reload a block", func() {
			load(p, 0,
				insts.EncodeB(insts.BFmtScalarToVector, insts.OpAdd, 1, 0, 7, 0),
				addi(2, 0, 0x200),
				insts.EncodeC(false, insts.MemBlock, 1, 2, 0, 0),
				load32(3, 2, 0x3C),
				insts.EncodeC(true, insts.MemBlock, 4, 2, 0, 0),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[3]).To(Equal(uint32(7)))
			Expect(regs(0).V[4]).To(Equal(alu.Splat(7)))
		})
	})

	Describe("branches", func() {
		It("should call and link", func() {
			load(p, 0,
				branch(insts.BranchCall, 0, 8), // to 12
				halt,
				0,
				addi(1, 0, 1),
				insts.EncodeA(insts.AFmtScalar, insts.OpMove, 31, 0, insts.LinkRegister, 0))

			p.Run(ctx)

			Expect(regs(0).S[1]).To(Equal(uint32(1)))
			Expect(regs(0).S[insts.LinkRegister]).To(Equal(uint32(4)))
		})

		It("should test the low 16 bits for all/not-all branches", func() {
			load(p, 0,
				addi(1, 0, -1),
				branch(insts.BranchAll, 1, 4), // taken
				addi(2, 0, 1),
				branch(insts.BranchNotAll, 1, 4), // not taken
				addi(3, 0, 1),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[2]).To(Equal(uint32(0)))
			Expect(regs(0).S[3]).To(Equal(uint32(1)))
		})
	})

	Describe("traps", func() {
		It("should be fatal when traps are disabled", func() {
			load(p, 0,
				addi(1, 0, 7),
				scalarOp(insts.OpDiv, 3, 1, 0),
				halt)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonCrashed))
			var fatal *emu.FatalError
			Expect(errors.As(result.Err, &fatal)).To(BeTrue())
			Expect(fatal.Strand).To(Equal(0))
			Expect(fatal.PC).To(Equal(uint32(4)))
			Expect(faultCause(result.Err)).To(Equal(emu.CauseDivideByZero))

			Expect(regs(0).S[3]).To(Equal(uint32(0)))
			Expect(p.Strand(0).PC()).To(Equal(uint32(4)))
			Expect(stderr.String()).To(ContainSubstring("REGISTERS"))
		})

		It("should crash on an illegal instruction", func() {
			load(p, 0, insts.EncodeA(insts.AFmtReserved, insts.OpAdd, 1, 0, 0, 0))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonCrashed))
			Expect(faultCause(result.Err)).To(Equal(emu.CauseIllegalInstruction))
		})

		It("should vector to the handler with the cause and faulting PC", func() {
			load(p, 0, append(enableTraps(3),
				scalarOp(insts.OpDiv, 3, 2, 0), // 16
				halt)...)
			load(p, handlerPC,
				getcr(4, emu.CRTrapCause),
				getcr(5, emu.CRTrapPC),
				getcr(6, emu.CRFlags),
				getcr(7, emu.CRSavedFlags),
				halt)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(regs(0).S[4]).To(Equal(uint32(emu.CauseDivideByZero)))
			Expect(regs(0).S[5]).To(Equal(uint32(16)))
			Expect(regs(0).S[6]).To(Equal(emu.FlagSupervisor))
			Expect(regs(0).S[7]).To(Equal(uint32(3)))
			Expect(regs(0).S[3]).To(Equal(uint32(0)))
		})

		It("should resume after a syscall with eret", func() {
			syscall := insts.EncodeA(insts.AFmtScalar, insts.OpSyscall, 0, 0, 0, 0)
			load(p, 0, append(enableTraps(3),
				syscall,        // 16
				addi(6, 0, 9), // 20
				halt)...)
			load(p, handlerPC,
				getcr(4, emu.CRTrapCause),
				getcr(5, emu.CRTrapPC),
				addi(5, 5, 4),
				setcr(5, emu.CRTrapPC),
				eret)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(regs(0).S[4]).To(Equal(uint32(emu.CauseSyscall)))
			Expect(regs(0).S[6]).To(Equal(uint32(9)))
			Expect(p.Strand(0).Flags()).To(Equal(uint32(3)))
		})

		It("should raise a privilege violation for user-mode control writes", func() {
			load(p, 0, append(enableTraps(1),
				setcr(0, emu.CREnableMask), // 16
				halt)...)
			load(p, handlerPC,
				getcr(4, emu.CRTrapCause),
				getcr(5, emu.CRTrapPC),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[4]).To(Equal(uint32(emu.CausePrivilegeViolation)))
			Expect(regs(0).S[5]).To(Equal(uint32(16)))
			Expect(p.EnableMask()).To(Equal(uint32(1)))
		})

		It("should raise a privilege violation for eret in user mode", func() {
			load(p, 0, append(enableTraps(1), eret)...)
			load(p, handlerPC, getcr(4, emu.CRTrapCause), halt)

			p.Run(ctx)

			Expect(regs(0).S[4]).To(Equal(uint32(emu.CausePrivilegeViolation)))
		})

		It("should flag faulting stores and record the access address", func() {
			load(p, 0, append(enableTraps(3),
				addi(3, 0, 0x102),
				store32(3, 3, 0), // 20
				halt)...)
			load(p, handlerPC,
				getcr(4, emu.CRTrapCause),
				getcr(5, emu.CRTrapAddress),
				halt)

			p.Run(ctx)

			Expect(regs(0).S[4]).To(Equal(uint32(emu.CauseUnalignedDataAccess) | emu.CauseStoreFlag))
			Expect(regs(0).S[5]).To(Equal(uint32(0x102)))
			Expect(p.Memory().Load32(0x100)).To(Equal(uint32(0)))
		})

		It("should crash on an unaligned fetch after a register call", func() {
			load(p, 0,
				addi(1, 0, 6),
				branch(insts.BranchCallReg, 1, 0))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonCrashed))
			Expect(faultCause(result.Err)).To(Equal(emu.CauseUnalignedInstructionFetch))
			Expect(regs(0).S[insts.LinkRegister]).To(Equal(uint32(8)))
		})

		It("should report host errors for accesses outside memory", func() {
			load(p, 0,
				addi(1, 0, 0x7FF),
				insts.EncodeB(insts.BFmtScalar, insts.OpShl, 1, 1, 12, 0), // 0x7FF000
				load32(2, 1, 0),
				halt)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonCrashed))
			Expect(errors.Is(result.Err, emu.ErrAccessViolation)).To(BeTrue())
		})
	})

	Describe("interrupts", func() {
		program := func() {
			load(p, 0, append(enableTraps(3),
				branch(insts.BranchAlways, 0, -4))...) // 16: spin
			load(p, handlerPC,
				getcr(4, emu.CRTrapCause),
				getcr(5, emu.CRTrapPC),
				halt)
		}

		It("should be taken at the strand's next instruction", func() {
			program()
			for i := 0; i < 6; i++ {
				Expect(p.Step().Err).NotTo(HaveOccurred())
			}

			p.RaiseInterrupt(0)
			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(regs(0).S[4]).To(Equal(uint32(emu.CauseInterrupt)))
			Expect(regs(0).S[5]).To(Equal(uint32(16)))
		})

		It("should stay pending while traps are disabled", func() {
			program()
			p.RaiseInterrupt(0)

			p.Step()
			Expect(p.Strand(0).InterruptPending()).To(BeTrue())
			Expect(p.Strand(0).PC()).To(Equal(uint32(4)))
		})
	})

	Describe("scheduling", func() {
		spin := func() {
			load(p, 0,
				addi(1, 1, 1),
				branch(insts.BranchAlways, 0, -8))
		}

		It("should interleave enabled strands round-robin", func() {
			p = emu.NewProcessor(emu.WithMemorySize(0x1000), emu.WithEnableMask(0xF))
			spin()

			for i := 0; i < 400; i++ {
				result := p.Step()
				Expect(result.Err).NotTo(HaveOccurred())
				Expect(result.Strand).To(Equal(i % emu.NumStrands))
			}
			for i := 0; i < emu.NumStrands; i++ {
				Expect(regs(i).S[1]).To(Equal(uint32(50)))
			}
		})

		It("should run exactly the strands named by the enable mask", func() {
			load(p, 0,
				getcr(6, emu.CRStrandID),
				branch(insts.BranchNotZero, 6, 8),
				addi(5, 0, 5),
				setcr(5, emu.CREnableMask),
				addi(1, 1, 1), // 16
				branch(insts.BranchAlways, 0, -8))
			p = emu.NewProcessor(emu.WithMemory(p.Memory()), emu.WithInstructionBudget(100))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonTimeout))
			Expect(p.EnableMask()).To(Equal(uint32(5)))
			Expect(regs(0).S[1]).NotTo(BeZero())
			Expect(regs(2).S[1]).NotTo(BeZero())
			Expect(regs(1).S[1]).To(BeZero())
			Expect(regs(3).S[1]).To(BeZero())
			Expect(p.Strand(1).PC()).To(Equal(uint32(0)))
		})

		It("should stop when the last strand disables itself", func() {
			load(p, 0, setcr(0, emu.CRHaltStrand))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonStopped))
			Expect(p.Stopped()).To(BeTrue())
			Expect(p.Halted()).To(BeFalse())
		})

		It("should keep a halt permanent", func() {
			load(p, 0, halt, addi(1, 0, 1))

			Expect(p.Run(ctx).Reason).To(Equal(emu.ReasonHalted))

			p.SetEnableMask(0xF)
			Expect(p.Step().Halted).To(BeTrue())
			result := p.Run(ctx)
			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(result.Instructions).To(BeZero())
			Expect(regs(0).S[1]).To(BeZero())
			Expect(p.InstructionCount()).To(Equal(uint64(1)))
		})

		It("should make load-sync/store-sync increments atomic across strands", func() {
			const iterations = 50
			load(p, 0,
				getcr(6, emu.CRStrandID),
				branch(insts.BranchNotZero, 6, 8),
				addi(5, 0, 0xF),
				setcr(5, emu.CREnableMask),
				addi(1, 0, 0x400), // 16
				addi(2, 0, iterations),
				insts.EncodeC(true, insts.MemSync, 3, 1, 0, 0), // 24: retry
				addi(3, 3, 1),
				insts.EncodeC(false, insts.MemSync, 3, 1, 0, 0),
				branch(insts.BranchZero, 3, -16),
				addi(2, 2, -1),
				branch(insts.BranchNotZero, 2, -24),
				setcr(0, emu.CRHaltStrand))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonStopped))
			Expect(p.Memory().Load32(0x400)).To(Equal(uint32(emu.NumStrands * iterations)))
		})
	})

	Describe("cache control", func() {
		It("should pass every operation to the cache model in supervisor mode", func() {
			o := &recordingObserver{}
			p = emu.NewProcessor(emu.WithMemorySize(0x1000), emu.WithCacheObserver(o))
			load(p, 0,
				addi(1, 0, 0x100),
				insts.EncodeD(insts.CacheDPreload, 1, 0),
				insts.EncodeD(insts.CacheDInvalidate, 1, 0x40),
				insts.EncodeD(insts.CacheDFlush, 1, 0),
				insts.EncodeD(insts.CacheIInvalidate, 1, 0),
				insts.EncodeD(insts.CacheMembar, 0, 0),
				halt)

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(o.accesses).To(Equal([]uint32{0x100}))
			Expect(o.invalidations).To(Equal(1))
			Expect(o.flushes).To(Equal(1))
			Expect(o.iinvalidates).To(Equal(1))
			Expect(o.barriers).To(Equal(1))
		})

		for _, op := range []insts.CacheOp{insts.CacheDInvalidate, insts.CacheIInvalidate} {
			op := op
			It(fmt.Sprintf("should reject cache op %d in user mode", op), func() {
				load(p, 0,
					setcr(0, emu.CRFlags),
					insts.EncodeD(op, 0, 0),
					halt)

				result := p.Run(ctx)

				Expect(result.Reason).To(Equal(emu.ReasonCrashed))
				Expect(faultCause(result.Err)).To(Equal(emu.CausePrivilegeViolation))
				var fatal *emu.FatalError
				Expect(errors.As(result.Err, &fatal)).To(BeTrue())
				Expect(fatal.PC).To(Equal(uint32(4)))
			})
		}

		It("should let user mode run the unprivileged cache ops", func() {
			load(p, 0,
				setcr(0, emu.CRFlags),
				insts.EncodeD(insts.CacheDPreload, 0, 0),
				insts.EncodeD(insts.CacheDFlush, 0, 0),
				insts.EncodeD(insts.CacheMembar, 0, 0),
				setcr(0, emu.CRHaltStrand))

			result := p.Run(ctx)

			Expect(result.Err).To(HaveOccurred())
			Expect(faultCause(result.Err)).To(Equal(emu.CausePrivilegeViolation))
			var fatal *emu.FatalError
			Expect(errors.As(result.Err, &fatal)).To(BeTrue())
			Expect(fatal.PC).To(Equal(uint32(16)))
		})
	})

	Describe("strided and scatter/gather instructions", func() {
		var rec *emu.Recorder

		BeforeEach(func() {
			rec = &emu.Recorder{}
			p = emu.NewProcessor(emu.WithMemorySize(0x1000), emu.WithTracer(rec))
		})

		poke := func(addr, value uint32) {
			Expect(p.Memory().PokeWord(addr, value)).To(Succeed())
		}

		peek := func(addr uint32) uint32 {
			v, err := p.Memory().PeekWord(addr)
			Expect(err).NotTo(HaveOccurred())
			return v
		}

		It("should gather from each lane's pointer plus the offset", func() {
			for lane := 0; lane < 16; lane++ {
				regs(0).V[1][lane] = 0x200 + 8*uint32(lane)
				poke(0x204+8*uint32(lane), 100+uint32(lane))
			}
			load(p, 0,
				insts.EncodeC(true, insts.MemScatter, 2, 1, 4, 0),
				halt)

			Expect(p.Run(ctx).Reason).To(Equal(emu.ReasonHalted))

			for lane := 0; lane < 16; lane++ {
				Expect(regs(0).V[2][lane]).To(Equal(100 + uint32(lane)))
			}
		})

		It("should load lane i from base plus i times the stride", func() {
			for lane := 0; lane < 16; lane++ {
				poke(0x300+12*uint32(lane), 0x50+uint32(lane))
			}
			load(p, 0,
				addi(1, 0, 0x300),
				insts.EncodeC(true, insts.MemStrided, 3, 1, 12, 0),
				halt)

			p.Run(ctx)

			for lane := 0; lane < 16; lane++ {
				Expect(regs(0).V[3][lane]).To(Equal(0x50 + uint32(lane)))
			}
		})

		It("should store only masked lanes with a negative stride and trace each lane", func() {
			for lane := 0; lane < 16; lane++ {
				regs(0).V[4][lane] = uint32(lane + 1)
			}
			load(p, 0,
				addi(1, 0, 0x400),
				addi(2, 0, 1),
				insts.EncodeB(insts.BFmtScalar, insts.OpShl, 2, 2, 15, 0),
				addi(2, 2, 1), // lanes 0 and 15
				insts.EncodeC(false, insts.MemStridedMask, 4, 1, -4, 2), // 16
				halt)

			p.Run(ctx)

			Expect(peek(0x400)).To(Equal(uint32(1)))
			Expect(peek(0x3FC)).To(BeZero())
			Expect(peek(0x3C4)).To(Equal(uint32(16)))

			stores := storeEvents(rec.Events)
			Expect(stores).To(HaveLen(2))
			Expect(stores[0].PC).To(Equal(uint32(16)))
			Expect(stores[0].Address).To(Equal(uint32(0x400)))
			Expect(stores[0].ByteMask).To(Equal(uint64(0xF000000000000000)))
			Expect(stores[0].Values[0]).To(Equal(uint32(1)))
			Expect(stores[1].Address).To(Equal(uint32(0x3C0)))
			Expect(stores[1].ByteMask).To(Equal(uint64(0x0F00000000000000)))
			Expect(stores[1].Values[1]).To(Equal(uint32(16)))
		})

		It("should scatter and reload through an inverted mask", func() {
			for lane := 0; lane < 16; lane++ {
				regs(0).V[5][lane] = 0x200 + 4*uint32(lane)
				regs(0).V[6][lane] = 50 + uint32(lane)
			}
			regs(0).V[7] = alu.Splat(0xAA)
			load(p, 0,
				addi(2, 0, 0x7FF),
				insts.EncodeB(insts.BFmtScalar, insts.OpShl, 2, 2, 4, 0),
				addi(2, 2, 0xF), // 0x7FFF: every lane but 0
				insts.EncodeC(false, insts.MemScatterInv, 6, 5, 0x100, 2),
				addi(1, 0, 0x300),
				insts.EncodeC(true, insts.MemStridedInv, 7, 1, 4, 2),
				halt)

			Expect(p.Run(ctx).Reason).To(Equal(emu.ReasonHalted))

			Expect(peek(0x300)).To(Equal(uint32(50)))
			Expect(peek(0x304)).To(BeZero())
			Expect(regs(0).V[7][0]).To(Equal(uint32(50)))
			Expect(regs(0).V[7][1]).To(Equal(uint32(0xAA)))
			Expect(storeEvents(rec.Events)).To(HaveLen(1))
		})
	})

	Describe("host limits", func() {
		BeforeEach(func() {
			load(p, 0, branch(insts.BranchAlways, 0, -4))
		})

		It("should time out when the instruction budget runs out", func() {
			p = emu.NewProcessor(emu.WithMemory(p.Memory()), emu.WithInstructionBudget(10))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonTimeout))
			Expect(errors.Is(result.Err, emu.ErrHostTimeout)).To(BeTrue())
			Expect(result.Instructions).To(Equal(uint64(10)))
		})

		It("should time out on the wall-clock limit", func() {
			p = emu.NewProcessor(
				emu.WithMemory(p.Memory()),
				emu.WithInstructionBudget(0),
				emu.WithWallClockLimit(20*time.Millisecond))

			result := p.Run(ctx)

			Expect(result.Reason).To(Equal(emu.ReasonTimeout))
			Expect(errors.Is(result.Err, emu.ErrHostTimeout)).To(BeTrue())
		})

		It("should stop when the context is canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			result := p.Run(canceled)

			Expect(result.Reason).To(Equal(emu.ReasonCanceled))
			Expect(result.Instructions).To(BeZero())
		})
	})

	Describe("breakpoints", func() {
		It("should stop before the instruction and resume over it", func() {
			load(p, 0,
				addi(1, 1, 1),
				addi(1, 1, 1), // 4
				addi(1, 1, 1),
				halt)
			p.SetBreakpoint(4)

			result := p.Run(ctx)
			Expect(result.Reason).To(Equal(emu.ReasonBreakpoint))
			Expect(result.PC).To(Equal(uint32(4)))
			Expect(regs(0).S[1]).To(Equal(uint32(1)))

			result = p.Run(ctx)
			Expect(result.Reason).To(Equal(emu.ReasonHalted))
			Expect(regs(0).S[1]).To(Equal(uint32(3)))
			Expect(p.Breakpoints()).To(Equal([]uint32{4}))
		})
	})

	Describe("console", func() {
		It("should print bytes stored to the transmit register", func() {
			load(p, 0,
				addi(1, 0, -1),
				insts.EncodeB(insts.BFmtScalar, insts.OpShl, 1, 1, 16, 0), // 0xFFFF0000
				addi(2, 0, 'o'),
				store32(2, 1, 0),
				addi(2, 0, 'k'),
				store32(2, 1, 0),
				halt)

			p.Run(ctx)

			Expect(stdout.String()).To(Equal("ok"))
		})
	})
})

func storeEvents(events []emu.Event) []emu.Event {
	var stores []emu.Event
	for _, e := range events {
		if e.Kind == emu.EventStore {
			stores = append(stores, e)
		}
	}
	return stores
}
