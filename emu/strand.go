package emu

import (
	"errors"
	"sync/atomic"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/insts"
)

// Strand flag bits, as held in the flags control register.
const (
	FlagTrapEnable uint32 = 1 << 0
	FlagSupervisor uint32 = 1 << 1
)

// Strand is one hardware thread: a register file plus its trap controller
// state. Strands share memory and the enable mask through their Processor.
type Strand struct {
	id   int
	proc *Processor
	regs RegFile

	// Trap controller
	handler    uint32
	savedPC    uint32
	cause      uint32
	flags      uint32
	savedFlags uint32
	accessAddr uint32
	scratch    [2]uint32

	interrupt atomic.Bool

	// Address of the instruction being executed
	current uint32
}

func newStrand(id int, proc *Processor) *Strand {
	s := &Strand{id: id, proc: proc}
	s.reset()
	return s
}

// reset puts the strand in its power-on state: PC 0, supervisor mode with
// traps disabled and all registers cleared.
func (s *Strand) reset() {
	s.regs = RegFile{}
	s.handler = 0
	s.savedPC = 0
	s.cause = uint32(CauseReset)
	s.flags = FlagSupervisor
	s.savedFlags = 0
	s.accessAddr = 0
	s.scratch = [2]uint32{}
	s.interrupt.Store(false)
}

// ID returns the strand index.
func (s *Strand) ID() int {
	return s.id
}

// Regs returns the strand's register file.
func (s *Strand) Regs() *RegFile {
	return &s.regs
}

// PC returns the address of the next instruction the strand executes.
func (s *Strand) PC() uint32 {
	return s.regs.PC
}

// SetPC redirects the strand.
func (s *Strand) SetPC(pc uint32) {
	s.regs.PC = pc
}

// Flags returns the flags control register.
func (s *Strand) Flags() uint32 {
	return s.flags
}

// Supervisor reports whether the strand runs in supervisor mode.
func (s *Strand) Supervisor() bool {
	return s.flags&FlagSupervisor != 0
}

// TrapsEnabled reports whether faults vector to the trap handler.
func (s *Strand) TrapsEnabled() bool {
	return s.flags&FlagTrapEnable != 0
}

// TrapHandler returns the trap handler address.
func (s *Strand) TrapHandler() uint32 {
	return s.handler
}

// SavedPC returns the PC saved by the last trap.
func (s *Strand) SavedPC() uint32 {
	return s.savedPC
}

// Cause returns the trap cause register.
func (s *Strand) Cause() uint32 {
	return s.cause
}

// InterruptPending reports whether an interrupt waits for delivery.
func (s *Strand) InterruptPending() bool {
	return s.interrupt.Load()
}

// step executes one instruction. A Fault is delivered to the trap handler;
// the returned error is non-nil only when the run must stop.
func (s *Strand) step() error {
	pc := s.regs.PC

	if s.TrapsEnabled() && s.interrupt.CompareAndSwap(true, false) {
		s.enterTrap(&Fault{Cause: CauseInterrupt}, pc)
		return nil
	}

	word, err := s.proc.memory.Fetch(pc)
	if err != nil {
		return s.fail(err, pc)
	}

	inst := s.proc.decoder.Decode(word)
	s.current = pc
	s.regs.PC = pc + 4

	if err := s.execute(inst); err != nil {
		s.regs.PC = pc
		return s.fail(err, pc)
	}
	return nil
}

// fail routes an execution error. Faults go to the trap handler when traps
// are enabled; anything else stops the run.
func (s *Strand) fail(err error, pc uint32) error {
	var fault *Fault
	if errors.As(err, &fault) && s.TrapsEnabled() {
		s.enterTrap(fault, pc)
		return nil
	}
	return &FatalError{Strand: s.id, PC: pc, Err: err}
}

// enterTrap saves the interrupted context and vectors to the handler with
// traps disabled in supervisor mode.
func (s *Strand) enterTrap(fault *Fault, pc uint32) {
	s.savedPC = pc
	s.cause = fault.CauseValue()
	s.accessAddr = fault.Address
	s.savedFlags = s.flags
	s.flags = FlagSupervisor
	s.regs.PC = s.handler
}

// eret returns from a trap handler.
func (s *Strand) eret() error {
	if !s.Supervisor() {
		return &Fault{Cause: CausePrivilegeViolation}
	}
	s.regs.PC = s.savedPC
	s.flags = s.savedFlags
	return nil
}

func (s *Strand) execute(inst *insts.Instruction) error {
	if inst.Illegal {
		return &Fault{Cause: CauseIllegalInstruction}
	}

	switch inst.Format {
	case insts.FormatNop:
		return nil
	case insts.FormatA, insts.FormatB:
		return s.executeArith(inst)
	case insts.FormatC:
		return s.executeMemory(inst)
	case insts.FormatD:
		return s.executeCacheControl(inst)
	case insts.FormatE:
		return s.executeBranch(inst)
	}
	return &Fault{Cause: CauseIllegalInstruction}
}

func (s *Strand) writeScalar(reg uint8, value uint32) {
	s.regs.WriteScalar(reg, value)
	s.proc.trace(Event{
		Kind:   EventScalarWrite,
		PC:     s.current,
		Strand: s.id,
		Reg:    reg,
		Value:  value,
	})
}

func (s *Strand) writeVector(reg uint8, value alu.Vector, mask alu.Mask) {
	s.regs.WriteVector(reg, value, mask)
	s.proc.trace(Event{
		Kind:   EventVectorWrite,
		PC:     s.current,
		Strand: s.id,
		Reg:    reg,
		Mask:   mask,
		Values: s.regs.ReadVector(reg),
	})
}

// traceStore reports a committed store of a line-relative byte range.
func (s *Strand) traceStore(line uint32, byteMask uint64, words alu.Vector) {
	s.proc.trace(Event{
		Kind:     EventStore,
		PC:       s.current,
		Strand:   s.id,
		Address:  line,
		ByteMask: byteMask,
		Values:   words,
	})
}
