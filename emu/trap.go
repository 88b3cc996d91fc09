package emu

import (
	"errors"
	"fmt"
)

// TrapCause identifies why a strand entered its trap handler.
type TrapCause uint32

// Trap causes, as stored in the trap cause control register.
const (
	CauseReset                     TrapCause = 0
	CauseIllegalInstruction        TrapCause = 1
	CausePrivilegeViolation        TrapCause = 2
	CauseInterrupt                 TrapCause = 3
	CauseSyscall                   TrapCause = 4
	CauseUnalignedDataAccess       TrapCause = 5
	CauseUnalignedInstructionFetch TrapCause = 6
	CauseDivideByZero              TrapCause = 7
	CauseBreakpoint                TrapCause = 8
)

// CauseStoreFlag is set in the trap cause register when a store faulted.
const CauseStoreFlag = 0x10

var causeNames = map[TrapCause]string{
	CauseReset:                     "reset",
	CauseIllegalInstruction:        "illegal instruction",
	CausePrivilegeViolation:        "privilege violation",
	CauseInterrupt:                 "interrupt",
	CauseSyscall:                   "syscall",
	CauseUnalignedDataAccess:       "unaligned data access",
	CauseUnalignedInstructionFetch: "unaligned instruction fetch",
	CauseDivideByZero:              "divide by zero",
	CauseBreakpoint:                "breakpoint",
}

func (c TrapCause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cause %d", uint32(c))
}

// Fault is an architectural exception raised while executing an
// instruction. A faulting instruction has no architectural effect.
type Fault struct {
	Cause   TrapCause
	Store   bool   // Raised by a store
	Address uint32 // Faulting data address, when there is one
}

func (f *Fault) Error() string {
	if f.Cause == CauseUnalignedDataAccess {
		return fmt.Sprintf("%v at 0x%08x", f.Cause, f.Address)
	}
	return f.Cause.String()
}

// CauseValue returns the value written to the trap cause register.
func (f *Fault) CauseValue() uint32 {
	v := uint32(f.Cause)
	if f.Store {
		v |= CauseStoreFlag
	}
	return v
}

// ErrAccessViolation is returned for accesses outside physical memory and
// the I/O window. It is a host-side error, not a trap.
var ErrAccessViolation = errors.New("access violation")

// ErrHostTimeout is reported when a run exhausts its instruction budget or
// wall-clock limit.
var ErrHostTimeout = errors.New("host timeout")

// FatalError stops a run. It wraps either a Fault taken while the strand
// had traps disabled, or a host error such as an access violation.
type FatalError struct {
	Strand int
	PC     uint32
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("strand %d: fatal %v at pc 0x%08x", e.Strand, e.Err, e.PC)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
