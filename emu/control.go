package emu

// Control register numbers.
const (
	CRStrandID     = 0
	CRTrapHandler  = 1
	CRTrapPC       = 2
	CRTrapCause    = 3
	CRFlags        = 4
	CRTrapAddress  = 5
	CRInstructions = 6
	CRSavedFlags   = 7
	CRScratch0     = 11
	CRScratch1     = 12
	CRHaltStrand   = 29
	CREnableMask   = 30
	CRHalt         = 31
)

const flagMask = FlagTrapEnable | FlagSupervisor

// readControl reads a control register. Unmapped registers read as zero.
func (s *Strand) readControl(cr uint8) uint32 {
	switch cr {
	case CRStrandID:
		return uint32(s.id)
	case CRTrapHandler:
		return s.handler
	case CRTrapPC:
		return s.savedPC
	case CRTrapCause:
		return s.cause
	case CRFlags:
		return s.flags
	case CRTrapAddress:
		return s.accessAddr
	case CRInstructions:
		return uint32(s.proc.instructions)
	case CRSavedFlags:
		return s.savedFlags
	case CRScratch0:
		return s.scratch[0]
	case CRScratch1:
		return s.scratch[1]
	case CREnableMask:
		return s.proc.enableMask
	}
	return 0
}

// writeControl writes a control register. Only supervisor code may write
// control registers; writes to read-only or unmapped registers are ignored.
func (s *Strand) writeControl(cr uint8, value uint32) error {
	if !s.Supervisor() {
		return &Fault{Cause: CausePrivilegeViolation}
	}

	switch cr {
	case CRTrapHandler:
		s.handler = value
	case CRTrapPC:
		s.savedPC = value
	case CRTrapCause:
		s.cause = value
	case CRFlags:
		s.flags = value & flagMask
	case CRSavedFlags:
		s.savedFlags = value & flagMask
	case CRScratch0:
		s.scratch[0] = value
	case CRScratch1:
		s.scratch[1] = value
	case CRHaltStrand:
		s.proc.SetEnableMask(s.proc.enableMask &^ (1 << uint(s.id)))
	case CREnableMask:
		s.proc.SetEnableMask(value)
	case CRHalt:
		s.proc.Halt()
	}
	return nil
}
