package emu

import (
	"github.com/sarchlab/smtsim/insts"
)

// allLanes is the value of a packed vector compare with every lane true.
const allLanes = 0xFFFF

// executeBranch runs format E. PC already holds the following instruction,
// which is also the base of relative targets and the link address.
func (s *Strand) executeBranch(inst *insts.Instruction) error {
	next := s.regs.PC
	src := s.regs.ReadScalar(inst.BranchSrc)
	target := next + uint32(inst.Offset)

	var taken bool
	switch inst.Branch {
	case insts.BranchAll:
		taken = src&allLanes == allLanes
	case insts.BranchZero:
		taken = src == 0
	case insts.BranchNotZero:
		taken = src != 0
	case insts.BranchAlways:
		taken = true
	case insts.BranchNotAll:
		taken = src&allLanes != allLanes
	case insts.BranchCall:
		s.writeScalar(insts.LinkRegister, next)
		taken = true
	case insts.BranchCallReg:
		s.writeScalar(insts.LinkRegister, next)
		target = src
		taken = true
	case insts.BranchEret:
		return s.eret()
	}

	if taken {
		s.regs.PC = target
	}
	return nil
}

// executeCacheControl runs format D. Caches are not modeled architecturally,
// so these only notify the cache observer. Invalidations are privileged.
func (s *Strand) executeCacheControl(inst *insts.Instruction) error {
	mem := s.proc.memory
	addr := s.regs.ReadScalar(inst.Ptr) + uint32(inst.Offset)

	switch inst.CacheOp {
	case insts.CacheDPreload:
		mem.DPreload(addr)
	case insts.CacheDInvalidate:
		if !s.Supervisor() {
			return &Fault{Cause: CausePrivilegeViolation}
		}
		mem.DInvalidate(addr)
	case insts.CacheDFlush:
		mem.DFlush(addr)
	case insts.CacheIInvalidate:
		if !s.Supervisor() {
			return &Fault{Cause: CausePrivilegeViolation}
		}
		mem.IInvalidate(addr)
	case insts.CacheMembar:
		mem.Membar()
	}
	return nil
}
