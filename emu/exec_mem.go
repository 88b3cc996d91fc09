package emu

import (
	"errors"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/insts"
)

// executeMemory runs format C. Loads write their register only after the
// access succeeded; stores commit in memory as their last effect.
func (s *Strand) executeMemory(inst *insts.Instruction) error {
	var err error
	switch {
	case inst.MemOp == insts.MemControl:
		if inst.Load {
			s.writeScalar(inst.SrcDest, s.readControl(inst.Ptr))
			return nil
		}
		return s.writeControl(inst.Ptr, s.regs.ReadScalar(inst.SrcDest))
	case inst.MemOp.IsVector():
		err = s.executeVectorMemory(inst)
	case inst.Load:
		err = s.executeScalarLoad(inst)
	default:
		err = s.executeScalarStore(inst)
	}

	var fault *Fault
	if !inst.Load && errors.As(err, &fault) {
		fault.Store = true
	}
	return err
}

func (s *Strand) executeScalarLoad(inst *insts.Instruction) error {
	mem := s.proc.memory
	addr := s.regs.ReadScalar(inst.Ptr) + uint32(inst.Offset)

	var value uint32
	var err error
	switch inst.MemOp {
	case insts.MemByte:
		value, err = mem.Load8(addr, false)
	case insts.MemByteSigned:
		value, err = mem.Load8(addr, true)
	case insts.MemHalf:
		value, err = mem.Load16(addr, false)
	case insts.MemHalfSigned:
		value, err = mem.Load16(addr, true)
	case insts.MemWord:
		value, err = mem.Load32(addr)
	case insts.MemSync:
		value, err = mem.LoadSync(s.id, addr)
	}
	if err != nil {
		return err
	}

	s.writeScalar(inst.SrcDest, value)
	return nil
}

// executeScalarStore stores the low bytes of s[srcdest]. The sign-extending
// variants have no meaning for stores and act as their plain counterparts.
func (s *Strand) executeScalarStore(inst *insts.Instruction) error {
	mem := s.proc.memory
	addr := s.regs.ReadScalar(inst.Ptr) + uint32(inst.Offset)
	value := s.regs.ReadScalar(inst.SrcDest)

	var size uint32
	var err error
	switch inst.MemOp {
	case insts.MemByte, insts.MemByteSigned:
		size = 1
		err = mem.Store8(addr, value)
	case insts.MemHalf, insts.MemHalfSigned:
		size = 2
		err = mem.Store16(addr, value)
	case insts.MemWord:
		size = 4
		err = mem.Store32(addr, value)
	case insts.MemSync:
		var ok bool
		ok, err = mem.StoreSync(s.id, addr, value)
		if err != nil {
			return err
		}
		if ok {
			s.traceWordStore(addr, 4, value)
			s.writeScalar(inst.SrcDest, 1)
		} else {
			s.writeScalar(inst.SrcDest, 0)
		}
		return nil
	}
	if err != nil {
		return err
	}

	s.traceWordStore(addr, size, value)
	return nil
}

// traceWordStore reports a store of up to four bytes. The value is placed in
// the line word holding addr at its byte position.
func (s *Strand) traceWordStore(addr, size, value uint32) {
	line := addr &^ (LineSize - 1)
	shift := (addr % 4) * 8

	var words alu.Vector
	words[(addr%LineSize)/4] = (value << shift) & lowBytes(size, shift)
	s.traceStore(line, LineByteMask(addr, size), words)
}

func lowBytes(size, shift uint32) uint32 {
	if size == 4 {
		return 0xFFFFFFFF
	}
	return (uint32(1)<<(size*8) - 1) << shift
}

func (s *Strand) executeVectorMemory(inst *insts.Instruction) error {
	mem := s.proc.memory
	mask := alu.ResolveMask(inst.Mask, s.regs.ReadScalar(inst.MaskReg))

	var addrs alu.Vector
	switch inst.MemOp {
	case insts.MemBlock, insts.MemBlockMask, insts.MemBlockInv:
		return s.executeBlock(inst, mask)
	case insts.MemStrided, insts.MemStridedMask, insts.MemStridedInv:
		addrs = StridedAddresses(s.regs.ReadScalar(inst.Ptr), inst.Offset)
	default:
		ptrs := s.regs.ReadVector(inst.Ptr)
		for lane := range addrs {
			addrs[lane] = ptrs[lane] + uint32(inst.Offset)
		}
	}

	if inst.Load {
		v, err := mem.LoadGather(addrs, mask)
		if err != nil {
			return err
		}
		s.writeVector(inst.SrcDest, v, mask)
		return nil
	}

	v := s.regs.ReadVector(inst.SrcDest)
	if err := mem.StoreScatter(addrs, v, mask); err != nil {
		return err
	}
	for lane, addr := range addrs {
		if mask.Active(lane) {
			s.traceWordStore(addr, 4, v[lane])
		}
	}
	return nil
}

func (s *Strand) executeBlock(inst *insts.Instruction, mask alu.Mask) error {
	mem := s.proc.memory
	addr := s.regs.ReadScalar(inst.Ptr) + uint32(inst.Offset)

	if inst.Load {
		v, err := mem.LoadBlock(addr)
		if err != nil {
			return err
		}
		s.writeVector(inst.SrcDest, v, mask)
		return nil
	}

	v := s.regs.ReadVector(inst.SrcDest)
	if err := mem.StoreBlock(addr, v, mask); err != nil {
		return err
	}
	if mask != 0 {
		s.traceStore(addr, BlockByteMask(mask), alu.Merge(alu.Vector{}, v, mask))
	}
	return nil
}
