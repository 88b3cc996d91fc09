package insts

// The encoders build machine words from fields. They do not validate
// operands beyond truncating them to their field widths; Decode is the
// authority on legality.

// EncodeA builds a format A (register arithmetic) instruction.
func EncodeA(fmt AFormat, op Op, dest, src1, src2, mask uint8) uint32 {
	return 0x6<<29 |
		uint32(fmt&7)<<26 |
		uint32(op&0x3F)<<20 |
		uint32(src2&0x1F)<<15 |
		uint32(mask&0x1F)<<10 |
		uint32(dest&0x1F)<<5 |
		uint32(src1&0x1F)
}

// EncodeB builds a format B (immediate arithmetic) instruction. For masked
// shapes the immediate is truncated to 8 bits, otherwise to 13 bits.
func EncodeB(fmt BFormat, op Op, dest, src1 uint8, imm int32, mask uint8) uint32 {
	word := uint32(fmt&7)<<28 |
		uint32(op&0x1F)<<23 |
		uint32(dest&0x1F)<<5 |
		uint32(src1&0x1F)
	if maskModeOf(uint8(fmt)) != MaskNone {
		word |= (uint32(imm)&0xFF)<<15 | uint32(mask&0x1F)<<10
	} else {
		word |= (uint32(imm) & 0x1FFF) << 10
	}
	return word
}

// EncodeC builds a format C (memory) instruction. For masked vector
// operations the offset is truncated to 10 bits, otherwise to 15 bits.
func EncodeC(load bool, op MemOp, srcDest, ptr uint8, offset int32, mask uint8) uint32 {
	word := uint32(0x2)<<30 |
		uint32(op&0xF)<<25 |
		uint32(srcDest&0x1F)<<5 |
		uint32(ptr&0x1F)
	if load {
		word |= 1 << 29
	}
	if op.MaskMode() != MaskNone {
		word |= (uint32(offset)&0x3FF)<<15 | uint32(mask&0x1F)<<10
	} else {
		word |= (uint32(offset) & 0x7FFF) << 10
	}
	return word
}

// EncodeGetControl builds a control register read into a scalar register.
func EncodeGetControl(dest, cr uint8) uint32 {
	return EncodeC(true, MemControl, dest, cr, 0, 0)
}

// EncodeSetControl builds a control register write from a scalar register.
func EncodeSetControl(src, cr uint8) uint32 {
	return EncodeC(false, MemControl, src, cr, 0, 0)
}

// EncodeD builds a format D (cache control) instruction.
func EncodeD(op CacheOp, ptr uint8, offset int32) uint32 {
	return uint32(0xE)<<28 |
		uint32(op&7)<<25 |
		(uint32(offset)&0x7FFF)<<10 |
		uint32(ptr&0x1F)
}

// EncodeE builds a format E (branch) instruction. The offset is in bytes
// relative to the instruction after the branch.
func EncodeE(typ BranchType, src uint8, offset int32) uint32 {
	return uint32(0xF)<<28 |
		uint32(typ&7)<<25 |
		(uint32(offset)&0xFFFFF)<<5 |
		uint32(src&0x1F)
}
