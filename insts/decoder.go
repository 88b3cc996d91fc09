package insts

// Decoder decodes machine words into instructions.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word. Decoding never fails: reserved
// encodings come back with Illegal set so the executing strand can trap.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Word: word}

	switch {
	case word == 0:
		inst.Format = FormatNop
	case word>>28 == 0xF:
		d.decodeBranch(word, inst)
	case word>>28 == 0xE:
		d.decodeCacheControl(word, inst)
	case word>>29 == 0x6:
		d.decodeRegisterArith(word, inst)
	case word>>30 == 0x2:
		d.decodeMemory(word, inst)
	default:
		d.decodeImmediateArith(word, inst)
	}

	return inst
}

// field extracts an unsigned bit field of the given width starting at lsb.
func field(word uint32, lsb, width uint) uint32 {
	return (word >> lsb) & (1<<width - 1)
}

// signedField extracts a sign-extended bit field.
func signedField(word uint32, lsb, width uint) int32 {
	shift := 32 - width
	return int32(field(word, lsb, width)<<shift) >> shift
}

// maskModeOf maps the masked/inverted position within a group of three
// operand shapes (unmasked, masked, inverted) to a MaskMode.
func maskModeOf(fmt uint8) MaskMode {
	if fmt == 0 {
		return MaskNone
	}
	return MaskMode((fmt - 1) % 3)
}

// decodeRegisterArith decodes format A.
// Layout: 110 | fmt[28:26] | op[25:20] | src2[19:15] | mask[14:10] | dest[9:5] | src1[4:0]
func (d *Decoder) decodeRegisterArith(word uint32, inst *Instruction) {
	inst.Format = FormatA

	fmt := AFormat(field(word, 26, 3))
	inst.AFmt = fmt
	inst.Op = Op(field(word, 20, 6))
	inst.Src1 = uint8(field(word, 0, 5))
	inst.Dest = uint8(field(word, 5, 5))
	inst.MaskReg = uint8(field(word, 10, 5))
	inst.Src2 = uint8(field(word, 15, 5))

	if fmt == AFmtReserved || !inst.Op.Valid() {
		inst.Illegal = true
		return
	}

	inst.Mask = maskModeOf(uint8(fmt))
	inst.VectorSrc1 = fmt != AFmtScalar
	inst.VectorSrc2 = fmt >= AFmtVectorVector
	inst.VectorDest = fmt != AFmtScalar && !inst.Op.IsCompare() && inst.Op != OpGetLane

	switch inst.Op {
	case OpGetLane:
		// Vector source, scalar lane index, scalar result
		if fmt < AFmtVectorScalar || fmt > AFmtVectorScalarInv {
			inst.Illegal = true
		}
	case OpShuffle:
		if fmt < AFmtVectorVector {
			inst.Illegal = true
		}
	}
}

// decodeImmediateArith decodes format B.
// Layout: 0 | fmt[30:28] | op[27:23] | imm[22:10] | dest[9:5] | src1[4:0]
// Masked forms carry the mask register in [14:10] and an 8-bit immediate in [22:15].
func (d *Decoder) decodeImmediateArith(word uint32, inst *Instruction) {
	inst.Format = FormatB

	fmt := BFormat(field(word, 28, 3))
	inst.BFmt = fmt
	inst.Op = Op(field(word, 23, 5))
	inst.Src1 = uint8(field(word, 0, 5))
	inst.Dest = uint8(field(word, 5, 5))
	inst.HasImm = true

	if fmt == BFmtReserved {
		inst.Illegal = true
		return
	}

	inst.Mask = maskModeOf(uint8(fmt))
	if inst.Mask != MaskNone {
		inst.MaskReg = uint8(field(word, 10, 5))
		inst.Imm = signedField(word, 15, 8)
	} else {
		inst.Imm = signedField(word, 10, 13)
	}

	if !inst.Op.Valid() {
		inst.Illegal = true
		return
	}

	vectorSrc := fmt >= BFmtVector && fmt <= BFmtVectorInv
	inst.VectorSrc1 = vectorSrc
	inst.VectorDest = fmt != BFmtScalar && !inst.Op.IsCompare() && inst.Op != OpGetLane

	switch {
	case inst.Op == OpShuffle:
		inst.Illegal = true
	case inst.Op == OpGetLane && !vectorSrc:
		inst.Illegal = true
	case inst.Op.IsCompare() && fmt >= BFmtScalarToVector:
		inst.Illegal = true
	}
}

// decodeMemory decodes format C.
// Layout: 10 | load[29] | op[28:25] | offset[24:10] | srcdest[9:5] | ptr[4:0]
// Masked vector forms carry the mask register in [14:10] and a 10-bit offset in [24:15].
func (d *Decoder) decodeMemory(word uint32, inst *Instruction) {
	inst.Format = FormatC

	inst.MemOp = MemOp(field(word, 25, 4))
	inst.Load = field(word, 29, 1) == 1
	inst.Ptr = uint8(field(word, 0, 5))
	inst.SrcDest = uint8(field(word, 5, 5))
	inst.Mask = inst.MemOp.MaskMode()

	if inst.Mask != MaskNone {
		inst.MaskReg = uint8(field(word, 10, 5))
		inst.Offset = signedField(word, 15, 10)
	} else {
		inst.Offset = signedField(word, 10, 15)
	}
}

// decodeCacheControl decodes format D.
// Layout: 1110 | op[27:25] | offset[24:10] | unused[9:5] | ptr[4:0]
func (d *Decoder) decodeCacheControl(word uint32, inst *Instruction) {
	inst.Format = FormatD

	inst.CacheOp = CacheOp(field(word, 25, 3))
	inst.Ptr = uint8(field(word, 0, 5))
	inst.Offset = signedField(word, 10, 15)

	if inst.CacheOp > CacheMembar {
		inst.Illegal = true
	}
}

// decodeBranch decodes format E.
// Layout: 1111 | type[27:25] | offset[24:5] | src[4:0]
// The offset is in bytes relative to the following instruction.
func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	inst.Format = FormatE

	inst.Branch = BranchType(field(word, 25, 3))
	inst.BranchSrc = uint8(field(word, 0, 5))
	inst.Offset = signedField(word, 5, 20)
}
