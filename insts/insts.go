// Package insts provides instruction definitions, decoding and encoding for
// the SMT vector processor.
//
// Every instruction is a single 32-bit little-endian word in one of five
// formats:
//   - A: register/register arithmetic (scalar, vector/scalar, vector/vector)
//   - B: register/immediate arithmetic
//   - C: scalar and vector memory transfers, control register transfers
//   - D: cache control
//   - E: branches and calls
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0xc0500041) // add_i s2, s1, s0
//	fmt.Printf("Op: %v, Dest: %d, Src1: %d, Src2: %d\n", inst.Op, inst.Dest, inst.Src1, inst.Src2)
package insts

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatNop Format = iota // All-zero word; executes with no effect
	FormatA                 // Register arithmetic
	FormatB                 // Immediate arithmetic
	FormatC                 // Memory / control register transfer
	FormatD                 // Cache control
	FormatE                 // Branch
)

func (f Format) String() string {
	switch f {
	case FormatNop:
		return "nop"
	case FormatA:
		return "A"
	case FormatB:
		return "B"
	case FormatC:
		return "C"
	case FormatD:
		return "D"
	case FormatE:
		return "E"
	default:
		return "?"
	}
}

// AFormat is the 3-bit operand-shape field of a format A instruction.
type AFormat uint8

// Format A operand shapes.
const (
	AFmtScalar           AFormat = 0 // s = s op s
	AFmtVectorScalar     AFormat = 1 // v = v op s
	AFmtVectorScalarMask AFormat = 2
	AFmtVectorScalarInv  AFormat = 3
	AFmtVectorVector     AFormat = 4 // v = v op v
	AFmtVectorVectorMask AFormat = 5
	AFmtVectorVectorInv  AFormat = 6
	AFmtReserved         AFormat = 7
)

// BFormat is the 3-bit operand-shape field of a format B instruction.
type BFormat uint8

// Format B operand shapes.
const (
	BFmtScalar          BFormat = 0 // s = s op imm
	BFmtVector          BFormat = 1 // v = v op imm
	BFmtVectorMask      BFormat = 2
	BFmtVectorInv       BFormat = 3
	BFmtScalarToVector  BFormat = 4 // v = splat(s op imm)
	BFmtScalarToVecMask BFormat = 5
	BFmtScalarToVecInv  BFormat = 6
	BFmtReserved        BFormat = 7
)

// MaskMode selects which vector lanes an instruction writes.
type MaskMode uint8

// Masking disciplines.
const (
	MaskNone     MaskMode = iota // All 16 lanes
	MaskReg                      // Lanes whose bit is set in the mask register
	MaskInverted                 // Lanes whose bit is clear in the mask register
)

// MemOp is the 4-bit operation field of a format C instruction.
type MemOp uint8

// Memory operations.
const (
	MemByte        MemOp = 0
	MemByteSigned  MemOp = 1
	MemHalf        MemOp = 2
	MemHalfSigned  MemOp = 3
	MemWord        MemOp = 4
	MemSync        MemOp = 5
	MemControl     MemOp = 6
	MemBlock       MemOp = 7
	MemBlockMask   MemOp = 8
	MemBlockInv    MemOp = 9
	MemStrided     MemOp = 10
	MemStridedMask MemOp = 11
	MemStridedInv  MemOp = 12
	MemScatter     MemOp = 13
	MemScatterMask MemOp = 14
	MemScatterInv  MemOp = 15
)

// IsVector reports whether the operation transfers a whole vector register.
func (m MemOp) IsVector() bool {
	return m >= MemBlock
}

// MaskMode returns the masking discipline of a vector memory operation.
func (m MemOp) MaskMode() MaskMode {
	if !m.IsVector() {
		return MaskNone
	}
	return MaskMode((m - MemBlock) % 3)
}

// CacheOp is the 3-bit operation field of a format D instruction.
type CacheOp uint8

// Cache control operations.
const (
	CacheDPreload    CacheOp = 0
	CacheDInvalidate CacheOp = 1
	CacheDFlush      CacheOp = 2
	CacheIInvalidate CacheOp = 3
	CacheMembar      CacheOp = 4
)

// BranchType is the 3-bit condition field of a format E instruction.
type BranchType uint8

// Branch types.
const (
	BranchAll     BranchType = 0 // Low 16 bits of src all set
	BranchZero    BranchType = 1
	BranchNotZero BranchType = 2
	BranchAlways  BranchType = 3
	BranchCall    BranchType = 4 // PC-relative call
	BranchNotAll  BranchType = 5
	BranchCallReg BranchType = 6 // Register-indirect call
	BranchEret    BranchType = 7 // Return from trap
)

// LinkRegister receives the return address of call instructions.
const LinkRegister = 30

// PCRegister is the scalar register index aliased to the program counter.
const PCRegister = 31

// Instruction represents a decoded instruction.
type Instruction struct {
	Word   uint32 // Raw encoding
	Format Format // Encoding format

	// Illegal is set when the word selects a reserved format, opcode or
	// operand combination. Executing it raises IllegalInstruction.
	Illegal bool

	// Arithmetic fields (formats A and B)
	Op         Op
	AFmt       AFormat
	BFmt       BFormat
	Dest       uint8 // Destination register
	Src1       uint8 // First source register
	Src2       uint8 // Second source register (format A)
	MaskReg    uint8 // Scalar register holding the lane mask
	Mask       MaskMode
	Imm        int32 // Sign-extended immediate (format B)
	HasImm     bool  // Second operand is Imm rather than a register
	VectorDest bool  // Destination is a vector register
	VectorSrc1 bool  // First source is a vector register
	VectorSrc2 bool  // Second source is a vector register

	// Memory fields (format C)
	MemOp   MemOp
	Load    bool
	Ptr     uint8 // Base pointer register (scalar or vector for scatter/gather)
	SrcDest uint8 // Register loaded into or stored from
	Offset  int32 // Sign-extended byte offset (formats C, D, E)

	// Cache control field (format D)
	CacheOp CacheOp

	// Branch fields (format E)
	Branch    BranchType
	BranchSrc uint8
}

// IsCompare reports whether the instruction is an arithmetic compare.
func (i *Instruction) IsCompare() bool {
	return (i.Format == FormatA || i.Format == FormatB) && i.Op.IsCompare()
}
