package insts

import (
	"fmt"
	"strings"
)

var memOpNames = [16]string{
	"u8", "s8", "u16", "s16", "32", "sync", "control", "v",
	"v_mask", "v_invmask", "strd", "strd_mask", "strd_invmask",
	"gath", "gath_mask", "gath_invmask",
}

var cacheOpNames = [8]string{
	"dpreload", "dinvalidate", "dflush", "iinvalidate", "membar",
}

var branchNames = [8]string{
	"ball", "bzero", "bnz", "b", "call", "bnall", "call", "eret",
}

func maskSuffix(m MaskMode) string {
	switch m {
	case MaskReg:
		return "_mask"
	case MaskInverted:
		return "_invmask"
	default:
		return ""
	}
}

func regName(vector bool, n uint8) string {
	if vector {
		return fmt.Sprintf("v%d", n)
	}
	if n == PCRegister {
		return "pc"
	}
	return fmt.Sprintf("s%d", n)
}

// String renders the instruction in assembler syntax.
func (i *Instruction) String() string {
	if i.Illegal {
		return fmt.Sprintf(".long 0x%08x", i.Word)
	}

	switch i.Format {
	case FormatNop:
		return "nop"
	case FormatA, FormatB:
		return i.arithString()
	case FormatC:
		return i.memoryString()
	case FormatD:
		name := cacheOpNames[i.CacheOp]
		if i.CacheOp == CacheMembar {
			return name
		}
		return fmt.Sprintf("%s %d(s%d)", name, i.Offset, i.Ptr)
	case FormatE:
		switch i.Branch {
		case BranchEret:
			return "eret"
		case BranchAlways, BranchCall:
			return fmt.Sprintf("%s %+d", branchNames[i.Branch], i.Offset)
		case BranchCallReg:
			return fmt.Sprintf("call %s", regName(false, i.BranchSrc))
		default:
			return fmt.Sprintf("%s s%d, %+d", branchNames[i.Branch], i.BranchSrc, i.Offset)
		}
	}
	return fmt.Sprintf(".long 0x%08x", i.Word)
}

func (i *Instruction) arithString() string {
	if i.Op.IsTrap() {
		return i.Op.String()
	}

	var b strings.Builder
	b.WriteString(i.Op.String())
	if i.VectorDest || (i.IsCompare() && i.VectorSrc1) {
		b.WriteString(maskSuffix(i.Mask))
	}

	ops := []string{regName(i.VectorDest, i.Dest)}
	if i.Mask != MaskNone {
		ops = append(ops, regName(false, i.MaskReg))
	}
	if !i.Op.IsUnary() {
		ops = append(ops, regName(i.VectorSrc1, i.Src1))
	}
	if i.HasImm {
		ops = append(ops, fmt.Sprintf("%d", i.Imm))
	} else {
		ops = append(ops, regName(i.VectorSrc2, i.Src2))
	}

	b.WriteByte(' ')
	b.WriteString(strings.Join(ops, ", "))
	return b.String()
}

func (i *Instruction) memoryString() string {
	verb := "store_"
	if i.Load {
		verb = "load_"
	}

	if i.MemOp == MemControl {
		if i.Load {
			return fmt.Sprintf("getcr s%d, %d", i.SrcDest, i.Ptr)
		}
		return fmt.Sprintf("setcr s%d, %d", i.SrcDest, i.Ptr)
	}

	target := regName(i.MemOp.IsVector(), i.SrcDest)
	base := fmt.Sprintf("%d(%s)", i.Offset, regName(i.MemOp >= MemScatter, i.Ptr))
	if i.Mask != MaskNone {
		return fmt.Sprintf("%s%s %s, s%d, %s", verb, memOpNames[i.MemOp], target, i.MaskReg, base)
	}
	return fmt.Sprintf("%s%s %s, %s", verb, memOpNames[i.MemOp], target, base)
}

// Disassemble decodes and renders a single instruction word.
func Disassemble(word uint32) string {
	return NewDecoder().Decode(word).String()
}
