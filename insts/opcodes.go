package insts

// Op represents an arithmetic opcode shared by formats A and B. Format B
// encodes only the low 32 opcodes.
type Op uint8

// Arithmetic opcodes.
const (
	OpOr         Op = 0
	OpAnd        Op = 1
	OpNeg        Op = 2
	OpXor        Op = 3
	OpNot        Op = 4
	OpAdd        Op = 5
	OpSub        Op = 6
	OpMull       Op = 7
	OpDiv        Op = 8
	OpAshr       Op = 9
	OpShr        Op = 10
	OpShl        Op = 11
	OpClz        Op = 12
	OpShuffle    Op = 13
	OpCtz        Op = 14
	OpMove       Op = 15
	OpCmpEq      Op = 16
	OpCmpNe      Op = 17
	OpCmpGtI     Op = 18
	OpCmpGeI     Op = 19
	OpCmpLtI     Op = 20
	OpCmpLeI     Op = 21
	OpCmpGtU     Op = 22
	OpCmpGeU     Op = 23
	OpCmpLtU     Op = 24
	OpCmpLeU     Op = 25
	OpGetLane    Op = 26
	OpFtoi       Op = 27
	OpReciprocal Op = 28
	OpSext8      Op = 29
	OpSext16     Op = 30
	OpMulhI      Op = 31
	OpFAdd       Op = 32
	OpFSub       Op = 33
	OpFMul       Op = 34
	OpAndn       Op = 35
	OpMulhU      Op = 36
	OpZext8      Op = 37
	OpZext16     Op = 38
	OpItof       Op = 42
	OpCmpGtF     Op = 44
	OpCmpGeF     Op = 45
	OpCmpLtF     Op = 46
	OpCmpLeF     Op = 47
	OpCmpEqF     Op = 48
	OpCmpNeF     Op = 49
	OpBreakpoint Op = 62
	OpSyscall    Op = 63
)

// NumOps is the size of the opcode space addressable by format A.
const NumOps = 64

type opClass uint8

const (
	classBinary opClass = iota + 1
	classUnary
	classCompare
	classTrap
)

type opInfo struct {
	name  string
	class opClass
}

// opTable maps every opcode number to its mnemonic and operand class.
// Entries with a zero class are reserved.
var opTable = [NumOps]opInfo{
	OpOr:         {"or", classBinary},
	OpAnd:        {"and", classBinary},
	OpNeg:        {"neg", classUnary},
	OpXor:        {"xor", classBinary},
	OpNot:        {"not", classUnary},
	OpAdd:        {"add_i", classBinary},
	OpSub:        {"sub_i", classBinary},
	OpMull:       {"mull_i", classBinary},
	OpDiv:        {"div_i", classBinary},
	OpAshr:       {"ashr", classBinary},
	OpShr:        {"shr", classBinary},
	OpShl:        {"shl", classBinary},
	OpClz:        {"clz", classUnary},
	OpShuffle:    {"shuffle", classBinary},
	OpCtz:        {"ctz", classUnary},
	OpMove:       {"move", classUnary},
	OpCmpEq:      {"cmpeq_i", classCompare},
	OpCmpNe:      {"cmpne_i", classCompare},
	OpCmpGtI:     {"cmpgt_i", classCompare},
	OpCmpGeI:     {"cmpge_i", classCompare},
	OpCmpLtI:     {"cmplt_i", classCompare},
	OpCmpLeI:     {"cmple_i", classCompare},
	OpCmpGtU:     {"cmpgt_u", classCompare},
	OpCmpGeU:     {"cmpge_u", classCompare},
	OpCmpLtU:     {"cmplt_u", classCompare},
	OpCmpLeU:     {"cmple_u", classCompare},
	OpGetLane:    {"getlane", classBinary},
	OpFtoi:       {"ftoi", classUnary},
	OpReciprocal: {"reciprocal", classUnary},
	OpSext8:      {"sext_8", classUnary},
	OpSext16:     {"sext_16", classUnary},
	OpMulhI:      {"mulh_i", classBinary},
	OpFAdd:       {"add_f", classBinary},
	OpFSub:       {"sub_f", classBinary},
	OpFMul:       {"mul_f", classBinary},
	OpAndn:       {"andn", classBinary},
	OpMulhU:      {"mulh_u", classBinary},
	OpZext8:      {"zext_8", classUnary},
	OpZext16:     {"zext_16", classUnary},
	OpItof:       {"itof", classUnary},
	OpCmpGtF:     {"cmpgt_f", classCompare},
	OpCmpGeF:     {"cmpge_f", classCompare},
	OpCmpLtF:     {"cmplt_f", classCompare},
	OpCmpLeF:     {"cmple_f", classCompare},
	OpCmpEqF:     {"cmpeq_f", classCompare},
	OpCmpNeF:     {"cmpne_f", classCompare},
	OpBreakpoint: {"breakpoint", classTrap},
	OpSyscall:    {"syscall", classTrap},
}

// Valid reports whether the opcode number is assigned.
func (op Op) Valid() bool {
	return int(op) < NumOps && opTable[op].class != 0
}

// IsCompare reports whether the opcode produces a boolean result.
func (op Op) IsCompare() bool {
	return op.Valid() && opTable[op].class == classCompare
}

// IsUnary reports whether the opcode reads only its second operand.
func (op Op) IsUnary() bool {
	return op.Valid() && opTable[op].class == classUnary
}

// IsTrap reports whether the opcode deliberately enters the trap handler.
func (op Op) IsTrap() bool {
	return op.Valid() && opTable[op].class == classTrap
}

// IsFloatCompare reports whether the opcode compares IEEE-754 operands.
func (op Op) IsFloatCompare() bool {
	return op >= OpCmpGtF && op <= OpCmpNeF
}

func (op Op) String() string {
	if !op.Valid() {
		return "illegal"
	}
	return opTable[op].name
}

// OpByName looks up an opcode by mnemonic.
func OpByName(name string) (Op, bool) {
	for i, info := range opTable {
		if info.class != 0 && info.name == name {
			return Op(i), true
		}
	}
	return 0, false
}
