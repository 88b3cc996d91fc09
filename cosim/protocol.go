package cosim

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/emu"
)

// RecordKind classifies a line of the hardware event stream.
type RecordKind uint8

// Record kinds.
const (
	RecordOther RecordKind = iota
	RecordEvent
	RecordInterrupt
	RecordHalted
)

// HaltedMarker ends the hardware event stream.
const HaltedMarker = "***HALTED***"

// Record is one parsed line. For RecordEvent, Event holds the expected side
// effect. For RecordInterrupt, Event.Strand and Event.PC name the
// interrupted strand and the PC the hardware reported.
type Record struct {
	Kind  RecordKind
	Event emu.Event
}

// ParseLine parses one line of the hardware event stream:
//
//	swriteback <pc> <strand> <reg> <value>
//	vwriteback <pc> <strand> <reg> <mask> <128 hex digits, lane 0 first>
//	store <pc> <strand> <line address> <byte mask> <128 hex digits, memory order>
//	interrupt <strand> <pc>
//	***HALTED***
//
// Numbers are hexadecimal except the interrupt strand. Lines that match
// none of these are returned as RecordOther.
func ParseLine(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == HaltedMarker {
		return Record{Kind: RecordHalted}, nil
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Record{Kind: RecordOther}, nil
	}

	switch {
	case fields[0] == "swriteback" && len(fields) == 5:
		return parseScalarWriteback(fields[1:])
	case fields[0] == "vwriteback" && len(fields) == 6:
		return parseVectorWriteback(fields[1:])
	case fields[0] == "store" && len(fields) == 6:
		return parseStore(fields[1:])
	case fields[0] == "interrupt" && len(fields) == 3:
		return parseInterrupt(fields[1:])
	}
	return Record{Kind: RecordOther}, nil
}

func parseScalarWriteback(f []string) (Record, error) {
	nums, err := parseHexFields(f)
	if err != nil {
		return Record{}, fmt.Errorf("swriteback: %w", err)
	}
	if nums[1] >= emu.NumStrands || nums[2] >= 32 {
		return Record{}, fmt.Errorf("swriteback: strand or register out of range")
	}
	return Record{Kind: RecordEvent, Event: emu.Event{
		Kind:   emu.EventScalarWrite,
		PC:     uint32(nums[0]),
		Strand: int(nums[1]),
		Reg:    uint8(nums[2]),
		Value:  uint32(nums[3]),
	}}, nil
}

func parseVectorWriteback(f []string) (Record, error) {
	nums, err := parseHexFields(f[:4])
	if err != nil {
		return Record{}, fmt.Errorf("vwriteback: %w", err)
	}
	if nums[1] >= emu.NumStrands || nums[2] >= 32 || nums[3] > 0xFFFF {
		return Record{}, fmt.Errorf("vwriteback: strand, register or mask out of range")
	}
	values, err := parseHexVector(f[4], false)
	if err != nil {
		return Record{}, fmt.Errorf("vwriteback: %w", err)
	}
	return Record{Kind: RecordEvent, Event: emu.Event{
		Kind:   emu.EventVectorWrite,
		PC:     uint32(nums[0]),
		Strand: int(nums[1]),
		Reg:    uint8(nums[2]),
		Mask:   alu.Mask(nums[3]),
		Values: values,
	}}, nil
}

func parseStore(f []string) (Record, error) {
	nums, err := parseHexFields(f[:4])
	if err != nil {
		return Record{}, fmt.Errorf("store: %w", err)
	}
	if nums[1] >= emu.NumStrands || nums[2] > 0xFFFFFFFF {
		return Record{}, fmt.Errorf("store: strand or address out of range")
	}
	values, err := parseHexVector(f[4], true)
	if err != nil {
		return Record{}, fmt.Errorf("store: %w", err)
	}
	return Record{Kind: RecordEvent, Event: emu.Event{
		Kind:     emu.EventStore,
		PC:       uint32(nums[0]),
		Strand:   int(nums[1]),
		Address:  uint32(nums[2]) &^ (emu.LineSize - 1),
		ByteMask: nums[3],
		Values:   values,
	}}, nil
}

func parseInterrupt(f []string) (Record, error) {
	strand, err := strconv.ParseUint(f[0], 10, 8)
	if err != nil || strand >= emu.NumStrands {
		return Record{}, fmt.Errorf("interrupt: invalid strand %q", f[0])
	}
	pc, err := strconv.ParseUint(f[1], 16, 32)
	if err != nil {
		return Record{}, fmt.Errorf("interrupt: invalid pc %q", f[1])
	}
	return Record{Kind: RecordInterrupt, Event: emu.Event{
		Strand: int(strand),
		PC:     uint32(pc),
	}}, nil
}

func parseHexFields(f []string) ([]uint64, error) {
	nums := make([]uint64, len(f))
	for i, s := range f {
		n, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		nums[i] = n
	}
	return nums, nil
}

// parseHexVector reads 16 words of 8 hex digits. Store payloads list the
// bytes of the line in memory order, so their words are byte-swapped into
// little-endian values.
func parseHexVector(s string, memoryOrder bool) (alu.Vector, error) {
	var v alu.Vector
	if len(s) != alu.NumLanes*8 {
		return v, fmt.Errorf("vector payload has %d digits, want %d", len(s), alu.NumLanes*8)
	}
	for lane := range v {
		word, err := strconv.ParseUint(s[lane*8:lane*8+8], 16, 32)
		if err != nil {
			return v, fmt.Errorf("bad hex vector word %q", s[lane*8:lane*8+8])
		}
		v[lane] = uint32(word)
		if memoryOrder {
			v[lane] = bits.ReverseBytes32(v[lane])
		}
	}
	return v, nil
}

// FormatEvent renders a committed event as a line of the hardware event
// stream. ParseLine reads it back.
func FormatEvent(e emu.Event) string {
	var b strings.Builder
	switch e.Kind {
	case emu.EventScalarWrite:
		fmt.Fprintf(&b, "swriteback %08x %x %x %08x", e.PC, e.Strand, e.Reg, e.Value)
	case emu.EventVectorWrite:
		fmt.Fprintf(&b, "vwriteback %08x %x %x %04x ", e.PC, e.Strand, e.Reg, uint16(e.Mask))
		for _, w := range e.Values {
			fmt.Fprintf(&b, "%08x", w)
		}
	case emu.EventStore:
		fmt.Fprintf(&b, "store %08x %x %08x %016x ", e.PC, e.Strand, e.Address, e.ByteMask)
		for _, w := range e.Values {
			fmt.Fprintf(&b, "%08x", bits.ReverseBytes32(w))
		}
	}
	return b.String()
}
