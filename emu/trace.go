package emu

import (
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/smtsim/alu"
)

// EventKind identifies a committed architectural side effect.
type EventKind uint8

// Event kinds.
const (
	EventScalarWrite EventKind = iota
	EventVectorWrite
	EventStore
)

// Event is one committed register write or memory store. Events are
// delivered in commit order.
type Event struct {
	Kind   EventKind
	PC     uint32 // Address of the committing instruction
	Strand int

	// Register writes
	Reg   uint8
	Value uint32   // Scalar value
	Mask  alu.Mask // Lanes written by a vector write

	// Lane values of a vector write, or the 16 words of the stored line as
	// laid out in memory (unwritten bytes are zero).
	Values alu.Vector

	// Stores
	Address  uint32 // Line-aligned address
	ByteMask uint64 // Byte b of the line is bit 63-b
}

// LineByteMask returns the store byte mask for size bytes at addr.
func LineByteMask(addr, size uint32) uint64 {
	offset := addr % LineSize
	return (uint64(1)<<size - 1) << (LineSize - offset - size)
}

// BlockByteMask expands a lane mask into a store byte mask.
func BlockByteMask(mask alu.Mask) uint64 {
	var bytes uint64
	for lane := 0; lane < alu.NumLanes; lane++ {
		if mask.Active(lane) {
			bytes |= 0xF << uint(60-lane*4)
		}
	}
	return bytes
}

func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%08x [st %d] ", e.PC, e.Strand)

	switch e.Kind {
	case EventScalarWrite:
		fmt.Fprintf(&b, "s%d <= %08x", e.Reg, e.Value)
	case EventVectorWrite:
		fmt.Fprintf(&b, "v%d{%04x} <=", e.Reg, uint16(e.Mask))
		writeWords(&b, e.Values)
	case EventStore:
		fmt.Fprintf(&b, "MEM[%08x]{%016x} <=", e.Address, e.ByteMask)
		writeWords(&b, e.Values)
	}
	return b.String()
}

func writeWords(b *strings.Builder, v alu.Vector) {
	for _, w := range v {
		fmt.Fprintf(b, " %08x", w)
	}
}

// Tracer receives committed events.
type Tracer interface {
	Trace(e Event)
}

// TextTracer prints one line per event.
type TextTracer struct {
	w io.Writer
}

// NewTextTracer creates a tracer printing to w.
func NewTextTracer(w io.Writer) *TextTracer {
	return &TextTracer{w: w}
}

// Trace implements Tracer.
func (t *TextTracer) Trace(e Event) {
	_, _ = fmt.Fprintln(t.w, e.String())
}

// Recorder keeps every event in memory.
type Recorder struct {
	Events []Event
}

// Trace implements Tracer.
func (r *Recorder) Trace(e Event) {
	r.Events = append(r.Events, e)
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.Events = nil
}

// MultiTracer forwards each event to several tracers in order.
type MultiTracer []Tracer

// Trace implements Tracer.
func (m MultiTracer) Trace(e Event) {
	for _, t := range m {
		t.Trace(e)
	}
}
