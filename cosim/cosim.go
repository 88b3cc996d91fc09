// Package cosim checks the processor against a hardware model in lockstep.
//
// The hardware reports every committed register write and store as a line
// of text. For each line the checker single-steps the named strand until it
// commits a side effect of its own and compares the two. When the hardware
// halts, the processor must reach its halt without committing anything else.
package cosim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/smtsim/emu"
)

// DefaultStepLimit is how many instructions a strand may execute while
// waiting for an expected event.
const DefaultStepLimit = 500

var (
	// ErrMismatch reports a side effect that differs from the hardware.
	ErrMismatch = errors.New("cosimulation mismatch")
	// ErrNoEvent reports a strand that committed nothing within the step
	// limit.
	ErrNoEvent = errors.New("no event occurred")
	// ErrNotHalted reports an event stream that ended without the halt
	// marker.
	ErrNotHalted = errors.New("program did not finish normally")
)

// MismatchError describes one disagreement. Expected is nil when the
// hardware had halted.
type MismatchError struct {
	Strand   int
	Expected *emu.Event
	Got      emu.Event
}

func (e *MismatchError) Error() string {
	if e.Expected == nil {
		return fmt.Sprintf("cosimulation mismatch on strand %d: got %v after hardware halted",
			e.Strand, e.Got)
	}
	return fmt.Sprintf("cosimulation mismatch on strand %d: expected %v, got %v",
		e.Strand, *e.Expected, e.Got)
}

func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}

// Option configures a Checker.
type Option func(*Checker)

// WithOutput sets where diagnostics and unrecognized lines go.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.out = w
	}
}

// WithVerbose echoes every input line.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithStepLimit overrides DefaultStepLimit.
func WithStepLimit(n int) Option {
	return func(c *Checker) {
		c.stepLimit = n
	}
}

// Checker compares the processor with the hardware event stream. It is the
// processor's tracer: create it first, pass it to emu.WithTracer, then
// Attach the processor.
type Checker struct {
	proc      *emu.Processor
	out       io.Writer
	verbose   bool
	stepLimit int

	pending []emu.Event
	events  uint64
}

// NewChecker creates a checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		out:       os.Stdout,
		stepLimit: DefaultStepLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach sets the processor to drive.
func (c *Checker) Attach(p *emu.Processor) {
	c.proc = p
}

// Trace implements emu.Tracer.
func (c *Checker) Trace(e emu.Event) {
	c.pending = append(c.pending, e)
}

// Events returns the number of events matched so far.
func (c *Checker) Events() uint64 {
	return c.events
}

// Run reads the event stream from r and checks every event. It returns nil
// when both sides halted in agreement.
func (c *Checker) Run(r io.Reader) error {
	if c.proc == nil {
		return fmt.Errorf("cosim: no processor attached")
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	halted := false
	for !halted && scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if c.verbose {
			_, _ = fmt.Fprintln(c.out, line)
		}

		rec, err := ParseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch rec.Kind {
		case RecordEvent:
			if err := c.Expect(rec.Event); err != nil {
				return err
			}
		case RecordInterrupt:
			c.proc.RaiseInterrupt(rec.Event.Strand)
		case RecordHalted:
			halted = true
		default:
			if !c.verbose {
				_, _ = fmt.Fprintln(c.out, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read event stream: %w", err)
	}

	if !halted {
		_, _ = fmt.Fprintln(c.out, ErrNotHalted)
		return ErrNotHalted
	}
	return c.Finish()
}

// Expect steps the strand of want until it commits an event and compares
// that event with want.
func (c *Checker) Expect(want emu.Event) error {
	for steps := 0; len(c.pending) == 0; steps++ {
		if steps == c.stepLimit {
			_, _ = fmt.Fprintf(c.out,
				"Simulator program in infinite loop? No event occurred. Was expecting:\n%v\n", want)
			return fmt.Errorf("%w: strand %d ran %d instructions", ErrNoEvent, want.Strand, steps)
		}
		res := c.proc.StepStrand(want.Strand)
		if res.Err != nil {
			return fmt.Errorf("strand %d at %08x: %w", res.Strand, res.PC, res.Err)
		}
	}

	got := c.pending[0]
	c.pending = c.pending[1:]
	if !Match(want, got) {
		return c.mismatch(want.Strand, &want, got)
	}
	c.events++
	return nil
}

// Finish runs the processor until it halts and fails if it commits any
// further event.
func (c *Checker) Finish() error {
	for {
		if len(c.pending) > 0 {
			got := c.pending[0]
			c.pending = c.pending[1:]
			return c.mismatch(got.Strand, nil, got)
		}
		if c.proc.Stopped() {
			return nil
		}
		res := c.proc.Step()
		if res.Err != nil {
			return fmt.Errorf("strand %d at %08x: %w", res.Strand, res.PC, res.Err)
		}
	}
}

func (c *Checker) mismatch(strand int, want *emu.Event, got emu.Event) error {
	c.proc.DumpRegisters(c.out, strand)
	_, _ = fmt.Fprintf(c.out, "COSIM MISMATCH, strand %d\n", strand)
	_, _ = fmt.Fprintf(c.out, "Reference: %v\n", got)
	if want == nil {
		_, _ = fmt.Fprintf(c.out, "Hardware:  HALTED\n")
	} else {
		_, _ = fmt.Fprintf(c.out, "Hardware:  %v\n", *want)
	}
	return &MismatchError{Strand: strand, Expected: want, Got: got}
}

// Match reports whether got is the side effect want describes. Vector
// writes compare only the written lanes and stores only the written bytes.
func Match(want, got emu.Event) bool {
	if want.Kind != got.Kind || want.PC != got.PC || want.Strand != got.Strand {
		return false
	}

	switch want.Kind {
	case emu.EventScalarWrite:
		return want.Reg == got.Reg && want.Value == got.Value
	case emu.EventVectorWrite:
		if want.Reg != got.Reg || want.Mask != got.Mask {
			return false
		}
		for lane := range want.Values {
			if want.Mask.Active(lane) && want.Values[lane] != got.Values[lane] {
				return false
			}
		}
		return true
	case emu.EventStore:
		if want.Address != got.Address || want.ByteMask != got.ByteMask {
			return false
		}
		for b := 0; b < emu.LineSize; b++ {
			if want.ByteMask&(1<<uint(63-b)) != 0 && lineByte(want, b) != lineByte(got, b) {
				return false
			}
		}
		return true
	}
	return false
}

func lineByte(e emu.Event, b int) uint8 {
	return uint8(e.Values[b/4] >> (8 * uint(b%4)))
}
