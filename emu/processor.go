package emu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sarchlab/smtsim/insts"
)

// NumStrands is the number of hardware strands per processor.
const NumStrands = 4

// DefaultInstructionBudget bounds Run when no budget is configured.
const DefaultInstructionBudget = 80_000_000

// ctxCheckInterval is how many instructions Run executes between context
// checks.
const ctxCheckInterval = 1024

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Strand that executed, and the PC it executed at.
	Strand int
	PC     uint32

	// Halted is true once the processor will not execute any more
	// instructions: the halt register was written or no strand is enabled.
	Halted bool

	// Err is a *FatalError, or ErrHostTimeout when the instruction budget
	// is exhausted.
	Err error
}

// StopReason says why Run returned.
type StopReason int

// Stop reasons.
const (
	ReasonHalted StopReason = iota
	ReasonStopped
	ReasonTimeout
	ReasonCrashed
	ReasonBreakpoint
	ReasonCanceled
)

func (r StopReason) String() string {
	switch r {
	case ReasonHalted:
		return "halted"
	case ReasonStopped:
		return "stopped"
	case ReasonTimeout:
		return "timeout"
	case ReasonCrashed:
		return "crashed"
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonCanceled:
		return "canceled"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// RunResult reports the outcome of Run.
type RunResult struct {
	Reason StopReason

	// Instructions executed by this call.
	Instructions uint64

	// Strand and PC of the last instruction attempted, or of the breakpoint.
	Strand int
	PC     uint32

	Err error
}

// Processor owns the strands, the shared memory, the strand-enable mask and
// the halt flag, and interleaves strands one instruction at a time.
// A Processor is not safe for concurrent use, except RaiseInterrupt.
type Processor struct {
	memory  *Memory
	decoder *insts.Decoder
	strands [NumStrands]*Strand
	sched   scheduler

	enableMask uint32
	halted     bool

	tracer Tracer
	device Device

	// I/O
	stdout io.Writer
	stderr io.Writer

	// Execution state
	instructions uint64
	budget       uint64 // 0 means no limit
	wallClock    time.Duration

	breakpoints map[uint32]bool
	resumed     [NumStrands]bool

	memorySize uint32
	observer   CacheObserver
}

// ProcessorOption is a functional option for configuring the Processor.
type ProcessorOption func(*Processor)

// WithMemorySize sets the size of physical memory in bytes.
func WithMemorySize(size uint32) ProcessorOption {
	return func(p *Processor) {
		p.memorySize = size
	}
}

// WithMemory uses an existing memory instead of allocating one.
func WithMemory(m *Memory) ProcessorOption {
	return func(p *Processor) {
		p.memory = m
	}
}

// WithTracer sets the receiver of committed events.
func WithTracer(t Tracer) ProcessorOption {
	return func(p *Processor) {
		p.tracer = t
	}
}

// WithStdout sets the writer the console device prints to.
func WithStdout(w io.Writer) ProcessorOption {
	return func(p *Processor) {
		p.stdout = w
	}
}

// WithStderr sets the writer fatal diagnostics are printed to.
func WithStderr(w io.Writer) ProcessorOption {
	return func(p *Processor) {
		p.stderr = w
	}
}

// WithDevice replaces the console device in the I/O window.
func WithDevice(d Device) ProcessorOption {
	return func(p *Processor) {
		p.device = d
	}
}

// WithInstructionBudget sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithInstructionBudget(n uint64) ProcessorOption {
	return func(p *Processor) {
		p.budget = n
	}
}

// WithWallClockLimit bounds the duration of each Run call.
// A value of 0 means no limit.
func WithWallClockLimit(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.wallClock = d
	}
}

// WithCacheObserver attaches a cache model to memory.
func WithCacheObserver(o CacheObserver) ProcessorOption {
	return func(p *Processor) {
		p.observer = o
	}
}

// WithEnableMask sets the initial strand-enable mask.
func WithEnableMask(mask uint32) ProcessorOption {
	return func(p *Processor) {
		p.enableMask = mask & allStrands
	}
}

const allStrands = 1<<NumStrands - 1

// NewProcessor creates a processor in its reset state: all strands at PC 0
// in supervisor mode with traps disabled, and only strand 0 enabled.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		decoder:     insts.NewDecoder(),
		sched:       scheduler{numStrands: NumStrands},
		enableMask:  1,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		budget:      DefaultInstructionBudget,
		breakpoints: make(map[uint32]bool),
		memorySize:  DefaultMemorySize,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.memory == nil {
		p.memory = NewMemory(p.memorySize)
	}
	if p.device == nil {
		p.device = NewConsole(p.stdout)
	}
	p.memory.SetDevice(p.device)
	if p.observer != nil {
		p.memory.SetObserver(p.observer)
	}

	for i := range p.strands {
		p.strands[i] = newStrand(i, p)
	}

	return p
}

// Memory returns the shared memory.
func (p *Processor) Memory() *Memory {
	return p.memory
}

// Strand returns strand id.
func (p *Processor) Strand(id int) *Strand {
	return p.strands[id]
}

// LoadImage copies a flat memory image to base.
func (p *Processor) LoadImage(base uint32, image []byte) error {
	if err := p.memory.LoadImage(base, image); err != nil {
		return fmt.Errorf("loading image: %w", err)
	}
	return nil
}

// SetPC sets every strand's PC, typically to the image entry point.
func (p *Processor) SetPC(pc uint32) {
	for _, s := range p.strands {
		s.SetPC(pc)
	}
}

// EnableMask returns the strand-enable mask.
func (p *Processor) EnableMask() uint32 {
	return p.enableMask
}

// SetEnableMask enables exactly the strands whose bits are set.
func (p *Processor) SetEnableMask(mask uint32) {
	p.enableMask = mask & allStrands
}

// Halt stops the processor permanently.
func (p *Processor) Halt() {
	p.halted = true
}

// Halted reports whether the halt register was written.
func (p *Processor) Halted() bool {
	return p.halted
}

// Stopped reports whether no further instruction can execute.
func (p *Processor) Stopped() bool {
	return p.halted || p.enableMask == 0
}

// InstructionCount returns the number of instructions executed.
func (p *Processor) InstructionCount() uint64 {
	return p.instructions
}

// RaiseInterrupt latches an external interrupt for a strand. It is taken
// before the strand's next instruction once its traps are enabled.
func (p *Processor) RaiseInterrupt(strand int) {
	p.strands[strand].interrupt.Store(true)
}

// SetBreakpoint makes Run stop before any strand executes the instruction
// at pc.
func (p *Processor) SetBreakpoint(pc uint32) {
	p.breakpoints[pc] = true
}

// ClearBreakpoint removes a breakpoint.
func (p *Processor) ClearBreakpoint(pc uint32) {
	delete(p.breakpoints, pc)
}

// Breakpoints returns the breakpoint addresses in ascending order.
func (p *Processor) Breakpoints() []uint32 {
	pcs := make([]uint32, 0, len(p.breakpoints))
	for pc := range p.breakpoints {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })
	return pcs
}

func (p *Processor) trace(e Event) {
	if p.tracer != nil {
		p.tracer.Trace(e)
	}
}

// Step executes one instruction on the next scheduled strand.
func (p *Processor) Step() StepResult {
	if p.Stopped() {
		return StepResult{Halted: true}
	}
	id, _ := p.sched.next(p.enableMask)
	p.sched.advance(id)
	return p.StepStrand(id)
}

// StepStrand executes one instruction on a specific strand, whether or not
// it is enabled. It does nothing once the processor is halted.
func (p *Processor) StepStrand(id int) StepResult {
	s := p.strands[id]
	result := StepResult{Strand: id, PC: s.regs.PC}

	if p.halted {
		result.Halted = true
		return result
	}
	if p.budget > 0 && p.instructions >= p.budget {
		result.Err = fmt.Errorf("%w: instruction budget of %d exhausted",
			ErrHostTimeout, p.budget)
		return result
	}

	p.resumed[id] = false
	result.Err = s.step()
	p.instructions++
	result.Halted = p.Stopped()
	return result
}

// Run executes instructions until the processor halts or stops, a fatal
// error occurs, a breakpoint is reached, the budget or wall-clock limit
// runs out, or ctx is done.
func (p *Processor) Run(ctx context.Context) RunResult {
	if p.wallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.wallClock)
		defer cancel()
	}

	var result RunResult
	for {
		if result.Instructions%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return p.interrupted(result, err)
			}
		}

		if p.halted {
			result.Reason = ReasonHalted
			return result
		}
		id, ok := p.sched.next(p.enableMask)
		if !ok {
			result.Reason = ReasonStopped
			return result
		}

		s := p.strands[id]
		result.Strand = id
		result.PC = s.regs.PC
		if p.breakpoints[s.regs.PC] && !p.resumed[id] {
			// Resuming executes the instruction under the breakpoint.
			p.resumed[id] = true
			result.Reason = ReasonBreakpoint
			return result
		}

		p.sched.advance(id)
		step := p.StepStrand(id)
		if step.Err != nil {
			return p.failed(result, step.Err)
		}
		result.Instructions++
	}
}

func (p *Processor) interrupted(result RunResult, err error) RunResult {
	if errors.Is(err, context.DeadlineExceeded) {
		result.Reason = ReasonTimeout
		result.Err = fmt.Errorf("%w: wall-clock limit reached", ErrHostTimeout)
		return result
	}
	result.Reason = ReasonCanceled
	result.Err = err
	return result
}

func (p *Processor) failed(result RunResult, err error) RunResult {
	result.Err = err
	if errors.Is(err, ErrHostTimeout) {
		result.Reason = ReasonTimeout
		return result
	}

	result.Reason = ReasonCrashed
	var fatal *FatalError
	if errors.As(err, &fatal) {
		_, _ = fmt.Fprintf(p.stderr, "Emulation error: %v\n", fatal)
		p.DumpRegisters(p.stderr, fatal.Strand)
	}
	return result
}
