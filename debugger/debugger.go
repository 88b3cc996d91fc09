// Package debugger provides an interactive command-line debugger for the
// processor.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/insts"
)

// ErrQuit is returned by Exec when the user asks to leave.
var ErrQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(d *Debugger, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"regs":              {"regs", "print the registers of the current strand", (*Debugger).doRegs},
		"step":              {"step [n]", "execute n instructions on the current strand", (*Debugger).doStep},
		"resume":            {"resume", "run until a breakpoint or stop", (*Debugger).doResume},
		"set-breakpoint":    {"set-breakpoint <addr>", "stop when a strand reaches addr", (*Debugger).doSetBreakpoint},
		"delete-breakpoint": {"delete-breakpoint <addr>", "remove a breakpoint", (*Debugger).doDeleteBreakpoint},
		"breakpoints":       {"breakpoints", "list breakpoints", (*Debugger).doListBreakpoints},
		"read-memory":       {"read-memory <addr> <len>", "print memory as hex and text", (*Debugger).doReadMemory},
		"disasm":            {"disasm [addr] [count]", "disassemble instructions", (*Debugger).doDisasm},
		"strand":            {"strand [id]", "show or select the current strand", (*Debugger).doStrand},
		"help":              {"help", "list commands", (*Debugger).doHelp},
		"quit":              {"quit", "leave the debugger", (*Debugger).doQuit},
	}
}

// Debugger executes debugger commands against a processor.
type Debugger struct {
	proc   *emu.Processor
	out    io.Writer
	strand int
}

// New creates a debugger that prints to out.
func New(p *emu.Processor, out io.Writer) *Debugger {
	return &Debugger{proc: p, out: out}
}

// Strand returns the current strand.
func (d *Debugger) Strand() int {
	return d.strand
}

// Exec runs one command line. Usage errors are printed, not returned; the
// returned error is ErrQuit or a failure of the processor itself.
func (d *Debugger) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := commands[fields[0]]
	if !ok {
		d.printf("Unknown command %s\n", fields[0])
		return nil
	}
	return cmd.run(d, ctx, fields[1:])
}

func (d *Debugger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.out, format, args...)
}

// parseNumber accepts decimal or 0x-prefixed hexadecimal.
func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func (d *Debugger) doRegs(_ context.Context, _ []string) error {
	d.proc.DumpRegisters(d.out, d.strand)
	return nil
}

func (d *Debugger) doStep(_ context.Context, args []string) error {
	n := uint32(1)
	if len(args) > 0 {
		var err error
		if n, err = parseNumber(args[0]); err != nil {
			d.printf("%v\n", err)
			return nil
		}
	}

	for i := uint32(0); i < n; i++ {
		res := d.proc.StepStrand(d.strand)
		if res.Err != nil {
			d.printf("strand %d pc %08x: %v\n", res.Strand, res.PC, res.Err)
			return nil
		}
		if res.Halted {
			d.printf("stopped\n")
			break
		}
	}
	d.printf("strand %d pc %08x\n", d.strand, d.proc.Strand(d.strand).PC())
	return nil
}

func (d *Debugger) doResume(ctx context.Context, _ []string) error {
	d.printf("Running...\n")
	result := d.proc.Run(ctx)

	switch result.Reason {
	case emu.ReasonBreakpoint:
		d.strand = result.Strand
		d.printf("strand %d pc %08x\n", result.Strand, result.PC)
	case emu.ReasonCrashed, emu.ReasonTimeout:
		d.printf("%v: %v\n", result.Reason, result.Err)
	default:
		d.printf("%v\n", result.Reason)
	}
	return nil
}

func (d *Debugger) doSetBreakpoint(_ context.Context, args []string) error {
	if len(args) != 1 {
		d.printf("Missing code address\n")
		return nil
	}
	pc, err := parseNumber(args[0])
	if err != nil {
		d.printf("Invalid code address value\n")
		return nil
	}
	d.proc.SetBreakpoint(pc)
	return nil
}

func (d *Debugger) doDeleteBreakpoint(_ context.Context, args []string) error {
	if len(args) != 1 {
		d.printf("Missing code address\n")
		return nil
	}
	pc, err := parseNumber(args[0])
	if err != nil {
		d.printf("Invalid code address value\n")
		return nil
	}
	d.proc.ClearBreakpoint(pc)
	d.printf("deleted\n")
	return nil
}

func (d *Debugger) doListBreakpoints(_ context.Context, _ []string) error {
	d.printf("Breakpoints:\n")
	for _, pc := range d.proc.Breakpoints() {
		d.printf(" %08x\n", pc)
	}
	return nil
}

const lineLength = 16

func (d *Debugger) doReadMemory(_ context.Context, args []string) error {
	if len(args) != 2 {
		d.printf("usage: read-memory <addr> <len>\n")
		return nil
	}
	base, err1 := parseNumber(args[0])
	length, err2 := parseNumber(args[1])
	if err1 != nil || err2 != nil {
		d.printf("Invalid address or length\n")
		return nil
	}

	data, err := d.proc.Memory().ReadBytes(base, length)
	if err != nil {
		d.printf("%v\n", err)
		return nil
	}

	for off := 0; off < len(data); off += lineLength {
		line := data[off:min(off+lineLength, len(data))]
		d.printf("%08x    ", base+uint32(off))
		for _, b := range line {
			d.printf("%02x ", b)
		}
		d.printf("%s    ", strings.Repeat("   ", lineLength-len(line)))
		for _, b := range line {
			if b >= 33 && b <= 126 {
				d.printf("%c", b)
			} else {
				d.printf(".")
			}
		}
		d.printf("\n")
	}
	return nil
}

func (d *Debugger) doDisasm(_ context.Context, args []string) error {
	addr := d.proc.Strand(d.strand).PC()
	count := uint32(8)
	var err error
	if len(args) > 0 {
		if addr, err = parseNumber(args[0]); err != nil {
			d.printf("%v\n", err)
			return nil
		}
	}
	if len(args) > 1 {
		if count, err = parseNumber(args[1]); err != nil {
			d.printf("%v\n", err)
			return nil
		}
	}

	addr &^= 3
	for i := uint32(0); i < count; i++ {
		pc := addr + 4*i
		word, err := d.proc.Memory().PeekWord(pc)
		if err != nil {
			d.printf("%v\n", err)
			return nil
		}
		marker := " "
		if pc == d.proc.Strand(d.strand).PC() {
			marker = ">"
		}
		d.printf("%s %08x  %08x  %s\n", marker, pc, word, insts.Disassemble(word))
	}
	return nil
}

func (d *Debugger) doStrand(_ context.Context, args []string) error {
	switch len(args) {
	case 0:
	case 1:
		id, err := parseNumber(args[0])
		if err != nil || id >= emu.NumStrands {
			d.printf("Bad strand ID\n")
		} else {
			d.strand = int(id)
		}
	default:
		d.printf("needs only one param\n")
		return nil
	}
	d.printf("Current strand is %d\n", d.strand)
	return nil
}

func (d *Debugger) doHelp(_ context.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	d.printf("Available commands:\n")
	for _, name := range names {
		d.printf("  %-26s %s\n", commands[name].usage, commands[name].help)
	}
	return nil
}

func (d *Debugger) doQuit(_ context.Context, _ []string) error {
	d.printf("Quitting...\n")
	return ErrQuit
}
