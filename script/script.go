// Package script drives a processor from Lua. A script can load programs,
// preset registers and memory, run or single-step the machine and check
// the results with expect.
//
// Functions available to scripts:
//
//	load(path)                 load a hex or ELF image at address 0
//	run()                      run until stop; returns the stop reason
//	step([n])                  execute n instructions; returns halted
//	halted()                   whether no strand will execute again
//	reg(strand, n)             read scalar register n
//	setreg(strand, n, value)   write scalar register n
//	vreg(strand, n)            read vector register n as a 16-entry table
//	setvreg(strand, n, lanes)  write vector register n from a table
//	pc(strand)                 read the PC
//	setpc(strand, value)       write the PC
//	load32(addr)               read a memory word
//	store32(addr, value)       write a memory word
//	enable(mask)               set the strand-enable mask
//	interrupt(strand)          raise an interrupt on a strand
//	breakpoint(addr)           stop run() when a strand reaches addr
//	expect(cond, message)      record a failed check when cond is false
//	print(...)                 write to the harness output
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/loader"
)

// ErrExpectationFailed is returned when a script ran to completion but at
// least one expect call failed.
var ErrExpectationFailed = errors.New("expectation failed")

// Option configures a Harness.
type Option func(*Harness)

// WithOutput sets where print and failed expectations go.
func WithOutput(w io.Writer) Option {
	return func(h *Harness) {
		h.out = w
	}
}

// Harness binds a processor to a Lua state.
type Harness struct {
	proc     *emu.Processor
	state    *lua.LState
	out      io.Writer
	ctx      context.Context
	failures int
}

// New creates a harness for p. Call Close when done.
func New(p *emu.Processor, opts ...Option) *Harness {
	h := &Harness{
		proc:  p,
		state: lua.NewState(),
		out:   os.Stdout,
		ctx:   context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.register()
	return h
}

// Close releases the Lua state.
func (h *Harness) Close() {
	h.state.Close()
}

// Failures returns the number of failed expect calls so far.
func (h *Harness) Failures() int {
	return h.failures
}

// RunString executes a script held in memory.
func (h *Harness) RunString(ctx context.Context, src string) error {
	return h.exec(ctx, func() error { return h.state.DoString(src) })
}

// RunFile executes a script file.
func (h *Harness) RunFile(ctx context.Context, path string) error {
	return h.exec(ctx, func() error { return h.state.DoFile(path) })
}

func (h *Harness) exec(ctx context.Context, do func() error) error {
	h.ctx = ctx
	h.state.SetContext(ctx)
	defer h.state.RemoveContext()

	before := h.failures
	if err := do(); err != nil {
		return fmt.Errorf("script error: %w", err)
	}
	if n := h.failures - before; n > 0 {
		return fmt.Errorf("%w: %d failed", ErrExpectationFailed, n)
	}
	return nil
}

func (h *Harness) register() {
	funcs := map[string]lua.LGFunction{
		"load":       h.luaLoad,
		"run":        h.luaRun,
		"step":       h.luaStep,
		"halted":     h.luaHalted,
		"reg":        h.luaReg,
		"setreg":     h.luaSetReg,
		"vreg":       h.luaVReg,
		"setvreg":    h.luaSetVReg,
		"pc":         h.luaPC,
		"setpc":      h.luaSetPC,
		"load32":     h.luaLoad32,
		"store32":    h.luaStore32,
		"enable":     h.luaEnable,
		"interrupt":  h.luaInterrupt,
		"breakpoint": h.luaBreakpoint,
		"expect":     h.luaExpect,
		"print":      h.luaPrint,
	}
	for name, fn := range funcs {
		h.state.SetGlobal(name, h.state.NewFunction(fn))
	}
}

// checkWord reads argument n as a 32-bit value. Negative numbers wrap.
func checkWord(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func (h *Harness) checkStrand(L *lua.LState, n int) *emu.Strand {
	id := L.CheckInt(n)
	if id < 0 || id >= emu.NumStrands {
		L.ArgError(n, fmt.Sprintf("strand must be 0-%d", emu.NumStrands-1))
	}
	return h.proc.Strand(id)
}

func checkReg(L *lua.LState, n int) uint8 {
	reg := L.CheckInt(n)
	if reg < 0 || reg > 31 {
		L.ArgError(n, "register must be 0-31")
	}
	return uint8(reg)
}

func (h *Harness) luaLoad(L *lua.LState) int {
	prog, err := loader.Load(L.CheckString(1))
	if err != nil {
		L.RaiseError("%v", err)
	}
	if err := prog.LoadInto(h.proc); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (h *Harness) luaRun(L *lua.LState) int {
	result := h.proc.Run(h.ctx)
	L.Push(lua.LString(result.Reason.String()))
	if result.Err != nil {
		L.Push(lua.LString(result.Err.Error()))
		return 2
	}
	return 1
}

func (h *Harness) luaStep(L *lua.LState) int {
	n := L.OptInt(1, 1)
	for i := 0; i < n; i++ {
		res := h.proc.Step()
		if res.Err != nil {
			L.RaiseError("strand %d at %08x: %v", res.Strand, res.PC, res.Err)
		}
		if res.Halted {
			break
		}
	}
	L.Push(lua.LBool(h.proc.Stopped()))
	return 1
}

func (h *Harness) luaHalted(L *lua.LState) int {
	L.Push(lua.LBool(h.proc.Stopped()))
	return 1
}

func (h *Harness) luaReg(L *lua.LState) int {
	s := h.checkStrand(L, 1)
	L.Push(lua.LNumber(s.Regs().ReadScalar(checkReg(L, 2))))
	return 1
}

func (h *Harness) luaSetReg(L *lua.LState) int {
	s := h.checkStrand(L, 1)
	s.Regs().WriteScalar(checkReg(L, 2), checkWord(L, 3))
	return 0
}

func (h *Harness) luaVReg(L *lua.LState) int {
	s := h.checkStrand(L, 1)
	v := s.Regs().ReadVector(checkReg(L, 2))

	tbl := L.NewTable()
	for lane, w := range v {
		tbl.RawSetInt(lane+1, lua.LNumber(w))
	}
	L.Push(tbl)
	return 1
}

func (h *Harness) luaSetVReg(L *lua.LState) int {
	s := h.checkStrand(L, 1)
	reg := checkReg(L, 2)
	tbl := L.CheckTable(3)
	if tbl.Len() != alu.NumLanes {
		L.ArgError(3, fmt.Sprintf("need %d lanes", alu.NumLanes))
	}

	var v alu.Vector
	for lane := range v {
		n, ok := tbl.RawGetInt(lane + 1).(lua.LNumber)
		if !ok {
			L.ArgError(3, fmt.Sprintf("lane %d is not a number", lane))
		}
		v[lane] = uint32(int64(n))
	}
	s.Regs().WriteVector(reg, v, alu.FullMask)
	return 0
}

func (h *Harness) luaPC(L *lua.LState) int {
	L.Push(lua.LNumber(h.checkStrand(L, 1).PC()))
	return 1
}

func (h *Harness) luaSetPC(L *lua.LState) int {
	h.checkStrand(L, 1).SetPC(checkWord(L, 2))
	return 0
}

func (h *Harness) luaLoad32(L *lua.LState) int {
	v, err := h.proc.Memory().PeekWord(checkWord(L, 1))
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (h *Harness) luaStore32(L *lua.LState) int {
	if err := h.proc.Memory().PokeWord(checkWord(L, 1), checkWord(L, 2)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (h *Harness) luaEnable(L *lua.LState) int {
	h.proc.SetEnableMask(checkWord(L, 1))
	return 0
}

func (h *Harness) luaInterrupt(L *lua.LState) int {
	h.proc.RaiseInterrupt(h.checkStrand(L, 1).ID())
	return 0
}

func (h *Harness) luaBreakpoint(L *lua.LState) int {
	h.proc.SetBreakpoint(checkWord(L, 1))
	return 0
}

func (h *Harness) luaExpect(L *lua.LState) int {
	if lua.LVAsBool(L.Get(1)) {
		return 0
	}
	h.failures++

	msg := L.OptString(2, "expectation failed")
	where := L.Where(1)
	_, _ = fmt.Fprintf(h.out, "FAIL: %s%s\n", where, msg)
	return 0
}

func (h *Harness) luaPrint(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	_, _ = fmt.Fprintln(h.out, strings.Join(parts, "\t"))
	return 0
}
