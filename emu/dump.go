package emu

import (
	"fmt"
	"io"
)

// DumpRegisters prints a strand's registers: eight scalar registers per
// line, then one line per vector register with lane 0 first.
func (p *Processor) DumpRegisters(w io.Writer, strand int) {
	regs := &p.strands[strand].regs

	_, _ = fmt.Fprintf(w, "REGISTERS (strand %d)\n", strand)
	for reg := 0; reg < NumRegisters-1; reg++ {
		_, _ = fmt.Fprintf(w, "%3s %08x ", fmt.Sprintf("s%d", reg), regs.S[reg])
		if reg%8 == 7 {
			_, _ = fmt.Fprintln(w)
		}
	}
	_, _ = fmt.Fprintf(w, "s31 %08x\n\n", regs.PC)

	for reg := 0; reg < NumRegisters; reg++ {
		_, _ = fmt.Fprintf(w, "%3s ", fmt.Sprintf("v%d", reg))
		for _, lane := range regs.V[reg] {
			_, _ = fmt.Fprintf(w, "%08x", lane)
		}
		_, _ = fmt.Fprintln(w)
	}
}

// DumpMemory writes length bytes of memory starting at base to w.
func (p *Processor) DumpMemory(w io.Writer, base, length uint32) error {
	data, err := p.memory.ReadBytes(base, length)
	if err != nil {
		return fmt.Errorf("dumping memory: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("dumping memory: %w", err)
	}
	return nil
}
