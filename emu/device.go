package emu

import (
	"io"
	"sync"
)

// Device serves 32-bit accesses to the I/O window at IOBase and above.
type Device interface {
	ReadIO(addr uint32) uint32
	WriteIO(addr, value uint32)
}

// Console device registers.
const (
	ConsoleTxAddr     = IOBase + 0x00 // write: transmit low byte
	ConsoleStatusAddr = IOBase + 0x04 // read: bit 0 set when transmit ready
)

// Console is a write-only serial port that forwards transmitted bytes to a
// writer. Unknown registers read as zero.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// ReadIO implements Device.
func (c *Console) ReadIO(addr uint32) uint32 {
	if addr == ConsoleStatusAddr {
		return 1
	}
	return 0
}

// WriteIO implements Device.
func (c *Console) WriteIO(addr, value uint32) {
	if addr != ConsoleTxAddr || c.out == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.out.Write([]byte{byte(value)})
}
