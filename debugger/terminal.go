package debugger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/term"

	"github.com/sarchlab/smtsim/emu"
)

const prompt = "(dbg) "

// Serve reads commands from r, one per line, until end of input or quit.
func (d *Debugger) Serve(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for {
		d.printf(prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := d.Exec(ctx, scanner.Text()); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			return err
		}
	}
}

// Interactive runs a debugging session on in and out. When in is a
// terminal it gets line editing and history; the terminal is in raw mode
// only while a line is read, so Ctrl-C interrupts a running resume.
// Otherwise commands are read line by line.
func Interactive(ctx context.Context, p *emu.Processor, in *os.File, out io.Writer) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return New(p, out).Serve(ctx, in)
	}

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, prompt)
	d := New(p, t)

	for {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		line, err := t.ReadLine()
		_ = term.Restore(fd, oldState)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read command: %w", err)
		}

		runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err = d.Exec(runCtx, line)
		stop()
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
