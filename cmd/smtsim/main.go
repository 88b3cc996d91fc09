// Package main provides the smtsim command, a functional simulator for a
// four-strand SMT vector processor.
//
// Usage:
//
//	smtsim [flags] <image>              run one hex or ELF image
//	smtsim [flags] <image> <image>...   run several images in parallel
//	smtsim -bench [flags]               run the built-in microbenchmarks
//
// Modes (-mode):
//
//	normal  run to completion and report how the run ended
//	cosim   check the run against a hardware event stream on stdin
//	debug   interactive debugger
//	script  run a Lua script (-script) against the processor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/sarchlab/smtsim/benchmarks"
	"github.com/sarchlab/smtsim/cache"
	"github.com/sarchlab/smtsim/config"
	"github.com/sarchlab/smtsim/cosim"
	"github.com/sarchlab/smtsim/debugger"
	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/loader"
	"github.com/sarchlab/smtsim/script"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds the parsed command line.
type options struct {
	sim *config.SimConfig

	mode       string
	scriptPath string
	dump       *dumpSpec
	regs       bool
	verbose    bool
	emitHex    string

	bench       bool
	format      string
	parallelism int

	images []string
}

// dumpSpec names a memory window to write to a file after the run.
type dumpSpec struct {
	path   string
	base   uint32
	length uint32
}

func parseDumpSpec(s string) (*dumpSpec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid dump %q: want file,base,length", s)
	}
	base, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid dump base %q", parts[1])
	}
	length, err := strconv.ParseUint(parts[2], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid dump length %q", parts[2])
	}
	return &dumpSpec{path: parts[0], base: uint32(base), length: uint32(length)}, nil
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("smtsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to simulator configuration JSON file")
	memSize := fs.String("mem", "", "Memory size in bytes (decimal or 0x hex)")
	budget := fs.Uint64("budget", 0, "Instruction budget (0 = unlimited)")
	timeout := fs.Duration("timeout", 0, "Wall-clock limit (e.g. 30s)")
	enable := fs.String("enable", "", "Initial strand-enable mask")
	trace := fs.Bool("trace", false, "Print every committed register write and store")
	cacheStats := fs.Bool("cache-stats", false, "Enable the cache model and print its statistics")
	dump := fs.String("dump", "", "Write memory to a file after the run: file,base,length")

	opts := &options{}
	fs.StringVar(&opts.mode, "mode", "normal", "Run mode: normal, cosim, debug or script")
	fs.StringVar(&opts.scriptPath, "script", "", "Lua script for -mode script")
	fs.BoolVar(&opts.regs, "regs", false, "Print the registers of every strand after the run")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")
	fs.StringVar(&opts.emitHex, "emit-hex", "", "Write the loaded image as a hex file and exit")
	fs.BoolVar(&opts.bench, "bench", false, "Run the built-in microbenchmarks")
	fs.StringVar(&opts.format, "format", "text", "Batch report format: text, csv or json")
	fs.IntVar(&opts.parallelism, "j", 0, "Batch parallelism (0 = one per image)")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: smtsim [options] <image>...\n")
		_, _ = fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.images = fs.Args()

	opts.sim = config.Default()
	if *configPath != "" {
		var err error
		if opts.sim, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}

	// Flags given explicitly override the configuration file.
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "mem":
			var n uint64
			if n, err = strconv.ParseUint(*memSize, 0, 32); err == nil {
				opts.sim.MemorySize = uint32(n)
			}
		case "budget":
			opts.sim.InstructionBudget = *budget
		case "timeout":
			opts.sim.WallClockLimit = timeout.String()
		case "enable":
			var n uint64
			if n, err = strconv.ParseUint(*enable, 0, 32); err == nil {
				opts.sim.EnableMask = uint32(n)
			}
		case "trace":
			opts.sim.Trace = *trace
		case "cache-stats":
			opts.sim.CacheStats = *cacheStats
		case "dump":
			opts.dump, err = parseDumpSpec(*dump)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := opts.sim.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	switch opts.mode {
	case "normal", "cosim", "debug", "script":
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}
	if opts.mode == "script" && opts.scriptPath == "" {
		return nil, fmt.Errorf("-mode script needs -script")
	}
	if !opts.bench && len(opts.images) == 0 && opts.mode != "script" {
		fs.Usage()
		return nil, fmt.Errorf("no image given")
	}
	if len(opts.images) > 1 && opts.mode != "normal" {
		return nil, fmt.Errorf("-mode %s takes a single image", opts.mode)
	}

	return opts, nil
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	if opts.bench || len(opts.images) > 1 {
		return runBatch(ctx, opts, stdout, stderr)
	}

	var prog *loader.Program
	if len(opts.images) == 1 {
		if prog, err = loader.Load(opts.images[0]); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
			return 1
		}
		if opts.verbose {
			_, _ = fmt.Fprintf(stderr, "Loaded: %s\n", opts.images[0])
			_, _ = fmt.Fprintf(stderr, "Entry point: 0x%X\n", prog.EntryPoint)
			_, _ = fmt.Fprintf(stderr, "Segments: %d\n", len(prog.Segments))
		}
	}

	if opts.emitHex != "" {
		if prog == nil {
			_, _ = fmt.Fprintf(stderr, "Error: -emit-hex needs an image\n")
			return 2
		}
		if err := emitHex(opts.emitHex, prog); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	sim, err := newSimulation(opts, prog, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var code int
	switch opts.mode {
	case "cosim":
		code = sim.cosimulate(stdin)
	case "debug":
		code = sim.debug(ctx, stdin)
	case "script":
		code = sim.script(ctx)
	default:
		code = sim.run(ctx)
	}

	return sim.finish(code)
}

func emitHex(path string, prog *loader.Program) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := loader.WriteHex(f, prog.Flatten()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// simulation is one processor set up from the command line.
type simulation struct {
	opts      *options
	proc      *emu.Processor
	hierarchy *cache.Hierarchy
	checker   *cosim.Checker
	stdout    io.Writer
	stderr    io.Writer
}

func newSimulation(opts *options, prog *loader.Program, stdout, stderr io.Writer) (*simulation, error) {
	procOpts, hierarchy, err := opts.sim.Options()
	if err != nil {
		return nil, err
	}
	procOpts = append(procOpts, emu.WithStdout(stdout), emu.WithStderr(stderr))

	s := &simulation{opts: opts, hierarchy: hierarchy, stdout: stdout, stderr: stderr}

	var tracers emu.MultiTracer
	if opts.sim.Trace {
		tracers = append(tracers, emu.NewTextTracer(stdout))
	}
	if opts.mode == "cosim" {
		s.checker = cosim.NewChecker(cosim.WithOutput(stdout), cosim.WithVerbose(opts.verbose))
		tracers = append(tracers, s.checker)
	}
	if len(tracers) > 0 {
		procOpts = append(procOpts, emu.WithTracer(tracers))
	}

	s.proc = emu.NewProcessor(procOpts...)
	if s.checker != nil {
		s.checker.Attach(s.proc)
	}
	if prog != nil {
		if err := prog.LoadInto(s.proc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *simulation) run(ctx context.Context) int {
	start := time.Now()
	result := s.proc.Run(ctx)
	elapsed := time.Since(start)

	if s.opts.verbose {
		_, _ = fmt.Fprintf(s.stderr, "\nStop reason: %v\n", result.Reason)
		_, _ = fmt.Fprintf(s.stderr, "Instructions executed: %d\n", result.Instructions)
		_, _ = fmt.Fprintf(s.stderr, "Wall time: %v\n", elapsed)
	}

	switch result.Reason {
	case emu.ReasonHalted, emu.ReasonStopped:
		return 0
	case emu.ReasonCrashed:
		// The processor already reported the fatal error.
		return 1
	default:
		_, _ = fmt.Fprintf(s.stderr, "Simulation %v: %v\n", result.Reason, result.Err)
		return 1
	}
}

func (s *simulation) cosimulate(stdin io.Reader) int {
	if err := s.checker.Run(stdin); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "Cosimulation failed: %v\n", err)
		return 1
	}
	if s.opts.verbose {
		_, _ = fmt.Fprintf(s.stderr, "Cosimulation passed: %d events\n", s.checker.Events())
	}
	return 0
}

func (s *simulation) debug(ctx context.Context, stdin *os.File) int {
	if err := debugger.Interactive(ctx, s.proc, stdin, s.stdout); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "Debugger: %v\n", err)
		return 1
	}
	return 0
}

func (s *simulation) script(ctx context.Context) int {
	h := script.New(s.proc, script.WithOutput(s.stdout))
	defer h.Close()

	if err := h.RunFile(ctx, s.opts.scriptPath); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "Script: %v\n", err)
		return 1
	}
	return 0
}

// finish prints the post-run reports. A failing report turns a successful
// run into a failure.
func (s *simulation) finish(code int) int {
	if s.opts.regs {
		for strand := 0; strand < emu.NumStrands; strand++ {
			s.proc.DumpRegisters(s.stdout, strand)
		}
	}
	if s.hierarchy != nil {
		s.hierarchy.WriteStats(s.stderr)
	}
	if d := s.opts.dump; d != nil {
		if err := writeDump(s.proc, d); err != nil {
			_, _ = fmt.Fprintf(s.stderr, "Error: %v\n", err)
			return 1
		}
	}
	return code
}

func writeDump(p *emu.Processor, d *dumpSpec) error {
	f, err := os.Create(d.path)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	if err := p.DumpMemory(f, d.base, d.length); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runBatch(ctx context.Context, opts *options, stdout, stderr io.Writer) int {
	harness := benchmarks.NewHarness(benchmarks.HarnessConfig{
		Sim:         opts.sim,
		Parallelism: opts.parallelism,
		Output:      stdout,
	})

	if opts.bench {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}
	for _, path := range opts.images {
		bench, err := benchmarks.FromFile(path)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
			return 1
		}
		harness.AddBenchmark(bench)
	}

	results := harness.RunAll(ctx)

	switch opts.format {
	case "csv":
		harness.PrintCSV(results)
	case "json":
		if err := harness.PrintJSON(results); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	default:
		harness.PrintResults(results)
	}

	if summary := benchmarks.Summarize(results); summary.Passed != summary.TotalBenchmarks {
		return 1
	}
	return 0
}
