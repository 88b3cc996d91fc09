// Package benchmarks runs sets of programs on independent processors and
// reports how each run ended, how long it took and what the cache model
// saw. The command-line batch mode and the built-in microbenchmarks both
// go through this harness.
package benchmarks

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/smtsim/cache"
	"github.com/sarchlab/smtsim/config"
	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/loader"
)

// BenchmarkResult holds the outcome of a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// Reason is why the run stopped: halted, stopped, timeout, crashed...
	Reason string `json:"reason"`

	// Instructions is the number of instructions executed
	Instructions uint64 `json:"instructions"`

	// Passed is true when the run stopped normally and its check held
	Passed bool `json:"passed"`

	// Error describes a failed run or check
	Error string `json:"error,omitempty"`

	// ICache and DCache statistics (if the cache model is enabled)
	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// MIPS returns the simulation speed in millions of instructions per
// second of host time.
func (r BenchmarkResult) MIPS() float64 {
	if r.WallTime <= 0 {
		return 0
	}
	return float64(r.Instructions) / r.WallTime.Seconds() / 1e6
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Program is the memory image loaded at address 0
	Program []byte

	// Setup prepares the processor (e.g., initialize registers, memory)
	Setup func(p *emu.Processor) error

	// Check validates the final state
	Check func(p *emu.Processor) error
}

// FromFile makes a benchmark of a hex or ELF image on disk.
func FromFile(path string) (Benchmark, error) {
	prog, err := loader.Load(path)
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Name:        path,
		Description: fmt.Sprintf("%d bytes, entry 0x%x", prog.Size(), prog.EntryPoint),
		Program:     prog.Flatten(),
	}, nil
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Sim configures every processor the harness creates
	Sim *config.SimConfig

	// Parallelism bounds how many benchmarks run at once (0 means one per
	// benchmark)
	Parallelism int

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	sim := config.Default()
	sim.CacheStats = true
	return HarnessConfig{
		Sim:    sim,
		Output: os.Stdout,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Sim == nil {
		config.Sim = DefaultConfig().Sim
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks, each on its own processor, and returns
// the results in the order the benchmarks were added.
func (h *Harness) RunAll(ctx context.Context) []BenchmarkResult {
	results := make([]BenchmarkResult, len(h.benchmarks))

	var g errgroup.Group
	if h.config.Parallelism > 0 {
		g.SetLimit(h.config.Parallelism)
	}
	for i, bench := range h.benchmarks {
		g.Go(func() error {
			results[i] = h.runBenchmark(ctx, bench)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}
	fail := func(err error) BenchmarkResult {
		result.Error = err.Error()
		return result
	}

	opts, hierarchy, err := h.config.Sim.Options()
	if err != nil {
		return fail(err)
	}
	// Guest console output would interleave between parallel runs.
	opts = append(opts, emu.WithStdout(io.Discard), emu.WithStderr(io.Discard))

	p := emu.NewProcessor(opts...)
	if err := p.LoadImage(0, bench.Program); err != nil {
		return fail(err)
	}
	if bench.Setup != nil {
		if err := bench.Setup(p); err != nil {
			return fail(fmt.Errorf("setup: %w", err))
		}
	}

	// Run simulation and measure time
	start := time.Now()
	run := p.Run(ctx)
	result.WallTime = time.Since(start)

	result.Reason = run.Reason.String()
	result.Instructions = run.Instructions
	if hierarchy != nil {
		collectCacheStats(&result, hierarchy)
	}

	switch {
	case run.Err != nil:
		return fail(run.Err)
	case run.Reason != emu.ReasonHalted && run.Reason != emu.ReasonStopped:
		return fail(fmt.Errorf("run ended with %v", run.Reason))
	}
	if bench.Check != nil {
		if err := bench.Check(p); err != nil {
			return fail(fmt.Errorf("check: %w", err))
		}
	}

	result.Passed = true
	return result
}

func collectCacheStats(result *BenchmarkResult, h *cache.Hierarchy) {
	ic := h.L1I.Stats()
	dc := h.L1D.Stats()
	result.ICacheHits = ic.Hits
	result.ICacheMisses = ic.Misses
	result.DCacheHits = dc.Hits
	result.DCacheMisses = dc.Misses
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output
	_, _ = fmt.Fprintln(w, "=== Benchmark Results ===")
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		_, _ = fmt.Fprintf(w, "Benchmark: %s [%s]\n", r.Name, status)
		_, _ = fmt.Fprintf(w, "  Description:  %s\n", r.Description)
		_, _ = fmt.Fprintf(w, "  Stop Reason:  %s\n", r.Reason)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "  Error:        %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(w, "  Instructions: %d\n", r.Instructions)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.ICacheMisses)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.DCacheMisses)
		}

		_, _ = fmt.Fprintf(w, "  Wall Time: %v (%.2f MIPS)\n", r.WallTime, r.MIPS())
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,reason,passed,instructions,icache_hits,icache_misses,dcache_hits,dcache_misses,wall_time_ns")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%s,%t,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Reason,
			r.Passed,
			r.Instructions,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.WallTime.Nanoseconds(),
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config is the simulator configuration used
	Config *config.SimConfig `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	Passed            int           `json:"passed"`
	TotalInstructions uint64        `json:"total_instructions"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize computes aggregate statistics.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		}
		s.TotalInstructions += r.Instructions
		s.TotalWallTime += r.WallTime
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    h.config.Sim,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// BuildProgram assembles instruction words into a byte slice.
func BuildProgram(instrs ...uint32) []byte {
	program := make([]byte, 0, len(instrs)*4)
	for _, inst := range instrs {
		program = binary.LittleEndian.AppendUint32(program, inst)
	}
	return program
}
