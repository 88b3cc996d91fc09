// Package config provides the JSON simulator configuration shared by the
// command-line tool and the scripted harness.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sarchlab/smtsim/cache"
	"github.com/sarchlab/smtsim/emu"
)

// CacheConfig describes one cache of the statistics model.
type CacheConfig struct {
	// Size in bytes.
	Size int `json:"size"`
	// Associativity is the number of ways.
	Associativity int `json:"associativity"`
	// BlockSize is the line size in bytes.
	BlockSize int `json:"block_size"`
}

// Cache converts c to the cache package configuration.
func (c CacheConfig) Cache() cache.Config {
	return cache.Config{
		Size:          c.Size,
		Associativity: c.Associativity,
		BlockSize:     c.BlockSize,
	}
}

func (c CacheConfig) validate(name string) error {
	if c.Size <= 0 || c.Associativity <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("%s: size, associativity and block_size must be > 0", name)
	}
	if c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("%s: block_size must be a power of two", name)
	}
	if c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("%s: size must be a multiple of associativity * block_size", name)
	}
	return nil
}

// SimConfig holds the settings of one simulation run.
type SimConfig struct {
	// MemorySize is the size of main memory in bytes. Default: 16MB.
	MemorySize uint32 `json:"memory_size"`

	// InstructionBudget is the number of instruction slots a run may use
	// before it ends with a timeout. Zero means unlimited. Default: 80M.
	InstructionBudget uint64 `json:"instruction_budget"`

	// WallClockLimit bounds the host time of a run, for example "30s".
	// Empty means unlimited.
	WallClockLimit string `json:"wall_clock_limit,omitempty"`

	// EnableMask is the initial strand-enable mask. Default: 1.
	EnableMask uint32 `json:"enable_mask"`

	// Trace prints every committed register write and store.
	Trace bool `json:"trace"`

	// CacheStats enables the cache model and prints its statistics.
	CacheStats bool `json:"cache_stats"`

	// L1I and L1D configure the cache model.
	L1I CacheConfig `json:"l1i"`
	L1D CacheConfig `json:"l1d"`
}

// Default returns a SimConfig with the standard settings.
func Default() *SimConfig {
	l1i := cache.DefaultL1IConfig()
	l1d := cache.DefaultL1DConfig()
	return &SimConfig{
		MemorySize:        emu.DefaultMemorySize,
		InstructionBudget: emu.DefaultInstructionBudget,
		EnableMask:        1,
		L1I:               CacheConfig{Size: l1i.Size, Associativity: l1i.Associativity, BlockSize: l1i.BlockSize},
		L1D:               CacheConfig{Size: l1d.Size, Associativity: l1d.Associativity, BlockSize: l1d.BlockSize},
	}
}

// Load reads a SimConfig from a JSON file. Fields missing from the file
// keep their default values.
func Load(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// Save writes the SimConfig to a JSON file.
func (c *SimConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the settings describe a runnable machine.
func (c *SimConfig) Validate() error {
	if c.MemorySize == 0 {
		return fmt.Errorf("memory_size must be > 0")
	}
	if c.MemorySize%emu.LineSize != 0 {
		return fmt.Errorf("memory_size must be a multiple of %d", emu.LineSize)
	}
	if c.MemorySize > emu.IOBase {
		return fmt.Errorf("memory_size must not overlap the I/O window at 0x%08x", uint32(emu.IOBase))
	}
	if c.EnableMask&^0xF != 0 {
		return fmt.Errorf("enable_mask 0x%x names strands beyond %d", c.EnableMask, emu.NumStrands)
	}
	if _, err := c.WallClock(); err != nil {
		return err
	}
	if c.CacheStats {
		if err := c.L1I.validate("l1i"); err != nil {
			return err
		}
		if err := c.L1D.validate("l1d"); err != nil {
			return err
		}
	}
	return nil
}

// WallClock returns the parsed wall-clock limit, zero when unset.
func (c *SimConfig) WallClock() (time.Duration, error) {
	if c.WallClockLimit == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.WallClockLimit)
	if err != nil {
		return 0, fmt.Errorf("invalid wall_clock_limit: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("wall_clock_limit must not be negative")
	}
	return d, nil
}

// Clone returns a copy of the SimConfig.
func (c *SimConfig) Clone() *SimConfig {
	clone := *c
	return &clone
}

// Options turns the configuration into processor options. The cache
// hierarchy is returned when CacheStats is set so the caller can report it.
func (c *SimConfig) Options() ([]emu.ProcessorOption, *cache.Hierarchy, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	wall, _ := c.WallClock()

	opts := []emu.ProcessorOption{
		emu.WithMemorySize(c.MemorySize),
		emu.WithInstructionBudget(c.InstructionBudget),
		emu.WithEnableMask(c.EnableMask),
	}
	if wall > 0 {
		opts = append(opts, emu.WithWallClockLimit(wall))
	}

	var hierarchy *cache.Hierarchy
	if c.CacheStats {
		hierarchy = cache.NewHierarchy(c.L1I.Cache(), c.L1D.Cache())
		opts = append(opts, emu.WithCacheObserver(hierarchy))
	}

	return opts, hierarchy, nil
}
