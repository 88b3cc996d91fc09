// Package cache provides a tag-only cache model using Akita cache
// components. It follows data accesses, instruction fetches and cache-control
// instructions to report residency and traffic statistics. It holds no data
// and never changes what the processor computes.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
}

// DefaultL1DConfig returns the default data cache: 16KB, 4-way, 64B lines.
func DefaultL1DConfig() Config {
	return Config{
		Size:          16 * 1024,
		Associativity: 4,
		BlockSize:     64,
	}
}

// DefaultL1IConfig returns the default instruction cache: 16KB, 4-way,
// 64B lines.
func DefaultL1IConfig() Config {
	return Config{
		Size:          16 * 1024,
		Associativity: 4,
		BlockSize:     64,
	}
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads         uint64
	Writes        uint64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Writebacks    uint64
	Invalidations uint64
}

// HitRate returns hits over accesses, or 0 before the first access.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a write-back, write-allocate cache directory.
type Cache struct {
	// Configuration
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Statistics
	stats Statistics
}

// New creates a new cache with the given configuration.
func New(config Config) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) blockAddr(addr uint32) uint64 {
	return uint64(addr) / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

func (c *Cache) lookup(addr uint32) *akitacache.Block {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block == nil || !block.IsValid {
		return nil
	}
	return block
}

// Read records a load and reports whether it hit.
func (c *Cache) Read(addr uint32) bool {
	c.stats.Reads++
	return c.access(addr, false)
}

// Write records a store and reports whether it hit.
func (c *Cache) Write(addr uint32) bool {
	c.stats.Writes++
	return c.access(addr, true)
}

func (c *Cache) access(addr uint32, write bool) bool {
	if block := c.lookup(addr); block != nil {
		c.stats.Hits++
		c.directory.Visit(block) // Update LRU
		if write {
			block.IsDirty = true
		}
		return true
	}

	c.stats.Misses++
	c.fill(addr, write)
	return false
}

// fill allocates the line holding addr, evicting the LRU way.
func (c *Cache) fill(addr uint32, dirty bool) {
	blockAddr := c.blockAddr(addr)

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return
	}

	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty {
			c.stats.Writebacks++
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = dirty
	c.directory.Visit(victim)
}

// Contains reports whether the line holding addr is resident.
func (c *Cache) Contains(addr uint32) bool {
	return c.lookup(addr) != nil
}

// Dirty reports whether the line holding addr is resident and modified.
func (c *Cache) Dirty(addr uint32) bool {
	block := c.lookup(addr)
	return block != nil && block.IsDirty
}

// Flush writes back the line holding addr if it is dirty. The line stays
// resident.
func (c *Cache) Flush(addr uint32) {
	block := c.lookup(addr)
	if block != nil && block.IsDirty {
		c.stats.Writebacks++
		block.IsDirty = false
	}
}

// Invalidate discards the line holding addr without writing it back.
func (c *Cache) Invalidate(addr uint32) {
	block := c.lookup(addr)
	if block != nil {
		c.stats.Invalidations++
		block.IsValid = false
		block.IsDirty = false
	}
}

// FlushAll writes back all dirty blocks and invalidates them.
func (c *Cache) FlushAll() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
