package cache

import (
	"fmt"
	"io"
)

// Hierarchy pairs split L1 instruction and data caches and receives the
// processor's memory traffic.
type Hierarchy struct {
	L1I *Cache
	L1D *Cache

	barriers uint64
}

// NewHierarchy creates split L1 caches.
func NewHierarchy(l1i, l1d Config) *Hierarchy {
	return &Hierarchy{
		L1I: New(l1i),
		L1D: New(l1d),
	}
}

// NewDefaultHierarchy creates split L1 caches with default configurations.
func NewDefaultHierarchy() *Hierarchy {
	return NewHierarchy(DefaultL1IConfig(), DefaultL1DConfig())
}

// Access records a data load or store.
func (h *Hierarchy) Access(addr uint32, write bool) {
	if write {
		h.L1D.Write(addr)
	} else {
		h.L1D.Read(addr)
	}
}

// Fetch records an instruction fetch.
func (h *Hierarchy) Fetch(addr uint32) {
	h.L1I.Read(addr)
}

// Flush handles dflush.
func (h *Hierarchy) Flush(addr uint32) {
	h.L1D.Flush(addr)
}

// Invalidate handles dinvalidate.
func (h *Hierarchy) Invalidate(addr uint32) {
	h.L1D.Invalidate(addr)
}

// InvalidateInstruction handles iinvalidate.
func (h *Hierarchy) InvalidateInstruction(addr uint32) {
	h.L1I.Invalidate(addr)
}

// Barrier handles membar.
func (h *Hierarchy) Barrier() {
	h.barriers++
}

// Barriers returns the number of memory barriers executed.
func (h *Hierarchy) Barriers() uint64 {
	return h.barriers
}

// WriteStats prints a statistics summary.
func (h *Hierarchy) WriteStats(w io.Writer) {
	writeCacheStats(w, "L1I", h.L1I.Stats())
	writeCacheStats(w, "L1D", h.L1D.Stats())
	_, _ = fmt.Fprintf(w, "membar: %d\n", h.barriers)
}

func writeCacheStats(w io.Writer, name string, s Statistics) {
	_, _ = fmt.Fprintf(w, "%s: reads %d writes %d hits %d misses %d (%.1f%% hit) evictions %d writebacks %d invalidations %d\n",
		name, s.Reads, s.Writes, s.Hits, s.Misses, 100*s.HitRate(),
		s.Evictions, s.Writebacks, s.Invalidations)
}
