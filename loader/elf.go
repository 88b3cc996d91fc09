// Package loader reads program images for the processor: 32-bit
// little-endian ELF executables and hex memory images.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/sarchlab/smtsim/insts"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Segment represents a loadable segment.
type Segment struct {
	// VirtAddr is the address where this segment should be loaded.
	VirtAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded program ready for execution.
type Program struct {
	// EntryPoint is the address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments.
	Segments []Segment
}

// ImageLoader receives a flat memory image.
type ImageLoader interface {
	LoadImage(base uint32, image []byte) error
}

// LoadELF parses a 32-bit little-endian ELF executable.
func LoadELF(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}

	prog := &Program{
		EntryPoint: uint32(f.Entry),
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Flags:    flags,
		})
	}

	return prog, nil
}

// Size returns the end address of the highest segment.
func (p *Program) Size() uint32 {
	var end uint32
	for _, seg := range p.Segments {
		if e := seg.VirtAddr + seg.MemSize; e > end {
			end = e
		}
	}
	return end
}

// Flatten lays the segments out in one image based at address 0. The
// processor starts every strand at 0, so when the entry point is elsewhere
// the first word becomes a branch to it.
func (p *Program) Flatten() []byte {
	image := make([]byte, p.Size())
	for _, seg := range p.Segments {
		copy(image[seg.VirtAddr:], seg.Data)
	}

	if p.EntryPoint != 0 && len(image) >= 4 {
		jump := insts.EncodeE(insts.BranchAlways, 0, int32(p.EntryPoint-4))
		image[0] = byte(jump)
		image[1] = byte(jump >> 8)
		image[2] = byte(jump >> 16)
		image[3] = byte(jump >> 24)
	}
	return image
}

// LoadInto copies the flattened image to address 0 of target.
func (p *Program) LoadInto(target ImageLoader) error {
	if err := target.LoadImage(0, p.Flatten()); err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}
	return nil
}
