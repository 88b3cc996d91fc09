package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseHex reads a hex memory image: one 32-bit word per line, written
// most significant digit first, whose bytes appear in memory in text order.
// So "12345678" puts 0x12 at the lowest address. Blank lines and lines
// starting with "//" are skipped.
func ParseHex(r io.Reader) ([]byte, error) {
	var image []byte

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		word, err := strconv.ParseUint(line, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hex word %q: %w", lineNo, line, err)
		}
		image = append(image, byte(word>>24), byte(word>>16), byte(word>>8), byte(word))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hex image: %w", err)
	}

	return image, nil
}

// WriteHex writes an image in the format ParseHex reads. A trailing partial
// word is padded with zero bytes.
func WriteHex(w io.Writer, image []byte) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < len(image); i += 4 {
		var word [4]byte
		copy(word[:], image[i:])
		if _, err := fmt.Fprintf(bw, "%02x%02x%02x%02x\n", word[0], word[1], word[2], word[3]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadHex reads a hex memory image file. The image is based at address 0
// and execution starts there.
func LoadHex(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hex file: %w", err)
	}
	defer func() { _ = f.Close() }()

	image, err := ParseHex(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Program{
		Segments: []Segment{{
			Data:    image,
			MemSize: uint32(len(image)),
			Flags:   SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Load reads an ELF executable or, failing the ELF magic check, a hex
// memory image.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	magic := make([]byte, len(elfMagic))
	n, _ := io.ReadFull(f, magic)
	_ = f.Close()

	if n == len(elfMagic) && bytes.Equal(magic, elfMagic) {
		return LoadELF(path)
	}
	return LoadHex(path)
}
