package emu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sarchlab/smtsim/alu"
)

// DefaultMemorySize is the size of physical memory when none is configured.
const DefaultMemorySize = 0x1000000

// LineSize is the cache line size. Synchronized-access reservations and
// store trace events are tracked per line.
const LineSize = 64

// IOBase is the first address of the memory-mapped device window. Only
// 32-bit accesses reach it.
const IOBase = 0xFFFF0000

// CacheObserver is notified of every data access, instruction fetch and
// cache-control operation. It has no influence on architectural state.
type CacheObserver interface {
	Access(addr uint32, write bool)
	Fetch(addr uint32)
	Flush(addr uint32)
	Invalidate(addr uint32)
	InvalidateInstruction(addr uint32)
	Barrier()
}

// Memory is a flat little-endian physical memory shared by all strands.
// Every access holds the lock for its whole duration, so vector transfers
// and synchronized accesses are atomic with respect to other strands.
type Memory struct {
	mu   sync.Mutex
	data []byte

	// reservations maps a strand id to the line it load-linked.
	reservations map[int]uint32

	device   Device
	observer CacheObserver
}

// NewMemory creates a zero-filled memory of the given size in bytes.
func NewMemory(size uint32) *Memory {
	return &Memory{
		data:         make([]byte, size),
		reservations: make(map[int]uint32),
	}
}

// Size returns the size of physical memory in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// SetDevice attaches the device serving the I/O window.
func (m *Memory) SetDevice(d Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = d
}

// SetObserver attaches a cache observer.
func (m *Memory) SetObserver(o CacheObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// LoadImage copies raw bytes into memory starting at base.
func (m *Memory) LoadImage(base uint32, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(base)+uint64(len(image)) > uint64(len(m.data)) {
		return fmt.Errorf("%w: image of %d bytes at 0x%08x exceeds memory size 0x%x",
			ErrAccessViolation, len(image), base, len(m.data))
	}
	copy(m.data[base:], image)
	return nil
}

// ReadBytes returns a copy of a memory window.
func (m *Memory) ReadBytes(base, length uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(base)+uint64(length) > uint64(len(m.data)) {
		return nil, fmt.Errorf("%w: window 0x%08x+0x%x exceeds memory size 0x%x",
			ErrAccessViolation, base, length, len(m.data))
	}
	out := make([]byte, length)
	copy(out, m.data[base:])
	return out, nil
}

// PeekWord reads a word on behalf of the host. It bypasses the cache
// observer and the device window, so inspection leaves no trace in the
// simulated system.
func (m *Memory) PeekWord(addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHost(addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[addr:]), nil
}

// PokeWord writes a word on behalf of the host. Like PeekWord it is
// invisible to the cache observer, and it leaves load-sync reservations
// in place.
func (m *Memory) PokeWord(addr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHost(addr); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:], value)
	return nil
}

func (m *Memory) checkHost(addr uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("unaligned host access at 0x%08x", addr)
	}
	if uint64(addr)+4 > uint64(len(m.data)) {
		return fmt.Errorf("%w: address 0x%08x", ErrAccessViolation, addr)
	}
	return nil
}

// check validates a naturally aligned access of size bytes.
func (m *Memory) check(addr uint32, size uint32) error {
	if addr%size != 0 {
		return &Fault{Cause: CauseUnalignedDataAccess, Address: addr}
	}
	if addr >= IOBase && size == 4 {
		return nil
	}
	if uint64(addr)+uint64(size) > uint64(len(m.data)) {
		return fmt.Errorf("%w: address 0x%08x", ErrAccessViolation, addr)
	}
	return nil
}

func (m *Memory) observe(addr uint32, write bool) {
	if m.observer != nil {
		m.observer.Access(addr, write)
	}
}

// invalidateLine clears every strand's reservation on the line holding addr.
func (m *Memory) invalidateLine(addr uint32) {
	line := addr / LineSize
	for strand, reserved := range m.reservations {
		if reserved == line {
			delete(m.reservations, strand)
		}
	}
}

func (m *Memory) read32(addr uint32) uint32 {
	if addr >= IOBase {
		if m.device == nil {
			return 0
		}
		return m.device.ReadIO(addr)
	}
	return binary.LittleEndian.Uint32(m.data[addr:])
}

func (m *Memory) write32(addr, value uint32) {
	if addr >= IOBase {
		if m.device != nil {
			m.device.WriteIO(addr, value)
		}
		return
	}
	binary.LittleEndian.PutUint32(m.data[addr:], value)
	m.invalidateLine(addr)
}

// Load8 loads a byte, zero- or sign-extended.
func (m *Memory) Load8(addr uint32, signed bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	m.observe(addr, false)
	v := uint32(m.data[addr])
	if signed {
		v = alu.SignExtend8(v)
	}
	return v, nil
}

// Load16 loads a halfword, zero- or sign-extended.
func (m *Memory) Load16(addr uint32, signed bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 2); err != nil {
		return 0, err
	}
	m.observe(addr, false)
	v := uint32(binary.LittleEndian.Uint16(m.data[addr:]))
	if signed {
		v = alu.SignExtend16(v)
	}
	return v, nil
}

// Load32 loads a word.
func (m *Memory) Load32(addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 4); err != nil {
		return 0, err
	}
	m.observe(addr, false)
	return m.read32(addr), nil
}

// Store8 stores the low byte of value.
func (m *Memory) Store8(addr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 1); err != nil {
		return err
	}
	m.observe(addr, true)
	m.data[addr] = byte(value)
	m.invalidateLine(addr)
	return nil
}

// Store16 stores the low halfword of value.
func (m *Memory) Store16(addr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 2); err != nil {
		return err
	}
	m.observe(addr, true)
	binary.LittleEndian.PutUint16(m.data[addr:], uint16(value))
	m.invalidateLine(addr)
	return nil
}

// Store32 stores a word.
func (m *Memory) Store32(addr, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 4); err != nil {
		return err
	}
	m.observe(addr, true)
	m.write32(addr, value)
	return nil
}

// checkBlock validates a 64-byte aligned block inside physical memory.
func (m *Memory) checkBlock(addr uint32) error {
	if addr%LineSize != 0 {
		return &Fault{Cause: CauseUnalignedDataAccess, Address: addr}
	}
	if uint64(addr)+LineSize > uint64(len(m.data)) {
		return fmt.Errorf("%w: block 0x%08x", ErrAccessViolation, addr)
	}
	return nil
}

// LoadBlock loads 16 consecutive words; lane i comes from addr + 4*i.
func (m *Memory) LoadBlock(addr uint32) (alu.Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkBlock(addr); err != nil {
		return alu.Vector{}, err
	}
	m.observe(addr, false)

	var v alu.Vector
	for lane := range v {
		v[lane] = binary.LittleEndian.Uint32(m.data[addr+uint32(lane)*4:])
	}
	return v, nil
}

// StoreBlock stores the selected lanes of v to 16 consecutive words.
// A block store with an empty mask is ignored, alignment included.
func (m *Memory) StoreBlock(addr uint32, v alu.Vector, mask alu.Mask) error {
	if mask == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkBlock(addr); err != nil {
		return err
	}
	m.observe(addr, true)

	for lane := range v {
		if mask.Active(lane) {
			binary.LittleEndian.PutUint32(m.data[addr+uint32(lane)*4:], v[lane])
		}
	}
	m.invalidateLine(addr)
	return nil
}

// laneAddresses checks one word address per selected lane before any lane
// is transferred, so a fault leaves memory untouched.
func (m *Memory) laneAddresses(addrs alu.Vector, mask alu.Mask) error {
	for lane, addr := range addrs {
		if !mask.Active(lane) {
			continue
		}
		if err := m.check(addr, 4); err != nil {
			return err
		}
	}
	return nil
}

// StridedAddresses computes the per-lane addresses of a strided access.
func StridedAddresses(base uint32, stride int32) alu.Vector {
	var addrs alu.Vector
	for lane := range addrs {
		addrs[lane] = base + uint32(int32(lane)*stride)
	}
	return addrs
}

// LoadGather loads one word per selected lane from the lane's address.
// Unselected lanes of the result are zero.
func (m *Memory) LoadGather(addrs alu.Vector, mask alu.Mask) (alu.Vector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v alu.Vector
	if err := m.laneAddresses(addrs, mask); err != nil {
		return v, err
	}
	for lane, addr := range addrs {
		if mask.Active(lane) {
			m.observe(addr, false)
			v[lane] = m.read32(addr)
		}
	}
	return v, nil
}

// StoreScatter stores each selected lane of v to the lane's address.
func (m *Memory) StoreScatter(addrs alu.Vector, v alu.Vector, mask alu.Mask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.laneAddresses(addrs, mask); err != nil {
		return err
	}
	for lane, addr := range addrs {
		if mask.Active(lane) {
			m.observe(addr, true)
			m.write32(addr, v[lane])
		}
	}
	return nil
}

// LoadSync loads a word and places a reservation on its line for the strand,
// replacing any reservation the strand already held.
func (m *Memory) LoadSync(strand int, addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 4); err != nil {
		return 0, err
	}
	m.observe(addr, false)
	m.reservations[strand] = addr / LineSize
	return m.read32(addr), nil
}

// StoreSync stores a word only if the strand still holds a reservation on
// its line, that is, no store from any strand has touched the line since the
// matching LoadSync. The strand's reservation is consumed either way.
func (m *Memory) StoreSync(strand int, addr, value uint32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 4); err != nil {
		return false, err
	}

	line, ok := m.reservations[strand]
	delete(m.reservations, strand)
	if !ok || line != addr/LineSize {
		return false, nil
	}

	m.observe(addr, true)
	m.write32(addr, value)
	return true, nil
}

// HasReservation reports whether the strand holds a reservation on the
// line containing addr.
func (m *Memory) HasReservation(strand int, addr uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.reservations[strand]
	return ok && line == addr/LineSize
}

// DPreload hints that a line will be read soon.
func (m *Memory) DPreload(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observe(addr, false)
}

// DFlush writes back a line. Memory is always coherent, so only the
// observer sees it.
func (m *Memory) DFlush(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observer != nil {
		m.observer.Flush(addr)
	}
}

// DInvalidate discards a data cache line.
func (m *Memory) DInvalidate(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observer != nil {
		m.observer.Invalidate(addr)
	}
}

// IInvalidate discards an instruction cache line.
func (m *Memory) IInvalidate(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observer != nil {
		m.observer.InvalidateInstruction(addr)
	}
}

// Membar orders earlier memory accesses before later ones.
func (m *Memory) Membar() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observer != nil {
		m.observer.Barrier()
	}
}

// Fetch reads an instruction word. Instruction fetch bypasses the I/O
// window.
func (m *Memory) Fetch(pc uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pc%4 != 0 {
		return 0, &Fault{Cause: CauseUnalignedInstructionFetch, Address: pc}
	}
	if uint64(pc)+4 > uint64(len(m.data)) {
		return 0, fmt.Errorf("%w: instruction fetch at 0x%08x", ErrAccessViolation, pc)
	}
	if m.observer != nil {
		m.observer.Fetch(pc)
	}
	return binary.LittleEndian.Uint32(m.data[pc:]), nil
}
