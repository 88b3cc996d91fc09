package emu_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/emu"
)

type recordingObserver struct {
	accesses      []uint32
	fetches       []uint32
	writes        int
	flushes       int
	invalidations int
	iinvalidates  int
	barriers      int
}

func (o *recordingObserver) Access(addr uint32, write bool) {
	o.accesses = append(o.accesses, addr)
	if write {
		o.writes++
	}
}
func (o *recordingObserver) Fetch(addr uint32)                 { o.fetches = append(o.fetches, addr) }
func (o *recordingObserver) Flush(addr uint32)                 { o.flushes++ }
func (o *recordingObserver) Invalidate(addr uint32)            { o.invalidations++ }
func (o *recordingObserver) InvalidateInstruction(addr uint32) { o.iinvalidates++ }
func (o *recordingObserver) Barrier()                          { o.barriers++ }

func faultCause(err error) emu.TrapCause {
	var fault *emu.Fault
	Expect(errors.As(err, &fault)).To(BeTrue(), "expected a fault, got %v", err)
	return fault.Cause
}

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory(0x1000)
	})

	Describe("scalar access", func() {
		It("should be little-endian", func() {
			Expect(m.Store32(0x100, 0x11223344)).To(Succeed())

			Expect(m.Load8(0x100, false)).To(Equal(uint32(0x44)))
			Expect(m.Load8(0x103, false)).To(Equal(uint32(0x11)))
			Expect(m.Load16(0x102, false)).To(Equal(uint32(0x1122)))

			raw, err := m.ReadBytes(0x100, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))
		})

		It("should zero- or sign-extend narrow loads", func() {
			Expect(m.Store16(0x10, 0x8081)).To(Succeed())

			Expect(m.Load8(0x10, false)).To(Equal(uint32(0x81)))
			Expect(m.Load8(0x10, true)).To(Equal(uint32(0xFFFFFF81)))
			Expect(m.Load16(0x10, false)).To(Equal(uint32(0x8081)))
			Expect(m.Load16(0x10, true)).To(Equal(uint32(0xFFFF8081)))
		})

		It("should store only the low bytes", func() {
			Expect(m.Store32(0x20, 0xFFFFFFFF)).To(Succeed())
			Expect(m.Store8(0x21, 0x1234)).To(Succeed())
			Expect(m.Load32(0x20)).To(Equal(uint32(0xFFFF34FF)))
		})

		It("should fault on unaligned accesses", func() {
			_, err := m.Load32(0x102)
			Expect(faultCause(err)).To(Equal(emu.CauseUnalignedDataAccess))

			err = m.Store16(0x101, 0)
			Expect(faultCause(err)).To(Equal(emu.CauseUnalignedDataAccess))

			var fault *emu.Fault
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.Address).To(Equal(uint32(0x101)))
		})

		It("should report accesses outside memory as access violations", func() {
			_, err := m.Load32(0x1000)
			Expect(errors.Is(err, emu.ErrAccessViolation)).To(BeTrue())

			err = m.Store8(0x2000, 1)
			Expect(errors.Is(err, emu.ErrAccessViolation)).To(BeTrue())
		})
	})

	Describe("I/O window", func() {
		It("should send word stores to the console", func() {
			var out bytes.Buffer
			m.SetDevice(emu.NewConsole(&out))

			Expect(m.Store32(emu.ConsoleTxAddr, 'h')).To(Succeed())
			Expect(m.Store32(emu.ConsoleTxAddr, 'i')).To(Succeed())

			Expect(out.String()).To(Equal("hi"))
			Expect(m.Load32(emu.ConsoleStatusAddr)).To(Equal(uint32(1)))
		})

		It("should reject narrow accesses", func() {
			_, err := m.Load8(emu.ConsoleTxAddr, false)
			Expect(errors.Is(err, emu.ErrAccessViolation)).To(BeTrue())
		})
	})

	Describe("block access", func() {
		It("should place lane i at base + 4*i", func() {
			var v alu.Vector
			for lane := range v {
				v[lane] = uint32(lane + 1)
			}
			Expect(m.StoreBlock(0x200, v, alu.FullMask)).To(Succeed())

			Expect(m.Load32(0x200)).To(Equal(uint32(1)))
			Expect(m.Load32(0x23C)).To(Equal(uint32(16)))

			got, err := m.LoadBlock(0x200)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(v))
		})

		It("should store only selected lanes", func() {
			v := alu.Splat(7)
			Expect(m.StoreBlock(0x200, v, alu.LaneBit(0)|alu.LaneBit(15))).To(Succeed())

			Expect(m.Load32(0x200)).To(Equal(uint32(7)))
			Expect(m.Load32(0x204)).To(Equal(uint32(0)))
			Expect(m.Load32(0x23C)).To(Equal(uint32(7)))
		})

		It("should require 64-byte alignment", func() {
			_, err := m.LoadBlock(0x204)
			Expect(faultCause(err)).To(Equal(emu.CauseUnalignedDataAccess))
		})

		It("should ignore a store with an empty mask", func() {
			Expect(m.StoreBlock(0x204, alu.Splat(1), 0)).To(Succeed())
			Expect(m.Load32(0x204)).To(Equal(uint32(0)))
		})
	})

	Describe("strided and scatter/gather access", func() {
		It("should compute strided lane addresses", func() {
			addrs := emu.StridedAddresses(0x100, -8)
			Expect(addrs[0]).To(Equal(uint32(0x100)))
			Expect(addrs[1]).To(Equal(uint32(0xF8)))
			Expect(addrs[15]).To(Equal(uint32(0x100 - 15*8)))
		})

		It("should gather selected lanes and zero the rest", func() {
			for i := uint32(0); i < 16; i++ {
				Expect(m.Store32(0x300+i*8, 100+i)).To(Succeed())
			}

			v, err := m.LoadGather(emu.StridedAddresses(0x300, 8), alu.FullMask&^alu.LaneBit(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(v[0]).To(Equal(uint32(100)))
			Expect(v[1]).To(Equal(uint32(101)))
			Expect(v[2]).To(Equal(uint32(0)))
			Expect(v[15]).To(Equal(uint32(115)))
		})

		It("should not store any lane when one lane is unaligned", func() {
			addrs := alu.Vector{0x400, 0x402}
			err := m.StoreScatter(addrs, alu.Splat(9), alu.LaneBit(0)|alu.LaneBit(1))
			Expect(faultCause(err)).To(Equal(emu.CauseUnalignedDataAccess))
			Expect(m.Load32(0x400)).To(Equal(uint32(0)))
		})

		It("should skip the addresses of unselected lanes", func() {
			addrs := alu.Vector{0x400, 0x401}
			Expect(m.StoreScatter(addrs, alu.Splat(9), alu.LaneBit(0))).To(Succeed())
			Expect(m.Load32(0x400)).To(Equal(uint32(9)))
		})
	})

	Describe("synchronized access", func() {
		It("should succeed when nothing touched the line", func() {
			v, err := m.LoadSync(0, 0x80)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0)))

			ok, err := m.StoreSync(0, 0x80, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(m.Load32(0x80)).To(Equal(uint32(5)))
		})

		It("should fail after another strand stores to the line", func() {
			_, _ = m.LoadSync(0, 0x80)
			Expect(m.Store8(0xBF, 1)).To(Succeed())

			ok, err := m.StoreSync(0, 0x80, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			Expect(m.Load32(0x80)).To(Equal(uint32(0)))
		})

		It("should not be disturbed by stores to other lines", func() {
			_, _ = m.LoadSync(0, 0x80)
			Expect(m.Store32(0xC0, 1)).To(Succeed())

			ok, _ := m.StoreSync(0, 0x84, 5)
			Expect(ok).To(BeTrue())
		})

		It("should let only one of two competing strands succeed", func() {
			_, _ = m.LoadSync(0, 0x80)
			_, _ = m.LoadSync(1, 0x80)

			ok0, _ := m.StoreSync(0, 0x80, 1)
			ok1, _ := m.StoreSync(1, 0x80, 2)
			Expect(ok0).To(BeTrue())
			Expect(ok1).To(BeFalse())
			Expect(m.Load32(0x80)).To(Equal(uint32(1)))
		})

		It("should consume the reservation", func() {
			_, _ = m.LoadSync(2, 0x80)
			Expect(m.HasReservation(2, 0x80)).To(BeTrue())

			ok, _ := m.StoreSync(2, 0x80, 1)
			Expect(ok).To(BeTrue())
			Expect(m.HasReservation(2, 0x80)).To(BeFalse())

			ok, _ = m.StoreSync(2, 0x80, 1)
			Expect(ok).To(BeFalse())
		})

		It("should fail without a reservation", func() {
			ok, err := m.StoreSync(3, 0x80, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("cache observer", func() {
		It("should see data accesses, fetches and cache control", func() {
			o := &recordingObserver{}
			m.SetObserver(o)

			_, _ = m.Load32(0x40)
			_ = m.Store32(0x80, 1)
			_, _ = m.Fetch(0x8)
			m.DFlush(0x80)
			m.Membar()

			Expect(o.accesses).To(Equal([]uint32{0x40, 0x80}))
			Expect(o.fetches).To(Equal([]uint32{0x8}))
			Expect(o.writes).To(Equal(1))
			Expect(o.flushes).To(Equal(1))
			Expect(o.barriers).To(Equal(1))
		})
	})

	Describe("host access", func() {
		It("should not be seen by the cache observer", func() {
			o := &recordingObserver{}
			m.SetObserver(o)

			Expect(m.PokeWord(0x40, 0x1234)).To(Succeed())
			Expect(m.PeekWord(0x40)).To(Equal(uint32(0x1234)))

			Expect(o.accesses).To(BeEmpty())
		})

		It("should leave load-sync reservations in place", func() {
			_, _ = m.LoadSync(1, 0x80)
			Expect(m.PokeWord(0x84, 3)).To(Succeed())
			Expect(m.HasReservation(1, 0x80)).To(BeTrue())
		})

		It("should not reach the device window", func() {
			var out bytes.Buffer
			m.SetDevice(emu.NewConsole(&out))

			_, err := m.PeekWord(emu.ConsoleTxAddr)
			Expect(errors.Is(err, emu.ErrAccessViolation)).To(BeTrue())
			Expect(m.PokeWord(emu.ConsoleTxAddr, 'x')).NotTo(Succeed())
			Expect(out.Len()).To(BeZero())
		})

		It("should reject unaligned addresses", func() {
			_, err := m.PeekWord(0x42)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Fetch", func() {
		It("should fault on an unaligned PC", func() {
			_, err := m.Fetch(0x2)
			Expect(faultCause(err)).To(Equal(emu.CauseUnalignedInstructionFetch))
		})
	})
})
