package cosim_test

import (
	"bytes"
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/cosim"
	"github.com/sarchlab/smtsim/emu"
	"github.com/sarchlab/smtsim/insts"
)

// referenceStream runs words on a fresh processor and renders its commit
// trace as a hardware event stream.
func referenceStream(words ...uint32) []string {
	rec := &emu.Recorder{}
	p := emu.NewProcessor(emu.WithMemorySize(0x1000), emu.WithTracer(rec))
	load(p, words...)
	result := p.Run(context.Background())
	Expect(result.Err).NotTo(HaveOccurred())

	lines := make([]string, 0, len(rec.Events)+1)
	for _, e := range rec.Events {
		lines = append(lines, cosim.FormatEvent(e))
	}
	return lines
}

var _ = Describe("Checker", func() {
	var (
		out     *bytes.Buffer
		checker *cosim.Checker
		p       *emu.Processor
	)

	setup := func(words ...uint32) {
		out = &bytes.Buffer{}
		checker = cosim.NewChecker(cosim.WithOutput(out))
		p = emu.NewProcessor(emu.WithMemorySize(0x1000), emu.WithTracer(checker))
		checker.Attach(p)
		load(p, words...)
	}

	prog := []uint32{
		addi(1, 0, 7),
		insts.EncodeB(insts.BFmtScalarToVector, insts.OpAdd, 2, 1, 1, 0),
		insts.EncodeC(false, insts.MemBlock, 2, 0, 0x100, 0),
		insts.EncodeC(false, insts.MemHalf, 1, 0, 0x202, 0),
		halt,
	}

	run := func(lines []string) error {
		return checker.Run(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	}

	It("should accept a stream that matches", func() {
		stream := referenceStream(prog...)
		Expect(stream).To(HaveLen(4))

		setup(prog...)
		Expect(run(append(stream, cosim.HaltedMarker))).To(Succeed())
		Expect(checker.Events()).To(Equal(uint64(4)))
		Expect(p.Halted()).To(BeTrue())
	})

	It("should report a value mismatch", func() {
		stream := referenceStream(prog...)
		stream[0] = "swriteback 00000000 0 1 00000008"

		setup(prog...)
		err := run(append(stream, cosim.HaltedMarker))

		var mismatch *cosim.MismatchError
		Expect(errors.As(err, &mismatch)).To(BeTrue())
		Expect(errors.Is(err, cosim.ErrMismatch)).To(BeTrue())
		Expect(mismatch.Got.Value).To(Equal(uint32(7)))
		Expect(out.String()).To(ContainSubstring("COSIM MISMATCH, strand 0"))
		Expect(out.String()).To(ContainSubstring("REGISTERS"))
	})

	It("should fail when the processor commits more than the hardware", func() {
		stream := referenceStream(prog...)

		setup(prog...)
		err := run(append(stream[:3], cosim.HaltedMarker))

		var mismatch *cosim.MismatchError
		Expect(errors.As(err, &mismatch)).To(BeTrue())
		Expect(mismatch.Expected).To(BeNil())
		Expect(mismatch.Got.Kind).To(Equal(emu.EventStore))
	})

	It("should fail when the stream never halts", func() {
		stream := referenceStream(prog...)

		setup(prog...)
		Expect(run(stream)).To(MatchError(cosim.ErrNotHalted))
	})

	It("should give up on a strand that commits nothing", func() {
		setup(insts.EncodeE(insts.BranchAlways, 0, -4))

		err := run([]string{"swriteback 0 0 1 1", cosim.HaltedMarker})
		Expect(errors.Is(err, cosim.ErrNoEvent)).To(BeTrue())
		Expect(out.String()).To(ContainSubstring("infinite loop"))
	})

	It("should echo lines it does not understand", func() {
		setup(halt)

		Expect(run([]string{"hello from the testbench", cosim.HaltedMarker})).To(Succeed())
		Expect(out.String()).To(Equal("hello from the testbench\n"))
	})

	It("should deliver interrupts to the named strand", func() {
		handler := uint32(0x40)
		words := make([]uint32, handler/4+2)
		// Enable traps, point the handler at 0x40 and spin.
		words[0] = addi(1, 0, int32(handler))
		words[1] = insts.EncodeSetControl(1, emu.CRTrapHandler)
		words[2] = addi(2, 0, int32(emu.FlagTrapEnable|emu.FlagSupervisor))
		words[3] = insts.EncodeSetControl(2, emu.CRFlags)
		words[4] = insts.EncodeE(insts.BranchAlways, 0, -4)
		words[handler/4] = insts.EncodeGetControl(3, emu.CRTrapCause)
		words[handler/4+1] = halt

		setup(words...)
		err := run([]string{
			"swriteback 00000000 0 1 00000040",
			"swriteback 00000008 0 2 00000003",
			"interrupt 0 00000010",
			"swriteback 00000040 0 3 00000003",
			cosim.HaltedMarker,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Strand(0).Cause()).To(Equal(uint32(emu.CauseInterrupt)))
	})

	It("should match vector writes lane by lane", func() {
		setup(prog...)
		lanes := alu.Splat(8)
		want := emu.Event{Kind: emu.EventVectorWrite, PC: 4, Reg: 2, Mask: alu.FullMask, Values: lanes}

		Expect(checker.Expect(emu.Event{Kind: emu.EventScalarWrite, Reg: 1, Value: 7})).To(Succeed())
		Expect(checker.Expect(want)).To(Succeed())
	})
})
