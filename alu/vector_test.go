package alu_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/smtsim/alu"
	"github.com/sarchlab/smtsim/insts"
)

func ramp(base uint32) alu.Vector {
	var v alu.Vector
	for lane := range v {
		v[lane] = base + uint32(lane)
	}
	return v
}

var _ = Describe("Vector", func() {
	Describe("Mask", func() {
		It("should map lane 0 to bit 15", func() {
			Expect(alu.LaneBit(0)).To(Equal(alu.Mask(0x8000)))
			Expect(alu.LaneBit(15)).To(Equal(alu.Mask(0x0001)))
			Expect(alu.Mask(0x8000).Active(0)).To(BeTrue())
			Expect(alu.Mask(0x8000).Active(15)).To(BeFalse())
		})

		It("should resolve masking disciplines", func() {
			Expect(alu.ResolveMask(insts.MaskNone, 0x1234)).To(Equal(alu.FullMask))
			Expect(alu.ResolveMask(insts.MaskReg, 0xFFFF1234)).To(Equal(alu.Mask(0x1234)))
			Expect(alu.ResolveMask(insts.MaskInverted, 0x1234)).To(Equal(alu.Mask(0xEDCB)))
		})
	})

	Describe("VectorOp", func() {
		It("should match the scalar result in every lane", func() {
			rng := rand.New(rand.NewSource(1))
			ops := []insts.Op{
				insts.OpOr, insts.OpAnd, insts.OpXor, insts.OpAdd, insts.OpSub,
				insts.OpMull, insts.OpMulhI, insts.OpMulhU, insts.OpAshr, insts.OpShr,
				insts.OpShl, insts.OpClz, insts.OpCtz, insts.OpFAdd, insts.OpFMul,
				insts.OpFtoi, insts.OpItof, insts.OpSext16, insts.OpAndn,
			}
			for _, op := range ops {
				a, b := rng.Uint32(), rng.Uint32()
				got, err := alu.VectorOp(op, alu.Splat(a), alu.Splat(b), alu.FullMask)
				Expect(err).NotTo(HaveOccurred())
				want, _ := alu.Scalar(op, a, b)
				Expect(got).To(Equal(alu.Splat(want)), op.String())
			}
		})

		It("should reconstruct the full result from complementary masks", func() {
			dst := ramp(1000)
			a, b := ramp(1), ramp(50)
			full, err := alu.VectorOp(insts.OpAdd, a, b, alu.FullMask)
			Expect(err).NotTo(HaveOccurred())

			for _, reg := range []uint32{0, 0xFFFF, 0xA5A5, 0x0001, 0x8000} {
				masked := alu.ResolveMask(insts.MaskReg, reg)
				inverted := alu.ResolveMask(insts.MaskInverted, reg)

				r1, _ := alu.VectorOp(insts.OpAdd, a, b, masked)
				r2, _ := alu.VectorOp(insts.OpAdd, a, b, inverted)
				combined := alu.Merge(alu.Merge(dst, r1, masked), r2, inverted)
				Expect(combined).To(Equal(full))
			}
		})

		It("should leave unselected lanes of the destination untouched", func() {
			dst := ramp(1000)
			r, _ := alu.VectorOp(insts.OpMove, alu.Vector{}, alu.Splat(7), 0x8001)
			out := alu.Merge(dst, r, 0x8001)
			Expect(out[0]).To(Equal(uint32(7)))
			Expect(out[15]).To(Equal(uint32(7)))
			Expect(out[1]).To(Equal(uint32(1001)))
		})

		It("should only fault on selected lanes", func() {
			divisors := alu.Splat(1)
			divisors[3] = 0

			_, err := alu.VectorOp(insts.OpDiv, ramp(10), divisors, alu.FullMask)
			Expect(err).To(MatchError(alu.ErrDivideByZero))

			_, err = alu.VectorOp(insts.OpDiv, ramp(10), divisors, alu.FullMask&^alu.LaneBit(3))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("VectorCompare", func() {
		It("should pack lane 0 into bit 15", func() {
			a := alu.Vector{}
			a[0] = 5
			packed, err := alu.VectorCompare(insts.OpCmpEq, a, alu.Splat(5), alu.FullMask)
			Expect(err).NotTo(HaveOccurred())
			Expect(packed).To(Equal(uint32(0x8000)))
		})

		It("should pack every lane", func() {
			packed, err := alu.VectorCompare(insts.OpCmpGtU, ramp(0), alu.Splat(7), alu.FullMask)
			Expect(err).NotTo(HaveOccurred())
			// lanes 8..15 hold 8..15
			Expect(packed).To(Equal(uint32(0x00FF)))
		})

		It("should leave masked-off lanes zero", func() {
			packed, _ := alu.VectorCompare(insts.OpCmpEq, alu.Splat(1), alu.Splat(1), 0x0F0F)
			Expect(packed).To(Equal(uint32(0x0F0F)))
		})
	})

	Describe("Lane permutes", func() {
		It("should shuffle by the low four bits of each index", func() {
			src := ramp(100)
			var idx alu.Vector
			for lane := range idx {
				idx[lane] = uint32(15-lane) | 0xF0
			}
			out := alu.Shuffle(src, idx)
			Expect(out[0]).To(Equal(uint32(115)))
			Expect(out[15]).To(Equal(uint32(100)))
		})

		It("should extract a lane", func() {
			Expect(alu.GetLane(ramp(100), 3)).To(Equal(uint32(103)))
			Expect(alu.GetLane(ramp(100), 19)).To(Equal(uint32(103)))
		})
	})
})
