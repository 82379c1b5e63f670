package rs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/rs"
)

var _ = Describe("Pools", func() {
	var pools *rs.Pools

	BeforeEach(func() {
		pools = rs.NewPools(2, 1, 1)
	})

	It("routes ops to the right pool and exhausts it", func() {
		a0 := pools.GetAvailable(insts.OpADD)
		Expect(a0).NotTo(BeNil())
		a0.Busy = true

		a1 := pools.GetAvailable(insts.OpSUB)
		Expect(a1).NotTo(BeNil())
		Expect(a1).NotTo(Equal(a0))
		a1.Busy = true

		Expect(pools.GetAvailable(insts.OpBEQ)).To(BeNil())

		m := pools.GetAvailable(insts.OpLD)
		Expect(m).NotTo(BeNil())
	})

	It("broadcasts a result to every station waiting on that ROB index", func() {
		s := pools.GetAvailable(insts.OpADD)
		s.Busy = true
		qj := 3
		s.Qj = &qj

		pools.Broadcast(3, 99)

		Expect(s.Qj).To(BeNil())
		Expect(s.Vj).NotTo(BeNil())
		Expect(*s.Vj).To(Equal(int64(99)))
	})

	It("does not disturb a station waiting on a different ROB index", func() {
		s := pools.GetAvailable(insts.OpADD)
		s.Busy = true
		qj := 3
		s.Qj = &qj

		pools.Broadcast(4, 99)

		Expect(s.Qj).NotTo(BeNil())
		Expect(*s.Qj).To(Equal(3))
	})

	It("flushes speculative stations issued after the branch PC, keeping earlier and non-speculative ones", func() {
		s1 := pools.GetAvailable(insts.OpADD)
		s1.Busy = true
		s1.PC = 10
		s1.Speculative = false

		s2 := pools.GetAvailable(insts.OpSUB)
		s2.Busy = true
		s2.PC = 20
		s2.Speculative = true

		pools.FlushByPCAfter(15)

		Expect(s1.Busy).To(BeTrue())
		Expect(s2.Busy).To(BeFalse())
	})

	It("clears a station back to free", func() {
		s := pools.GetAvailable(insts.OpLD)
		s.Busy = true
		pools.Clear(s)
		Expect(s.Busy).To(BeFalse())
		again := pools.GetAvailable(insts.OpLD)
		Expect(again).To(Equal(s))
	})
})
