package speculation_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/speculation"
)

var _ = Describe("Manager", func() {
	var m *speculation.Manager

	BeforeEach(func() {
		m = speculation.NewManager()
	})

	It("is not speculative until a branch starts speculation", func() {
		Expect(m.IsSpeculative()).To(BeFalse())
		m.StartSpeculation(10, 20)
		Expect(m.IsSpeculative()).To(BeTrue())
		Expect(m.Level()).To(Equal(1))
	})

	It("refuses to record instructions when not speculating", func() {
		ok := m.AddSpeculativeInstruction(insts.Instruction{}, 5, 0)
		Expect(ok).To(BeFalse())
	})

	It("supports nested speculation levels", func() {
		m.StartSpeculation(10, 20)
		m.StartSpeculation(20, 30)
		Expect(m.Level()).To(Equal(2))
		Expect(m.Stats().MaxSpeculationLevel).To(Equal(2))
	})

	It("pops the branch stack and closes the region on a correct resolution", func() {
		m.StartSpeculation(10, 20)
		mispredicted := m.ResolveBranch(10, true, 20, true, 20)
		Expect(mispredicted).To(BeFalse())
		Expect(m.IsSpeculative()).To(BeFalse())
	})

	It("reports misprediction and sets a recovery PC on a wrong resolution", func() {
		m.StartSpeculation(10, 20)
		mispredicted := m.ResolveBranch(10, true, 99, true, 20)
		Expect(mispredicted).To(BeTrue())
		pc := m.RecoveryPC()
		Expect(pc).NotTo(BeNil())
		Expect(*pc).To(Equal(99))
		// RecoveryPC clears after read.
		Expect(m.RecoveryPC()).To(BeNil())
	})

	It("flushes only instructions issued after the mispredicted branch", func() {
		m.StartSpeculation(10, 20)
		m.AddSpeculativeInstruction(insts.Instruction{}, 11, 1)
		m.AddSpeculativeInstruction(insts.Instruction{}, 12, 2)

		flushed := m.FlushSpeculativeInstructions(10)
		Expect(flushed).To(ConsistOf(1, 2))
		Expect(m.IsSpeculative()).To(BeFalse())
	})

	// A mispredicted outer branch must close every still-open nested
	// speculation above it, not just its own frame (spec.md §4.7
	// Recovery step 5).
	It("closes nested inner speculation when the outer branch mispredicts", func() {
		m.StartSpeculation(10, 20)  // outer branch at PC 10
		m.StartSpeculation(20, 30)  // inner branch at PC 20, nested
		Expect(m.Level()).To(Equal(2))

		flushed := m.FlushSpeculativeInstructions(10)
		Expect(flushed).To(BeEmpty())
		Expect(m.IsSpeculative()).To(BeFalse(), "both speculation levels must close")
		Expect(m.Level()).To(Equal(0))
	})
})
