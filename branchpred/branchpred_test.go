package branchpred_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/tomasulo/branchpred"
)

var _ = Describe("Predictor", func() {
	var p *branchpred.Predictor

	BeforeEach(func() {
		p = branchpred.NewPredictor(2, 4)
	})

	It("misses the BTB on the first prediction for a PC", func() {
		pred := p.Predict(100, false)
		Expect(pred.BTBHit).To(BeFalse())
		Expect(pred.Taken).To(BeFalse()) // pattern table starts WeaklyNotTaken
	})

	It("hits the BTB after an Update for that PC", func() {
		pred := p.Predict(100, false)
		p.Update(100, true, 200, pred)

		pred2 := p.Predict(100, false)
		Expect(pred2.BTBHit).To(BeTrue())
		Expect(pred2.Target).To(Equal(200))
	})

	It("saturates the 2-bit counter toward taken over repeated taken outcomes", func() {
		pred := p.Predict(100, false)
		p.Update(100, true, 200, pred)
		p.Update(100, true, 200, p.Predict(100, false))
		p.Update(100, true, 200, p.Predict(100, false))

		final := p.Predict(100, false)
		Expect(final.Taken).To(BeTrue())
	})

	It("evicts the smallest-PC BTB entry when full", func() {
		p1 := p.Predict(10, false)
		p.Update(10, true, 11, p1)
		p2 := p.Predict(20, false)
		p.Update(20, true, 21, p2)
		// btbSize is 2; both slots full. A third distinct PC evicts PC 10.
		p3 := p.Predict(30, false)
		p.Update(30, true, 31, p3)

		pred := p.Predict(10, false)
		Expect(pred.BTBHit).To(BeFalse(), "PC 10 should have been evicted as the smallest key")

		pred20 := p.Predict(20, false)
		Expect(pred20.BTBHit).To(BeTrue())
	})

	It("applies the BEQ-taken bias only when enabled", func() {
		p.BiasBEQTakenOnMiss = true
		pred := p.Predict(999, true)
		Expect(pred.Taken).To(BeTrue())

		p2 := branchpred.NewPredictor(2, 4)
		predUnbiased := p2.Predict(999, true)
		Expect(predUnbiased.Taken).To(BeFalse())
	})

	It("tracks accuracy across predictions", func() {
		Expect(p.Accuracy()).To(Equal(0.0))
		pred := p.Predict(1, false)
		p.Update(1, pred.Taken, 2, pred)
		Expect(p.Accuracy()).To(Equal(1.0))
	})
})
