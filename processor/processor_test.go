package processor_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/processor"
	"github.com/archsim/tomasulo/timing/memcache"
)

func r(i uint8) insts.Reg { return insts.Reg{Class: insts.ClassInt, Index: i} }

var _ = Describe("Processor", func() {
	var p *processor.Processor

	BeforeEach(func() {
		p = processor.New(processor.DefaultConfig())
	})

	// S1: RAW dependency flowing through a load result.
	It("carries a load's value to a dependent add (RAW through a load)", func() {
		p.Memory().Set(0, 10)
		p.Memory().Set(4, 20)
		Expect(p.LoadProgramText([]string{
			"LD R1, 0(R0)",
			"LD R2, 4(R0)",
			"ADD R3, R1, R2",
		})).To(Succeed())

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())

		Expect(p.RegisterValue(r(1))).To(Equal(int64(10)))
		Expect(p.RegisterValue(r(2))).To(Equal(int64(20)))
		Expect(p.RegisterValue(r(3))).To(Equal(int64(30)))
		Expect(p.InstructionsCommitted()).To(Equal(3))

		snap := p.Metrics()
		Expect(snap.IPC).To(BeNumerically(">", 0))
		Expect(snap.Mispredictions).To(BeZero())
	})

	// S2: WAW renaming — the second writer to R1 must win.
	It("lets the second writer of a renamed destination win (WAW)", func() {
		Expect(p.LoadProgramText([]string{
			"ADD R1, R2, R3",
			"ADD R1, R4, R5",
		})).To(Succeed())

		// Load resets the register file, so presets go in after it.
		p.PresetRegister(r(2), 1)
		p.PresetRegister(r(3), 2)
		p.PresetRegister(r(4), 10)
		p.PresetRegister(r(5), 20)

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())
		Expect(p.RegisterValue(r(1))).To(Equal(int64(30)))
		Expect(p.InstructionsCommitted()).To(Equal(2))
	})

	// S3: a taken branch over two instructions that must never commit,
	// regardless of whether the predictor guesses right (cold defaults
	// to not-taken, so this also exercises one recovery in passing).
	It("skips instructions on a taken branch's not-executed path", func() {
		Expect(p.LoadProgramText([]string{
			"ADD R1, R0, R0", // R1 = 0
			"BEQ R1, R0, 2",  // R1==R0 -> taken, skip next two
			"ADD R2, R0, R0",
			"ADD R3, R0, R0",
			"ADD R4, R0, R0",
		})).To(Succeed())

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())

		Expect(p.RegisterValue(r(1))).To(Equal(int64(0)))
		Expect(p.RegisterValue(r(4))).To(Equal(int64(0)))
		Expect(p.InstructionsCommitted()).To(Equal(3), "R2's and R3's ADDs must never commit")
	})

	// S4: a cold predictor defaults to not-taken (pattern-table
	// counters start WeaklyNotTaken), so forcing an actually-taken branch on the first pass
	// mispredicts and exercises flush-and-recover.
	It("recovers from a misprediction and reaches correct architectural state", func() {
		Expect(p.LoadProgramText([]string{
			"ADD R1, R0, R0",  // R1 = 0
			"ADD R2, R0, R0",  // R2 = 0
			"BEQ R1, R2, 2",   // cold predictor guesses not-taken; actually taken
			"ADD R3, R0, R0",  // wrong-path, must be flushed
			"ADD R4, R0, R0",  // wrong-path, must be flushed
			"ADD R5, R1, R1",  // correct-path landing instruction
		})).To(Succeed())

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())

		Expect(p.Metrics().Mispredictions).To(BeNumerically(">=", 1))
		Expect(p.RegisterValue(r(5))).To(Equal(int64(0)))
		Expect(p.RegisterValue(r(3))).To(Equal(int64(0)), "never written; flushed before commit")
	})

	// S5: divide by zero must surface from Step/Run, not panic or hang.
	It("raises divide-by-zero from Execute and stops the run", func() {
		Expect(p.LoadProgramText([]string{
			"ADD R1, R0, R0",
			"DIV R2, R3, R1",
		})).To(Succeed())

		err := p.Run(1000)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("divide by zero"))
	})

	// S6: a deliberately undersized ROB, with enough reservation
	// stations that Issue never blocks on those, forces repeated
	// ROB-full stalls while every independent instruction still
	// eventually commits.
	It("drains all instructions through a saturated ROB without deadlock", func() {
		cfg := processor.DefaultConfig()
		cfg.ROBSize = 4
		cfg.NumAddStations = 8
		cfg.Latencies = map[insts.Op]int{insts.OpADD: 6}
		p = processor.New(cfg)

		lines := make([]string, 0, 8)
		for i := 1; i <= 8; i++ {
			lines = append(lines, "ADD R"+itoa(i)+", R0, R0")
		}
		Expect(p.LoadProgramText(lines)).To(Succeed())

		Expect(p.Run(10000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())
		Expect(p.InstructionsCommitted()).To(Equal(8))
		Expect(p.Metrics().ROBStallCycles).To(BeNumerically(">", 0))
		Expect(p.Metrics().RSStallCycles).To(BeZero())
	})

	It("never raises ErrDeadlock for a straight-line program within threshold", func() {
		Expect(p.LoadProgramText([]string{
			"ADD R1, R0, R0",
			"ADD R2, R1, R1",
		})).To(Succeed())
		Expect(p.Run(1000)).To(Succeed())
	})

	// A non-dependent op with a 1-cycle latency must not complete in the
	// very cycle it issues (spec.md §4.3/§5: remaining_cycles = latency+1).
	// If Issue set RemainingCycles to a bare latency, this single ADD
	// would broadcast and its ROB head would be ready within the same
	// Step() call that issued it, finishing the whole program in one cycle.
	It("does not complete a ready-operand instruction in its own issue cycle", func() {
		cfg := processor.DefaultConfig()
		cfg.Latencies = map[insts.Op]int{insts.OpADD: 1}
		p = processor.New(cfg)

		Expect(p.LoadProgramText([]string{
			"ADD R1, R0, R0",
		})).To(Succeed())

		more, err := p.Step()
		Expect(err).NotTo(HaveOccurred())
		Expect(more).To(BeTrue(), "must still have in-flight work after the issuing cycle")
		Expect(p.InstructionsCommitted()).To(BeZero())

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())
		Expect(p.InstructionsCommitted()).To(Equal(1))
	})

	// LD/ST compute their effective address eagerly at Issue from the
	// base register's current value (spec.md §4.3), so a base register
	// written by an instruction that commits before the LD is issued must
	// be reflected in the address, and a store's value-to-store register
	// is captured independently of the base.
	It("computes LD/ST effective address eagerly from the base register", func() {
		p.Memory().Set(8, 42)
		Expect(p.LoadProgramText([]string{
			"ADD R1, R0, R0", // R1 = 0
			"LD R2, 8(R1)",   // address = value(R1) + 8 = 8
			"ADD R3, R0, R0", // R3 = 0, value to store
			"ST R3, 16(R1)",  // address = value(R1) + 16 = 16
			"LD R4, 16(R1)",
		})).To(Succeed())

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())
		Expect(p.RegisterValue(r(2))).To(Equal(int64(42)))
		Expect(p.RegisterValue(r(4))).To(Equal(int64(0)))
	})

	// With the L1 cache model enabled, a second load of an address
	// already fetched by an earlier load must register as a hit.
	It("annotates repeated LD addresses as cache hits when the cache model is enabled", func() {
		cfg := processor.DefaultConfig()
		cfg.EnableCache = true
		cfg.CacheModel = memcache.Config{Sets: 4, Associativity: 2, HitLatency: 1, MissLatency: 8}
		p = processor.New(cfg)

		p.Memory().Set(0, 5)
		Expect(p.LoadProgramText([]string{
			"LD R1, 0(R0)",
			"LD R2, 0(R0)",
		})).To(Succeed())

		Expect(p.Run(1000)).To(Succeed())
		Expect(p.Finished()).To(BeTrue())
		Expect(p.RegisterValue(r(1))).To(Equal(int64(5)))
		Expect(p.RegisterValue(r(2))).To(Equal(int64(5)))

		stats, ok := p.CacheStats()
		Expect(ok).To(BeTrue())
		Expect(stats.Reads).To(Equal(uint64(2)))
		Expect(stats.Hits).To(BeNumerically(">=", 1))
	})

	It("reports the cache as disabled by default", func() {
		_, ok := p.CacheStats()
		Expect(ok).To(BeFalse())
	})
})

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
