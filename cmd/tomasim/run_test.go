package main

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/timing/latency"
)

var _ = Describe("processorConfigFromLatency", func() {
	It("carries the config file's structural and latency values by default", func() {
		cfg := latency.Default()
		cfg.ROBSize = 9
		cfg.MultiplyLatency = 7

		pcfg := processorConfigFromLatency(cfg, &runFlags{})

		Expect(pcfg.ROBSize).To(Equal(9))
		Expect(pcfg.Latencies[insts.OpMUL]).To(Equal(7))
		Expect(pcfg.EnableSpeculation).To(BeTrue())
		Expect(pcfg.MaxIssuePerCycle).To(Equal(4))
	})

	It("lets explicit flags override the config file", func() {
		cfg := latency.Default()
		cfg.ROBSize = 9

		pcfg := processorConfigFromLatency(cfg, &runFlags{
			robSize:       32,
			nAdd:          5,
			noSpeculation: true,
			maxIssue:      2,
		})

		Expect(pcfg.ROBSize).To(Equal(32))
		Expect(pcfg.NumAddStations).To(Equal(5))
		Expect(pcfg.EnableSpeculation).To(BeFalse())
		Expect(pcfg.MaxIssuePerCycle).To(Equal(2))
	})

	It("leaves the cache model disabled unless --enable-cache is passed", func() {
		pcfg := processorConfigFromLatency(latency.Default(), &runFlags{})
		Expect(pcfg.EnableCache).To(BeFalse())
	})

	It("enables the cache model when --enable-cache is passed", func() {
		pcfg := processorConfigFromLatency(latency.Default(), &runFlags{enableCache: true})
		Expect(pcfg.EnableCache).To(BeTrue())
		Expect(pcfg.CacheModel.Sets).To(BeNumerically(">", 0))
	})
})

var _ = Describe("readProgramLines", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "tomasim-cli-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	It("strips blank lines and comments", func() {
		path := filepath.Join(dir, "prog.asm")
		text := "# a comment\nADD R1, R0, R0\n\n  ADD R2, R1, R1  \n"
		Expect(os.WriteFile(path, []byte(text), 0o644)).To(Succeed())

		lines, err := readProgramLines(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(lines).To(Equal([]string{"ADD R1, R0, R0", "ADD R2, R1, R1"}))
	})
})

var _ = Describe("loadLatencyConfig", func() {
	It("returns defaults when no path is given", func() {
		cfg, err := loadLatencyConfig("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ROBSize).To(Equal(latency.Default().ROBSize))
	})
})
