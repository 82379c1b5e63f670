package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/processor"
	"github.com/archsim/tomasulo/timing/latency"
	"github.com/archsim/tomasulo/timing/memcache"
)

type runFlags struct {
	robSize       int
	nAdd          int
	nMul          int
	nMem          int
	noSpeculation bool
	maxIssue      int
	btbSize       int
	historyBits   int
	configPath    string
	cycleCap      uint64
	verbose       bool
	enableCache   bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <program.asm>",
		Short: "Load a program and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.robSize, "rob-size", 0, "reorder buffer capacity (overrides config)")
	flags.IntVar(&f.nAdd, "n-add", 0, "number of add/branch reservation stations (overrides config)")
	flags.IntVar(&f.nMul, "n-mul", 0, "number of multiply/divide reservation stations (overrides config)")
	flags.IntVar(&f.nMem, "n-mem", 0, "number of load/store reservation stations (overrides config)")
	flags.BoolVar(&f.noSpeculation, "no-speculation", false, "disable branch speculation (stall at every branch instead)")
	flags.IntVar(&f.maxIssue, "max-issue", 0, "maximum instructions issued per cycle (overrides config; default 4)")
	flags.IntVar(&f.btbSize, "btb-size", 0, "branch target buffer capacity (overrides config)")
	flags.IntVar(&f.historyBits, "history-bits", 0, "global history register width in bits (overrides config)")
	flags.StringVar(&f.configPath, "config", "", "path to a latency config file (.json or .toml)")
	flags.Uint64Var(&f.cycleCap, "cycle-cap", 1_000_000, "hard backstop on simulated cycles")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log misprediction-recovery events")
	flags.BoolVar(&f.enableCache, "enable-cache", false, "charge L1 hit/miss latency for LD/ST instead of a flat latency")

	return cmd
}

func runProgram(programPath string, f *runFlags) error {
	cfg, err := loadLatencyConfig(f.configPath)
	if err != nil {
		return fmt.Errorf("loading timing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid timing config: %w", err)
	}

	lines, err := readProgramLines(programPath)
	if err != nil {
		return fmt.Errorf("reading program: %w", err)
	}

	pcfg := processorConfigFromLatency(cfg, f)

	var opts []processor.Option
	if f.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck
		opts = append(opts, processor.WithLogger(logger))
	}

	p := processor.New(pcfg, opts...)
	if err := p.LoadProgramText(lines); err != nil {
		return fmt.Errorf("parsing %s: %w", programPath, err)
	}

	runErr := p.Run(f.cycleCap)

	snap := p.Metrics()
	fmt.Printf("Program: %s\n", programPath)
	fmt.Printf("Cycles:              %d\n", snap.Cycles)
	fmt.Printf("Instructions retired: %d\n", snap.InstructionsRetired)
	fmt.Printf("IPC:                 %.3f\n", snap.IPC)
	fmt.Printf("Mispredictions:      %d\n", snap.Mispredictions)
	fmt.Printf("ROB stall cycles:    %d\n", snap.ROBStallCycles)
	fmt.Printf("RS stall cycles:     %d\n", snap.RSStallCycles)
	fmt.Printf("Bubble cycles:       %d\n", snap.BubbleCycles)

	if cstats, ok := p.CacheStats(); ok {
		fmt.Printf("Cache reads/writes:  %d/%d\n", cstats.Reads, cstats.Writes)
		fmt.Printf("Cache hits/misses:   %d/%d\n", cstats.Hits, cstats.Misses)
	}

	if runErr != nil {
		return fmt.Errorf("simulation stopped: %w", runErr)
	}
	if !p.Finished() {
		return fmt.Errorf("simulation did not finish within --cycle-cap=%d", f.cycleCap)
	}
	return nil
}

func readProgramLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines, nil
}

func loadLatencyConfig(path string) (*latency.Config, error) {
	if path == "" {
		return latency.Default(), nil
	}
	if strings.HasSuffix(path, ".toml") {
		return latency.LoadTOML(path)
	}
	return latency.LoadJSON(path)
}

// processorConfigFromLatency builds a processor.Config from the
// latency/structural config file, then overlays any flags the user
// explicitly passed (SPEC_FULL.md §6.1: flags override --config).
func processorConfigFromLatency(cfg *latency.Config, f *runFlags) processor.Config {
	pcfg := processor.Config{
		NumAddStations:    3,
		NumMulStations:    3,
		NumMemStations:    2,
		ROBSize:           cfg.ROBSize,
		MaxIssuePerCycle:  4,
		EnableSpeculation: !f.noSpeculation,
		BTBSize:           16,
		HistoryBits:       4,
		DeadlockThreshold: cfg.DeadlockThreshold,
		Latencies: map[insts.Op]int{
			insts.OpADD: int(cfg.ALULatency),
			insts.OpSUB: int(cfg.ALULatency),
			insts.OpMUL: int(cfg.MultiplyLatency),
			insts.OpDIV: int(cfg.DivideLatency),
			insts.OpLD:  int(cfg.LoadLatency),
			insts.OpST:  int(cfg.StoreLatency),
			insts.OpBEQ: int(cfg.BranchLatency),
			insts.OpBNE: int(cfg.BranchLatency),
		},
	}

	if f.robSize > 0 {
		pcfg.ROBSize = f.robSize
	}
	if f.nAdd > 0 {
		pcfg.NumAddStations = f.nAdd
	}
	if f.nMul > 0 {
		pcfg.NumMulStations = f.nMul
	}
	if f.nMem > 0 {
		pcfg.NumMemStations = f.nMem
	}
	if f.maxIssue > 0 {
		pcfg.MaxIssuePerCycle = f.maxIssue
	}
	if f.btbSize > 0 {
		pcfg.BTBSize = f.btbSize
	}
	if f.historyBits > 0 {
		pcfg.HistoryBits = uint(f.historyBits)
	}
	if f.enableCache {
		pcfg.EnableCache = true
		pcfg.CacheModel = memcache.DefaultConfig()
		pcfg.CacheModel.HitLatency = cfg.L1HitLatency
		pcfg.CacheModel.MissLatency = cfg.L1MissLatency
	}

	return pcfg
}
