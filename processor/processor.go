// Package processor orchestrates dynamic scheduling: an Issue stage
// that renames and dispatches into reservation stations, an Execute
// stage that advances station countdowns and broadcasts results on
// the common data bus, and a Commit stage that retires the reorder
// buffer's head in order (spec.md §4.7, §5).
package processor

import (
	"github.com/archsim/tomasulo/alu"
	"github.com/archsim/tomasulo/branchpred"
	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/memory"
	"github.com/archsim/tomasulo/regfile"
	"github.com/archsim/tomasulo/rob"
	"github.com/archsim/tomasulo/rs"
	"github.com/archsim/tomasulo/speculation"
	"github.com/archsim/tomasulo/timing/memcache"
	"github.com/archsim/tomasulo/timing/metrics"
	"github.com/archsim/tomasulo/tomerrors"

	"go.uber.org/zap"
)

// Config holds the structural parameters of a Processor (spec.md §4.1, §4.3, §4.5).
type Config struct {
	NumAddStations int
	NumMulStations int
	NumMemStations int
	ROBSize        int

	// MaxIssuePerCycle bounds how many instructions issueStage will
	// dispatch in program order within a single Step() (spec.md §4.7
	// "Issue (at most IW instructions per cycle; default 4)"). Each
	// issued instruction still only becomes visible to Execute on a
	// later cycle (RemainingCycles = latency+1), so raising this only
	// widens dispatch, not per-instruction latency.
	MaxIssuePerCycle int

	EnableSpeculation bool
	BTBSize           int
	HistoryBits       uint

	DeadlockThreshold int

	Latencies map[insts.Op]int

	// EnableCache turns on the optional L1 data-cache latency
	// annotation layer for LD/ST (SPEC_FULL.md §6.4). When enabled,
	// a station's RemainingCycles for LD/ST is set from the cache's
	// reported hit/miss latency instead of the flat Latencies[OpLD]/
	// Latencies[OpST] entry; the access's value still always goes
	// through memory.Memory directly.
	EnableCache bool
	CacheModel  memcache.Config
}

// DefaultConfig returns the default structural parameters.
func DefaultConfig() Config {
	return Config{
		NumAddStations:    3,
		NumMulStations:    3,
		NumMemStations:    2,
		ROBSize:           8,
		MaxIssuePerCycle:  4,
		EnableSpeculation: true,
		BTBSize:           16,
		HistoryBits:       4,
		DeadlockThreshold: 30,
		CacheModel:        memcache.DefaultConfig(),
	}
}

// Option is a functional option for constructing a Processor.
type Option func(*Processor)

// WithLogger attaches a structured logger the processor writes
// misprediction-recovery events to; issue, execute and commit are not
// logged. A nil logger (the default) leaves logging a no-op.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics attaches a metrics sink. If omitted, metrics calls are
// created internally against a private, unregistered Metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// Processor is the Tomasulo core: reservation stations, reorder
// buffer, rename/register file, branch predictor, and speculation
// manager wired together by Issue/Execute/Commit.
type Processor struct {
	cfg Config

	instructions []insts.Instruction
	pc           int

	regfile   *regfile.RegisterFile
	stations  *rs.Pools
	reorder   *rob.ROB
	memory    *memory.Memory
	predictor *branchpred.Predictor
	spec      *speculation.Manager
	cache     *memcache.Cache

	cycle        uint64
	bubbleCycles int
	finished     bool

	issued    []bool
	committed []bool

	recoveringFromMisprediction bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New constructs a Processor from cfg and options.
func New(cfg Config, opts ...Option) *Processor {
	p := &Processor{
		cfg:       cfg,
		regfile:   regfile.New(),
		stations:  rs.NewPools(cfg.NumAddStations, cfg.NumMulStations, cfg.NumMemStations),
		reorder:   rob.New(cfg.ROBSize),
		memory:    memory.New(),
		predictor: branchpred.NewPredictor(cfg.BTBSize, cfg.HistoryBits),
		spec:      speculation.NewManager(),
	}
	if cfg.EnableCache {
		p.cache = memcache.New(cfg.CacheModel, p.memory)
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	return p
}

// Memory exposes the simulator's data memory for preloading and inspection.
func (p *Processor) Memory() *memory.Memory { return p.memory }

// PresetRegister sets reg's initial architectural value before a run.
// For test fixtures and CLI initial-state loading; must be called
// before the first Step after Load.
func (p *Processor) PresetRegister(reg insts.Reg, value int64) {
	p.regfile.Preset(reg, value)
}

// LoadProgramText parses lines using cfg.Latencies (falling back to
// insts.DefaultLatencies for any op left unset) and loads the result.
func (p *Processor) LoadProgramText(lines []string) error {
	program, err := insts.ParseProgram(lines, p.cfg.Latencies)
	if err != nil {
		return err
	}
	p.Load(program)
	return nil
}

// Load installs a program, resetting all processor state (spec.md §6).
func (p *Processor) Load(program []insts.Instruction) {
	p.instructions = program
	p.pc = 0
	p.cycle = 0
	p.bubbleCycles = 0
	p.finished = false
	p.issued = make([]bool, len(program))
	p.committed = make([]bool, len(program))
	p.recoveringFromMisprediction = false

	p.regfile = regfile.New()
	p.stations = rs.NewPools(p.cfg.NumAddStations, p.cfg.NumMulStations, p.cfg.NumMemStations)
	p.reorder = rob.New(p.cfg.ROBSize)
	p.spec = speculation.NewManager()
	if p.cfg.EnableCache {
		p.cache = memcache.New(p.cfg.CacheModel, p.memory)
	}
}

func (p *Processor) log(msg string, fields ...zap.Field) {
	if p.logger != nil {
		p.logger.Debug(msg, fields...)
	}
}

// Finished reports whether the loaded program has fully committed, or
// the deadlock watchdog forced a stop.
func (p *Processor) Finished() bool {
	return p.finished
}

// Cycle returns the number of cycles executed so far.
func (p *Processor) Cycle() uint64 {
	return p.cycle
}

// Step executes one cycle: Issue, then Execute, then Commit, in that
// fixed order (spec.md §5). Returns false once the processor has
// finished (program fully committed, or deadlock watchdog tripped).
func (p *Processor) Step() (bool, error) {
	if p.finished {
		return false, nil
	}

	p.cycle++
	p.metrics.Cycle()

	issued, err := p.issueStage()
	if err != nil {
		return false, tomerrors.WrapCycle(err, p.cycle)
	}
	executed, err := p.executeStage()
	if err != nil {
		return false, tomerrors.WrapCycle(err, p.cycle)
	}
	committed := p.commitStage()

	if !issued && !executed && !committed {
		if p.isProgramFinished() {
			p.finished = true
			return false, nil
		}
		p.bubbleCycles++
		p.metrics.BubbleCycle()
		if p.bubbleCycles > p.cfg.DeadlockThreshold {
			p.finished = true
			return false, tomerrors.WrapCycle(tomerrors.ErrDeadlock, p.cycle)
		}
	} else {
		p.bubbleCycles = 0
	}

	p.metrics.ObservePredictor(p.predictor.Accuracy(), p.btbHitRate())

	p.finished = p.isProgramFinished()
	return !p.finished, nil
}

// btbHitRate derives the BTB hit fraction from the predictor's stats.
func (p *Processor) btbHitRate() float64 {
	stats := p.predictor.Stats()
	if stats.TotalPredictions == 0 {
		return 0
	}
	return float64(stats.BTBHits) / float64(stats.TotalPredictions)
}

// Run steps the processor until it finishes or an error occurs,
// capped at maxCycles as a hard backstop independent of the
// deadlock-threshold watchdog.
func (p *Processor) Run(maxCycles uint64) error {
	for p.cycle < maxCycles {
		more, err := p.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// isProgramFinished reports whether fetch has consumed the whole
// program and nothing remains in flight. Instructions on a correctly
// skipped or mispredicted-and-flushed path never issue and never
// commit, so completion can't be "every instruction committed" — it's
// "nothing left for Issue/Execute/Commit to do" (spec.md §9).
func (p *Processor) isProgramFinished() bool {
	if p.pc < len(p.instructions) {
		return false
	}
	if !p.reorder.IsEmpty() {
		return false
	}
	for _, s := range p.stations.All() {
		if s.Busy {
			return false
		}
	}
	return true
}

// issueStage attempts to issue up to cfg.MaxIssuePerCycle instructions
// in program order this cycle (spec.md §4.7 "Issue (at most IW
// instructions per cycle)"), stopping at the first PC that can't issue
// this cycle rather than skipping ahead to a later one.
func (p *Processor) issueStage() (bool, error) {
	issuedAny := false
	limit := p.cfg.MaxIssuePerCycle
	if limit <= 0 {
		limit = 1
	}
	for n := 0; n < limit; n++ {
		issued, err := p.issueOne()
		if err != nil {
			return issuedAny, err
		}
		if !issued {
			break
		}
		issuedAny = true
	}
	return issuedAny, nil
}

// issueOne attempts to issue exactly the instruction at the current
// PC, stalling if no reservation station or ROB slot is available
// (spec.md §4.5, §4.7).
func (p *Processor) issueOne() (bool, error) {
	if p.pc >= len(p.instructions) {
		return false, nil
	}
	pc := p.pc
	inst := p.instructions[pc]

	station := p.stations.GetAvailable(inst.Op)
	if station == nil {
		p.metrics.RSStall()
		return false, nil
	}
	if p.reorder.IsFull() {
		p.metrics.ROBStall()
		return false, nil
	}

	isSpeculative := p.spec.IsSpeculative()

	var oldPhys int
	hasRename := inst.HasDest && inst.Op != insts.OpST
	if hasRename {
		var err error
		oldPhys, err = p.regfile.Allocate(inst.Dest)
		if err != nil {
			return false, tomerrors.WrapPC(err, pc)
		}
	}

	entry := rob.Entry{
		Instruction: inst,
		Destination: inst.Dest,
		HasDest:     hasRename,
		OldPhys:     oldPhys,
		PC:          pc,
		Speculative: isSpeculative,
	}
	robIndex := p.reorder.AddEntry(entry)

	station.Busy = true
	station.Op = inst.Op
	station.Instruction = inst
	// +1: Issue and Execute both run within this Step(), and Execute
	// decrements before checking readiness, so a plain inst.Latency
	// here would let a ready-operand op fire in its own issue cycle.
	// spec.md §4.3/§5 require remaining_cycles = latency+1 so a
	// newly-issued op never fires this cycle.
	station.RemainingCycles = inst.Latency + 1
	station.ROBIndex = robIndex
	station.PC = pc
	station.Speculative = isSpeculative

	p.configureOperands(station, inst)

	if p.cache != nil && (inst.Op == insts.OpLD || inst.Op == insts.OpST) {
		var access memcache.AccessResult
		if inst.Op == insts.OpLD {
			access = p.cache.Read(station.A)
		} else {
			access = p.cache.Write(station.A)
		}
		station.RemainingCycles = int(access.Latency) + 1
	}

	if hasRename {
		p.regfile.SetProducer(inst.Dest, robIndex)
	}

	if isSpeculative {
		p.spec.AddSpeculativeInstruction(inst, pc, robIndex)
	}

	p.issued[pc] = true
	nextPC := pc + 1

	if inst.Op.IsBranch() {
		var pred *rs.Prediction
		if p.cfg.EnableSpeculation {
			bp := p.predictor.Predict(pc, inst.Op == insts.OpBEQ)
			target := pc + 1
			if bp.Taken {
				offset := 0
				if inst.HasImmediate {
					offset = int(inst.Immediate)
				}
				target = pc + 1 + offset
			}
			pred = &rs.Prediction{Taken: bp.Taken, Target: target}
			station.BranchPrediction = pred
			nextPC = p.spec.StartSpeculation(pc, target)
		}
	}

	p.pc = nextPC
	if p.pc > len(p.instructions) {
		p.pc = len(p.instructions)
	}
	return true, nil
}

// configureOperands captures ready operands from the register file or
// records the producer tag to wait on, per spec.md §4.3. LD/ST compute
// their effective address eagerly here, from the base register's
// current architectural value — a possibly-stale read if the base has
// a pending producer, by design, since the address never waits on Qj.
// ST additionally captures its value-to-store register into Vj/Qj, the
// same ready-or-wait capture used for arithmetic operands.
func (p *Processor) configureOperands(s *rs.Station, inst insts.Instruction) {
	// capture resolves an operand the way Issue reads register status:
	// ready architecturally, ready because its producer already
	// broadcast a result while waiting to commit (the ROB entry is
	// Ready even though the register's tag hasn't cleared yet), or
	// genuinely pending — in which case it waits for that producer's
	// eventual CDB broadcast by ROB index.
	capture := func(reg insts.Reg) (*int64, *int) {
		idx, ready := p.regfile.Tag(reg)
		if ready {
			v := p.regfile.Value(reg)
			return &v, nil
		}
		if entry, ok := p.reorder.Get(idx); ok && entry.Ready {
			v := entry.Value
			return &v, nil
		}
		i := idx
		return nil, &i
	}

	effectiveAddress := func() int64 {
		base := int64(0)
		if inst.HasSrc1 {
			base = p.regfile.Value(inst.Src1)
		}
		imm := int64(0)
		if inst.HasImmediate {
			imm = inst.Immediate
		}
		return base + imm
	}

	switch inst.Op {
	case insts.OpLD:
		s.A = effectiveAddress()

	case insts.OpST:
		s.A = effectiveAddress()
		if inst.HasDest {
			s.Vj, s.Qj = capture(inst.Dest)
		}

	default: // arithmetic and branches
		if inst.HasSrc1 {
			s.Vj, s.Qj = capture(inst.Src1)
		}
		if inst.HasSrc2 {
			s.Vk, s.Qk = capture(inst.Src2)
		}
	}
}

// executeStage advances every busy station's countdown, and completes
// any station whose operands are captured and latency has elapsed,
// broadcasting its result on the CDB (spec.md §4.4).
func (p *Processor) executeStage() (bool, error) {
	advanced := false
	for _, s := range p.stations.All() {
		if !s.Busy {
			continue
		}
		if entry, ok := p.reorder.Get(s.ROBIndex); ok && entry.State == rob.StateIssued {
			p.reorder.SetState(s.ROBIndex, rob.StateExecuting)
		}
		if s.Qj == nil && s.Qk == nil && s.RemainingCycles > 0 {
			s.RemainingCycles--
		}
		if s.Qj != nil || s.Qk != nil || s.RemainingCycles > 0 {
			continue
		}

		vj, vk := int64(0), int64(0)
		if s.Vj != nil {
			vj = *s.Vj
		}
		if s.Vk != nil {
			vk = *s.Vk
		}

		var a, effVj, effVk int64
		switch s.Op {
		case insts.OpLD:
			a = s.A
			p.reorder.RecordMemAddr(s.ROBIndex, a)
		case insts.OpST:
			a = s.A
			effVj = vj // the value to store, captured into Vj at Issue
			p.reorder.RecordMemAddr(s.ROBIndex, a)
		default:
			effVj, effVk = vj, vk
		}

		result, err := alu.Compute(p.memory, s.Op, effVj, effVk, a)
		if err != nil {
			return advanced, tomerrors.WrapPC(err, s.PC)
		}

		if s.Op.IsBranch() {
			p.resolveBranch(s, result)
		}

		p.stations.Broadcast(s.ROBIndex, result)
		p.reorder.SetResult(s.ROBIndex, result)
		advanced = true
		p.stations.Clear(s)
	}
	return advanced, nil
}

// resolveBranch checks a resolved branch's actual outcome against its
// prediction, updates the predictor and speculation manager, and
// triggers misprediction recovery when they disagree (spec.md §4.6, §4.7).
func (p *Processor) resolveBranch(s *rs.Station, result int64) {
	if !p.cfg.EnableSpeculation || s.BranchPrediction == nil {
		return
	}

	actualTaken := result == 1
	actualTarget := s.PC + 1
	if actualTaken {
		offset := 0
		if s.Instruction.HasImmediate {
			offset = int(s.Instruction.Immediate)
		}
		actualTarget = s.PC + 1 + offset
	}

	p.predictor.Update(s.PC, actualTaken, actualTarget, branchpred.Prediction{
		Taken:  s.BranchPrediction.Taken,
		Target: s.BranchPrediction.Target,
	})

	p.reorder.RecordBranchOutcome(s.ROBIndex, s.BranchPrediction.Taken, actualTaken)

	mispredicted := p.spec.ResolveBranch(s.PC, actualTaken, actualTarget, s.BranchPrediction.Taken, s.BranchPrediction.Target)
	if mispredicted {
		p.metrics.Misprediction()
		p.recoverFromMisprediction(s.PC, actualTarget)
	}
}

// recoverFromMisprediction flushes every instruction issued after
// branchPC from the stations, ROB, and speculation manager, rewinds
// the rename map, and refetches at correctTarget (spec.md §4.7 Recovery).
func (p *Processor) recoverFromMisprediction(branchPC, correctTarget int) {
	flushedROBIndices := p.spec.FlushSpeculativeInstructions(branchPC)

	p.stations.FlushByPCAfter(branchPC)

	p.log("misprediction recovery",
		zap.Int("branchPC", branchPC),
		zap.Int("correctTarget", correctTarget),
		zap.Int("flushed", len(flushedROBIndices)))

	for pc := branchPC + 1; pc < len(p.instructions); pc++ {
		if p.issued[pc] {
			p.issued[pc] = false
		}
	}

	// Rewind renames latest-issued-first: the last entry restored wins,
	// and must be the earliest flushed rename so the map ends up at the
	// physical register mapped before any of the flushed instructions ran.
	entries := p.reorder.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		rec := entries[i]
		if rec.Entry.PC > branchPC && rec.Entry.HasDest {
			replaced := p.regfile.Restore(rec.Entry.Destination, rec.Entry.OldPhys)
			p.regfile.Free(replaced)
		}
	}
	p.reorder.CleanupFlushed(p.robIndexOf(branchPC))

	p.pc = correctTarget
	if p.pc > len(p.instructions) {
		p.pc = len(p.instructions)
	}
	p.recoveringFromMisprediction = true
}

// robIndexOf finds the ROB index currently holding the entry issued at pc.
func (p *Processor) robIndexOf(pc int) int {
	for _, rec := range p.reorder.Entries() {
		if rec.Entry.PC == pc {
			return rec.Index
		}
	}
	return 0
}

// commitStage retires the ROB head once ready, in program order
// (spec.md §4.5).
func (p *Processor) commitStage() bool {
	if p.reorder.IsEmpty() || !p.reorder.HeadReady() {
		return false
	}
	headIndex, _ := p.reorder.Head()
	entry := p.reorder.Commit()

	if entry.HasDest {
		p.regfile.CommitWrite(entry.Destination, entry.Value, headIndex)
		p.regfile.Free(entry.OldPhys)
	}

	p.committed[entry.PC] = true
	p.metrics.Retire()
	p.recoveringFromMisprediction = false
	return true
}

// State is a read-only snapshot for observation and tests.
type State struct {
	Cycle      uint64
	PC         int
	Finished   bool
	Recovering bool
}

// State returns a snapshot of processor state.
func (p *Processor) State() State {
	return State{
		Cycle:      p.cycle,
		PC:         p.pc,
		Finished:   p.finished,
		Recovering: p.recoveringFromMisprediction,
	}
}

// RegisterValue returns the committed architectural value of reg.
func (p *Processor) RegisterValue(reg insts.Reg) int64 {
	return p.regfile.Value(reg)
}

// Metrics returns a snapshot of run statistics.
func (p *Processor) Metrics() metrics.Snapshot {
	return p.metrics.Snapshot()
}

// CacheStats returns the L1 cache's access statistics and true if the
// cache model is enabled; the zero Statistics and false otherwise.
func (p *Processor) CacheStats() (memcache.Statistics, bool) {
	if p.cache == nil {
		return memcache.Statistics{}, false
	}
	return p.cache.Stats(), true
}

// InstructionsCommitted counts how many static instructions in the
// loaded program have committed at least once. Instructions on a
// skipped or flushed path never contribute, so this can be less than
// len(program) even after Finished reports true.
func (p *Processor) InstructionsCommitted() int {
	n := 0
	for _, c := range p.committed {
		if c {
			n++
		}
	}
	return n
}
