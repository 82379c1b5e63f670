// Package rs implements the reservation stations: per-functional-unit
// issue slots holding captured operands or producer tags, operand
// capture via result-bus snoop, and flush-by-PC (spec.md §4.3).
package rs

import "github.com/archsim/tomasulo/insts"

// Prediction is the subset of a branch prediction a station needs to
// retain for later verification against the resolved outcome. It
// mirrors branchpred.Prediction without importing that package, to
// keep rs free of a dependency on branch-predictor internals.
type Prediction struct {
	Taken  bool
	Target int
}

// Station is a single reservation-station entry (spec.md §3).
type Station struct {
	Name string
	Busy bool

	Op          insts.Op
	Instruction insts.Instruction

	Vj, Vk *int64
	Qj, Qk *int // producer ROB indices; nil means "ready"

	// A is LD/ST's effective address, computed eagerly at Issue from
	// the base register's current architectural value (spec.md §4.3:
	// "A = value(base) + immediate eagerly at Issue"), not re-derived
	// at Execute.
	A int64

	RemainingCycles int
	ROBIndex        int
	PC              int

	Speculative      bool
	BranchPrediction *Prediction
}

func (s *Station) clear() {
	s.Busy = false
	s.Op = 0
	s.Instruction = insts.Instruction{}
	s.Vj, s.Vk = nil, nil
	s.Qj, s.Qk = nil, nil
	s.A = 0
	s.RemainingCycles = 0
	s.ROBIndex = 0
	s.PC = 0
	s.Speculative = false
	s.BranchPrediction = nil
}

// Ready reports whether the station's operands are fully captured and
// its latency has elapsed.
func (s *Station) Ready() bool {
	return s.Busy && s.Qj == nil && s.Qk == nil && s.RemainingCycles == 0
}

// pool groups stations serving one op class.
type pool struct {
	stations []*Station
}

func newPool(prefix string, n int) pool {
	p := pool{stations: make([]*Station, n)}
	for i := range p.stations {
		p.stations[i] = &Station{Name: nameFor(prefix, i)}
	}
	return p
}

func nameFor(prefix string, i int) string {
	return prefix + itoa(i)
}

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

func (p pool) firstFree() *Station {
	for _, s := range p.stations {
		if !s.Busy {
			return s
		}
	}
	return nil
}

// Pools holds the three grouped reservation-station pools (spec.md §4.3):
// Add/Sub/BEQ/BNE → add pool; Mul/Div → mul pool; LD/ST → mem pool.
type Pools struct {
	add pool
	mul pool
	mem pool
}

// NewPools creates pools sized nAdd, nMul, nMem.
func NewPools(nAdd, nMul, nMem int) *Pools {
	return &Pools{
		add: newPool("Add", nAdd),
		mul: newPool("Mul", nMul),
		mem: newPool("Mem", nMem),
	}
}

// GetAvailable returns the first non-busy station in the pool serving
// op, or nil if none is free.
func (p *Pools) GetAvailable(op insts.Op) *Station {
	switch op {
	case insts.OpADD, insts.OpSUB, insts.OpBEQ, insts.OpBNE:
		return p.add.firstFree()
	case insts.OpMUL, insts.OpDIV:
		return p.mul.firstFree()
	case insts.OpLD, insts.OpST:
		return p.mem.firstFree()
	default:
		return nil
	}
}

// All returns every station across all pools, for broadcast/flush/observation.
func (p *Pools) All() []*Station {
	out := make([]*Station, 0, len(p.add.stations)+len(p.mul.stations)+len(p.mem.stations))
	out = append(out, p.add.stations...)
	out = append(out, p.mul.stations...)
	out = append(out, p.mem.stations...)
	return out
}

// Broadcast is the CDB: every station whose Qj/Qk names robIndex
// captures value and clears that tag. The tag is the ROB index, not
// the station name — this decouples forwarding from RS reuse
// (spec.md §4.3).
func (p *Pools) Broadcast(robIndex int, value int64) {
	for _, s := range p.All() {
		if s.Qj != nil && *s.Qj == robIndex {
			v := value
			s.Vj = &v
			s.Qj = nil
		}
		if s.Qk != nil && *s.Qk == robIndex {
			v := value
			s.Vk = &v
			s.Qk = nil
		}
	}
}

// Clear releases a station back to the free pool.
func (p *Pools) Clear(s *Station) {
	s.clear()
}

// FlushByPCAfter releases every busy, speculative station whose PC is
// strictly after branchPC (spec.md §4.3, §4.7 Recovery step 3).
func (p *Pools) FlushByPCAfter(branchPC int) {
	for _, s := range p.All() {
		if s.Busy && s.Speculative && s.PC > branchPC {
			p.Clear(s)
		}
	}
}
