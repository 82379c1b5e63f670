// Package speculation tracks in-flight speculative instructions issued
// past an unresolved branch, supporting nested speculation via an
// explicit branch stack and driving post-misprediction flush
// (spec.md §4.7).
package speculation

import "github.com/archsim/tomasulo/insts"

// Instruction records one instruction issued while speculation was active.
type Instruction struct {
	Instruction      insts.Instruction
	PC               int
	ROBIndex         int
	BranchPC         int // the branch that was speculated past
	SpeculationLevel int
}

// Stats mirrors the bookkeeping the original speculation manager keeps.
type Stats struct {
	SpeculativeInstructionsIssued  int
	SpeculativeInstructionsFlushed int
	MispredictionRecoveries        int
	MaxSpeculationLevel            int
}

// Manager tracks nested speculative regions via a stack of
// in-flight branch PCs, rather than a single "are we speculating"
// flag, so speculation past a speculatively-issued branch is tracked
// correctly.
type Manager struct {
	instructions []Instruction
	branchStack  []int
	level        int
	recoveryPC   *int

	stats Stats
}

// NewManager creates an empty (non-speculative) manager.
func NewManager() *Manager {
	return &Manager{}
}

// StartSpeculation pushes branchPC onto the branch stack, entering (or
// deepening) speculation, and returns predictedTarget unchanged — the
// caller continues fetching from there.
func (m *Manager) StartSpeculation(branchPC, predictedTarget int) int {
	m.level++
	m.branchStack = append(m.branchStack, branchPC)
	if m.level > m.stats.MaxSpeculationLevel {
		m.stats.MaxSpeculationLevel = m.level
	}
	return predictedTarget
}

// AddSpeculativeInstruction records inst as issued under the current
// speculation level, tagged with the innermost open branch. Returns
// false (no-op) if speculation is not currently active.
func (m *Manager) AddSpeculativeInstruction(inst insts.Instruction, pc, robIndex int) bool {
	if m.level == 0 {
		return false
	}
	branchPC := -1
	if n := len(m.branchStack); n > 0 {
		branchPC = m.branchStack[n-1]
	}
	m.instructions = append(m.instructions, Instruction{
		Instruction:      inst,
		PC:               pc,
		ROBIndex:         robIndex,
		BranchPC:         branchPC,
		SpeculationLevel: m.level,
	})
	m.stats.SpeculativeInstructionsIssued++
	return true
}

// ResolveBranch checks a resolved branch's outcome against its
// prediction. It reports whether the branch was mispredicted; on a
// misprediction it records actualTarget as the recovery PC. On a
// correct prediction it removes only branchPC's own frame from the
// branch stack, wherever it sits, leaving any inner frames open.
func (m *Manager) ResolveBranch(branchPC int, actualTaken bool, actualTarget int, predictedTaken bool, predictedTarget int) bool {
	mispredicted := actualTaken != predictedTaken || (actualTaken && actualTarget != predictedTarget)

	if mispredicted {
		m.stats.MispredictionRecoveries++
		rp := actualTarget
		m.recoveryPC = &rp
		return true
	}

	for i := len(m.branchStack) - 1; i >= 0; i-- {
		if m.branchStack[i] == branchPC {
			m.branchStack = append(m.branchStack[:i], m.branchStack[i+1:]...)
			m.level--
			break
		}
	}
	return false
}

// popThrough truncates the branch stack down to and including branchPC
// (spec.md §4.7 Recovery step 5), wherever it sits on the stack — not
// just when it happens to be the top entry. A mispredicted outer
// branch invalidates every still-open inner speculation above it, so
// all of those frames must be discarded too, or a later instruction
// would stay mismarked as speculative under a stale, deeper level.
func (m *Manager) popThrough(branchPC int) {
	idx := -1
	for i := len(m.branchStack) - 1; i >= 0; i-- {
		if m.branchStack[i] == branchPC {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	m.level -= len(m.branchStack) - idx
	if m.level < 0 {
		m.level = 0
	}
	m.branchStack = m.branchStack[:idx]
}

// FlushSpeculativeInstructions discards every tracked instruction
// issued strictly after branchPC (everything speculated past it) and
// closes branchPC's speculation region, returning the flushed
// instructions' ROB indices for the caller to invalidate.
func (m *Manager) FlushSpeculativeInstructions(branchPC int) []int {
	var flushedROBIndices []int
	kept := m.instructions[:0]
	for _, inst := range m.instructions {
		if inst.PC > branchPC {
			flushedROBIndices = append(flushedROBIndices, inst.ROBIndex)
			m.stats.SpeculativeInstructionsFlushed++
			continue
		}
		kept = append(kept, inst)
	}
	m.instructions = kept

	m.popThrough(branchPC)
	return flushedROBIndices
}

// RecoveryPC returns and clears the pending misprediction-recovery
// fetch target, or nil if none is pending.
func (m *Manager) RecoveryPC() *int {
	pc := m.recoveryPC
	m.recoveryPC = nil
	return pc
}

// IsSpeculative reports whether any speculative region is currently open.
func (m *Manager) IsSpeculative() bool {
	return m.level > 0
}

// Level returns the current nested speculation depth.
func (m *Manager) Level() int {
	return m.level
}

// Stats returns a snapshot of speculation statistics.
func (m *Manager) Stats() Stats {
	return m.stats
}
