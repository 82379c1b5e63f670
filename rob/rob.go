// Package rob implements the reorder buffer: a circular in-order queue
// of in-flight instructions that enforces in-order commit regardless
// of out-of-order completion (spec.md §4.5).
package rob

import (
	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/tomerrors"
)

// State is the lifecycle state of a ROB entry.
type State int

const (
	StateIssued State = iota
	StateExecuting
	StateWriteResult
	StateCommit
)

func (s State) String() string {
	switch s {
	case StateIssued:
		return "Issued"
	case StateExecuting:
		return "Executing"
	case StateWriteResult:
		return "WriteResult"
	case StateCommit:
		return "Commit"
	default:
		return "Unknown"
	}
}

// Entry is a single in-flight instruction record (spec.md §3).
type Entry struct {
	Instruction insts.Instruction
	State       State

	Destination insts.Reg
	HasDest     bool
	OldPhys     int // physical register Destination previously mapped to, for flush rewind

	Value int64
	Ready bool

	PC int

	Speculative        bool
	BranchMispredicted bool
	PredictedTaken     bool
	ActualTaken        bool

	MemAddr    int64
	HasMemAddr bool
}

// ROB is a circular buffer of capacity size. head is the oldest
// not-yet-committed entry; tail is the next free slot.
type ROB struct {
	entries []Entry
	valid   []bool
	head    int
	tail    int
	count   int
	size    int
}

// New creates an empty ROB with the given capacity.
func New(size int) *ROB {
	return &ROB{
		entries: make([]Entry, size),
		valid:   make([]bool, size),
		size:    size,
	}
}

// IsFull reports whether the ROB has no free slot (spec.md §4.5: Issue
// must stall rather than overflow).
func (r *ROB) IsFull() bool {
	return r.count == r.size
}

// IsEmpty reports whether the ROB holds no in-flight instructions.
func (r *ROB) IsEmpty() bool {
	return r.count == 0
}

// AddEntry inserts e at the tail, returning its ROB index (a slot
// number, stable until that slot is next reused). Caller must check
// IsFull first; AddEntry panics on overflow since Issue's stall check
// makes that unreachable in correct use.
func (r *ROB) AddEntry(e Entry) int {
	if r.IsFull() {
		panic(tomerrors.ErrROBOverflow)
	}
	idx := r.tail
	e.State = StateIssued
	r.entries[idx] = e
	r.valid[idx] = true
	r.tail = (r.tail + 1) % r.size
	r.count++
	return idx
}

// Get returns a copy of the entry at idx.
func (r *ROB) Get(idx int) (Entry, bool) {
	if !r.valid[idx] {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// SetState transitions the entry at idx's lifecycle state.
func (r *ROB) SetState(idx int, s State) {
	r.entries[idx].State = s
}

// SetResult records a computed value as ready for commit, and marks
// WriteResult state.
func (r *ROB) SetResult(idx int, value int64) {
	r.entries[idx].Value = value
	r.entries[idx].Ready = true
	r.entries[idx].State = StateWriteResult
}

// RecordMemAddr annotates a LD/ST entry with its resolved effective
// address, for trace/debug output.
func (r *ROB) RecordMemAddr(idx int, addr int64) {
	r.entries[idx].MemAddr = addr
	r.entries[idx].HasMemAddr = true
}

// RecordBranchOutcome annotates a resolved branch's entry with its
// predicted and actual directions, for trace/debug output (the
// CDB value still carries the 0/1 taken flag, recorded as the entry's
// Value via SetResult; a branch has no destination register to write).
func (r *ROB) RecordBranchOutcome(idx int, predictedTaken, actualTaken bool) {
	r.entries[idx].PredictedTaken = predictedTaken
	r.entries[idx].ActualTaken = actualTaken
	r.entries[idx].BranchMispredicted = predictedTaken != actualTaken
}

// Head returns the oldest entry's index and whether the ROB is non-empty.
func (r *ROB) Head() (idx int, ok bool) {
	if r.IsEmpty() {
		return 0, false
	}
	return r.head, true
}

// HeadReady reports whether the head entry is ready to commit this cycle.
func (r *ROB) HeadReady() bool {
	if r.IsEmpty() {
		return false
	}
	return r.entries[r.head].Ready
}

// Commit retires the head entry, advancing head and freeing its slot.
// Caller must have already checked HeadReady.
func (r *ROB) Commit() Entry {
	e := r.entries[r.head]
	e.State = StateCommit
	r.valid[r.head] = false
	r.head = (r.head + 1) % r.size
	r.count--
	return e
}

// CleanupFlushed invalidates every entry strictly after keepIndex in
// program order (i.e. everything issued after a mispredicted branch),
// walking backward from tail so the ROB tail rewinds correctly
// (spec.md §4.7 Recovery step 2). keepIndex itself — the branch's own
// entry — is retained so it can still commit normally.
func (r *ROB) CleanupFlushed(keepIndex int) {
	for r.count > 0 {
		last := (r.tail - 1 + r.size) % r.size
		if last == keepIndex {
			break
		}
		r.tail = last
		r.valid[last] = false
		r.count--
	}
	// tail now points one past keepIndex.
	r.tail = (keepIndex + 1) % r.size
}

// Entries returns every currently valid entry with its ROB index, in
// program order starting from head, for observation/testing.
func (r *ROB) Entries() []struct {
	Index int
	Entry Entry
} {
	out := make([]struct {
		Index int
		Entry Entry
	}, 0, r.count)
	i := r.head
	for n := 0; n < r.count; n++ {
		out = append(out, struct {
			Index int
			Entry Entry
		}{i, r.entries[i]})
		i = (i + 1) % r.size
	}
	return out
}

// Count returns the number of in-flight entries.
func (r *ROB) Count() int { return r.count }

// Size returns the ROB's fixed capacity.
func (r *ROB) Size() int { return r.size }
