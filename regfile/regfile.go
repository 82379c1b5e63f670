// Package regfile provides the logical register file and the physical
// rename back-end: architectural values, per-logical producer tags,
// and the logical→physical rename map with its free list.
package regfile

import (
	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/tomerrors"
)

const numLogicalPerClass = 32

// logicalIndex maps a Reg to a flat slot: R0..R31 then F0..F31.
func logicalIndex(r insts.Reg) int {
	base := int(r.Index)
	if r.Class == insts.ClassFloat {
		base += numLogicalPerClass
	}
	return base
}

const numLogical = numLogicalPerClass * 2

// readyTag is the sentinel producer tag meaning "ready" (spec.md §4.2).
const readyTag = -1

// RegisterFile holds committed architectural values and, per logical
// register, the producer tag of its pending writer (a ROB index, or
// "ready"). Only Commit may change a value; Issue may only change the
// producer tag (spec.md §3 invariant).
type RegisterFile struct {
	values []int64
	tags   []int32

	rename renameMap
}

// New creates a register file with all registers ready and zero-valued.
func New() *RegisterFile {
	rf := &RegisterFile{
		values: make([]int64, numLogical),
		tags:   make([]int32, numLogical),
	}
	for i := range rf.tags {
		rf.tags[i] = readyTag
	}
	rf.rename = newRenameMap(numLogical)
	return rf
}

// Value returns the committed architectural value of reg.
func (rf *RegisterFile) Value(reg insts.Reg) int64 {
	return rf.values[logicalIndex(reg)]
}

// Tag returns the producer ROB index for reg, and whether it is ready
// (no pending producer).
func (rf *RegisterFile) Tag(reg insts.Reg) (robIndex int, ready bool) {
	t := rf.tags[logicalIndex(reg)]
	if t == readyTag {
		return 0, true
	}
	return int(t), false
}

// SetProducer records that robIndex will next produce reg's value.
// Called at Issue; overwrites any prior tag — that writer's output
// will be discarded at commit, which is correct since it has been
// renamed (spec.md §4.2).
func (rf *RegisterFile) SetProducer(reg insts.Reg, robIndex int) {
	rf.tags[logicalIndex(reg)] = int32(robIndex)
}

// CommitWrite writes value to reg, clearing its producer tag only if
// it still equals committingROBIndex — preserving later-writer
// dominance (spec.md §4.2).
func (rf *RegisterFile) CommitWrite(reg insts.Reg, value int64, committingROBIndex int) {
	idx := logicalIndex(reg)
	rf.values[idx] = value
	if rf.tags[idx] == int32(committingROBIndex) {
		rf.tags[idx] = readyTag
	}
}

// Preset sets reg's architectural value directly, bypassing the
// producer-tag protocol. For test fixtures and CLI initial-state
// loading only — never called once a program is running.
func (rf *RegisterFile) Preset(reg insts.Reg, value int64) {
	rf.values[logicalIndex(reg)] = value
}

// Allocate assigns a fresh physical register to logical, returning the
// physical it previously mapped to (to be saved for later Free on
// commit, or restored on flush). Returns ErrNoFreePhysicalRegister if
// the free list is exhausted.
func (rf *RegisterFile) Allocate(reg insts.Reg) (oldPhys int, err error) {
	return rf.rename.allocate(logicalIndex(reg))
}

// Free returns a physical register to the free list.
func (rf *RegisterFile) Free(phys int) {
	rf.rename.free(phys)
}

// Restore rewinds the rename map for reg back to phys, without
// touching the free list (the caller is responsible for freeing the
// physical that was mapped before the restore, per the flush-rewind
// protocol in spec.md §9).
func (rf *RegisterFile) Restore(reg insts.Reg, phys int) (currentlyMapped int) {
	return rf.rename.restore(logicalIndex(reg), phys)
}

// CurrentPhysical returns the physical register currently mapped to reg.
func (rf *RegisterFile) CurrentPhysical(reg insts.Reg) int {
	return rf.rename.current(logicalIndex(reg))
}

// renameMap is the logical→physical mapping plus its free list, sized
// 2× the logical register count per spec.md §3.
type renameMap struct {
	mapping  []int
	freeList []int
}

func newRenameMap(nLogical int) renameMap {
	m := renameMap{
		mapping: make([]int, nLogical),
	}
	for i := range m.mapping {
		m.mapping[i] = i // identity rename at reset
	}
	// Physicals [nLogical, 2*nLogical) start free.
	for p := nLogical; p < 2*nLogical; p++ {
		m.freeList = append(m.freeList, p)
	}
	return m
}

func (m *renameMap) allocate(logical int) (oldPhys int, err error) {
	if len(m.freeList) == 0 {
		return 0, tomerrors.ErrNoFreePhysicalRegister
	}
	newPhys := m.freeList[0]
	m.freeList = m.freeList[1:]
	oldPhys = m.mapping[logical]
	m.mapping[logical] = newPhys
	return oldPhys, nil
}

func (m *renameMap) free(phys int) {
	m.freeList = append(m.freeList, phys)
}

func (m *renameMap) restore(logical int, phys int) (currentlyMapped int) {
	currentlyMapped = m.mapping[logical]
	m.mapping[logical] = phys
	return currentlyMapped
}

func (m *renameMap) current(logical int) int {
	return m.mapping[logical]
}
