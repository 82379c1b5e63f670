// Package alu implements the per-op Execute semantics (spec.md §4.4):
// pure functions from captured operands to a result, with no access
// to station or ROB state beyond what is passed in.
package alu

import (
	"github.com/archsim/tomasulo/insts"
	"github.com/archsim/tomasulo/memory"
	"github.com/archsim/tomasulo/tomerrors"
)

// Compute executes op given captured Vj, Vk, and effective address A,
// returning the result to broadcast and record in the ROB. LD reads
// from mem; ST writes to mem (the one place Execute has a side
// effect, per the documented memory-ordering simplification in
// spec.md §4.5/§9: stores write memory at Execute, not Commit).
func Compute(mem *memory.Memory, op insts.Op, vj, vk, a int64) (int64, error) {
	switch op {
	case insts.OpADD:
		return vj + vk, nil
	case insts.OpSUB:
		return vj - vk, nil
	case insts.OpMUL:
		return vj * vk, nil
	case insts.OpDIV:
		if vk == 0 {
			return 0, tomerrors.ErrDivideByZero
		}
		return floorDiv(vj, vk), nil
	case insts.OpLD:
		return mem.Get(a), nil
	case insts.OpST:
		mem.Set(a, vj)
		return vj, nil
	case insts.OpBEQ:
		if vj == vk {
			return 1, nil
		}
		return 0, nil
	case insts.OpBNE:
		if vj != vk {
			return 1, nil
		}
		return 0, nil
	default:
		panic("alu: unknown op")
	}
}

// floorDiv implements integer floor division (spec.md §4.4), which
// differs from Go's truncating "/" for mixed-sign operands.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
