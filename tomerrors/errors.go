// Package tomerrors defines the sentinel error kinds surfaced by the
// core (spec.md §7) and the wrapping convention used to attach
// originating context (cycle, PC) to them.
//
// Sentinels are wrapped with github.com/pkg/errors at the point of
// origin so %+v formatting carries a stack trace during development,
// while errors.Is still matches the sentinel for programmatic
// handling — the same wrapping idiom erigontech/erigon uses throughout
// its codebase instead of bare fmt.Errorf.
package tomerrors

import "github.com/pkg/errors"

// Sentinel error kinds (spec.md §7).
var (
	// ErrDivideByZero is raised by Execute when a DIV's divisor is zero.
	ErrDivideByZero = errors.New("divide by zero")

	// ErrROBOverflow must never escape the scheduler: Issue checks
	// IsFull() and stalls instead. Kept for internal-invariant use.
	ErrROBOverflow = errors.New("reorder buffer overflow")

	// ErrNoFreePhysicalRegister is raised if rename allocation is
	// attempted with an empty free list; indicates misconfiguration.
	ErrNoFreePhysicalRegister = errors.New("no free physical register")

	// ErrDeadlock is surfaced after the configured bubble-cycle threshold.
	ErrDeadlock = errors.New("deadlock: no progress for too many cycles")
)

// WrapCycle annotates err with the cycle number it occurred on.
func WrapCycle(err error, cycle uint64) error {
	return errors.Wrapf(err, "cycle %d", cycle)
}

// WrapPC annotates err with the source PC of the offending instruction.
func WrapPC(err error, pc int) error {
	return errors.Wrapf(err, "pc %d", pc)
}
