// Package memory provides the simulator's word-addressable data
// store: an address→word map, as described in spec.md §1 ("the
// simulated data memory beyond the abstract address→word map it must
// expose").
package memory

// Memory is a word-addressable integer store. Uninitialized addresses
// read as 0 (spec.md §4.4).
type Memory struct {
	words map[int64]int64
}

// New creates an empty memory.
func New() *Memory {
	return &Memory{words: make(map[int64]int64)}
}

// Get reads the word at addr, or 0 if never written.
func (m *Memory) Get(addr int64) int64 {
	return m.words[addr]
}

// Set writes value to addr.
func (m *Memory) Set(addr int64, value int64) {
	m.words[addr] = value
}

// Preload seeds a set of addresses, used by test scenarios and CLI
// fixtures that need known-nonzero memory contents up front.
func (m *Memory) Preload(values map[int64]int64) {
	for addr, v := range values {
		m.words[addr] = v
	}
}

// Snapshot returns a copy of all currently-set words, for observation.
func (m *Memory) Snapshot() map[int64]int64 {
	out := make(map[int64]int64, len(m.words))
	for k, v := range m.words {
		out[k] = v
	}
	return out
}
