// Package memcache provides an optional L1 data-cache latency
// annotation layer for LD/ST (SPEC_FULL.md §6.4). It never changes a
// load or store's result — alu.Compute still reads and writes through
// memory.Memory directly — it only reports how many cycles that
// access should cost, so the processor can charge L1HitLatency or
// L1MissLatency instead of the flat LoadLatency/StoreLatency when the
// cache is enabled. Kept strictly synchronous: Read and Write never
// block and never call back into the processor.
package memcache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/archsim/tomasulo/memory"
)

// Config holds L1 cache geometry and hit/miss latencies.
type Config struct {
	Sets          int
	Associativity int
	HitLatency    uint64
	MissLatency   uint64
}

// DefaultConfig returns a small L1 sized for simulated programs, not
// for realistic capacity modeling.
func DefaultConfig() Config {
	return Config{
		Sets:          64,
		Associativity: 4,
		HitLatency:    2,
		MissLatency:   10,
	}
}

// AccessResult reports the latency to charge for one LD/ST and whether
// it was a hit, for statistics only.
type AccessResult struct {
	Hit     bool
	Latency uint64
}

// Cache annotates LD/ST latency using an Akita cache directory for
// tag/LRU-state tracking, one word per cache block (this simulator's
// memory is word-addressable, unlike the byte-addressable backing
// store a general cache model tracks).
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	backing   *memory.Memory

	stats Statistics
}

// Statistics holds cache access counters.
type Statistics struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New creates a Cache annotating accesses to backing.
func New(config Config, backing *memory.Memory) *Cache {
	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Associativity,
			1, // one word per block
			akitacache.NewLRUVictimFinder(),
		),
		backing: backing,
	}
}

// Read annotates a load from addr. The actual value still comes from
// the caller's direct memory.Get; Read only reports hit/latency.
func (c *Cache) Read(addr int64) AccessResult {
	c.stats.Reads++
	block := c.directory.Lookup(0, uint64(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}
	c.stats.Misses++
	c.fill(addr)
	return AccessResult{Hit: false, Latency: c.config.MissLatency}
}

// Write annotates a store to addr (write-allocate, write-through: the
// actual write still goes through memory.Memory.Set directly).
func (c *Cache) Write(addr int64) AccessResult {
	c.stats.Writes++
	block := c.directory.Lookup(0, uint64(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}
	c.stats.Misses++
	c.fill(addr)
	return AccessResult{Hit: false, Latency: c.config.MissLatency}
}

func (c *Cache) fill(addr int64) {
	victim := c.directory.FindVictim(uint64(addr))
	if victim == nil {
		return
	}
	if victim.IsValid {
		c.stats.Evictions++
	}
	victim.Tag = uint64(addr)
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)
}

// Stats returns a snapshot of cache access statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// Reset invalidates the whole cache and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
