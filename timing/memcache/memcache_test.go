package memcache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/archsim/tomasulo/memory"
	"github.com/archsim/tomasulo/timing/memcache"
)

var _ = Describe("Cache", func() {
	var (
		mem *memory.Memory
		c   *memcache.Cache
	)

	BeforeEach(func() {
		mem = memory.New()
		c = memcache.New(memcache.Config{Sets: 4, Associativity: 2, HitLatency: 2, MissLatency: 10}, mem)
	})

	It("misses on the first read of an address", func() {
		res := c.Read(100)
		Expect(res.Hit).To(BeFalse())
		Expect(res.Latency).To(Equal(uint64(10)))
	})

	It("hits on a repeated read of the same address", func() {
		c.Read(100)
		res := c.Read(100)
		Expect(res.Hit).To(BeTrue())
		Expect(res.Latency).To(Equal(uint64(2)))
	})

	It("counts evictions once all ways of a set are full", func() {
		// Force enough distinct addresses into one set to evict.
		for i := 0; i < 10; i++ {
			c.Read(int64(i * 4)) // same set if addr mod sets is equal; block size 1 word
		}
		stats := c.Stats()
		Expect(stats.Misses).To(BeNumerically(">", 0))
		Expect(stats.Evictions).To(BeNumerically(">", 0))
	})

	It("never changes the underlying memory contents", func() {
		mem.Set(5, 77)
		c.Read(5)
		c.Write(5)
		Expect(mem.Get(5)).To(Equal(int64(77)))
	})
})
