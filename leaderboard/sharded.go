package leaderboard

import (
	"container/heap"

	"cachecompare/core"
)

// Sharded partitions users across independent skip lists. Writes lock one
// shard; TopN takes each shard's top n and merges them.
type Sharded struct {
	shards []*SkipList
	mask   uint64
}

// NewSharded returns a board with shards rounded up to a power of two.
func NewSharded(shards int) *Sharded {
	n := 1
	for n < shards {
		n <<= 1
	}
	b := &Sharded{shards: make([]*SkipList, n), mask: uint64(n - 1)}
	for i := range b.shards {
		b.shards[i] = NewSkipList()
	}
	return b
}

func (b *Sharded) shardFor(user core.UserID) *SkipList {
	// Fibonacci hashing spreads sequential ids.
	h := uint64(user) * 0x9E3779B97F4A7C15
	return b.shards[(h>>32)&b.mask]
}

func (b *Sharded) Update(user core.UserID, score int64) { b.shardFor(user).Update(user, score) }

func (b *Sharded) Remove(user core.UserID) { b.shardFor(user).Remove(user) }

func (b *Sharded) Get(user core.UserID) (Entry, bool) { return b.shardFor(user).Get(user) }

func (b *Sharded) Len() int {
	total := 0
	for _, s := range b.shards {
		total += s.Len()
	}
	return total
}

// TopN merges the per-shard prefixes. A user lives in exactly one shard, so
// the result never holds duplicates.
func (b *Sharded) TopN(n int) []Entry {
	if n <= 0 {
		return nil
	}
	if len(b.shards) == 1 {
		return b.shards[0].TopN(n)
	}
	h := make(cursorHeap, 0, len(b.shards))
	for _, s := range b.shards {
		if top := s.TopN(n); len(top) > 0 {
			h = append(h, &cursor{entries: top})
		}
	}
	heap.Init(&h)
	out := make([]Entry, 0, n)
	for len(out) < n && h.Len() > 0 {
		c := h[0]
		out = append(out, c.entries[c.pos])
		c.pos++
		if c.pos == len(c.entries) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

type cursor struct {
	entries []Entry
	pos     int
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	return Less(h[i].entries[h[i].pos], h[j].entries[h[j].pos])
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

var _ Board = (*Sharded)(nil)
