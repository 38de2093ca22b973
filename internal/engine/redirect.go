package engine

import "sync"

// maxRedirectChain bounds Resolve. Chains cannot cycle because merged-away
// rows are deleted, so the bound is never reached in practice.
const maxRedirectChain = 1 << 16

// RedirectCache remembers which recipients were merged into which.
//
// Entries are append-only for the life of the process: a merged-away row is
// gone permanently. Resolve follows chains, so if 1 was merged into 2 and 2
// later into 3, Resolve(1) returns 3.
//
// Thread-safety: safe for concurrent use. A reader racing a Record sees
// either the pre-merge or the post-merge target.
type RedirectCache struct {
	m sync.Map // FrozenID -> FrozenID
}

// NewRedirectCache returns an empty cache.
func NewRedirectCache() *RedirectCache {
	return &RedirectCache{}
}

// Record stores from -> to. Self-redirects are ignored.
func (c *RedirectCache) Record(from, to FrozenID) {
	if from == to {
		return
	}
	c.m.Store(from, to)
}

// Resolve follows redirects from id until it reaches a recipient that was
// never merged away.
func (c *RedirectCache) Resolve(id FrozenID) FrozenID {
	for range maxRedirectChain {
		next, ok := c.m.Load(id)
		if !ok {
			return id
		}
		id = next.(FrozenID)
	}
	return id
}

// Len returns the number of recorded redirects.
func (c *RedirectCache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Snapshot returns a copy of every entry, for diagnostics and tests.
func (c *RedirectCache) Snapshot() map[FrozenID]FrozenID {
	out := make(map[FrozenID]FrozenID)
	c.m.Range(func(k, v any) bool {
		out[k.(FrozenID)] = v.(FrozenID)
		return true
	})
	return out
}
