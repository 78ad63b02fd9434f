package batcher

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// pendingTable maps keys to their waiting callers. It is bounded: when full,
// the oldest entry is evicted and handed back to the caller of add so its
// waiters can be resolved outside the coalescer lock.
//
// Not safe for concurrent use; the coalescer lock guards it.
type pendingTable struct {
	cache   *lru.Cache[string, *pendingEntry]
	evicted []*pendingEntry
}

func newPendingTable(size int) (*pendingTable, error) {
	t := &pendingTable{}
	cache, err := lru.NewWithEvict[string, *pendingEntry](size, t.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending table: %w", err)
	}
	t.cache = cache
	return t, nil
}

// onEvict runs for removals as well as evictions; claimed entries are skipped
func (t *pendingTable) onEvict(_ string, e *pendingEntry) {
	if e.claimed {
		return
	}
	t.evicted = append(t.evicted, e)
}

// peek returns the entry for key without touching recency
func (t *pendingTable) peek(key string) (*pendingEntry, bool) {
	return t.cache.Peek(key)
}

// add inserts e and returns any entries evicted to make room
func (t *pendingTable) add(key string, e *pendingEntry) []*pendingEntry {
	t.cache.Add(key, e)
	return t.drainEvicted()
}

// claim removes and returns the entry for key
func (t *pendingTable) claim(key string) (*pendingEntry, bool) {
	e, ok := t.cache.Peek(key)
	if !ok {
		return nil, false
	}
	e.claimed = true
	t.cache.Remove(key)
	return e, true
}

// claimAll removes and returns every entry
func (t *pendingTable) claimAll() []*pendingEntry {
	keys := t.cache.Keys()
	entries := make([]*pendingEntry, 0, len(keys))
	for _, key := range keys {
		if e, ok := t.claim(key); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// keys returns pending keys from oldest to newest
func (t *pendingTable) keys() []string {
	return t.cache.Keys()
}

func (t *pendingTable) len() int {
	return t.cache.Len()
}

func (t *pendingTable) drainEvicted() []*pendingEntry {
	if len(t.evicted) == 0 {
		return nil
	}
	evicted := t.evicted
	t.evicted = nil
	return evicted
}
