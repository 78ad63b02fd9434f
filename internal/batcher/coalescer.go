package batcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"vtgofer/internal/config"
	"vtgofer/internal/metrics"
	"vtgofer/internal/source"
)

// CoalescerConfig configures a Coalescer
type CoalescerConfig struct {
	ContentTypes    []string
	MaxOutstanding  int
	MaxPending      int
	DuplicatePolicy config.DuplicatePolicy
}

// Coalescer accepts lookups and buffers their keys for the dispatcher.
// The waiting buffer and the pending table share one lock so that a key is
// never visible in one without the other.
type Coalescer struct {
	contentTypes   map[string]struct{}
	maxOutstanding int
	policy         config.DuplicatePolicy
	waiting        []string
	pending        *pendingTable
	closed         bool
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	mu             sync.Mutex
}

// NewCoalescer creates a new Coalescer
func NewCoalescer(cfg CoalescerConfig, m *metrics.Metrics, logger zerolog.Logger) (*Coalescer, error) {
	maxPending := cfg.MaxPending
	if maxPending < cfg.MaxOutstanding {
		maxPending = cfg.MaxOutstanding
	}
	pending, err := newPendingTable(maxPending)
	if err != nil {
		return nil, err
	}

	contentTypes := make(map[string]struct{}, len(cfg.ContentTypes))
	for _, ct := range cfg.ContentTypes {
		contentTypes[ct] = struct{}{}
	}

	policy := cfg.DuplicatePolicy
	if policy == "" {
		policy = config.DefaultDuplicatePolicy
	}

	return &Coalescer{
		contentTypes:   contentTypes,
		maxOutstanding: cfg.MaxOutstanding,
		policy:         policy,
		waiting:        make([]string, 0, cfg.MaxOutstanding),
		pending:        pending,
		metrics:        m,
		logger:         logger.With().Str("component", "coalescer").Logger(),
	}, nil
}

// Accepts returns true if contentType is in scope for enrichment
func (c *Coalescer) Accepts(contentType string) bool {
	if contentType == "" {
		return false
	}
	_, ok := c.contentTypes[contentType]
	return ok
}

// Submit registers q and returns a channel that receives exactly one outcome.
// Out-of-scope content types resolve immediately with no result; a full
// buffer resolves immediately with ErrDropped and registers nothing.
func (c *Coalescer) Submit(ctx context.Context, q source.Query) <-chan source.Outcome {
	if err := ctx.Err(); err != nil {
		return immediate(source.Outcome{Err: err})
	}

	if !c.Accepts(q.ContentType) {
		c.metrics.Lookup(metrics.LookupOutOfScope)
		return immediate(source.Outcome{})
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		c.metrics.Lookup(metrics.LookupClosed)
		return immediate(source.Outcome{Err: ErrClosed})
	}

	ch := newOutcomeChan()

	if entry, ok := c.pending.peek(q.Key); ok {
		if c.policy == config.DuplicateReject {
			c.mu.Unlock()
			c.metrics.Lookup(metrics.LookupDuplicate)
			return immediate(source.Outcome{Err: ErrDuplicate})
		}
		entry.waiters = append(entry.waiters, ch)
		c.mu.Unlock()
		c.metrics.Lookup(metrics.LookupCoalesced)
		return ch
	}

	if len(c.waiting) >= c.maxOutstanding {
		c.mu.Unlock()
		c.metrics.Lookup(metrics.LookupDropped)
		c.logger.Debug().Str("key", q.Key).Int("waiting", c.maxOutstanding).Msg("lookup dropped")
		return immediate(source.Outcome{Err: ErrDropped})
	}

	c.waiting = append(c.waiting, q.Key)
	evicted := c.pending.add(q.Key, &pendingEntry{waiters: []chan source.Outcome{ch}})
	c.publishLocked()
	c.mu.Unlock()

	c.metrics.Lookup(metrics.LookupAccepted)
	if len(evicted) > 0 {
		c.logger.Warn().Int("evicted", len(evicted)).Msg("pending table full, evicted oldest lookups")
		resolveEntries(evicted, source.Outcome{})
		c.metrics.Resolved(metrics.ResolvedEvicted, len(evicted))
	}

	return ch
}

// take swaps out the waiting buffer and marks its keys as dispatched
func (c *Coalescer) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.waiting) == 0 {
		return nil
	}

	keys := c.waiting
	c.waiting = make([]string, 0, c.maxOutstanding)

	batch := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if entry, ok := c.pending.peek(key); ok {
			entry.dispatched = true
			batch = append(batch, key)
		}
	}

	c.publishLocked()
	return batch
}

// claim removes the entry for key. Only one caller can claim a given entry.
func (c *Coalescer) claim(key string) (*pendingEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.pending.claim(key)
	if ok {
		c.publishLocked()
	}
	return entry, ok
}

// claimKeys removes the entries for every key still pending
func (c *Coalescer) claimKeys(keys []string) []*pendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*pendingEntry, 0, len(keys))
	for _, key := range keys {
		if entry, ok := c.pending.claim(key); ok {
			entries = append(entries, entry)
		}
	}
	c.publishLocked()
	return entries
}

// expire counts a missed tick against every dispatched entry and removes
// those that reached threshold
func (c *Coalescer) expire(threshold int) []*pendingEntry {
	if threshold <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*pendingEntry
	for _, key := range c.pending.keys() {
		entry, ok := c.pending.peek(key)
		if !ok || !entry.dispatched {
			continue
		}
		entry.misses++
		if entry.misses >= threshold {
			c.pending.claim(key)
			expired = append(expired, entry)
		}
	}

	if len(expired) > 0 {
		c.publishLocked()
	}
	return expired
}

// close rejects further submissions and removes every pending entry
func (c *Coalescer) close() []*pendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.waiting = nil
	entries := c.pending.claimAll()
	c.publishLocked()
	return entries
}

// Len returns the number of waiting and pending keys
func (c *Coalescer) Len() (waiting, pending int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting), c.pending.len()
}

func (c *Coalescer) publishLocked() {
	c.metrics.SetQueue(len(c.waiting), c.pending.len())
}

// resolveEntries delivers out to every waiter of every entry
func resolveEntries(entries []*pendingEntry, out source.Outcome) {
	for _, e := range entries {
		e.resolve(out)
	}
}
