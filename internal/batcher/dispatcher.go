package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vtgofer/internal/metrics"
	"vtgofer/internal/source"
	"vtgofer/internal/vt"
)

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Interval      time.Duration
	ExpiryFlushes int // ticks a dispatched key may stay unmatched, 0 disables expiry
}

// Dispatcher drains the coalescer on every tick, sends the keys as one batch
// and routes each report back to the callers waiting on its key
type Dispatcher struct {
	coalescer *Coalescer
	transport Transport
	layout    *vt.Layout
	cfg       DispatcherConfig
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	flushMu  sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(cfg DispatcherConfig, c *Coalescer, transport Transport, layout *vt.Layout, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		coalescer: c,
		transport: transport,
		layout:    layout,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the flush ticker until Stop is called or ctx is done
func (d *Dispatcher) Start(ctx context.Context) {
	d.started = true

	go func() {
		defer close(d.doneCh)

		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		d.logger.Info().Dur("interval", d.cfg.Interval).Msg("dispatcher started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.Tick(ctx)
			}
		}
	}()
}

// Stop halts the ticker, runs a final flush bounded by ctx and resolves
// whatever is still pending with no result
func (d *Dispatcher) Stop(ctx context.Context) {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		if d.started {
			select {
			case <-d.doneCh:
			case <-ctx.Done():
			}
		}

		d.Flush(ctx)

		leftover := d.coalescer.close()
		resolveEntries(leftover, source.Outcome{})
		d.metrics.Resolved(metrics.ResolvedNoResult, len(leftover))

		d.logger.Info().Int("unresolved", len(leftover)).Msg("dispatcher stopped")
	})
}

// Tick flushes the waiting keys, then expires dispatched keys that have
// gone unmatched for too long
func (d *Dispatcher) Tick(ctx context.Context) {
	d.Flush(ctx)

	expired := d.coalescer.expire(d.cfg.ExpiryFlushes)
	if len(expired) == 0 {
		return
	}
	resolveEntries(expired, source.Outcome{})
	d.metrics.Resolved(metrics.ResolvedExpired, len(expired))
	d.logger.Debug().Int("expired", len(expired)).Msg("expired unmatched lookups")
}

// Flush sends every waiting key in one remote query and resolves the matched
// callers. It returns the number of keys sent.
func (d *Dispatcher) Flush(ctx context.Context) int {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	keys := d.coalescer.take()
	if len(keys) == 0 {
		return 0
	}

	batchID := uuid.NewString()
	log := d.logger.With().Str("batch", batchID).Logger()
	log.Debug().Int("keys", len(keys)).Msg("flushing batch")

	start := time.Now()
	reports, err := d.transport.FetchReports(ctx, keys)
	if err != nil {
		d.metrics.Batch(metrics.BatchError, len(keys), time.Since(start))
		log.Warn().Err(err).Int("keys", len(keys)).Msg("batch query failed")

		entries := d.coalescer.claimKeys(keys)
		resolveEntries(entries, source.Outcome{})
		d.metrics.Resolved(metrics.ResolvedNoResult, len(entries))
		return len(keys)
	}
	d.metrics.Batch(metrics.BatchOK, len(keys), time.Since(start))

	matched := matchReports(keys, reports)
	var found, notFound, failed int

	for i := range reports {
		key, ok := matched[i]
		if !ok {
			log.Debug().Str("resource", reports[i].Resource).Msg("ignoring unmatched report")
			continue
		}

		entry, ok := d.coalescer.claim(key)
		if !ok {
			continue
		}

		result, err := d.layout.Encode(&reports[i])
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to encode report")
			entry.resolve(source.Outcome{Err: err})
			failed++
			continue
		}

		entry.resolve(source.Outcome{Result: result})
		if result.IsEmpty() {
			notFound++
		} else {
			found++
		}
	}

	d.metrics.Resolved(metrics.ResolvedFound, found)
	d.metrics.Resolved(metrics.ResolvedNotFound, notFound)
	d.metrics.Resolved(metrics.ResolvedError, failed)

	log.Debug().
		Int("keys", len(keys)).
		Int("reports", len(reports)).
		Int("found", found).
		Int("notFound", notFound).
		Dur("took", time.Since(start)).
		Msg("batch resolved")

	return len(keys)
}

// matchReports pairs report indexes with batch keys. A report matches the
// first of its identifiers that was sent in this batch; each key is matched
// at most once. Reports without any usable identifier fall back to their
// position when the response has exactly one report per key.
func matchReports(keys []string, reports []vt.Report) map[int]string {
	inBatch := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		inBatch[k] = struct{}{}
	}

	used := make(map[string]struct{}, len(keys))
	matched := make(map[int]string, len(reports))
	var unkeyed []int

	for i := range reports {
		ids := reports[i].Keys()
		if len(ids) == 0 {
			unkeyed = append(unkeyed, i)
			continue
		}
		for _, id := range ids {
			if _, ok := inBatch[id]; !ok {
				continue
			}
			if _, dup := used[id]; dup {
				break
			}
			used[id] = struct{}{}
			matched[i] = id
			break
		}
	}

	if len(reports) != len(keys) {
		return matched
	}
	for _, i := range unkeyed {
		key := keys[i]
		if _, dup := used[key]; dup {
			continue
		}
		used[key] = struct{}{}
		matched[i] = key
	}

	return matched
}
