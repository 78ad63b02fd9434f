package batcher

import (
	"context"

	"github.com/rs/zerolog"

	"vtgofer/internal/codec"
	"vtgofer/internal/config"
	"vtgofer/internal/metrics"
	"vtgofer/internal/source"
	"vtgofer/internal/vt"
)

// SourceName identifies the VirusTotal source
const SourceName = "virustotal"

// Source is the VirusTotal lookup source: a coalescer fed by callers and a
// dispatcher draining it on a fixed interval
type Source struct {
	coalescer  *Coalescer
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

var _ source.Source = (*Source)(nil)

// NewSource creates a new Source from configuration
func NewSource(cfg *config.VirusTotalConfig, transport Transport, layout *vt.Layout, m *metrics.Metrics, logger zerolog.Logger) (*Source, error) {
	c, err := NewCoalescer(CoalescerConfig{
		ContentTypes:    cfg.GetContentTypes(),
		MaxOutstanding:  cfg.MaxOutstanding,
		MaxPending:      cfg.MaxPending,
		DuplicatePolicy: cfg.DuplicatePolicy,
	}, m, logger)
	if err != nil {
		return nil, err
	}

	d := NewDispatcher(DispatcherConfig{
		Interval:      cfg.GetFlushInterval(),
		ExpiryFlushes: cfg.PendingExpiryFlushes,
	}, c, transport, layout, m, logger)

	return &Source{
		coalescer:  c,
		dispatcher: d,
		logger:     logger.With().Str("source", SourceName).Logger(),
	}, nil
}

// Name returns the source name
func (s *Source) Name() string {
	return SourceName
}

// Accepts returns true if contentType is in scope
func (s *Source) Accepts(contentType string) bool {
	return s.coalescer.Accepts(contentType)
}

// Submit registers q; the returned channel receives exactly one outcome
func (s *Source) Submit(ctx context.Context, q source.Query) <-chan source.Outcome {
	return s.coalescer.Submit(ctx, q)
}

// Lookup submits q and waits for its outcome or ctx
func (s *Source) Lookup(ctx context.Context, q source.Query) (*codec.Result, error) {
	ch := s.Submit(ctx, q)
	select {
	case out := <-ch:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start begins periodic flushing
func (s *Source) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
}

// Stop flushes once more and resolves every remaining caller
func (s *Source) Stop(ctx context.Context) {
	s.dispatcher.Stop(ctx)
}

// Flush forces a flush outside the ticker
func (s *Source) Flush(ctx context.Context) int {
	return s.dispatcher.Flush(ctx)
}

// Len returns the number of waiting and pending keys
func (s *Source) Len() (waiting, pending int) {
	return s.coalescer.Len()
}
