package batcher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtgofer/internal/config"
	"vtgofer/internal/metrics"
	"vtgofer/internal/source"
)

const testContentType = "application/x-dosexec"

func newTestCoalescer(t *testing.T, cfg CoalescerConfig) *Coalescer {
	t.Helper()
	if cfg.ContentTypes == nil {
		cfg.ContentTypes = []string{testContentType}
	}
	c, err := NewCoalescer(cfg, metrics.Nop(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func query(key string) source.Query {
	return source.Query{Key: key, ContentType: testContentType}
}

// recv waits for the single outcome on ch
func recv(t *testing.T, ch <-chan source.Outcome) source.Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outcome")
		return source.Outcome{}
	}
}

func assertPending(t *testing.T, ch <-chan source.Outcome) {
	t.Helper()
	select {
	case out := <-ch:
		t.Fatalf("unexpected outcome: %+v", out)
	default:
	}
}

func TestCoalescer_OutOfScope(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 5})

	for _, ct := range []string{"", "text/plain"} {
		out := recv(t, c.Submit(context.Background(), source.Query{Key: "k", ContentType: ct}))
		assert.Nil(t, out.Result)
		assert.NoError(t, out.Err)
	}

	waiting, pending := c.Len()
	assert.Zero(t, waiting)
	assert.Zero(t, pending)
}

func TestCoalescer_DropWhenFull(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 1})

	first := c.Submit(context.Background(), query("k1"))
	assertPending(t, first)

	out := recv(t, c.Submit(context.Background(), query("k2")))
	assert.ErrorIs(t, out.Err, ErrDropped)

	waiting, pending := c.Len()
	assert.Equal(t, 1, waiting)
	assert.Equal(t, 1, pending)

	_, ok := c.pending.peek("k2")
	assert.False(t, ok, "dropped key must not be registered")
}

func TestCoalescer_FanoutDuplicate(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 1, DuplicatePolicy: config.DuplicateFanout})

	a := c.Submit(context.Background(), query("k1"))
	b := c.Submit(context.Background(), query("k1"))
	assertPending(t, a)
	assertPending(t, b)

	waiting, pending := c.Len()
	assert.Equal(t, 1, waiting, "duplicate must not be appended again")
	assert.Equal(t, 1, pending)

	entry, ok := c.claim("k1")
	require.True(t, ok)
	entry.resolve(source.Outcome{Err: ErrClosed})

	assert.ErrorIs(t, recv(t, a).Err, ErrClosed)
	assert.ErrorIs(t, recv(t, b).Err, ErrClosed)
}

func TestCoalescer_RejectDuplicate(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 5, DuplicatePolicy: config.DuplicateReject})

	first := c.Submit(context.Background(), query("k1"))
	out := recv(t, c.Submit(context.Background(), query("k1")))
	assert.ErrorIs(t, out.Err, ErrDuplicate)
	assertPending(t, first)
}

func TestCoalescer_CancelledContext(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := recv(t, c.Submit(ctx, query("k1")))
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestCoalescer_TakeDedupsAndMarksDispatched(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 5})

	c.Submit(context.Background(), query("k1"))
	c.Submit(context.Background(), query("k2"))
	c.Submit(context.Background(), query("k1"))

	assert.Equal(t, []string{"k1", "k2"}, c.take())
	assert.Nil(t, c.take())

	entry, ok := c.pending.peek("k1")
	require.True(t, ok)
	assert.True(t, entry.dispatched)
}

func TestCoalescer_EvictionResolvesOldest(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 2, MaxPending: 2})

	oldest := c.Submit(context.Background(), query("k1"))
	c.Submit(context.Background(), query("k2"))
	c.take()

	c.Submit(context.Background(), query("k3"))

	out := recv(t, oldest)
	assert.Nil(t, out.Result)
	assert.NoError(t, out.Err)

	_, pending := c.Len()
	assert.Equal(t, 2, pending)
}

func TestCoalescer_Expire(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 5})

	c.Submit(context.Background(), query("k1"))
	c.take()
	c.Submit(context.Background(), query("k2"))

	assert.Nil(t, c.expire(0), "zero threshold disables expiry")
	assert.Empty(t, c.expire(2))

	expired := c.expire(2)
	require.Len(t, expired, 1, "only dispatched entries expire")

	_, ok := c.pending.peek("k2")
	assert.True(t, ok)
}

func TestCoalescer_Closed(t *testing.T) {
	c := newTestCoalescer(t, CoalescerConfig{MaxOutstanding: 5})

	c.Submit(context.Background(), query("k1"))
	entries := c.close()
	assert.Len(t, entries, 1)

	out := recv(t, c.Submit(context.Background(), query("k2")))
	assert.ErrorIs(t, out.Err, ErrClosed)
}
