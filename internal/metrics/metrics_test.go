package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Lookup(LookupAccepted)
	m.Lookup(LookupAccepted)
	m.Lookup(LookupDropped)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues(LookupAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues(LookupDropped)))

	m.Batch(BatchOK, 3, 200*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(BatchOK)))

	m.Resolved(ResolvedFound, 2)
	m.Resolved(ResolvedExpired, 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolved.WithLabelValues(ResolvedFound)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.resolved.WithLabelValues(ResolvedExpired)))

	m.SetQueue(4, 9)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.waiting))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.pending))

	count, err := testutil.GatherAndCount(reg, "vtgofer_batch_size")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop()
		Nop()
	})
}
