package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("inventory:sync_all").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("inventory:sync_all").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:sync_all", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:sync_all", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("inventory:sync_all")))
}

func TestObserveSyncAndSuggestions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveSync(7, 2)
	m.ObserveSync(0, 0)
	m.AddSuggestions(3)
	m.AddSuggestions(-1)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.syncedProd))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.failedProd))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.suggested))

	var nilMetrics *Metrics
	nilMetrics.ObserveSync(1, 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
