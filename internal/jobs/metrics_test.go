package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("budget_signal").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("budget_signal").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("budget_signal", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("budget_signal", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("budget_signal")))
}

func TestLedgerAndAssetCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddLedgerEntry("reserve")
	m.AddLedgerEntry("reserve")
	m.AddAssetRequests(3)
	m.AddAssetRequests(0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.ledger.WithLabelValues("reserve")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.assets))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddLedgerEntry("release")
}
