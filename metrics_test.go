package ankylogate

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: reg})
	require.NoError(t, err)

	tracked := NewTrackedLimiter(newSlidingWindow(t, 10*time.Second, 1), PolicySlidingWindow, metrics)
	tracked.Record("A", at(0))
	tracked.Record("A", at(1))
	tracked.Record("A", at(2))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues("sliding_window", ActionAllowed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Decisions.WithLabelValues("sliding_window", ActionDenied)))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RetryAfter))
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(MetricsOptions{Registerer: reg, Namespace: "test"})
	require.NoError(t, err)
	second, err := NewMetrics(MetricsOptions{Registerer: reg, Namespace: "test"})
	require.NoError(t, err)

	assert.Same(t, first.Decisions, second.Decisions)
}

func TestMetricsWatchIdentities(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: reg})
	require.NoError(t, err)

	ft := newFixedInterval(t, time.Minute)
	require.NoError(t, metrics.WatchIdentities(PolicyFixedInterval, ft))

	ft.Record("a", at(0))
	ft.Record("b", at(0))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() == "ankylogate_tracked_identities" {
			found = true
			assert.Equal(t, 2.0, family.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestMetricsWatchIdentitiesAgainSwapsSizer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(MetricsOptions{Registerer: reg})
	require.NoError(t, err)

	before := newSlidingWindow(t, time.Minute, 1)
	before.Record("a", at(0))
	require.NoError(t, metrics.WatchIdentities(PolicySlidingWindow, before))

	// a restarted component watches its fresh limiter under the same policy
	after := newSlidingWindow(t, time.Minute, 1)
	for _, id := range []string{"x", "y", "z"} {
		after.Record(id, at(0))
	}
	require.NoError(t, metrics.WatchIdentities(PolicySlidingWindow, after))

	count, err := testutil.GatherAndCount(reg, "ankylogate_tracked_identities")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "ankylogate_tracked_identities" {
			assert.Equal(t, 3.0, family.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
