package observability_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/observability"
)

// gathered returns the summed counter values per metric family name.
func gathered(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				out[mf.GetName()] += c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				out[mf.GetName()] += float64(h.GetSampleCount())
			}
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.PointsAwarded("EARNED", 60)
	m.PointsAwarded("NIGHTS", 200)
	m.PointsAwarded("EARNED", 0) // ignored
	m.PointsRedeemed(100)
	m.PointsExpired(30)
	m.TierChanged(true)
	m.TierChanged(false)
	m.ConflictRetried("member")
	m.BookingTransition("completed")
	m.Settlement("settled")
	m.ObserveSweep("expiration", time.Now())

	got := gathered(t, reg)
	assert.Equal(t, float64(260), got["loyalty_points_awarded_total"])
	assert.Equal(t, float64(100), got["loyalty_points_redeemed_total"])
	assert.Equal(t, float64(30), got["loyalty_points_expired_total"])
	assert.Equal(t, float64(2), got["loyalty_tier_changes_total"])
	assert.Equal(t, float64(1), got["loyalty_ledger_conflicts_retried_total"])
	assert.Equal(t, float64(1), got["booking_transitions_total"])
	assert.Equal(t, float64(1), got["booking_settlements_total"])
	assert.Equal(t, float64(1), got["loyalty_sweep_duration_seconds"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.PointsAwarded("EARNED", 10)
		m.TierChanged(true)
		m.ObserveSweep("expiration", time.Now())
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := observability.NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = observability.NewLogger("verbose")
	assert.Error(t, err)
}
