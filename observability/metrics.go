package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	pointsAwarded      *prometheus.CounterVec
	pointsRedeemed     prometheus.Counter
	pointsExpired      prometheus.Counter
	tierChanges        *prometheus.CounterVec
	conflictsRetried   *prometheus.CounterVec
	bookingTransitions *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		pointsAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_points_awarded_total",
			Help: "Points credited to member ledgers by entry type.",
		}, []string{"type"}),
		pointsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_points_redeemed_total",
			Help: "Points spent on rewards.",
		}),
		pointsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loyalty_points_expired_total",
			Help: "Points removed from balances by expiry.",
		}),
		tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_tier_changes_total",
			Help: "Member tier changes by direction.",
		}, []string{"direction"}),
		conflictsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalty_ledger_conflicts_retried_total",
			Help: "Optimistic version conflicts retried by aggregate.",
		}, []string{"aggregate"}),
		bookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking status transitions by target status.",
		}, []string{"status"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_settlements_total",
			Help: "Payment outcomes applied by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loyalty_sweep_duration_seconds",
			Help:    "Duration of member sweeps (expiry, tier recalculation).",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"sweep"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.pointsAwarded,
			m.pointsRedeemed,
			m.pointsExpired,
			m.tierChanges,
			m.conflictsRetried,
			m.bookingTransitions,
			m.settlements,
			m.sweepDuration,
		)
	}
	return m
}

func (m *Metrics) PointsAwarded(entryType string, points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsAwarded.WithLabelValues(entryType).Add(float64(points))
}

func (m *Metrics) PointsRedeemed(points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsRedeemed.Add(float64(points))
}

func (m *Metrics) PointsExpired(points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsExpired.Add(float64(points))
}

func (m *Metrics) TierChanged(upgraded bool) {
	if m == nil {
		return
	}
	direction := "downgrade"
	if upgraded {
		direction = "upgrade"
	}
	m.tierChanges.WithLabelValues(direction).Inc()
}

func (m *Metrics) ConflictRetried(aggregate string) {
	if m == nil {
		return
	}
	m.conflictsRetried.WithLabelValues(aggregate).Inc()
}

func (m *Metrics) BookingTransition(status string) {
	if m == nil {
		return
	}
	m.bookingTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Settlement(result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(result).Inc()
}

// ObserveSweep records the duration of a sweep started at start.
func (m *Metrics) ObserveSweep(sweep string, start time.Time) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
}
