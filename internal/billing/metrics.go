package billing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the billing gauges and counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TotalArrears        prometheus.Gauge
	OverdueRecords      prometheus.Gauge
	CustomersInArrears  prometheus.Gauge
	CycleSecondsLeft    prometheus.Gauge
	Toggles             *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	Regenerations       prometheus.Counter
	Compactions         *prometheus.CounterVec
}

// NewMetrics registers the billing metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		TotalArrears: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "arrears_total",
			Help:      "Sum of overdue amounts across the roster.",
		}),
		OverdueRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "overdue_records",
			Help:      "Number of unpaid records past their due date.",
		}),
		CustomersInArrears: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "customers_in_arrears",
			Help:      "Number of customers with at least one overdue record.",
		}),
		CycleSecondsLeft: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "cycle_seconds_remaining",
			Help:      "Seconds until the current billing cycle closes.",
		}),
		Toggles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "toggles_total",
			Help:      "Payment toggles by outcome.",
		}, []string{"outcome"}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "persistence_failures_total",
			Help:      "Roster saves that failed after retries.",
		}),
		Regenerations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cleancity",
			Subsystem: "billing",
			Name:      "regenerations_total",
			Help:      "Loads that discarded malformed stored data and regenerated the roster.",
		}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleancity",
			Subsystem: "storage",
			Name:      "compactions_total",
			Help:      "Roster store compactions by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeSummary(s Summary) {
	if m == nil {
		return
	}
	arrears, _ := s.TotalArrears.Float64()
	m.TotalArrears.Set(arrears)
	m.OverdueRecords.Set(float64(s.OverdueRecords))
	m.CustomersInArrears.Set(float64(s.CustomersInArrears))
}

// ObserveCycle records the time left in the current cycle, clamped at zero.
func (m *Metrics) ObserveCycle(remaining time.Duration) {
	if m == nil {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	m.CycleSecondsLeft.Set(remaining.Seconds())
}

func (m *Metrics) toggle(outcome string) {
	if m == nil {
		return
	}
	m.Toggles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) persistenceFailure() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}

func (m *Metrics) regenerated() {
	if m == nil {
		return
	}
	m.Regenerations.Inc()
}

// ObserveCompaction counts one store compaction.
func (m *Metrics) ObserveCompaction(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.Compactions.WithLabelValues(outcome).Inc()
}
