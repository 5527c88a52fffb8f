package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics collects execution-cycle metrics.
type EngineMetrics interface {
	RecordCycle(durationSeconds float64, claimed int)
	RecordPlanResult(status string)
	SetActivePlans(count float64)
	SetOverduePlans(count float64)
}

// NilEngineMetrics is a no-op implementation for when metrics are disabled.
type NilEngineMetrics struct{}

func NewNilEngineMetrics() EngineMetrics {
	return &NilEngineMetrics{}
}

func (n *NilEngineMetrics) RecordCycle(durationSeconds float64, claimed int) {}
func (n *NilEngineMetrics) RecordPlanResult(status string)                   {}
func (n *NilEngineMetrics) SetActivePlans(count float64)                     {}
func (n *NilEngineMetrics) SetOverduePlans(count float64)                    {}

type PromEngineMetrics struct {
	cycleDuration prometheus.Histogram
	cyclesTotal   prometheus.Counter
	claimedTotal  prometheus.Counter
	planResults   *prometheus.CounterVec
	activePlans   prometheus.Gauge
	overduePlans  prometheus.Gauge
}

func NewPromEngineMetrics(reg prometheus.Registerer) *PromEngineMetrics {
	m := &PromEngineMetrics{
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dca_cycle_duration_seconds",
			Help:    "Wall-clock duration of one execution cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dca_cycles_total",
			Help: "Number of execution cycles run",
		}),
		claimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dca_plans_claimed_total",
			Help: "Number of due plans claimed across all cycles",
		}),
		planResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dca_plan_results_total",
			Help: "Execution attempts by final status",
		}, []string{"status"}),
		activePlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dca_active_plans",
			Help: "Current number of ACTIVE plans",
		}),
		overduePlans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dca_overdue_plans",
			Help: "ACTIVE unclaimed plans already past their next_run_time",
		}),
	}
	reg.MustRegister(
		m.cycleDuration,
		m.cyclesTotal,
		m.claimedTotal,
		m.planResults,
		m.activePlans,
		m.overduePlans,
	)
	return m
}

func (m *PromEngineMetrics) RecordCycle(durationSeconds float64, claimed int) {
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(durationSeconds)
	m.claimedTotal.Add(float64(claimed))
}

func (m *PromEngineMetrics) RecordPlanResult(status string) {
	m.planResults.WithLabelValues(status).Inc()
}

func (m *PromEngineMetrics) SetActivePlans(count float64) {
	m.activePlans.Set(count)
}

func (m *PromEngineMetrics) SetOverduePlans(count float64) {
	m.overduePlans.Set(count)
}
