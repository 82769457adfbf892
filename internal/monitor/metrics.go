package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/drivewatch/drivewatch/internal/alert"
	"github.com/drivewatch/drivewatch/internal/notify"
)

// Metrics are the Prometheus instruments updated by the monitor loops.
type Metrics struct {
	Cycles          *prometheus.CounterVec
	CycleErrors     *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	AlertsGenerated *prometheus.CounterVec
	ActiveAlerts    *prometheus.GaugeVec
	Decisions       *prometheus.CounterVec
	ChannelSends    *prometheus.CounterVec
	PredictErrors   *prometheus.CounterVec
}

// NewMetrics registers the monitor metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_cycles_total",
			Help: "Total number of loop cycles run.",
		}, []string{"loop"}),
		CycleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_cycle_errors_total",
			Help: "Total number of loop cycles that failed or panicked.",
		}, []string{"loop"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drivewatch_cycle_duration_seconds",
			Help:    "Loop cycle duration distribution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
		AlertsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_alerts_generated_total",
			Help: "Total number of alerts generated by evaluation.",
		}, []string{"component", "level"}),
		ActiveAlerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drivewatch_active_alerts",
			Help: "Current alerts by level.",
		}, []string{"level"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_notification_decisions_total",
			Help: "Notification gate decisions by reason.",
		}, []string{"reason"}),
		ChannelSends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_channel_sends_total",
			Help: "Channel send attempts by result.",
		}, []string{"channel", "result"}),
		PredictErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_predict_errors_total",
			Help: "Predictor failures by component.",
		}, []string{"component"}),
	}
}

func (m *Metrics) observeCycle(loop string, took time.Duration, err error) {
	m.Cycles.WithLabelValues(loop).Inc()
	m.CycleDuration.WithLabelValues(loop).Observe(took.Seconds())
	if err != nil {
		m.CycleErrors.WithLabelValues(loop).Inc()
	}
}

func (m *Metrics) setActive(current []alert.Alert) {
	counts := make(map[alert.Level]int, len(alert.Levels))
	for _, a := range current {
		counts[a.Level]++
	}
	for _, l := range alert.Levels {
		m.ActiveAlerts.WithLabelValues(l.String()).Set(float64(counts[l]))
	}
}

func (m *Metrics) observeOutcomes(out []notify.Outcome) {
	for _, o := range out {
		m.Decisions.WithLabelValues(o.Decision.Reason).Inc()
		for _, ch := range o.Result.Delivered {
			m.ChannelSends.WithLabelValues(ch, "success").Inc()
		}
		for ch := range o.Result.Failed {
			m.ChannelSends.WithLabelValues(ch, "failure").Inc()
		}
	}
}
