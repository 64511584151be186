// Package metrics exports coaching pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation outcomes. The planner's gate reasons are defined from these.
const (
	OutcomeNudge       = "nudge"
	OutcomeNone        = "none"
	OutcomeDailyCap    = "daily_cap"
	OutcomeQuietHours  = "quiet_hours"
	OutcomeMinInterval = "min_interval"
)

// Delivery channels.
const (
	ChannelNotifier  = "notifier"
	ChannelLatestTip = "latest_tip"
)

const (
	deliveryStatusOK     = "ok"
	deliveryStatusFailed = "failed"
)

// Exporter records planner activity.
type Exporter struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	riskScore   prometheus.Histogram
	deliveries  *prometheus.CounterVec
	readErrors  *prometheus.CounterVec
	sentToday   prometheus.Gauge
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for the risk score histogram
	ScoreBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		ScoreBuckets: prometheus.LinearBuckets(0, 0.1, 11),
	}
}

// NewExporter creates and registers all collectors.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.ScoreBuckets) == 0 {
		cfg.ScoreBuckets = DefaultConfig().ScoreBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quitcoach",
			Subsystem: "planner",
			Name:      "evaluations_total",
			Help:      "Planner evaluations by outcome",
		},
		[]string{"outcome", "forced"},
	)
	e.riskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "quitcoach",
			Subsystem: "planner",
			Name:      "risk_score",
			Help:      "Risk scores of evaluations that reached the policy",
			Buckets:   cfg.ScoreBuckets,
		},
	)
	e.deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quitcoach",
			Subsystem: "planner",
			Name:      "deliveries_total",
			Help:      "Nudge hand-offs by channel and status",
		},
		[]string{"channel", "status"},
	)
	e.readErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quitcoach",
			Subsystem: "planner",
			Name:      "read_errors_total",
			Help:      "Failed reads from the event or profile source",
		},
		[]string{"source"},
	)
	e.sentToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quitcoach",
			Subsystem: "planner",
			Name:      "notifications_sent_today",
			Help:      "Nudges counted against today's cap",
		},
	)

	registry.MustRegister(e.evaluations, e.riskScore, e.deliveries, e.readErrors, e.sentToday)
	return e
}

// ObserveEvaluation records one evaluation outcome. score < 0 means the
// policy was not consulted (gate rejection).
func (e *Exporter) ObserveEvaluation(outcome string, forced bool, score float64) {
	e.evaluations.WithLabelValues(outcome, boolLabel(forced)).Inc()
	if score >= 0 {
		e.riskScore.Observe(score)
	}
}

// ObserveDelivery records the result of a hand-off to an external channel.
func (e *Exporter) ObserveDelivery(channel string, err error) {
	status := deliveryStatusOK
	if err != nil {
		status = deliveryStatusFailed
	}
	e.deliveries.WithLabelValues(channel, status).Inc()
}

// ObserveReadError records a failed read from the named source.
func (e *Exporter) ObserveReadError(source string) {
	e.readErrors.WithLabelValues(source).Inc()
}

// SetSentToday mirrors the rate limiter's daily counter.
func (e *Exporter) SetSentToday(n int) {
	e.sentToday.Set(float64(n))
}

// Handler serves the registry over HTTP.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
