package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver maps relay events onto Prometheus collectors held in
// its own registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	sessionsOpened prometheus.Counter
	sessionsActive prometheus.Gauge
	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	chunksDropped  *prometheus.CounterVec
	errorsSent     *prometheus.CounterVec
}

func NewPrometheusObserver(namespace string) *PrometheusObserver {
	if namespace == "" {
		namespace = "juru"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PrometheusObserver{
		registry: reg,
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Client sessions accepted",
		}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Client sessions currently open",
		}),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome",
		}, []string{"outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from finalized transcript to last outbound event",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"outcome"}),
		chunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_dropped_total",
			Help:      "Audio chunks that could not be delivered to a recognizer",
		}, []string{"reason"}),
		errorsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_sent_total",
			Help:      "Error events sent to clients",
		}, []string{"reason"}),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	switch ev.Name {
	case EventSessionOpened:
		p.sessionsOpened.Inc()
		p.sessionsActive.Inc()
	case EventSessionClosed:
		p.sessionsActive.Dec()
	case EventTurnCompleted:
		outcome := tag(ev, "outcome")
		p.turnsTotal.WithLabelValues(outcome).Inc()
		p.turnDuration.WithLabelValues(outcome).Observe(ev.Value)
	case EventChunkDropped:
		p.chunksDropped.WithLabelValues(tag(ev, "reason")).Inc()
	case EventErrorSent:
		p.errorsSent.WithLabelValues(tag(ev, "reason")).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusObserver) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func tag(ev MetricsEvent, key string) string {
	if v := ev.Tags[key]; v != "" {
		return v
	}
	return "unknown"
}
