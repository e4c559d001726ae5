package meter

import (
	"github.com/prometheus/client_golang/prometheus"

	llmr "github.com/aws-samples/llmresilience"
)

// PromMeter exports dispatch outcomes as Prometheus metrics.
type PromMeter struct {
	Inflight *prometheus.GaugeVec
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

var _ llmr.Meter = (*PromMeter)(nil)

// NewPromMeter creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	m := &PromMeter{
		Inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llmr_inflight_requests",
				Help: "Calls submitted to a backend and not yet resolved",
			},
			[]string{"group"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmr_requests_total",
				Help: "Total number of dispatched calls by outcome",
			},
			[]string{"status", "group", "label"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmr_request_seconds",
				Help:    "Wall-clock duration of a dispatched call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status", "group"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Inflight, m.Requests, m.Latency)
	}
	return m
}

func (m *PromMeter) OnDispatch(e llmr.DispatchEvent) {
	m.Inflight.WithLabelValues(e.Group).Inc()
}

func (m *PromMeter) OnOutcome(e llmr.OutcomeEvent) {
	o := e.Outcome
	m.Inflight.WithLabelValues(o.Group).Dec()
	m.Requests.WithLabelValues(o.Status.String(), o.Group, o.Label).Inc()
	m.Latency.WithLabelValues(o.Status.String(), o.Group).Observe(o.Duration.Seconds())
}
