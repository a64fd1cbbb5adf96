package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors of the gateway.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	InboundTotal    *prometheus.CounterVec
	APIRequestTotal *prometheus.CounterVec
	APIRequestDur   *prometheus.HistogramVec
}

// New registers and returns the gateway collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		InboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netgiro",
			Name:      "inbound_total",
			Help:      "Inbound return and callback deliveries by outcome.",
		}, []string{"entry", "outcome"}),
		APIRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netgiro",
			Name:      "api_requests_total",
			Help:      "Provider API calls by operation and result.",
		}, []string{"operation", "result"}),
		APIRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netgiro",
			Name:      "api_request_duration_seconds",
			Help:      "Provider API call latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"operation"}),
	}
	m.InboundTotal = mustRegister(reg, m.InboundTotal)
	m.APIRequestTotal = mustRegister(reg, m.APIRequestTotal)
	m.APIRequestDur = mustRegister(reg, m.APIRequestDur)
	return m
}

// Inbound counts one return or callback delivery.
func (m *Metrics) Inbound(entry, outcome string) {
	if m == nil {
		return
	}
	m.InboundTotal.WithLabelValues(entry, outcome).Inc()
}

// APIRequest records one provider call.
func (m *Metrics) APIRequest(operation string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.APIRequestTotal.WithLabelValues(operation, result).Inc()
	m.APIRequestDur.WithLabelValues(operation).Observe(d.Seconds())
}

func mustRegister[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register collector: %w", err))
	}
	return c
}
