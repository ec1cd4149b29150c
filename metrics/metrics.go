// Package metrics exposes sign-in and session outcomes to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskflowhq/go-auth"
)

const namespace = "taskflow_auth"

// Collector implements auth.MetricsRecorder.
type Collector struct {
	signIns  *prometheus.CounterVec
	failures *prometheus.CounterVec
	sessions *prometheus.CounterVec
}

var _ auth.MetricsRecorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_total",
			Help:      "Sign-in attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_failures_total",
			Help:      "Failed sign-ins by method and failure kind.",
		}, []string{"method", "kind"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_materializations_total",
			Help:      "Session token reads by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(c.signIns, c.failures, c.sessions)
	return c
}

// RecordSignIn implements auth.MetricsRecorder.
func (c *Collector) RecordSignIn(method string, kind auth.FailureKind) {
	if method == "" {
		method = "unknown"
	}
	if kind == auth.FailureNone {
		c.signIns.WithLabelValues(method, "success").Inc()
		return
	}
	c.signIns.WithLabelValues(method, "failure").Inc()
	c.failures.WithLabelValues(method, string(kind)).Inc()
}

// RecordSessionMaterialized implements auth.MetricsRecorder.
func (c *Collector) RecordSessionMaterialized(ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	c.sessions.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
