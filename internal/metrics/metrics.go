// Package metrics exposes the guard state and check results to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"

	"github.com/kubereboot/shutdown-guard/pkg/conditions"
)

const subsystem = "shutdown_guard"

// Metrics holds the collectors of one shutdown-guard process.
type Metrics struct {
	Registry *prometheus.Registry

	targetBlocked    *prometheus.GaugeVec
	checksTotal      *prometheus.CounterVec
	conditionFailure *prometheus.CounterVec
	blockedBy        *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the build info
// and process collectors, on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		targetBlocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "target_blocked",
			Help:      "Shutdown target refuses manual start.",
		}, []string{"target"}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "checks_total",
			Help:      "Condition evaluations by result.",
		}, []string{"result"}),
		conditionFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "condition_failures_total",
			Help:      "Failed evaluations by first failing category.",
		}, []string{"category"}),
		blockedBy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "blocked_by_total",
			Help:      "Failed evaluations by blocker.",
		}, []string{"blocker"}),
	}
	m.Registry.MustRegister(
		m.targetBlocked,
		m.checksTotal,
		m.conditionFailure,
		m.blockedBy,
		version.NewCollector(subsystem),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// TargetChanged records the block state of a shutdown target.
func (m *Metrics) TargetChanged(target string, blocked bool) {
	value := 0.0
	if blocked {
		value = 1
	}
	m.targetBlocked.WithLabelValues(target).Set(value)
}

// CheckDone counts an evaluation by its first failing category and, when a
// blocker failed it, by blocker.
func (m *Metrics) CheckDone(result conditions.Result) {
	if result.Passed {
		m.checksTotal.WithLabelValues("pass").Inc()
		return
	}
	m.checksTotal.WithLabelValues("fail").Inc()
	if result.FailedCategory != "" {
		m.conditionFailure.WithLabelValues(result.FailedCategory).Inc()
	}
	if result.Blocker != "" {
		m.blockedBy.WithLabelValues(result.Blocker).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve listens on host:port and serves /metrics until the listener fails.
func (m *Metrics) Serve(host string, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("Serving metrics on %s", server.Addr)
	return server.ListenAndServe()
}
