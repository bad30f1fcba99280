// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus collectors for signing operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "padesign"

// Metrics groups the collectors. Each instance owns its registry so that
// tests and embedded daemons do not collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	Operations   *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	PinAttempts  *prometheus.CounterVec
	TokenPresent prometheus.Gauge
	RPCRequests  *prometheus.CounterVec
}

// New returns collectors for a long-running process, Go runtime metrics
// included.
func New() *Metrics {
	m := newMetrics()
	m.Registry.MustRegister(collectors.NewGoCollector())
	return m
}

// NewCommand returns collectors for a single CLI invocation. The runtime
// collector is left out since the snapshot is written to a textfile that a
// node exporter merges with its own go_* series.
func NewCommand() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Signing, verification and key generation outcomes.",
		}, []string{"operation", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of each operation.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		PinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pin_attempts_total",
			Help:      "PIN submissions by result.",
		}, []string{"result"}),
		TokenPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_present",
			Help:      "1 while a token is detected, 0 otherwise.",
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Daemon JSON-RPC requests by method and status.",
		}, []string{"method", "status"}),
	}
	m.Registry.MustRegister(m.Operations, m.Duration, m.PinAttempts, m.TokenPresent, m.RPCRequests)
	return m
}

// ObserveOperation counts one finished operation.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.Duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePinAttempt(result string) {
	if m == nil {
		return
	}
	m.PinAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SetTokenPresent(present bool) {
	if m == nil {
		return
	}
	if present {
		m.TokenPresent.Set(1)
	} else {
		m.TokenPresent.Set(0)
	}
}

func (m *Metrics) ObserveRPC(method, status string) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// WriteTextfile writes the registry in the text exposition format to path,
// replacing the file atomically. A nil receiver or empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
