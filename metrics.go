// metrics.go: Prometheus instrumentation for registry, loader, watcher and dispatch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "payadapters"

// Metrics groups the collectors exported by the library. All methods are
// safe on a nil receiver so components can run uninstrumented.
type Metrics struct {
	activeAdapters    prometheus.Gauge
	registrations     *prometheus.CounterVec
	reloads           *prometheus.CounterVec
	discoveryAttempts prometheus.Counter
	generation        prometheus.Gauge
	watcherEvents     *prometheus.CounterVec
	dispatches        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves the collectors unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeAdapters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registered_adapters",
			Help:      "Number of adapters currently held by the registry.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Adapter registrations by outcome.",
		}, []string{"outcome"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reloads_total",
			Help:      "Loader runs by result.",
		}, []string{"result"}),
		discoveryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discovery_attempts_total",
			Help:      "Discovery attempts including retries.",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "loading_generation",
			Help:      "Generation number of the live loading context.",
		}),
		watcherEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "watcher_events_total",
			Help:      "Filesystem events seen by the directory watcher by kind.",
		}, []string{"kind"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatches_total",
			Help:      "Adapter operations dispatched by processor, operation and result.",
		}, []string{"processor", "operation", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeAdapters,
			m.registrations,
			m.reloads,
			m.discoveryAttempts,
			m.generation,
			m.watcherEvents,
			m.dispatches,
		)
	}
	return m
}

func (m *Metrics) setActiveAdapters(n int) {
	if m == nil {
		return
	}
	m.activeAdapters.Set(float64(n))
}

func (m *Metrics) incRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incReload(result string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(result).Inc()
}

func (m *Metrics) incDiscoveryAttempt() {
	if m == nil {
		return
	}
	m.discoveryAttempts.Inc()
}

func (m *Metrics) setGeneration(g uint64) {
	if m == nil {
		return
	}
	m.generation.Set(float64(g))
}

func (m *Metrics) incWatcherEvent(kind string) {
	if m == nil {
		return
	}
	m.watcherEvents.WithLabelValues(kind).Inc()
}

// ObserveDispatch records one adapter operation issued by a collaborator.
func (m *Metrics) ObserveDispatch(id ProcessorID, op Operation, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(id.String(), string(op), result).Inc()
}
