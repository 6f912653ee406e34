// router.go: Top-level router with health and metrics endpoints
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxGoroutines fails liveness when exceeded.
const maxGoroutines = 10000

// RouterConfig holds the pieces NewRouter wires together.
type RouterConfig struct {
	Handler *Handler

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Ready reports whether the service can take payments. Nil means at
	// least one adapter must be registered.
	Ready func() error
}

// NewRouter returns the service router: the payment API plus /live,
// /ready and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	ready := cfg.Ready
	if ready == nil {
		registry := cfg.Handler.registry
		ready = func() error {
			if len(registry.ListIDs()) == 0 {
				return fmt.Errorf("no adapters registered")
			}
			return nil
		}
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("adapters", ready)
	r.Handle("/live", health)
	r.Handle("/ready", health)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	cfg.Handler.Register(r)
	return r
}
