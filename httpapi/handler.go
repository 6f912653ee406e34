// handler.go: Payment dispatch and reload endpoints over the adapter registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package httpapi exposes the adapter registry over HTTP:
//
//	GET   /api/v1/pay/adapters              registered processor ids
//	POST  /api/v1/pay/{adapter}/{operation} debit, reverse or check
//	PATCH /api/v1/pay/reload                reload bundles now
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/agilira/go-errors"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	payadapters "github.com/agilira/pay-adapters"
)

// maxRequestBody bounds payment request bodies.
const maxRequestBody = 64 << 10

// Registry is the read side of the adapter registry.
type Registry interface {
	GetIfEnabled(id payadapters.ProcessorID) (payadapters.Adapter, bool)
	ListIDs() []payadapters.ProcessorID
}

// Reloader triggers a bundle reload.
type Reloader interface {
	Reload(ctx context.Context)
}

// Handler serves the payment API.
type Handler struct {
	registry Registry
	reloader Reloader
	logger   payadapters.Logger
	metrics  *payadapters.Metrics
	tracer   trace.Tracer
	timeout  time.Duration

	reloads singleflight.Group
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger payadapters.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records dispatch outcomes.
func WithMetrics(m *payadapters.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

// WithAdapterTimeout bounds every adapter call.
func WithAdapterTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// New creates a handler. reloader may be nil, in which case the reload
// endpoint answers 503.
func New(registry Registry, reloader Reloader, opts ...Option) *Handler {
	h := &Handler{
		registry: registry,
		reloader: reloader,
		logger:   payadapters.DefaultLogger(),
		tracer:   otel.Tracer("github.com/agilira/pay-adapters/httpapi"),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "http_api")
	return h
}

// Register mounts the payment routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/pay", func(r chi.Router) {
		r.Use(requestID(h.logger))
		r.Use(recovery)
		r.Get("/adapters", h.handleAdapters)
		r.Patch("/reload", h.handleReload)
		r.Post("/{adapter}/{operation}", h.handleOperation)
	})
}

func (h *Handler) handleAdapters(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.ListIDs()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) handleOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := payadapters.LoggerFromContext(ctx)

	id, err := payadapters.ParseProcessorID(chi.URLParam(r, "adapter"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	op, ok := payadapters.ParseOperation(chi.URLParam(r, "operation"))
	if !ok {
		writeError(w, http.StatusNotFound, payadapters.NewInvalidPaymentRequestError("operation", "is not one of debit, reverse, check"))
		return
	}

	ctx, span := h.tracer.Start(ctx, "payadapters."+string(op), trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.processor", id.String()),
		attribute.String("payment.operation", string(op)),
	)

	adapter, ok := h.registry.GetIfEnabled(id)
	if !ok {
		span.SetStatus(codes.Error, "adapter not found")
		h.metrics.ObserveDispatch(id, op, "not_found")
		writeError(w, http.StatusNotFound, payadapters.NewAdapterNotFoundError(id.String()))
		return
	}

	var req payadapters.PaymentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		writeError(w, http.StatusBadRequest, payadapters.NewInvalidPaymentRequestError("body", "is not a valid JSON payment request"))
		return
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		writeError(w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.String("payment.operation_id", req.OperationID))

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := payadapters.Invoke(callCtx, adapter, op, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "adapter call failed")
		h.metrics.ObserveDispatch(id, op, "error")
		logger.Error("Adapter call failed", "processor", id.String(), "operation", string(op), "operation_id", req.OperationID, "error", err)
		writeError(w, http.StatusBadGateway, payadapters.NewAdapterCallFailedError(id, string(op), err))
		return
	}

	result := "ok"
	if !resp.Success {
		result = "declined"
	}
	h.metrics.ObserveDispatch(id, op, result)
	span.SetAttributes(attribute.Bool("payment.success", resp.Success), attribute.String("payment.code", resp.Code))
	logger.Info("Payment operation completed", "processor", id.String(), "operation", string(op), "operation_id", req.OperationID, "success", resp.Success)

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		writeError(w, http.StatusServiceUnavailable, stderrors.New("reload is not available"))
		return
	}

	// Concurrent requests share one reload; the reload is not tied to any
	// single request's lifetime.
	ctx := context.WithoutCancel(r.Context())
	_, _, shared := h.reloads.Do("reload", func() (any, error) {
		h.reloader.Reload(ctx)
		return nil, nil
	})
	payadapters.LoggerFromContext(r.Context()).Info("Reload requested over HTTP", "shared", shared)

	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Code: "INTERNAL", Message: http.StatusText(status)}
	var e *errors.Error
	if stderrors.As(err, &e) {
		body.Code = string(e.ErrorCode())
		if msg := e.UserMessage(); msg != "" {
			body.Message = msg
		}
	} else if err != nil {
		body.Message = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
