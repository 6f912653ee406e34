// remote_http.go: HTTP JSON provider for adapters served out of process
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// maxRemoteResponse bounds the body read from a remote adapter.
const maxRemoteResponse = 1 << 20

// HTTPAdapter is an Adapter that POSTs each operation as JSON to
// <endpoint>/debit, <endpoint>/reverse or <endpoint>/check.
type HTTPAdapter struct {
	id      ProcessorID
	baseURL string
	timeout time.Duration
	headers map[string]string
	client  *http.Client
	owned   bool
}

// NewHTTPAdapterFactory returns the "http" provider. A nil client gives
// every adapter its own pooled client, closed with the loading context.
// Manifest options prefixed with "header." become request headers.
func NewHTTPAdapterFactory(client *http.Client) ProviderFactory {
	return func(_ context.Context, spec AdapterSpec) (Adapter, error) {
		base := strings.TrimRight(strings.TrimSpace(spec.Endpoint), "/")
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, NewInvalidEndpointError(spec.Endpoint)
		}

		headers := make(map[string]string)
		for k, v := range spec.Options {
			if name, ok := strings.CutPrefix(k, "header."); ok && name != "" {
				headers[name] = v
			}
		}

		a := &HTTPAdapter{
			id:      spec.Processor,
			baseURL: base,
			timeout: spec.Timeout.Std(),
			headers: headers,
			client:  client,
		}
		if a.client == nil {
			a.client = &http.Client{
				Transport: &http.Transport{
					DialContext: (&net.Dialer{
						Timeout:   5 * time.Second,
						KeepAlive: 30 * time.Second,
					}).DialContext,
					MaxIdleConns:        16,
					MaxIdleConnsPerHost: 4,
					IdleConnTimeout:     90 * time.Second,
				},
			}
			a.owned = true
		}
		return a, nil
	}
}

// ID implements Adapter.
func (a *HTTPAdapter) ID() ProcessorID { return a.id }

// Debit implements Adapter.
func (a *HTTPAdapter) Debit(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return a.post(ctx, OperationDebit, req)
}

// Reverse implements Adapter.
func (a *HTTPAdapter) Reverse(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return a.post(ctx, OperationReverse, req)
}

// Check implements Adapter.
func (a *HTTPAdapter) Check(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return a.post(ctx, OperationCheck, req)
}

// Close drops idle connections of a client the adapter created itself.
func (a *HTTPAdapter) Close() error {
	if a.owned {
		a.client.CloseIdleConnections()
	}
	return nil
}

func (a *HTTPAdapter) post(ctx context.Context, op Operation, req PaymentRequest) (PaymentResponse, error) {
	target := a.baseURL + "/" + string(op)

	body, err := json.Marshal(req)
	if err != nil {
		return PaymentResponse{}, NewHTTPTransportError(target, 0, fmt.Errorf("failed to serialize request: %w", err))
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("github.com/agilira/pay-adapters").Start(ctx, "HTTP POST "+string(op), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.processor", a.id.String()),
		attribute.String("http.url", target),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return PaymentResponse{}, NewHTTPTransportError(target, 0, err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "pay-adapters/1.0")
	httpReq.Header.Set("X-Operation-ID", req.OperationID)
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client error")
		return PaymentResponse{}, NewHTTPTransportError(target, 0, err)
	}
	defer func() { _ = httpResp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "error status")
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxRemoteResponse))
		return PaymentResponse{}, NewHTTPTransportError(target, httpResp.StatusCode, nil)
	}

	var resp PaymentResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxRemoteResponse)).Decode(&resp); err != nil {
		return PaymentResponse{}, NewHTTPTransportError(target, httpResp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return resp, nil
}

// NewAdapterHTTPHandler serves adapter in the shape the "http" provider
// expects: POST /debit, /reverse and /check with a JSON PaymentRequest.
func NewAdapterHTTPHandler(adapter Adapter) http.Handler {
	mux := http.NewServeMux()
	for _, op := range []Operation{OperationDebit, OperationReverse, OperationCheck} {
		mux.HandleFunc("POST /"+string(op), func(w http.ResponseWriter, r *http.Request) {
			var req PaymentRequest
			if err := json.NewDecoder(io.LimitReader(r.Body, maxRemoteResponse)).Decode(&req); err != nil {
				http.Error(w, "invalid payment request", http.StatusBadRequest)
				return
			}
			if err := req.Validate(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			resp, err := callRecoveredResponse(func() (PaymentResponse, error) {
				return Invoke(r.Context(), adapter, op, req)
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		})
	}
	return mux
}
