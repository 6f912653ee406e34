// uzcard.go: Built-in Uzcard adapter linked into the billing host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package uzcard is the statically linked Uzcard adapter. It is seeded into
// the registry as a built-in and is never removed by a reload.
package uzcard

import (
	"context"

	payadapters "github.com/agilira/pay-adapters"
)

// Retrieval reference number returned by the Uzcard sandbox.
const sandboxRRN = "015352"

// Adapter answers every operation with a successful sandbox response.
type Adapter struct {
	logger payadapters.Logger
}

// New returns the adapter. A nil logger disables logging.
func New(logger payadapters.Logger) *Adapter {
	if logger == nil {
		logger = payadapters.DefaultLogger()
	}
	return &Adapter{logger: logger.With("adapter", payadapters.ProcessorUzcard.String())}
}

// ID implements payadapters.Adapter.
func (a *Adapter) ID() payadapters.ProcessorID {
	return payadapters.ProcessorUzcard
}

// Debit implements payadapters.Adapter.
func (a *Adapter) Debit(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	return a.respond("debit", req, nil), nil
}

// Reverse implements payadapters.Adapter.
func (a *Adapter) Reverse(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	return a.respond("reverse", req, map[string]any{"status": "ROK"}), nil
}

// Check implements payadapters.Adapter.
func (a *Adapter) Check(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	return a.respond("check", req, map[string]any{"status": "OK"}), nil
}

func (a *Adapter) respond(op string, req payadapters.PaymentRequest, extra map[string]any) payadapters.PaymentResponse {
	a.logger.Info("Uzcard request", "operation", op, "operation_id", req.OperationID, "amount", req.Amount)

	payload := map[string]any{"rrn": sandboxRRN}
	for k, v := range extra {
		payload[k] = v
	}
	resp := payadapters.PaymentResponse{
		Success: true,
		Code:    "0",
		Message: "SUCCESS",
		Payload: payload,
	}

	a.logger.Info("Uzcard response", "operation", op, "operation_id", req.OperationID, "code", resp.Code)
	return resp
}
