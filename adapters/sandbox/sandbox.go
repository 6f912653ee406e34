// sandbox.go: Generic sandbox adapter for processors without a native integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package sandbox provides an adapter that approves every well-formed
// request for any processor. It backs the remote adapter server used in
// development and registers the "sandbox" provider:
//
//	- processor: PAYME
//	  provider: sandbox
package sandbox

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	payadapters "github.com/agilira/pay-adapters"
)

// ProviderName is the name manifests use to select this adapter.
const ProviderName = "sandbox"

func init() {
	payadapters.RegisterProvider(ProviderName, Factory)
}

// Adapter approves debits of positive amounts and every reverse or check.
type Adapter struct {
	id     payadapters.ProcessorID
	logger payadapters.Logger
	calls  atomic.Uint64
}

// New returns a sandbox adapter for id.
func New(id payadapters.ProcessorID, logger payadapters.Logger) *Adapter {
	if logger == nil {
		logger = payadapters.DefaultLogger()
	}
	return &Adapter{id: id, logger: logger.With("adapter", id.String(), "sandbox", true)}
}

// Factory builds a sandbox adapter for the processor named in spec.
func Factory(_ context.Context, spec payadapters.AdapterSpec) (payadapters.Adapter, error) {
	if !spec.Processor.Valid() {
		return nil, payadapters.NewInvalidAdapterError("sandbox provider needs a known processor")
	}
	return New(spec.Processor, nil), nil
}

// ID implements payadapters.Adapter.
func (a *Adapter) ID() payadapters.ProcessorID { return a.id }

// Calls returns how many operations the adapter has answered.
func (a *Adapter) Calls() uint64 { return a.calls.Load() }

// Debit implements payadapters.Adapter.
func (a *Adapter) Debit(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	if req.Amount <= 0 {
		return a.respond("debit", req, false, "AMOUNT_INVALID"), nil
	}
	return a.respond("debit", req, true, "APPROVED"), nil
}

// Reverse implements payadapters.Adapter.
func (a *Adapter) Reverse(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	return a.respond("reverse", req, true, "REVERSED"), nil
}

// Check implements payadapters.Adapter.
func (a *Adapter) Check(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	return a.respond("check", req, true, "CONFIRMED"), nil
}

func (a *Adapter) respond(op string, req payadapters.PaymentRequest, ok bool, code string) payadapters.PaymentResponse {
	a.calls.Add(1)
	a.logger.Debug("Sandbox operation", "operation", op, "operation_id", req.OperationID, "code", code)
	return payadapters.PaymentResponse{
		Success: ok,
		Code:    code,
		Message: "sandbox " + op,
		Payload: map[string]any{
			"provider":    a.id.String(),
			"operationId": req.OperationID,
			"reference":   uuid.NewString(),
		},
	}
}
