// humo.go: Humo adapter delivered through plugin bundles
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package humo provides the Humo adapter. Importing the package registers
// the "humo" provider, so a bundle manifest entry
//
//	- processor: HUMO
//	  provider: humo
//
// makes the adapter available after the next reload.
package humo

import (
	"context"

	payadapters "github.com/agilira/pay-adapters"
)

// ProviderName is the name manifests use to select this adapter.
const ProviderName = "humo"

func init() {
	payadapters.RegisterProvider(ProviderName, Factory)
}

// Adapter is the Humo processor adapter.
type Adapter struct {
	logger payadapters.Logger
}

// New returns the adapter. A nil logger disables logging.
func New(logger payadapters.Logger) *Adapter {
	if logger == nil {
		logger = payadapters.DefaultLogger()
	}
	return &Adapter{logger: logger.With("adapter", payadapters.ProcessorHumo.String())}
}

// Factory is the ProviderFactory for manifest entries naming "humo". The
// entry must advertise the HUMO processor. The adapter logs through the
// logger carried by ctx.
func Factory(ctx context.Context, spec payadapters.AdapterSpec) (payadapters.Adapter, error) {
	if spec.Processor != payadapters.ProcessorHumo {
		return nil, payadapters.NewInvalidAdapterError("humo provider only serves " + payadapters.ProcessorHumo.String())
	}
	return New(payadapters.LoggerFromContext(ctx)), nil
}

// ID implements payadapters.Adapter.
func (a *Adapter) ID() payadapters.ProcessorID {
	return payadapters.ProcessorHumo
}

// Debit accepts any positive amount.
func (a *Adapter) Debit(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	a.logger.Info("Humo debit request", "operation_id", req.OperationID, "amount", req.Amount)

	ok := req.Amount > 0
	resp := payadapters.PaymentResponse{
		Success: ok,
		Code:    "OK",
		Message: "Debited via Humo",
		Payload: a.payload(req),
	}
	if !ok {
		resp.Code = "AMOUNT_INVALID"
		resp.Message = "Amount must be > 0"
	}

	a.logger.Info("Humo debit response", "operation_id", req.OperationID, "success", resp.Success, "code", resp.Code)
	return resp, nil
}

// Reverse implements payadapters.Adapter.
func (a *Adapter) Reverse(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	a.logger.Info("Humo reverse request", "operation_id", req.OperationID)
	return payadapters.PaymentResponse{
		Success: true,
		Code:    "REV_OK",
		Message: "Reverse accepted via Humo",
		Payload: a.payload(req),
	}, nil
}

// Check implements payadapters.Adapter.
func (a *Adapter) Check(_ context.Context, req payadapters.PaymentRequest) (payadapters.PaymentResponse, error) {
	a.logger.Info("Humo check request", "operation_id", req.OperationID)
	return payadapters.PaymentResponse{
		Success: true,
		Code:    "CHK_OK",
		Message: "Payment is confirmed via Humo",
		Payload: a.payload(req),
	}, nil
}

func (a *Adapter) payload(req payadapters.PaymentRequest) map[string]any {
	return map[string]any{
		"provider":    a.ID().String(),
		"operationId": req.OperationID,
	}
}
