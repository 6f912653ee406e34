// payment.go: Payment request and response shapes shared by all adapters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"strings"
)

// PaymentRequest is the input of every adapter operation.
type PaymentRequest struct {
	OperationID string            `json:"operationId" yaml:"operationId"`
	Amount      int64             `json:"amount" yaml:"amount"`
	Currency    string            `json:"currency" yaml:"currency"`
	From        string            `json:"from" yaml:"from"`
	To          string            `json:"to" yaml:"to"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate checks the request shape. It does not validate payment
// semantics; that is the adapter's business.
func (r PaymentRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.OperationID) == "":
		return NewInvalidPaymentRequestError("operationId", "must not be blank")
	case r.Amount < 1:
		return NewInvalidPaymentRequestError("amount", "must be at least 1")
	case strings.TrimSpace(r.Currency) == "":
		return NewInvalidPaymentRequestError("currency", "is required")
	case strings.TrimSpace(r.From) == "":
		return NewInvalidPaymentRequestError("from", "must not be blank")
	case strings.TrimSpace(r.To) == "":
		return NewInvalidPaymentRequestError("to", "must not be blank")
	}
	return nil
}

// PaymentResponse is the result of an adapter operation.
type PaymentResponse struct {
	Success bool           `json:"success"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Adapter is the contract every payment processor implementation fulfils.
// Exactly one adapter per ProcessorID is active at any time.
type Adapter interface {
	ID() ProcessorID
	Debit(ctx context.Context, req PaymentRequest) (PaymentResponse, error)
	Reverse(ctx context.Context, req PaymentRequest) (PaymentResponse, error)
	Check(ctx context.Context, req PaymentRequest) (PaymentResponse, error)
}

// Operation names one of the three adapter capabilities.
type Operation string

const (
	OperationDebit   Operation = "debit"
	OperationReverse Operation = "reverse"
	OperationCheck   Operation = "check"
)

// ParseOperation resolves an operation name.
func ParseOperation(name string) (Operation, bool) {
	switch op := Operation(strings.ToLower(name)); op {
	case OperationDebit, OperationReverse, OperationCheck:
		return op, true
	}
	return "", false
}

// Invoke dispatches op to the matching adapter method.
func Invoke(ctx context.Context, adapter Adapter, op Operation, req PaymentRequest) (PaymentResponse, error) {
	switch op {
	case OperationDebit:
		return adapter.Debit(ctx, req)
	case OperationReverse:
		return adapter.Reverse(ctx, req)
	case OperationCheck:
		return adapter.Check(ctx, req)
	}
	return PaymentResponse{}, NewInvalidPaymentRequestError("operation", "is not supported")
}
