// errors_test.go: test coverage for structured error definitions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
)

type errorExpectation struct {
	name       string
	err        *errors.Error
	code       string
	severity   string
	retryable  bool
	contextKey string
	wantCause  bool
}

func checkError(t *testing.T, tc errorExpectation) {
	t.Helper()
	if tc.err == nil {
		t.Fatal("Expected error, got nil")
	}
	if tc.err.ErrorCode() != errors.ErrorCode(tc.code) {
		t.Errorf("Expected error code %s, got %s", tc.code, tc.err.ErrorCode())
	}
	if tc.err.Severity != tc.severity {
		t.Errorf("Expected severity %q, got %q", tc.severity, tc.err.Severity)
	}
	if tc.err.IsRetryable() != tc.retryable {
		t.Errorf("Expected retryable=%v, got %v", tc.retryable, tc.err.IsRetryable())
	}
	if tc.contextKey != "" {
		if _, ok := tc.err.Context[tc.contextKey]; !ok {
			t.Errorf("Expected context key %q, got %v", tc.contextKey, tc.err.Context)
		}
	}
	if tc.wantCause && tc.err.Cause == nil {
		t.Error("Expected wrapped cause")
	}
	if tc.err.UserMessage() == "" {
		t.Error("Expected a user message")
	}
	if tc.err.Error() == "" {
		t.Error("Expected a non-empty error string")
	}
}

// TestConfigurationErrorConstructors tests configuration-related error constructors
func TestConfigurationErrorConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	cases := []errorExpectation{
		{name: "ConfigNotFound", err: NewConfigNotFoundError("/etc/billing.yaml", cause),
			code: ErrCodeConfigNotFound, severity: "error", contextKey: "path", wantCause: true},
		{name: "ConfigParse", err: NewConfigParseError("/etc/billing.yaml", cause),
			code: ErrCodeConfigParseError, severity: "error", contextKey: "path", wantCause: true},
		{name: "ConfigValidationWithCause", err: NewConfigValidationError("bad dir", cause),
			code: ErrCodeConfigValidationError, severity: "error", wantCause: true},
		{name: "ConfigValidation", err: NewConfigValidationError("bad dir", nil),
			code: ErrCodeConfigValidationError, severity: "error"},
		{name: "ConfigWatcher", err: NewConfigWatcherError("watch failed", cause),
			code: ErrCodeConfigWatcherError, severity: "error", wantCause: true},
		{name: "InvalidReloadPolicy", err: NewInvalidReloadPolicyError("yolo"),
			code: ErrCodeInvalidReloadPolicy, severity: "error", contextKey: "reload_policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { checkError(t, tc) })
	}
}

// TestBundleErrorConstructors tests bundle and discovery error constructors
func TestBundleErrorConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	cases := []errorExpectation{
		{name: "DirUnavailable", err: NewBundleDirUnavailableError("/plugins", cause),
			code: ErrCodeBundleDirUnavailable, severity: "warning", contextKey: "dir", wantCause: true},
		{name: "DirUnavailableNoCause", err: NewBundleDirUnavailableError("/plugins", nil),
			code: ErrCodeBundleDirUnavailable, severity: "warning", contextKey: "dir"},
		{name: "ManifestParse", err: NewManifestParseError("humo.bundle", cause),
			code: ErrCodeManifestParseError, severity: "error", contextKey: "bundle", wantCause: true},
		{name: "UnknownProvider", err: NewUnknownProviderError("nope"),
			code: ErrCodeUnknownProvider, severity: "error", contextKey: "provider"},
		{name: "ProviderFailed", err: NewProviderFailedError("grpc", ProcessorClick, cause),
			code: ErrCodeProviderFailed, severity: "error", contextKey: "processor", wantCause: true},
		{name: "NativeBundle", err: NewNativeBundleError("click.so", cause),
			code: ErrCodeNativeBundleError, severity: "error", contextKey: "bundle", wantCause: true},
		{name: "IntegrityMismatch", err: NewIntegrityMismatchError("humo.bundle", "aa", "bb"),
			code: ErrCodeIntegrityMismatch, severity: "error", contextKey: "actual"},
		{name: "ContextDispose", err: NewContextDisposeError(3, cause),
			code: ErrCodeContextDisposeFailed, severity: "warning", contextKey: "generation", wantCause: true},
		{name: "UnsupportedBundleType", err: NewUnsupportedBundleTypeError("x.zip"),
			code: ErrCodeUnsupportedBundleType, severity: "error", contextKey: "bundle"},
		{name: "BundleRead", err: NewBundleReadError("humo.bundle", cause),
			code: ErrCodeBundleReadError, severity: "error", retryable: true, contextKey: "bundle", wantCause: true},
		{name: "EmptyDiscovery", err: NewEmptyDiscoveryError("/plugins", 3),
			code: ErrCodeEmptyDiscovery, severity: "warning", retryable: true, contextKey: "attempts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { checkError(t, tc) })
	}
}

// TestRuntimeErrorConstructors tests registry, transport, payment and watcher errors
func TestRuntimeErrorConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")
	cases := []errorExpectation{
		{name: "RegistrationFailed", err: NewRegistrationFailedError(ProcessorHumo, cause),
			code: ErrCodeRegistrationFailed, severity: "error", contextKey: "processor", wantCause: true},
		{name: "InvalidAdapter", err: NewInvalidAdapterError("nil"),
			code: ErrCodeInvalidAdapter, severity: "error", contextKey: "reason"},
		{name: "AdapterNotFound", err: NewAdapterNotFoundError("HUMO"),
			code: ErrCodeAdapterNotFound, severity: "warning", contextKey: "processor"},
		{name: "UnknownProcessor", err: NewUnknownProcessorError("VISA"),
			code: ErrCodeUnknownProcessor, severity: "error", contextKey: "processor"},
		{name: "GRPCTransport", err: NewGRPCTransportError("/x/Debit", cause),
			code: ErrCodeGRPCTransportError, severity: "error", retryable: true, contextKey: "method", wantCause: true},
		{name: "HTTPStatus", err: NewHTTPTransportError("http://x/debit", 500, nil),
			code: ErrCodeHTTPTransportError, severity: "error", contextKey: "status"},
		{name: "HTTPTransport", err: NewHTTPTransportError("http://x/debit", 0, cause),
			code: ErrCodeHTTPTransportError, severity: "error", retryable: true, contextKey: "url", wantCause: true},
		{name: "InvalidEndpoint", err: NewInvalidEndpointError(""),
			code: ErrCodeInvalidEndpoint, severity: "error", contextKey: "endpoint"},
		{name: "InvalidPaymentRequest", err: NewInvalidPaymentRequestError("amount", "must be positive"),
			code: ErrCodeInvalidPaymentRequest, severity: "error", contextKey: "field"},
		{name: "AdapterCallFailed", err: NewAdapterCallFailedError(ProcessorPayme, "debit", cause),
			code: ErrCodeAdapterCallFailed, severity: "error", contextKey: "operation", wantCause: true},
		{name: "WatchSubscribe", err: NewWatchSubscribeError("/plugins", cause),
			code: ErrCodeWatchSubscribeFailed, severity: "error", contextKey: "dir", wantCause: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { checkError(t, tc) })
	}
}

func TestInvalidPaymentRequestUserMessage(t *testing.T) {
	err := NewInvalidPaymentRequestError("amount", "must be positive")
	if err.UserMessage() != "amount must be positive" {
		t.Errorf("Expected user message %q, got %q", "amount must be positive", err.UserMessage())
	}
}
