// errors.go: structured error definitions for the pay-adapters system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for the pay-adapters system
const (
	// Configuration errors (1000-1099)
	ErrCodeConfigNotFound        = "CONFIG_1001"
	ErrCodeConfigParseError      = "CONFIG_1002"
	ErrCodeConfigValidationError = "CONFIG_1003"
	ErrCodeConfigWatcherError    = "CONFIG_1004"
	ErrCodeInvalidReloadPolicy   = "CONFIG_1005"

	// Bundle errors (1100-1199)
	ErrCodeBundleDirUnavailable  = "BUNDLE_1101"
	ErrCodeManifestParseError    = "BUNDLE_1102"
	ErrCodeUnknownProvider       = "BUNDLE_1103"
	ErrCodeProviderFailed        = "BUNDLE_1104"
	ErrCodeNativeBundleError     = "BUNDLE_1105"
	ErrCodeIntegrityMismatch     = "BUNDLE_1106"
	ErrCodeContextDisposeFailed  = "BUNDLE_1107"
	ErrCodeUnsupportedBundleType = "BUNDLE_1108"
	ErrCodeBundleReadError       = "BUNDLE_1109"
	ErrCodeInvalidBreakerOption  = "BUNDLE_1110"

	// Discovery errors (1200-1299)
	ErrCodeEmptyDiscovery = "DISCOVERY_1201"

	// Registry errors (1300-1399)
	ErrCodeRegistrationFailed = "REGISTRY_1301"
	ErrCodeInvalidAdapter     = "REGISTRY_1302"
	ErrCodeAdapterNotFound    = "REGISTRY_1303"

	// Processor errors (1400-1499)
	ErrCodeUnknownProcessor = "PROCESSOR_1401"

	// Transport errors (1500-1599)
	ErrCodeGRPCTransportError = "TRANSPORT_1501"
	ErrCodeHTTPTransportError = "TRANSPORT_1502"
	ErrCodeInvalidEndpoint    = "TRANSPORT_1503"
	ErrCodeCircuitOpen        = "TRANSPORT_1504"

	// Payment errors (1600-1699)
	ErrCodeInvalidPaymentRequest = "PAYMENT_1601"
	ErrCodeAdapterCallFailed     = "PAYMENT_1602"

	// Watcher errors (1700-1799)
	ErrCodeWatchSubscribeFailed = "WATCHER_1701"
)

// Configuration error constructors

func NewConfigNotFoundError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The configuration file could not be read").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Configuration parse error").
		WithUserMessage("The configuration file is not valid YAML or JSON").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigValidationError, message).
			WithUserMessage("Configuration validation failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigValidationError, message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigWatcherError, message).
		WithUserMessage("Configuration watcher failed").
		WithSeverity("error")
}

func NewInvalidReloadPolicyError(policy string) *errors.Error {
	return errors.New(ErrCodeInvalidReloadPolicy, "Invalid reload policy").
		WithUserMessage("Reload policy must be last-known-good or fail-safe-empty").
		WithContext("reload_policy", policy).
		WithSeverity("error")
}

// Bundle error constructors

func NewBundleDirUnavailableError(dir string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeBundleDirUnavailable, "Bundle directory unavailable").
			WithUserMessage("The plugin directory does not exist or is not a directory").
			WithContext("dir", dir).
			WithSeverity("warning")
	}
	return errors.New(ErrCodeBundleDirUnavailable, "Bundle directory unavailable").
		WithUserMessage("The plugin directory does not exist or is not a directory").
		WithContext("dir", dir).
		WithSeverity("warning")
}

func NewManifestParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestParseError, "Bundle manifest parse error").
		WithUserMessage("The bundle manifest is not valid YAML or JSON").
		WithContext("bundle", path).
		WithSeverity("error")
}

func NewUnknownProviderError(provider string) *errors.Error {
	return errors.New(ErrCodeUnknownProvider, "Unknown adapter provider").
		WithUserMessage("The bundle references a provider that is not registered").
		WithContext("provider", provider).
		WithSeverity("error")
}

func NewProviderFailedError(provider string, processor ProcessorID, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeProviderFailed, "Adapter provider failed").
		WithUserMessage("The provider could not build the adapter").
		WithContext("provider", provider).
		WithContext("processor", processor.String()).
		WithSeverity("error")
}

func NewNativeBundleError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeNativeBundleError, "Native bundle error").
		WithUserMessage("The native bundle could not be opened").
		WithContext("bundle", path).
		WithSeverity("error")
}

func NewIntegrityMismatchError(path, expected, actual string) *errors.Error {
	return errors.New(ErrCodeIntegrityMismatch, "Bundle checksum mismatch").
		WithUserMessage("The bundle file does not match its configured checksum").
		WithContext("bundle", path).
		WithContext("expected", expected).
		WithContext("actual", actual).
		WithSeverity("error")
}

func NewContextDisposeError(generation uint64, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeContextDisposeFailed, "Loading context dispose failed").
		WithUserMessage("Resources of a previous load could not be released").
		WithContext("generation", generation).
		WithSeverity("warning")
}

func NewUnsupportedBundleTypeError(path string) *errors.Error {
	return errors.New(ErrCodeUnsupportedBundleType, "Unsupported bundle type").
		WithUserMessage("No opener is registered for this bundle extension").
		WithContext("bundle", path).
		WithSeverity("error")
}

func NewBundleReadError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeBundleReadError, "Bundle read error").
		WithUserMessage("The bundle file could not be read").
		WithContext("bundle", path).
		WithSeverity("error").
		AsRetryable()
}

func NewInvalidBreakerOptionError(option, value string) *errors.Error {
	return errors.New(ErrCodeInvalidBreakerOption, "Invalid circuit breaker option").
		WithUserMessage(fmt.Sprintf("%s must be positive, got %q", option, value)).
		WithContext("option", option).
		WithSeverity("error")
}

// Discovery error constructors

func NewEmptyDiscoveryError(dir string, attempts int) *errors.Error {
	return errors.New(ErrCodeEmptyDiscovery, "No adapters discovered").
		WithUserMessage("Bundles were found but none advertised an adapter").
		WithContext("dir", dir).
		WithContext("attempts", attempts).
		WithSeverity("warning").
		AsRetryable()
}

// Registry error constructors

func NewRegistrationFailedError(processor ProcessorID, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRegistrationFailed, "Adapter registration failed").
		WithUserMessage("The adapter could not be registered").
		WithContext("processor", processor.String()).
		WithSeverity("error")
}

func NewInvalidAdapterError(reason string) *errors.Error {
	return errors.New(ErrCodeInvalidAdapter, "Invalid adapter").
		WithUserMessage("The adapter is nil or reports an unknown processor").
		WithContext("reason", reason).
		WithSeverity("error")
}

func NewAdapterNotFoundError(processor string) *errors.Error {
	return errors.New(ErrCodeAdapterNotFound, "Adapter not found").
		WithUserMessage("No enabled adapter is registered for this processor").
		WithContext("processor", processor).
		WithSeverity("warning")
}

// Processor error constructors

func NewUnknownProcessorError(name string) *errors.Error {
	return errors.New(ErrCodeUnknownProcessor, fmt.Sprintf("Unknown processor %q", name)).
		WithUserMessage("Processor must be one of UZCARD, HUMO, CLICK, PAYME").
		WithContext("processor", name).
		WithSeverity("error")
}

// Transport error constructors

func NewGRPCTransportError(method string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeGRPCTransportError, "gRPC adapter call failed").
		WithUserMessage("The remote adapter did not answer").
		WithContext("method", method).
		WithSeverity("error").
		AsRetryable()
}

func NewHTTPTransportError(url string, status int, cause error) *errors.Error {
	msg := "HTTP adapter call failed"
	if cause == nil {
		return errors.New(ErrCodeHTTPTransportError, msg).
			WithUserMessage("The remote adapter answered with an error status").
			WithContext("url", url).
			WithContext("status", status).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeHTTPTransportError, msg).
		WithUserMessage("The remote adapter did not answer").
		WithContext("url", url).
		WithContext("status", status).
		WithSeverity("error").
		AsRetryable()
}

func NewInvalidEndpointError(endpoint string) *errors.Error {
	return errors.New(ErrCodeInvalidEndpoint, "Invalid adapter endpoint").
		WithUserMessage("Remote adapters require a non-empty endpoint").
		WithContext("endpoint", endpoint).
		WithSeverity("error")
}

func NewCircuitOpenError(processor ProcessorID, operation string) *errors.Error {
	return errors.New(ErrCodeCircuitOpen, "Remote adapter circuit is open").
		WithUserMessage("The remote adapter is failing; calls are suspended").
		WithContext("processor", processor.String()).
		WithContext("operation", operation).
		WithSeverity("warning").
		AsRetryable()
}

// Payment error constructors

func NewInvalidPaymentRequestError(field, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidPaymentRequest, "Invalid payment request").
		WithUserMessage(fmt.Sprintf("%s %s", field, reason)).
		WithContext("field", field).
		WithSeverity("error")
}

func NewAdapterCallFailedError(processor ProcessorID, operation string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeAdapterCallFailed, "Adapter call failed").
		WithUserMessage("The payment processor adapter returned an error").
		WithContext("processor", processor.String()).
		WithContext("operation", operation).
		WithSeverity("error")
}

// Watcher error constructors

func NewWatchSubscribeError(dir string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeWatchSubscribeFailed, "Directory watch subscription failed").
		WithUserMessage("The plugin directory could not be watched").
		WithContext("dir", dir).
		WithSeverity("error")
}
