// circuit_breaker.go: Circuit breaker guarding remote adapters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// Manifest options enabling the breaker on a remote adapter entry:
//
//	options:
//	  breaker.failures: "5"
//	  breaker.recovery: 30s
const (
	optionBreakerFailures = "breaker.failures"
	optionBreakerRecovery = "breaker.recovery"
)

// CircuitBreakerState is the operational state of a circuit breaker.
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed calls that
	// opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a trial
	// call is let through.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successful trial calls that close a
	// half-open circuit.
	SuccessThreshold int
}

// CircuitBreaker fails remote adapter calls fast while the remote side is
// down. Only transport errors count as failures; a declined payment is a
// successful call.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state           atomic.Int32
	failureCount    atomic.Int64
	successCount    atomic.Int64
	trialCount      atomic.Int64
	lastFailureTime atomic.Int64

	mu sync.Mutex
}

// NewCircuitBreaker returns a closed breaker. Zero thresholds default to 5
// failures, one success and a 30s recovery.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	cb := &CircuitBreaker{config: config}
	cb.state.Store(int32(StateClosed))
	return cb
}

// AllowRequest reports whether a call may proceed. An open circuit turns
// half-open once the recovery timeout has elapsed.
func (cb *CircuitBreaker) AllowRequest() bool {
	switch CircuitBreakerState(cb.state.Load()) {
	case StateClosed:
		return true

	case StateOpen:
		if !cb.shouldAttemptRecovery() {
			return false
		}
		cb.mu.Lock()
		if CircuitBreakerState(cb.state.Load()) == StateOpen && cb.shouldAttemptRecovery() {
			cb.state.Store(int32(StateHalfOpen))
			cb.resetCounters()
		}
		cb.mu.Unlock()
		return cb.allowProbe()

	case StateHalfOpen:
		return cb.allowProbe()

	default:
		return false
	}
}

func (cb *CircuitBreaker) allowProbe() bool {
	if CircuitBreakerState(cb.state.Load()) != StateHalfOpen {
		return CircuitBreakerState(cb.state.Load()) == StateClosed
	}
	return cb.trialCount.Add(1) <= int64(cb.config.SuccessThreshold)
}

// RecordSuccess records a completed call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failureCount.Store(0)
	successes := cb.successCount.Add(1)

	if CircuitBreakerState(cb.state.Load()) == StateHalfOpen && successes >= int64(cb.config.SuccessThreshold) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if CircuitBreakerState(cb.state.Load()) == StateHalfOpen {
			cb.state.Store(int32(StateClosed))
			cb.resetCounters()
		}
	}
}

// RecordFailure records a failed call. Any failure while half-open reopens
// the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	failures := cb.failureCount.Add(1)
	cb.lastFailureTime.Store(timecache.CachedTimeNano())

	state := CircuitBreakerState(cb.state.Load())
	if state == StateHalfOpen || (state == StateClosed && failures >= int64(cb.config.FailureThreshold)) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		cb.state.Store(int32(StateOpen))
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return CircuitBreakerState(cb.state.Load())
}

// Reset closes the circuit and clears the counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(int32(StateClosed))
	cb.resetCounters()
}

func (cb *CircuitBreaker) shouldAttemptRecovery() bool {
	last := cb.lastFailureTime.Load()
	if last == 0 {
		return true
	}
	return timecache.CachedTimeNano()-last >= int64(cb.config.RecoveryTimeout)
}

// resetCounters must be called with mu held.
func (cb *CircuitBreaker) resetCounters() {
	cb.failureCount.Store(0)
	cb.successCount.Store(0)
	cb.trialCount.Store(0)
}

// breakerAdapter guards every operation of an adapter with a breaker.
type breakerAdapter struct {
	Adapter
	breaker *CircuitBreaker
}

func (b *breakerAdapter) Debit(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return b.call(ctx, OperationDebit, req)
}

func (b *breakerAdapter) Reverse(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return b.call(ctx, OperationReverse, req)
}

func (b *breakerAdapter) Check(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	return b.call(ctx, OperationCheck, req)
}

// Close closes the wrapped adapter when it owns resources.
func (b *breakerAdapter) Close() error {
	if c, ok := b.Adapter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *breakerAdapter) call(ctx context.Context, op Operation, req PaymentRequest) (PaymentResponse, error) {
	if !b.breaker.AllowRequest() {
		return PaymentResponse{}, NewCircuitOpenError(b.ID(), string(op))
	}
	resp, err := Invoke(ctx, b.Adapter, op, req)
	if err != nil {
		b.breaker.RecordFailure()
		return resp, err
	}
	b.breaker.RecordSuccess()
	return resp, nil
}

// withCircuitBreaker wraps a provider so that entries carrying the
// breaker.* options get a breaker in front of the adapter.
func withCircuitBreaker(factory ProviderFactory) ProviderFactory {
	return func(ctx context.Context, spec AdapterSpec) (Adapter, error) {
		config, enabled, err := breakerConfigFromOptions(spec.Options)
		if err != nil {
			return nil, err
		}
		adapter, err := factory(ctx, spec)
		if err != nil || !enabled {
			return adapter, err
		}
		return &breakerAdapter{Adapter: adapter, breaker: NewCircuitBreaker(config)}, nil
	}
}

func breakerConfigFromOptions(options map[string]string) (CircuitBreakerConfig, bool, error) {
	var config CircuitBreakerConfig
	raw, ok := options[optionBreakerFailures]
	if !ok {
		return config, false, nil
	}
	failures, err := strconv.Atoi(raw)
	if err != nil || failures <= 0 {
		return config, false, NewInvalidBreakerOptionError(optionBreakerFailures, raw)
	}
	config.FailureThreshold = failures
	if raw, ok := options[optionBreakerRecovery]; ok {
		recovery, err := time.ParseDuration(raw)
		if err != nil || recovery <= 0 {
			return config, false, NewInvalidBreakerOptionError(optionBreakerRecovery, raw)
		}
		config.RecoveryTimeout = recovery
	}
	return config, true, nil
}
