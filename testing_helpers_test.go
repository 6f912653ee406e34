// testing_helpers_test.go: Shared fakes and fixtures for package tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// stubAdapter answers every operation with its label as response code.
type stubAdapter struct {
	id     ProcessorID
	label  string
	closed atomic.Bool
}

func newStubAdapter(id ProcessorID, label string) *stubAdapter {
	return &stubAdapter{id: id, label: label}
}

func (s *stubAdapter) ID() ProcessorID { return s.id }

func (s *stubAdapter) Debit(_ context.Context, req PaymentRequest) (PaymentResponse, error) {
	return s.respond("debit", req), nil
}

func (s *stubAdapter) Reverse(_ context.Context, req PaymentRequest) (PaymentResponse, error) {
	return s.respond("reverse", req), nil
}

func (s *stubAdapter) Check(_ context.Context, req PaymentRequest) (PaymentResponse, error) {
	return s.respond("check", req), nil
}

func (s *stubAdapter) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *stubAdapter) respond(op string, req PaymentRequest) PaymentResponse {
	return PaymentResponse{
		Success: true,
		Code:    s.label,
		Message: op,
		Payload: map[string]any{"operationId": req.OperationID},
	}
}

// failingAdapter returns an error from every operation.
type failingAdapter struct {
	id ProcessorID
}

func (f failingAdapter) ID() ProcessorID { return f.id }
func (f failingAdapter) Debit(context.Context, PaymentRequest) (PaymentResponse, error) {
	return PaymentResponse{}, errors.New("processor offline")
}
func (f failingAdapter) Reverse(context.Context, PaymentRequest) (PaymentResponse, error) {
	return PaymentResponse{}, errors.New("processor offline")
}
func (f failingAdapter) Check(context.Context, PaymentRequest) (PaymentResponse, error) {
	return PaymentResponse{}, errors.New("processor offline")
}

// stubCatalog tracks every adapter its "stub" provider built. The label of
// each adapter comes from the manifest option "label".
type stubCatalog struct {
	*ProviderCatalog

	mu    sync.Mutex
	built []*stubAdapter
}

func newStubCatalog() *stubCatalog {
	c := &stubCatalog{ProviderCatalog: NewProviderCatalog()}
	c.Register("stub", func(_ context.Context, spec AdapterSpec) (Adapter, error) {
		a := newStubAdapter(spec.Processor, spec.Options["label"])
		c.mu.Lock()
		c.built = append(c.built, a)
		c.mu.Unlock()
		return a, nil
	})
	c.Register("broken", func(context.Context, AdapterSpec) (Adapter, error) {
		return nil, errors.New("provider exploded")
	})
	c.Register("panicking", func(context.Context, AdapterSpec) (Adapter, error) {
		panic("provider panicked")
	})
	return c
}

func (c *stubCatalog) Built() []*stubAdapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*stubAdapter(nil), c.built...)
}

// writeBundle writes a manifest advertising one stub adapter per processor,
// labelled with the bundle file name.
func writeBundle(t *testing.T, dir, name string, processors ...ProcessorID) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nversion: 1.0.0\nadapters:\n", strings.TrimSuffix(name, filepath.Ext(name)))
	for _, p := range processors {
		fmt.Fprintf(&b, "  - processor: %s\n    provider: stub\n    options:\n      label: %s\n", p, name)
	}
	return writeFile(t, dir, name, b.String())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func removeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove %s: %v", path, err)
	}
}

// fastLoaderOptions keeps retries but without waiting between attempts.
func fastLoaderOptions() LoaderOptions {
	opts := DefaultLoaderOptions()
	opts.Pause = time.Millisecond
	return opts
}

// labelOf returns the stub label of the adapter registered for id.
func labelOf(t *testing.T, r *AdapterRegistry, id ProcessorID) string {
	t.Helper()
	a, ok := r.Snapshot()[id]
	if !ok {
		return ""
	}
	stub, ok := a.(*stubAdapter)
	if !ok {
		return fmt.Sprintf("%T", a)
	}
	return stub.label
}

// panickingRegistrar forwards to an AdapterRegistry but panics when asked
// to register one processor.
type panickingRegistrar struct {
	*AdapterRegistry
	panicOn ProcessorID
}

func (p *panickingRegistrar) Register(adapter Adapter) {
	if adapter.ID() == p.panicOn {
		panic("registry rejected " + p.panicOn.String())
	}
	p.AdapterRegistry.Register(adapter)
}

// fakeEventSource is an EventSource fed by the test.
type fakeEventSource struct {
	events    chan fsnotify.Event
	errs      chan error
	closeOnce sync.Once
	closed    atomic.Bool
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{
		events: make(chan fsnotify.Event, 64),
		errs:   make(chan error, 8),
	}
}

func (f *fakeEventSource) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeEventSource) Errors() <-chan error          { return f.errs }

func (f *fakeEventSource) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		close(f.events)
		close(f.errs)
	})
	return nil
}

func (f *fakeEventSource) emit(name string, op fsnotify.Op) {
	f.events <- fsnotify.Event{Name: name, Op: op}
}

func (f *fakeEventSource) factory() EventSourceFactory {
	return func(string) (EventSource, error) { return f, nil }
}

// recordingReloader counts loader calls and can make reloads slow.
type recordingReloader struct {
	loads       atomic.Int32
	reloads     atomic.Int32
	reloadDelay time.Duration
	reloaded    chan struct{}
}

func newRecordingReloader() *recordingReloader {
	return &recordingReloader{reloaded: make(chan struct{}, 64)}
}

func (r *recordingReloader) LoadAll(context.Context) { r.loads.Add(1) }

func (r *recordingReloader) Reload(context.Context) {
	if r.reloadDelay > 0 {
		time.Sleep(r.reloadDelay)
	}
	r.reloads.Add(1)
	r.reloaded <- struct{}{}
}

// waitReload blocks until the next reload or fails after timeout.
func (r *recordingReloader) waitReload(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.reloaded:
	case <-time.After(timeout):
		t.Fatalf("Expected a reload within %v", timeout)
	}
}

// noReload fails if a reload happens within d.
func (r *recordingReloader) noReload(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-r.reloaded:
		t.Fatalf("Unexpected reload")
	case <-time.After(d):
	}
}

func validRequest() PaymentRequest {
	return PaymentRequest{
		OperationID: "op-1",
		Amount:      1000,
		Currency:    "UZS",
		From:        "8600000000000001",
		To:          "8600000000000002",
	}
}
