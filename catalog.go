// catalog.go: Provider catalog resolving manifest entries to adapter factories
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// ProviderFactory builds the adapter described by one manifest entry. If
// the returned adapter implements io.Closer, the loading context that
// discovered it closes it when the context is disposed. ctx carries the
// opener's logger; providers retrieve it with LoggerFromContext.
type ProviderFactory func(ctx context.Context, spec AdapterSpec) (Adapter, error)

// ProviderCatalog maps provider names to factories. Bundle manifests name a
// provider for every adapter they advertise; the loader resolves the name
// here. Names are case-insensitive.
type ProviderCatalog struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// Names of the providers present in every catalog.
const (
	ProviderGRPC = "grpc"
	ProviderHTTP = "http"
)

// NewProviderCatalog returns a catalog holding the remote providers. Remote
// entries may enable a circuit breaker with the breaker.failures and
// breaker.recovery options.
func NewProviderCatalog() *ProviderCatalog {
	c := &ProviderCatalog{providers: make(map[string]ProviderFactory)}
	c.Register(ProviderGRPC, withCircuitBreaker(NewGRPCAdapterFactory()))
	c.Register(ProviderHTTP, withCircuitBreaker(NewHTTPAdapterFactory(nil)))
	return c
}

// Register adds or replaces a provider.
func (c *ProviderCatalog) Register(name string, factory ProviderFactory) {
	if factory == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[strings.ToLower(strings.TrimSpace(name))] = factory
}

// Lookup returns the factory registered under name.
func (c *ProviderCatalog) Lookup(name string) (ProviderFactory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.providers[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Names returns the registered provider names, sorted.
func (c *ProviderCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for n := range c.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

var defaultCatalog = NewProviderCatalog()

// DefaultCatalog returns the process-wide catalog used by loaders that are
// not given one explicitly.
func DefaultCatalog() *ProviderCatalog {
	return defaultCatalog
}

// RegisterProvider adds a provider to the default catalog. Adapter packages
// call it from init, the same way database/sql drivers register.
func RegisterProvider(name string, factory ProviderFactory) {
	defaultCatalog.Register(name, factory)
}
