// loading_context.go: Disposable unit of dynamically loaded adapters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// LoadingContext owns everything produced by one load generation: the
// adapters discovered from its bundles and the resources behind them
// (connections, clients, native handles). It is created by the loader and
// never handed out; callers only see LoadingContextInfo.
type LoadingContext struct {
	generation uint64
	id         uuid.UUID
	bundles    []string
	createdAt  time.Time

	mu        sync.Mutex
	adapters  []Adapter
	resources []io.Closer
	closed    bool
}

// LoadingContextInfo is a read-only description of a loading context.
type LoadingContextInfo struct {
	Generation uint64    `json:"generation"`
	ID         string    `json:"id"`
	Bundles    []string  `json:"bundles"`
	CreatedAt  time.Time `json:"created_at"`
	Adapters   int       `json:"adapters"`
	Closed     bool      `json:"closed"`
}

func newLoadingContext(generation uint64, bundles []string) *LoadingContext {
	return &LoadingContext{
		generation: generation,
		id:         uuid.New(),
		bundles:    slices.Clone(bundles),
		createdAt:  timecache.CachedTime(),
	}
}

// Generation returns the monotonic load generation.
func (c *LoadingContext) Generation() uint64 {
	return c.generation
}

// adopt transfers adapters and their resources into the context. Once the
// context is closed anything adopted is released immediately.
func (c *LoadingContext) adopt(adapters []Adapter, resources []io.Closer) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return closeAll(resources)
	}
	c.adapters = append(c.adapters, adapters...)
	c.resources = append(c.resources, resources...)
	c.mu.Unlock()
	return nil
}

// Adapters returns the adapters this context produced.
func (c *LoadingContext) Adapters() []Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.adapters)
}

// Info describes the context.
func (c *LoadingContext) Info() LoadingContextInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LoadingContextInfo{
		Generation: c.generation,
		ID:         c.id.String(),
		Bundles:    slices.Clone(c.bundles),
		CreatedAt:  c.createdAt,
		Adapters:   len(c.adapters),
		Closed:     c.closed,
	}
}

// Close releases owned resources in reverse acquisition order. It is safe
// to call more than once; only the first call does work.
func (c *LoadingContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	resources := c.resources
	c.resources = nil
	c.adapters = nil
	c.mu.Unlock()

	slices.Reverse(resources)
	return closeAll(resources)
}

func closeAll(resources []io.Closer) error {
	var errs []error
	for _, r := range resources {
		if r == nil {
			continue
		}
		if err := callRecovered(r.Close); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
