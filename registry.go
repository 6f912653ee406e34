// registry.go: Concurrent processor-to-adapter registry with read-time policy
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"reflect"
	"slices"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registrar is the write side of the registry as seen by the loader.
//
// Register must be atomic per key. Prune removes every dynamically loaded
// entry whose id is not in keep; built-in ids that are not kept go back to
// their built-in instance. Clear is Prune(nil). Retire removes the given
// instances only where they are still the registered entry.
type Registrar interface {
	Register(adapter Adapter)
	Retire(adapters []Adapter) []ProcessorID
	Prune(keep []ProcessorID)
	Clear()
}

// AdapterRegistry maps processor ids to the active adapter.
//
// Storage is a sharded concurrent map: readers on the dispatch path only
// contend with a writer swapping the same key. The enable policy is read
// from the PolicySource on every lookup, never cached, so configuration
// changes apply to the next request.
//
// Example usage:
//
//	registry := payadapters.NewAdapterRegistry(policy,
//	    payadapters.WithBuiltins(uzcard.New(logger)),
//	    payadapters.WithRegistryLogger(logger))
//	if adapter, ok := registry.GetIfEnabled(payadapters.ProcessorHumo); ok {
//	    resp, err := adapter.Debit(ctx, req)
//	}
type AdapterRegistry struct {
	adapters cmap.ConcurrentMap[ProcessorID, Adapter]
	builtins map[ProcessorID]Adapter
	policy   PolicySource
	logger   Logger
	metrics  *Metrics
}

// RegistryOption configures an AdapterRegistry.
type RegistryOption func(*AdapterRegistry)

// WithBuiltins seeds the registry with statically linked adapters. Built-ins
// survive Clear and Prune.
func WithBuiltins(adapters ...Adapter) RegistryOption {
	return func(r *AdapterRegistry) {
		for _, a := range adapters {
			if a == nil || !a.ID().Valid() {
				continue
			}
			r.builtins[a.ID()] = a
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *AdapterRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryMetrics enables Prometheus instrumentation.
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *AdapterRegistry) {
		r.metrics = m
	}
}

// NewAdapterRegistry creates a registry reading its enable policy from policy.
func NewAdapterRegistry(policy PolicySource, opts ...RegistryOption) *AdapterRegistry {
	if policy == nil {
		policy = StaticPolicy{}
	}
	r := &AdapterRegistry{
		adapters: cmap.NewStringer[ProcessorID, Adapter](),
		builtins: make(map[ProcessorID]Adapter),
		policy:   policy,
		logger:   DefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "adapter_registry")

	for id, a := range r.builtins {
		if r.adapters.SetIfAbsent(id, a) {
			r.logger.Info("Built-in adapter registered", "processor", id.String())
		}
	}
	r.metrics.setActiveAdapters(r.adapters.Count())
	return r
}

// Register upserts adapter under its processor id. It never fails: a nil
// adapter or one reporting an unknown id is logged and ignored.
func (r *AdapterRegistry) Register(adapter Adapter) {
	if adapter == nil {
		r.logger.Warn("Ignoring nil adapter")
		r.metrics.incRegistration("rejected")
		return
	}
	id := adapter.ID()
	if !id.Valid() {
		r.logger.Warn("Ignoring adapter with unknown processor id", "processor", int(id))
		r.metrics.incRegistration("rejected")
		return
	}

	var replaced bool
	r.adapters.Upsert(id, adapter, func(exists bool, _ Adapter, newValue Adapter) Adapter {
		replaced = exists
		return newValue
	})

	if replaced {
		r.logger.Info("Replaced adapter", "processor", id.String())
		r.metrics.incRegistration("replaced")
	} else {
		r.logger.Info("Registered adapter", "processor", id.String())
		r.metrics.incRegistration("added")
	}
	r.metrics.setActiveAdapters(r.adapters.Count())
}

// GetIfEnabled returns the adapter for id when it is registered and the
// current policy enables it.
func (r *AdapterRegistry) GetIfEnabled(id ProcessorID) (Adapter, bool) {
	adapter, ok := r.adapters.Get(id)
	if !ok {
		return nil, false
	}
	if !r.policy.Policy().IsEnabled(id) {
		return nil, false
	}
	return adapter, true
}

// ListIDs returns the registered ids the current policy enables, ascending.
func (r *AdapterRegistry) ListIDs() []ProcessorID {
	policy := r.policy.Policy()
	ids := make([]ProcessorID, 0, r.adapters.Count())
	for _, id := range r.adapters.Keys() {
		if policy.IsEnabled(id) {
			ids = append(ids, id)
		}
	}
	SortProcessorIDs(ids)
	return ids
}

// Clear removes every dynamically loaded adapter. Built-in ids are restored
// to their built-in instance even if a bundle had replaced them.
func (r *AdapterRegistry) Clear() {
	r.Prune(nil)
}

// Prune removes dynamically loaded adapters whose id is not in keep.
func (r *AdapterRegistry) Prune(keep []ProcessorID) {
	removed := 0
	for _, id := range r.adapters.Keys() {
		if slices.Contains(keep, id) {
			continue
		}
		if builtin, ok := r.builtins[id]; ok {
			r.adapters.Set(id, builtin)
			continue
		}
		if r.adapters.RemoveCb(id, func(_ ProcessorID, _ Adapter, exists bool) bool { return exists }) {
			removed++
		}
	}
	r.logger.Info("Registry pruned", "removed", removed, "kept", len(keep), "remaining", r.adapters.Count())
	r.metrics.setActiveAdapters(r.adapters.Count())
}

// Retire unregisters each adapter that is still the active entry for its
// processor. Entries replaced since are left alone; built-in ids go back to
// their built-in instance. It returns the ids that were affected.
func (r *AdapterRegistry) Retire(adapters []Adapter) []ProcessorID {
	var retired []ProcessorID
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		id := adapter.ID()
		if r.IsBuiltin(id) {
			builtin := r.builtins[id]
			restored := false
			r.adapters.Upsert(id, builtin, func(exists bool, current Adapter, newValue Adapter) Adapter {
				if exists && sameAdapter(current, adapter) {
					restored = true
					return newValue
				}
				return current
			})
			if restored {
				retired = append(retired, id)
			}
			continue
		}
		if r.adapters.RemoveCb(id, func(_ ProcessorID, current Adapter, exists bool) bool {
			return exists && sameAdapter(current, adapter)
		}) {
			retired = append(retired, id)
		}
	}
	if len(retired) > 0 {
		SortProcessorIDs(retired)
		r.logger.Info("Retired adapters", "processors", retired, "remaining", r.adapters.Count())
		r.metrics.setActiveAdapters(r.adapters.Count())
	}
	return retired
}

// sameAdapter reports whether a and b are the same instance. Adapters of
// non-comparable types are never considered equal.
func sameAdapter(a, b Adapter) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Snapshot returns every registered adapter regardless of policy.
func (r *AdapterRegistry) Snapshot() map[ProcessorID]Adapter {
	return r.adapters.Items()
}

// Len returns the number of registered adapters regardless of policy.
func (r *AdapterRegistry) Len() int {
	return r.adapters.Count()
}

// IsBuiltin reports whether id is backed by a statically linked adapter.
func (r *AdapterRegistry) IsBuiltin(id ProcessorID) bool {
	_, ok := r.builtins[id]
	return ok
}
