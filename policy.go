// policy.go: Enable/disable policy consulted on every registry read
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import "slices"

// AdapterSelection holds the allow-list and deny-list of processors.
type AdapterSelection struct {
	Enabled  []ProcessorID `json:"enabled" yaml:"enabled"`
	Disabled []ProcessorID `json:"disabled" yaml:"disabled"`
}

// PolicyView is a read-only snapshot of the plugin policy.
type PolicyView struct {
	Dir      string
	Watch    bool
	Adapters AdapterSelection
}

// IsEnabled applies the allow/deny rule: a non-empty allow-list wins, and
// otherwise every processor not in the deny-list is enabled.
func (p PolicyView) IsEnabled(id ProcessorID) bool {
	if len(p.Adapters.Enabled) > 0 {
		return slices.Contains(p.Adapters.Enabled, id)
	}
	return !slices.Contains(p.Adapters.Disabled, id)
}

// PolicySource yields the current policy. Implementations must be safe for
// concurrent use; callers never cache the returned view.
type PolicySource interface {
	Policy() PolicyView
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy PolicyView

// Policy implements PolicySource.
func (s StaticPolicy) Policy() PolicyView {
	return PolicyView(s)
}
