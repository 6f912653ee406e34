// processor.go: Processor identifiers used as registry keys
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"slices"
	"strings"
)

// ProcessorID names a payment processor. The set is closed and ordered:
// declaration order is the sort order used by ListIDs.
type ProcessorID int

const (
	ProcessorUzcard ProcessorID = iota
	ProcessorHumo
	ProcessorClick
	ProcessorPayme
)

var processorNames = [...]string{
	ProcessorUzcard: "UZCARD",
	ProcessorHumo:   "HUMO",
	ProcessorClick:  "CLICK",
	ProcessorPayme:  "PAYME",
}

// AllProcessors returns every known processor in sort order.
func AllProcessors() []ProcessorID {
	out := make([]ProcessorID, len(processorNames))
	for i := range processorNames {
		out[i] = ProcessorID(i)
	}
	return out
}

// Valid reports whether p is one of the declared processors.
func (p ProcessorID) Valid() bool {
	return p >= 0 && int(p) < len(processorNames)
}

// String returns the canonical upper-case name.
func (p ProcessorID) String() string {
	if !p.Valid() {
		return "UNKNOWN"
	}
	return processorNames[p]
}

// ParseProcessorID resolves a processor name, ignoring case and surrounding space.
func ParseProcessorID(name string) (ProcessorID, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range processorNames {
		if n == normalized {
			return ProcessorID(i), nil
		}
	}
	return 0, NewUnknownProcessorError(name)
}

// MarshalText implements encoding.TextMarshaler.
func (p ProcessorID) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, NewUnknownProcessorError(p.String())
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so processor ids decode
// from YAML and JSON configuration and manifests by name.
func (p *ProcessorID) UnmarshalText(text []byte) error {
	id, err := ParseProcessorID(string(text))
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// SortProcessorIDs sorts ids ascending in place.
func SortProcessorIDs(ids []ProcessorID) {
	slices.Sort(ids)
}
