// bundle.go: Bundle manifests and the openers that turn bundle files into adapters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"plugin"

	"gopkg.in/yaml.v3"
)

// BundleManifest is the declarative description carried by a .bundle file.
// Each entry advertises one adapter and names the provider that builds it.
//
//	name: humo
//	version: 1.2.0
//	adapters:
//	  - processor: HUMO
//	    provider: humo
//	  - processor: CLICK
//	    provider: grpc
//	    endpoint: click-adapter:9090
//	    timeout: 3s
type BundleManifest struct {
	Name     string        `json:"name" yaml:"name"`
	Version  string        `json:"version" yaml:"version"`
	Adapters []AdapterSpec `json:"adapters" yaml:"adapters"`
}

// AdapterSpec is one adapter advertised by a bundle.
type AdapterSpec struct {
	Processor ProcessorID       `json:"processor" yaml:"processor"`
	Provider  string            `json:"provider" yaml:"provider"`
	Endpoint  string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Timeout   Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Options   map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// BundleContents is what opening one bundle produced.
type BundleContents struct {
	Path      string
	Adapters  []Adapter
	Resources []io.Closer
}

// BundleOpener opens one bundle file. Failures for individual adapters are
// reported through the logger and skipped; an error return means the whole
// bundle is unusable.
type BundleOpener interface {
	Open(ctx context.Context, path string) (BundleContents, error)
}

// ParseBundleManifest decodes a manifest, trying JSON first and YAML second.
// Empty input yields an empty manifest: a bundle that is still being copied
// into place advertises nothing yet.
func ParseBundleManifest(data []byte) (BundleManifest, error) {
	var manifest BundleManifest
	if len(bytes.TrimSpace(data)) == 0 {
		return manifest, nil
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		manifest = BundleManifest{}
		if yerr := yaml.Unmarshal(data, &manifest); yerr != nil {
			return BundleManifest{}, fmt.Errorf("not JSON (%v) nor YAML: %w", err, yerr)
		}
	}
	return manifest, nil
}

// ManifestOpener opens .bundle files by resolving each advertised adapter
// through a ProviderCatalog.
type ManifestOpener struct {
	catalog *ProviderCatalog
	logger  Logger
}

// NewManifestOpener creates an opener backed by catalog. A nil catalog uses
// DefaultCatalog.
func NewManifestOpener(catalog *ProviderCatalog, logger Logger) *ManifestOpener {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &ManifestOpener{catalog: catalog, logger: logger}
}

// Open implements BundleOpener.
func (o *ManifestOpener) Open(ctx context.Context, path string) (BundleContents, error) {
	contents := BundleContents{Path: path}

	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - path comes from the configured plugin dir
	if err != nil {
		return contents, NewBundleReadError(path, err)
	}
	manifest, err := ParseBundleManifest(data)
	if err != nil {
		return contents, NewManifestParseError(path, err)
	}

	for i, spec := range manifest.Adapters {
		adapter, err := o.build(ctx, spec)
		if err != nil {
			o.logger.Error("Skipping adapter advertised by bundle",
				"bundle", filepath.Base(path),
				"index", i,
				"processor", spec.Processor.String(),
				"provider", spec.Provider,
				"error", err)
			continue
		}
		contents.Adapters = append(contents.Adapters, adapter)
		if closer, ok := adapter.(io.Closer); ok {
			contents.Resources = append(contents.Resources, closer)
		}
	}
	return contents, nil
}

func (o *ManifestOpener) build(ctx context.Context, spec AdapterSpec) (Adapter, error) {
	factory, ok := o.catalog.Lookup(spec.Provider)
	if !ok {
		return nil, NewUnknownProviderError(spec.Provider)
	}
	spec, err := expandSpec(spec)
	if err != nil {
		return nil, err
	}

	var (
		adapter Adapter
		id      ProcessorID
	)
	ctx = ContextWithLogger(ctx, o.logger)
	err = callRecovered(func() error {
		var ferr error
		adapter, ferr = factory(ctx, spec)
		if ferr == nil && adapter != nil {
			id = adapter.ID()
		}
		return ferr
	})
	if err != nil {
		return nil, NewProviderFailedError(spec.Provider, spec.Processor, err)
	}
	if adapter == nil {
		return nil, NewInvalidAdapterError("provider returned nil adapter")
	}
	if id != spec.Processor {
		if closer, ok := adapter.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, NewInvalidAdapterError(fmt.Sprintf("provider built %s, manifest declares %s",
			id, spec.Processor))
	}
	return adapter, nil
}

// expandSpec resolves ${VAR} placeholders in the endpoint and option values
// so credentials stay out of bundle files.
func expandSpec(spec AdapterSpec) (AdapterSpec, error) {
	env := DefaultEnvConfigOptions()
	endpoint, err := ExpandEnvironmentVariables(spec.Endpoint, env)
	if err != nil {
		return spec, err
	}
	spec.Endpoint = endpoint
	if len(spec.Options) > 0 {
		options := make(map[string]string, len(spec.Options))
		for k, v := range spec.Options {
			if options[k], err = ExpandEnvironmentVariables(v, env); err != nil {
				return spec, err
			}
		}
		spec.Options = options
	}
	return spec, nil
}

// NativeSymbol is the symbol a native (.so) bundle must export:
//
//	func PaymentAdapters() []payadapters.Adapter
const NativeSymbol = "PaymentAdapters"

// NativeOpener opens Go plugin bundles built with -buildmode=plugin.
//
// The Go runtime cannot unload plugin code, and opening the same path twice
// returns the already loaded plugin. Disposal of the owning loading context
// therefore only drops references; replacing a native bundle requires a new
// file name.
type NativeOpener struct{}

// Open implements BundleOpener.
func (NativeOpener) Open(_ context.Context, path string) (BundleContents, error) {
	contents := BundleContents{Path: path}

	p, err := plugin.Open(path)
	if err != nil {
		return contents, NewNativeBundleError(path, err)
	}
	sym, err := p.Lookup(NativeSymbol)
	if err != nil {
		return contents, NewNativeBundleError(path, err)
	}

	var provide func() []Adapter
	switch fn := sym.(type) {
	case func() []Adapter:
		provide = fn
	case *func() []Adapter:
		provide = *fn
	default:
		return contents, NewNativeBundleError(path, fmt.Errorf("symbol %s has type %T", NativeSymbol, sym))
	}

	err = callRecovered(func() error {
		for _, a := range provide() {
			if a != nil {
				contents.Adapters = append(contents.Adapters, a)
			}
		}
		return nil
	})
	if err != nil {
		return contents, NewNativeBundleError(path, err)
	}
	return contents, nil
}
