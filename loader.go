// loader.go: Module loader scanning the plugin directory and publishing adapters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
)

// ReloadPolicy decides what Reload does with the live adapters when the new
// discovery comes back empty.
type ReloadPolicy string

const (
	// ReloadLastKnownGood stages discovery in a fresh loading context and
	// only replaces the live adapters when it produced at least one. An
	// empty result (for example a directory caught mid-copy) leaves the
	// registry and the previous context untouched.
	ReloadLastKnownGood ReloadPolicy = "last-known-good"

	// ReloadFailSafeEmpty clears every dynamic adapter before discovering
	// once at least one bundle file is present. An empty discovery then
	// leaves only the built-ins registered. A missing directory or one
	// without bundles still leaves the registry as it was.
	ReloadFailSafeEmpty ReloadPolicy = "fail-safe-empty"
)

// ParseReloadPolicy resolves a policy name. The empty string selects
// ReloadLastKnownGood.
func ParseReloadPolicy(name string) (ReloadPolicy, error) {
	switch ReloadPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", ReloadLastKnownGood:
		return ReloadLastKnownGood, nil
	case ReloadFailSafeEmpty:
		return ReloadFailSafeEmpty, nil
	}
	return "", NewInvalidReloadPolicyError(name)
}

// Reloader is the loader surface used by the watcher and by collaborators.
type Reloader interface {
	LoadAll(ctx context.Context)
	Reload(ctx context.Context)
}

// LoaderOptions tunes discovery.
type LoaderOptions struct {
	// Patterns select bundle files by base name (filepath.Match syntax).
	Patterns []string

	// Retries is the number of extra discovery attempts after an empty one.
	Retries int

	// Pause is the fixed wait between discovery attempts.
	Pause time.Duration

	// Workers bounds how many bundles are opened concurrently.
	Workers int

	ReloadPolicy ReloadPolicy
	Integrity    IntegrityConfig
}

// DefaultLoaderOptions returns the standard discovery settings.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		Patterns:     []string{"*.bundle", "*.so"},
		Retries:      2,
		Pause:        400 * time.Millisecond,
		Workers:      4,
		ReloadPolicy: ReloadLastKnownGood,
	}
}

func (o LoaderOptions) normalized() LoaderOptions {
	def := DefaultLoaderOptions()
	if len(o.Patterns) == 0 {
		o.Patterns = def.Patterns
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Pause < 0 {
		o.Pause = 0
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.ReloadPolicy == "" {
		o.ReloadPolicy = def.ReloadPolicy
	}
	return o
}

// MatchesBundlePattern reports whether a file name matches any pattern.
func MatchesBundlePattern(name string, patterns []string) bool {
	base := filepath.Base(name)
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// ModuleLoader discovers adapters from the bundles in the plugin directory
// and publishes them into a Registrar.
//
// Every load builds a new LoadingContext that owns what its bundles
// produced; the previous context is disposed when superseded, and no
// adapter it produced stays registered after that. Loads are serialized.
// No failure is returned to the caller: missing directory, no bundles,
// empty discovery and per-adapter registration failures are all logged and
// absorbed.
//
// Example usage:
//
//	policy := payadapters.StaticPolicy{Dir: "/opt/payments/plugins"}
//	registry := payadapters.NewAdapterRegistry(policy,
//	    payadapters.WithBuiltins(uzcard.New(logger)))
//	loader := payadapters.NewModuleLoader(registry, policy,
//	    payadapters.WithLoaderLogger(logger))
//	defer loader.Close()
//
//	loader.LoadAll(ctx)
//	// after bundles change on disk
//	loader.Reload(ctx)
type ModuleLoader struct {
	registry Registrar
	policy   PolicySource
	catalog  *ProviderCatalog
	logger   Logger
	metrics  *Metrics

	mu         sync.Mutex
	options    LoaderOptions
	openers    map[string]BundleOpener
	current    *LoadingContext
	generation atomic.Uint64
}

// LoaderOption configures a ModuleLoader.
type LoaderOption func(*ModuleLoader)

// WithLoaderOptions replaces the discovery options.
func WithLoaderOptions(options LoaderOptions) LoaderOption {
	return func(l *ModuleLoader) {
		l.options = options
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger Logger) LoaderOption {
	return func(l *ModuleLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderMetrics enables Prometheus instrumentation.
func WithLoaderMetrics(m *Metrics) LoaderOption {
	return func(l *ModuleLoader) {
		l.metrics = m
	}
}

// WithCatalog sets the provider catalog used for .bundle manifests.
func WithCatalog(catalog *ProviderCatalog) LoaderOption {
	return func(l *ModuleLoader) {
		l.catalog = catalog
	}
}

// WithBundleOpener registers an opener for a file extension such as ".bundle".
func WithBundleOpener(ext string, opener BundleOpener) LoaderOption {
	return func(l *ModuleLoader) {
		l.openers[strings.ToLower(ext)] = opener
	}
}

// NewModuleLoader creates a loader publishing into registry. The plugin
// directory is read from policy at the start of every load.
func NewModuleLoader(registry Registrar, policy PolicySource, opts ...LoaderOption) *ModuleLoader {
	if policy == nil {
		policy = StaticPolicy{}
	}
	l := &ModuleLoader{
		registry: registry,
		policy:   policy,
		logger:   DefaultLogger(),
		options:  DefaultLoaderOptions(),
		openers:  make(map[string]BundleOpener),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "module_loader")
	l.options = l.options.normalized()

	if _, ok := l.openers[".bundle"]; !ok {
		l.openers[".bundle"] = NewManifestOpener(l.catalog, l.logger)
	}
	if _, ok := l.openers[".so"]; !ok {
		l.openers[".so"] = NativeOpener{}
	}
	return l
}

// UpdateOptions swaps the discovery options used by the next load.
func (l *ModuleLoader) UpdateOptions(options LoaderOptions) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.options = options.normalized()
}

// Options returns the discovery options in effect.
func (l *ModuleLoader) Options() LoaderOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.options
}

// LoadAll scans the directory and registers what it finds, disposing the
// previous loading context first. Adapters the previous context produced
// are unregistered with it; other entries are replaced per key, never
// cleared. When there is nothing to scan the previous context stays live.
func (l *ModuleLoader) LoadAll(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadAll(ctx)
}

// Reload rescans the directory following the configured ReloadPolicy.
func (l *ModuleLoader) Reload(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.options.ReloadPolicy {
	case ReloadFailSafeEmpty:
		l.logger.Info("Reloading adapters", "reload_policy", string(ReloadFailSafeEmpty))
		dir := l.policy.Policy().Dir
		bundles, ok := l.scan(dir)
		if !ok {
			l.metrics.incReload("skipped")
			return
		}
		l.registry.Clear()
		l.loadBundles(ctx, dir, bundles)
	default:
		l.logger.Info("Reloading adapters", "reload_policy", string(ReloadLastKnownGood))
		l.reloadLastKnownGood(ctx)
	}
}

// Generation returns the generation of the most recently created context.
func (l *ModuleLoader) Generation() uint64 {
	return l.generation.Load()
}

// CurrentContext describes the live loading context, if any.
func (l *ModuleLoader) CurrentContext() (LoadingContextInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return LoadingContextInfo{}, false
	}
	return l.current.Info(), true
}

// Close disposes the live loading context.
func (l *ModuleLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposeCurrent()
	return nil
}

func (l *ModuleLoader) loadAll(ctx context.Context) {
	dir := l.policy.Policy().Dir
	bundles, ok := l.scan(dir)
	if !ok {
		l.metrics.incReload("skipped")
		return
	}
	l.loadBundles(ctx, dir, bundles)
}

func (l *ModuleLoader) loadBundles(ctx context.Context, dir string, bundles []string) {
	l.retireCurrent()
	l.disposeCurrent()
	lc := l.newContext(bundles)
	l.current = lc

	adapters := l.discover(ctx, lc, dir, bundles)
	if len(adapters) == 0 {
		l.metrics.incReload("empty")
		return
	}
	registered := l.registerAll(adapters)
	l.logger.Info("Adapters loaded",
		"generation", lc.Generation(),
		"bundles", len(bundles),
		"discovered", len(adapters),
		"registered", len(registered))
	l.metrics.incReload("loaded")
}

func (l *ModuleLoader) reloadLastKnownGood(ctx context.Context) {
	dir := l.policy.Policy().Dir
	bundles, ok := l.scan(dir)
	if !ok {
		l.logger.Warn("Keeping previously loaded adapters", "dir", dir)
		l.metrics.incReload("skipped")
		return
	}

	staged := l.newContext(bundles)
	adapters := l.discover(ctx, staged, dir, bundles)
	if len(adapters) == 0 {
		l.logger.Warn("Discovery returned no adapters, keeping previously loaded adapters",
			"dir", dir,
			"generation", staged.Generation())
		if err := staged.Close(); err != nil {
			l.logger.Warn("Failed to dispose staged loading context",
				"error", NewContextDisposeError(staged.Generation(), err))
		}
		l.metrics.incReload("kept")
		return
	}

	registered := l.registerAll(adapters)
	l.registry.Prune(registered)
	l.disposeCurrent()
	l.current = staged

	l.logger.Info("Adapters reloaded",
		"generation", staged.Generation(),
		"bundles", len(bundles),
		"discovered", len(adapters),
		"registered", len(registered))
	l.metrics.incReload("loaded")
}

// scan lists matching bundle files sorted case-insensitively by name. The
// boolean is false when there is nothing to load.
func (l *ModuleLoader) scan(dir string) ([]string, bool) {
	if strings.TrimSpace(dir) == "" {
		l.logger.Warn("Plugin directory is not configured, nothing to load")
		return nil, false
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		l.logger.Warn("Plugin directory unavailable, nothing to load",
			"dir", dir,
			"error", NewBundleDirUnavailableError(dir, err))
		return nil, false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		l.logger.Warn("Plugin directory unreadable, nothing to load",
			"dir", dir,
			"error", NewBundleDirUnavailableError(dir, err))
		return nil, false
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !MatchesBundlePattern(entry.Name(), l.options.Patterns) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		l.logger.Info("No bundles found", "dir", dir, "patterns", l.options.Patterns)
		return nil, false
	}

	slices.SortFunc(names, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	bundles := make([]string, len(names))
	for i, name := range names {
		bundles[i] = filepath.Join(dir, name)
	}
	return bundles, true
}

func (l *ModuleLoader) newContext(bundles []string) *LoadingContext {
	lc := newLoadingContext(l.generation.Add(1), bundles)
	l.metrics.setGeneration(lc.Generation())
	l.logger.Debug("Loading context created",
		"generation", lc.Generation(),
		"context_id", lc.Info().ID,
		"bundles", len(bundles))
	return lc
}

// retireCurrent unregisters what the live context produced so that no
// adapter outlives the context that owns its resources.
func (l *ModuleLoader) retireCurrent() {
	if l.current == nil {
		return
	}
	retired := l.registry.Retire(l.current.Adapters())
	if len(retired) > 0 {
		l.logger.Info("Adapters of previous loading context retired",
			"generation", l.current.Generation(),
			"processors", retired)
	}
}

func (l *ModuleLoader) disposeCurrent() {
	if l.current == nil {
		return
	}
	old := l.current
	l.current = nil
	if err := old.Close(); err != nil {
		l.logger.Warn("Failed to dispose loading context",
			"generation", old.Generation(),
			"error", NewContextDisposeError(old.Generation(), err))
		return
	}
	l.logger.Debug("Loading context disposed", "generation", old.Generation())
}

// discover opens all bundles with the fixed retry policy: an empty attempt
// is retried after Pause, up to Retries more times, and the last attempt's
// result is accepted whatever it is.
func (l *ModuleLoader) discover(ctx context.Context, lc *LoadingContext, dir string, bundles []string) []Adapter {
	attempts := 0
	operation := func() ([]Adapter, error) {
		attempts++
		l.metrics.incDiscoveryAttempt()

		found, resources := l.discoverOnce(ctx, bundles)
		if len(found) == 0 {
			if err := closeAll(resources); err != nil {
				l.logger.Warn("Failed to release resources of empty discovery", "error", err)
			}
			return nil, NewEmptyDiscoveryError(dir, attempts)
		}
		if err := lc.adopt(found, resources); err != nil {
			l.logger.Warn("Loading context closed during discovery", "error", err)
			return nil, nil
		}
		return found, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.options.Pause), uint64(l.options.Retries)),
		ctx)
	notify := func(err error, next time.Duration) {
		l.logger.Info("No adapters discovered, retrying",
			"attempt", attempts,
			"retries", l.options.Retries,
			"pause", next)
	}

	adapters, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		l.logger.Warn("No adapters discovered",
			"dir", dir,
			"attempts", attempts,
			"error", err)
		return nil
	}
	return adapters
}

// discoverOnce opens every bundle on a bounded worker pool. Results keep
// bundle order so later bundles win when two advertise the same processor.
func (l *ModuleLoader) discoverOnce(ctx context.Context, bundles []string) ([]Adapter, []io.Closer) {
	results := make([]BundleContents, len(bundles))

	workers := min(l.options.Workers, len(bundles))
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		l.logger.Error("Panic recovered while opening bundle", "panic", p)
	}))
	if err != nil {
		l.logger.Warn("Worker pool unavailable, opening bundles sequentially", "error", err)
		for i, path := range bundles {
			results[i] = l.openBundle(ctx, path)
		}
	} else {
		var wg sync.WaitGroup
		for i, path := range bundles {
			wg.Add(1)
			task := func() {
				defer wg.Done()
				results[i] = l.openBundle(ctx, path)
			}
			if submitErr := pool.Submit(task); submitErr != nil {
				task()
			}
		}
		wg.Wait()
		pool.Release()
	}

	var (
		adapters  []Adapter
		resources []io.Closer
	)
	for _, r := range results {
		adapters = append(adapters, r.Adapters...)
		resources = append(resources, r.Resources...)
	}
	return adapters, resources
}

func (l *ModuleLoader) openBundle(ctx context.Context, path string) BundleContents {
	name := filepath.Base(path)
	if err := l.options.Integrity.Verify(path); err != nil {
		l.logger.Error("Bundle failed integrity check, skipping", "bundle", name, "error", err)
		return BundleContents{Path: path}
	}

	opener, ok := l.openers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		l.logger.Warn("No opener for bundle, skipping", "bundle", name, "error", NewUnsupportedBundleTypeError(path))
		return BundleContents{Path: path}
	}

	var contents BundleContents
	err := callRecovered(func() error {
		var oerr error
		contents, oerr = opener.Open(ctx, path)
		return oerr
	})
	if err != nil {
		l.logger.Error("Failed to open bundle", "bundle", name, "error", err)
		if cerr := closeAll(contents.Resources); cerr != nil {
			l.logger.Warn("Failed to release resources of broken bundle", "bundle", name, "error", cerr)
		}
		return BundleContents{Path: path}
	}
	l.logger.Debug("Bundle opened", "bundle", name, "adapters", len(contents.Adapters))
	return contents
}

// registerAll registers adapters one by one. A failing registration is
// logged and does not stop the others. It returns the ids that registered.
func (l *ModuleLoader) registerAll(adapters []Adapter) []ProcessorID {
	registered := make([]ProcessorID, 0, len(adapters))
	for _, adapter := range adapters {
		var id ProcessorID = -1
		err := callRecovered(func() error {
			id = adapter.ID()
			if !id.Valid() {
				return NewInvalidAdapterError("unknown processor id")
			}
			l.registry.Register(adapter)
			return nil
		})
		if err != nil {
			l.logger.Error("Failed to register adapter",
				"processor", id.String(),
				"error", NewRegistrationFailedError(id, err))
			l.metrics.incRegistration("failed")
			continue
		}
		if !slices.Contains(registered, id) {
			registered = append(registered, id)
		}
	}
	return registered
}
