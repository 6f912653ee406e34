// watcher.go: Directory watcher triggering debounced reloads on bundle changes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherState is the lifecycle state of a DirectoryWatcher.
type WatcherState int32

const (
	WatcherStopped WatcherState = iota
	WatcherStarting
	WatcherWatching
	WatcherStopping
)

func (s WatcherState) String() string {
	switch s {
	case WatcherStopped:
		return "stopped"
	case WatcherStarting:
		return "starting"
	case WatcherWatching:
		return "watching"
	case WatcherStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// EventSource delivers filesystem events for one directory. Closing it must
// close the Events channel so a blocked reader returns.
type EventSource interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// EventSourceFactory subscribes to a directory.
type EventSourceFactory func(dir string) (EventSource, error)

type fsnotifySource struct {
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closeErr  error
}

// NewFSNotifySource subscribes to create, write, remove and rename events
// on dir. Queue overflow is reported as fsnotify.ErrEventOverflow on the
// Errors channel.
func NewFSNotifySource(dir string) (EventSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &fsnotifySource{watcher: w}, nil
}

func (s *fsnotifySource) Events() <-chan fsnotify.Event { return s.watcher.Events }
func (s *fsnotifySource) Errors() <-chan error          { return s.watcher.Errors }

func (s *fsnotifySource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.watcher.Close()
	})
	return s.closeErr
}

// WatcherOptions tunes the event loop.
type WatcherOptions struct {
	// Patterns select the bundle files whose events trigger a reload.
	Patterns []string

	// Debounce is the minimum time between two reloads.
	Debounce time.Duration

	// Settle is the pause between deciding to reload and reloading, so a
	// bundle being copied in is complete when it is read.
	Settle time.Duration

	// PollTimeout bounds each wait for events so the running flag is
	// observed promptly.
	PollTimeout time.Duration
}

// DefaultWatcherOptions returns the standard timings.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Patterns:    DefaultLoaderOptions().Patterns,
		Debounce:    1500 * time.Millisecond,
		Settle:      1000 * time.Millisecond,
		PollTimeout: 2 * time.Second,
	}
}

func (o WatcherOptions) normalized() WatcherOptions {
	def := DefaultWatcherOptions()
	if len(o.Patterns) == 0 {
		o.Patterns = def.Patterns
	}
	if o.Debounce < 0 {
		o.Debounce = 0
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = def.PollTimeout
	}
	return o
}

// DirectoryWatcher observes the plugin directory and calls Reload on the
// loader when bundle files change.
//
// State machine: Stopped -> Starting -> Watching -> Stopping -> Stopped.
// Start performs the initial load synchronously, then, when the policy has
// watching enabled, runs one background goroutine. Reloads issued by that
// goroutine are strictly sequential and are never interrupted by Stop: Stop
// waits for an in-flight reload to finish.
//
// Example usage:
//
//	watcher := payadapters.NewDirectoryWatcher(loader, policy,
//	    payadapters.WithWatcherOptions(payadapters.WatcherOptions{
//	        Patterns: []string{"*.bundle"},
//	        Debounce: 500 * time.Millisecond,
//	        Settle:   200 * time.Millisecond,
//	    }),
//	    payadapters.WithWatcherLogger(logger))
//	watcher.Start(ctx)
//	defer watcher.Stop()
//
//	// the plugin directory moved in configuration
//	watcher.Restart(ctx)
type DirectoryWatcher struct {
	loader    Reloader
	policy    PolicySource
	options   WatcherOptions
	newSource EventSourceFactory
	logger    Logger
	metrics   *Metrics

	mu      sync.Mutex
	state   atomic.Int32
	running atomic.Bool
	source  EventSource
	quit    chan struct{}
	done    chan struct{}

	// lastReload is only touched by the loop goroutine.
	lastReload time.Time
	reloads    atomic.Uint64

	pending atomic.Pointer[WatcherOptions]
}

// WatcherOption configures a DirectoryWatcher.
type WatcherOption func(*DirectoryWatcher)

// WithWatcherOptions replaces the loop timings and patterns.
func WithWatcherOptions(options WatcherOptions) WatcherOption {
	return func(w *DirectoryWatcher) {
		w.options = options
	}
}

// WithEventSource replaces the fsnotify subscription.
func WithEventSource(factory EventSourceFactory) WatcherOption {
	return func(w *DirectoryWatcher) {
		if factory != nil {
			w.newSource = factory
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger Logger) WatcherOption {
	return func(w *DirectoryWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherMetrics enables Prometheus instrumentation.
func WithWatcherMetrics(m *Metrics) WatcherOption {
	return func(w *DirectoryWatcher) {
		w.metrics = m
	}
}

// NewDirectoryWatcher creates a stopped watcher.
func NewDirectoryWatcher(loader Reloader, policy PolicySource, opts ...WatcherOption) *DirectoryWatcher {
	if policy == nil {
		policy = StaticPolicy{}
	}
	w := &DirectoryWatcher{
		loader:    loader,
		policy:    policy,
		options:   DefaultWatcherOptions(),
		newSource: NewFSNotifySource,
		logger:    DefaultLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.options = w.options.normalized()
	w.logger = w.logger.With("component", "directory_watcher")
	return w
}

// State returns the current lifecycle state.
func (w *DirectoryWatcher) State() WatcherState {
	return WatcherState(w.state.Load())
}

// IsSubscribed reports whether the background loop is running.
func (w *DirectoryWatcher) IsSubscribed() bool {
	return w.running.Load()
}

// Reloads returns how many reloads the event loop has triggered.
func (w *DirectoryWatcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Start loads all bundles and begins watching. Calling Start on a running
// watcher does nothing.
//
// The context is used for the loads only; cancelling it does not stop the
// watcher. Use Stop for that.
func (w *DirectoryWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.state.CompareAndSwap(int32(WatcherStopped), int32(WatcherStarting)) {
		w.logger.Debug("Watcher already running", "state", w.State().String())
		return
	}
	if staged := w.pending.Swap(nil); staged != nil {
		w.options = staged.normalized()
	}

	w.loader.LoadAll(ctx)

	policy := w.policy.Policy()
	if !policy.Watch {
		w.logger.Info("Directory watching disabled, adapters loaded once", "dir", policy.Dir)
		w.state.Store(int32(WatcherWatching))
		return
	}

	source, err := w.newSource(policy.Dir)
	if err != nil {
		w.logger.Error("Cannot watch plugin directory, adapters loaded once",
			"dir", policy.Dir,
			"error", NewWatchSubscribeError(policy.Dir, err))
		w.state.Store(int32(WatcherWatching))
		return
	}

	w.source = source
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.lastReload = time.Time{}
	w.running.Store(true)

	go w.loop(context.WithoutCancel(ctx), source, w.quit, w.done)

	w.state.Store(int32(WatcherWatching))
	w.logger.Info("Watching plugin directory",
		"dir", policy.Dir,
		"patterns", w.options.Patterns,
		"debounce", w.options.Debounce,
		"settle", w.options.Settle)
}

// Stop halts the background loop and releases the watch handle. Calling
// Stop on a stopped watcher does nothing.
func (w *DirectoryWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.State() == WatcherStopped {
		return
	}
	w.state.Store(int32(WatcherStopping))
	w.running.Store(false)

	if w.quit != nil {
		close(w.quit)
	}
	if w.source != nil {
		if err := w.source.Close(); err != nil {
			w.logger.Warn("Failed to close watch handle", "error", err)
		}
	}
	if w.done != nil {
		<-w.done
	}

	w.source, w.quit, w.done = nil, nil, nil
	w.state.Store(int32(WatcherStopped))
	w.logger.Info("Directory watcher stopped")
}

// UpdateOptions stages new loop options. They take effect on the next
// Start or Restart.
func (w *DirectoryWatcher) UpdateOptions(options WatcherOptions) {
	w.pending.Store(&options)
}

// Options returns the options of the current or last run.
func (w *DirectoryWatcher) Options() WatcherOptions {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.options
}

// Restart stops and starts the watcher, picking up a changed directory or
// watch flag from the policy and any staged options.
func (w *DirectoryWatcher) Restart(ctx context.Context) {
	w.Stop()
	w.Start(ctx)
}

func (w *DirectoryWatcher) loop(ctx context.Context, source EventSource, quit, done chan struct{}) {
	defer close(done)
	defer w.running.Store(false)
	defer func() {
		if err := source.Close(); err != nil {
			w.logger.Warn("Failed to close watch handle", "error", err)
		}
	}()

	for w.running.Load() {
		if !w.iterate(ctx, source, quit) {
			return
		}
	}
}

// iterate waits up to PollTimeout for a batch of events and reloads when
// the batch calls for it. It returns false when the loop must end.
func (w *DirectoryWatcher) iterate(ctx context.Context, source EventSource, quit chan struct{}) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Watcher loop recovered from panic", "panic", r)
			cont = w.running.Load()
		}
	}()

	timer := time.NewTimer(w.options.PollTimeout)
	defer timer.Stop()

	b := batch{}
	select {
	case <-quit:
		return false
	case <-timer.C:
		return true
	case ev, ok := <-source.Events():
		if !ok {
			return false
		}
		w.collectEvent(&b, ev)
	case err, ok := <-source.Errors():
		if !ok {
			return false
		}
		w.collectError(&b, err)
	}
	closed := w.drain(&b, source)

	if !w.running.Load() {
		return false
	}
	if b.overflow {
		w.logger.Warn("Watch queue overflowed, forcing reload")
	} else if !b.matched {
		return !closed
	} else if since := time.Since(w.lastReload); since < w.options.Debounce {
		w.logger.Debug("Bundle change inside debounce window, coalesced", "since_last_reload", since)
		return !closed
	}

	w.lastReload = time.Now()
	if w.options.Settle > 0 {
		settle := time.NewTimer(w.options.Settle)
		select {
		case <-quit:
			settle.Stop()
			return false
		case <-settle.C:
		}
	}

	w.logger.Info("Bundle change detected, reloading", "events", b.events, "overflow", b.overflow)
	w.loader.Reload(ctx)
	w.reloads.Add(1)
	return !closed
}

type batch struct {
	events   int
	matched  bool
	overflow bool
}

// drain consumes what is already queued without blocking. It reports
// whether the source was closed.
func (w *DirectoryWatcher) drain(b *batch, source EventSource) bool {
	for {
		select {
		case ev, ok := <-source.Events():
			if !ok {
				return true
			}
			w.collectEvent(b, ev)
		case err, ok := <-source.Errors():
			if !ok {
				return true
			}
			w.collectError(b, err)
		default:
			return false
		}
	}
}

func (w *DirectoryWatcher) collectEvent(b *batch, ev fsnotify.Event) {
	b.events++
	relevant := ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	if relevant && MatchesBundlePattern(ev.Name, w.options.Patterns) {
		b.matched = true
		w.metrics.incWatcherEvent("bundle")
		w.logger.Debug("Bundle event", "file", ev.Name, "op", ev.Op.String())
		return
	}
	w.metrics.incWatcherEvent("ignored")
}

func (w *DirectoryWatcher) collectError(b *batch, err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		b.overflow = true
		w.metrics.incWatcherEvent("overflow")
		return
	}
	w.logger.Warn("Watch error", "error", err)
}
