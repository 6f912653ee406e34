// config_watcher.go: Argus-powered hot reload of the host configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ConfigChangeHandler is called after a new configuration has been stored.
type ConfigChangeHandler func(previous, current Config)

// ConfigWatcherOptions tunes the file polling.
type ConfigWatcherOptions struct {
	PollInterval time.Duration
	CacheTTL     time.Duration
	Env          EnvConfigOptions
}

// DefaultConfigWatcherOptions polls every two seconds.
func DefaultConfigWatcherOptions() ConfigWatcherOptions {
	return ConfigWatcherOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     time.Second,
		Env:          DefaultEnvConfigOptions(),
	}
}

// ConfigWatcher keeps the current Config in sync with its file and serves
// it as a PolicySource. A change that fails to parse or validate is logged
// and ignored; the last good configuration stays in effect.
type ConfigWatcher struct {
	path    string
	options ConfigWatcherOptions
	logger  Logger
	watcher *argus.Watcher

	current atomic.Pointer[Config]

	mu       sync.Mutex
	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	handlersMu sync.RWMutex
	handlers   []ConfigChangeHandler
}

// NewConfigWatcher loads the file at path and prepares a watcher for it.
// The initial load must succeed.
func NewConfigWatcher(path string, options ConfigWatcherOptions, logger Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = DefaultLogger()
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultConfigWatcherOptions().PollInterval
	}
	if options.Env.Prefix == "" && options.Env.Lookup == nil {
		options.Env = DefaultEnvConfigOptions()
	}

	cw := &ConfigWatcher{
		path:    path,
		options: options,
		logger:  logger.With("component", "config_watcher"),
	}

	cfg, err := cw.load(path)
	if err != nil {
		return nil, err
	}
	cw.current.Store(&cfg)

	cw.watcher = argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, file string) {
			cw.logger.Error("Config file watching error", "error", err, "file", file)
		},
	})
	return cw, nil
}

// Policy implements PolicySource.
func (cw *ConfigWatcher) Policy() PolicyView {
	return cw.current.Load().PolicyView()
}

// Config returns the configuration in effect.
func (cw *ConfigWatcher) Config() Config {
	return *cw.current.Load()
}

// OnChange registers a handler run after every accepted change.
func (cw *ConfigWatcher) OnChange(handler ConfigChangeHandler) {
	if handler == nil {
		return
	}
	cw.handlersMu.Lock()
	defer cw.handlersMu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins polling the file. A stopped watcher cannot be restarted.
func (cw *ConfigWatcher) Start() error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped and cannot be restarted", nil)
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}
	if err := cw.watcher.Watch(cw.path, cw.handleChange); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to watch config file", err)
	}
	if err := cw.watcher.Start(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to start config watcher", err)
	}

	cw.logger.Info("Config watcher started", "path", cw.path, "poll_interval", cw.options.PollInterval)
	return nil
}

// Stop ends polling. Only the first call has an effect.
func (cw *ConfigWatcher) Stop() error {
	var stopErr error
	cw.stopOnce.Do(func() {
		cw.mu.Lock()
		defer cw.mu.Unlock()

		cw.stopped.Store(true)
		if !cw.enabled.CompareAndSwap(true, false) {
			return
		}
		if err := cw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop config watcher", err)
			return
		}
		cw.logger.Info("Config watcher stopped", "path", cw.path)
	})
	return stopErr
}

// IsRunning reports whether the file is being polled.
func (cw *ConfigWatcher) IsRunning() bool {
	return cw.enabled.Load() && !cw.stopped.Load()
}

// Reload re-reads the file immediately. It returns the error that made the
// new content unacceptable, in which case the old configuration is kept.
func (cw *ConfigWatcher) Reload() error {
	cfg, err := cw.load(cw.path)
	if err != nil {
		return err
	}
	cw.apply(cfg)
	return nil
}

func (cw *ConfigWatcher) handleChange(event argus.ChangeEvent) {
	defer withStackRecover(cw.logger)()

	if event.IsDelete {
		cw.logger.Warn("Config file deleted, keeping current configuration", "path", event.Path)
		return
	}
	cw.logger.Info("Config file change detected", "path", event.Path, "size", event.Size)

	cfg, err := cw.load(event.Path)
	if err != nil {
		cw.logger.Error("Rejected config change, keeping current configuration", "path", event.Path, "error", err)
		return
	}
	cw.apply(cfg)
}

func (cw *ConfigWatcher) apply(cfg Config) {
	previous := cw.current.Swap(&cfg)

	cw.logger.Info("Configuration applied", "changes", configChanges(*previous, cfg))

	cw.handlersMu.RLock()
	handlers := append([]ConfigChangeHandler(nil), cw.handlers...)
	cw.handlersMu.RUnlock()
	for _, h := range handlers {
		func() {
			defer withStackRecover(cw.logger)()
			h(*previous, cfg)
		}()
	}
}

func (cw *ConfigWatcher) load(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, NewConfigNotFoundError(path, err)
	}
	if !info.Mode().IsRegular() {
		return Config{}, NewConfigNotFoundError(path, fmt.Errorf("not a regular file"))
	}
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator supplied path
	if err != nil {
		return Config{}, NewConfigNotFoundError(path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Config{}, NewConfigParseError(path, fmt.Errorf("config file is empty"))
	}

	cfg, err := ParseConfig(path, data)
	if err != nil {
		return Config{}, err
	}
	if err := ProcessConfigWithEnv(&cfg, cw.options.Env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configChanges lists the top-level settings that differ, for logging.
func configChanges(previous, current Config) []string {
	var changes []string
	if previous.Plugins.Dir != current.Plugins.Dir {
		changes = append(changes, "plugins.dir")
	}
	if previous.Plugins.Watch != current.Plugins.Watch {
		changes = append(changes, "plugins.watch")
	}
	if fmt.Sprint(previous.Plugins.Adapters) != fmt.Sprint(current.Plugins.Adapters) {
		changes = append(changes, "plugins.adapters")
	}
	if fmt.Sprint(previous.LoaderOptions()) != fmt.Sprint(current.LoaderOptions()) {
		changes = append(changes, "plugins.discovery")
	}
	if fmt.Sprint(previous.WatcherOptions()) != fmt.Sprint(current.WatcherOptions()) {
		changes = append(changes, "plugins.timings")
	}
	if previous.Logging != current.Logging {
		changes = append(changes, "logging")
	}
	if previous.Server != current.Server {
		changes = append(changes, "server")
	}
	return changes
}

// WatchTopologyChanged reports whether the directory watcher must restart
// to honour the new configuration.
func WatchTopologyChanged(previous, current Config) bool {
	return previous.Plugins.Dir != current.Plugins.Dir ||
		previous.Plugins.Watch != current.Plugins.Watch ||
		fmt.Sprint(previous.WatcherOptions()) != fmt.Sprint(current.WatcherOptions())
}
