// config.go: Host configuration with defaults, validation and file loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as "1500ms" in YAML and
// JSON documents.
type Duration time.Duration

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the host configuration.
//
//	plugins:
//	  dir: ./plugins
//	  watch: true
//	  adapters:
//	    disabled: [HUMO]
//	server:
//	  addr: ":8080"
type Config struct {
	Plugins PluginsConfig `json:"plugins" yaml:"plugins"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PluginsConfig configures discovery, watching and the enable policy.
type PluginsConfig struct {
	Dir          string           `json:"dir" yaml:"dir"`
	Watch        bool             `json:"watch" yaml:"watch"`
	Patterns     []string         `json:"patterns" yaml:"patterns"`
	ReloadPolicy string           `json:"reload_policy" yaml:"reload_policy"`
	Debounce     Duration         `json:"debounce" yaml:"debounce"`
	Settle       Duration         `json:"settle" yaml:"settle"`
	PollTimeout  Duration         `json:"poll_timeout" yaml:"poll_timeout"`
	Discovery    DiscoveryConfig  `json:"discovery" yaml:"discovery"`
	Adapters     AdapterSelection `json:"adapters" yaml:"adapters"`
	Integrity    IntegrityConfig  `json:"integrity" yaml:"integrity"`
}

// DiscoveryConfig configures the retry policy and bundle worker pool.
type DiscoveryConfig struct {
	Retries int      `json:"retries" yaml:"retries"`
	Pause   Duration `json:"pause" yaml:"pause"`
	Workers int      `json:"workers" yaml:"workers"`
}

// ServerConfig configures the collaborator HTTP server.
type ServerConfig struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the configuration applied before a file is decoded,
// so keys absent from the file keep these values.
func DefaultConfig() Config {
	loader := DefaultLoaderOptions()
	watcher := DefaultWatcherOptions()
	return Config{
		Plugins: PluginsConfig{
			Watch:        true,
			Patterns:     loader.Patterns,
			ReloadPolicy: string(loader.ReloadPolicy),
			Debounce:     Duration(watcher.Debounce),
			Settle:       Duration(watcher.Settle),
			PollTimeout:  Duration(watcher.PollTimeout),
			Discovery: DiscoveryConfig{
				Retries: loader.Retries,
				Pause:   Duration(loader.Pause),
				Workers: loader.Workers,
			},
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration(5 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	p := c.Plugins
	if strings.TrimSpace(p.Dir) == "" {
		return NewConfigValidationError("plugins.dir is required", nil)
	}
	if _, err := ParseReloadPolicy(p.ReloadPolicy); err != nil {
		return err
	}
	for _, pattern := range p.Patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return NewConfigValidationError(fmt.Sprintf("plugins.patterns: invalid pattern %q", pattern), err)
		}
	}
	if p.Discovery.Retries < 0 {
		return NewConfigValidationError("plugins.discovery.retries must not be negative", nil)
	}
	if p.Discovery.Workers < 0 {
		return NewConfigValidationError("plugins.discovery.workers must not be negative", nil)
	}
	if p.Debounce < 0 || p.Settle < 0 || p.PollTimeout < 0 || p.Discovery.Pause < 0 {
		return NewConfigValidationError("plugins durations must not be negative", nil)
	}
	if p.Integrity.Enabled {
		for name, sum := range p.Integrity.Checksums {
			if raw, err := hex.DecodeString(strings.TrimSpace(sum)); err != nil || len(raw) != 32 {
				return NewConfigValidationError(fmt.Sprintf("plugins.integrity.checksums[%s] is not a SHA-256 hex digest", name), err)
			}
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return NewConfigValidationError(fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level), nil)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return NewConfigValidationError(fmt.Sprintf("logging.format %q is not text or json", c.Logging.Format), nil)
	}
	return nil
}

// PolicyView projects the enable policy out of the configuration.
func (c Config) PolicyView() PolicyView {
	return PolicyView{
		Dir:   c.Plugins.Dir,
		Watch: c.Plugins.Watch,
		Adapters: AdapterSelection{
			Enabled:  append([]ProcessorID(nil), c.Plugins.Adapters.Enabled...),
			Disabled: append([]ProcessorID(nil), c.Plugins.Adapters.Disabled...),
		},
	}
}

// LoaderOptions projects the discovery settings. An invalid reload policy
// falls back to the default; Validate reports it.
func (c Config) LoaderOptions() LoaderOptions {
	policy, err := ParseReloadPolicy(c.Plugins.ReloadPolicy)
	if err != nil {
		policy = ReloadLastKnownGood
	}
	return LoaderOptions{
		Patterns:     append([]string(nil), c.Plugins.Patterns...),
		Retries:      c.Plugins.Discovery.Retries,
		Pause:        c.Plugins.Discovery.Pause.Std(),
		Workers:      c.Plugins.Discovery.Workers,
		ReloadPolicy: policy,
		Integrity:    c.Plugins.Integrity,
	}.normalized()
}

// WatcherOptions projects the event loop settings.
func (c Config) WatcherOptions() WatcherOptions {
	return WatcherOptions{
		Patterns:    append([]string(nil), c.Plugins.Patterns...),
		Debounce:    c.Plugins.Debounce.Std(),
		Settle:      c.Plugins.Settle.Std(),
		PollTimeout: c.Plugins.PollTimeout.Std(),
	}.normalized()
}

// NewLogger builds a slog-backed Logger writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(l.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(handler))
}

// ParseConfig decodes a YAML or JSON document on top of DefaultConfig. The
// format is chosen from the file name with argus.DetectFormat.
func ParseConfig(name string, data []byte) (Config, error) {
	cfg := DefaultConfig()

	var err error
	switch argus.DetectFormat(name) {
	case argus.FormatJSON:
		err = json.Unmarshal(data, &cfg)
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, NewConfigParseError(name, fmt.Errorf("unsupported config format for %s", filepath.Base(name)))
	}
	if err != nil {
		return cfg, NewConfigParseError(name, err)
	}
	return cfg, nil
}

// LoadConfig reads, decodes, expands, overrides and validates the file at
// path. Environment overrides use DefaultEnvConfigOptions.
func LoadConfig(path string) (Config, error) {
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
	if err := ProcessConfigWithEnv(&cfg, DefaultEnvConfigOptions()); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
