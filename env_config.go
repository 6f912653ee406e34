// env_config.go: Environment variable expansion and overrides for the host configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// EnvConfigOptions configures environment processing.
type EnvConfigOptions struct {
	// Prefix for override variables, for example PAYADAPTERS_PLUGINS_DIR.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Whether a ${VAR} without value or default is an error.
	FailOnMissing bool `json:"fail_on_missing" yaml:"fail_on_missing"`

	// Lookup resolves variables. Nil means os.LookupEnv.
	Lookup func(string) (string, bool) `json:"-" yaml:"-"`
}

// DefaultEnvConfigOptions returns the standard PAYADAPTERS_ prefix with
// missing variables expanding to their default or the empty string.
func DefaultEnvConfigOptions() EnvConfigOptions {
	return EnvConfigOptions{
		Prefix:        "PAYADAPTERS_",
		FailOnMissing: false,
	}
}

func (o EnvConfigOptions) lookup(name string) (string, bool) {
	if o.Lookup != nil {
		return o.Lookup(name)
	}
	return os.LookupEnv(name)
}

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvironmentVariables replaces ${VAR} and ${VAR:-default} in input.
//
// Resolution order: the prefixed variable, the plain variable, the inline
// default. A missing variable without default expands to the empty string
// unless FailOnMissing is set.
//
//	expanded, err := ExpandEnvironmentVariables("${PLUGIN_HOME:-/opt/billing}/plugins", options)
func ExpandEnvironmentVariables(input string, options EnvConfigOptions) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}

	var firstErr error
	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := variablePattern.FindStringSubmatch(match)
		name, def, hasDefault := sub[1], sub[3], sub[2] != ""

		if v, ok := options.lookup(options.Prefix + name); ok && v != "" {
			return v
		}
		if v, ok := options.lookup(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		if options.FailOnMissing && firstErr == nil {
			firstErr = NewConfigValidationError(
				fmt.Sprintf("required environment variable not found: %s (also tried %s%s)", name, options.Prefix, name), nil)
		}
		return ""
	})
	if firstErr != nil {
		return "", firstErr
	}
	if strings.ContainsRune(result, '\x00') {
		return "", NewConfigValidationError("environment variable value contains null byte", nil)
	}
	return result, nil
}

// ProcessConfigWithEnv expands placeholders in the string fields of cfg and
// then applies prefixed overrides:
//
//	<PREFIX>PLUGINS_DIR        plugins.dir
//	<PREFIX>PLUGINS_WATCH      plugins.watch
//	<PREFIX>RELOAD_POLICY      plugins.reload_policy
//	<PREFIX>ADAPTERS_ENABLED   plugins.adapters.enabled (comma separated)
//	<PREFIX>ADAPTERS_DISABLED  plugins.adapters.disabled (comma separated)
//	<PREFIX>SERVER_ADDR        server.addr
//	<PREFIX>LOG_LEVEL          logging.level
func ProcessConfigWithEnv(cfg *Config, options EnvConfigOptions) error {
	for _, field := range []*string{&cfg.Plugins.Dir, &cfg.Server.Addr, &cfg.Logging.Level, &cfg.Plugins.ReloadPolicy} {
		expanded, err := ExpandEnvironmentVariables(*field, options)
		if err != nil {
			return err
		}
		*field = expanded
	}

	override := func(key string) (string, bool) {
		v, ok := options.lookup(options.Prefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := override("PLUGINS_DIR"); ok {
		cfg.Plugins.Dir = v
	}
	if v, ok := override("PLUGINS_WATCH"); ok {
		watch, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigValidationError(options.Prefix+"PLUGINS_WATCH must be a boolean", err)
		}
		cfg.Plugins.Watch = watch
	}
	if v, ok := override("RELOAD_POLICY"); ok {
		cfg.Plugins.ReloadPolicy = v
	}
	if v, ok := override("ADAPTERS_ENABLED"); ok {
		ids, err := parseProcessorList(v)
		if err != nil {
			return NewConfigValidationError(options.Prefix+"ADAPTERS_ENABLED is invalid", err)
		}
		cfg.Plugins.Adapters.Enabled = ids
	}
	if v, ok := override("ADAPTERS_DISABLED"); ok {
		ids, err := parseProcessorList(v)
		if err != nil {
			return NewConfigValidationError(options.Prefix+"ADAPTERS_DISABLED is invalid", err)
		}
		cfg.Plugins.Adapters.Disabled = ids
	}
	if v, ok := override("SERVER_ADDR"); ok {
		cfg.Server.Addr = v
	}
	if v, ok := override("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	return nil
}

func parseProcessorList(value string) ([]ProcessorID, error) {
	var ids []ProcessorID
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := ParseProcessorID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
