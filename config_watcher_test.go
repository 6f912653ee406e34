// config_watcher_test.go: Hot reload of the host configuration through argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfigWatcherOptions() ConfigWatcherOptions {
	opts := DefaultConfigWatcherOptions()
	opts.PollInterval = 100 * time.Millisecond
	opts.CacheTTL = 50 * time.Millisecond
	opts.Env = EnvConfigOptions{Prefix: "PAYADAPTERS_TEST_", Lookup: mapLookup(nil)}
	return opts
}

func TestConfigWatcher_InitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /srv/plugins\n  adapters:\n    disabled: [HUMO]\n")

	cw, err := NewConfigWatcher(path, fastConfigWatcherOptions(), NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, "/srv/plugins", cw.Config().Plugins.Dir)
	view := cw.Policy()
	assert.Equal(t, "/srv/plugins", view.Dir)
	assert.False(t, view.IsEnabled(ProcessorHumo))
	assert.False(t, cw.IsRunning())
}

func TestConfigWatcher_InitialLoadMustSucceed(t *testing.T) {
	dir := t.TempDir()

	_, err := NewConfigWatcher(dir+"/missing.yaml", fastConfigWatcherOptions(), nil)
	assert.Error(t, err)

	_, err = NewConfigWatcher(writeFile(t, dir, "bad.yaml", "plugins:\n  dir: \"\"\n"), fastConfigWatcherOptions(), nil)
	assert.Error(t, err)

	_, err = NewConfigWatcher(dir, fastConfigWatcherOptions(), nil)
	assert.Error(t, err, "a directory is not a config file")
}

func TestConfigWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n")
	logger := NewTestLogger()
	cw, err := NewConfigWatcher(path, fastConfigWatcherOptions(), logger)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		calls [][2]string
	)
	cw.OnChange(func(previous, current Config) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]string{previous.Plugins.Dir, current.Plugins.Dir})
	})
	cw.OnChange(func(Config, Config) { panic("handler bug") })
	cw.OnChange(nil)

	writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /b\n")
	require.NoError(t, cw.Reload())
	assert.Equal(t, "/b", cw.Policy().Dir)

	writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /c\n  reload_policy: whenever\n")
	assert.Error(t, cw.Reload())
	assert.Equal(t, "/b", cw.Policy().Dir, "rejected change keeps the last good configuration")

	mu.Lock()
	assert.Equal(t, [][2]string{{"/a", "/b"}}, calls)
	mu.Unlock()
	assert.True(t, logger.HasMessage("INFO", "Configuration applied"))
	assert.True(t, logger.HasMessage("ERROR", "Panic recovered in goroutine"))
}

func TestConfigWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n")
	cw, err := NewConfigWatcher(path, fastConfigWatcherOptions(), NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, cw.Start())
	assert.True(t, cw.IsRunning())

	err = cw.Start()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already running"), err.Error())

	require.NoError(t, cw.Stop())
	assert.False(t, cw.IsRunning())
	assert.NoError(t, cw.Stop(), "second stop is a no-op")

	err = cw.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be restarted")
}

func TestConfigWatcher_DetectsFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n")
	logger := NewTestLogger()
	cw, err := NewConfigWatcher(path, fastConfigWatcherOptions(), logger)
	require.NoError(t, err)

	changed := make(chan Config, 4)
	cw.OnChange(func(_, current Config) { changed <- current })

	require.NoError(t, cw.Start())
	defer func() { _ = cw.Stop() }()

	// Let argus record the initial state before modifying the file.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n  adapters:\n    disabled: [UZCARD, HUMO]\n")

	select {
	case cfg := <-changed:
		assert.Equal(t, []ProcessorID{ProcessorUzcard, ProcessorHumo}, cfg.Plugins.Adapters.Disabled)
	case <-time.After(5 * time.Second):
		t.Fatal("Expected config change to be detected")
	}
	assert.False(t, cw.Policy().IsEnabled(ProcessorHumo))

	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n  reload_policy: nonsense-policy\n")
	assert.Eventually(t, func() bool {
		return logger.HasMessage("ERROR", "Rejected config change, keeping current configuration")
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, cw.Policy().IsEnabled(ProcessorHumo))
}

func TestConfigWatcher_PolicyFeedsRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n")
	cw, err := NewConfigWatcher(path, fastConfigWatcherOptions(), nil)
	require.NoError(t, err)

	registry := NewAdapterRegistry(cw, WithBuiltins(newStubAdapter(ProcessorUzcard, "builtin")))
	registry.Register(newStubAdapter(ProcessorHumo, "humo"))
	assert.Equal(t, []ProcessorID{ProcessorUzcard, ProcessorHumo}, registry.ListIDs())

	writeFile(t, dir, "billing.yaml", "plugins:\n  dir: /a\n  adapters:\n    disabled: [HUMO]\n")
	require.NoError(t, cw.Reload())

	assert.Equal(t, []ProcessorID{ProcessorUzcard}, registry.ListIDs())
}
