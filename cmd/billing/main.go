// main.go: Billing service hosting hot-reloadable payment adapters
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	payadapters "github.com/agilira/pay-adapters"
	_ "github.com/agilira/pay-adapters/adapters/humo"
	_ "github.com/agilira/pay-adapters/adapters/sandbox"
	"github.com/agilira/pay-adapters/adapters/uzcard"
	"github.com/agilira/pay-adapters/httpapi"
)

func main() {
	configPath := flag.String("config", "billing.yaml", "path to the YAML or JSON configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "billing: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := payadapters.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stdout)

	// The config watcher is the policy source for every component, so
	// enable/disable edits apply to the next request without a reload.
	configWatcher, err := payadapters.NewConfigWatcher(configPath, payadapters.DefaultConfigWatcherOptions(), logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := payadapters.NewMetrics(reg)

	registry := payadapters.NewAdapterRegistry(configWatcher,
		payadapters.WithBuiltins(uzcard.New(logger)),
		payadapters.WithRegistryLogger(logger),
		payadapters.WithRegistryMetrics(metrics))

	loader := payadapters.NewModuleLoader(registry, configWatcher,
		payadapters.WithLoaderOptions(cfg.LoaderOptions()),
		payadapters.WithLoaderLogger(logger),
		payadapters.WithLoaderMetrics(metrics))
	defer func() {
		if err := loader.Close(); err != nil {
			logger.Warn("Failed to dispose loading context", "error", err)
		}
	}()

	watcher := payadapters.NewDirectoryWatcher(loader, configWatcher,
		payadapters.WithWatcherOptions(cfg.WatcherOptions()),
		payadapters.WithWatcherLogger(logger),
		payadapters.WithWatcherMetrics(metrics))

	configWatcher.OnChange(func(previous, current payadapters.Config) {
		loader.UpdateOptions(current.LoaderOptions())
		if payadapters.WatchTopologyChanged(previous, current) {
			logger.Info("Plugin directory settings changed, restarting watcher", "dir", current.Plugins.Dir, "watch", current.Plugins.Watch)
			watcher.UpdateOptions(current.WatcherOptions())
			watcher.Restart(ctx)
		}
	})
	if err := configWatcher.Start(); err != nil {
		logger.Warn("Config hot reload disabled", "error", err)
	}
	defer func() { _ = configWatcher.Stop() }()

	watcher.Start(ctx)
	defer watcher.Stop()

	handler := httpapi.New(registry, loader,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(httpapi.RouterConfig{Handler: handler, Gatherer: reg}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Std(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Billing service listening", "addr", server.Addr, "plugins_dir", cfg.Plugins.Dir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down billing service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func shutdownTimeout(cfg payadapters.Config) time.Duration {
	if d := cfg.Server.ShutdownTimeout.Std(); d > 0 {
		return d
	}
	return 10 * time.Second
}
