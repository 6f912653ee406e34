// Package payadapters hosts payment processor adapters that can be added,
// replaced and removed while the billing service keeps running.
//
// Three components cooperate:
//
//   - AdapterRegistry holds at most one active Adapter per ProcessorID and
//     answers lookups filtered by the configured enable policy. Built-in
//     adapters are seeded at construction and survive every reload.
//   - ModuleLoader scans the plugin directory for bundle files, opens them
//     in a fresh LoadingContext, retries empty discoveries and registers
//     what it finds. The previous context is disposed on every reload.
//   - DirectoryWatcher subscribes to the plugin directory and asks the
//     loader to reload when bundle files change, coalescing bursts.
//
// Bundles are either manifests (.bundle, YAML or JSON) naming a provider
// for each advertised adapter, or Go plugins (.so) exporting
// PaymentAdapters. Providers are registered in a ProviderCatalog; the
// catalog always knows the "grpc" and "http" remote providers, and adapter
// packages add their own from init:
//
//	func init() {
//		payadapters.RegisterProvider("humo", humo.Factory)
//	}
//
// Basic usage:
//
//	cfg, err := payadapters.LoadConfig("billing.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	policy := payadapters.StaticPolicy(cfg.PolicyView())
//	registry := payadapters.NewAdapterRegistry(policy, payadapters.WithBuiltins(uzcard.New()))
//	loader := payadapters.NewModuleLoader(registry, policy,
//		payadapters.WithLoaderOptions(cfg.LoaderOptions()))
//	watcher := payadapters.NewDirectoryWatcher(loader, policy,
//		payadapters.WithWatcherOptions(cfg.WatcherOptions()))
//	watcher.Start(ctx)
//	defer watcher.Stop()
//
//	adapter, ok := registry.GetIfEnabled(payadapters.ProcessorHumo)
//
// Errors returned by the package are *errors.Error values from
// github.com/agilira/go-errors carrying a stable code, a user message and
// context fields.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package payadapters
