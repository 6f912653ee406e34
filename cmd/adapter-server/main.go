// main.go: Serves a sandbox adapter to billing hosts over gRPC or HTTP
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Command adapter-server hosts one sandbox adapter out of process. A bundle
// pointing at it:
//
//	adapters:
//	  - processor: CLICK
//	    provider: grpc
//	    endpoint: localhost:50051
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	payadapters "github.com/agilira/pay-adapters"
	"github.com/agilira/pay-adapters/adapters/sandbox"
)

func main() {
	processor := flag.String("processor", "CLICK", "processor id to serve")
	transport := flag.String("transport", "grpc", "grpc or http")
	addr := flag.String("addr", "localhost:50051", "listen address")
	flag.Parse()

	logger := payadapters.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(*processor, *transport, *addr, logger); err != nil {
		fmt.Fprintf(os.Stderr, "adapter-server: %v\n", err)
		os.Exit(1)
	}
}

func run(processor, transport, addr string, logger payadapters.Logger) error {
	id, err := payadapters.ParseProcessorID(processor)
	if err != nil {
		return err
	}
	adapter := sandbox.New(id, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	switch transport {
	case "grpc":
		server := grpc.NewServer(
			grpc.MaxRecvMsgSize(1024*1024),
			grpc.MaxSendMsgSize(1024*1024),
		)
		payadapters.RegisterAdapterServer(server, adapter)
		g.Go(func() error { return server.Serve(listener) })
		g.Go(func() error {
			<-gctx.Done()
			server.GracefulStop()
			return nil
		})
	case "http":
		server := &http.Server{
			Handler:           payadapters.NewAdapterHTTPHandler(adapter),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	default:
		_ = listener.Close()
		return fmt.Errorf("unknown transport %q", transport)
	}

	logger.Info("Serving sandbox adapter", "processor", id.String(), "transport", transport, "addr", listener.Addr().String())
	err = g.Wait()
	logger.Info("Adapter server stopped", "calls", adapter.Calls())
	return err
}
