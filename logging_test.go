// logging_test.go: logger adapters and test logger behaviour
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogger_BasicMessageCapture tests that every level is captured
func TestLogger_BasicMessageCapture(t *testing.T) {
	logger := NewTestLogger()

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", "count", 3)

	messages := logger.Messages()
	if len(messages) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(messages))
	}
	levels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, level := range levels {
		if messages[i].Level != level {
			t.Errorf("Message %d: expected level %s, got %s", i, level, messages[i].Level)
		}
	}
	if got := messages[0].Args; len(got) != 2 || got[0] != "key" || got[1] != "value" {
		t.Errorf("Unexpected args %v", got)
	}
	if !logger.HasMessage("ERROR", "error message") {
		t.Error("Expected HasMessage to find the error message")
	}
	if logger.HasMessage("INFO", "error message") {
		t.Error("HasMessage must match the level too")
	}
}

// TestLogger_WithMethod tests field inheritance and the shared buffer
func TestLogger_WithMethod(t *testing.T) {
	root := NewTestLogger()
	child := root.With("component", "module_loader")
	grandchild := child.With("generation", 2)

	grandchild.Info("Adapters loaded", "registered", 1)

	if root.CountMessages("INFO", "Adapters loaded") != 1 {
		t.Fatal("Expected child messages on the root logger")
	}
	args := root.Messages()[0].Args
	want := []any{"component", "module_loader", "generation", 2, "registered", 1}
	if len(args) != len(want) {
		t.Fatalf("Expected args %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("Arg %d: expected %v, got %v", i, want[i], args[i])
		}
	}

	root.Clear()
	if len(root.Messages()) != 0 {
		t.Error("Expected Clear to empty the shared buffer")
	}
}

// TestLogger_ContextIntegration tests storing a logger in a context
func TestLogger_ContextIntegration(t *testing.T) {
	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)

	LoggerFromContext(ctx).Info("from context")
	if !logger.HasMessage("INFO", "from context") {
		t.Error("Expected message logged through context logger")
	}

	if _, ok := LoggerFromContext(context.Background()).(*NoOpLogger); !ok {
		t.Error("Expected NoOpLogger fallback")
	}
}

// TestLogger_FactoryAndNoOp tests NewLogger type handling
func TestLogger_FactoryAndNoOp(t *testing.T) {
	test := NewTestLogger()
	if NewLogger(test) != Logger(test) {
		t.Error("Expected Logger to be used directly")
	}
	if _, ok := NewLogger(slog.Default()).(*SlogLogger); !ok {
		t.Error("Expected *slog.Logger to be wrapped")
	}
	if _, ok := NewLogger(nil).(*NoOpLogger); !ok {
		t.Error("Expected nil to give NoOpLogger")
	}

	noop := NewNoOpLogger()
	noop.Info("ignored")
	if noop.With("k", "v") != Logger(noop) {
		t.Error("Expected NoOpLogger.With to return itself")
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unsupported logger type")
		}
	}()
	NewLogger("not a logger")
}

// TestSlogLogger_Output tests the slog adapter writes structured records
func TestSlogLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.With("component", "registry").Warn("Replaced adapter", "processor", "HUMO")

	out := buf.String()
	for _, want := range []string{"level=WARN", "msg=\"Replaced adapter\"", "component=registry", "processor=HUMO"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}

	if NewSlogLogger(nil) == nil {
		t.Error("Expected fallback to slog.Default")
	}
}

// TestLogger_ThreadSafety tests concurrent writes to the shared buffer
func TestLogger_ThreadSafety(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := logger.With("worker", i)
			for j := 0; j < 100; j++ {
				child.Info("tick")
			}
		}(i)
	}
	wg.Wait()

	if n := logger.CountMessages("INFO", "tick"); n != 1000 {
		t.Errorf("Expected 1000 messages, got %d", n)
	}
}
