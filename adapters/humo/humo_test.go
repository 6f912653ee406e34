// humo_test.go: Humo adapter and provider tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package humo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	payadapters "github.com/agilira/pay-adapters"
)

func request(amount int64) payadapters.PaymentRequest {
	return payadapters.PaymentRequest{OperationID: "op-42", Amount: amount, Currency: "UZS", From: "a", To: "b"}
}

func TestAdapter_Debit(t *testing.T) {
	a := New(payadapters.NewTestLogger())

	ok, err := a.Debit(context.Background(), request(1000))
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.Equal(t, "OK", ok.Code)
	assert.Equal(t, "Debited via Humo", ok.Message)
	assert.Equal(t, map[string]any{"provider": "HUMO", "operationId": "op-42"}, ok.Payload)

	declined, err := a.Debit(context.Background(), request(0))
	require.NoError(t, err)
	assert.False(t, declined.Success)
	assert.Equal(t, "AMOUNT_INVALID", declined.Code)
	assert.Equal(t, "Amount must be > 0", declined.Message)
}

func TestAdapter_ReverseAndCheck(t *testing.T) {
	a := New(nil)
	assert.Equal(t, payadapters.ProcessorHumo, a.ID())

	rev, err := a.Reverse(context.Background(), request(10))
	require.NoError(t, err)
	assert.Equal(t, "REV_OK", rev.Code)
	assert.Equal(t, "Reverse accepted via Humo", rev.Message)

	chk, err := a.Check(context.Background(), request(10))
	require.NoError(t, err)
	assert.Equal(t, "CHK_OK", chk.Code)
	assert.Equal(t, "Payment is confirmed via Humo", chk.Message)
}

func TestFactory(t *testing.T) {
	a, err := Factory(context.Background(), payadapters.AdapterSpec{Processor: payadapters.ProcessorHumo, Provider: ProviderName})
	require.NoError(t, err)
	assert.Equal(t, payadapters.ProcessorHumo, a.ID())

	_, err = Factory(context.Background(), payadapters.AdapterSpec{Processor: payadapters.ProcessorClick, Provider: ProviderName})
	assert.Error(t, err)
}

func TestFactory_LogsThroughContextLogger(t *testing.T) {
	logger := payadapters.NewTestLogger()
	ctx := payadapters.ContextWithLogger(context.Background(), logger)

	a, err := Factory(ctx, payadapters.AdapterSpec{Processor: payadapters.ProcessorHumo, Provider: ProviderName})
	require.NoError(t, err)
	_, err = a.Debit(context.Background(), request(500))
	require.NoError(t, err)

	assert.True(t, logger.HasMessage("INFO", "Humo debit request"))
	assert.True(t, logger.HasMessage("INFO", "Humo debit response"))
}

func TestProviderRegisteredInDefaultCatalog(t *testing.T) {
	_, ok := payadapters.DefaultCatalog().Lookup("HUMO")
	assert.True(t, ok)
}

func TestBundleLoadedThroughDefaultCatalog(t *testing.T) {
	dir := t.TempDir()
	manifest := "name: humo\nversion: 1.0.0\nadapters:\n  - processor: HUMO\n    provider: humo\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "humo.bundle"), []byte(manifest), 0o600))

	registry := payadapters.NewAdapterRegistry(payadapters.StaticPolicy{})
	logger := payadapters.NewTestLogger()
	loader := payadapters.NewModuleLoader(registry, payadapters.StaticPolicy{Dir: dir},
		payadapters.WithLoaderLogger(logger))
	defer func() { _ = loader.Close() }()

	loader.LoadAll(context.Background())

	got, ok := registry.GetIfEnabled(payadapters.ProcessorHumo)
	require.True(t, ok)
	assert.IsType(t, &Adapter{}, got)

	_, err := got.Check(context.Background(), request(10))
	require.NoError(t, err)
	assert.True(t, logger.HasMessage("INFO", "Humo check request"), "bundle-loaded adapter logs through the loader logger")
}
