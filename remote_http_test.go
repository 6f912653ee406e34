// remote_http_test.go: HTTP provider and adapter handler round trips
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPAdapter(t *testing.T, endpoint string, options map[string]string) *HTTPAdapter {
	t.Helper()
	adapter, err := NewHTTPAdapterFactory(nil)(context.Background(), AdapterSpec{
		Processor: ProcessorPayme,
		Provider:  ProviderHTTP,
		Endpoint:  endpoint,
		Timeout:   Duration(2 * time.Second),
		Options:   options,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.(*HTTPAdapter).Close() })
	return adapter.(*HTTPAdapter)
}

func TestHTTPAdapter_RoundTripThroughAdapterHandler(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []http.Header
	)
	inner := NewAdapterHTTPHandler(newStubAdapter(ProcessorPayme, "remote"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		inner.ServeHTTP(w, r)
	}))
	defer server.Close()

	adapter := newHTTPAdapter(t, server.URL+"/", map[string]string{"header.X-Api-Key": "secret", "label": "ignored"})
	assert.Equal(t, ProcessorPayme, adapter.ID())

	for _, op := range []Operation{OperationDebit, OperationReverse, OperationCheck} {
		resp, err := Invoke(context.Background(), adapter, op, validRequest())
		require.NoError(t, err, op)
		assert.Equal(t, "remote", resp.Code)
		assert.Equal(t, string(op), resp.Message)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, headers, 3)
	assert.Equal(t, "secret", headers[0].Get("X-Api-Key"))
	assert.Equal(t, "op-1", headers[0].Get("X-Operation-ID"))
	assert.Equal(t, "application/json", headers[0].Get("Content-Type"))
	assert.Equal(t, "pay-adapters/1.0", headers[0].Get("User-Agent"))
	assert.Empty(t, headers[0].Get("Label"))
}

func TestHTTPAdapter_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(NewAdapterHTTPHandler(failingAdapter{id: ProcessorPayme}))
	defer server.Close()
	adapter := newHTTPAdapter(t, server.URL, nil)

	_, err := adapter.Debit(context.Background(), validRequest())

	var e *goerrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, goerrors.ErrorCode(ErrCodeHTTPTransportError), e.ErrorCode())
	assert.Equal(t, http.StatusBadGateway, e.Context["status"])
	assert.False(t, e.IsRetryable())
}

func TestHTTPAdapter_UndecodableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer server.Close()
	adapter := newHTTPAdapter(t, server.URL, nil)

	_, err := adapter.Check(context.Background(), validRequest())

	var e *goerrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, goerrors.ErrorCode(ErrCodeHTTPTransportError), e.ErrorCode())
	assert.NotNil(t, e.Cause)
}

func TestHTTPAdapter_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	adapter, err := NewHTTPAdapterFactory(server.Client())(context.Background(), AdapterSpec{
		Processor: ProcessorPayme,
		Endpoint:  server.URL,
		Timeout:   Duration(100 * time.Millisecond),
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = adapter.Debit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var e *goerrors.Error
	require.True(t, errors.As(err, &e))
	assert.True(t, e.IsRetryable())
}

func TestHTTPAdapterFactory_Validation(t *testing.T) {
	factory := NewHTTPAdapterFactory(nil)
	for _, endpoint := range []string{"", "localhost:8080", "ftp://files.example", "http://"} {
		_, err := factory(context.Background(), AdapterSpec{Processor: ProcessorPayme, Endpoint: endpoint})
		var e *goerrors.Error
		require.True(t, errors.As(err, &e), endpoint)
		assert.Equal(t, goerrors.ErrorCode(ErrCodeInvalidEndpoint), e.ErrorCode(), endpoint)
	}
}

func TestAdapterHTTPHandler(t *testing.T) {
	handler := NewAdapterHTTPHandler(newStubAdapter(ProcessorHumo, "local"))

	t.Run("Success", func(t *testing.T) {
		body, _ := json.Marshal(validRequest())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(string(body))))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp PaymentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "check", resp.Message)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debit", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debit", strings.NewReader(`{"operationId":"x"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debit", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("UnknownOperation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refund", strings.NewReader("{}")))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
