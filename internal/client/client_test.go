package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOptimizedTransport(t *testing.T) {
	transport := CreateOptimizedTransport()
	assert.Equal(t, 10, transport.MaxIdleConnsPerHost)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.NotNil(t, transport.DialContext)
}

func TestCreateProviderHTTPClient(t *testing.T) {
	httpClient, err := CreateProviderHTTPClient(3 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, httpClient.Timeout)
}

func TestCreateRetryClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	httpClient, err := CreateProviderHTTPClient(5 * time.Second)
	require.NoError(t, err)
	retryClient, err := CreateRetryClient(httpClient, 2, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	resp, err := retryClient.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCreateRetryClient_NoRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	httpClient, err := CreateProviderHTTPClient(5 * time.Second)
	require.NoError(t, err)
	retryClient, err := CreateRetryClient(httpClient, 0, time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	resp, err := retryClient.Get(context.Background(), server.URL)
	if err == nil {
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Equal(t, int32(1), hits.Load())
}
