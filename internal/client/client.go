package client

import (
	"fmt"
	"net"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	retry "github.com/appleboy/go-httpretry"
)

// CreateOptimizedTransport creates a transport with connection pool settings
// for the few upstream hosts an identity provider talks to.
func CreateOptimizedTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// CreateProviderHTTPClient creates the HTTP client used for OAuth code
// exchange and provider API calls.
func CreateProviderHTTPClient(timeout time.Duration) (*http.Client, error) {
	httpClient, err := httpclient.NewClient(
		httpclient.WithTimeout(timeout),
		httpclient.WithTransport(CreateOptimizedTransport()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider HTTP client: %w", err)
	}
	return httpClient, nil
}

// CreateRetryClient wraps httpClient with exponential backoff retries.
func CreateRetryClient(
	httpClient *http.Client,
	maxRetries int,
	retryDelay, maxRetryDelay time.Duration,
) (*retry.Client, error) {
	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(httpClient),
		retry.WithMaxRetries(maxRetries),
		retry.WithInitialRetryDelay(retryDelay),
		retry.WithMaxRetryDelay(maxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return retryClient, nil
}
