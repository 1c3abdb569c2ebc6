// Package httpclient provides the HTTP client factory used to reach the service under test.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds configuration options for creating HTTP clients
type ClientConfig struct {
	// Timeout bounds a whole request, including reading the body
	Timeout time.Duration

	// DialTimeout is the maximum amount of time a dial will wait for a connect to complete
	DialTimeout time.Duration

	// KeepAlive specifies the interval between keep-alive probes for an active network connection
	KeepAlive time.Duration

	// TLSHandshakeTimeout specifies the maximum amount of time to wait for a TLS handshake
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout specifies the amount of time to wait for a server's response headers
	ResponseHeaderTimeout time.Duration

	// MaxIdleConnsPerHost controls the idle (keep-alive) connections kept for the target
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays in the pool
	IdleConnTimeout time.Duration
}

// DefaultConfig returns a ClientConfig whose per-call budget is timeout.
// Dial, TLS and header waits are capped by the same budget so a black-holed
// target fails within it instead of hanging on connect.
func DefaultConfig(timeout time.Duration) ClientConfig {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return ClientConfig{
		Timeout:               timeout,
		DialTimeout:           timeout,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
	}
}

// NewHTTPClient creates a new HTTP client with the provided configuration.
// Redirects are not followed: the runner asserts on the status the target returns.
func NewHTTPClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		// Content-Encoding is handled by the caller so br can be decoded too
		DisableCompression:    true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
