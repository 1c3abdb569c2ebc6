// Package apiclient issues JSON requests against the transport API and captures
// everything the contract checks need from the response.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 * 1024 * 1024

// Request describes one call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil
	Body any
	// Token is sent as "Authorization: Bearer <token>" when non-empty
	Token  string
	Header http.Header
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	// Fingerprint is the xxhash64 of the decoded body
	Fingerprint uint64
}

// Get returns the value at a gjson path in the body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// ValidJSON reports whether the body is well-formed JSON.
func (r *Response) ValidJSON() bool {
	return gjson.ValidBytes(r.Body)
}

// Message extracts the service's human-readable message, if any.
func (r *Response) Message() string {
	for _, path := range []string{"message", "error.message", "error"} {
		if v := r.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// Client sends requests to a single base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL using httpClient for transport.
func New(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a request path against the base URL.
func (c *Client) URL(req Request) string {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// Do sends req and reads the whole response.
// Any error returned is a transport-level failure; HTTP error statuses are not errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := c.URL(req)

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		slog.Debug("request failed", "method", req.Method, "url", target, "error", err)
		return nil, fmt.Errorf("%s %s: %w", req.Method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", req.Method, target, err)
	}
	duration := time.Since(start)

	decoded, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, target, err)
	}

	slog.Debug("request",
		"method", req.Method,
		"url", target,
		"status", resp.StatusCode,
		"duration", duration,
	)

	return &Response{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        decoded,
		Duration:    duration,
		Fingerprint: xxhash.Sum64(decoded),
	}, nil
}

// Curl renders req as a curl command line for failure diagnostics.
// The bearer token is masked.
func (c *Client) Curl(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s", req.Method)

	headers := map[string]string{"Content-Type": "application/json"}
	if req.Token != "" {
		headers["Authorization"] = "Bearer " + maskToken(req.Token)
	}
	for key := range req.Header {
		headers[key] = req.Header.Get(key)
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " -H '%s: %s'", k, headers[k])
	}

	if req.Body != nil {
		if data, err := json.Marshal(req.Body); err == nil {
			fmt.Fprintf(&b, " -d '%s'", data)
		}
	}

	fmt.Fprintf(&b, " '%s'", c.URL(req))
	return b.String()
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
