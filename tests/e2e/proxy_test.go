//go:build e2e

package e2e

import (
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"sync"
	"testing"
	"time"
)

// RecordedRequest stores information about a proxied request.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

// faultProxy forwards to the mock API, records every request and can fail or
// delay requests matching a method and path.
type faultProxy struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	faults   map[string]fault
}

type fault struct {
	status int
	body   string
	delay  time.Duration
}

func newFaultProxy(t *testing.T, target string) *faultProxy {
	t.Helper()
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("invalid target %q: %v", target, err)
	}
	rp := httputil.NewSingleHostReverseProxy(u)

	p := &faultProxy{faults: make(map[string]fault)}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
		})
		f, ok := p.faults[r.Method+" "+r.URL.Path]
		p.mu.Unlock()

		if ok {
			if f.delay > 0 {
				select {
				case <-time.After(f.delay):
				case <-r.Context().Done():
					return
				}
			}
			if f.status != 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(f.status)
				_, _ = w.Write([]byte(f.body))
				return
			}
		}
		rp.ServeHTTP(w, r)
	}))
	t.Cleanup(p.server.Close)
	return p
}

// URL is the proxy's base URL.
func (p *faultProxy) URL() string {
	return p.server.URL
}

// Fail answers method+path with status and body instead of forwarding.
func (p *faultProxy) Fail(method, path string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[method+" "+path] = fault{status: status, body: body}
}

// Delay holds method+path for d before forwarding.
func (p *faultProxy) Delay(method, path string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[method+" "+path] = fault{delay: d}
}

// Requests returns a copy of the recorded requests.
func (p *faultProxy) Requests() []RecordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RecordedRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
