//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okucheck/config"
	"okucheck/internal/apiclient"
	"okucheck/internal/contract"
	"okucheck/internal/httpclient"
	"okucheck/internal/report"
)

const origin = "http://localhost:3000"

func run(t *testing.T, baseURL, suite string, timeout time.Duration) *contract.RunReport {
	t.Helper()
	client := apiclient.New(baseURL, httpclient.NewHTTPClient(httpclient.DefaultConfig(timeout)))
	steps := contract.Catalog(contract.NewFixture(time.Now(), origin), suite)
	return contract.NewRunner(client, steps, contract.WithSuite(suite)).Run(context.Background())
}

func caseNamed(t *testing.T, r *contract.RunReport, name string) *contract.TestCase {
	t.Helper()
	for _, tc := range r.Cases {
		if tc.Name == name {
			return tc
		}
	}
	t.Fatalf("no case named %q", name)
	return nil
}

func TestFullSuite(t *testing.T) {
	r := run(t, apiURL, config.SuiteFull, 5*time.Second)

	for _, tc := range r.Failures() {
		t.Errorf("%s: [%s] %s", tc.Name, tc.FailureKind, tc.Message)
	}
	assert.Equal(t, 25, r.Total)
	assert.Equal(t, r.Total, r.Passed+r.Failed)
	assert.Equal(t, config.SuiteFull, r.Suite)

	var out bytes.Buffer
	require.NoError(t, report.Write(&out, config.FormatText, r, false))
	assert.Contains(t, out.String(), "Success Rate: 100.0%")
}

func TestRepeatedRunsDoNotCollide(t *testing.T) {
	// the mock keeps state across runs, so duplicate emails would fail registration
	first := run(t, apiURL, config.SuiteCore, 5*time.Second)
	second := run(t, apiURL, config.SuiteCore, 5*time.Second)

	assert.True(t, first.OK())
	assert.True(t, second.OK())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRequestsCarryContract(t *testing.T) {
	proxy := newFaultProxy(t, apiURL)
	r := run(t, proxy.URL(), config.SuiteCore, 5*time.Second)
	require.True(t, r.OK())

	reqs := proxy.Requests()
	require.Len(t, reqs, 14, "one request per core step")

	var preflight, authorized int
	for _, req := range reqs {
		if req.Method == http.MethodOptions {
			preflight++
			assert.Equal(t, origin, req.Headers.Get("Origin"))
			assert.Equal(t, http.MethodPost, req.Headers.Get("Access-Control-Request-Method"))
		}
		if req.Path == "/api/profile" && req.Headers.Get("Authorization") != "" {
			authorized++
		}
	}
	assert.Equal(t, 1, preflight)
	assert.Equal(t, 2, authorized, "profile with a real token and with a malformed one")
}

func TestInjectedFailures(t *testing.T) {
	proxy := newFaultProxy(t, apiURL)
	proxy.Fail(http.MethodPost, "/api/login", http.StatusInternalServerError, `{"message":"database unavailable"}`)

	r := run(t, proxy.URL(), config.SuiteFull, 5*time.Second)

	assert.False(t, r.OK())
	assert.Equal(t, r.Total, r.Passed+r.Failed)

	login := caseNamed(t, r, "Login OKU User")
	assert.Equal(t, contract.KindAssertion, login.FailureKind)
	assert.Equal(t, http.StatusInternalServerError, login.StatusCode)
	assert.NotEmpty(t, login.Curl)

	profile := caseNamed(t, r, "Profile Route (Protected)")
	assert.Equal(t, contract.KindPrecondition, profile.FailureKind)
	assert.Zero(t, profile.StatusCode)

	assert.True(t, caseNamed(t, r, "Server Health Check").Passed())
	assert.True(t, caseNamed(t, r, "CORS Configuration").Passed())
}

func TestSlowEndpointIsTransportFailure(t *testing.T) {
	proxy := newFaultProxy(t, apiURL)
	proxy.Delay(http.MethodPost, "/api/register", 2*time.Second)

	r := run(t, proxy.URL(), config.SuiteCore, 300*time.Millisecond)

	reg := caseNamed(t, r, "Register OKU User")
	assert.Equal(t, contract.OutcomeFail, reg.Outcome)
	assert.Equal(t, contract.KindTransport, reg.FailureKind)
	assert.Less(t, reg.Duration, 2*time.Second)

	assert.True(t, caseNamed(t, r, "Invalid Login").Passed())
}
