package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kestrel-trading/riskguard/internal/state"
)

type fakeQueries struct {
	snap *state.AccountState
}

func (f *fakeQueries) Snapshot(accountID string) *state.AccountState { return f.snap }
func (f *fakeQueries) AccountIDs() []string                          { return []string{f.snap.AccountID} }

type fakeReloader struct {
	called bool
	err    error
}

func (f *fakeReloader) ReloadConfig(ctx context.Context) error {
	f.called = true
	return f.err
}

type fakeShutdown struct {
	called bool
}

func (f *fakeShutdown) RequestShutdown(ctx context.Context) error {
	f.called = true
	return nil
}

type fakeHealth struct {
	status HealthStatus
}

func (f *fakeHealth) Health() HealthStatus { return f.status }

func newTestServer(t *testing.T) (*Server, *fakeReloader, *fakeShutdown) {
	t.Helper()
	snap := state.NewAccountState("acct1", time.Now())
	reloader := &fakeReloader{}
	shutdown := &fakeShutdown{}
	health := &fakeHealth{status: HealthStatus{QueueHealthy: true}}
	s := New("127.0.0.1:0", &fakeQueries{snap: snap}, reloader, shutdown, health, 100, 2*time.Second, zaptest.NewLogger(t))
	return s, reloader, shutdown
}

// get_health returns the wired HealthReporter's status verbatim.
func TestGetHealth_ReturnsReporterStatus(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/control/health", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue_healthy":true`)
}

// reload_config invokes the wired ConfigReloader and reports success.
func TestPostReloadConfig_InvokesReloader(t *testing.T) {
	s, reloader, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/control/reload-config", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.True(t, reloader.called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// request_shutdown invokes the wired ShutdownRequester and returns 202.
func TestPostShutdown_InvokesShutdownRequester(t *testing.T) {
	s, _, shutdown := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/control/shutdown", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.True(t, shutdown.called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// get_enforcement_history reports an empty history when no audit store is
// wired, rather than failing the route (spec §1: audit is supplemental).
func TestGetEnforcementHistory_NoLookupWired_ReturnsEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/control/accounts/acct1/enforcement-history", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

// get_account_state serves the Queries snapshot for the requested id.
func TestGetAccountState_ReturnsSnapshot(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/control/accounts/acct1/state", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"account_id":"acct1"`)
}
