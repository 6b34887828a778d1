package api

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

	"github.com/nerrad567/boxpanel/internal/appliance"
	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
	"github.com/nerrad567/boxpanel/internal/session"
	"github.com/nerrad567/boxpanel/internal/telemetry"
)

// dispatchCall records one proxied appliance call.
type dispatchCall struct {
	Method   string
	Resource string
	Body     any
}

// fakeSessions is a scriptable SessionService.
type fakeSessions struct {
	mu            sync.Mutex
	registered    bool
	authenticated bool
	perms         session.PermissionSet
	loginErr      error
	trackState    session.RegistrationState
	awaitState    session.RegistrationState
	awaitErr      error
	checkStale    bool
	checkErr      error
	calls         []dispatchCall
	result        *appliance.Result
}

func (f *fakeSessions) IsRegistered() bool    { return f.registered }
func (f *fakeSessions) IsAuthenticated() bool { return f.authenticated }

func (f *fakeSessions) Permissions() session.PermissionSet {
	if f.perms == nil {
		return session.PermissionSet{}
	}
	return f.perms
}

func (f *fakeSessions) Register(_ context.Context) (int, error) {
	f.registered = true
	return 42, nil
}

func (f *fakeSessions) PollApproval(_ context.Context, _ int) (session.RegistrationState, error) {
	return f.trackState, nil
}

func (f *fakeSessions) AwaitApproval(ctx context.Context, _ int) (session.RegistrationState, error) {
	if f.awaitState != "" || f.awaitErr != nil {
		return f.awaitState, f.awaitErr
	}
	<-ctx.Done()
	return session.RegistrationUnknown, ctx.Err()
}

func (f *fakeSessions) Login(_ context.Context) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.authenticated = true
	return nil
}

func (f *fakeSessions) Logout(_ context.Context) error {
	f.authenticated = false
	return nil
}

func (f *fakeSessions) Reset(_ context.Context) error {
	f.registered = false
	f.authenticated = false
	return nil
}

func (f *fakeSessions) Dispatch(_ context.Context, method, resource string, body any) *appliance.Result {
	f.mu.Lock()
	f.calls = append(f.calls, dispatchCall{Method: method, Resource: resource, Body: body})
	f.mu.Unlock()
	if f.result != nil {
		return f.result
	}
	return &appliance.Result{Success: true, Result: json.RawMessage(`{"ok":true}`)}
}

func (f *fakeSessions) CheckSession(_ context.Context) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.authenticated && !f.checkStale, nil
}

func (f *fakeSessions) lastCall(t *testing.T) dispatchCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no appliance calls dispatched")
	}
	return f.calls[len(f.calls)-1]
}

// testServer builds a Server around a fake session service and returns the
// router under httptest.
func testServer(t *testing.T, sessions *fakeSessions) (*httptest.Server, *Server) {
	t.Helper()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	broadcaster := telemetry.NewBroadcaster(sessions, time.Hour, time.Hour, log)
	t.Cleanup(broadcaster.Close)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			TicketSecret: "test-secret-key-at-least-32-characters-long",
			TicketTTL:    60,
		},
		Logger:      log,
		Sessions:    sessions,
		Broadcaster: broadcaster,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return ts, srv
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // test teardown
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp.StatusCode
}

func doJSON(t *testing.T, method, url, body string, dst any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // test teardown
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	sessions := &fakeSessions{registered: true, authenticated: true}
	ts, _ := testServer(t, sessions)

	var health map[string]any
	status := getJSON(t, ts.URL+"/api/v1/health", &health)
	if status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	if health["status"] != "ok" {
		t.Errorf("health.status = %v, want ok", health["status"])
	}
	if health["registered"] != true || health["authenticated"] != true {
		t.Errorf("health flags = %v, want registered and authenticated", health)
	}
	if health["session"] != "ok" {
		t.Errorf("health.session = %v, want ok for a live session", health["session"])
	}
}

func TestHealthSessionProbe(t *testing.T) {
	tests := []struct {
		name        string
		stale       bool
		checkErr    error
		wantSession string
		wantStatus  string
	}{
		{"live session", false, nil, "ok", "ok"},
		{"stale session", true, nil, "stale", "degraded"},
		{"appliance unreachable", false, errors.New("connection refused"), "unreachable", "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{
				registered:    true,
				authenticated: true,
				checkStale:    tt.stale,
				checkErr:      tt.checkErr,
			}
			ts, _ := testServer(t, sessions)

			var health map[string]any
			if status := getJSON(t, ts.URL+"/api/v1/health", &health); status != http.StatusOK {
				t.Fatalf("health status = %d, want 200", status)
			}
			if health["session"] != tt.wantSession {
				t.Errorf("health.session = %v, want %s", health["session"], tt.wantSession)
			}
			if health["status"] != tt.wantStatus {
				t.Errorf("health.status = %v, want %s", health["status"], tt.wantStatus)
			}
		})
	}
}

func TestHealthSkipsSessionProbeWhenLoggedOut(t *testing.T) {
	sessions := &fakeSessions{registered: true}
	ts, _ := testServer(t, sessions)

	var health map[string]any
	if status := getJSON(t, ts.URL+"/api/v1/health", &health); status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	if _, ok := health["session"]; ok {
		t.Errorf("health.session = %v, want absent without a session", health["session"])
	}
	if health["status"] != "ok" {
		t.Errorf("health.status = %v, want ok", health["status"])
	}
}

func TestSessionStatusEndpoint(t *testing.T) {
	sessions := &fakeSessions{
		registered: true,
		perms:      session.PermissionSet{"settings": true},
	}
	ts, _ := testServer(t, sessions)

	var body sessionStatusResponse
	status := getJSON(t, ts.URL+"/api/v1/auth/session", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !body.Registered || body.Authenticated {
		t.Errorf("body = %+v, want registered, unauthenticated", body)
	}
	if !body.Permissions.Granted("settings") {
		t.Error("permissions not exposed")
	}
}

func TestRegisterEndpoint(t *testing.T) {
	sessions := &fakeSessions{}
	ts, _ := testServer(t, sessions)

	var body map[string]any
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "", &body)
	if status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	if body["track_id"] != float64(42) {
		t.Errorf("track_id = %v, want 42", body["track_id"])
	}
}

func TestTrackEndpoint(t *testing.T) {
	sessions := &fakeSessions{trackState: session.RegistrationPending}
	ts, _ := testServer(t, sessions)

	var body map[string]any
	status := getJSON(t, ts.URL+"/api/v1/auth/track/42", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["status"] != "pending" || body["terminal"] != false {
		t.Errorf("body = %v, want pending non-terminal", body)
	}

	// Non-numeric track id is rejected before touching the appliance.
	if status := getJSON(t, ts.URL+"/api/v1/auth/track/abc", nil); status != http.StatusBadRequest {
		t.Errorf("status for bad id = %d, want 400", status)
	}
}

func TestTrackEndpointBlockingWait(t *testing.T) {
	tests := []struct {
		name         string
		awaitState   session.RegistrationState
		awaitErr     error
		wantStatus   string
		wantTerminal bool
	}{
		{"granted", session.RegistrationGranted, nil, "granted", true},
		{"denied", session.RegistrationDenied, session.ErrRegistrationDenied, "denied", true},
		{"timed out on the appliance", session.RegistrationTimeout, session.ErrRegistrationTimeout, "timeout", true},
		{"wait bound expired", session.RegistrationUnknown, context.DeadlineExceeded, "pending", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{awaitState: tt.awaitState, awaitErr: tt.awaitErr}
			ts, _ := testServer(t, sessions)

			var body map[string]any
			status := getJSON(t, ts.URL+"/api/v1/auth/track/42?wait=true", &body)
			if status != http.StatusOK {
				t.Fatalf("status = %d, want 200", status)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
			if body["terminal"] != tt.wantTerminal {
				t.Errorf("terminal = %v, want %v", body["terminal"], tt.wantTerminal)
			}
		})
	}
}

func TestLoginEndpointNotRegistered(t *testing.T) {
	sessions := &fakeSessions{loginErr: session.ErrNotRegistered}
	ts, _ := testServer(t, sessions)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", nil)
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409 when unregistered", status)
	}
}

func TestLoginLogoutEndpoints(t *testing.T) {
	sessions := &fakeSessions{registered: true}
	ts, _ := testServer(t, sessions)

	var body sessionStatusResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", &body)
	if status != http.StatusOK {
		t.Fatalf("login status = %d, want 200", status)
	}
	if !body.Authenticated {
		t.Error("login response not authenticated")
	}

	status = doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/logout", "", nil)
	if status != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", status)
	}
	if sessions.IsAuthenticated() {
		t.Error("still authenticated after logout")
	}
}

func TestDeleteCredentialEndpoint(t *testing.T) {
	sessions := &fakeSessions{registered: true, authenticated: true}
	ts, _ := testServer(t, sessions)

	status := doJSON(t, http.MethodDelete, ts.URL+"/api/v1/auth/credential", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if sessions.IsRegistered() {
		t.Error("still registered after credential delete")
	}
}

func TestBoxProxyPassthrough(t *testing.T) {
	sessions := &fakeSessions{registered: true, authenticated: true}
	ts, _ := testServer(t, sessions)

	var envelope appliance.Result
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/box/dhcp/lease/", `{"ip":"192.168.1.50"}`, &envelope)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !envelope.Success {
		t.Error("envelope not successful")
	}

	call := sessions.lastCall(t)
	if call.Method != http.MethodPost {
		t.Errorf("proxied method = %q, want POST", call.Method)
	}
	if call.Resource != "dhcp/lease/" {
		t.Errorf("proxied resource = %q, want dhcp/lease/", call.Resource)
	}
	raw, ok := call.Body.(json.RawMessage)
	if !ok || !strings.Contains(string(raw), "192.168.1.50") {
		t.Errorf("proxied body = %v, want raw JSON passthrough", call.Body)
	}
}

func TestBoxProxyErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		errorCode  string
		wantStatus int
	}{
		{"auth required", appliance.CodeAuthRequired, http.StatusUnauthorized},
		{"invalid token", appliance.CodeInvalidToken, http.StatusUnauthorized},
		{"insufficient rights", appliance.CodeInsufficientRights, http.StatusForbidden},
		{"deprecated", appliance.CodeDeprecated, http.StatusGone},
		{"network error", appliance.CodeNetworkError, http.StatusBadGateway},
		{"unknown code", "mystery", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{
				registered: true,
				result:     &appliance.Result{Success: false, ErrorCode: tt.errorCode, Message: "nope"},
			}
			ts, _ := testServer(t, sessions)

			var envelope appliance.Result
			status := getJSON(t, ts.URL+"/api/v1/box/connection/", &envelope)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			// The appliance envelope passes through untranslated.
			if envelope.ErrorCode != tt.errorCode || envelope.Message != "nope" {
				t.Errorf("envelope = %+v, want passthrough of %s", envelope, tt.errorCode)
			}
		})
	}
}

func TestBoxProxyRejectsInvalidJSON(t *testing.T) {
	sessions := &fakeSessions{registered: true}
	ts, _ := testServer(t, sessions)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/box/system/", "{{{not json", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid body", status)
	}
	sessions.mu.Lock()
	defer sessions.mu.Unlock()
	if len(sessions.calls) != 0 {
		t.Error("invalid body reached the appliance")
	}
}

func TestWSTicketEndpointAndGate(t *testing.T) {
	sessions := &fakeSessions{registered: true, authenticated: true}
	ts, _ := testServer(t, sessions)

	var body map[string]any
	status := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/ws-ticket", "", &body)
	if status != http.StatusOK {
		t.Fatalf("ticket status = %d, want 200", status)
	}
	ticket, _ := body["ticket"].(string) //nolint:errcheck // checked below
	if ticket == "" {
		t.Fatal("no ticket in response")
	}

	// The push channel refuses connections without a valid ticket.
	if status := getJSON(t, ts.URL+"/api/v1/ws", nil); status != http.StatusUnauthorized {
		t.Errorf("ws without ticket status = %d, want 401", status)
	}
	if status := getJSON(t, ts.URL+"/api/v1/ws?ticket=bogus", nil); status != http.StatusUnauthorized {
		t.Errorf("ws with bogus ticket status = %d, want 401", status)
	}
}

func TestRebootScheduleDisabled(t *testing.T) {
	sessions := &fakeSessions{}
	ts, _ := testServer(t, sessions)

	if status := getJSON(t, ts.URL+"/api/v1/reboot/schedule", nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when scheduling is disabled", status)
	}
}
