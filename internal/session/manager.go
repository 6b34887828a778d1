package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/boxpanel/internal/appliance"
	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
	"github.com/nerrad567/boxpanel/internal/infrastructure/metrics"
)

// approvalPollInterval is the delay between approval status polls.
// Physical approval takes seconds to minutes; 1s keeps the UI responsive
// without hammering the appliance.
const approvalPollInterval = 1 * time.Second

// backgroundRefreshTimeout bounds the permission refresh triggered by an
// insufficient_rights response.
const backgroundRefreshTimeout = 30 * time.Second

// Manager owns the trust relationship with the appliance.
//
// It drives the four-phase handshake (register, poll approval,
// challenge-response login, logout) on top of the appliance client and the
// credential store, and holds the in-memory session state: the session
// token, the current challenge, and the cached permission set.
//
// Concurrency model:
//   - The session token and permission set are replaced wholesale and read
//     through atomic pointers. In-flight calls keep the snapshot they
//     captured; a concurrent login or logout never mutates state under them.
//   - Login, Logout and Reset serialise on one mutex; calling Login while
//     already authenticated is the supported re-authentication path and
//     fully replaces the previous session.
//   - Register must not be invoked concurrently with itself; that is a
//     caller error, not a race the manager resolves.
type Manager struct {
	client *appliance.Client
	store  *Store
	cfg    config.ApplianceConfig
	logger *logging.Logger

	// loginMu serialises login/logout/reset transitions.
	loginMu sync.Mutex

	// credMu guards the application credential and the rolling challenge.
	credMu    sync.RWMutex
	cred      *Credential
	challenge string

	// sessionTok and perms are the only state shared with concurrent
	// request handlers; both are swapped atomically, never field-mutated.
	sessionTok atomic.Pointer[string]
	perms      atomic.Pointer[PermissionSet]

	// permsMu makes permission map replacement single-writer so a patch
	// can never resurrect a permission a concurrent refresh cleared.
	permsMu sync.Mutex

	// refreshing collapses concurrent background permission refreshes.
	refreshing atomic.Bool

	listenerMu sync.Mutex
	onAuth     func(authenticated bool)
}

// NewManager creates a session manager and loads any persisted credential.
//
// Parameters:
//   - client: Appliance HTTP client
//   - store: Credential store
//   - cfg: Appliance configuration (application identity tuple)
//   - logger: Logger instance
//
// Returns:
//   - *Manager: Manager ready for use (unauthenticated until Login)
//   - error: If the credential store is unreadable
func NewManager(client *appliance.Client, store *Store, cfg config.ApplianceConfig, logger *logging.Logger) (*Manager, error) {
	cred, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	m := &Manager{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "session"),
	}
	m.cred = cred
	empty := make(PermissionSet)
	m.perms.Store(&empty)

	return m, nil
}

// SetAuthListener registers a callback invoked after every authentication
// state change: true after a successful login, false after logout.
// The callback runs on the caller's goroutine and must not block.
func (m *Manager) SetAuthListener(fn func(authenticated bool)) {
	m.listenerMu.Lock()
	m.onAuth = fn
	m.listenerMu.Unlock()
}

// IsRegistered reports whether a persisted application credential exists.
func (m *Manager) IsRegistered() bool {
	m.credMu.RLock()
	defer m.credMu.RUnlock()
	return m.cred != nil
}

// IsAuthenticated reports whether a session token is currently held.
func (m *Manager) IsAuthenticated() bool {
	return m.sessionTok.Load() != nil
}

// Permissions returns a copy of the cached permission set.
func (m *Manager) Permissions() PermissionSet {
	return (*m.perms.Load()).clone()
}

// registerRequest is the registration call body.
type registerRequest struct {
	AppID      string `json:"app_id"`
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	DeviceName string `json:"device_name"`
}

// registerResult is the registration call success payload.
type registerResult struct {
	AppToken string `json:"app_token"`
	TrackID  int    `json:"track_id"`
}

// Register requests a new application credential from the appliance.
//
// On success the credential is persisted immediately and the returned
// tracking identifier is used to poll for physical approval. The caller
// must not retry automatically on failure: approval has to be solicited
// on the appliance itself first.
//
// Precondition: Register must not run concurrently with itself or with an
// in-progress approval poll for a previous registration.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - int: Tracking identifier for PollApproval
//   - error: ErrRegistration if the appliance is unreachable or refused
func (m *Manager) Register(ctx context.Context) (int, error) {
	res := m.DispatchUnauthenticated(ctx, "POST", "login/authorize/", registerRequest{
		AppID:      m.cfg.AppID,
		AppName:    m.cfg.AppName,
		AppVersion: m.cfg.AppVersion,
		DeviceName: m.cfg.DeviceName,
	})
	if !res.Success {
		return 0, fmt.Errorf("%w: %s", ErrRegistration, errorDetail(res))
	}

	var reg registerResult
	if err := res.DecodeResult(&reg); err != nil || reg.AppToken == "" {
		return 0, fmt.Errorf("%w: malformed registration payload", ErrRegistration)
	}

	cred := &Credential{AppToken: reg.AppToken, TrackID: reg.TrackID}
	if err := m.store.Save(cred); err != nil {
		return 0, fmt.Errorf("persisting credential: %w", err)
	}

	m.credMu.Lock()
	m.cred = cred
	m.credMu.Unlock()

	m.logger.Info("registration requested, awaiting physical approval", "track_id", reg.TrackID)
	return reg.TrackID, nil
}

// trackResult is the approval polling success payload.
type trackResult struct {
	Status    string `json:"status"`
	Challenge string `json:"challenge"`
}

// PollApproval fetches the current approval status for a registration.
//
// The appliance also returns a fresh challenge alongside the status; it is
// cached so a login immediately after "granted" can skip one round-trip.
//
// Parameters:
//   - ctx: Context for cancellation
//   - trackID: Tracking identifier from Register
//
// Returns:
//   - RegistrationState: Current state (pending or terminal)
//   - error: ErrRegistration if the poll call itself fails
func (m *Manager) PollApproval(ctx context.Context, trackID int) (RegistrationState, error) {
	res := m.DispatchUnauthenticated(ctx, "GET", fmt.Sprintf("login/authorize/%d", trackID), nil)
	if !res.Success {
		return RegistrationUnknown, fmt.Errorf("%w: %s", ErrRegistration, errorDetail(res))
	}

	var track trackResult
	if err := res.DecodeResult(&track); err != nil {
		return RegistrationUnknown, fmt.Errorf("%w: malformed tracking payload", ErrRegistration)
	}

	if track.Challenge != "" {
		m.credMu.Lock()
		m.challenge = track.Challenge
		m.credMu.Unlock()
	}

	switch RegistrationState(track.Status) {
	case RegistrationPending, RegistrationGranted, RegistrationDenied, RegistrationTimeout:
		return RegistrationState(track.Status), nil
	default:
		return RegistrationUnknown, nil
	}
}

// AwaitApproval polls the approval status at a fixed interval until a
// terminal state is reached or the context is cancelled.
//
// Polling stops the moment a terminal state is observed; denied and timeout
// are also surfaced as typed errors so callers can branch without string
// comparison.
//
// Parameters:
//   - ctx: Context for cancellation (the caller abandoning the wait)
//   - trackID: Tracking identifier from Register
//
// Returns:
//   - RegistrationState: The terminal state reached
//   - error: ErrRegistrationDenied, ErrRegistrationTimeout, poll failure,
//     or ctx.Err() if abandoned
func (m *Manager) AwaitApproval(ctx context.Context, trackID int) (RegistrationState, error) {
	ticker := time.NewTicker(approvalPollInterval)
	defer ticker.Stop()

	for {
		state, err := m.PollApproval(ctx, trackID)
		if err != nil {
			return state, err
		}
		if state.Terminal() {
			switch state {
			case RegistrationDenied:
				return state, ErrRegistrationDenied
			case RegistrationTimeout:
				return state, ErrRegistrationTimeout
			default:
				return state, nil
			}
		}

		select {
		case <-ctx.Done():
			return RegistrationUnknown, ctx.Err()
		case <-ticker.C:
		}
	}
}

// challengeResult is the unauthenticated login status payload.
type challengeResult struct {
	LoggedIn  bool   `json:"logged_in"`
	Challenge string `json:"challenge"`
}

// loginRequest is the session open call body.
type loginRequest struct {
	AppID      string `json:"app_id"`
	AppVersion string `json:"app_version"`
	Password   string `json:"password"`
}

// loginResult is the session open success payload.
type loginResult struct {
	SessionToken string          `json:"session_token"`
	Challenge    string          `json:"challenge"`
	Permissions  map[string]bool `json:"permissions"`
}

// Login performs the challenge-response login.
//
// Steps: fetch a fresh challenge, compute the HMAC-SHA1 proof keyed with
// the application token, submit it, and on success store the new session
// token, the rotated challenge, and the permission set.
//
// Login is safe to call repeatedly. If already authenticated it logs in
// again and fully replaces the prior session; this is the re-authentication
// path used after a detected session expiry. In-flight dispatches keep the
// token snapshot they already captured.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: ErrNotRegistered without a credential, ErrLogin on rejection
func (m *Manager) Login(ctx context.Context) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	err := m.login(ctx)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		return err
	}
	metrics.Logins.WithLabelValues("success").Inc()

	m.notifyAuth(true)
	return nil
}

// login is the lock-held body of Login.
func (m *Manager) login(ctx context.Context) error {
	m.credMu.RLock()
	cred := m.cred
	m.credMu.RUnlock()
	if cred == nil {
		return ErrNotRegistered
	}

	// Always fetch a fresh challenge: a cached one may have been consumed
	// by a previous attempt.
	res := m.DispatchUnauthenticated(ctx, "GET", "login/", nil)
	if !res.Success {
		return fmt.Errorf("%w: %s", ErrLogin, errorDetail(res))
	}
	var ch challengeResult
	if err := res.DecodeResult(&ch); err != nil || ch.Challenge == "" {
		return fmt.Errorf("%w: no challenge in login status", ErrLogin)
	}

	proof := LoginProof(cred.AppToken, ch.Challenge)

	res = m.DispatchUnauthenticated(ctx, "POST", "login/session/", loginRequest{
		AppID:      m.cfg.AppID,
		AppVersion: m.cfg.AppVersion,
		Password:   proof,
	})
	if !res.Success {
		return fmt.Errorf("%w: %s", ErrLogin, errorDetail(res))
	}

	var login loginResult
	if err := res.DecodeResult(&login); err != nil || login.SessionToken == "" {
		return fmt.Errorf("%w: malformed session payload", ErrLogin)
	}

	token := login.SessionToken
	m.sessionTok.Store(&token)

	m.credMu.Lock()
	m.challenge = login.Challenge
	m.credMu.Unlock()

	perms := PermissionSet(login.Permissions)
	if perms == nil {
		perms = make(PermissionSet)
	}
	m.permsMu.Lock()
	m.perms.Store(&perms)
	m.permsMu.Unlock()

	m.logger.Info("session opened", "permissions", len(perms))
	return nil
}

// Logout closes the current session.
//
// The appliance-side logout is best-effort: a failure is logged, not
// raised, and the local session token is cleared unconditionally.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Always nil; kept for interface symmetry with Login
func (m *Manager) Logout(ctx context.Context) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	tok := m.sessionTok.Load()
	if tok == nil {
		return nil
	}

	res := m.client.Call(ctx, "POST", "login/logout/", nil, *tok)
	if !res.Success {
		m.logger.Warn("appliance logout failed, clearing session anyway", "error_code", res.ErrorCode)
	}

	m.sessionTok.Store(nil)
	m.logger.Info("session closed")

	m.notifyAuth(false)
	return nil
}

// Reset wipes the persisted credential and all session state, forcing a
// brand-new registration.
//
// Parameters:
//   - ctx: Context for the best-effort logout
//
// Returns:
//   - error: If the credential file cannot be removed
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.Logout(ctx); err != nil {
		return err
	}

	if err := m.store.Erase(); err != nil {
		return err
	}

	m.credMu.Lock()
	m.cred = nil
	m.challenge = ""
	m.credMu.Unlock()

	m.logger.Info("credential erased, re-registration required")
	return nil
}

// Dispatch is the authenticated-request gateway used by all resource routes.
//
// The current session token is captured once, the call is made, and the
// uniform result is returned untranslated so generic routes can forward it
// to their own clients. Dispatch never returns a Go error.
//
// Two error codes get special handling before the result is returned:
//   - auth_required: one automatic re-login is attempted and the call
//     retried once with the new session
//   - insufficient_rights: the cached permission for the missing capability
//     is downgraded to false and a background refresh is scheduled
//
// Parameters:
//   - ctx: Context for cancellation
//   - method: HTTP method
//   - resource: Appliance resource path (e.g. "connection", "dhcp/lease/")
//   - body: Optional request body
//
// Returns:
//   - *appliance.Result: The call outcome, never nil
func (m *Manager) Dispatch(ctx context.Context, method, resource string, body any) *appliance.Result {
	res := m.client.Call(ctx, method, resource, body, m.tokenSnapshot())

	if res.ErrorCode == appliance.CodeAuthRequired {
		m.logger.Info("session expired, attempting automatic re-login")
		if err := m.Login(ctx); err != nil {
			m.logger.Warn("automatic re-login failed", "error", err)
			return res
		}
		res = m.client.Call(ctx, method, resource, body, m.tokenSnapshot())
	}

	if res.ErrorCode == appliance.CodeInsufficientRights && res.MissingRight != "" {
		m.patchPermission(res.MissingRight)
		go m.backgroundRefresh()
	}

	return res
}

// DispatchUnauthenticated performs a call without the session header.
// The registration and login flows run through it, and it serves the
// handful of public resources (API version, login status).
func (m *Manager) DispatchUnauthenticated(ctx context.Context, method, resource string, body any) *appliance.Result {
	return m.client.Call(ctx, method, resource, body, "")
}

// CheckSession asks the appliance whether the current session is still
// logged in. Used by health checks only; gating every dispatch on it would
// double the latency of every call.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - bool: Whether the appliance reports the session as logged in
//   - error: ErrAuthRequired when no session is held, or call failure
func (m *Manager) CheckSession(ctx context.Context) (bool, error) {
	tok := m.sessionTok.Load()
	if tok == nil {
		return false, ErrAuthRequired
	}

	res := m.client.Call(ctx, "GET", "login/", nil, *tok)
	if !res.Success {
		return false, fmt.Errorf("%w: %s", ErrAuthRequired, errorDetail(res))
	}

	var ch challengeResult
	if err := res.DecodeResult(&ch); err != nil {
		return false, fmt.Errorf("%w: malformed login status", ErrAuthRequired)
	}
	return ch.LoggedIn, nil
}

// RefreshPermissions replaces the cached permission set wholesale.
//
// The appliance only reports permissions in the login response, so a
// refresh is a full re-login. This is the single path allowed to upgrade
// a permission from false to true.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Login failure
func (m *Manager) RefreshPermissions(ctx context.Context) error {
	return m.Login(ctx)
}

// tokenSnapshot returns the current session token or "".
func (m *Manager) tokenSnapshot() string {
	if tok := m.sessionTok.Load(); tok != nil {
		return *tok
	}
	return ""
}

// patchPermission downgrades one capability to false on evidence of denial.
//
// The patch path never upgrades: if the capability is already false (or a
// concurrent refresh replaced the map) the copy simply restates it. Only
// RefreshPermissions/Login may set a capability back to true.
func (m *Manager) patchPermission(capability string) {
	m.permsMu.Lock()
	defer m.permsMu.Unlock()

	next := (*m.perms.Load()).clone()
	next[capability] = false
	m.perms.Store(&next)

	m.logger.Info("permission downgraded after appliance denial", "capability", capability)
}

// backgroundRefresh runs one permission refresh, collapsing concurrent
// triggers into a single attempt. Failures are logged and dropped; the
// downgraded cache already reflects the denial.
func (m *Manager) backgroundRefresh() {
	if !m.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer m.refreshing.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTimeout)
	defer cancel()

	if err := m.RefreshPermissions(ctx); err != nil {
		m.logger.Warn("background permission refresh failed", "error", err)
	}
}

// notifyAuth invokes the auth-change listener if one is registered.
func (m *Manager) notifyAuth(authenticated bool) {
	m.listenerMu.Lock()
	fn := m.onAuth
	m.listenerMu.Unlock()
	if fn != nil {
		fn(authenticated)
	}
}

// errorDetail renders an appliance failure for wrapping into a typed error.
func errorDetail(res *appliance.Result) string {
	if res.Message != "" {
		return res.Message
	}
	if res.ErrorCode != "" {
		return res.ErrorCode
	}
	return "unknown appliance error"
}
