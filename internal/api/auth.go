package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boxpanel/internal/session"
)

// approvalWaitBound caps one blocking wait on the track endpoint so a
// long-poll never outlives proxy and browser timeouts.
const approvalWaitBound = 60 * time.Second

// sessionStatusResponse is the body of GET /auth/session.
type sessionStatusResponse struct {
	Registered    bool                  `json:"registered"`
	Authenticated bool                  `json:"authenticated"`
	Permissions   session.PermissionSet `json:"permissions"`
}

// handleSessionStatus reports the pairing and session state for the
// dashboard's connection screen.
func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Registered:    s.sessions.IsRegistered(),
		Authenticated: s.sessions.IsAuthenticated(),
		Permissions:   s.sessions.Permissions(),
	})
}

// handleRegister starts a new pairing with the appliance.
// The user must then approve the request physically on the appliance;
// GET /auth/track/{id} reports progress.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	trackID, err := s.sessions.Register(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "registration_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"track_id": trackID,
	})
}

// handleTrackRegistration reports approval progress for a registration.
// The frontend calls this endpoint while showing the "press the button on
// your box" screen: once per poll by default, or as a long-poll with
// ?wait=true that blocks until a terminal state or the wait bound.
func (s *Server) handleTrackRegistration(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "track id must be an integer")
		return
	}

	var state session.RegistrationState
	if r.URL.Query().Get("wait") == "true" {
		state, err = s.awaitApproval(r.Context(), trackID)
	} else {
		state, err = s.sessions.PollApproval(r.Context(), trackID)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "tracking_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   string(state),
		"terminal": state.Terminal(),
	})
}

// awaitApproval blocks until the registration reaches a terminal state or
// the wait bound expires. Denied and timeout are ordinary outcomes reported
// in the body; an expired wait reports pending so the client simply calls
// again.
func (s *Server) awaitApproval(ctx context.Context, trackID int) (session.RegistrationState, error) {
	ctx, cancel := context.WithTimeout(ctx, approvalWaitBound)
	defer cancel()

	state, err := s.sessions.AwaitApproval(ctx, trackID)
	switch {
	case errors.Is(err, session.ErrRegistrationDenied), errors.Is(err, session.ErrRegistrationTimeout):
		return state, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return session.RegistrationPending, nil
	default:
		return state, err
	}
}

// handleLogin opens an appliance session with the stored credential.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Login(r.Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrNotRegistered):
			writeError(w, http.StatusConflict, ErrCodeConflict, "not registered with the appliance")
		default:
			writeError(w, http.StatusBadGateway, "login_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Registered:    true,
		Authenticated: true,
		Permissions:   s.sessions.Permissions(),
	})
}

// handleLogout closes the appliance session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context()); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

// handleDeleteCredential wipes the stored application credential, undoing
// the pairing. The next login requires a fresh registration and approval.
func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Reset(r.Context()); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registered": false})
}

// handleWSTicket mints a single-use ticket for the push channel.
// The client passes it as the ticket query parameter on GET /ws so the
// long-lived WebSocket URL never carries a reusable credential.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	ticket, err := s.tickets.issue()
	if err != nil {
		writeInternalError(w, "failed to issue ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(s.secCfg.GetTicketTTL().Seconds()),
	})
}
