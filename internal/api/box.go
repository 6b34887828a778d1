package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boxpanel/internal/appliance"
)

// handleBoxProxy forwards a request to the corresponding appliance
// resource through the session gateway.
//
// The method, sub-path and body pass through untouched, and the uniform
// appliance envelope comes back verbatim, so every appliance resource is
// reachable without a per-resource handler. The HTTP status is derived
// from the envelope's error code; the body is always the envelope itself.
func (s *Server) handleBoxProxy(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "*")
	if resource == "" {
		writeNotFound(w, "appliance resource path is required")
		return
	}

	var body any
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeBadRequest(w, "reading request body: "+err.Error())
			return
		}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				writeBadRequest(w, "request body must be valid JSON")
				return
			}
			body = json.RawMessage(raw)
		}
	}

	res := s.sessions.Dispatch(r.Context(), r.Method, resource, body)
	writeJSON(w, statusForResult(res), res)
}

// statusForResult maps the appliance envelope onto an HTTP status.
// Success and device-side rejections keep the envelope as the body either
// way; the status exists so generic HTTP clients can branch without
// parsing it.
func statusForResult(res *appliance.Result) int {
	if res.Success {
		return http.StatusOK
	}

	switch res.ErrorCode {
	case appliance.CodeAuthRequired, appliance.CodeInvalidToken:
		return http.StatusUnauthorized
	case appliance.CodeInsufficientRights:
		return http.StatusForbidden
	case appliance.CodeDeprecated:
		return http.StatusGone
	case appliance.CodeInvalidRequest:
		return http.StatusBadRequest
	case appliance.CodeNetworkError, appliance.CodeInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
