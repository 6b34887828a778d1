package appliance

import "encoding/json"

// Error codes reported by the appliance in failure envelopes.
const (
	// CodeAuthRequired means the session token is missing, expired, or
	// invalid. Recoverable: log in again and retry.
	CodeAuthRequired = "auth_required"

	// CodeInvalidToken means the application token itself was revoked on
	// the appliance. A new registration is required.
	CodeInvalidToken = "invalid_token"

	// CodeInsufficientRights means the session lacks a specific capability;
	// the missing capability name is carried in MissingRight.
	CodeInsufficientRights = "insufficient_rights"

	// CodeDeprecated means the called feature no longer exists on this
	// firmware. Not retryable.
	CodeDeprecated = "deprecated"
)

// Error codes synthesised client-side. These never originate from the
// appliance; they normalise local failures into the same envelope.
const (
	// CodeNetworkError covers unreachable appliance, timeouts, and broken
	// connections.
	CodeNetworkError = "network_error"

	// CodeInvalidResponse covers non-JSON or structurally broken payloads.
	CodeInvalidResponse = "invalid_response"

	// CodeInvalidRequest covers request-construction failures (unencodable
	// body, malformed method).
	CodeInvalidRequest = "invalid_request"
)

// Result is the uniform outcome of every appliance call.
//
// It mirrors the appliance's wire envelope exactly, so route handlers can
// forward it to dashboard clients without translation.
type Result struct {
	Success      bool            `json:"success"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	Message      string          `json:"msg,omitempty"`
	MissingRight string          `json:"missing_right,omitempty"`
}

// Outcome returns a short label for metrics: "success" or the error code.
func (r *Result) Outcome() string {
	if r.Success {
		return "success"
	}
	if r.ErrorCode == "" {
		return "unknown_error"
	}
	return r.ErrorCode
}

// DecodeResult unmarshals the success payload into dst.
func (r *Result) DecodeResult(dst any) error {
	return json.Unmarshal(r.Result, dst)
}
