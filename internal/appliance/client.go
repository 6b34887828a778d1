package appliance

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
	"github.com/nerrad567/boxpanel/internal/infrastructure/metrics"
)

// SessionHeader is the request header carrying the session token on
// authenticated calls. The name is fixed by the appliance protocol.
const SessionHeader = "X-Fbx-App-Auth"

// maxResponseSize caps appliance response bodies (8 MB).
// Resource payloads (file listings, call logs) are well below this.
const maxResponseSize = 8 << 20

// Client issues HTTP requests to the appliance's local API.
//
// It is the single network primitive under the session manager: it attaches
// the session header when a token is supplied, enforces the configured
// per-request timeout, and never returns a Go error. Transport failures and
// unparseable payloads are normalised into a Result with a synthetic error
// code, so callers handle exactly one shape.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New creates an appliance client from configuration.
//
// Parameters:
//   - cfg: Appliance connection settings (base URL, request timeout)
//
// Returns:
//   - *Client: Ready-to-use client
func New(cfg config.ApplianceConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{},
		timeout: cfg.GetRequestTimeout(),
	}
}

// Call performs one appliance API request.
//
// The path is relative to the configured base URL (e.g. "login/session/").
// A non-empty sessionToken is attached via the session header; an empty
// token sends the request unauthenticated.
//
// Call always returns a well-formed Result:
//   - device success payloads come back as-is
//   - device error payloads come back as-is (error_code, msg, missing_right)
//   - transport failures yield ErrorCode "network_error"
//   - non-JSON payloads yield ErrorCode "invalid_response"
//
// Parameters:
//   - ctx: Caller context; combined with the configured request timeout
//   - method: HTTP method (GET, POST, PUT, DELETE)
//   - path: Resource path relative to the API base URL
//   - body: Optional request body, JSON-encoded when non-nil
//   - sessionToken: Session token for authenticated calls, or ""
//
// Returns:
//   - *Result: The uniform call outcome, never nil
func (c *Client) Call(ctx context.Context, method, path string, body any, sessionToken string) *Result {
	res := c.call(ctx, method, path, body, sessionToken)
	metrics.ApplianceCalls.WithLabelValues(res.Outcome()).Inc()
	return res
}

func (c *Client) call(ctx context.Context, method, path string, body any, sessionToken string) *Result {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errorResult(CodeInvalidRequest, "encoding request body: "+err.Error())
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errorResult(CodeInvalidRequest, "building request: "+err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionToken != "" {
		req.Header.Set(SessionHeader, sessionToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errorResult(CodeNetworkError, err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck // Read side already consumed

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errorResult(CodeNetworkError, "reading response: "+err.Error())
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return errorResult(CodeInvalidResponse, "non-JSON response from appliance")
	}

	// Some firmware error paths return a bare HTTP error status without a
	// JSON error envelope worth trusting.
	if !result.Success && result.ErrorCode == "" {
		result.ErrorCode = CodeInvalidResponse
		if result.Message == "" {
			result.Message = resp.Status
		}
	}

	return &result
}

// errorResult builds a synthetic failure Result.
func errorResult(code, msg string) *Result {
	return &Result{
		Success:   false,
		ErrorCode: code,
		Message:   msg,
	}
}
