package appliance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
)

func testClient(baseURL string) *Client {
	return New(config.ApplianceConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5,
	})
}

func TestCallSuccessEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		//nolint:errcheck // test handler
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"uptime": 12345},
		})
	}))
	defer ts.Close()

	res := testClient(ts.URL + "/").Call(context.Background(), "GET", "system/", nil, "")
	if !res.Success {
		t.Fatalf("Call() failed: %s", res.ErrorCode)
	}

	var payload struct {
		Uptime int `json:"uptime"`
	}
	if err := res.DecodeResult(&payload); err != nil {
		t.Fatalf("DecodeResult() error: %v", err)
	}
	if payload.Uptime != 12345 {
		t.Errorf("uptime = %d, want 12345", payload.Uptime)
	}
}

func TestCallAttachesSessionHeader(t *testing.T) {
	var gotHeader string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(SessionHeader)
		//nolint:errcheck // test handler
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer ts.Close()

	client := testClient(ts.URL + "/")

	client.Call(context.Background(), "GET", "system/", nil, "sess-token")
	if gotHeader != "sess-token" {
		t.Errorf("session header = %q, want sess-token", gotHeader)
	}

	client.Call(context.Background(), "GET", "system/", nil, "")
	if gotHeader != "" {
		t.Errorf("session header = %q, want absent for anonymous call", gotHeader)
	}
}

func TestCallDeviceErrorPassthrough(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		//nolint:errcheck // test handler
		json.NewEncoder(w).Encode(map[string]any{
			"success":       false,
			"error_code":    "insufficient_rights",
			"msg":           "no way",
			"missing_right": "settings",
		})
	}))
	defer ts.Close()

	res := testClient(ts.URL + "/").Call(context.Background(), "POST", "system/reboot/", nil, "sess")
	if res.Success {
		t.Fatal("Call() succeeded, want device error")
	}
	if res.ErrorCode != CodeInsufficientRights {
		t.Errorf("error code = %q, want insufficient_rights", res.ErrorCode)
	}
	if res.Message != "no way" {
		t.Errorf("message = %q, want passthrough", res.Message)
	}
	if res.MissingRight != "settings" {
		t.Errorf("missing right = %q, want settings", res.MissingRight)
	}
}

func TestCallSynthesisedErrors(t *testing.T) {
	t.Run("network error", func(t *testing.T) {
		res := testClient("http://127.0.0.1:1/").Call(context.Background(), "GET", "system/", nil, "")
		if res.Success || res.ErrorCode != CodeNetworkError {
			t.Errorf("got %+v, want network_error envelope", res)
		}
	})

	t.Run("invalid response body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			//nolint:errcheck // test handler
			w.Write([]byte("<html>not json</html>"))
		}))
		defer ts.Close()

		res := testClient(ts.URL + "/").Call(context.Background(), "GET", "system/", nil, "")
		if res.Success || res.ErrorCode != CodeInvalidResponse {
			t.Errorf("got %+v, want invalid_response envelope", res)
		}
	})

	t.Run("failure without error code", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			//nolint:errcheck // test handler
			json.NewEncoder(w).Encode(map[string]any{"success": false})
		}))
		defer ts.Close()

		res := testClient(ts.URL + "/").Call(context.Background(), "GET", "system/", nil, "")
		if res.Success || res.ErrorCode != CodeInvalidResponse {
			t.Errorf("got %+v, want invalid_response fill-in", res)
		}
	})

	t.Run("unencodable body", func(t *testing.T) {
		res := testClient("http://127.0.0.1:1/").Call(context.Background(), "POST", "system/", make(chan int), "")
		if res.Success || res.ErrorCode != CodeInvalidRequest {
			t.Errorf("got %+v, want invalid_request envelope", res)
		}
	})
}

func TestResultOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{"success", Result{Success: true}, "success"},
		{"device code", Result{ErrorCode: "auth_required"}, "auth_required"},
		{"missing code", Result{}, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}
