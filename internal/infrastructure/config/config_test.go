package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// writeConfig writes a YAML fixture and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "security:\n  ticket_secret: \""+testSecret+"\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 8090 {
		t.Errorf("api port = %d, want default 8090", cfg.API.Port)
	}
	if cfg.Appliance.BaseURL != "http://mafreebox.freebox.fr/api/v8/" {
		t.Errorf("base url = %q, want default", cfg.Appliance.BaseURL)
	}
	if cfg.Telemetry.PollInterval != 1 {
		t.Errorf("poll interval = %d, want default 1", cfg.Telemetry.PollInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.Security.TicketTTL != 60 {
		t.Errorf("ticket ttl = %d, want default 60", cfg.Security.TicketTTL)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9000
appliance:
  base_url: "http://192.168.1.254/api/v8/"
  request_timeout: 3
telemetry:
  poll_interval: 2
security:
  ticket_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 9000 {
		t.Errorf("api port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Appliance.BaseURL != "http://192.168.1.254/api/v8/" {
		t.Errorf("base url = %q, want file value", cfg.Appliance.BaseURL)
	}
	if got := cfg.Appliance.GetRequestTimeout(); got != 3*time.Second {
		t.Errorf("request timeout = %v, want 3s", got)
	}
	if got := cfg.Telemetry.GetPollInterval(); got != 2*time.Second {
		t.Errorf("poll interval = %v, want 2s", got)
	}
	// Untouched sections keep defaults.
	if cfg.WebSocket.PingInterval != 30 {
		t.Errorf("ping interval = %d, want default 30", cfg.WebSocket.PingInterval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
appliance:
  base_url: "http://from-file/api/v8/"
security:
  ticket_secret: "file-secret-that-is-long-enough-123"
`)

	t.Setenv("BOXPANEL_APPLIANCE_BASE_URL", "http://from-env/api/v8/")
	t.Setenv("BOXPANEL_TICKET_SECRET", testSecret)
	t.Setenv("BOXPANEL_API_PORT", "7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Appliance.BaseURL != "http://from-env/api/v8/" {
		t.Errorf("base url = %q, want env value", cfg.Appliance.BaseURL)
	}
	if cfg.Security.TicketSecret != testSecret {
		t.Errorf("ticket secret = %q, want env value", cfg.Security.TicketSecret)
	}
	if cfg.API.Port != 7777 {
		t.Errorf("api port = %d, want 7777", cfg.API.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing ticket secret",
			content: "api:\n  port: 8090\n",
			wantErr: "ticket_secret",
		},
		{
			name:    "short ticket secret",
			content: "security:\n  ticket_secret: \"short\"\n",
			wantErr: "32 characters",
		},
		{
			name:    "base url without trailing slash",
			content: "appliance:\n  base_url: \"http://box/api/v8\"\nsecurity:\n  ticket_secret: \"" + testSecret + "\"\n",
			wantErr: "trailing slash",
		},
		{
			name:    "port out of range",
			content: "api:\n  port: 70000\nsecurity:\n  ticket_secret: \"" + testSecret + "\"\n",
			wantErr: "api.port",
		},
		{
			name:    "sweep slower than read deadline",
			content: "telemetry:\n  sweep_interval: 45\nsecurity:\n  ticket_secret: \"" + testSecret + "\"\n",
			wantErr: "sweep_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded for missing file")
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("read timeout = %v, want 30s", got)
	}
	if got := cfg.Telemetry.GetSweepInterval(); got != 30*time.Second {
		t.Errorf("sweep interval = %v, want 30s", got)
	}
	if got := cfg.Security.GetTicketTTL(); got != 60*time.Second {
		t.Errorf("ticket ttl = %v, want 60s", got)
	}
}
