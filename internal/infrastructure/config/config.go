package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Box Panel.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Appliance ApplianceConfig `yaml:"appliance"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Database  DatabaseConfig  `yaml:"database"`
	Reboot    RebootConfig    `yaml:"reboot"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains push channel settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// ApplianceConfig contains the connection settings for the router/NAS
// appliance whose local HTTP API Box Panel consumes.
type ApplianceConfig struct {
	// BaseURL is the root of the appliance API, including the API version.
	// Example: "http://mafreebox.freebox.fr/api/v8/"
	BaseURL string `yaml:"base_url"`

	// AppID, AppName, AppVersion and DeviceName identify this application
	// to the appliance during registration. The tuple is shown on the
	// appliance display when physical approval is requested.
	AppID      string `yaml:"app_id"`
	AppName    string `yaml:"app_name"`
	AppVersion string `yaml:"app_version"`
	DeviceName string `yaml:"device_name"`

	// TokenPath is the filesystem path where the long-lived application
	// token is persisted after registration.
	TokenPath string `yaml:"token_path"`

	// RequestTimeout is the per-request timeout in seconds for appliance calls.
	RequestTimeout int `yaml:"request_timeout"`
}

// TelemetryConfig contains the connection-status feed settings.
type TelemetryConfig struct {
	// PollInterval is how often (seconds) the connection status resource
	// is fetched while at least one push subscriber is connected.
	PollInterval int `yaml:"poll_interval"`

	// SweepInterval is how often (seconds) subscriber liveness is probed.
	SweepInterval int `yaml:"sweep_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RebootConfig contains scheduled reboot settings.
type RebootConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig contains the optional MQTT status republish settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains the optional connection-rate metrics settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings for the dashboard's own API.
type SecurityConfig struct {
	// TicketSecret signs the short-lived WebSocket tickets.
	TicketSecret string `yaml:"ticket_secret"`

	// TicketTTL is the ticket validity window in seconds.
	TicketTTL int `yaml:"ticket_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BOXPANEL_SECTION_KEY
// For example: BOXPANEL_APPLIANCE_BASE_URL, BOXPANEL_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Appliance: ApplianceConfig{
			BaseURL:        "http://mafreebox.freebox.fr/api/v8/",
			AppID:          "io.boxpanel",
			AppName:        "Box Panel",
			AppVersion:     "1.0.0",
			DeviceName:     "boxpanel",
			TokenPath:      "./data/app_token.json",
			RequestTimeout: 10,
		},
		Telemetry: TelemetryConfig{
			PollInterval:  1,
			SweepInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/boxpanel.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "boxpanel",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			TicketTTL: 60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BOXPANEL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("BOXPANEL_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BOXPANEL_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Appliance
	if v := os.Getenv("BOXPANEL_APPLIANCE_BASE_URL"); v != "" {
		cfg.Appliance.BaseURL = v
	}
	if v := os.Getenv("BOXPANEL_APPLIANCE_TOKEN_PATH"); v != "" {
		cfg.Appliance.TokenPath = v
	}

	// Database
	if v := os.Getenv("BOXPANEL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BOXPANEL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BOXPANEL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BOXPANEL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - ticket secret (always override in production)
	if v := os.Getenv("BOXPANEL_TICKET_SECRET"); v != "" {
		cfg.Security.TicketSecret = v
	}
}

// minTicketSecretLength is the minimum length of the WebSocket ticket secret.
const minTicketSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Appliance.BaseURL == "" {
		errs = append(errs, "appliance.base_url is required")
	} else if !strings.HasSuffix(c.Appliance.BaseURL, "/") {
		errs = append(errs, "appliance.base_url must end with a trailing slash")
	}
	if c.Appliance.AppID == "" {
		errs = append(errs, "appliance.app_id is required")
	}
	if c.Appliance.TokenPath == "" {
		errs = append(errs, "appliance.token_path is required")
	}
	if c.Appliance.RequestTimeout < 1 {
		errs = append(errs, "appliance.request_timeout must be at least 1 second")
	}

	if c.Telemetry.PollInterval < 1 {
		errs = append(errs, "telemetry.poll_interval must be at least 1 second")
	}
	if c.Telemetry.SweepInterval < 1 {
		errs = append(errs, "telemetry.sweep_interval must be at least 1 second")
	}

	// Liveness pings ride the sweep, and the push channel read deadline is
	// ping_interval + pong_timeout. A sweep cycle must fit inside that
	// window or healthy idle clients get disconnected between pings.
	if c.Telemetry.SweepInterval >= c.WebSocket.PingInterval+c.WebSocket.PongTimeout {
		errs = append(errs, "telemetry.sweep_interval must be less than websocket.ping_interval + websocket.pong_timeout")
	}

	if c.Reboot.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when reboot scheduling is enabled")
	}

	// WebSocket tickets are bearer credentials for the push channel; a weak
	// secret would let anyone attach to the live status feed.
	if c.Security.TicketSecret == "" {
		errs = append(errs, "security.ticket_secret is required (set BOXPANEL_TICKET_SECRET environment variable)")
	} else if len(c.Security.TicketSecret) < minTicketSecretLength {
		errs = append(errs, "security.ticket_secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRequestTimeout returns the appliance request timeout as a Duration.
func (a ApplianceConfig) GetRequestTimeout() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// GetPollInterval returns the telemetry poll interval as a Duration.
func (t TelemetryConfig) GetPollInterval() time.Duration {
	return time.Duration(t.PollInterval) * time.Second
}

// GetSweepInterval returns the liveness sweep interval as a Duration.
func (t TelemetryConfig) GetSweepInterval() time.Duration {
	return time.Duration(t.SweepInterval) * time.Second
}

// GetTicketTTL returns the WebSocket ticket lifetime as a Duration.
func (s SecurityConfig) GetTicketTTL() time.Duration {
	return time.Duration(s.TicketTTL) * time.Second
}
