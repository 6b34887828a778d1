// Box Panel - Home Router/NAS Appliance Dashboard
//
// This is the main entry point for the Box Panel application. Box Panel
// pairs with a router/NAS appliance over its local HTTP API, maintains the
// authenticated session, proxies resource calls for the dashboard frontend,
// and pushes live connection status over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/boxpanel/migrations"

	"github.com/nerrad567/boxpanel/internal/api"
	"github.com/nerrad567/boxpanel/internal/appliance"
	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
	"github.com/nerrad567/boxpanel/internal/infrastructure/database"
	"github.com/nerrad567/boxpanel/internal/infrastructure/influxdb"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
	"github.com/nerrad567/boxpanel/internal/infrastructure/mqtt"
	"github.com/nerrad567/boxpanel/internal/reboot"
	"github.com/nerrad567/boxpanel/internal/session"
	"github.com/nerrad567/boxpanel/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupLoginTimeout bounds the best-effort login attempt at boot.
const startupLoginTimeout = 15 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Box Panel",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (reboot schedule persistence)
	var db *database.DB
	if cfg.Database.Path != "" {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")
	} else {
		log.Info("database disabled, reboot scheduling unavailable")
	}

	// Connect to MQTT broker (optional status republish)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional connection-rate history)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Appliance client and session manager
	client := appliance.New(cfg.Appliance)
	store := session.NewStore(cfg.Appliance.TokenPath, log)
	manager, err := session.NewManager(client, store, cfg.Appliance, log)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}
	log.Info("session manager initialised", "registered", manager.IsRegistered())

	// Telemetry broadcaster, fed by the session manager's auth transitions
	broadcaster := telemetry.NewBroadcaster(
		manager,
		cfg.Telemetry.GetPollInterval(),
		cfg.Telemetry.GetSweepInterval(),
		log,
	)
	manager.SetAuthListener(broadcaster.SetAuthenticated)

	// Tee telemetry ticks into the optional backends
	if mqttClient != nil {
		topics := mqtt.Topics{}
		broadcaster.AddSink(func(status telemetry.ConnectionStatus) {
			payload, merr := json.Marshal(status)
			if merr != nil {
				return
			}
			if perr := mqttClient.Publish(topics.ConnectionStatus(), payload, byte(cfg.MQTT.QoS), false); perr != nil {
				log.Debug("MQTT status publish failed", "error", perr)
			}
		})
	}
	if influxClient != nil {
		broadcaster.AddSink(func(status telemetry.ConnectionStatus) {
			influxClient.WriteConnectionRates(float64(status.RateDown), float64(status.RateUp))
		})
	}

	// Reboot scheduler (needs the database)
	var rebootRepo *reboot.Repository
	var rebootSched *reboot.Scheduler
	if cfg.Reboot.Enabled && db != nil {
		rebootRepo = reboot.NewRepository(db)
		rebootSched = reboot.NewScheduler(rebootRepo, manager, log)
		rebootSched.Start()
		defer rebootSched.Stop()
	} else {
		log.Info("reboot scheduling disabled")
	}

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Sessions:    manager,
		Broadcaster: broadcaster,
		RebootRepo:  rebootRepo,
		RebootSched: rebootSched,
		DB:          db,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Broadcaster closes before the server so subscriber teardown does not
	// race the listener shutdown.
	defer broadcaster.Close()

	// Best-effort login at boot when already paired; the dashboard can
	// trigger it manually otherwise.
	if manager.IsRegistered() {
		loginCtx, loginCancel := context.WithTimeout(ctx, startupLoginTimeout)
		if loginErr := manager.Login(loginCtx); loginErr != nil {
			log.Warn("startup login failed, dashboard can retry", "error", loginErr)
		}
		loginCancel()
	} else {
		log.Info("not paired with appliance yet, registration required")
	}

	log.Info("Box Panel running", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Block until shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// getConfigPath returns the configuration file path from the command line
// or the default location.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if env := os.Getenv("BOXPANEL_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}
