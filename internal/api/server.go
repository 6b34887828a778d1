// Package api provides the HTTP REST API and WebSocket push channel for
// Box Panel.
//
// It exposes the appliance pairing workflow, the generic authenticated
// resource proxy, the reboot schedule, and the live connection status feed
// to dashboard frontends.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/boxpanel/internal/appliance"
	"github.com/nerrad567/boxpanel/internal/infrastructure/config"
	"github.com/nerrad567/boxpanel/internal/infrastructure/database"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
	"github.com/nerrad567/boxpanel/internal/reboot"
	"github.com/nerrad567/boxpanel/internal/session"
	"github.com/nerrad567/boxpanel/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionService is the slice of the session manager the API consumes.
// Narrowed to an interface so handler tests can substitute a fake.
type SessionService interface {
	IsRegistered() bool
	IsAuthenticated() bool
	Permissions() session.PermissionSet
	Register(ctx context.Context) (int, error)
	PollApproval(ctx context.Context, trackID int) (session.RegistrationState, error)
	AwaitApproval(ctx context.Context, trackID int) (session.RegistrationState, error)
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Reset(ctx context.Context) error
	Dispatch(ctx context.Context, method, resource string, body any) *appliance.Result
	CheckSession(ctx context.Context) (bool, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Sessions    SessionService
	Broadcaster *telemetry.Broadcaster
	RebootRepo  *reboot.Repository  // nil when reboot scheduling is disabled
	RebootSched *reboot.Scheduler   // nil when reboot scheduling is disabled
	DB          *database.DB        // nil when no database is configured
	Version     string
}

// Server is the HTTP API server for Box Panel.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// upgrade path feeding the telemetry broadcaster. The server is created
// with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	sessions    SessionService
	broadcaster *telemetry.Broadcaster
	rebootRepo  *reboot.Repository
	rebootSched *reboot.Scheduler
	db          *database.DB
	version     string
	server      *http.Server
	tickets     *ticketIssuer
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, session service, broadcaster)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("telemetry broadcaster is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		sessions:    deps.Sessions,
		broadcaster: deps.Broadcaster,
		rebootRepo:  deps.RebootRepo,
		rebootSched: deps.RebootSched,
		db:          deps.DB,
		version:     deps.Version,
		tickets:     newTicketIssuer(deps.Security),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the ticket cleanup loop, and launches the
// HTTP listener in a background goroutine. The server is stopped with
// Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.tickets.cleanLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
