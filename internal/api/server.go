// Package api provides the HTTP REST API and WebSocket server for Motion
// Core.
//
// It exposes device control operations (connect, move, home, stop),
// cached state reads, the motion journal, and real-time state updates to
// operator consoles and automation clients.
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

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/logging"
	"github.com/stagecraft-systems/motion-core/internal/infrastructure/mqtt"
	"github.com/stagecraft-systems/motion-core/internal/journal"
	"github.com/stagecraft-systems/motion-core/internal/motion"
	"github.com/stagecraft-systems/motion-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Stage    *motion.Manager
	Gantry   *motion.Manager
	MQTT     *mqtt.Client
	Journal  journal.Repository
	Recorder *telemetry.Recorder
	Version  string
}

// Server is the HTTP API server for Motion Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	stage    *motion.Manager
	gantry   *motion.Manager
	mqtt     *mqtt.Client
	journal  journal.Repository
	recorder *telemetry.Recorder
	version  string
	server   *http.Server
	hub      *Hub
	tickets  *ticketStore
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. MQTT and the journal
// are optional; device control works without them.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Stage == nil && deps.Gantry == nil {
		return nil, fmt.Errorf("at least one device manager is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		stage:    deps.Stage,
		gantry:   deps.Gantry,
		mqtt:     deps.MQTT,
		journal:  deps.Journal,
		recorder: deps.Recorder,
		version:  deps.Version,
		tickets:  newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT
// state topics for real-time WebSocket broadcast, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Expired WebSocket tickets are swept periodically.
	go s.tickets.cleanLoop(srvCtx)

	if err := s.subscribeStateUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to state updates for WebSocket", "error", err)
	}

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

// managers returns the configured managers in a stable order.
func (s *Server) managers() []*motion.Manager {
	var out []*motion.Manager
	if s.stage != nil {
		out = append(out, s.stage)
	}
	if s.gantry != nil {
		out = append(out, s.gantry)
	}
	return out
}

// findDevice locates a device by name across both families.
func (s *Server) findDevice(name string) (motion.Controller, *motion.Manager) {
	for _, m := range s.managers() {
		if dev := m.GetDevice(name); dev != nil {
			return dev, m
		}
	}
	return nil, nil
}
