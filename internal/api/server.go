package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
	"github.com/nerrad567/tank-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tank-relay/internal/inventory"
	"github.com/nerrad567/tank-relay/internal/radio"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnChecker interface {
	IsConnected() bool
}

// SerialSource reports acquisition state. *radio.Acquirer satisfies it.
type SerialSource interface {
	Stats() radio.Stats
}

// SensorCounter reports a sensor count. *publisher.Registry satisfies it.
type SensorCounter interface {
	Len() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Store       *telemetry.Store
	Calibration telemetry.Calibration
	Version     string

	// Optional. A nil value disables the feature that needs it.
	MQTT        ConnChecker
	Serial      SerialSource
	Registry    SensorCounter
	Inventory   inventory.Repository
	Metrics     http.Handler
	MetricsPath string
}

// Server is the relay's HTTP status server.
//
// It serves the status page, the legacy /data endpoint, a small JSON API
// over the live readings and inventory, Prometheus metrics and a WebSocket
// feed of published readings.
type Server struct {
	deps   Deps
	logger *logging.Logger
	hub    *Hub

	server    *http.Server
	listener  net.Listener
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("reading store is required")
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	return &Server{
		deps:   deps,
		logger: deps.Logger,
		hub:    NewHub(deps.Calibration, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub, for wiring as the publication notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background.
// A bind failure (port in use) is returned directly.
//
// Parameters:
//   - ctx: Parent context for the WebSocket hub
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.deps.Config.Host, fmt.Sprint(s.deps.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.deps.Config.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.deps.Config.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.deps.Config.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.deps.Config.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server. Safe to call more than once.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			s.closeErr = fmt.Errorf("shutting down API server: %w", err)
		}
	})
	return s.closeErr
}
