// Package httpapi hosts the gateway's HTTP surface: the websocket
// endpoint clients connect through, a liveness probe and the Prometheus
// metrics endpoint.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Daovouslabs/wsgateway-go/internal/gateway"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// SecretKey signs client access tokens.
	SecretKey string `yaml:"secret_key"`

	// NoAuth disables token validation on the websocket endpoint. For
	// development only.
	NoAuth bool `yaml:"no_auth"`
}

// SetDefaults fills unset fields with safe defaults.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.SecretKey == "" {
		c.SecretKey = "wsgateway-dev-secret-change-in-production"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen addr cannot be empty")
	}
	return nil
}

// Server is the gateway's HTTP API server.
type Server struct {
	bridge     *gateway.Bridge
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	logger     *slog.Logger
	server     *http.Server
}

// NewServer creates the HTTP server around a bridge. The gatherer serves
// /metrics; pass nil to disable the endpoint.
func NewServer(bridge *gateway.Bridge, config Config, logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	config.SetDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	jwtAuth := NewJWTAuth(config.SecretKey)
	middleware := NewMiddleware(jwtAuth, logger, config.NoAuth)
	handlers := NewHandlers(bridge, logger)

	s := &Server{
		bridge:     bridge,
		jwtAuth:    jwtAuth,
		handlers:   handlers,
		middleware: middleware,
		logger:     logger.With("component", "httpapi"),
	}

	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: s.routes(gatherer),
		// No WriteTimeout: websocket sessions outlive any sane value and
		// manage their own write deadlines.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Auth exposes the token handler, used by the CLI token command.
func (s *Server) Auth() *JWTAuth {
	return s.jwtAuth
}

// Start serves until Stop is called. It returns http.ErrServerClosed on a
// clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop drains the HTTP server. Live websocket sessions are closed by the
// bridge shutdown, not here.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	chain := func(h http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(s.middleware.Logging(h))
	}

	mux.Handle("/", chain(s.handlers.Info))
	mux.Handle("/healthz", chain(s.handlers.Health))
	mux.Handle("/ws", chain(s.middleware.AuthRequired(s.handlers.WebSocket)))
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
