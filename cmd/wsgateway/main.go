// Command wsgateway runs the WebSocket gateway daemon: it serves the
// websocket endpoint for clients and bridges their messages over the
// shared broker channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Daovouslabs/wsgateway-go/internal/broker"
	"github.com/Daovouslabs/wsgateway-go/internal/gateway"
	"github.com/Daovouslabs/wsgateway-go/internal/httpapi"
	"github.com/Daovouslabs/wsgateway-go/internal/metrics"
	gatewaypkg "github.com/Daovouslabs/wsgateway-go/pkg/gateway"
)

const (
	appName    = "wsgateway"
	appVersion = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration file")
		listenAddr  = flag.String("listen", "", "HTTP listen address (overrides config)")
		redisAddr   = flag.String("redis", "", "Redis address (overrides config)")
		channel     = flag.String("channel", "", "Broker channel shared by all gateway instances (overrides config)")
		brokerKind  = flag.String("broker", "", "Broker backend: redis or memory (overrides config)")
		secretKey   = flag.String("secret-key", "", "JWT signing key (overrides config)")
		noAuth      = flag.Bool("no-auth", false, "Disable token validation on /ws (development only)")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.HTTP.Addr = *listenAddr
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *channel != "" {
		cfg.Bridge.Channel = *channel
	}
	if *brokerKind != "" {
		cfg.Broker = *brokerKind
	}
	if *secretKey != "" {
		cfg.HTTP.SecretKey = *secretKey
	}
	if *noAuth {
		cfg.HTTP.NoAuth = true
	}
	if err := cfg.validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg fileConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	brokerClient, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}

	bridge, err := gateway.New(&cfg.Bridge, brokerClient,
		gateway.WithLogger(logger),
		gateway.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Startup(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	server := httpapi.NewServer(bridge, cfg.HTTP, logger, registry)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("gateway running",
		"version", appVersion,
		"addr", cfg.HTTP.Addr,
		"broker", cfg.Broker,
		"channel", cfg.Bridge.Channel)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("stopping http server", "error", err)
	}
	if err := bridge.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutting down bridge", "error", err)
	}
	logger.Info("gateway exited")
	return nil
}

func newBroker(ctx context.Context, cfg fileConfig, logger *slog.Logger) (gatewaypkg.Broker, error) {
	switch cfg.Broker {
	case brokerMemory:
		// Single-process mode: the bus lives and dies with the daemon.
		return broker.NewMemoryBus().Client(), nil
	default:
		redisBroker, err := broker.NewRedis(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisBroker.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
		return redisBroker, nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
