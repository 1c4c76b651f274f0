package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/shardrouter/internal/client"
	"github.com/devrev/shardrouter/internal/config"
	"github.com/devrev/shardrouter/internal/handler"
	"github.com/devrev/shardrouter/internal/health"
	"github.com/devrev/shardrouter/internal/metrics"
	"github.com/devrev/shardrouter/internal/middleware"
	"github.com/devrev/shardrouter/internal/registry"
	"github.com/devrev/shardrouter/internal/service"
	"github.com/devrev/shardrouter/internal/writeconcern"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting shard router",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("auto_split", cfg.Router.AutoSplit),
		zap.String("default_db", cfg.Router.DefaultDB))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize session registry
	reg := registry.New(cfg.Router.AutoSplit, nil, m, logger)
	logger.Info("Session registry initialized")

	// Initialize shard connection pool
	pool := client.NewPool(cfg.Shard.CommandTimeout, cfg.Shard.MaxIdleConnsPerHost, logger)
	defer pool.Close()
	logger.Info("Shard connection pool initialized")

	// Initialize write-concern enforcer and acknowledgement service
	enforcer := writeconcern.NewEnforcer(pool, m, logger)
	ackService := service.NewAckService(enforcer, logger)
	logger.Info("Services initialized")

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(reg, logger)
	ackHandler := handler.NewAckHandler(reg, ackService, cfg.Router.DefaultDB, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Router.RateLimitRPS, cfg.Router.RateLimitBurst, logger)

	router := mux.NewRouter()
	router.Use(middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Logging(logger, m),
		rateLimiter.Limit,
	))
	sessionHandler.Register(router)
	ackHandler.Register(router)

	healthChecker := health.NewHealthChecker(reg, logger)
	router.HandleFunc("/health/live", healthChecker.LivenessHandler).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthChecker.ReadinessHandler).Methods(http.MethodGet)

	logger.Info("Handlers initialized")

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
	}

	// Start servers
	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	case <-gctx.Done():
		logger.Error("Server error", zap.Error(gctx.Err()))
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// buildLogger constructs the zap logger from the logging configuration.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
