// Console backend daemon. Serves the auth API for the dispatch admin console.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/courierops/console/internal/console/config"
	"github.com/courierops/console/internal/console/server"
	"github.com/courierops/console/internal/console/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config file (JSON or YAML)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONSOLE_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		// Logger is not up yet.
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger := buildLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, cfg.Tracing.OTLPEndpoint, server.Version)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else if cfg.Tracing.OTLPEndpoint != "" {
		logger.Info("tracing enabled", zap.String("endpoint", cfg.Tracing.OTLPEndpoint))
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
