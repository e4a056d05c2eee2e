package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/gateway"
	"github.com/tollgate/tollgate/internal/observability"
)

func main() {
	cfg := config.Load()

	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Info("starting Tollgate gateway",
		"version", cfg.Observability.ServiceVersion,
		"mode", cfg.Gateway.Mode,
		"address", cfg.Gateway.Address,
		"grpc_address", cfg.Gateway.GRPCAddress,
		"max_tx_per_window", cfg.Quota.MaxTxPerWindow,
		"max_bytes_per_window", cfg.Quota.MaxBytesPerWindow,
		"window_epochs", cfg.Quota.WindowEpochs,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Observability.TracingEnabled {
		tp, err := observability.InitTracer(
			cfg.Observability.ServiceName,
			cfg.Observability.ServiceVersion,
			cfg.Observability.JaegerEndpoint,
		)
		if err != nil {
			logger.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := observability.Shutdown(context.Background(), tp); err != nil {
				logger.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
