package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"dhcpd/config"
	"dhcpd/internal/server"
)

func main() {
	if err := setupAndRun(); err != nil {
		slog.Error("dhcpd exited", "error", err)
		os.Exit(1)
	}
}

// setupAndRun loads configuration, wires every subsystem through
// server.Context, and runs until an interrupt or terminate signal
// arrives.
func setupAndRun() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(logWriter(cfg), nil))

	ctx, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("dhcpd starting",
		"instance_id", ctx.InstanceID,
		"journal", cfg.Journal.Path,
		"conf", cfg.Parser.Path,
		"control_socket", cfg.Control.SocketPath,
		"metrics_port", cfg.Metrics.Port,
	)

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return ctx.Run(runCtx)
}

// logWriter returns stdout when no log file is configured, otherwise a
// lumberjack.Logger that rotates the configured file by size/age/count.
func logWriter(cfg *config.Config) io.Writer {
	if cfg.Log.File == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}
