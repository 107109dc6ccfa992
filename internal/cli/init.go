// Package cli holds the start-up steps shared by cmd/kewangan and
// cmd/kewangan-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kewangan/internal/backend"
	"kewangan/internal/config"
	klog "kewangan/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the component logger from LOG_LEVEL and LOG_FORMAT,
// writing to out, and makes it the slog default.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *klog.Logger {
	lc := klog.ConfigFrom(cfg.LogLevel, cfg.LogFormat, component)
	lc.Output = out
	logger := klog.New(lc)
	klog.SetDefault(logger)
	return logger
}

// OpenBackend creates the configured ledger backend.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *klog.Logger) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(klog.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return res, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *klog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", klog.FieldOperation, klog.OpShutdown, "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
