package main

import (
	"context"
	"errors"
	"os"

	"kewangan/internal/cache"
	"kewangan/internal/cli"
	klog "kewangan/internal/log"
	"kewangan/internal/report"
	"kewangan/internal/services"
	"kewangan/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		klog.New(klog.DefaultConfig()).Error("Configuration validation failed",
			klog.FieldError, err,
			klog.FieldErrorType, klog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, klog.ComponentWorker, os.Stdout)
	logger.Info("Starting kewangan-worker",
		klog.FieldOperation, klog.OpStartup,
		"backend", cfg.DataBackend,
		"refresh_interval", cfg.NotaRefreshInterval)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	res, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", klog.FieldError, err, klog.FieldErrorType, klog.ErrorTypeDatabase)
		os.Exit(1)
	}
	defer res.Cleanup()

	aggregates := cache.NewLRUCache[int, report.YearAggregate](cfg.ReportCacheSize, cfg.ReportCacheTTL)
	reports := services.NewReportService(res.Store, aggregates)
	w := worker.NewNotaWorker(reports, cfg.NotaRefreshInterval)

	janitor := cache.NewJanitor(logger.WithComponent(klog.ComponentCache), aggregates)
	go janitor.Run(ctx, cfg.NotaRefreshInterval)

	var consumer worker.ChangeConsumer
	if res.Events != nil {
		consumer = res.Events
	} else {
		logger.Warn("AMQP not available, only refreshing the current year on an interval")
	}

	if err := w.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", klog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete", klog.FieldOperation, klog.OpShutdown)
}
