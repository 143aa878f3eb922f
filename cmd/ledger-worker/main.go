package main

import (
	"context"
	"errors"
	"os"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/cli"
	applog "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/log"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/metrics"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/session"
	gsheet "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/sheets/google"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/worker"
)

// defaultQueue is the durable queue the worker consumes when AMQP_QUEUE is
// unset, so changes published while it is down are not lost.
const defaultQueue = "ledger_report_export"

func main() {
	cfg, logger := cli.Bootstrap("ledger-worker")
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPQueue == "" {
		cfg.AMQPQueue = defaultQueue
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", applog.FieldError, err)
			}
		}
	}()

	sheetsClient, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		SheetBase:          cfg.ReportSheetName,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	m := metrics.New()
	sess := session.New(be.Repository, session.Options{
		ReadOnly:  true,
		Metrics:   m,
		Logger:    logger,
		CacheSize: cfg.ReportCacheSize,
	})

	w := worker.NewExportWorker(sess, sheetsClient, be.Notifier, worker.Options{
		Metrics:  m,
		Debounce: cfg.ExportDebounce,
		Interval: cfg.ExportInterval,
	})
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Export worker failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
