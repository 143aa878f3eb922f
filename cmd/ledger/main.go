package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/cache"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/cli"
	apphttp "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/http"
	applog "github.com/FlashinnightPT/expense-echo-manager-sub001/internal/log"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/metrics"
	"github.com/FlashinnightPT/expense-echo-manager-sub001/internal/session"
)

const cacheCleanupInterval = time.Minute

func main() {
	cfg, logger := cli.Bootstrap("ledger server")

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

	m := metrics.New()
	sess := session.New(be.Repository, session.Options{
		ReadOnly:  cfg.ReadOnly,
		Notifier:  be.Notifier,
		Metrics:   m,
		Logger:    logger,
		CacheSize: cfg.ReportCacheSize,
		CacheTTL:  cfg.ReportCacheTTL,
	})
	if err := sess.Load(ctx); err != nil {
		logger.Error("Failed to load ledger", applog.FieldError, err)
		os.Exit(1)
	}

	caches := cache.NewManager()
	caches.Register(sess.Cache())

	srv := apphttp.NewServer(":"+cfg.Port, sess, apphttp.Options{
		Logger:             logger,
		Metrics:            m,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              be.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sess.Watch(gctx)
	})
	g.Go(func() error {
		caches.Run(gctx, cacheCleanupInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
