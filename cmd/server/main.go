package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/api"
	"github.com/peoplehub/hr-notify/internal/config"
	"github.com/peoplehub/hr-notify/internal/db"
	"github.com/peoplehub/hr-notify/internal/directory"
	"github.com/peoplehub/hr-notify/internal/dispatcher"
	"github.com/peoplehub/hr-notify/internal/guard"
	"github.com/peoplehub/hr-notify/internal/inapp"
	"github.com/peoplehub/hr-notify/internal/mailer"
	"github.com/peoplehub/hr-notify/internal/metrics"
	"github.com/peoplehub/hr-notify/internal/ratelimiter"
	"github.com/peoplehub/hr-notify/internal/repository"
	"github.com/peoplehub/hr-notify/internal/resolver"
	"github.com/peoplehub/hr-notify/internal/template"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	dbPool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queueRepo := repository.NewPgQueueRepository(dbPool)
	inappRepo := repository.NewPgInAppRepository(dbPool)

	dir := directory.NewHTTPDirectory(cfg.DirectoryBaseURL, cfg.DirectoryTimeout)
	res := resolver.New(dir, cfg.StaticCC, cfg.ResolveTimeout, logger)
	templates := template.Defaults()
	mail := mailer.NewHTTPMailer(cfg.MailerBaseURL, cfg.MailerTimeout)
	limiter := ratelimiter.New(cfg.MailRateLimit)

	writer := inapp.NewWriter(inappRepo, logger)
	g := guard.New(queueRepo, res, templates, writer, cfg.MaxRetries, logger)

	// ---- dispatcher pool ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	hooks := m.DispatchHooks()
	dispatchPool := dispatcher.NewPool(cfg, queueRepo, res, templates, mail, limiter, logger, hooks, m.SetQueueDepth)
	dispatchPool.Start(workerCtx)

	// A dedicated dispatcher for the on-demand HTTP endpoint; it shares
	// the rate limiter with the pool so the outbound cap holds globally.
	httpDisp := dispatcher.New(
		"dispatcher-http", queueRepo, res, templates, mail, limiter,
		cfg.ClaimLease, cfg.RetryBase, cfg.RetryMax,
		logger.With(zap.String("worker_id", "dispatcher-http")),
		hooks,
	)

	// ---- HTTP server ----
	router := api.NewRouter(g, queueRepo, httpDisp, writer, dbPool, reg, m.ObserveEvent, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all dispatchers to stop claiming new entries.
	cancelWorkers()

	// 3. Wait for in-flight sends to finish; unfinished claims simply
	// expire and are picked up after restart.
	dispatchPool.Wait()

	logger.Info("server stopped cleanly")
}
