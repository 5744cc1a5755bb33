package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/tasktimer/external/config"
	repositoryimpl "github.com/foxseedlab/tasktimer/external/repository"
	webhookimpl "github.com/foxseedlab/tasktimer/external/webhook"
	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/api"
	"github.com/foxseedlab/tasktimer/internal/config"
	"github.com/foxseedlab/tasktimer/internal/tracking"
	"github.com/gin-gonic/gin"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "http_addr", cfg.HTTPAddr)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	if err := runServer(cfg, injector); err != nil {
		slog.Error("server stopped with error", "error", err)
		shutdownInjector(injector)
		os.Exit(1)
	}
	shutdownInjector(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	tracking.RegisterDI(injector)
	aggregate.RegisterDI(injector)
	api.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) error {
	router, err := do.Invoke[*gin.Engine](injector)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("startup: http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func shutdownInjector(injector do.Injector) {
	if report := injector.Shutdown(); report != nil && len(report.Errors) > 0 {
		slog.Error("dependency shutdown failed", "error", report.Error())
	}
}
