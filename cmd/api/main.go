package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/farmhub/internal/auth"
	"github.com/geocoder89/farmhub/internal/cache"
	"github.com/geocoder89/farmhub/internal/config"
	"github.com/geocoder89/farmhub/internal/db"
	httpx "github.com/geocoder89/farmhub/internal/http"
	"github.com/geocoder89/farmhub/internal/http/handlers"
	"github.com/geocoder89/farmhub/internal/observability"
	"github.com/geocoder89/farmhub/internal/security"
	"github.com/geocoder89/farmhub/internal/storage"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "farmhub-api", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := observability.NewRegistry()
	prom := observability.NewProm(reg)

	startCtx, cancel := config.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	stores, err := storage.Open(startCtx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost, 0)

	if err := db.EnsureAdminUser(startCtx, stores.Users, hasher, cfg, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	readyChecks := map[string]handlers.Pinger{"db": stores.Users}

	var store cache.Store
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
			Prefix:   "farmhub:",
		})
		defer func() { _ = rc.Close() }()

		store = rc
		readyChecks["cache"] = rc
		log.Info("cache ready", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		store = cache.NewMemory(cfg.CacheTTL)
		log.Info("cache ready", "backend", "memory")
	}

	// set up routers with the deps
	router := httpx.NewRouter(httpx.Deps{
		Config:       cfg,
		Log:          log,
		Prom:         prom,
		Metrics:      reg,
		Tokens:       tokens,
		Transport:    auth.NewTransport(cfg.JWTTTL, cfg.IsProd()),
		Hasher:       hasher,
		Users:        stores.Users,
		Expenses:     stores.Expenses,
		ExpenseTypes: stores.ExpenseTypes,
		Cache:        store,
		ReadyChecks:  readyChecks,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "driver", stores.Driver)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-stop:
	}

	log.Info("server shutting down")

	shutdownCtx, cancelShutdown := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}
