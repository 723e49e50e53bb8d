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

	"safescan-platform/internal/audit"
	"safescan-platform/internal/auth"
	"safescan-platform/internal/bridge"
	"safescan-platform/internal/config"
	"safescan-platform/internal/identity"
	"safescan-platform/internal/reporting"
	signalhub "safescan-platform/internal/signal"
	"safescan-platform/pkg/logger"
	"safescan-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, "api")
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Identity mapping: directory rows in postgres, minted routing
	// identities in redis so every replica resolves the same ids.
	resolver := identity.NewResolver(
		identity.NewPostgresDirectory(db),
		identity.NewRedisRegistry(rdb),
	)

	hub := signalhub.NewHub(log)

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	reportSvc := reporting.NewService(audit.NewPostgresRepo(db))

	provider := bridge.NewExotelProvider(cfg.Exotel, log)
	guard := bridge.NewRedisGuardWithCap(rdb, cfg.Exotel.MaxConcurrentCalls)
	orchestrator := bridge.NewOrchestrator(provider, guard, resolver, log, bridge.Options{
		RingTimeout: cfg.Exotel.RingTimeout,
		MaxDuration: cfg.Exotel.MaxCallDuration,
		CallbackURL: cfg.StatusCallbackURL(),
		Audit:       auditSvc,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:          cfg,
		auth:         authManager,
		hub:          hub,
		resolver:     resolver,
		orchestrator: orchestrator,
		audit:        auditSvc,
		reports:      reportSvc,
		db:           db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
