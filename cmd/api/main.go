package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
	"github.com/c-f-an/tov-nextjs-sub002/internal/config"
	"github.com/c-f-an/tov-nextjs-sub002/internal/httpapi"
	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}

	logger := obs.NewLogger(cfg.LogLevel, os.Stdout).With(zap.String("service", "tov-auth"))
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wire dependencies", zap.Error(err))
	}
	defer deps.close()

	tokens, err := auth.NewTokens(cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}
	svc, err := auth.NewService(deps.users, deps.sessions, tokens, auth.WithLogger(logger.Named("auth")))
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}
	auditLog := audit.NewLogger(deps.audit,
		audit.WithLogger(logger.Named("audit")),
		audit.WithTimeout(cfg.AuditTimeout),
	)

	api := httpapi.New(httpapi.ReadyProbe{DB: deps.db}, svc, auditLog, httpapi.Options{
		Version:     version,
		Cookies:     httpapi.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
		CORSOrigins: cfg.CORSOrigins,
		RatePerSec:  cfg.LoginRatePerSec,
		RateBurst:   cfg.LoginRateBurst,
		Logger:      logger,

		TrustedProxies: cfg.TrustedProxies,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting tov-auth",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("env", cfg.Env),
		zap.String("session_store", cfg.SessionStore),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("listen", zap.Error(err))
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
