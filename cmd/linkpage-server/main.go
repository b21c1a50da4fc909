package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/auth"
	"github.com/mikepea/linkpage/pkg/linkpage/config"
	"github.com/mikepea/linkpage/pkg/linkpage/database"
	"github.com/mikepea/linkpage/pkg/linkpage/identity"
	"github.com/mikepea/linkpage/pkg/linkpage/legacy"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mikepea/linkpage/pkg/linkpage/ratelimit"
	"github.com/mikepea/linkpage/pkg/linkpage/server"
	"github.com/mikepea/linkpage/pkg/linkpage/stats"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newIdentityProvider(cfg config.Config, db *gorm.DB) identity.Provider {
	if cfg.IdentityProvider == config.IdentityGoTrue {
		return identity.NewGoTrueProvider(cfg.IdentityURL, cfg.IdentityKey)
	}
	return identity.NewLocalProvider(db)
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.AppEnv)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info().Msg("database migrations completed")

	clicks := stats.NewRecorder(db, cfg.ClickBuffer)
	limiter := ratelimit.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	router, err := server.NewRouter(server.Deps{
		Config:   cfg,
		DB:       db,
		Identity: newIdentityProvider(cfg, db),
		Sessions: server.NewSessionStore(cfg),
		Tokens:   auth.NewTokenIssuer(cfg.TokenSecret(), cfg.TokenTTL),
		Clicks:   clicks,
		Legacy:   legacy.NewStore(cfg.LegacyTTL, cfg.LegacyMaxEntries),
		Limiter:  limiter,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// Workers outlive the request context so buffered clicks are flushed
	// after the server stops accepting requests.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		clicks.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		limiter.StartCleanup(workerCtx, 10*time.Minute)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.AppEnv).
			Str("identity", cfg.IdentityProvider).
			Str("sessions", cfg.SessionStore).
			Msg("starting linkpage server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	workerCancel()
	workers.Wait()

	logger.Info().Msg("server exited")
	return nil
}
