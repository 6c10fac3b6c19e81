package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/logger"
	"backoffice/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	if !cfg.AppDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	actors, closeCache, err := actorCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	app := server.New(db, serverOptions(cfg, actors))
	go app.Hub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openDatabase connects to postgres and brings the schema up to date.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	log := logger.WithComponent("database")
	db, err := database.NewConnection(cfg.DSN(), cfg.AppDebug)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Info().Str("host", cfg.DBHost).Str("database", cfg.DBName).Msg("Connected to PostgreSQL")

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// actorCache picks Redis when REDIS_URL is set and process memory otherwise.
func actorCache(ctx context.Context, cfg *config.Config) (cache.ActorCache, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryActorCache(cfg.PermissionCacheTTL), func() {}, nil
	}
	client, err := cache.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log := logger.WithComponent("cache")
	log.Info().Msg("Using Redis actor cache")
	return cache.NewRedisActorCache(client, cfg.PermissionCacheTTL), func() { _ = client.Close() }, nil
}

func serverOptions(cfg *config.Config, actors cache.ActorCache) server.Options {
	return server.Options{
		JWTSecret:     cfg.JWTSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		InvitationTTL: cfg.InvitationTTL,
		AppURL:        cfg.AppURL,
		CORSOrigins:   cfg.CORSAllowedOrigins,
		SecureCookies: cfg.IsProduction(),
		Debug:         cfg.AppDebug,
		Actors:        actors,
	}
}
