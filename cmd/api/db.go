package main

import (
	"backoffice/internal/cache"
	"backoffice/internal/logger"
	"backoffice/internal/server"
	"backoffice/internal/service"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := openDatabase(cfg); err != nil {
			return err
		}
		log := logger.WithComponent("migrate")
		log.Info().Msg("Migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create default permissions, roles and the initial super admin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		log := logger.WithComponent("seed")

		var admin *service.AdminSeed
		if cfg.SeedAdminPassword != "" {
			admin = &service.AdminSeed{
				Name:     cfg.SeedAdminName,
				Email:    cfg.SeedAdminEmail,
				Password: cfg.SeedAdminPassword,
			}
		} else {
			log.Warn().Msg("SEED_ADMIN_PASSWORD not set, skipping admin account")
		}

		app := server.New(db, serverOptions(cfg, cache.NewMemoryActorCache(cfg.PermissionCacheTTL)))
		if err := app.Roles.Seed(cmd.Context(), admin); err != nil {
			return err
		}
		log.Info().Msg("Seed completed")
		return nil
	},
}
