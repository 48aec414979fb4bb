package cli

import (
	"neuroaid-diagnostic-service/internal/config"
	"neuroaid-diagnostic-service/internal/domain"
	pgloader "neuroaid-diagnostic-service/internal/infra/postgres"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCatalogCmd groups catalog maintenance commands.
func NewCatalogCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage quiz catalogs",
	}
	cmd.AddCommand(newCatalogSeedCmd(configPath))
	return cmd
}

func newCatalogSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Store the built-in screening catalog in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errPostgresNotConfigured
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := runMigrations(ctx, cfg, logger); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			catalog := domain.DefaultCatalog()
			if err := pgloader.NewCatalogLoader(pool).UpsertCatalog(ctx, catalog); err != nil {
				return err
			}
			logger.Info("catalog seeded", zap.String("catalog_id", catalog.ID), zap.Int("items", catalog.Total()))
			return nil
		},
	}
}
