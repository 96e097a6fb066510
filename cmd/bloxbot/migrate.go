package main

import (
	"fmt"
	"log/slog"

	"github.com/blox-verify/internal/config"
	"github.com/blox-verify/internal/infrastructure/dynamo"
	"github.com/blox-verify/internal/infrastructure/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of the configured store backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			ctx := cmd.Context()

			switch cfg.StoreBackend {
			case config.BackendPostgres:
				pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := postgres.Migrate(ctx, pool); err != nil {
					return err
				}
			case config.BackendDynamo:
				client, err := dynamo.NewClient(ctx, cfg)
				if err != nil {
					return err
				}
				dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
			case config.BackendFile:
				slog.Info("file backend needs no migration", "dir", cfg.DataDir)
				return nil
			default:
				return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
			}
			slog.Info("migration complete", "backend", cfg.StoreBackend)
			return nil
		},
	}
}
