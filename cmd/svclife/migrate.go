package main

import (
	"fmt"

	"github.com/spf13/cobra"

	riverAdapter "github.com/neomorfeo/svclife/internal/adapter/river"
	"github.com/neomorfeo/svclife/internal/adapter/sqlite"
	"github.com/neomorfeo/svclife/internal/config"
)

func newMigrateCmd(load func(*cobra.Command) (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			if err := migrate(cmd, cfg.DatabasePath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", cfg.DatabasePath)
			return nil
		},
	}
}

// migrate applies the lifecycle schema and River's schema.
func migrate(cmd *cobra.Command, path string) error {
	store, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer store.Close()

	if err := riverAdapter.Migrate(cmd.Context(), store.DB()); err != nil {
		return err
	}
	return nil
}
