package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanmvo/relevance-ai-chat/internal/config"
	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.ApplyMigrations(cmd.Context(), db, cfg.MigrationsDir); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		states, err := store.MigrationStatus(cmd.Context(), db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, state := range states {
			if state.Applied && state.AppliedAt != nil {
				fmt.Fprintf(out, "%-40s applied %s\n", state.Version, state.AppliedAt.Format(time.RFC3339))
				continue
			}
			fmt.Fprintf(out, "%-40s pending\n", state.Version)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		version, err := store.RollbackLast(cmd.Context(), db, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		if version == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", version)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
