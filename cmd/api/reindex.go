package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanmvo/relevance-ai-chat/internal/config"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch indexes from Postgres",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return fmt.Errorf("MEILI_URL is not set; nothing to reindex")
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		items, polls, err := b.search.ReindexAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("reindex failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d items and %d polls\n", items, polls)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
