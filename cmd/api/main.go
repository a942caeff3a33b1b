package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tanmvo/relevance-ai-chat/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "trip-api",
	Short: "Trip planner API",
	Long:  "trip-api serves the trip planner HTTP API, runs database migrations and hosts the itinerary tools over MCP.",
	// With no subcommand the HTTP server starts, as before the CLI existed.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), config.Load())
	},
	SilenceUsage: true,
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("trip-api: %v", err)
		stop()
		os.Exit(1)
	}
}
