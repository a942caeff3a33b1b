package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tanmvo/relevance-ai-chat/internal/config"
	"github.com/tanmvo/relevance-ai-chat/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the itinerary and poll tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol.
		log.SetOutput(os.Stderr)

		b, err := openBackend(cmd.Context(), config.Load())
		if err != nil {
			return err
		}
		defer b.Close()

		log.Printf("MCP tool server starting on stdio")
		return tools.New(b.service).Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
