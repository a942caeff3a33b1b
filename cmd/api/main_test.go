package main

import (
	"testing"
)

func TestRootRegistersSubcommands(t *testing.T) {
	for _, name := range []string{"serve", "migrate", "mcp", "reindex"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %q subcommand, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestMigrateSubcommands(t *testing.T) {
	for _, name := range []string{"up", "status", "down"} {
		cmd, _, err := rootCmd.Find([]string{"migrate", name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected migrate %q, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestReindexRequiresMeili(t *testing.T) {
	t.Setenv("MEILI_URL", "")
	err := reindexCmd.RunE(reindexCmd, nil)
	if err == nil {
		t.Fatal("expected reindex to refuse without MEILI_URL")
	}
}
