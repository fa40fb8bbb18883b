package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "contact-search",
	Short: "Semantic contact search and grouping service",
	Long:  "Expands search queries, embeds and reranks contacts, and clusters them into groups by rules or AI, with per-tier budget enforcement.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
