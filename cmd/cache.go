package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/cache"
	"github.com/tapcard/contact-search/internal/expand"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the query expansion cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [pattern]",
	Short: "Delete cached expansions matching a pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pattern := expand.CacheKeyPrefix + ":*"
		if len(args) == 1 {
			pattern = args[0]
		}

		c := cache.New(cfg.Redis)
		defer c.Close() //nolint:errcheck

		removed := c.ClearPattern(ctx, pattern)
		fmt.Printf("Removed %d keys matching %q\n", removed, pattern)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count cached expansions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		c := cache.New(cfg.Redis)
		defer c.Close() //nolint:errcheck

		count := c.CountPattern(ctx, expand.CacheKeyPrefix+":*")
		fmt.Printf("Cached expansions: %d\n", count)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
