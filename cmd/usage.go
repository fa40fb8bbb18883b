package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/model"
)

var (
	usageUser string
	usageTier string
	usageJSON bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show a user's monthly budget and quota usage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		user := model.User{ID: usageUser, Tier: usageTier}
		snap, err := env.Gate.Snapshot(ctx, user)
		if err != nil {
			return eris.Wrap(err, "usage snapshot")
		}

		if usageJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		fmt.Printf("User %s (%s tier), month starting %s\n",
			snap.UserID, snap.Tier, snap.MonthStart.Format("2006-01-02"))
		fmt.Printf("  Cost:     $%.4f / $%.2f ($%.4f remaining)\n",
			snap.SpentUSD, snap.MaxCostUSD, snap.RemainingUSD)
		fmt.Printf("  AI runs:  %d / %d (%d remaining)\n",
			snap.RunsAI, snap.MaxRunsAI, snap.RemainingRunsAI)
		fmt.Printf("  API runs: %d / %d (%d remaining)\n",
			snap.RunsAPI, snap.MaxRunsAPI, snap.RemainingRunsAPI)
		return nil
	},
}

func init() {
	usageCmd.Flags().StringVar(&usageUser, "user", "", "user ID (required)")
	usageCmd.Flags().StringVar(&usageTier, "tier", "base", "subscription tier")
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "output JSON")
	_ = usageCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(usageCmd)
}
