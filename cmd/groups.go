package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/model"
)

var (
	groupsUser string
	groupsTier string
	groupsJSON bool
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Generate and inspect contact groups",
	Long:  "Commands for rules-based grouping, AI grouping jobs, and listing saved groups.",
}

// -- groups rules --

var groupsRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Generate groups with the deterministic rules engine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		contacts, err := env.Store.ListContacts(ctx, groupsUser)
		if err != nil {
			return eris.Wrap(err, "list contacts")
		}

		generated, stats := env.Rules.Generate(groupsUser, contacts)
		saved := 0
		if len(generated) > 0 {
			saved, err = env.Store.SaveGroups(ctx, groupsUser, generated)
			if err != nil {
				return eris.Wrap(err, "save groups")
			}
		}

		fmt.Printf("Scanned %d contacts: %d company, %d event, %d location groups (%d saved)\n",
			stats.ContactsScanned, stats.CompanyGroups, stats.EventGroups, stats.LocationGroups, saved)
		formatGroups(generated)
		return nil
	},
}

// -- groups ai --

var groupsAICmd = &cobra.Command{
	Use:   "ai",
	Short: "Start an AI grouping job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		user := model.User{ID: groupsUser, Tier: groupsTier}
		jobID, err := env.Orchestrator.Start(ctx, user)
		if err != nil {
			return eris.Wrap(err, "start grouping job")
		}

		fmt.Printf("Job started: %s\n", jobID)
		fmt.Println("Track it with: contact-search jobs status", jobID)
		return nil
	},
}

// -- groups list --

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved groups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		gs, err := env.Store.ListGroups(ctx, groupsUser)
		if err != nil {
			return eris.Wrap(err, "list groups")
		}

		if groupsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(gs)
		}

		if len(gs) == 0 {
			fmt.Fprintln(os.Stderr, "No groups found.")
			return nil
		}
		formatGroups(gs)
		return nil
	},
}

func init() {
	groupsCmd.PersistentFlags().StringVar(&groupsUser, "user", "", "user ID (required)")
	groupsCmd.PersistentFlags().StringVar(&groupsTier, "tier", "base", "subscription tier")
	_ = groupsCmd.MarkPersistentFlagRequired("user")

	groupsListCmd.Flags().BoolVar(&groupsJSON, "json", false, "output JSON")

	groupsCmd.AddCommand(groupsRulesCmd)
	groupsCmd.AddCommand(groupsAICmd)
	groupsCmd.AddCommand(groupsListCmd)
	rootCmd.AddCommand(groupsCmd)
}

func formatGroups(gs []model.Group) {
	if len(gs) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tCONTACTS\tDESCRIPTION")
	for _, g := range gs {
		desc := g.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", g.Name, g.Type, len(g.ContactIDs), strings.TrimSpace(desc))
	}
	_ = w.Flush()
}
