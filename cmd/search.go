package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/search"
)

var (
	searchUser       string
	searchTier       string
	searchTopK       int
	searchTopN       int
	searchLanguage   string
	searchSkipRerank bool
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search contacts semantically",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		topK := searchTopK
		if topK <= 0 {
			topK = cfg.Search.TopK
		}

		user := model.User{ID: searchUser, Tier: searchTier}
		result, err := env.Pipeline.Search(ctx, user, args[0], search.Options{
			TopK:         topK,
			TopN:         searchTopN,
			LanguageHint: searchLanguage,
			SkipRerank:   searchSkipRerank,
		})
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		formatSearchResult(result)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchUser, "user", "", "user ID (required)")
	searchCmd.Flags().StringVar(&searchTier, "tier", "base", "subscription tier")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "vector candidates to retrieve")
	searchCmd.Flags().IntVar(&searchTopN, "top-n", 0, "results to keep after rerank")
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "language hint for query expansion")
	searchCmd.Flags().BoolVar(&searchSkipRerank, "skip-rerank", false, "skip the rerank stage")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output JSON")
	_ = searchCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(searchCmd)
}

func formatSearchResult(result *model.SearchResult) {
	if result.Query.Enhanced != result.Query.Raw {
		fmt.Printf("Query: %q (expanded: %q)\n", result.Query.Raw, result.Query.Enhanced)
	} else {
		fmt.Printf("Query: %q\n", result.Query.Raw)
	}
	if len(result.Degraded) > 0 {
		fmt.Printf("Degraded stages: %v\n", result.Degraded)
	}

	if len(result.Contacts) == 0 {
		fmt.Fprintln(os.Stderr, "No contacts matched.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOMPANY\tEMAIL\tVECTOR\tHYBRID")
	for _, c := range result.Contacts {
		hybrid := "-"
		if result.Reranked {
			hybrid = fmt.Sprintf("%.4f", c.HybridScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\n", c.Name, c.Company, c.Email, c.VectorScore, hybrid)
	}
	_ = w.Flush()

	fmt.Printf("\n%d contacts, cost $%.4f\n", len(result.Contacts), result.CostUSD)
}
