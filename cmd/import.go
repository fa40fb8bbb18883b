package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/ingest"
	"github.com/tapcard/contact-search/internal/model"
)

var (
	importFile string
	importUser string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a CSV or XLSX file and embed them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var contacts []model.Contact
		switch strings.ToLower(filepath.Ext(importFile)) {
		case ".csv":
			contacts, err = ingest.ReadContactsCSV(importFile, importUser)
		case ".xlsx":
			contacts, err = ingest.ReadContactsXLSX(importFile, importUser)
		default:
			return eris.Errorf("unsupported file type %q (want .csv or .xlsx)", filepath.Ext(importFile))
		}
		if err != nil {
			return err
		}

		stats, err := env.Importer.Run(ctx, importUser, contacts)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		fmt.Printf("Imported %d contacts, embedded %d, geocoded %d, cost $%.4f\n",
			stats.Upserted, stats.Embedded, stats.Geocoded, stats.CostUSD)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importUser, "user", "", "owner user ID (required)")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(importCmd)
}
