package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/model"
)

var jobsJSON bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect background jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get job")
		}
		if job == nil {
			return eris.Errorf("job %s not found", args[0])
		}

		if jobsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}

		fmt.Printf("Job %s (%s)\n", job.ID, job.Type)
		fmt.Printf("Status: %s (%d%%)\n", job.Status, job.Progress)
		for _, stage := range job.Stages {
			marker := " "
			switch stage.Status {
			case model.StageStatusCompleted:
				marker = "x"
			case model.StageStatusInProgress:
				marker = ">"
			}
			fmt.Printf("  [%s] %s\n", marker, stage.Name)
		}
		for stage, msg := range job.StageErrors {
			fmt.Printf("  stage error (%s): %s\n", stage, msg)
		}
		if job.Error != "" {
			fmt.Printf("Error: %s\n", job.Error)
		}
		if job.Result != nil {
			fmt.Printf("Result: %d groups saved (%d generated, %d unique)\n",
				job.Result.TotalSaved, job.Result.TotalGenerated, job.Result.TotalUnique)
			if job.Result.Message != "" {
				fmt.Println(job.Result.Message)
			}
		}
		return nil
	},
}

func init() {
	jobsStatusCmd.Flags().BoolVar(&jobsJSON, "json", false, "output JSON")
	jobsCmd.AddCommand(jobsStatusCmd)
	rootCmd.AddCommand(jobsCmd)
}
