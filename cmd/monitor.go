package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tapcard/contact-search/internal/monitoring"
)

var monitorJSON bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run a one-shot health check and fire alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := monitoring.NewCollector(st)
		lookback := cfg.Monitoring.LookbackWindowHours
		if lookback <= 0 {
			lookback = 24
		}
		snap, err := collector.Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "monitor")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		sent := alerter.SendAlerts(ctx, alerts)

		if monitorJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"snapshot": snap, "alerts": alerts})
		}

		fmt.Printf("Last %dh: %d jobs (%d completed, %d failed, %d degraded AI), spend $%.4f\n",
			snap.LookbackHours, snap.JobsTotal, snap.JobsCompleted, snap.JobsFailed,
			snap.DegradedAIJobs, snap.CostUSD)
		if len(alerts) == 0 {
			fmt.Println("No alerts triggered.")
			return nil
		}
		for _, a := range alerts {
			fmt.Printf("ALERT [%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
		fmt.Printf("%d alert(s) sent to webhook\n", sent)
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "output JSON")
	rootCmd.AddCommand(monitorCmd)
}
