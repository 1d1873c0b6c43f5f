package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/listingtrust-backend/internal/jobs"
)

func retriesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retries",
		Short: "Inspect and drain the scraper retry queue",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print pending retries",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(opts)
				if err != nil {
					return err
				}
				defer a.Close()
				return printJSON(cmd.OutOrStdout(), a.Services.Monitor.Pending())
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Re-run every scraper whose retry is due, in process",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp(opts)
				if err != nil {
					return err
				}
				defer a.Close()
				w, err := jobs.NewRetryWorker(a.Log, a.Services.Monitor, a.Services.Local, 0)
				if err != nil {
					return err
				}
				ran := w.SweepOnce(cmd.Context())
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"ran":     ran,
					"pending": a.Services.Monitor.Pending(),
				})
			},
		},
	)
	return cmd
}
