package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/listingtrust-backend/internal/platform/dbctx"
	"github.com/yungbote/listingtrust-backend/internal/report"
)

func anomaliesCommand(opts *options) *cobra.Command {
	var (
		out   string
		since time.Duration
		limit int
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Write recent anomaly records to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.Repos.Anomalies.ListSince(dbctx.Context{Ctx: cmd.Context()}, time.Now().Add(-since), limit)
			if err != nil {
				return fmt.Errorf("list anomalies: %w", err)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			n, err := report.WriteAnomalies(f, rows)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d anomalies to %s\n", n, out)
			return nil
		},
	}
	export.Flags().StringVar(&out, "out", "anomalies.xlsx", "output workbook path")
	export.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window")
	export.Flags().IntVar(&limit, "limit", 5000, "maximum rows")

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Batch anomaly reports",
	}
	cmd.AddCommand(export)
	return cmd
}
