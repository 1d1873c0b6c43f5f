package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/listingtrust-backend/internal/ingestion"
	jobrt "github.com/yungbote/listingtrust-backend/internal/jobs/runtime"
)

func ingestCommand(opts *options) *cobra.Command {
	var (
		file    string
		scraper string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one batch from a JSON file of raw extraction records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(scraper) == "" {
				return fmt.Errorf("--scraper is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			records, err := ingestion.DecodeRecords(data)
			if err != nil {
				return err
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ex := &jobrt.StaticExtractor{ScraperName: scraper, Records: records}
			report, err := a.Services.Orchestrator.RunBatch(cmd.Context(), scraper, ex)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON array of raw records")
	cmd.Flags().StringVar(&scraper, "scraper", "", "scraper name the records came from")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
