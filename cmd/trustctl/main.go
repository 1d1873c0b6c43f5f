package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/listingtrust-backend/internal/app"
	"github.com/yungbote/listingtrust-backend/internal/platform/shutdown"
)

type options struct {
	configPath string
}

func rootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "trustctl",
		Short:         "Operate the listing ingestion and trust pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults to $TRUST_CONFIG_FILE)")

	root.AddCommand(
		ingestCommand(opts),
		retriesCommand(opts),
		anomaliesCommand(opts),
		budgetCommand(opts),
	)
	return root
}

// openApp wires the full application without starting its background loops.
func openApp(opts *options) (*app.App, error) {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := rootCommand(&options{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "trustctl:", err)
		stop()
		os.Exit(1)
	}
}
