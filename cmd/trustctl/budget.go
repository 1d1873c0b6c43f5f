package main

import (
	"github.com/spf13/cobra"
)

func budgetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Print today's validation budget ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Services.Validation.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}
