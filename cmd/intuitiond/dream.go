package main

import (
	"context"

	"github.com/spf13/cobra"
)

var dreamTenant string

var dreamCmd = &cobra.Command{
	Use:   "dream",
	Short: "Run a dream cycle now",
	Long: `Run the nightly maintenance cycle immediately instead of waiting for the
schedule and print the cycle report.

Examples:
  # One tenant
  intuitiond dream --tenant store-042

  # Every registered tenant
  intuitiond dream`,
	RunE: runDream,
}

func init() {
	dreamCmd.Flags().StringVar(&dreamTenant, "tenant", "",
		"tenant to run the cycle for (default: all registered)")
}

func runDream(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if dreamTenant != "" {
		report, err := a.dream.RunForTenant(ctx, dreamTenant)
		if err != nil {
			return err
		}
		return printJSON(report)
	}

	reports, err := a.dream.RunAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(reports)
}
