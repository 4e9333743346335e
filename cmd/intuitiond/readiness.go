package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var readinessTenant string

var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Print tenant readiness scores",
	Long: `Score how much usable data and configuration tenants have accumulated,
0-100. Higher scores mean the fast path can be trusted with more of the
tenant's traffic.

Examples:
  # One tenant
  intuitiond readiness --tenant store-042

  # Every registered tenant
  intuitiond readiness`,
	RunE: runReadiness,
}

func init() {
	readinessCmd.Flags().StringVar(&readinessTenant, "tenant", "",
		"tenant to score (default: all registered)")
}

func runReadiness(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if readinessTenant != "" {
		fmt.Printf("%s\t%d\n", readinessTenant, a.dream.ReadinessScore(ctx, readinessTenant))
		return nil
	}

	tenants, err := a.tenants.List(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("no registered tenants")
		return nil
	}
	for _, t := range tenants {
		fmt.Printf("%s\t%d\n", t.ID, a.dream.ReadinessScore(ctx, t.ID))
	}
	return nil
}
