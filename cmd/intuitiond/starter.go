package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/leaflinelabs/intuition/internal/starterpack"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

var (
	starterTenant    string
	starterArchetype string
	starterName      string
)

var starterCmd = &cobra.Command{
	Use:   "starter",
	Short: "Apply an archetype starter pack to a tenant",
	Long: `Register a tenant and seed it with the heuristics and pattern clusters of
a business archetype. Applying a pack twice is a no-op that returns the
original receipt.

Archetypes: urban_dispensary, rural_dispensary, brand, delivery.

Examples:
  intuitiond starter --tenant store-042 --archetype urban_dispensary
  intuitiond starter --tenant ember-co --archetype brand --name "Ember & Co"`,
	RunE: runStarter,
}

func init() {
	starterCmd.Flags().StringVar(&starterTenant, "tenant", "", "tenant to seed (required)")
	starterCmd.Flags().StringVar(&starterArchetype, "archetype", "", "archetype pack to apply (required)")
	starterCmd.Flags().StringVar(&starterName, "name", "", "display name for the tenant (default: tenant ID)")
	_ = starterCmd.MarkFlagRequired("tenant")
	_ = starterCmd.MarkFlagRequired("archetype")
}

func runStarter(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	err = a.tenants.Register(ctx, tenant.Tenant{
		ID:        starterTenant,
		Name:      starterName,
		Archetype: starterArchetype,
	})
	if err != nil {
		return err
	}

	receipt, err := a.starter.Apply(ctx, starterTenant, starterpack.Archetype(starterArchetype))
	if errors.Is(err, starterpack.ErrAlreadyApplied) {
		receipt, err = a.starter.GetReceipt(ctx, starterTenant)
	}
	if err != nil {
		return err
	}
	return printJSON(receipt)
}
