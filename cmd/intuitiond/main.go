// Intuitiond is the tenant decision-support daemon for LeafLine agent fleets.
//
// The daemon hosts the nightly dream cycle scheduler plus health and metrics
// endpoints. Decision routing happens in process through the engine package;
// nothing decision-shaped crosses the wire.
//
// Usage:
//
//	# Start the daemon
//	intuitiond serve
//
//	# Run one dream cycle for a tenant right now
//	intuitiond dream --tenant store-042
//
//	# Seed a fresh tenant from an archetype pack
//	intuitiond starter --tenant store-042 --archetype urban_dispensary
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag shared by every subcommand.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "intuitiond",
	Short: "Decision-support daemon for LeafLine agents",
	Long: `intuitiond hosts the self-improving decision layer for LeafLine agent
fleets: per-tenant event memory, learned heuristics, and the nightly dream
cycle that consolidates them.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.config/intuitiond/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dreamCmd)
	rootCmd.AddCommand(starterCmd)
	rootCmd.AddCommand(readinessCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("intuitiond by LeafLine Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

// printJSON renders command output for operators and scripts alike.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
