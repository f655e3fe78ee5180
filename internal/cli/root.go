// Package cli is the recoverypulse command tree.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recoverypulse",
		Short: "Daily recovery check-ins with a subscription gate",
		Long: `Recovery Pulse records a daily wellness check-in (sleep, fatigue,
soreness), scores it from 0 to 100 and tracks a seven day trend.

Run "recoverypulse serve" for the HTTP API or use the subcommands directly
against the same database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	defaultConfig := os.Getenv("PULSE_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "recoverypulse.yaml"
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfig, "path to YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCheckInCommand(opts))
	cmd.AddCommand(NewTodayCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewTrendsCommand(opts))
	cmd.AddCommand(NewAccessCommand(opts))
	cmd.AddCommand(NewPurchaseCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewOnboardingCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))

	return cmd
}
