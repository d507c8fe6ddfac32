// Command svclife runs the service lifecycle engine: an HTTP API over the
// lifecycle state machine, backed by SQLite with a River job queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/svclife/internal/config"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "svclife",
		Short: "Service lifecycle engine",
		Long: `svclife tracks client service instances through their lifecycle
(requested, onboarding, active, renewal_due, suspended, terminated),
keeps an append-only history of every transition, and manages scheduled
events and their tasks.

Settings come from flags, SVCLIFE_* environment variables and an optional
config file, in that order.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	config.RegisterFlags(root.PersistentFlags())

	load := func(cmd *cobra.Command) (config.Config, error) {
		v := config.New()
		if err := config.ReadFile(v, configFile); err != nil {
			return config.Config{}, err
		}
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return config.Config{}, err
		}
		return config.Load(v)
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newMigrateCmd(load))

	return root
}
