// Package main is the entry point for the resource catalog server binary.
//
// Subcommands:
//
//	serve                    run the HTTP API (applies global migrations first)
//	migrate up|down|force    apply, roll back, or repair the global schema migrations
//	bootstrap                create the first company and its administrator
//	tenants provision <id>   (re)create a tenant schema from the template
//	tenants reconcile        run one reconciliation sweep and print the report
//	version                  print the build version
//
// Every command reads the same layered configuration (defaults, YAML file,
// RCAT_ environment variables).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resource-catalog/resource-catalog/internal/api"
	"github.com/resource-catalog/resource-catalog/internal/config"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// cliOptions are the flags shared by every subcommand.
type cliOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "resource-catalog",
		Short:        "Multi-tenant resource catalog API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"),
		"path to config.yaml (defaults to $CONFIG_PATH, then ./config.yaml)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newBootstrapCommand(opts),
		newTenantsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// loadConfig loads the configuration and installs the structured logger so all
// subcommands log the same way.
func (o *cliOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resource-catalog v%s\n", api.Version)
		},
	}
}
