package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/resource-catalog/resource-catalog/internal/db"
)

func newMigrateCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate up|down|force <version>",
		Short: "Apply, roll back, or repair the global schema migrations",
		Long: `Apply, roll back, or repair the global schema migrations.

"force <version>" marks version as applied and clears the dirty flag left by an
interrupted migration. Fix the schema by hand first; nothing is executed.`,
		ValidArgs: []string{"up", "down", "force"},
		Args:      migrateArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			database, err := connect(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			direction := args[0]
			if direction == "force" {
				version, _ := strconv.Atoi(args[1])
				slog.Warn("forcing migration version", "version", version, "schema", cfg.Database.Schema)
				if err := db.ForceMigrationVersion(database.DB, cfg.Database.Schema, version); err != nil {
					return err
				}
			} else {
				slog.Info("running migrations", "direction", direction, "schema", cfg.Database.Schema)
				if err := db.RunMigrations(database.DB, cfg.Database.Schema, direction); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
			}

			version, dirty, err := db.GetMigrationVersion(database.DB, cfg.Database.Schema)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s complete: version %d (dirty: %v)\n", direction, version, dirty)
			return nil
		},
	}
}

func migrateArgs(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a direction: up, down, or force <version>")
	}
	switch args[0] {
	case "up", "down":
		if len(args) != 1 {
			return fmt.Errorf("%s takes no further arguments", args[0])
		}
	case "force":
		if len(args) != 2 {
			return fmt.Errorf("force requires a version")
		}
		if v, err := strconv.Atoi(args[1]); err != nil || v < -1 {
			return fmt.Errorf("invalid argument %q for version", args[1])
		}
	default:
		return fmt.Errorf("invalid argument %q for \"migrate\"", args[0])
	}
	return nil
}
