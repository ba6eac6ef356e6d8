package main

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/resource-catalog/resource-catalog/internal/auth"
	"github.com/resource-catalog/resource-catalog/internal/config"
	"github.com/resource-catalog/resource-catalog/internal/jobs"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// tenancyServices are the tenancy components the maintenance commands need.
type tenancyServices struct {
	router      *tenancy.Router
	lifecycle   *tenancy.Lifecycle
	coordinator *tenancy.Coordinator
}

func newTenancyServices(cfg *config.Config, database *sqlx.DB) (*tenancyServices, error) {
	router := tenancy.NewRouter(database, tenancy.NewNamer(cfg.MultiTenancy.SchemaPrefix), cfg.Database.Schema)
	provisioner, err := tenancy.NewProvisioner(database, router.Namer())
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant template: %w", err)
	}
	codec, err := auth.NewTokenCodecFromConfig(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	coordinator, err := tenancy.NewCoordinator(router, auth.NewCredentialVerifier(cfg.Auth.BcryptCost), codec)
	if err != nil {
		return nil, err
	}
	return &tenancyServices{
		router:      router,
		lifecycle:   tenancy.NewLifecycle(router, provisioner),
		coordinator: coordinator,
	}, nil
}

func newTenantsCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Tenant schema maintenance",
	}
	cmd.AddCommand(newTenantsProvisionCommand(opts), newTenantsReconcileCommand(opts))
	return cmd
}

func newTenantsProvisionCommand(opts *cliOptions) *cobra.Command {
	var noSeed bool
	cmd := &cobra.Command{
		Use:   "provision <tenant-id>",
		Short: "Apply the tenant schema template to an existing company",
		Long: `Apply the tenant schema template to an existing company.

Missing tables are created and existing ones are left alone, so the command is
safe to run against a schema that is already complete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenancy.ParseTenantID(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			database, err := connect(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			svc, err := newTenancyServices(cfg, database)
			if err != nil {
				return err
			}
			if err := svc.lifecycle.Reprovision(cmd.Context(), tenantID, !noSeed); err != nil {
				return fmt.Errorf("failed to provision tenant %d: %w", tenantID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %d provisioned\n", tenantID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "skip reference data seeding")
	return cmd
}

func newTenantsReconcileCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep and print the findings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			database, err := connect(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			svc, err := newTenancyServices(cfg, database)
			if err != nil {
				return err
			}
			report, sweepErr := jobs.NewTenantReconciler(svc.router, cfg.MultiTenancy.Reconciliation).Sweep(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if sweepErr != nil {
				return fmt.Errorf("sweep incomplete: %w", sweepErr)
			}
			return nil
		},
	}
}
