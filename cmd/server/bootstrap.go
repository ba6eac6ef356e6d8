package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resource-catalog/resource-catalog/internal/bootstrap"
)

func newBootstrapCommand(opts *cliOptions) *cobra.Command {
	var (
		bo     bootstrap.Options
		noSeed bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first company and its administrator",
		Long: `Create a company with a freshly provisioned schema and register an
administrator in it. Fails without changes if the admin email is already registered.

The password may also be given through RCAT_BOOTSTRAP_ADMIN_PASSWORD so it does
not end up in shell history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bo.AdminPassword == "" {
				bo.AdminPassword = os.Getenv("RCAT_BOOTSTRAP_ADMIN_PASSWORD")
			}
			bo.Seed = !noSeed

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

			res, err := bootstrap.Run(cmd.Context(), svc.lifecycle, svc.coordinator, bootstrap.NewLookups(svc.router), bo)
			if errors.Is(err, bootstrap.ErrAlreadyRegistered) {
				return fmt.Errorf("nothing to do: %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "company %q created with id %d; admin %s registered\n",
				res.Company.Name, res.Company.ID, res.Admin.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&bo.CompanyName, "company", "", "company name (required)")
	cmd.Flags().StringVar(&bo.AdminEmail, "admin-email", "", "administrator email (required)")
	cmd.Flags().StringVar(&bo.AdminPassword, "admin-password", "", "administrator password")
	cmd.Flags().StringVar(&bo.AdminName, "admin-name", "", "administrator display name (defaults to the email)")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "skip reference data seeding")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("admin-email")
	return cmd
}
