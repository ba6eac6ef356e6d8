// Package bootstrap creates the first company and its administrator, which
// breaks the loop of needing an admin to create companies and a company to
// hold an admin.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resource-catalog/resource-catalog/internal/auth"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
	"github.com/resource-catalog/resource-catalog/internal/validation"
)

// ErrAlreadyRegistered is returned when the admin email already has an account.
var ErrAlreadyRegistered = errors.New("admin email is already registered")

// Companies creates and removes companies. Satisfied by *tenancy.Lifecycle.
type Companies interface {
	Create(ctx context.Context, in tenancy.CreateCompanyInput) (*models.Company, error)
	Delete(ctx context.Context, tenantID int64) error
}

// Identity registers users. Satisfied by *tenancy.Coordinator.
type Identity interface {
	Register(ctx context.Context, tenantID int64, in tenancy.RegisterInput) (*models.User, error)
}

// Lookups finds existing accounts by email. Satisfied by *repositories.LookupRepository.
type Lookups interface {
	GetByEmail(ctx context.Context, email string) (*models.UserCompanyLookup, error)
}

// NewLookups returns a Lookups that reads the global lookup table through router.
func NewLookups(router *tenancy.Router) Lookups {
	return routerLookups{router: router}
}

type routerLookups struct {
	router *tenancy.Router
}

func (l routerLookups) GetByEmail(ctx context.Context, email string) (*models.UserCompanyLookup, error) {
	var entry *models.UserCompanyLookup
	err := l.router.WithGlobalSession(ctx, func(global *tenancy.Session) error {
		var err error
		entry, err = repositories.NewLookupRepository(global).GetByEmail(ctx, email)
		return err
	})
	return entry, err
}

// Options describes the company and administrator to create.
type Options struct {
	CompanyName   string
	AdminName     string
	AdminEmail    string
	AdminPassword string
	Seed          bool
}

// Result is what Run created.
type Result struct {
	Company *models.Company
	Admin   *models.User
}

// Run creates the company with a strictly seeded schema and then registers the
// administrator in it. An email that is already registered is refused before
// anything is written. When registration fails the new company is deleted again.
func Run(ctx context.Context, companies Companies, identity Identity, lookups Lookups, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.CompanyName) == "" {
		return nil, &tenancy.ValidationError{Field: "company", Message: "must not be empty"}
	}
	if opts.AdminPassword == "" {
		return nil, &tenancy.ValidationError{Field: "admin_password", Message: "must not be empty"}
	}
	email := validation.NormalizeEmail(opts.AdminEmail)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, &tenancy.ValidationError{Field: "admin_email", Message: err.Error()}
	}
	name := strings.TrimSpace(opts.AdminName)
	if name == "" {
		name = email
	}

	existing, err := lookups.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check admin email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s belongs to company %d", ErrAlreadyRegistered, email, existing.CompanyID)
	}

	company, err := companies.Create(ctx, tenancy.CreateCompanyInput{
		Name:              opts.CompanyName,
		SeedReferenceData: opts.Seed,
		StrictSeed:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	slog.Info("bootstrap: company created", "tenant_id", company.ID, "name", company.Name)

	admin, err := identity.Register(ctx, company.ID, tenancy.RegisterInput{
		Name:     name,
		Email:    email,
		Password: opts.AdminPassword,
		Role:     auth.RoleAdmin,
	})
	if err != nil {
		if delErr := companies.Delete(ctx, company.ID); delErr != nil {
			slog.Error("bootstrap: failed to remove company after admin registration failed",
				"tenant_id", company.ID, "error", delErr)
			return nil, errors.Join(fmt.Errorf("failed to register admin: %w", err), delErr)
		}
		return nil, fmt.Errorf("failed to register admin: %w", err)
	}
	slog.Info("bootstrap: admin registered", "tenant_id", company.ID, "email", admin.Email)

	return &Result{Company: company, Admin: admin}, nil
}
