package tenancy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

const maxCompanyNameLength = 255

// CreateCompanyInput describes a company to create.
type CreateCompanyInput struct {
	Name              string
	SeedReferenceData bool
	// StrictSeed makes a seeding failure roll the whole creation back instead of
	// leaving an unseeded but usable tenant.
	StrictSeed bool
}

// Lifecycle creates and destroys companies together with their schemas.
type Lifecycle struct {
	router      *Router
	provisioner *Provisioner
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(router *Router, provisioner *Provisioner) *Lifecycle {
	return &Lifecycle{router: router, provisioner: provisioner}
}

// Create inserts the company row, provisions its schema, and optionally seeds
// it. When a step after the insert fails the company row is removed again and
// the error wraps ErrTenantProvisioningFailed. If that cleanup itself fails the
// error also carries a *CriticalConsistencyFault.
func (l *Lifecycle) Create(ctx context.Context, in CreateCompanyInput) (*models.Company, error) {
	name, err := validateCompanyName(in.Name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	company := &models.Company{Name: name}
	var seedErr error

	saga := NewSaga("create_company", "company", name).
		StepWithCompensation("insert_company", func(ctx context.Context) error {
			return l.router.WithGlobalSession(ctx, func(s *Session) error {
				return repositories.NewCompanyRepository(s).Create(ctx, company)
			})
		}, "delete_company", func(ctx context.Context) error {
			return l.router.WithGlobalSession(ctx, func(s *Session) error {
				_, err := repositories.NewCompanyRepository(s).Delete(ctx, company.ID)
				return err
			})
		}).
		StepWithCompensation("create_schema", func(ctx context.Context) error {
			return l.provisioner.CreateSchema(ctx, company.ID)
		}, "drop_schema", func(ctx context.Context) error {
			return l.provisioner.DropSchema(ctx, company.ID)
		}).
		Step("seed_reference_data", func(ctx context.Context) error {
			if !in.SeedReferenceData {
				return nil
			}
			err := l.provisioner.SeedReferenceData(ctx, company.ID)
			if err != nil && !in.StrictSeed {
				seedErr = err
				slog.Warn("tenant created without reference data", "tenant_id", company.ID, "error", err)
				return nil
			}
			return err
		})

	state, err := saga.Run(ctx)
	telemetry.TenantProvisioningDuration.Observe(time.Since(start).Seconds())

	switch state {
	case StateCommitted:
		outcome := string(StateCommitted)
		if seedErr != nil {
			outcome = "seed_failed"
		}
		telemetry.TenantProvisioningTotal.WithLabelValues(outcome).Inc()
		slog.Info("company created", "tenant_id", company.ID, "name", company.Name)
		return company, nil
	case StateRolledBack:
		telemetry.TenantProvisioningTotal.WithLabelValues(string(state)).Inc()
		if company.ID == 0 {
			return nil, fmt.Errorf("failed to create company: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTenantProvisioningFailed, err)
	default:
		telemetry.TenantProvisioningTotal.WithLabelValues(string(state)).Inc()
		return nil, fmt.Errorf("%w: %w", ErrTenantProvisioningFailed, err)
	}
}

// Delete drops a company's schema and row in one global transaction. The
// company row stays locked throughout, so a registration racing the delete
// either commits its lookup first (and the delete fails with ErrTenantNotEmpty)
// or fails its foreign key check afterwards.
func (l *Lifecycle) Delete(ctx context.Context, tenantID int64) error {
	if _, err := l.router.Namer().SchemaName(tenantID); err != nil {
		return err
	}

	err := l.router.WithGlobalSession(ctx, func(s *Session) error {
		return s.InTx(ctx, func(tx *sqlx.Tx) error {
			companies := repositories.NewCompanyRepository(tx)
			company, err := companies.GetByIDForUpdate(ctx, tenantID)
			if err != nil {
				return err
			}
			if company == nil {
				return fmt.Errorf("%w: %d", ErrTenantNotFound, tenantID)
			}

			count, err := repositories.NewLookupRepository(tx).CountByCompany(ctx, tenantID)
			if err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("%w: %d accounts remain", ErrTenantNotEmpty, count)
			}

			if err := l.provisioner.dropSchema(ctx, tx, tenantID); err != nil {
				return err
			}
			if _, err := companies.Delete(ctx, tenantID); err != nil {
				return err
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	slog.Info("company deleted", "tenant_id", tenantID)
	return nil
}

// Get returns a company or ErrTenantNotFound.
func (l *Lifecycle) Get(ctx context.Context, tenantID int64) (*models.Company, error) {
	var company *models.Company
	err := l.router.WithGlobalSession(ctx, func(s *Session) error {
		var err error
		company, err = repositories.NewCompanyRepository(s).GetByID(ctx, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: %d", ErrTenantNotFound, tenantID)
	}
	return company, nil
}

// List returns a page of companies and the total count. page is 1-based.
func (l *Lifecycle) List(ctx context.Context, page, perPage int) ([]*models.Company, int, error) {
	var companies []*models.Company
	var total int
	err := l.router.WithGlobalSession(ctx, func(s *Session) error {
		var err error
		companies, total, err = repositories.NewCompanyRepository(s).List(ctx, perPage, (page-1)*perPage)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return companies, total, nil
}

// Rename changes a company's name.
func (l *Lifecycle) Rename(ctx context.Context, tenantID int64, name string) (*models.Company, error) {
	name, err := validateCompanyName(name)
	if err != nil {
		return nil, err
	}

	var company *models.Company
	err = l.router.WithGlobalSession(ctx, func(s *Session) error {
		var err error
		company, err = repositories.NewCompanyRepository(s).Rename(ctx, tenantID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: %d", ErrTenantNotFound, tenantID)
	}
	return company, nil
}

// Reprovision reapplies the schema template to an existing company. Tables
// added to the template since the company was created are created; existing
// tables are left as they are.
func (l *Lifecycle) Reprovision(ctx context.Context, tenantID int64, seed bool) error {
	if _, err := l.Get(ctx, tenantID); err != nil {
		return err
	}
	return l.provisioner.Provision(ctx, tenantID, seed)
}

func validateCompanyName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(name) > maxCompanyNameLength {
		return "", &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxCompanyNameLength)}
	}
	return name, nil
}
