// Package jobs contains background workers that run on a schedule.
//
// tenant_reconciler.go implements the TenantReconciler, which repairs the gaps a
// crash can leave between the global registry and the tenant schemas: company
// rows whose schema was never created, lookup rows whose account is gone,
// accounts with no lookup row, and schemas with no company. Only the first two
// are repaired; the others need an operator and are reported. Sweeps are
// idempotent and only touch records older than the grace period, so a
// provisioning or registration still in flight is never reaped.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/resource-catalog/resource-catalog/internal/config"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/safego"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// Finding kinds, also used as the reconciler metric label.
const (
	FindingOrphanCompany = "orphan_company"
	FindingStaleLookup   = "stale_lookup"
	FindingUnindexedUser = "unindexed_user"
	FindingOrphanSchema  = "orphan_schema"
)

const (
	defaultReconcileInterval = time.Hour
	defaultGracePeriod       = 15 * time.Minute
)

// UnindexedUser is a tenant account that cannot log in because it has no
// lookup row.
type UnindexedUser struct {
	TenantID int64  `json:"tenant_id"`
	Email    string `json:"email"`
}

// ReconcileReport lists what one sweep found.
type ReconcileReport struct {
	OrphanCompanies []int64         `json:"orphan_companies"`
	StaleLookups    []string        `json:"stale_lookups"`
	UnindexedUsers  []UnindexedUser `json:"unindexed_users"`
	OrphanSchemas   []int64         `json:"orphan_schemas"`
}

// Total returns the number of findings in the report.
func (r *ReconcileReport) Total() int {
	return len(r.OrphanCompanies) + len(r.StaleLookups) + len(r.UnindexedUsers) + len(r.OrphanSchemas)
}

// TenantReconciler periodically sweeps the global registry against the tenant schemas.
type TenantReconciler struct {
	router      *tenancy.Router
	interval    time.Duration
	gracePeriod time.Duration
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTenantReconciler creates a reconciler from the reconciliation config.
// Zero durations fall back to one hour between sweeps and a 15 minute grace period.
func NewTenantReconciler(router *tenancy.Router, cfg config.ReconciliationConfig) *TenantReconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	return &TenantReconciler{
		router:      router,
		interval:    interval,
		gracePeriod: grace,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (r *TenantReconciler) Start(ctx context.Context) {
	slog.Info("tenant reconciler started", "interval", r.interval, "grace_period", r.gracePeriod)

	r.wg.Add(1)
	safego.Go("tenant_reconciler", func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.runSweep(ctx)
		for {
			select {
			case <-ticker.C:
				r.runSweep(ctx)
			case <-r.stopCh:
				slog.Info("tenant reconciler stopped")
				return
			case <-ctx.Done():
				slog.Info("tenant reconciler context cancelled")
				return
			}
		}
	})
}

// Stop signals the loop to exit and waits for an in-progress sweep.
func (r *TenantReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *TenantReconciler) runSweep(ctx context.Context) {
	report, err := r.Sweep(ctx)
	if err != nil {
		slog.Error("tenant reconciliation sweep incomplete", "error", err)
	}
	if report != nil && report.Total() > 0 {
		slog.Warn("tenant reconciliation sweep found inconsistencies",
			"orphan_companies", len(report.OrphanCompanies),
			"stale_lookups", len(report.StaleLookups),
			"unindexed_users", len(report.UnindexedUsers),
			"orphan_schemas", len(report.OrphanSchemas))
	}
}

// Sweep runs one reconciliation pass. Failures on one company do not stop the
// sweep; they are combined into the returned error alongside a partial report.
func (r *TenantReconciler) Sweep(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{
		OrphanCompanies: []int64{},
		StaleLookups:    []string{},
		UnindexedUsers:  []UnindexedUser{},
		OrphanSchemas:   []int64{},
	}
	cutoff := r.now().Add(-r.gracePeriod)

	var errs error
	err := r.router.WithGlobalSession(ctx, func(global *tenancy.Session) error {
		companies := repositories.NewCompanyRepository(global)
		lookups := repositories.NewLookupRepository(global)

		candidates, err := companies.ListCreatedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, company := range candidates {
			if err := r.reconcileCompany(ctx, company, companies, lookups, cutoff, report); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("company %d: %w", company.ID, err))
			}
		}

		schemaIDs, err := r.router.Guard().TenantSchemas(ctx)
		if err != nil {
			return err
		}
		for _, id := range schemaIDs {
			company, err := companies.GetByID(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("schema of tenant %d: %w", id, err))
				continue
			}
			if company == nil {
				report.OrphanSchemas = append(report.OrphanSchemas, id)
				telemetry.ReconcilerFindingsTotal.WithLabelValues(FindingOrphanSchema).Inc()
				slog.Warn("tenant schema has no company", "tenant_id", id)
			}
		}
		return nil
	})
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	return report, errs
}

// reconcileCompany deletes a company whose schema never materialised, or else
// compares the tenant's accounts with the company's lookup rows.
func (r *TenantReconciler) reconcileCompany(
	ctx context.Context,
	company *models.Company,
	companies *repositories.CompanyRepository,
	lookups *repositories.LookupRepository,
	cutoff time.Time,
	report *ReconcileReport,
) error {
	var users []repositories.UserEmail
	err := r.router.WithTenantSession(ctx, company.ID, func(sess *tenancy.Session) error {
		var err error
		users, err = repositories.NewUserRepository(sess).ListEmailsWithCreatedAt(ctx)
		return err
	})
	if errors.Is(err, tenancy.ErrTenantSchemaNotFound) {
		deleted, err := companies.Delete(ctx, company.ID)
		if err != nil {
			return err
		}
		if deleted {
			report.OrphanCompanies = append(report.OrphanCompanies, company.ID)
			telemetry.ReconcilerFindingsTotal.WithLabelValues(FindingOrphanCompany).Inc()
			slog.Warn("removed company without schema", "tenant_id", company.ID, "name", company.Name)
		}
		return nil
	}
	if err != nil {
		return err
	}

	entries, err := lookups.ListByCompany(ctx, company.ID)
	if err != nil {
		return err
	}

	accounts := make(map[string]bool, len(users))
	for _, user := range users {
		accounts[user.Email] = true
	}
	indexed := make(map[string]bool, len(entries))
	for _, entry := range entries {
		indexed[entry.Email] = true
		if accounts[entry.Email] || !entry.CreatedAt.Before(cutoff) {
			continue
		}
		deleted, err := lookups.DeleteIfOlder(ctx, entry.Email, cutoff)
		if err != nil {
			return err
		}
		if deleted {
			report.StaleLookups = append(report.StaleLookups, entry.Email)
			telemetry.ReconcilerFindingsTotal.WithLabelValues(FindingStaleLookup).Inc()
			slog.Warn("removed lookup without account", "tenant_id", company.ID, "email", entry.Email)
		}
	}

	// Accounts inside the grace period may still be waiting for their lookup.
	for _, user := range users {
		if indexed[user.Email] || !user.CreatedAt.Before(cutoff) {
			continue
		}
		report.UnindexedUsers = append(report.UnindexedUsers, UnindexedUser{TenantID: company.ID, Email: user.Email})
		telemetry.ReconcilerFindingsTotal.WithLabelValues(FindingUnindexedUser).Inc()
		slog.Error("account has no identity lookup",
			"severity", "CRITICAL", "tenant_id", company.ID, "email", user.Email)
	}
	return nil
}
