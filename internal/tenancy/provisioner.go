package tenancy

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed template/*.sql
var templateFS embed.FS

// TemplateFile is one SQL file of the tenant schema template.
type TemplateFile struct {
	Name string
	SQL  string
}

// Template returns the tenant schema template files in the order they run.
func Template() ([]TemplateFile, error) {
	names, err := fs.Glob(templateFS, "template/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list schema template: %w", err)
	}
	sort.Strings(names)

	files := make([]TemplateFile, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(templateFS, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema template %s: %w", name, err)
		}
		files = append(files, TemplateFile{Name: name, SQL: string(body)})
	}
	return files, nil
}

// Provisioner creates, seeds, and drops tenant schemas.
type Provisioner struct {
	db       *sqlx.DB
	namer    Namer
	template []TemplateFile
}

// NewProvisioner creates a Provisioner. It fails only if the embedded template
// cannot be read.
func NewProvisioner(db *sqlx.DB, namer Namer) (*Provisioner, error) {
	files, err := Template()
	if err != nil {
		return nil, err
	}
	return &Provisioner{db: db, namer: namer, template: files}, nil
}

// Provision creates the tenant's schema and, when seed is set, inserts the
// reference data. A seeding failure is returned as *SeedError after the schema
// has been committed.
func (p *Provisioner) Provision(ctx context.Context, tenantID int64, seed bool) error {
	if err := p.CreateSchema(ctx, tenantID); err != nil {
		return err
	}
	if !seed {
		return nil
	}
	return p.SeedReferenceData(ctx, tenantID)
}

// CreateSchema creates the tenant's schema and every template table in one
// transaction. It is idempotent; concurrent calls for the same tenant are
// serialised by an advisory lock.
func (p *Provisioner) CreateSchema(ctx context.Context, tenantID int64) error {
	schema, err := p.namer.SchemaName(tenantID)
	if err != nil {
		return err
	}
	quoted := pq.QuoteIdentifier(schema)

	err = p.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, tenantID); err != nil {
			return fmt.Errorf("failed to lock tenant %d: %w", tenantID, err)
		}
		if _, err := tx.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+quoted); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
		if _, err := tx.ExecContext(ctx, `SET LOCAL search_path TO `+quoted); err != nil {
			return fmt.Errorf("failed to set search_path to %s: %w", schema, err)
		}
		for _, f := range p.template {
			if _, err := tx.ExecContext(ctx, f.SQL); err != nil {
				return fmt.Errorf("failed to apply %s to %s: %w", f.Name, schema, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("tenant schema created", "tenant_id", tenantID, "schema", schema)
	return nil
}

// SeedReferenceData inserts the fixed reference catalog into the tenant's
// schema. Existing rows are left alone. Any failure is returned as *SeedError.
func (p *Provisioner) SeedReferenceData(ctx context.Context, tenantID int64) error {
	schema, err := p.namer.SchemaName(tenantID)
	if err != nil {
		return err
	}

	err = p.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL search_path TO `+pq.QuoteIdentifier(schema)); err != nil {
			return fmt.Errorf("failed to set search_path to %s: %w", schema, err)
		}

		cloud := psql.Insert("cloud_providers").Columns("name")
		for _, name := range cloudProviderSeeds {
			cloud = cloud.Values(name)
		}
		registry := psql.Insert("registry_providers").Columns("name")
		for _, name := range registryProviderSeeds {
			registry = registry.Values(name)
		}
		services := psql.Insert("service_types").Columns("name", "description", "is_managed")
		for _, st := range serviceTypeSeeds {
			services = services.Values(st.Name, st.Description, st.IsManaged)
		}

		for _, insert := range []sq.InsertBuilder{cloud, registry, services} {
			query, args, err := insert.Suffix("ON CONFLICT (name) DO NOTHING").ToSql()
			if err != nil {
				return fmt.Errorf("failed to build seed insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert reference data: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return &SeedError{TenantID: tenantID, Err: err}
	}

	slog.Info("tenant reference data seeded", "tenant_id", tenantID, "schema", schema)
	return nil
}

// DropSchema drops the tenant's schema and everything in it. Dropping a schema
// that does not exist succeeds.
func (p *Provisioner) DropSchema(ctx context.Context, tenantID int64) error {
	return p.dropSchema(ctx, p.db, tenantID)
}

// dropSchema runs the drop on q so it can join a caller's transaction.
func (p *Provisioner) dropSchema(ctx context.Context, q sqlx.ExecerContext, tenantID int64) error {
	schema, err := p.namer.SchemaName(tenantID)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DROP SCHEMA IF EXISTS `+pq.QuoteIdentifier(schema)+` CASCADE`); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", schema, err)
	}
	slog.Info("tenant schema dropped", "tenant_id", tenantID, "schema", schema)
	return nil
}

func (p *Provisioner) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// psql builds queries with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
