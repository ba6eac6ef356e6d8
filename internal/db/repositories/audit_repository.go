// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving audit log entries. The audit log is global; every query is scoped
// by company so a tenant only ever sees its own entries.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

const auditColumns = "id, company_id, user_email, action, resource_type, resource_id, status_code, ip_address, metadata, created_at"

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db Querier
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs
type AuditFilters struct {
	CompanyID    *int64
	UserEmail    *string
	Action       *string
	ResourceType *string
	StartDate    *time.Time
	EndDate      *time.Time
}

func (f AuditFilters) where() sq.And {
	where := sq.And{}
	if f.CompanyID != nil {
		where = append(where, sq.Eq{"company_id": *f.CompanyID})
	}
	if f.UserEmail != nil {
		where = append(where, sq.Eq{"user_email": *f.UserEmail})
	}
	if f.Action != nil {
		where = append(where, sq.Eq{"action": *f.Action})
	}
	if f.ResourceType != nil {
		where = append(where, sq.Eq{"resource_type": *f.ResourceType})
	}
	if f.StartDate != nil {
		where = append(where, sq.GtOrEq{"created_at": *f.StartDate})
	}
	if f.EndDate != nil {
		where = append(where, sq.LtOrEq{"created_at": *f.EndDate})
	}
	return where
}

// CreateAuditLog creates a new audit log entry
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	// Marshal metadata to JSONB
	var metadataJSON []byte
	if log.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (company_id, user_email, action, resource_type, resource_id, status_code, ip_address, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		log.CompanyID,
		log.UserEmail,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.StatusCode,
		log.IPAddress,
		metadataJSON,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

// ListAuditLogs retrieves audit logs with optional filters and pagination
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	count := psql.Select("COUNT(*)").From("audit_logs")
	list := psql.Select(auditColumns).From("audit_logs")
	if where := filters.where(); len(where) > 0 {
		count = count.Where(where)
		list = list.Where(where)
	}

	countQuery, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query, args, err := list.
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build audit query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// GetAuditLog retrieves a single audit log entry of a company by ID
func (r *AuditRepository) GetAuditLog(ctx context.Context, companyID, logID int64) (*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1 AND company_id = $2`

	log, err := scanAuditLog(r.db.QueryRowxContext(ctx, query, logID, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row scanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var metadataJSON []byte
	var statusCode sql.NullInt64

	err := row.Scan(
		&log.ID,
		&log.CompanyID,
		&log.UserEmail,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&statusCode,
		&log.IPAddress,
		&metadataJSON,
		&log.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	log.StatusCode = int(statusCode.Int64)

	// Unmarshal metadata from JSONB
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &log.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
	}

	return log, nil
}
