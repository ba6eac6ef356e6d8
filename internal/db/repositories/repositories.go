// Package repositories implements the data access layer for the resource catalog.
// Each repository type encapsulates the queries for one entity. Repositories are
// bound to a Querier, so the same type serves the pool, a transaction, or a
// session pinned to a tenant schema; none of them know which schema they run in.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Querier is satisfied by *sqlx.DB, *sqlx.Tx and *sqlx.Conn.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// PostgreSQL error codes inspected by callers.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgUndefinedTable      = "42P01"
	pgInvalidSchemaName   = "3F000"
)

// psql builds queries with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}

// IsUndefinedObject reports whether err says the table or schema a statement
// ran against does not exist, as after a tenant schema has been dropped.
func IsUndefinedObject(err error) bool {
	switch pgCode(err) {
	case pgUndefinedTable, pgInvalidSchemaName:
		return true
	}
	return false
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func sqlxSelect(ctx context.Context, q Querier, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

func sqlxGet(ctx context.Context, q Querier, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// execAffected runs a statement and reports whether it touched any row.
func execAffected(ctx context.Context, q Querier, query string, args ...any) (bool, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
