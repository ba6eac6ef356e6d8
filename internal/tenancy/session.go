// session.go hands out database sessions pinned to exactly one schema. The
// search_path is set once when the connection is taken from the pool and reset
// when it is returned; nothing else may change it in between.
package tenancy

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	releaseTimeout = 5 * time.Second
	acquireTimeout = 10 * time.Second
)

// Guard checks the physical schema catalog. Schema existence is the authority
// for tenant validity.
type Guard struct {
	db    *sqlx.DB
	namer Namer
}

// NewGuard creates a Guard over the pool.
func NewGuard(db *sqlx.DB, namer Namer) *Guard {
	return &Guard{db: db, namer: namer}
}

// Exists reports whether the named schema exists.
func (g *Guard) Exists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := g.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, schema,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schema %s: %w", schema, err)
	}
	return exists, nil
}

// TenantExists reports whether the tenant's schema has been provisioned.
func (g *Guard) TenantExists(ctx context.Context, tenantID int64) (bool, error) {
	schema, err := g.namer.SchemaName(tenantID)
	if err != nil {
		return false, err
	}
	return g.Exists(ctx, schema)
}

// TenantSchemas returns the tenant IDs of every schema carrying the tenant
// prefix, whether or not a company row exists for it.
func (g *Guard) TenantSchemas(ctx context.Context) ([]int64, error) {
	names := make([]string, 0)
	err := sqlx.SelectContext(ctx, g.db, &names,
		`SELECT nspname FROM pg_namespace WHERE left(nspname, length($1)) = $1 ORDER BY nspname`,
		g.namer.Prefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant schemas: %w", err)
	}

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := g.namer.TenantID(name); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Session is a pooled connection whose search_path points at one schema for
// its whole lifetime. It satisfies repositories.Querier.
type Session struct {
	*sqlx.Conn
	schema   string
	tenantID int64

	released bool
}

// Schema returns the schema the session is pinned to.
func (s *Session) Schema() string { return s.schema }

// TenantID returns the tenant the session belongs to, or 0 for the global session.
func (s *Session) TenantID() int64 { return s.tenantID }

// InTx runs fn in a transaction on the pinned connection.
func (s *Session) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction on %s: %w", s.schema, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("transaction rollback failed", "schema", s.schema, "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction on %s: %w", s.schema, err)
	}
	return nil
}

// Release resets the search_path and returns the connection to the pool. A
// connection that cannot be reset is discarded instead. Safe to call twice.
func (s *Session) Release() error {
	if s.released {
		return nil
	}
	s.released = true

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if _, err := s.Conn.ExecContext(ctx, `RESET search_path`); err != nil {
		discard(s.Conn)
		return fmt.Errorf("failed to reset search_path on %s: %w", s.schema, err)
	}
	return s.Conn.Close()
}

// discard closes the underlying driver connection so it never re-enters the pool.
func discard(conn *sqlx.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

// Router resolves tenants to sessions.
type Router struct {
	db             *sqlx.DB
	namer          Namer
	guard          *Guard
	globalSchema   string
	acquireTimeout time.Duration
}

// NewRouter creates a Router. globalSchema is the namespace holding companies
// and the identity lookup.
func NewRouter(db *sqlx.DB, namer Namer, globalSchema string) *Router {
	if globalSchema == "" {
		globalSchema = "public"
	}
	return &Router{
		db:             db,
		namer:          namer,
		guard:          NewGuard(db, namer),
		globalSchema:   globalSchema,
		acquireTimeout: acquireTimeout,
	}
}

// Namer returns the router's schema namer.
func (r *Router) Namer() Namer { return r.namer }

// Guard returns the router's existence guard.
func (r *Router) Guard() *Guard { return r.guard }

// GlobalSchema returns the name of the global namespace.
func (r *Router) GlobalSchema() string { return r.globalSchema }

// DB returns the underlying pool.
func (r *Router) DB() *sqlx.DB { return r.db }

// TenantSession returns a session pinned to the tenant's schema. It fails with
// ErrTenantSchemaNotFound when the schema has not been provisioned.
func (r *Router) TenantSession(ctx context.Context, tenantID int64) (*Session, error) {
	schema, err := r.namer.SchemaName(tenantID)
	if err != nil {
		return nil, err
	}
	exists, err := r.guard.Exists(ctx, schema)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantSchemaNotFound, schema)
	}
	return r.open(ctx, schema, tenantID)
}

// GlobalSession returns a session pinned to the global namespace.
func (r *Router) GlobalSession(ctx context.Context) (*Session, error) {
	return r.open(ctx, r.globalSchema, 0)
}

// open waits at most acquireTimeout for a pooled connection, so an exhausted
// pool surfaces as an error instead of blocking the caller indefinitely.
func (r *Router) open(ctx context.Context, schema string, tenantID int64) (*Session, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	conn, err := r.db.Connx(acquireCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx,
		`SELECT set_config('search_path', $1, false)`, pq.QuoteIdentifier(schema),
	); err != nil {
		discard(conn)
		return nil, fmt.Errorf("failed to pin search_path to %s: %w", schema, err)
	}
	return &Session{Conn: conn, schema: schema, tenantID: tenantID}, nil
}

// WithTenantSession acquires a tenant session, runs fn, and releases it. When
// ctx carries a Scope of this router for the same tenant, the scope's session
// is used instead and stays open for the scope's owner.
func (r *Router) WithTenantSession(ctx context.Context, tenantID int64, fn func(*Session) error) error {
	if scope := ScopeFromContext(ctx); scope != nil && scope.router == r && scope.tenantID == tenantID {
		sess, err := scope.Session(ctx)
		if err != nil {
			return err
		}
		return fn(sess)
	}

	sess, err := r.TenantSession(ctx, tenantID)
	if err != nil {
		return err
	}
	defer releaseLogged(sess)
	return fn(sess)
}

// WithGlobalSession acquires the global session, runs fn, and releases it.
func (r *Router) WithGlobalSession(ctx context.Context, fn func(*Session) error) error {
	sess, err := r.GlobalSession(ctx)
	if err != nil {
		return err
	}
	defer releaseLogged(sess)
	return fn(sess)
}

func releaseLogged(sess *Session) {
	if err := sess.Release(); err != nil {
		slog.Warn("session release failed", "schema", sess.Schema(), "error", err)
	}
}

type scopeContextKey struct{}

// ContextWithScope returns a copy of ctx carrying scope. Tenant work for the
// scope's tenant done under the returned context shares the scope's session,
// so a request never holds more than one connection per tenant.
func ContextWithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext returns the scope stored by ContextWithScope, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(*Scope)
	return scope
}

// Scope is a lazily acquired, request-scoped handle to one tenant's session.
// The session is opened on first use and reused until Release.
type Scope struct {
	router   *Router
	tenantID int64

	mu      sync.Mutex
	session *Session
}

// Scope returns a lazy handle for tenantID. Nothing is acquired yet.
func (r *Router) Scope(tenantID int64) *Scope {
	return &Scope{router: r, tenantID: tenantID}
}

// TenantID returns the tenant the scope is bound to.
func (s *Scope) TenantID() int64 { return s.tenantID }

// Session returns the scope's session, acquiring it on the first call.
func (s *Scope) Session(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	sess, err := s.router.TenantSession(ctx, s.tenantID)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

// Acquired reports whether the session has been opened.
func (s *Scope) Acquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Release releases the session if one was acquired.
func (s *Scope) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Release()
	s.session = nil
	return err
}
