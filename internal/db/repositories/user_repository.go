// user_repository.go implements UserRepository over the users table of a tenant
// schema. The repository is bound to a session pinned to that schema and never
// names the schema itself.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

// UserEmail is a user's email and the time the row was written.
type UserEmail struct {
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

const userColumns = `id, name, email, phone, password_hash, role, is_active, created_at, updated_at`

// UserRepository handles tenant user database operations
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user and fills in its generated ID and timestamps
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, phone, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.Name,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.Role,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	found, err := sqlxGet(ctx, r.db, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	found, err := sqlxGet(ctx, r.db, user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return user, nil
}

// Update writes the mutable fields of a user. The email is never updated.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $2, phone = $3, password_hash = $4, role = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Name,
		user.Phone,
		user.PasswordHash,
		user.Role,
		user.IsActive,
	).Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// Delete removes a user and reports whether a row existed
func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return deleted, nil
}

// DeleteByEmail removes a user by email. Used to compensate a failed registration.
func (r *UserRepository) DeleteByEmail(ctx context.Context, email string) (bool, error) {
	deleted, err := execAffected(ctx, r.db, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return deleted, nil
}

// List retrieves a page of users ordered by ID, along with the total count
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	users := make([]*models.User, 0)
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	if err := sqlxSelect(ctx, r.db, &users, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

// ListEmails returns every email registered in the schema
func (r *UserRepository) ListEmails(ctx context.Context) ([]string, error) {
	emails := make([]string, 0)
	if err := sqlxSelect(ctx, r.db, &emails, `SELECT email FROM users ORDER BY email`); err != nil {
		return nil, fmt.Errorf("failed to list user emails: %w", err)
	}
	return emails, nil
}

// ListEmailsWithCreatedAt returns every email in the schema with its creation time
func (r *UserRepository) ListEmailsWithCreatedAt(ctx context.Context) ([]UserEmail, error) {
	rows := make([]UserEmail, 0)
	if err := sqlxSelect(ctx, r.db, &rows, `SELECT email, created_at FROM users ORDER BY email`); err != nil {
		return nil, fmt.Errorf("failed to list user emails: %w", err)
	}
	return rows, nil
}
