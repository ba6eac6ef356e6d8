package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
)

var userCols = []string{
	"id", "name", "email", "phone", "password_hash", "role", "is_active", "created_at", "updated_at",
}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(int64(1), "Alice", "alice@acme.io", nil, "$2a$12$hash", "admin", true, time.Now(), time.Now())
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewUserRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestUserCreate_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Alice", "alice@acme.io", nil, "$2a$12$hash", models.RoleAdmin, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	user := &models.User{
		Name:         "Alice",
		Email:        "alice@acme.io",
		PasswordHash: "$2a$12$hash",
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("ID = %d, want 1", user.ID)
	}
}

func TestUserCreate_Duplicate(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Email: "alice@acme.io", Role: models.RoleUser})
	if !IsUniqueViolation(err) {
		t.Fatalf("err = %v, want unique violation", err)
	}
}

// ---------------------------------------------------------------------------
// GetByID / GetByEmail
// ---------------------------------------------------------------------------

func TestUserGetByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sampleUserRow())

	user, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if !user.IsAdmin() {
		t.Errorf("Role = %s, want admin", user.Role)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := repo.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestUserGetByEmail_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users WHERE email").
		WithArgs("alice@acme.io").
		WillReturnRows(sampleUserRow())

	user, err := repo.GetByEmail(context.Background(), "alice@acme.io")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.PasswordHash != "$2a$12$hash" {
		t.Fatalf("user = %+v, want password hash populated", user)
	}
}

func TestUserGetByEmail_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT.*FROM users").WillReturnError(errDB)

	if _, err := repo.GetByEmail(context.Background(), "alice@acme.io"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Update / Delete
// ---------------------------------------------------------------------------

func TestUserUpdate_DoesNotTouchEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("UPDATE users\\s+SET name = \\$2, phone = \\$3, password_hash = \\$4, role = \\$5, is_active = \\$6").
		WithArgs(int64(1), "Alice B", nil, "h", models.RoleUser, false).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	user := &models.User{ID: 1, Name: "Alice B", Email: "alice@acme.io", PasswordHash: "h", Role: models.RoleUser}
	if err := repo.Update(context.Background(), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserDelete(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM users WHERE id").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.Delete(context.Background(), 1)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v; want true, nil", deleted, err)
	}
}

func TestUserDeleteByEmail_Error(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("DELETE FROM users WHERE email").WillReturnError(errDB)

	if _, err := repo.DeleteByEmail(context.Background(), "alice@acme.io"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// List / ListEmails
// ---------------------------------------------------------------------------

func TestUserList(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM users ORDER BY id LIMIT").
		WithArgs(10, 0).
		WillReturnRows(sampleUserRow())

	users, total, err := repo.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(users) != 1 {
		t.Errorf("got %d users (total %d), want 1", len(users), total)
	}
}

func TestUserListEmails(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT email FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a@acme.io").AddRow("b@acme.io"))

	emails, err := repo.ListEmails(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emails) != 2 || emails[0] != "a@acme.io" {
		t.Errorf("emails = %v", emails)
	}
}

func TestUserListEmailsWithCreatedAt(t *testing.T) {
	repo, mock := newUserRepo(t)
	created := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT email, created_at FROM users ORDER BY email").
		WillReturnRows(sqlmock.NewRows([]string{"email", "created_at"}).AddRow("a@acme.io", created))

	rows, err := repo.ListEmailsWithCreatedAt(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Email != "a@acme.io" || !rows[0].CreatedAt.Equal(created) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestUserListEmailsWithCreatedAt_Error(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT email, created_at FROM users").WillReturnError(errDB)

	if _, err := repo.ListEmailsWithCreatedAt(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
