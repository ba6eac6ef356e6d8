package tenancy

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/resource-catalog/resource-catalog/internal/auth"
)

type fakeHasher struct {
	verifies int
}

func (h *fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (h *fakeHasher) Verify(password, hash string) bool {
	h.verifies++
	return hash == "hashed:"+password
}

type fakeIssuer struct {
	claims auth.Claims
}

func (i *fakeIssuer) Issue(claims auth.Claims, ttl time.Duration) (string, time.Time, error) {
	i.claims = claims
	return "token-for-" + claims.Email, time.Now().Add(time.Hour), nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeHasher, *fakeIssuer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	hasher, issuer := &fakeHasher{}, &fakeIssuer{}
	c, err := NewCoordinator(NewRouter(db, NewNamer(""), ""), hasher, issuer)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	return c, hasher, issuer, mock
}

var (
	lookupCols = []string{"email", "company_id", "created_at", "updated_at"}
	userCols   = []string{"id", "name", "email", "phone", "password_hash", "role", "is_active", "created_at", "updated_at"}
)

func lookupRows(email string, companyID int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(lookupCols).AddRow(email, companyID, now, now)
}

func userRows(id int64, email, password, role string, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).AddRow(id, "Alice", email, nil, "hashed:"+password, role, active, now, now)
}

func expectLookupByEmail(mock sqlmock.Sqlmock, email string, rows *sqlmock.Rows) {
	expectPin(mock, "public")
	mock.ExpectQuery(`FROM user_company_lookup WHERE email = \$1`).WithArgs(email).WillReturnRows(rows)
	expectRelease(mock)
}

// expectRegisterUntilLookup expects the saga up to and including the tenant
// user insert for alice@acme.com in tenant 3. Each tenant step takes and
// returns its own session.
func expectRegisterUntilLookup(mock sqlmock.Sqlmock) {
	expectLookupByEmail(mock, "alice@acme.com", sqlmock.NewRows(lookupCols))
	expectTenantSession(mock, "tenant_3")
	expectTenantUniquenessAndInsert(mock, true)
}

// expectTenantUniquenessAndInsert expects the tenant email check and the user
// insert. With separate set, each runs on a session of its own.
func expectTenantUniquenessAndInsert(mock sqlmock.Sqlmock, separate bool) {
	now := time.Now()
	mock.ExpectQuery(`FROM users WHERE email = \$1`).WithArgs("alice@acme.com").WillReturnRows(sqlmock.NewRows(userCols))
	if separate {
		expectRelease(mock)
		expectTenantSession(mock, "tenant_3")
	}
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("Alice", "alice@acme.com", sqlmock.AnyArg(), "hashed:s3cret", "admin", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(11, now, now))
	if separate {
		expectRelease(mock)
	}
}

func expectLookupInsert(mock sqlmock.Sqlmock, err error) {
	expectPin(mock, "public")
	q := mock.ExpectQuery(`INSERT INTO user_company_lookup`).WithArgs("alice@acme.com", int64(3))
	if err != nil {
		q.WillReturnError(err)
	} else {
		q.WillReturnRows(lookupRows("alice@acme.com", 3))
	}
	expectRelease(mock)
}

func registerInput() RegisterInput {
	return RegisterInput{Name: "Alice", Email: "Alice@Acme.com", Password: "s3cret", Role: "admin"}
}

func TestCoordinator_Register(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectRegisterUntilLookup(mock)
	expectLookupInsert(mock, nil)

	user, err := c.Register(context.Background(), 3, registerInput())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID != 11 || user.Email != "alice@acme.com" || user.Role != "admin" || !user.IsActive {
		t.Errorf("Register() = %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_Register_Validation(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	tests := map[string]RegisterInput{
		"email":    {Name: "A", Email: "not-an-email", Password: "x"},
		"password": {Name: "A", Email: "a@b.co", Password: ""},
		"name":     {Name: "  ", Email: "a@b.co", Password: "x"},
		"role":     {Name: "A", Email: "a@b.co", Password: "x", Role: "owner"},
	}
	for field, in := range tests {
		_, err := c.Register(context.Background(), 3, in)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != field {
			t.Errorf("Register(bad %s) error = %v", field, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("validation touched the database: %v", err)
	}
}

func TestCoordinator_Register_GloballyTaken(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectLookupByEmail(mock, "alice@acme.com", lookupRows("alice@acme.com", 9))

	_, err := c.Register(context.Background(), 3, registerInput())
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("Register() error = %v, want ErrEmailAlreadyRegistered", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_Register_TenantMissing(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectLookupByEmail(mock, "alice@acme.com", sqlmock.NewRows(lookupCols))
	expectExists(mock, "tenant_3", false)

	_, err := c.Register(context.Background(), 3, registerInput())
	if !errors.Is(err, ErrTenantSchemaNotFound) {
		t.Fatalf("Register() error = %v, want ErrTenantSchemaNotFound", err)
	}
}

func TestCoordinator_Register_LookupFailuresCompensate(t *testing.T) {
	tests := []struct {
		name      string
		lookupErr error
		want      error
	}{
		{"duplicate email race", &pq.Error{Code: "23505"}, ErrEmailAlreadyRegistered},
		{"company deleted concurrently", &pq.Error{Code: "23503"}, ErrTenantNotFound},
		{"other failure", errDB, ErrLookupCreationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _, mock := newTestCoordinator(t)

			expectRegisterUntilLookup(mock)
			expectLookupInsert(mock, tt.lookupErr)
			expectTenantSession(mock, "tenant_3")
			mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
				WithArgs(int64(11)).
				WillReturnResult(sqlmock.NewResult(0, 1))
			expectRelease(mock)

			_, err := c.Register(context.Background(), 3, registerInput())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Register() error = %v, want %v", err, tt.want)
			}
			if errors.Is(err, ErrCriticalConsistencyFault) {
				t.Error("successful compensation reported as critical fault")
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("tenant user not compensated: %v", err)
			}
		})
	}
}

func TestCoordinator_Register_CompensationFails(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectRegisterUntilLookup(mock)
	expectLookupInsert(mock, &pq.Error{Code: "23505"})
	expectTenantSession(mock, "tenant_3")
	mock.ExpectExec(`DELETE FROM users WHERE id`).WillReturnError(errDB)
	expectRelease(mock)

	_, err := c.Register(context.Background(), 3, registerInput())
	var fault *CriticalConsistencyFault
	if !errors.As(err, &fault) {
		t.Fatalf("Register() error = %v, want *CriticalConsistencyFault", err)
	}
	if fault.Step != "write_lookup" || fault.Compensation != "delete_tenant_user" {
		t.Errorf("fault = %+v", fault)
	}
	if !errors.Is(fault.Cause, ErrEmailAlreadyRegistered) {
		t.Errorf("fault cause = %v", fault.Cause)
	}
}

func TestCoordinator_Register_SchemaDroppedBeforeCompensation(t *testing.T) {
	tests := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
	}{
		{"schema gone before session", func(mock sqlmock.Sqlmock) {
			expectExists(mock, "tenant_3", false)
		}},
		{"relation gone under open session", func(mock sqlmock.Sqlmock) {
			expectTenantSession(mock, "tenant_3")
			mock.ExpectExec(`DELETE FROM users WHERE id`).WillReturnError(&pq.Error{Code: "42P01"})
			expectRelease(mock)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _, mock := newTestCoordinator(t)

			expectRegisterUntilLookup(mock)
			expectLookupInsert(mock, &pq.Error{Code: "23503"})
			tt.expect(mock)

			_, err := c.Register(context.Background(), 3, registerInput())
			if !errors.Is(err, ErrTenantNotFound) {
				t.Fatalf("Register() error = %v, want ErrTenantNotFound", err)
			}
			if errors.Is(err, ErrCriticalConsistencyFault) {
				t.Error("dropped tenant schema reported as critical fault")
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestCoordinator_Register_SingleConnectionPool(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)
	c.router.DB().SetMaxOpenConns(1)

	expectRegisterUntilLookup(mock)
	expectLookupInsert(mock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Register(ctx, 3, registerInput()); err != nil {
		t.Fatalf("Register() on a one-connection pool error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_Register_SharesRequestScope(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)
	c.router.DB().SetMaxOpenConns(2)

	expectTenantSession(mock, "tenant_3")
	expectLookupByEmail(mock, "alice@acme.com", sqlmock.NewRows(lookupCols))
	expectTenantUniquenessAndInsert(mock, false)
	expectLookupInsert(mock, nil)
	expectRelease(mock)

	scope := c.router.Scope(3)
	if _, err := scope.Session(context.Background()); err != nil {
		t.Fatalf("Session() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	user, err := c.Register(ContextWithScope(ctx, scope), 3, registerInput())
	if err != nil {
		t.Fatalf("Register() with the request scope held error = %v", err)
	}
	if user.ID != 11 {
		t.Errorf("user ID = %d, want 11", user.ID)
	}
	if err := scope.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_Register_SharedScopeCompensation(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)
	c.router.DB().SetMaxOpenConns(2)

	expectTenantSession(mock, "tenant_3")
	expectLookupByEmail(mock, "alice@acme.com", sqlmock.NewRows(lookupCols))
	expectTenantUniquenessAndInsert(mock, false)
	expectLookupInsert(mock, &pq.Error{Code: "23505"})
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelease(mock)

	scope := c.router.Scope(3)
	defer scope.Release()
	if _, err := scope.Session(context.Background()); err != nil {
		t.Fatalf("Session() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Register(ContextWithScope(ctx, scope), 3, registerInput())
	if !errors.Is(err, ErrEmailAlreadyRegistered) || errors.Is(err, ErrCriticalConsistencyFault) {
		t.Fatalf("Register() error = %v, want ErrEmailAlreadyRegistered", err)
	}
	if !scope.Acquired() {
		t.Error("compensation released the request's session")
	}
}

func TestCoordinator_Register_TenantUniqueViolation(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectLookupByEmail(mock, "alice@acme.com", sqlmock.NewRows(lookupCols))
	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE email`).WillReturnRows(sqlmock.NewRows(userCols))
	expectRelease(mock)
	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})
	expectRelease(mock)

	_, err := c.Register(context.Background(), 3, registerInput())
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("Register() error = %v, want ErrEmailAlreadyRegistered", err)
	}
}

func TestCoordinator_Login(t *testing.T) {
	c, _, issuer, mock := newTestCoordinator(t)

	expectLookupByEmail(mock, "alice@acme.com", lookupRows("alice@acme.com", 3))
	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE email = \$1`).WithArgs("alice@acme.com").
		WillReturnRows(userRows(11, "alice@acme.com", "s3cret", "admin", true))
	expectRelease(mock)

	res, err := c.Login(context.Background(), " ALICE@acme.com", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.AccessToken != "token-for-alice@acme.com" || res.TokenType != "bearer" || res.TenantID != 3 {
		t.Errorf("Login() = %+v", res)
	}
	got := issuer.claims
	if got.Email != "alice@acme.com" || got.TenantID != 3 || got.Role != "admin" || got.UserID != 11 {
		t.Errorf("issued claims = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_Login_UnknownEmail(t *testing.T) {
	c, hasher, _, mock := newTestCoordinator(t)

	expectLookupByEmail(mock, "ghost@acme.com", sqlmock.NewRows(lookupCols))

	_, err := c.Login(context.Background(), "ghost@acme.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	if hasher.verifies != 1 {
		t.Errorf("password comparisons = %d, want 1 dummy comparison", hasher.verifies)
	}
}

func TestCoordinator_Login_MissingSchema(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectLookupByEmail(mock, "alice@acme.com", lookupRows("alice@acme.com", 3))
	expectExists(mock, "tenant_3", false)

	if _, err := c.Login(context.Background(), "alice@acme.com", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestCoordinator_Login_PasswordAndActive(t *testing.T) {
	tests := []struct {
		name     string
		password string
		active   bool
		want     error
	}{
		{"wrong password", "nope", true, ErrInvalidCredentials},
		{"inactive with right password", "s3cret", false, ErrInactiveAccount},
		{"inactive with wrong password", "nope", false, ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _, mock := newTestCoordinator(t)

			expectLookupByEmail(mock, "alice@acme.com", lookupRows("alice@acme.com", 3))
			expectTenantSession(mock, "tenant_3")
			mock.ExpectQuery(`FROM users WHERE email`).
				WillReturnRows(userRows(11, "alice@acme.com", "s3cret", "user", tt.active))
			expectRelease(mock)

			_, err := c.Login(context.Background(), "alice@acme.com", tt.password)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Login() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCoordinator_UpdateUser(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs(int64(11)).
		WillReturnRows(userRows(11, "alice@acme.com", "old", "user", true))
	mock.ExpectQuery(`UPDATE users`).
		WithArgs(int64(11), "Alice Smith", sqlmock.AnyArg(), "hashed:new", "user", false).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	expectRelease(mock)

	name, password, active := "Alice Smith", "new", false
	user, err := c.UpdateUser(context.Background(), 3, 11, UpdateUserInput{Name: &name, Password: &password, IsActive: &active})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if user.Email != "alice@acme.com" || user.Name != "Alice Smith" || user.IsActive {
		t.Errorf("UpdateUser() = %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_UpdateUser_Errors(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE id`).WillReturnRows(sqlmock.NewRows(userCols))
	expectRelease(mock)

	if _, err := c.UpdateUser(context.Background(), 3, 99, UpdateUserInput{}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateUser(missing) error = %v, want ErrUserNotFound", err)
	}

	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE id`).WillReturnRows(userRows(11, "alice@acme.com", "x", "user", true))
	expectRelease(mock)

	role := "root"
	_, err := c.UpdateUser(context.Background(), 3, 11, UpdateUserInput{Role: &role})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "role" {
		t.Errorf("UpdateUser(bad role) error = %v", err)
	}
}

func TestCoordinator_DeleteUser(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs(int64(11)).
		WillReturnRows(userRows(11, "alice@acme.com", "x", "user", true))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)).WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelease(mock)
	expectPin(mock, "public")
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_company_lookup WHERE email = $1`)).
		WithArgs("alice@acme.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectRelease(mock)

	if err := c.DeleteUser(context.Background(), 3, 11); err != nil {
		t.Fatalf("DeleteUser() error = %v, want success with absent lookup", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCoordinator_DeleteUser_NotFound(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE id`).WillReturnRows(sqlmock.NewRows(userCols))
	expectRelease(mock)

	if err := c.DeleteUser(context.Background(), 3, 11); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("DeleteUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestCoordinator_DeleteUser_LookupFailureSurfaces(t *testing.T) {
	c, _, _, mock := newTestCoordinator(t)

	expectTenantSession(mock, "tenant_3")
	mock.ExpectQuery(`FROM users WHERE id`).WillReturnRows(userRows(11, "alice@acme.com", "x", "user", true))
	mock.ExpectExec(`DELETE FROM users`).WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelease(mock)
	expectPin(mock, "public")
	mock.ExpectExec(`DELETE FROM user_company_lookup`).WillReturnError(errDB)
	expectRelease(mock)

	err := c.DeleteUser(context.Background(), 3, 11)
	if !errors.Is(err, errDB) {
		t.Fatalf("DeleteUser() error = %v, want the lookup failure", err)
	}
	if !strings.Contains(err.Error(), "alice@acme.com") {
		t.Errorf("error %q does not name the email", err)
	}
}
