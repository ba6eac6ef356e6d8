package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *Provisioner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	namer := NewNamer("")
	p, err := NewProvisioner(db, namer)
	if err != nil {
		t.Fatalf("NewProvisioner() error = %v", err)
	}
	return NewLifecycle(NewRouter(db, namer, ""), p), p, mock
}

func companyRows(id int64, name string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).AddRow(id, name, now, now)
}

func expectInsertCompany(mock sqlmock.Sqlmock, name string, id int64) {
	now := time.Now()
	expectPin(mock, "public")
	mock.ExpectQuery(`INSERT INTO companies`).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))
	expectRelease(mock)
}

func expectDeleteCompany(mock sqlmock.Sqlmock, id int64, err error) {
	expectPin(mock, "public")
	exp := mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM companies WHERE id = $1`)).WithArgs(id)
	if err != nil {
		exp.WillReturnError(err)
	} else {
		exp.WillReturnResult(sqlmock.NewResult(0, 1))
	}
	expectRelease(mock)
}

func TestLifecycle_Create(t *testing.T) {
	l, p, mock := newTestLifecycle(t)

	expectInsertCompany(mock, "Acme", 42)
	expectCreateSchema(mock, 42, "tenant_42", len(p.template))
	expectSeed(mock, "tenant_42")

	before := telemetry.CounterValue(telemetry.TenantProvisioningTotal, prometheus.Labels{"outcome": "committed"})

	company, err := l.Create(context.Background(), CreateCompanyInput{Name: "  Acme ", SeedReferenceData: true})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if company.ID != 42 || company.Name != "Acme" {
		t.Errorf("Create() = %+v", company)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if got := telemetry.CounterValue(telemetry.TenantProvisioningTotal, prometheus.Labels{"outcome": "committed"}); got-before != 1 {
		t.Errorf("committed counter delta = %v, want 1", got-before)
	}
}

func TestLifecycle_Create_Validation(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	for _, name := range []string{"", "   ", strings.Repeat("x", 256)} {
		_, err := l.Create(context.Background(), CreateCompanyInput{Name: name})
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "name" {
			t.Errorf("Create(%q) error = %v, want name ValidationError", name, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("validation touched the database: %v", err)
	}
}

func TestLifecycle_Create_InsertFails(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectPin(mock, "public")
	mock.ExpectQuery(`INSERT INTO companies`).WillReturnError(errDB)
	expectRelease(mock)

	_, err := l.Create(context.Background(), CreateCompanyInput{Name: "Acme"})
	if !errors.Is(err, errDB) {
		t.Fatalf("Create() error = %v, want errDB", err)
	}
	if errors.Is(err, ErrTenantProvisioningFailed) {
		t.Error("insert failure reported as provisioning failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLifecycle_Create_SchemaFailsRemovesCompany(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectInsertCompany(mock, "Acme", 42)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS`).WillReturnError(errDB)
	mock.ExpectRollback()
	expectDeleteCompany(mock, 42, nil)

	_, err := l.Create(context.Background(), CreateCompanyInput{Name: "Acme"})
	if !errors.Is(err, ErrTenantProvisioningFailed) {
		t.Fatalf("Create() error = %v, want ErrTenantProvisioningFailed", err)
	}
	if !errors.Is(err, errDB) {
		t.Errorf("Create() error %v does not wrap the cause", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("company row not compensated: %v", err)
	}
}

func TestLifecycle_Create_CompensationFails(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectInsertCompany(mock, "Acme", 42)
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(errDB)
	mock.ExpectRollback()
	expectDeleteCompany(mock, 42, errors.New("connection lost"))

	_, err := l.Create(context.Background(), CreateCompanyInput{Name: "Acme"})
	if !errors.Is(err, ErrCriticalConsistencyFault) {
		t.Fatalf("Create() error = %v, want critical fault", err)
	}
	var fault *CriticalConsistencyFault
	if !errors.As(err, &fault) || fault.Compensation != "delete_company" || fault.Step != "create_schema" {
		t.Errorf("fault = %+v", fault)
	}
}

func TestLifecycle_Create_SeedFailureTolerated(t *testing.T) {
	l, p, mock := newTestLifecycle(t)

	expectInsertCompany(mock, "Acme", 5)
	expectCreateSchema(mock, 5, "tenant_5", len(p.template))
	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL search_path`).WillReturnError(errDB)
	mock.ExpectRollback()

	company, err := l.Create(context.Background(), CreateCompanyInput{Name: "Acme", SeedReferenceData: true})
	if err != nil {
		t.Fatalf("Create() error = %v, want seed failure swallowed", err)
	}
	if company.ID != 5 {
		t.Errorf("company ID = %d", company.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLifecycle_Create_StrictSeedRollsBack(t *testing.T) {
	l, p, mock := newTestLifecycle(t)

	expectInsertCompany(mock, "Acme", 5)
	expectCreateSchema(mock, 5, "tenant_5", len(p.template))
	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL search_path`).WillReturnError(errDB)
	mock.ExpectRollback()
	mock.ExpectExec(regexp.QuoteMeta(`DROP SCHEMA IF EXISTS "tenant_5" CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectDeleteCompany(mock, 5, nil)

	_, err := l.Create(context.Background(), CreateCompanyInput{Name: "Acme", SeedReferenceData: true, StrictSeed: true})
	if !errors.Is(err, ErrTenantProvisioningFailed) {
		t.Fatalf("Create() error = %v, want ErrTenantProvisioningFailed", err)
	}
	var seedErr *SeedError
	if !errors.As(err, &seedErr) {
		t.Errorf("Create() error %v does not carry the SeedError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func expectDeleteTx(mock sqlmock.Sqlmock) {
	expectPin(mock, "public")
	mock.ExpectBegin()
}

func TestLifecycle_Delete(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectDeleteTx(mock)
	mock.ExpectQuery(`FROM companies WHERE id = \$1 FOR UPDATE`).WithArgs(int64(42)).WillReturnRows(companyRows(42, "Acme"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM user_company_lookup WHERE company_id = $1`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP SCHEMA IF EXISTS "tenant_42" CASCADE`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM companies WHERE id = $1`)).WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectRelease(mock)

	if err := l.Delete(context.Background(), 42); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLifecycle_Delete_NotEmpty(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectDeleteTx(mock)
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(companyRows(42, "Acme"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM user_company_lookup`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()
	expectRelease(mock)

	err := l.Delete(context.Background(), 42)
	if !errors.Is(err, ErrTenantNotEmpty) {
		t.Fatalf("Delete() error = %v, want ErrTenantNotEmpty", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("schema dropped despite remaining users: %v", err)
	}
}

func TestLifecycle_Delete_NotFound(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectDeleteTx(mock)
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	expectRelease(mock)

	if err := l.Delete(context.Background(), 8); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("Delete() error = %v, want ErrTenantNotFound", err)
	}
}

func TestLifecycle_Delete_InvalidID(t *testing.T) {
	l, _, _ := newTestLifecycle(t)
	if err := l.Delete(context.Background(), 0); !errors.Is(err, ErrInvalidTenantIdentifier) {
		t.Fatalf("Delete(0) error = %v", err)
	}
}

func TestLifecycle_GetListRename(t *testing.T) {
	l, _, mock := newTestLifecycle(t)

	expectPin(mock, "public")
	mock.ExpectQuery(`FROM companies WHERE id = \$1`).WithArgs(int64(3)).WillReturnError(sql.ErrNoRows)
	expectRelease(mock)

	if _, err := l.Get(context.Background(), 3); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("Get() error = %v, want ErrTenantNotFound", err)
	}

	expectPin(mock, "public")
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM companies`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`FROM companies ORDER BY id LIMIT \$1 OFFSET \$2`).
		WithArgs(2, 2).
		WillReturnRows(companyRows(3, "Globex"))
	expectRelease(mock)

	companies, total, err := l.List(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(companies) != 1 || companies[0].Name != "Globex" {
		t.Errorf("List() = %v, %d", companies, total)
	}

	expectPin(mock, "public")
	mock.ExpectQuery(`UPDATE companies`).WithArgs(int64(3), "Initech").WillReturnRows(companyRows(3, "Initech"))
	expectRelease(mock)

	company, err := l.Rename(context.Background(), 3, " Initech ")
	if err != nil || company.Name != "Initech" {
		t.Errorf("Rename() = (%+v, %v)", company, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
