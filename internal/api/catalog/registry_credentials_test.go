package catalog

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/resource-catalog/resource-catalog/internal/credcheck"
)

// prefixSealer tags plaintext with its binding so tests can assert on both.
type prefixSealer struct{}

func (prefixSealer) Seal(plaintext, binding string) (string, error) {
	return "sealed(" + binding + ")" + plaintext, nil
}

func (prefixSealer) Open(ciphertext, binding string) (string, error) {
	rest, ok := strings.CutPrefix(ciphertext, "sealed("+binding+")")
	if !ok {
		return "", errors.New("binding mismatch")
	}
	return rest, nil
}

type fakeVerifier struct {
	got    credcheck.Credential
	result *credcheck.Result
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, cred credcheck.Credential) (*credcheck.Result, error) {
	f.got = cred
	return f.result, f.err
}

var credentialCols = []string{"id", "name", "access_key", "secret_key", "region", "registry_provider_id", "created_at", "updated_at"}

func mountCredentials(r *gin.Engine, h *RegistryCredentialHandlers) {
	r.GET("/registry-credentials/:id", h.Get())
	r.POST("/registry-credentials", h.Create())
	r.PUT("/registry-credentials/:id", h.Update())
	r.POST("/registry-credentials/:id/verify", h.Verify())
}

func TestRegistryCredentialHandlers_CreateSealsSecret(t *testing.T) {
	r, mock := newCatalogEngine(t)
	mountCredentials(r, NewRegistryCredentialHandlers(prefixSealer{}, &fakeVerifier{}))
	now := time.Now()

	expectSession(mock)
	mock.ExpectQuery(`INSERT INTO registry_credentials`).
		WithArgs("ecr-prod", "AKIA123", "sealed(tenant:7)s3cr3t", "eu-west-1", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))
	expectRelease(mock)

	w := do(r, http.MethodPost, "/registry-credentials",
		`{"name":"ecr-prod","access_key":"AKIA123","secret_key":"s3cr3t","region":"eu-west-1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "s3cr3t") {
		t.Errorf("response leaks the secret: %s", w.Body.String())
	}
	checkMock(t, mock)
}

func TestRegistryCredentialHandlers_NoSealer(t *testing.T) {
	r, mock := newCatalogEngine(t)
	mountCredentials(r, NewRegistryCredentialHandlers(nil, &fakeVerifier{}))

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/registry-credentials", `{"name":"x","secret_key":"y"}`},
		{http.MethodPut, "/registry-credentials/1", `{"name":"x","secret_key":"y"}`},
		{http.MethodPost, "/registry-credentials/1/verify", ""},
	} {
		w := do(r, tc.method, tc.path, tc.body)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", tc.method, tc.path, w.Code)
		}
	}
	checkMock(t, mock)
}

func TestRegistryCredentialHandlers_UpdateKeepsSecret(t *testing.T) {
	r, mock := newCatalogEngine(t)
	mountCredentials(r, NewRegistryCredentialHandlers(prefixSealer{}, &fakeVerifier{}))
	now := time.Now()

	expectSession(mock)
	mock.ExpectQuery(`FROM registry_credentials WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(credentialCols).
			AddRow(3, "old", "AKIA1", "sealed(tenant:7)keep-me", "us-east-1", nil, now, now))
	mock.ExpectQuery(`UPDATE registry_credentials`).
		WithArgs(int64(3), "renamed", "AKIA2", "sealed(tenant:7)keep-me", "us-east-1", nil).
		WillReturnRows(sqlmock.NewRows(credentialCols).
			AddRow(3, "renamed", "AKIA2", "sealed(tenant:7)keep-me", "us-east-1", nil, now, now))
	expectRelease(mock)

	w := do(r, http.MethodPut, "/registry-credentials/3", `{"name":"renamed","access_key":"AKIA2","region":"us-east-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	checkMock(t, mock)
}

func TestRegistryCredentialHandlers_Verify(t *testing.T) {
	providerID := int64(2)
	now := time.Now()

	expectCredential := func(mock sqlmock.Sqlmock, secret string) {
		expectSession(mock)
		mock.ExpectQuery(`FROM registry_credentials WHERE id = \$1`).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(credentialCols).
				AddRow(5, "ecr", "AKIA5", secret, "eu-central-1", providerID, now, now))
		mock.ExpectQuery(`FROM registry_providers WHERE id = \$1`).
			WithArgs(providerID).
			WillReturnRows(sqlmock.NewRows(namedCols).AddRow(providerID, "AWS ECR", now, now))
	}

	t.Run("decrypts and verifies", func(t *testing.T) {
		r, mock := newCatalogEngine(t)
		verifier := &fakeVerifier{result: &credcheck.Result{Valid: true}}
		mountCredentials(r, NewRegistryCredentialHandlers(prefixSealer{}, verifier))
		expectCredential(mock, "sealed(tenant:7)plain")
		expectRelease(mock)

		w := do(r, http.MethodPost, "/registry-credentials/5/verify", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		want := credcheck.Credential{Provider: "AWS ECR", AccessKey: "AKIA5", SecretKey: "plain", Region: "eu-central-1"}
		if verifier.got != want {
			t.Errorf("verifier got %+v, want %+v", verifier.got, want)
		}
		checkMock(t, mock)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		r, mock := newCatalogEngine(t)
		verifier := &fakeVerifier{err: credcheck.ErrUnsupportedProvider}
		mountCredentials(r, NewRegistryCredentialHandlers(prefixSealer{}, verifier))
		expectCredential(mock, "sealed(tenant:7)plain")
		expectRelease(mock)

		w := do(r, http.MethodPost, "/registry-credentials/5/verify", "")
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", w.Code)
		}
		checkMock(t, mock)
	})

	t.Run("ciphertext of another tenant", func(t *testing.T) {
		r, mock := newCatalogEngine(t)
		verifier := &fakeVerifier{}
		mountCredentials(r, NewRegistryCredentialHandlers(prefixSealer{}, verifier))
		expectCredential(mock, "sealed(tenant:8)plain")
		expectRelease(mock)

		w := do(r, http.MethodPost, "/registry-credentials/5/verify", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		if verifier.got != (credcheck.Credential{}) {
			t.Error("verifier must not run when the secret cannot be opened")
		}
		checkMock(t, mock)
	})

	t.Run("provider error", func(t *testing.T) {
		r, mock := newCatalogEngine(t)
		mountCredentials(r, NewRegistryCredentialHandlers(prefixSealer{}, &fakeVerifier{err: errors.New("sts unreachable")}))
		expectCredential(mock, "sealed(tenant:7)plain")
		expectRelease(mock)

		w := do(r, http.MethodPost, "/registry-credentials/5/verify", "")
		if w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", w.Code)
		}
		checkMock(t, mock)
	})
}

func TestRegistryHandlers_PrivateNeedsCredentials(t *testing.T) {
	r, mock := newCatalogEngine(t)
	r.POST("/registries", NewRegistryHandlers().Create())

	w := do(r, http.MethodPost, "/registries", `{"name":"internal","url":"https://registry.internal","is_private":true}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	checkMock(t, mock)
}

func TestContainerImageHandlers_Create(t *testing.T) {
	r, mock := newCatalogEngine(t)
	r.POST("/container-images", NewContainerImageHandlers().Create())
	now := time.Now()

	expectSession(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO container_images (name, tag, registry_id, pushed_at)`)).
		WithArgs("api", "1.4.0", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pushed_at", "created_at", "updated_at"}).AddRow(9, now, now, now))
	expectRelease(mock)

	w := do(r, http.MethodPost, "/container-images", `{"name":"api","tag":"1.4.0"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/container-images", `{"name":"api","tag":"bad/tag"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a tag with a slash", w.Code)
	}
	checkMock(t, mock)
}
