// coordinator.go keeps the global identity lookup and the tenant users tables
// in step. Every account exists twice: once as a row in its tenant's users
// table and once as an email→company entry in the global lookup. Registration
// writes the tenant row first and the lookup second, compensating the tenant
// row when the lookup cannot be written.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/resource-catalog/resource-catalog/internal/auth"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
	"github.com/resource-catalog/resource-catalog/internal/validation"
)

const maxUserNameLength = 255

// PasswordHasher hashes and checks passwords. Satisfied by *auth.CredentialVerifier.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer signs access tokens. Satisfied by *auth.TokenCodec.
type TokenIssuer interface {
	Issue(claims auth.Claims, ttl time.Duration) (string, time.Time, error)
}

// RegisterInput describes a new tenant user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
	Role     string // "admin" or "user"; empty means "user"
}

// UpdateUserInput carries the fields to change. Nil fields are left alone. The
// email cannot be changed.
type UpdateUserInput struct {
	Name     *string
	Phone    *string
	Password *string
	Role     *string
	IsActive *bool
}

// LoginResult is a successful login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	TenantID    int64
	User        *models.User
}

// Coordinator registers, authenticates, updates, and removes tenant users.
type Coordinator struct {
	router    *Router
	hasher    PasswordHasher
	issuer    TokenIssuer
	dummyHash string
}

// NewCoordinator creates a Coordinator. A throwaway hash is computed up front
// so logins for unknown emails cost the same bcrypt comparison as real ones.
func NewCoordinator(router *Router, hasher PasswordHasher, issuer TokenIssuer) (*Coordinator, error) {
	dummy, err := hasher.Hash("resource-catalog-timing-equaliser")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	return &Coordinator{router: router, hasher: hasher, issuer: issuer, dummyHash: dummy}, nil
}

// Register creates a user in tenantID's schema and its global lookup entry.
//
// The saga steps are validate, check_global_uniqueness, check_tenant_uniqueness,
// write_tenant_user (compensated by delete_tenant_user) and write_lookup. The
// lookup's primary key decides races between concurrent registrations of one
// email: the loser's lookup insert fails with a unique violation and its tenant
// row is removed again.
//
// No tenant connection is held while the global session is acquired. Each
// tenant step takes its own session, unless ctx carries the request's Scope
// for tenantID, in which case that session is shared.
func (c *Coordinator) Register(ctx context.Context, tenantID int64, in RegisterInput) (*models.User, error) {
	if _, err := c.router.Namer().SchemaName(tenantID); err != nil {
		return nil, err
	}

	var email string
	var role models.UserRole
	user := &models.User{}

	saga := NewSaga("register_user", "tenant_id", tenantID).
		Step("validate", func(ctx context.Context) error {
			var err error
			email, role, err = validateRegistration(&in)
			return err
		}).
		Step("check_global_uniqueness", func(ctx context.Context) error {
			return c.router.WithGlobalSession(ctx, func(s *Session) error {
				entry, err := repositories.NewLookupRepository(s).GetByEmail(ctx, email)
				if err != nil {
					return err
				}
				if entry != nil {
					return ErrEmailAlreadyRegistered
				}
				return nil
			})
		}).
		Step("check_tenant_uniqueness", func(ctx context.Context) error {
			return c.router.WithTenantSession(ctx, tenantID, func(s *Session) error {
				existing, err := repositories.NewUserRepository(s).GetByEmail(ctx, email)
				if err != nil {
					return err
				}
				if existing != nil {
					return ErrEmailAlreadyRegistered
				}
				return nil
			})
		}).
		StepWithCompensation("write_tenant_user", func(ctx context.Context) error {
			hash, err := c.hasher.Hash(in.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			*user = models.User{
				Name:         strings.TrimSpace(in.Name),
				Email:        email,
				Phone:        in.Phone,
				PasswordHash: hash,
				Role:         role,
				IsActive:     true,
			}
			return c.router.WithTenantSession(ctx, tenantID, func(s *Session) error {
				if err := repositories.NewUserRepository(s).Create(ctx, user); err != nil {
					if repositories.IsUniqueViolation(err) {
						return ErrEmailAlreadyRegistered
					}
					return err
				}
				return nil
			})
		}, "delete_tenant_user", func(ctx context.Context) error {
			var deleted bool
			err := c.router.WithTenantSession(ctx, tenantID, func(s *Session) error {
				var err error
				deleted, err = repositories.NewUserRepository(s).Delete(ctx, user.ID)
				return err
			})
			switch {
			case errors.Is(err, ErrTenantSchemaNotFound), repositories.IsUndefinedObject(err):
				// The company was deleted mid-registration and its schema took the row with it.
				slog.Warn("tenant schema gone during compensation", "tenant_id", tenantID, "email", email)
				return nil
			case err != nil:
				return err
			case !deleted:
				slog.Warn("tenant user already gone during compensation", "tenant_id", tenantID, "email", email)
			}
			return nil
		}).
		Step("write_lookup", func(ctx context.Context) error {
			return c.router.WithGlobalSession(ctx, func(s *Session) error {
				_, err := repositories.NewLookupRepository(s).Create(ctx, email, tenantID)
				switch {
				case err == nil:
					return nil
				case repositories.IsUniqueViolation(err):
					return ErrEmailAlreadyRegistered
				case repositories.IsForeignKeyViolation(err):
					return fmt.Errorf("%w: %d", ErrTenantNotFound, tenantID)
				default:
					return fmt.Errorf("%w: %w", ErrLookupCreationFailed, err)
				}
			})
		})

	state, err := saga.Run(ctx)
	if state != StateCommitted {
		return nil, err
	}

	slog.Info("user registered", "tenant_id", tenantID, "email", email, "role", role)
	return user, nil
}

// Login resolves the email's tenant through the global lookup, checks the
// password against the tenant's users table, and issues a token. Unknown
// emails, unknown tenants, and wrong passwords all report ErrInvalidCredentials.
// An inactive account is only reported once the password has matched.
func (c *Coordinator) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = validation.NormalizeEmail(email)

	result, outcome, err := c.login(ctx, email, password)
	telemetry.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) login(ctx context.Context, email, password string) (*LoginResult, string, error) {
	var entry *models.UserCompanyLookup
	err := c.router.WithGlobalSession(ctx, func(s *Session) error {
		var err error
		entry, err = repositories.NewLookupRepository(s).GetByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, "error", err
	}
	if entry == nil {
		c.hasher.Verify(password, c.dummyHash)
		return nil, "invalid_credentials", ErrInvalidCredentials
	}

	var user *models.User
	err = c.router.WithTenantSession(ctx, entry.CompanyID, func(s *Session) error {
		var err error
		user, err = repositories.NewUserRepository(s).GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, ErrTenantSchemaNotFound) {
		slog.Error("identity lookup points at a missing tenant schema",
			"email", email, "tenant_id", entry.CompanyID)
		c.hasher.Verify(password, c.dummyHash)
		return nil, "invalid_credentials", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "error", err
	}
	if user == nil {
		slog.Warn("identity lookup has no tenant user", "email", email, "tenant_id", entry.CompanyID)
		c.hasher.Verify(password, c.dummyHash)
		return nil, "invalid_credentials", ErrInvalidCredentials
	}

	if !c.hasher.Verify(password, user.PasswordHash) {
		return nil, "invalid_credentials", ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "inactive", ErrInactiveAccount
	}

	token, expiresAt, err := c.issuer.Issue(auth.Claims{
		Email:    user.Email,
		TenantID: entry.CompanyID,
		Role:     string(user.Role),
		UserID:   user.ID,
	}, 0)
	if err != nil {
		return nil, "error", err
	}

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		TenantID:    entry.CompanyID,
		User:        user,
	}, "success", nil
}

// GetUser returns a tenant user or ErrUserNotFound.
func (c *Coordinator) GetUser(ctx context.Context, tenantID, userID int64) (*models.User, error) {
	var user *models.User
	err := c.router.WithTenantSession(ctx, tenantID, func(s *Session) error {
		var err error
		user, err = repositories.NewUserRepository(s).GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return user, nil
}

// UpdateUser changes the mutable fields of a tenant user. The email and with
// it the lookup entry never change.
func (c *Coordinator) UpdateUser(ctx context.Context, tenantID, userID int64, in UpdateUserInput) (*models.User, error) {
	var user *models.User
	err := c.router.WithTenantSession(ctx, tenantID, func(s *Session) error {
		users := repositories.NewUserRepository(s)
		var err error
		user, err = users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if err := validateUserName(name); err != nil {
				return err
			}
			user.Name = name
		}
		if in.Phone != nil {
			user.Phone = in.Phone
			if *in.Phone == "" {
				user.Phone = nil
			}
		}
		if in.Role != nil {
			role := models.UserRole(*in.Role)
			if !role.Valid() {
				return &ValidationError{Field: "role", Message: "must be admin or user"}
			}
			user.Role = role
		}
		if in.IsActive != nil {
			user.IsActive = *in.IsActive
		}
		if in.Password != nil {
			if *in.Password == "" {
				return &ValidationError{Field: "password", Message: "must not be empty"}
			}
			hash, err := c.hasher.Hash(*in.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			user.PasswordHash = hash
		}

		return users.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes the tenant user and then its lookup entry. A lookup entry
// that is already gone is tolerated; a failure to delete it is returned, and
// the reconciler removes the stale entry later.
func (c *Coordinator) DeleteUser(ctx context.Context, tenantID, userID int64) error {
	var email string
	err := c.router.WithTenantSession(ctx, tenantID, func(s *Session) error {
		users := repositories.NewUserRepository(s)
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		email = user.Email
		_, err = users.Delete(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}

	err = c.router.WithGlobalSession(ctx, func(s *Session) error {
		deleted, err := repositories.NewLookupRepository(s).Delete(ctx, email)
		if err != nil {
			return err
		}
		if !deleted {
			slog.Warn("identity lookup already absent", "tenant_id", tenantID, "email", email)
		}
		return nil
	})
	if err != nil {
		slog.Error("tenant user deleted but identity lookup remains",
			"tenant_id", tenantID, "email", email, "error", err)
		return fmt.Errorf("failed to remove identity lookup for %s: %w", email, err)
	}

	slog.Info("user deleted", "tenant_id", tenantID, "email", email)
	return nil
}

func validateRegistration(in *RegisterInput) (string, models.UserRole, error) {
	if err := validateUserName(strings.TrimSpace(in.Name)); err != nil {
		return "", "", err
	}

	email := validation.NormalizeEmail(in.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return "", "", &ValidationError{Field: "email", Message: err.Error()}
	}

	if in.Password == "" {
		return "", "", &ValidationError{Field: "password", Message: "must not be empty"}
	}

	role := models.UserRole(in.Role)
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return "", "", &ValidationError{Field: "role", Message: "must be admin or user"}
	}
	return email, role, nil
}

func validateUserName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(name) > maxUserNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", maxUserNameLength)}
	}
	return nil
}
