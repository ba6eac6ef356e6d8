// auth.go implements the password login, self-registration, and current-user endpoints.
package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/auth"
	"github.com/resource-catalog/resource-catalog/internal/db/models"
	"github.com/resource-catalog/resource-catalog/internal/middleware"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// Identity is the account surface the handlers need. Satisfied by
// *tenancy.Coordinator.
type Identity interface {
	Register(ctx context.Context, tenantID int64, in tenancy.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*tenancy.LoginResult, error)
	GetUser(ctx context.Context, tenantID, userID int64) (*models.User, error)
	UpdateUser(ctx context.Context, tenantID, userID int64, in tenancy.UpdateUserInput) (*models.User, error)
	DeleteUser(ctx context.Context, tenantID, userID int64) error
}

// AuthHandlers handles authentication endpoints
type AuthHandlers struct {
	identity          Identity
	allowRegistration bool
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(identity Identity, allowRegistration bool) *AuthHandlers {
	return &AuthHandlers{identity: identity, allowRegistration: allowRegistration}
}

// LoginRequest is the JSON login body. Form posts use username/password.
type LoginRequest struct {
	Email    string `json:"email" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// @Summary      Log in
// @Description  Exchange email and password for an access token. Accepts a form (username, password) or JSON (email, password).
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Success      200  {object}  TokenResponse
// @Failure      401  {object}  map[string]interface{}  "Incorrect email or password"
// @Failure      403  {object}  map[string]interface{}  "Inactive account"
// @Router       /api/v1/auth/login [post]
// LoginHandler issues an access token
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		var err error
		if strings.HasPrefix(c.ContentType(), "application/json") {
			err = c.ShouldBindJSON(&req)
		} else {
			err = c.ShouldBind(&req)
		}
		if err != nil || req.Email == "" || req.Password == "" {
			apierr.BadRequest(c, "Email and password are required")
			return
		}

		result, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, TokenResponse{
			AccessToken: result.AccessToken,
			TokenType:   result.TokenType,
			ExpiresAt:   result.ExpiresAt,
		})
	}
}

// RegisterRequest is the self-registration body
type RegisterRequest struct {
	CompanyID int64   `json:"company_id" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Email     string  `json:"email" binding:"required"`
	Password  string  `json:"password" binding:"required"`
	Phone     *string `json:"phone"`
}

// RegisterHandler creates a user in an existing company with the user role.
// It answers 404 unless self-registration is enabled.
// POST /api/v1/auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.allowRegistration {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		var req RegisterRequest
		if !httpx.BindJSON(c, &req) {
			return
		}

		user, err := h.identity.Register(c.Request.Context(), req.CompanyID, tenancy.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Phone:    req.Phone,
			Role:     auth.RoleUser,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"user": user, "company_id": req.CompanyID})
	}
}

// MeHandler returns the caller and their scopes
// GET /api/v1/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user":       user,
			"company_id": middleware.GetTenantID(c),
			"scopes":     middleware.GetScopes(c),
		})
	}
}
