// users.go implements handlers for tenant user accounts. Every endpoint is
// confined to the caller's own company.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/api/httpx"
	"github.com/resource-catalog/resource-catalog/internal/auth"
	"github.com/resource-catalog/resource-catalog/internal/db/repositories"
	"github.com/resource-catalog/resource-catalog/internal/middleware"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	identity Identity
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(identity Identity) *UserHandlers {
	return &UserHandlers{identity: identity}
}

// @Summary      List users
// @Description  List the users of the caller's company. Requires users:read scope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Router       /api/v1/users [get]
// ListUsersHandler lists users with pagination
// GET /api/v1/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}
		page := httpx.Pagination(c)

		users, total, err := repositories.NewUserRepository(sess).List(c.Request.Context(), page.PerPage, page.Offset())
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, httpx.PageBody("users", users, page, total))
	}
}

// GetUserHandler retrieves a user of the caller's company
// GET /api/v1/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		sess, ok := httpx.Session(c)
		if !ok {
			return
		}

		user, err := repositories.NewUserRepository(sess).GetByID(c.Request.Context(), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if user == nil {
			apierr.NotFound(c, "User")
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Name     string  `json:"name" binding:"required"`
	Email    string  `json:"email" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Phone    *string `json:"phone"`
	Role     string  `json:"role"`
}

// @Summary      Create user
// @Description  Register a user in the caller's company. Requires users:write scope.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User creation request"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/v1/users [post]
// CreateUserHandler registers a user in the caller's company
// POST /api/v1/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if !httpx.BindJSON(c, &req) {
			return
		}

		user, err := h.identity.Register(c.Request.Context(), middleware.GetTenantID(c), tenancy.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Phone:    req.Phone,
			Role:     req.Role,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// UpdateUserRequest represents the request to update a user. The email is
// immutable.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// UpdateUserHandler updates a user. Users may change their own name, phone,
// and password; role and active flag need users:write.
// PUT /api/v1/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}
		var req UpdateUserRequest
		if !httpx.BindJSON(c, &req) {
			return
		}
		if (req.Role != nil || req.IsActive != nil) && !auth.HasScope(middleware.GetScopes(c), auth.ScopeUsersWrite) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(auth.ScopeUsersWrite),
			})
			return
		}

		user, err := h.identity.UpdateUser(c.Request.Context(), middleware.GetTenantID(c), id, tenancy.UpdateUserInput{
			Name:     req.Name,
			Phone:    req.Phone,
			Password: req.Password,
			Role:     req.Role,
			IsActive: req.IsActive,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// DeleteUserHandler removes a user and their identity lookup entry
// DELETE /api/v1/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := httpx.ParamID(c, "id")
		if !ok {
			return
		}

		if err := h.identity.DeleteUser(c.Request.Context(), middleware.GetTenantID(c), id); err != nil {
			apierr.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	}
}
