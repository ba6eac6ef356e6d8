// Package httpx holds the request helpers shared by the handler packages:
// pagination, path parameters, and the tenant session bound to the request.
package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/resource-catalog/resource-catalog/internal/api/apierr"
	"github.com/resource-catalog/resource-catalog/internal/middleware"
	"github.com/resource-catalog/resource-catalog/internal/tenancy"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Page is a parsed page/per_page pair
type Page struct {
	Page    int
	PerPage int
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Pagination reads page and per_page from the query string. Out of range
// values fall back to page 1 and 20 per page.
func Pagination(c *gin.Context) Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}
	return Page{Page: page, PerPage: perPage}
}

// PageBody builds the {"<key>": items, "pagination": {...}} list response.
func PageBody(key string, items any, p Page, total int) gin.H {
	return gin.H{
		key: items,
		"pagination": gin.H{
			"page":     p.Page,
			"per_page": p.PerPage,
			"total":    total,
		},
	}
}

// ParamID parses the positive integer path parameter name. On failure it
// aborts with 400 and returns false.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// QueryID parses an optional positive integer query parameter. A missing
// parameter yields nil; a malformed one aborts with 400.
func QueryID(c *gin.Context, name string) (*int64, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		apierr.BadRequest(c, "Invalid "+name)
		return nil, false
	}
	return &id, true
}

var errNoScope = errors.New("request has no tenant scope")

// Session returns the tenant session of the request, opening it on first use.
// On failure it writes the error response and returns false.
func Session(c *gin.Context) (*tenancy.Session, bool) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		apierr.Respond(c, errNoScope)
		return nil, false
	}
	sess, err := scope.Session(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return nil, false
	}
	return sess, true
}

// BindJSON decodes the body into dst or aborts with 400.
func BindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return false
	}
	return true
}
