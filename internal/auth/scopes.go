// Package auth - scopes.go defines permission scope constants for catalog resources,
// maps tenant roles onto scopes, and provides HasScope, HasAnyScope, and HasAllScopes
// helper functions for scope checking.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Catalog resource scopes (tags, teams, registries, components, ...)
	ScopeCatalogRead  Scope = "catalog:read"
	ScopeCatalogWrite Scope = "catalog:write"

	// User management scopes
	ScopeUsersRead  Scope = "users:read"
	ScopeUsersWrite Scope = "users:write"

	// Company management scopes
	ScopeCompaniesRead  Scope = "companies:read"
	ScopeCompaniesWrite Scope = "companies:write" // Create, rename, and delete companies

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// Tenant user roles as stored in the users table and carried in tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// writeImpliesRead maps each write scope to the read scope it grants.
var writeImpliesRead = map[Scope]Scope{
	ScopeCatalogWrite:   ScopeCatalogRead,
	ScopeUsersWrite:     ScopeUsersRead,
	ScopeCompaniesWrite: ScopeCompaniesRead,
}

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeCatalogRead,
		ScopeCatalogWrite,
		ScopeUsersRead,
		ScopeUsersWrite,
		ScopeCompaniesRead,
		ScopeCompaniesWrite,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a user has a required scope
// Supports wildcard admin scope
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		if scope == requiredStr || scope == string(ScopeAdmin) {
			return true
		}
		// If user has write permission, they also have read permission
		if implied, ok := writeImpliesRead[Scope(scope)]; ok && implied == required {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a user has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// ScopesForRole returns the scopes granted to a tenant role. Unknown roles get none.
func ScopesForRole(role string) []string {
	switch role {
	case RoleAdmin:
		return GetAdminScopes()
	case RoleUser:
		return []string{
			string(ScopeCatalogRead),
			string(ScopeCatalogWrite),
			string(ScopeUsersRead),
			string(ScopeCompaniesRead),
		}
	default:
		return []string{}
	}
}

// GetAdminScopes returns all scopes including admin
func GetAdminScopes() []string {
	scopes := make([]string, 0)
	for _, scope := range AllScopes() {
		scopes = append(scopes, string(scope))
	}
	return scopes
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
