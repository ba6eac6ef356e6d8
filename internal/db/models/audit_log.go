// Package models - audit_log.go defines the AuditLog model for recording mutating
// requests, capturing the tenant, actor, action, affected resource, and client IP.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           int64                  `json:"id"`
	CompanyID    *int64                 `json:"company_id,omitempty"` // Nullable for unauthenticated actions
	UserEmail    *string                `json:"user_email,omitempty"`
	Action       string                 `json:"action"`                  // "POST /api/v1/tags", "company.delete"
	ResourceType *string                `json:"resource_type,omitempty"` // "tags", "users", "companies"
	ResourceID   *string                `json:"resource_id,omitempty"`
	StatusCode   int                    `json:"status_code"`
	IPAddress    *string                `json:"ip_address,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // JSONB: additional context
	CreatedAt    time.Time              `json:"created_at"`
}
