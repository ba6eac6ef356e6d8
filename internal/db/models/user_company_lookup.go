// Package models - user_company_lookup.go defines the global email to company
// index used to route logins before a tenant schema can be queried.
package models

import "time"

// UserCompanyLookup maps a globally unique email to the company that owns the account
type UserCompanyLookup struct {
	Email     string    `db:"email" json:"email"`
	CompanyID int64     `db:"company_id" json:"company_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
