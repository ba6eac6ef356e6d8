// Package tenancy implements schema-per-tenant isolation on PostgreSQL: naming
// and provisioning tenant schemas, handing out sessions pinned to one schema,
// and the company and identity sagas that span the global and tenant schemas.
package tenancy

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSchemaPrefix is used when no prefix is configured.
const DefaultSchemaPrefix = "tenant_"

// Namer derives physical schema names from tenant identifiers. It is the only
// place a schema name is built; the prefix is validated at config load.
type Namer struct {
	prefix string
}

// NewNamer returns a Namer for the given prefix.
func NewNamer(prefix string) Namer {
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	return Namer{prefix: prefix}
}

// Prefix returns the schema prefix.
func (n Namer) Prefix() string {
	return n.prefix
}

// SchemaName returns the schema for tenantID. Non-positive IDs are rejected.
func (n Namer) SchemaName(tenantID int64) (string, error) {
	if tenantID <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidTenantIdentifier, tenantID)
	}
	return n.prefix + strconv.FormatInt(tenantID, 10), nil
}

// TenantID is the inverse of SchemaName. ok is false for schemas this Namer
// did not produce.
func (n Namer) TenantID(schema string) (id int64, ok bool) {
	rest, found := strings.CutPrefix(schema, n.prefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != rest {
		return 0, false
	}
	return id, true
}

// ParseTenantID parses a tenant identifier from untrusted text such as a path
// parameter or a token claim.
func ParseTenantID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTenantIdentifier, s)
	}
	return id, nil
}
