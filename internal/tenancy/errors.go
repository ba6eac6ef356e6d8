package tenancy

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the router, provisioner, lifecycle manager, and
// identity coordinator. The API layer maps these onto HTTP statuses.
var (
	ErrInvalidTenantIdentifier  = errors.New("invalid tenant identifier")
	ErrTenantSchemaNotFound     = errors.New("tenant schema not found")
	ErrTenantProvisioningFailed = errors.New("tenant provisioning failed")
	ErrTenantNotFound           = errors.New("tenant not found")
	ErrTenantNotEmpty           = errors.New("tenant still has users")
	ErrEmailAlreadyRegistered   = errors.New("email already registered")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInactiveAccount          = errors.New("inactive account")
	ErrUserNotFound             = errors.New("user not found")
	ErrLookupCreationFailed     = errors.New("identity lookup creation failed")
	ErrCriticalConsistencyFault = errors.New("critical consistency fault")
)

// ValidationError rejects input before any storage is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SeedError reports that a schema was created but its reference data could not
// be inserted. The schema itself is usable.
type SeedError struct {
	TenantID int64
	Err      error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed reference data for tenant %d: %v", e.TenantID, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// CriticalConsistencyFault is the terminal state of a saga whose compensation
// failed. Global and tenant data disagree and an operator has to repair it.
type CriticalConsistencyFault struct {
	Saga            string
	Step            string // step whose failure triggered compensation
	Compensation    string // compensation that failed
	Cause           error
	CompensationErr error
}

func (e *CriticalConsistencyFault) Error() string {
	return fmt.Sprintf("%s: %s failed (%v) and compensation %s failed (%v)",
		e.Saga, e.Step, e.Cause, e.Compensation, e.CompensationErr)
}

// Is makes errors.Is(err, ErrCriticalConsistencyFault) match.
func (e *CriticalConsistencyFault) Is(target error) bool {
	return target == ErrCriticalConsistencyFault
}

func (e *CriticalConsistencyFault) Unwrap() error { return e.Cause }
