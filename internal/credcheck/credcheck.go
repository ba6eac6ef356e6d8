// Package credcheck verifies stored registry credentials against their
// provider. Verifiers are registered per registry provider name; providers
// with no verifier are reported as unsupported.
package credcheck

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedProvider is returned for providers that have no verifier.
var ErrUnsupportedProvider = errors.New("credential verification is not supported for this provider")

// Credential is a decrypted registry credential.
type Credential struct {
	Provider  string
	AccessKey string
	SecretKey string
	Region    string
}

// Result describes the outcome of a verification. A credential the provider
// rejects is a result with Valid false, not an error.
type Result struct {
	Provider string `json:"provider"`
	Valid    bool   `json:"valid"`
	Account  string `json:"account,omitempty"`
	ARN      string `json:"arn,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Verifier checks one provider's credentials.
type Verifier interface {
	Verify(ctx context.Context, cred Credential) (*Result, error)
}

// Registry maps registry provider names to verifiers.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry returns a registry with the built-in verifiers.
func NewRegistry() *Registry {
	r := &Registry{verifiers: make(map[string]Verifier)}
	r.Register(ProviderAWSECR, NewAWSVerifier(""))
	return r
}

// Register installs v for provider, replacing any previous verifier.
func (r *Registry) Register(provider string, v Verifier) {
	r.verifiers[provider] = v
}

// Providers returns the provider names that can be verified.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify dispatches to the verifier for cred.Provider.
func (r *Registry) Verify(ctx context.Context, cred Credential) (*Result, error) {
	v, ok := r.verifiers[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cred.Provider)
	}
	return v.Verify(ctx, cred)
}
