// email.go normalizes and validates account email addresses. Emails are
// compared and stored lower-cased everywhere, including the global lookup.
package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxEmailLength = 255

var validate = validator.New()

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that an already normalized email is a plausible address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("email must be at most %d characters", maxEmailLength)
	}
	if err := validate.Var(email, "email"); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
