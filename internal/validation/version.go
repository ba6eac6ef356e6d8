// version.go validates catalog version names and orders them. Version names
// follow hashicorp/go-version rules, so "1.2", "v1.2.3" and "1.0.0-rc.1" are
// all accepted.
package validation

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

const maxVersionNameLength = 100

// ValidateVersionName validates that a version name parses as a version
func ValidateVersionName(name string) error {
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("invalid version name: surrounding whitespace")
	}
	if len(name) > maxVersionNameLength {
		return fmt.Errorf("invalid version name: longer than %d characters", maxVersionNameLength)
	}
	if _, err := version.NewVersion(name); err != nil {
		return fmt.Errorf("invalid version name: %w", err)
	}
	return nil
}

// CompareVersionNames compares two version names
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersionNames(v1Str, v2Str string) (int, error) {
	v1, err := version.NewVersion(v1Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}

	v2, err := version.NewVersion(v2Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	return v1.Compare(v2), nil
}
