package auth

import (
	"strings"
	"unicode"
)

// Password strength requirements.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// ValidatePasswordStrength checks a candidate password against the account
// policy. Rules are evaluated in a fixed order and the first violation wins,
// so the caller always gets a single actionable message. Returns nil when
// all rules hold.
func ValidatePasswordStrength(secret string) error {
	n := len([]rune(secret))
	if n < MinPasswordLength {
		return validationErrorf("password", "Password must be at least %d characters long", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return validationErrorf("password", "Password must be less than %d characters long", MaxPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper {
		return validationErrorf("password", "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		return validationErrorf("password", "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return validationErrorf("password", "Password must contain at least one number")
	}
	if !strings.ContainsAny(secret, specialChars) {
		return validationErrorf("password", "Password must contain at least one special character")
	}
	return nil
}
