package service

import (
	"regexp"
	"strings"
	"unicode"
)

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var codeRE = regexp.MustCompile(`^[0-9]{6}$`)

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "is required")
	}
	if len(email) > 254 || !emailRE.MatchString(email) {
		return invalid("email", "invalid format")
	}
	return nil
}

// validatePassword requires 8..72 bytes with at least one letter and one
// digit.  bcrypt ignores bytes past 72.
func validatePassword(field, password string) error {
	if len(password) < 8 {
		return invalid(field, "must be at least 8 characters")
	}
	if len(password) > 72 {
		return invalid(field, "must be at most 72 bytes")
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return invalid(field, "must contain a letter and a digit")
	}
	return nil
}

