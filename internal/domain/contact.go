package domain

import (
	"strings"
	"unicode"
)

const (
	MinContactDigits = 7
	MaxContactDigits = 15
)

// NormalizeContact strips everything but digits from a phone number and checks
// the digit count is within MinContactDigits..MaxContactDigits.
func NormalizeContact(raw string) (string, bool) {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if len(digits) < MinContactDigits || len(digits) > MaxContactDigits {
		return digits, false
	}
	return digits, true
}

// ValidateContact returns the normalized contact or a ValidationError.
func ValidateContact(raw string) (string, error) {
	if strings.TrimFunc(raw, unicode.IsSpace) == "" {
		return "", NewValidationError("contact", "contact is required")
	}
	digits, ok := NormalizeContact(raw)
	if !ok {
		return "", NewValidationError("contact", "contact must contain 7 to 15 digits")
	}
	return digits, nil
}
