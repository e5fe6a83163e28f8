package utils

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName folds a display name to NFC and collapses runs of
// whitespace, so visually identical names compare equal.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// NormalizeIdentifier trims a login identifier. Values that look like an
// email are lowercased; matric numbers are kept as typed.
func NormalizeIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "@") {
		return strings.ToLower(value)
	}
	return value
}
