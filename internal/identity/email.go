// Package identity normalizes identifiers used to match platform users to employees.
package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the canonical matching key for an email address:
// trimmed, NFC-composed and case-folded. Returns "" for input without an "@".
func NormalizeEmail(email string) string {
	s := strings.TrimSpace(email)
	if s == "" || !strings.Contains(s, "@") {
		return ""
	}
	s = norm.NFC.String(s)
	return cases.Fold().String(s)
}
