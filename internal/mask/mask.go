// Package mask redacts identifying data before it reaches logs or audit
// metadata.
package mask

import "strings"

// Email keeps the first character of the local part and the full domain:
// "john@example.com" becomes "j***@example.com". Local parts of one character
// or less collapse to "***@domain". Input without a domain is fully redacted.
func Email(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return "***"
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return "***"
	}
	domain := email[at+1:]
	if at <= 1 {
		return "***@" + domain
	}
	return email[:1] + "***@" + domain
}

// Identifier shows only the first and last character of an opaque id.
func Identifier(id string) string {
	switch n := len(id); {
	case n == 0:
		return "***"
	case n <= 2:
		return strings.Repeat("*", n)
	default:
		return id[:1] + "***" + id[n-1:]
	}
}
