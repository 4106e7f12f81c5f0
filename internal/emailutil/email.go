package emailutil

import "strings"

// Normalize lower-cases and trims an address so allow-list membership does
// not depend on how the provider or the operator cased it
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Mask hides most of the local part for log lines, "alice@example.com" becomes "a***@example.com"
func Mask(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
