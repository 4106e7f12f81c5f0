// Package allowlist decides whether an authenticated email may hold a session.
package allowlist

import (
	"github.com/dgellow/authgate/internal/emailutil"
	"github.com/dgellow/authgate/internal/log"
)

// DeniedMessage is the only detail a rejected user is shown
const DeniedMessage = "Access denied. Your email is not authorized."

// Gate is an immutable set of allowed emails
type Gate struct {
	allowed map[string]struct{}
}

// NewGate builds a gate from the configured emails. Entries are compared
// case-insensitively with surrounding whitespace ignored.
func NewGate(emails []string) *Gate {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if n := emailutil.Normalize(e); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &Gate{allowed: allowed}
}

// Allowed reports whether email is on the allow-list
func (g *Gate) Allowed(email string) bool {
	n := emailutil.Normalize(email)
	if n == "" {
		return false
	}
	_, ok := g.allowed[n]
	if !ok {
		log.LogWarnWithFields("allowlist", "Email not on allow-list", map[string]any{
			"email": emailutil.Mask(email),
		})
	}
	return ok
}

// Len returns the number of allowed emails
func (g *Gate) Len() int {
	return len(g.allowed)
}
