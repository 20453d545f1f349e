package httpapi

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ACL limits which channels clients may use. Patterns use doublestar glob
// syntax with '/' as the separator, so "jobs/*" admits "jobs/build" but not
// "jobs/build/linux", while "jobs/**" admits both.
type ACL struct {
	patterns []string
}

// NewACL validates patterns and returns an ACL. An empty pattern list
// allows every channel.
func NewACL(patterns []string) (*ACL, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid channel pattern %q", p)
		}
	}
	return &ACL{patterns: append([]string(nil), patterns...)}, nil
}

// Allowed reports whether channel matches at least one pattern.
func (a *ACL) Allowed(channel string) bool {
	if a == nil || len(a.patterns) == 0 {
		return true
	}
	for _, p := range a.patterns {
		if ok, _ := doublestar.Match(p, channel); ok {
			return true
		}
	}
	return false
}
