package agentregistry

import (
	"fmt"
	"strings"
	"time"
)

// slugify converts name into a valid agent id: lowercase, spaces become
// "-", and any character that isn't a letter, digit, or "-" is dropped. If
// the result is empty, it falls back to "agent-<unix-seconds>".
func slugify(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, " ", "-")

	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	slug := b.String()
	if slug == "" {
		return fmt.Sprintf("agent-%d", time.Now().Unix())
	}
	return slug
}

// validID reports whether id conforms to the slug grammar: lowercase
// letters, digits, and "-" only, non-empty.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}
