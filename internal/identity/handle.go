// Package identity derives display-safe account handles from buyer display
// names and owns the credential secret policy.
package identity

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// Fallback is the handle base used when a display name slugs to nothing.
const Fallback = "customer"

var (
	whitespace  = regexp.MustCompile(`\s+`)
	disallowed  = regexp.MustCompile(`[^a-z0-9_]+`)
	underscores = regexp.MustCompile(`_+`)
)

// Slugify normalizes a free-text display name to [a-z0-9_]: lowercase,
// whitespace runs become single underscores, anything else is stripped.
// An empty result yields the fallback token.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespace.ReplaceAllString(s, "_")
	s = disallowed.ReplaceAllString(s, "")
	s = underscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return Fallback
	}
	return s
}

// NewHandle appends a uniform random two-digit suffix to the slug. The
// result is not globally unique; the provisioning service is the uniqueness
// authority and callers retry on a reported collision.
func NewHandle(displayName string) string {
	return fmt.Sprintf("%s_%02d", Slugify(displayName), rand.IntN(100))
}

// GeneratePassword is the single swap point for the secret policy. The
// placeholder value matches the current provisioning setup; replace with a
// strong random generator before issuing real credentials.
func GeneratePassword() string {
	return "1"
}
