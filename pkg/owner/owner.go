// Package owner canonicalizes the owner identifiers that partition assets.
package owner

import (
	"errors"
	"regexp"
	"strings"
)

// MaxLength is the longest canonical owner id.
const MaxLength = 50

var ErrInvalidOwner = errors.New("invalid owner id")

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]`)
	underscores  = regexp.MustCompile(`_+`)
)

// Canonical lowercases raw, replaces characters outside [a-z0-9_-] with
// underscores, collapses underscore runs and truncates to MaxLength.
func Canonical(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	id = invalidChars.ReplaceAllString(id, "_")
	id = underscores.ReplaceAllString(id, "_")
	id = strings.Trim(id, "_")
	if len(id) > MaxLength {
		id = strings.TrimRight(id[:MaxLength], "_")
	}
	if id == "" {
		return "", ErrInvalidOwner
	}
	return id, nil
}

// Matches reports whether a stored owner id belongs to the queried owner.
// Older records may carry the raw form, so both are compared.
func Matches(stored, query string) bool {
	if stored == query {
		return true
	}
	a, err := Canonical(stored)
	if err != nil {
		return false
	}
	b, err := Canonical(query)
	if err != nil {
		return false
	}
	return a == b
}
