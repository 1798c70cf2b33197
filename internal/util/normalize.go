package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentifier canonicalizes a login handle for lookup and storage:
// Unicode NFKC normalization, whitespace trim, lower case. Two identifiers
// that differ only in case or composition map to the same key, so throttle
// and directory lookups cannot be bypassed with case variation.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}
