// Package urlkey canonicalizes URLs the way Site Review keys its results.
package urlkey

import (
	"regexp"
	"strings"
)

var portPattern = regexp.MustCompile(`:\d+`)

// Normalize returns the cache and lookup key for a raw URL or host.
//
// Site Review drops port definitions, trailing '#' and the trailing '/'
// of a bare host, so the same is done here to keep cached keys in line
// with live results. The '//' of a scheme prefix does not count towards
// the host-only check. Any input is accepted and Normalize is idempotent.
func Normalize(raw string) string {
	key := portPattern.ReplaceAllString(raw, "")
	key = strings.TrimRight(key, "#")

	if isHostOnly(key) && strings.HasSuffix(key, "/") {
		key = strings.TrimRight(strings.TrimSuffix(key, "/"), "#")
	}

	return key
}

// isHostOnly reports whether the value has exactly one path separator
// after an optional scheme
func isHostOnly(key string) bool {
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	return strings.Count(key, "/") == 1
}
