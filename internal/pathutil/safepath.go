// Package pathutil rejects request paths that could escape a site root.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Unsafe reports whether a URL path must not be mapped onto a filesystem:
// NUL bytes, backslashes and dot segments.
func Unsafe(p string) bool {
	return strings.ContainsAny(p, "\x00\\") || HasDotSegments(p)
}
