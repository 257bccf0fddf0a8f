// Package normalize resolves raw anchor references against the page they were
// found on and keeps only absolute http(s) URLs.
package normalize

import (
	"net/url"
	"strings"
)

// Normalize resolves ref against base and reports whether the result is an
// absolute http or https URL. Resolution is a plain join: "../" segments and
// the base path are never merged.
func Normalize(ref, base string) (string, bool) {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}

	candidate := ref
	scheme, netloc := origin(base)
	switch {
	case strings.HasPrefix(ref, "//"):
		candidate = scheme + ":" + ref
	case strings.HasPrefix(ref, "/"):
		candidate = scheme + "://" + netloc + ref
	case !hasScheme(ref):
		candidate = scheme + "://" + netloc + "/" + ref
	}

	if strings.HasPrefix(candidate, "http://") || strings.HasPrefix(candidate, "https://") {
		return candidate, true
	}
	return "", false
}

// origin splits base into its scheme and network location. An unparsable base
// yields empty parts so only already-absolute references survive.
func origin(base string) (string, string) {
	u, err := url.Parse(base)
	if err != nil {
		return "", ""
	}
	netloc := u.Host
	if u.User != nil {
		netloc = u.User.String() + "@" + netloc
	}
	return u.Scheme, netloc
}

// hasScheme reports whether ref starts with an RFC 3986 scheme followed by ':'.
func hasScheme(ref string) bool {
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' || c == '+' || c == '-' || c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}
