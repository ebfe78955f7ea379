package analyzer

import (
	"strings"
	"unicode"

	"github.com/FranksOps/endpoints/internal/endpoint"
)

var invalidPrefixes = []string{"javascript:", "mailto:", "data:"}

// Normalizer turns candidates into canonical absolute endpoint URLs.
//
// Relative values are joined textually onto the base URL's scheme and
// authority: dot segments are not collapsed and the base query is ignored.
// Absolute values are returned verbatim, without re-encoding. Both rules are
// why net/url is not used for parsing here.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize accepts a string, an endpoint.Candidate or a *endpoint.Candidate
// and returns the canonical URL, or false if the value is rejected.
func (n *Normalizer) Normalize(candidate any, baseURL string) (string, bool) {
	raw, ok := rawValue(candidate)
	if !ok {
		return "", false
	}

	cleaned := strings.Trim(strings.TrimSpace(raw), `'"`)
	if cleaned == "" {
		return "", false
	}
	if strings.IndexFunc(cleaned, unicode.IsSpace) >= 0 {
		return "", false
	}
	if hasAnyPrefixFold(cleaned, invalidPrefixes) {
		return "", false
	}

	if scheme, rest, ok := splitScheme(cleaned); ok {
		if !isHTTPScheme(scheme) || authority(rest) == "" {
			return "", false
		}
		return cleaned, true
	}
	return normalizeRelative(cleaned, baseURL)
}

func normalizeRelative(value, baseURL string) (string, bool) {
	if strings.HasPrefix(value, "//") {
		return "", false
	}

	scheme, rest, ok := splitScheme(baseURL)
	if !ok || !isHTTPScheme(scheme) {
		return "", false
	}
	host := authority(rest)
	if host == "" {
		return "", false
	}

	if !strings.HasPrefix(value, "/") {
		value = "/" + value
	}
	return strings.ToLower(scheme) + "://" + host + value, true
}

// HostOf returns the authority component (host[:port]) of a canonical URL,
// or "" if it has none.
func HostOf(canonicalURL string) string {
	_, rest, ok := splitScheme(canonicalURL)
	if !ok {
		rest = canonicalURL
	}
	return authority(rest)
}

func rawValue(candidate any) (string, bool) {
	switch c := candidate.(type) {
	case string:
		return c, true
	case endpoint.Candidate:
		return c.RawValue, true
	case *endpoint.Candidate:
		if c == nil {
			return "", false
		}
		return c.RawValue, true
	}
	return "", false
}

// splitScheme splits "scheme:rest" following generic URI syntax: the scheme
// starts with a letter, continues with letters, digits, '+', '-' or '.', and
// ends at the first ':' that precedes any '/', '?' or '#'.
func splitScheme(s string) (scheme, rest string, ok bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		case c == ':' && i > 0:
			return s[:i], s[i+1:], true
		default:
			return "", s, false
		}
	}
	return "", s, false
}

// authority returns the text between a leading "//" and the next '/', '?' or
// '#'. Without the leading "//" there is no authority.
func authority(rest string) string {
	if !strings.HasPrefix(rest, "//") {
		return ""
	}
	rest = rest[2:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func isHTTPScheme(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "http" || s == "https"
}
