package analyzer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	regexFlags     = regexp.MustCompile(`(?i)^[dgimsuvy]{1,8}$`)
	regexFlagsTest = regexp.MustCompile(`(?i)^/[dgimsuvy]{1,8}\.test\b`)
	pathSegment    = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)
)

// looksLikeRegexLiteral reports whether a rooted relative hit is more likely
// a JavaScript regex literal (or the tail of one) than a path.
func looksLikeRegexLiteral(value string) bool {
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return false
	}

	path, _, _ := strings.Cut(value, "?")
	switch {
	case regexFlags.MatchString(path[1:]), regexFlagsTest.MatchString(path):
		return true
	case strings.HasPrefix(path, "/("), strings.HasPrefix(path, "/["), strings.HasPrefix(path, "/^"):
		return true
	case strings.ContainsAny(path, `\|`), strings.Contains(path, ".test("):
		return true
	}

	return hasTrailingFlags(value) || hasNonPathSuffix(value) ||
		isClosedBody(value) || isOpenFragment(value)
}

// hasTrailingFlags matches /body/flags where body is not a plain path.
func hasTrailingFlags(value string) bool {
	last := strings.LastIndexByte(value, '/')
	if last <= 1 || last == len(value)-1 {
		return false
	}
	if !regexFlags.MatchString(value[last+1:]) {
		return false
	}
	body := value[1:last]
	if len(body) == 1 {
		return true
	}
	if !strings.Contains(body, "/") && !pathSegment.MatchString(body) {
		return true
	}
	return hasRegexMeta(body)
}

// hasNonPathSuffix matches /body/ followed only by punctuation, such as the
// /a-z/) left behind by a split or replace call.
func hasNonPathSuffix(value string) bool {
	i := strings.IndexByte(value[1:], '/')
	if i <= 0 {
		return false
	}
	closing := i + 1
	if closing >= len(value)-1 {
		return false
	}
	body := value[1:closing]
	if len(body) > 1 && !hasRegexMeta(body) {
		return false
	}
	return strings.IndexFunc(value[closing+1:], func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0
}

// isClosedBody matches /body/ with a single non-path segment.
func isClosedBody(value string) bool {
	last := strings.LastIndexByte(value, '/')
	if last <= 1 || last != len(value)-1 {
		return false
	}
	body := value[1:last]
	if strings.Contains(body, "/") {
		return false
	}
	if len(body) == 1 || hasRegexMeta(body) {
		return true
	}
	return !pathSegment.MatchString(body)
}

// isOpenFragment matches a single segment carrying regex operators. A query
// string with an assignment keeps it a path.
func isOpenFragment(value string) bool {
	frag := value[1:]
	if frag == "" || strings.Contains(frag, "/") {
		return false
	}
	if q := strings.IndexByte(frag, '?'); q >= 0 && strings.Contains(frag[q+1:], "=") {
		return false
	}
	if strings.Contains(frag, ".test") {
		return true
	}
	return strings.ContainsAny(frag, `[]{}()^$*+?|\`)
}

func hasRegexMeta(s string) bool {
	return strings.ContainsAny(s, `\[](){}^$*+?|.,%~-`)
}
