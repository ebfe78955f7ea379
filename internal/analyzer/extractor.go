package analyzer

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/PuerkitoBio/goquery"
)

// supportedContentTypes are the bare MIME types whose bodies are scanned.
var supportedContentTypes = map[string]struct{}{
	"text/html":              {},
	"application/json":       {},
	"application/javascript": {},
	"text/javascript":        {},
	"text/plain":             {},
}

// urlRun is one character of a URL run. RE2's \s is ASCII only, so \v, NEL
// and the Unicode separators are listed to stop runs wherever
// unicode.IsSpace would.
const urlRun = `[^\s\v\p{Z}\x{0085}"'<>]`

var (
	absoluteURLPattern = regexp.MustCompile(`(?i)https?://` + urlRun + `+`)
	// relativeURLPattern is only the body of a relative match; the boundary
	// rules around the leading slash are applied by relativeBoundary.
	relativeURLPattern    = regexp.MustCompile(`/` + urlRun + `+`)
	dotRelativeURLPattern = regexp.MustCompile(`\.\.?/` + urlRun + `+`)
)

const trailingTrimChars = ".,;:!?)]}"

var noisePrefixes = []string{"javascript:", "mailto:"}

// Options enables extraction passes on top of the pattern scan. All are off
// by default; their hits are appended after the pattern hits.
type Options struct {
	// HTMLAttributes collects link-bearing attributes from HTML documents and
	// resolves document-relative values against the source URL.
	HTMLAttributes bool
	// ScriptCalls collects string arguments of fetch, axios, XHR open and
	// new URL calls in script and HTML bodies.
	ScriptCalls bool
	// FrameworkRoutes collects rooted route paths declared with
	// app/router/fastify method calls, fastify.route objects, <Route path>
	// elements and path: '/x' route objects in script and HTML bodies.
	FrameworkRoutes bool
	// DotRelative collects ./x and ../x references in non-HTML bodies and
	// resolves them against the source URL.
	DotRelative bool
	// SkipRegexLiterals drops relative hits that read as JavaScript regex
	// literals, such as /\d+/g or /^[a-z]/.
	SkipRegexLiterals bool
}

// Extractor finds endpoint candidates in decoded response bodies.
// It is stateless and safe for concurrent use.
type Extractor struct {
	opts Options
}

// NewExtractor returns an Extractor with the given options.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// NormalizeContentType strips parameters from a Content-Type value and
// lower-cases it.
func NormalizeContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// IsSupportedContentType reports whether bodies of this type are scanned.
func IsSupportedContentType(contentType string) bool {
	_, ok := supportedContentTypes[NormalizeContentType(contentType)]
	return ok
}

// Extract returns the candidates found in responseText. Absolute-pattern hits
// come first, then relative-pattern hits, each in first-occurrence order.
// Unsupported content types and empty bodies yield no candidates.
func (e *Extractor) Extract(responseText, contentType, sourceURL string) []endpoint.Candidate {
	ct := NormalizeContentType(contentType)
	if _, ok := supportedContentTypes[ct]; !ok {
		return nil
	}
	if responseText == "" {
		return nil
	}

	c := collector{
		contentType:       ct,
		sourceURL:         sourceURL,
		skipRegexLiterals: e.opts.SkipRegexLiterals,
		seen:              make(map[candidateKey]struct{}),
	}

	for _, m := range absoluteURLPattern.FindAllString(responseText, -1) {
		c.add(m, endpoint.MatchAbsolute)
	}
	for _, m := range findRelative(responseText) {
		c.add(m, endpoint.MatchRelative)
	}

	if e.opts.HTMLAttributes && ct == "text/html" {
		for _, v := range htmlAttributeValues(responseText) {
			c.addResolved(v)
		}
	}
	if e.opts.ScriptCalls && isScriptBearing(ct) {
		for _, v := range quotedValues(scriptCallPatterns, responseText) {
			c.addResolved(v)
		}
	}
	if e.opts.FrameworkRoutes && isScriptBearing(ct) {
		for _, v := range quotedValues(routePatterns, responseText) {
			if isRouteValue(v) {
				c.addResolved(v)
			}
		}
	}
	if e.opts.DotRelative && ct != "text/html" {
		for _, v := range findBounded(responseText, dotRelativeURLPattern, dotRelativeBoundary) {
			c.addResolved(v)
		}
	}

	return c.out
}

// findRelative returns the relative-pattern matches of text. A slash starts a
// match only if it is not preceded by a word character, '<' or another slash
// and is not followed by a slash. A rejected slash does not consume input.
func findRelative(text string) []string {
	return findBounded(text, relativeURLPattern, relativeBoundary)
}

func findBounded(text string, re *regexp.Regexp, boundary func(text string, start int) bool) []string {
	var matches []string
	pos := 0
	for pos < len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !boundary(text, start) {
			pos = start + 1
			continue
		}
		matches = append(matches, text[start:end])
		pos = end
	}
	return matches
}

func relativeBoundary(text string, slash int) bool {
	if slash+1 < len(text) && text[slash+1] == '/' {
		return false
	}
	if slash == 0 {
		return true
	}
	prev := text[slash-1]
	switch {
	case prev >= 'a' && prev <= 'z', prev >= 'A' && prev <= 'Z', prev >= '0' && prev <= '9':
		return false
	case prev == '_', prev == '<', prev == '/':
		return false
	}
	return true
}

// dotRelativeBoundary accepts a ./ or ../ reference only at the start of the
// text or after whitespace, a quote or an opening delimiter.
func dotRelativeBoundary(text string, start int) bool {
	if start == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return unicode.IsSpace(prev) || strings.ContainsRune("\"'`=(:[,>{", prev)
}

type candidateKey struct {
	value     string
	matchType endpoint.MatchType
}

type collector struct {
	contentType       string
	sourceURL         string
	skipRegexLiterals bool
	seen              map[candidateKey]struct{}
	out               []endpoint.Candidate
}

func (c *collector) add(raw string, mt endpoint.MatchType) {
	cleaned, ok := cleanMatch(raw)
	if !ok {
		return
	}
	if hasAnyPrefixFold(cleaned, noisePrefixes) {
		return
	}
	if mt == endpoint.MatchRelative && strings.HasPrefix(cleaned, "//") {
		return
	}
	if mt == endpoint.MatchRelative && c.skipRegexLiterals && looksLikeRegexLiteral(cleaned) {
		return
	}

	key := candidateKey{value: cleaned, matchType: mt}
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.out = append(c.out, endpoint.Candidate{
		RawValue:    cleaned,
		SourceURL:   c.sourceURL,
		ContentType: c.contentType,
		MatchType:   mt,
	})
}

// addResolved classifies a value taken from markup or a script call. Rooted
// paths become relative candidates; anything else that resolves against the
// source URL to an http(s) URL becomes an absolute candidate.
func (c *collector) addResolved(raw string) {
	cleaned, ok := cleanMatch(raw)
	if !ok || strings.Contains(cleaned, "${") || strings.HasPrefix(cleaned, "#") {
		return
	}
	lower := strings.ToLower(cleaned)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		c.add(cleaned, endpoint.MatchAbsolute)
		return
	case strings.HasPrefix(cleaned, "/") && !strings.HasPrefix(cleaned, "//"):
		c.add(cleaned, endpoint.MatchRelative)
		return
	}

	base, err := url.Parse(c.sourceURL)
	if err != nil {
		return
	}
	ref, err := url.Parse(cleaned)
	if err != nil {
		return
	}
	if ref.Scheme != "" {
		// some other scheme (data:, tel:, ws:); not an HTTP endpoint
		return
	}
	resolved := base.ResolveReference(ref)
	if (resolved.Scheme != "http" && resolved.Scheme != "https") || resolved.Host == "" {
		return
	}
	c.add(resolved.String(), endpoint.MatchAbsolute)
}

// cleanMatch trims whitespace and quotes, then trailing punctuation.
func cleanMatch(value string) (string, bool) {
	cleaned := strings.Trim(strings.TrimSpace(value), `'"`)
	cleaned = strings.TrimRight(cleaned, trailingTrimChars)
	if cleaned == "" || cleaned == "/" {
		return "", false
	}
	return cleaned, true
}

func hasAnyPrefixFold(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return true
		}
	}
	return false
}

func isScriptBearing(contentType string) bool {
	switch contentType {
	case "text/html", "application/javascript", "text/javascript":
		return true
	}
	return false
}

// linkAttributes maps selectors to the attribute holding the link.
var linkAttributes = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"link[href]", "href"},
	{"form[action]", "action"},
	{"script[src]", "src"},
	{"iframe[src]", "src"},
	{"img[src]", "src"},
}

func htmlAttributeValues(body string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var values []string
	for _, la := range linkAttributes {
		doc.Find(la.selector).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr(la.attr); ok {
				values = append(values, v)
			}
		})
	}
	return values
}

// quotedArg matches a single-, double- or backtick-quoted string literal.
// RE2 has no backreferences, so each quote style is its own group.
const quotedArg = `(?:"([^"]*)"|'([^']*)'|` + "`([^`]*)`" + `)`

var scriptCallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfetch\s*\(\s*` + quotedArg),
	regexp.MustCompile(`(?i)\baxios\s*\.\s*(?:get|post|put|patch|delete|head|options)\s*\(\s*` + quotedArg),
	regexp.MustCompile(`(?is)\baxios\s*\(\s*\{[^}]*?\burl\s*:\s*` + quotedArg),
	regexp.MustCompile(`(?i)\.open\s*\(\s*(?:["'` + "`" + `][A-Za-z]+["'` + "`" + `]\s*,\s*)?` + quotedArg),
	regexp.MustCompile(`(?i)\bnew\s+URL\s*\(\s*` + quotedArg),
}

var routePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:app|router|fastify)\s*\.\s*(?:get|post|put|patch|delete|head|options|all|use|route)\s*\(\s*` + quotedArg),
	regexp.MustCompile(`(?is)\bfastify\s*\.\s*route\s*\(\s*\{[^}]*?\b(?:url|path)\s*:\s*` + quotedArg),
	regexp.MustCompile(`(?i)<Route[^>]*\bpath\s*=\s*` + quotedArg),
	regexp.MustCompile(`(?i)\bpath\s*:\s*` + quotedArg),
}

// isRouteValue keeps server routes: rooted paths and absolute URLs. Bare
// names and wildcards are not addressable on their own.
func isRouteValue(v string) bool {
	v = strings.TrimSpace(v)
	return (strings.HasPrefix(v, "/") && !strings.HasPrefix(v, "//")) ||
		hasAnyPrefixFold(v, []string{"http://", "https://"})
}

// quotedValues returns the string literal captured by each match of
// patterns, pattern by pattern.
func quotedValues(patterns []*regexp.Regexp, body string) []string {
	var values []string
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			// the literal is always in the last three groups
			for _, g := range m[len(m)-3:] {
				if g != "" {
					values = append(values, g)
					break
				}
			}
		}
	}
	return values
}
