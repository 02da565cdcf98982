// Package normalize collapses high-cardinality URL path segments into a
// canonical pattern so that "/users/42/profile" and "/users/97/profile" are
// learned as the same endpoint.
package normalize

import (
	"regexp"
	"strings"
)

var (
	uuidRe    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericRe = regexp.MustCompile(`^[0-9]+$`)
	hexRe     = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	slugRe    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+){2,}$`)
	mixedRe   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	alphaRe   = regexp.MustCompile(`[a-zA-Z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	base64Re  = regexp.MustCompile(`^[A-Za-z0-9+/_-]+={0,2}$`)
)

// Path rewrites a raw URL path into a canonical pattern. Rules are applied
// per path segment, longest/most-specific match first. Segments that match
// no rule are kept verbatim, so short tokens like "v2" or "api" survive.
func Path(raw string) string {
	segments := strings.Split(strings.Trim(raw, "/"), "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		out = append(out, normalizeSegment(seg))
	}
	return "/" + strings.Join(out, "/")
}

func normalizeSegment(seg string) string {
	switch {
	case uuidRe.MatchString(seg):
		return "{id}"
	case numericRe.MatchString(seg):
		return "{id}"
	case len(seg) >= 16 && !strings.Contains(seg, "-") && hexRe.MatchString(seg):
		return "{hash}"
	case isBase64Like(seg):
		return "{token}"
	case isSlug(seg):
		return "{slug}"
	case isMixedAlnum(seg):
		return "{id}"
	default:
		return seg
	}
}

// isBase64Like matches segments of length >= 20 built from mixed letter
// case/digit/symbol classes, with optional "=" padding — the shape of an
// opaque token or encoded identifier, as opposed to a readable word.
// Segments that match isSlug are left to the slug rule.
func isBase64Like(seg string) bool {
	if len(seg) < 20 || isSlug(seg) {
		return false
	}
	if !base64Re.MatchString(seg) {
		return false
	}
	hasUpper, hasLower, hasDigit := false, false, false
	for _, r := range seg {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	classes := 0
	for _, b := range []bool{hasUpper, hasLower, hasDigit} {
		if b {
			classes++
		}
	}
	return classes >= 2
}

// isSlug matches lowercase alphanumeric segments with at least two hyphens
// and a total length greater than 8, e.g. "my-favorite-post-2024".
func isSlug(seg string) bool {
	return len(seg) > 8 && slugRe.MatchString(seg)
}

// isMixedAlnum matches segments of length 6-12 that contain both letters and
// digits — typical of short opaque identifiers like "a1b2c3". Shorter
// mixed tokens (e.g. "v2") are left untouched by the length floor.
func isMixedAlnum(seg string) bool {
	if len(seg) < 6 || len(seg) > 12 {
		return false
	}
	if !mixedRe.MatchString(seg) {
		return false
	}
	return alphaRe.MatchString(seg) && digitRe.MatchString(seg)
}
