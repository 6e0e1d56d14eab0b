package graphmodel

import (
	"html"
	"strings"
)

// Canonicalize derives a node or edge endpoint's storage uid from a raw
// extractor string: html-unescape, strip control chars, trim, uppercase
// (invariant I3). Applying it twice is a no-op, which is what makes merge
// idempotent under re-ingestion (scenario 2). This is the single source of
// truth for I3; graphbuilder's field parsing routes through it rather than
// keeping its own copy.
func Canonicalize(raw string) string {
	s := html.UnescapeString(raw)
	s = stripControlChars(s)
	return strings.ToUpper(strings.TrimSpace(s))
}

// stripControlChars removes U+0000-U+001F, U+007F-U+009F, and ASCII `"`.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x00 && r <= 0x1F:
		case r >= 0x7F && r <= 0x9F:
		case r == '"':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MergeDescription unions the newline-delimited fragments of two
// descriptions, preserving first-seen order and dropping duplicates
// (invariant I4). An empty existing description just yields addition.
func MergeDescription(existing, addition string) string {
	if addition == "" {
		return existing
	}
	if existing == "" {
		return addition
	}

	seen := make(map[string]struct{})
	var fragments []string
	for _, f := range strings.Split(existing, "\n") {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		fragments = append(fragments, f)
	}
	for _, f := range strings.Split(addition, "\n") {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		fragments = append(fragments, f)
	}
	return strings.Join(fragments, "\n")
}
