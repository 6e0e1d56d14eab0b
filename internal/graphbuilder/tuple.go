// Package graphbuilder turns a stream of extractor tuples into node and
// edge writes against a graphstore.Backend, idempotently (spec.md §4.B).
package graphbuilder

import (
	"html"
	"strconv"
	"strings"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
)

// Delimiters configures the extractor wire format. Zero-value Delimiters is
// invalid; use DefaultDelimiters.
type Delimiters struct {
	Tuple      string // separates fields within one tuple, default "<|>"
	Record     string // separates tuples within the stream, default "##"
	Completion string // terminates the stream, default "<|COMPLETE|>"
}

// DefaultDelimiters matches the extractor contract in spec.md §4.B/§6.
func DefaultDelimiters() Delimiters {
	return Delimiters{Tuple: "<|>", Record: "##", Completion: "<|COMPLETE|>"}
}

// TupleKind distinguishes the two recognized extractor record shapes.
type TupleKind string

const (
	TupleEntity       TupleKind = "entity"
	TupleRelationship TupleKind = "relationship"
)

// Tuple is one parsed extractor record, fields already canonicalized.
type Tuple struct {
	Kind TupleKind

	// entity fields
	Name        string
	Type        string
	Description string

	// relationship fields
	Source string
	Target string
	Weight float64
}

// ParseStream splits raw extractor output into tuples, stopping at the
// completion marker. Records that don't parse as a recognized shape are
// skipped rather than failing the whole stream (§7 ParseError recovery
// policy: the builder skips the tuple and continues).
func ParseStream(raw string, d Delimiters) []Tuple {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), d.Completion)

	var tuples []Tuple
	for _, record := range strings.Split(raw, d.Record) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		if t, ok := parseRecord(record, d); ok {
			tuples = append(tuples, t)
		}
	}
	return tuples
}

func parseRecord(record string, d Delimiters) (Tuple, bool) {
	record = strings.TrimPrefix(record, "(")
	record = strings.TrimSuffix(record, ")")

	fields := strings.Split(record, d.Tuple)
	for i := range fields {
		fields[i] = unquote(fields[i])
	}
	if len(fields) == 0 {
		return Tuple{}, false
	}

	switch TupleKind(canonicalizeLower(fields[0])) {
	case TupleEntity:
		if len(fields) < 4 {
			return Tuple{}, false
		}
		return Tuple{
			Kind:        TupleEntity,
			Name:        canonicalizeField(fields[1]),
			Type:        canonicalizeField(fields[2]),
			Description: sanitizeDescription(fields[3]),
		}, true
	case TupleRelationship:
		if len(fields) < 5 {
			return Tuple{}, false
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
		if err != nil {
			weight = 1.0
		}
		return Tuple{
			Kind:        TupleRelationship,
			Source:      canonicalizeField(fields[1]),
			Target:      canonicalizeField(fields[2]),
			Description: sanitizeDescription(fields[3]),
			Weight:      weight,
		}, true
	default:
		return Tuple{}, false
	}
}

// unquote strips a single layer of surrounding double quotes, the shape the
// extractor emits fields in.
func unquote(field string) string {
	field = strings.TrimSpace(field)
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		return field[1 : len(field)-1]
	}
	return field
}

// stripControlChars removes U+0000-U+001F, U+007F-U+009F, and ASCII `"`, per
// spec.md §4.B field canonicalization.
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

// canonicalizeField is the name/type canonicalization (invariant I3),
// delegated to graphmodel.Canonicalize so ingestion and any other caller of
// I3 agree on a single definition.
func canonicalizeField(raw string) string {
	return graphmodel.Canonicalize(raw)
}

// canonicalizeLower is used only to classify the tuple's leading keyword,
// which is case-insensitive ("entity"/"relationship") but not itself stored.
func canonicalizeLower(raw string) string {
	return strings.ToLower(strings.TrimSpace(unquote(raw)))
}

// sanitizeDescription cleans a description field without uppercasing it:
// descriptions are prose, not identifiers.
func sanitizeDescription(raw string) string {
	s := html.UnescapeString(raw)
	s = stripControlChars(s)
	return strings.TrimSpace(s)
}
