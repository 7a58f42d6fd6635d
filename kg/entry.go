// Package kg loads and indexes the curated knowledge graph: the vocabulary
// that maps human-readable terms and aliases to the canonical identifiers the
// Newsense data API expects.
package kg

import "strings"

// Category classifies a knowledge graph entry.
type Category string

const (
	// CategoryMetric marks entries naming a measurable quantity.
	CategoryMetric Category = "metric"
	// CategoryDimension marks entries naming a dimension value used as a filter.
	CategoryDimension Category = "dimension"
	// CategoryAlias marks standalone alias rows attached to a canonical id.
	CategoryAlias Category = "alias"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryMetric, CategoryDimension, CategoryAlias:
		return true
	}
	return false
}

// VizHint is the declared visualization preference of a metric.
type VizHint string

const (
	// VizLine renders a time-series line chart.
	VizLine VizHint = "line"
	// VizBar renders a bar chart.
	VizBar VizHint = "bar"
	// VizTable renders a plain table.
	VizTable VizHint = "table"
)

// ValidVizHint reports whether h is one of the known hints.
func ValidVizHint(h VizHint) bool {
	switch h {
	case VizLine, VizBar, VizTable:
		return true
	}
	return false
}

// Entry is one row of the knowledge graph.
type Entry struct {
	Name        string   `json:"entity_name"`
	Category    Category `json:"category"`
	CanonicalID string   `json:"canonical_id"`
	Aliases     []string `json:"aliases,omitempty"`
	VizHint     VizHint  `json:"visualization_hint"`

	// DimensionKey groups dimension entries under the filter key the data API
	// expects, e.g. "store" for the value "store A". Empty for metrics.
	DimensionKey string `json:"dimension_key,omitempty"`
}

// Key returns the dimension filter key for a dimension entry. When the source
// did not declare one, the first word of the entity name is used, so
// "store A" binds under "store".
func (e *Entry) Key() string {
	if e.DimensionKey != "" {
		return e.DimensionKey
	}
	fields := strings.Fields(strings.ToLower(e.Name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// MatchKind ranks how a term matched an entry.
type MatchKind int

const (
	// MatchExact is a case-insensitive match on the entity name.
	MatchExact MatchKind = iota
	// MatchAlias is a case-insensitive match on one of the aliases.
	MatchAlias
	// MatchFuzzy is a substring match in either direction.
	MatchFuzzy
)

// Quality converts the match kind into a score in (0, 1].
func (k MatchKind) Quality() float64 {
	switch k {
	case MatchExact:
		return 1.0
	case MatchAlias:
		return 0.75
	default:
		return 0.5
	}
}

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchAlias:
		return "alias"
	default:
		return "fuzzy"
	}
}

// Candidate is a ranked lookup result.
type Candidate struct {
	Entry *Entry
	Kind  MatchKind
}

// Quality returns the candidate's match quality.
func (c Candidate) Quality() float64 { return c.Kind.Quality() }
