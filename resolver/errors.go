package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/newsense-analyst/kg"
)

// NoMetricError is returned when no metric term could be matched against the
// knowledge graph. Suggestions carry near-miss metric names to re-prompt with.
type NoMetricError struct {
	Question    string
	Suggestions []string
}

func (e *NoMetricError) Error() string {
	if len(e.Suggestions) == 0 {
		return "no metric matched in question"
	}
	return fmt.Sprintf("no metric matched in question; close candidates: %s",
		strings.Join(e.Suggestions, ", "))
}

// AmbiguousMetricError is returned when two or more metric candidates tie at
// the top rank. The resolver never silently picks one.
type AmbiguousMetricError struct {
	Candidates []*kg.Entry
}

func (e *AmbiguousMetricError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = fmt.Sprintf("%s (%s)", c.Name, c.CanonicalID)
	}
	return "ambiguous metric, candidates: " + strings.Join(names, ", ")
}

// CandidateIDs returns the candidate canonical ids in sorted order.
func (e *AmbiguousMetricError) CandidateIDs() []string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = c.CanonicalID
	}
	sort.Strings(ids)
	return ids
}

// ConflictingDimensionError is returned when the question binds the same
// dimension key to two different values.
type ConflictingDimensionError struct {
	Key      string
	Existing string
	Conflict string
}

func (e *ConflictingDimensionError) Error() string {
	return fmt.Sprintf("conflicting values for dimension %q: %s vs %s",
		e.Key, e.Existing, e.Conflict)
}
