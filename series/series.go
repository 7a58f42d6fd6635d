// Package series defines the uniform tabular shape shared by all pipeline
// stages: normalized data points and inclusive time ranges.
package series

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is a single normalized data point: a timestamp, the dimension values
// it was fetched under, and a numeric value.
type Record struct {
	Timestamp  time.Time         `json:"timestamp"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Value      float64           `json:"value"`
}

// DimensionKey returns a stable "k=v,k=v" signature with keys sorted.
// Records with the same signature belong to the same series.
func (r Record) DimensionKey() string {
	if len(r.Dimensions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Dimensions))
	for k := range r.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+r.Dimensions[k])
	}
	return strings.Join(parts, ",")
}

// Sort orders records chronologically, breaking timestamp ties by the lexical
// order of their dimension signatures.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].DimensionKey() < records[j].DimensionKey()
	})
}

// Dedupe removes records sharing a (timestamp, dimensions) pair with an
// earlier record, preserving order. It returns the kept records and the
// signatures of the dropped ones.
func Dedupe(records []Record) ([]Record, []string) {
	seen := make(map[string]struct{}, len(records))
	kept := records[:0:0]
	var dropped []string
	for _, r := range records {
		key := r.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + r.DimensionKey()
		if _, ok := seen[key]; ok {
			dropped = append(dropped, key)
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}
	return kept, dropped
}

// TimeRange is an inclusive [Start, End] interval.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span returns the duration covered by the range.
func (t TimeRange) Span() time.Duration {
	return t.End.Sub(t.Start)
}

// IsZero reports whether both endpoints are unset.
func (t TimeRange) IsZero() bool {
	return t.Start.IsZero() && t.End.IsZero()
}

// Contains reports whether ts falls inside the range, endpoints included.
func (t TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(t.Start) && !ts.After(t.End)
}

func (t TimeRange) String() string {
	return fmt.Sprintf("%s to %s",
		t.Start.Format("2006-01-02 15:04"), t.End.Format("2006-01-02 15:04"))
}
