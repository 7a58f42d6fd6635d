package analysis

import (
	"fmt"
	"regexp"

	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/series"
)

var (
	claimedDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	claimedDimRe  = regexp.MustCompile(`([a-z][a-z0-9_]*)=([a-z0-9_.-]+)`)
)

// validateGrounding checks the structured claims that can be extracted from
// the reply against the provided records. Dates outside the records and the
// resolved range fail with an ungrounded AnalysisError. A reply with no
// extractable claims passes with an unverified warning.
func validateGrounding(text string, records []series.Record, q *resolver.ResolvedQuery) ([]string, error) {
	dates := claimedDateRe.FindAllString(text, -1)
	dims := claimedDimRe.FindAllStringSubmatch(text, -1)
	if len(dates) == 0 && len(dims) == 0 {
		return []string{WarnUnverified}, nil
	}

	// Dimension claims in key=value form are only checked for keys the
	// records actually carry; anything else is prose, not a claim.
	known := make(map[string]map[string]bool)
	for _, r := range records {
		for k, v := range r.Dimensions {
			if known[k] == nil {
				known[k] = make(map[string]bool)
			}
			known[k][v] = true
		}
	}
	for _, m := range dims {
		key, value := m[1], m[2]
		values, ok := known[key]
		if !ok {
			continue
		}
		if !values[value] {
			return nil, &AnalysisError{
				Kind: KindUngrounded,
				Err:  fmt.Errorf("reply references dimension value %s=%s absent from the provided records", key, value),
			}
		}
	}

	allowed := make(map[string]bool, len(records)+2)
	for _, r := range records {
		allowed[r.Timestamp.UTC().Format("2006-01-02")] = true
		allowed[r.Timestamp.Format("2006-01-02")] = true
	}
	// Range endpoints are fair to mention even without a record on them.
	if q != nil && !q.TimeRange.IsZero() {
		allowed[q.TimeRange.Start.Format("2006-01-02")] = true
		allowed[q.TimeRange.End.Format("2006-01-02")] = true
	}

	for _, d := range dates {
		if !allowed[d] {
			return nil, &AnalysisError{
				Kind: KindUngrounded,
				Err:  fmt.Errorf("reply references date %s absent from the provided records", d),
			}
		}
	}
	return nil, nil
}
