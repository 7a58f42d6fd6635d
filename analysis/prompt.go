package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/series"
)

// seriesStats summarizes one dimension signature's records for the prompt.
type seriesStats struct {
	label string
	count int
	mean  float64
	min   float64
	max   float64
	first time.Time
	last  time.Time
}

func summarize(records []series.Record) []seriesStats {
	grouped := make(map[string][]series.Record)
	for _, r := range records {
		grouped[r.DimensionKey()] = append(grouped[r.DimensionKey()], r)
	}

	labels := make([]string, 0, len(grouped))
	for label := range grouped {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	stats := make([]seriesStats, 0, len(labels))
	for _, label := range labels {
		recs := grouped[label]
		s := seriesStats{
			label: label,
			count: len(recs),
			min:   math.Inf(1),
			max:   math.Inf(-1),
			first: recs[0].Timestamp,
			last:  recs[0].Timestamp,
		}
		sum := 0.0
		for _, r := range recs {
			sum += r.Value
			s.min = math.Min(s.min, r.Value)
			s.max = math.Max(s.max, r.Value)
			if r.Timestamp.Before(s.first) {
				s.first = r.Timestamp
			}
			if r.Timestamp.After(s.last) {
				s.last = r.Timestamp
			}
		}
		s.mean = sum / float64(len(recs))
		if s.label == "" {
			s.label = "overall"
		}
		stats = append(stats, s)
	}
	return stats
}

// buildPrompt assembles the grounding context: the question, resolved-query
// metadata, per-series summary statistics, and a bounded sample of records.
// Raw unbounded data never reaches the model.
func buildPrompt(question string, records []series.Record, q *resolver.ResolvedQuery, maxRecords int) string {
	var b strings.Builder

	b.WriteString("You are a data analysis engineer reviewing operational telemetry.\n")
	b.WriteString("The user asked: ")
	b.WriteString(quote(question))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Resolved query: metric=%s", q.MetricID)
	for _, f := range q.DimensionFilters {
		fmt.Fprintf(&b, ", %s=%s", f.Key, f.Value)
	}
	fmt.Fprintf(&b, ", range=%s\n", q.TimeRange)
	if q.Latest {
		b.WriteString("The user asked for the latest value: lead with the most recent point.\n")
	}
	b.WriteString("\n")

	b.WriteString("Summary statistics per series:\n")
	for _, s := range summarize(records) {
		fmt.Fprintf(&b, "- %s: %d points, mean=%.2f, min=%.2f, max=%.2f, from %s to %s\n",
			s.label, s.count, s.mean, s.min, s.max,
			s.first.Format("2006-01-02"), s.last.Format("2006-01-02"))
	}

	b.WriteString("\nData points (timestamp, dimensions, value):\n")
	sample := records
	truncated := false
	if len(sample) > maxRecords {
		sample = sample[:maxRecords]
		truncated = true
	}
	for _, r := range sample {
		fmt.Fprintf(&b, "%s | %s | %.4f\n",
			r.Timestamp.Format(time.RFC3339), r.DimensionKey(), r.Value)
	}
	if truncated {
		fmt.Fprintf(&b, "(truncated to the first %d of %d points)\n", maxRecords, len(records))
	}

	b.WriteString("\nWrite a short technical analysis (2-4 sentences per series): ")
	b.WriteString("average level, trend, and anomalies relative to the mean.\n")
	b.WriteString("Reference only timestamps, dimension values and numbers present in the data above. ")
	b.WriteString("Write dates as YYYY-MM-DD. Do not speculate beyond the provided data.\n")

	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}
