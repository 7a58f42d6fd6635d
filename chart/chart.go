// Package chart derives chart specifications from normalized records and the
// resolved metric's visualization hint. Build is a pure function: identical
// inputs always produce an identical spec.
package chart

import (
	"sort"
	"time"

	"github.com/smallnest/newsense-analyst/kg"
	"github.com/smallnest/newsense-analyst/series"
)

// Type is the rendered chart kind.
type Type string

const (
	// TypeLine is a time-series line chart.
	TypeLine Type = "line"
	// TypeBar is a bar chart.
	TypeBar Type = "bar"
	// TypeTable is a plain table of rows.
	TypeTable Type = "table"
)

// Granularity is the time bucket applied to line and bar charts.
type Granularity string

const (
	// GranularityHour buckets points by hour.
	GranularityHour Granularity = "hour"
	// GranularityDay buckets points by day.
	GranularityDay Granularity = "day"
	// GranularityMonth buckets points by month.
	GranularityMonth Granularity = "month"
)

// Span thresholds selecting the bucket granularity.
const (
	hourlySpanLimit = 48 * time.Hour
	dailySpanLimit  = 90 * 24 * time.Hour
)

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// Point is one plotted value.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Value     float64   `json:"value"`
}

// Series is one named line or bar group.
type Series struct {
	Name   string  `json:"name"`
	Color  string  `json:"color,omitempty"`
	Points []Point `json:"points"`
}

// Row is one table row; table charts preserve every record.
type Row struct {
	Timestamp  time.Time         `json:"timestamp"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Value      float64           `json:"value"`
}

// Spec is a render-ready chart description.
type Spec struct {
	Type        Type        `json:"type"`
	Empty       bool        `json:"empty"`
	Granularity Granularity `json:"granularity,omitempty"`
	XAxis       string      `json:"x_axis,omitempty"`
	YAxis       string      `json:"y_axis,omitempty"`
	Series      []Series    `json:"series,omitempty"`
	Rows        []Row       `json:"rows,omitempty"`
}

// Build produces a chart spec from normalized records and a visualization
// hint. Empty input yields a displayable spec flagged Empty rather than an
// error. Records sharing a bucket are summed for line and bar charts; table
// charts preserve all rows.
func Build(records []series.Record, hint kg.VizHint) Spec {
	chartType := typeFor(hint)
	if len(records) == 0 {
		return Spec{Type: chartType, Empty: true}
	}

	if chartType == TypeTable {
		rows := make([]Row, len(records))
		for i, r := range records {
			rows[i] = Row{Timestamp: r.Timestamp, Dimensions: r.Dimensions, Value: r.Value}
		}
		return Spec{Type: TypeTable, Rows: rows}
	}

	gran := granularityFor(records[len(records)-1].Timestamp.Sub(records[0].Timestamp))

	// One series per dimension signature, values summed per time bucket.
	type bucketed map[time.Time]float64
	buckets := make(map[string]bucketed)
	for _, r := range records {
		key := r.DimensionKey()
		if buckets[key] == nil {
			buckets[key] = make(bucketed)
		}
		buckets[key][truncate(r.Timestamp, gran)] += r.Value
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	specSeries := make([]Series, 0, len(names))
	for i, name := range names {
		byTime := buckets[name]
		points := make([]Point, 0, len(byTime))
		for ts, value := range byTime {
			points = append(points, Point{
				Timestamp: ts,
				Label:     ts.Format(labelLayout(gran)),
				Value:     value,
			})
		}
		sort.Slice(points, func(a, b int) bool {
			return points[a].Timestamp.Before(points[b].Timestamp)
		})

		seriesName := name
		if seriesName == "" {
			seriesName = "value"
		}
		specSeries = append(specSeries, Series{
			Name:   seriesName,
			Color:  defaultColors[i%len(defaultColors)],
			Points: points,
		})
	}

	return Spec{
		Type:        chartType,
		Granularity: gran,
		XAxis:       "time",
		YAxis:       "value",
		Series:      specSeries,
	}
}

func typeFor(hint kg.VizHint) Type {
	switch hint {
	case kg.VizBar:
		return TypeBar
	case kg.VizTable:
		return TypeTable
	default:
		return TypeLine
	}
}

func granularityFor(span time.Duration) Granularity {
	switch {
	case span <= hourlySpanLimit:
		return GranularityHour
	case span <= dailySpanLimit:
		return GranularityDay
	default:
		return GranularityMonth
	}
}

func truncate(ts time.Time, gran Granularity) time.Time {
	ts = ts.UTC()
	switch gran {
	case GranularityHour:
		return ts.Truncate(time.Hour)
	case GranularityDay:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func labelLayout(gran Granularity) string {
	switch gran {
	case GranularityHour:
		return "2006-01-02 15:00"
	case GranularityDay:
		return "2006-01-02"
	default:
		return "2006-01"
	}
}
