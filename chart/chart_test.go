package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/newsense-analyst/kg"
	"github.com/smallnest/newsense-analyst/series"
)

func dailyRecords(start time.Time, store string, values ...float64) []series.Record {
	records := make([]series.Record, len(values))
	for i, v := range values {
		records[i] = series.Record{
			Timestamp:  start.Add(time.Duration(i) * 24 * time.Hour),
			Dimensions: map[string]string{"store": store},
			Value:      v,
		}
	}
	return records
}

func totalValue(spec Spec) float64 {
	sum := 0.0
	for _, s := range spec.Series {
		for _, p := range s.Points {
			sum += p.Value
		}
	}
	return sum
}

func TestBuild(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	t.Run("empty input yields a displayable empty spec", func(t *testing.T) {
		spec := Build(nil, kg.VizLine)
		assert.True(t, spec.Empty)
		assert.Equal(t, TypeLine, spec.Type)
		assert.Empty(t, spec.Series)
	})

	t.Run("daily line chart", func(t *testing.T) {
		records := dailyRecords(start, "store_a", 1, 2, 3, 4, 5, 6, 7)
		spec := Build(records, kg.VizLine)

		assert.Equal(t, TypeLine, spec.Type)
		assert.False(t, spec.Empty)
		assert.Equal(t, GranularityDay, spec.Granularity)
		require.Len(t, spec.Series, 1)
		assert.Equal(t, "store=store_a", spec.Series[0].Name)
		require.Len(t, spec.Series[0].Points, 7)

		points := spec.Series[0].Points
		for i := 1; i < len(points); i++ {
			assert.True(t, points[i-1].Timestamp.Before(points[i].Timestamp))
		}
		assert.Equal(t, "2024-06-01", points[0].Label)
	})

	t.Run("identical input produces an identical spec", func(t *testing.T) {
		records := dailyRecords(start, "store_a", 1, 2, 3)
		records = append(records, dailyRecords(start, "store_b", 4, 5, 6)...)

		first := Build(records, kg.VizBar)
		second := Build(records, kg.VizBar)
		assert.Equal(t, first, second)
	})

	t.Run("sum of plotted values matches the input", func(t *testing.T) {
		records := dailyRecords(start, "store_a", 1, 2, 3, 4)
		records = append(records, dailyRecords(start, "store_b", 10, 20)...)
		spec := Build(records, kg.VizLine)
		assert.InDelta(t, 40.0, totalValue(spec), 1e-9)
	})

	t.Run("one series per dimension signature, sorted by name", func(t *testing.T) {
		records := append(
			dailyRecords(start, "store_b", 1, 2, 3),
			dailyRecords(start, "store_a", 4, 5, 6)...,
		)
		spec := Build(records, kg.VizLine)

		require.Len(t, spec.Series, 2)
		assert.Equal(t, "store=store_a", spec.Series[0].Name)
		assert.Equal(t, "store=store_b", spec.Series[1].Name)
		assert.NotEqual(t, spec.Series[0].Color, spec.Series[1].Color)
	})

	t.Run("records sharing a bucket are summed", func(t *testing.T) {
		records := []series.Record{
			{Timestamp: start, Value: 1},
			{Timestamp: start.Add(10 * time.Minute), Value: 2},
			{Timestamp: start.Add(2 * time.Hour), Value: 4},
		}
		spec := Build(records, kg.VizLine)

		assert.Equal(t, GranularityHour, spec.Granularity)
		require.Len(t, spec.Series, 1)
		assert.Equal(t, "value", spec.Series[0].Name)
		require.Len(t, spec.Series[0].Points, 2)
		assert.Equal(t, 3.0, spec.Series[0].Points[0].Value)
		assert.Equal(t, 4.0, spec.Series[0].Points[1].Value)
	})

	t.Run("table preserves every row", func(t *testing.T) {
		records := []series.Record{
			{Timestamp: start, Value: 1},
			{Timestamp: start, Value: 1}, // duplicates survive in tables
			{Timestamp: start.Add(time.Hour), Value: 2},
		}
		spec := Build(records, kg.VizTable)

		assert.Equal(t, TypeTable, spec.Type)
		assert.Empty(t, spec.Series)
		require.Len(t, spec.Rows, 3)
	})

	t.Run("bar hint", func(t *testing.T) {
		spec := Build(dailyRecords(start, "store_a", 1), kg.VizBar)
		assert.Equal(t, TypeBar, spec.Type)
	})
}

func TestGranularityFor(t *testing.T) {
	day := 24 * time.Hour

	assert.Equal(t, GranularityHour, granularityFor(6*time.Hour))
	assert.Equal(t, GranularityHour, granularityFor(48*time.Hour))
	assert.Equal(t, GranularityDay, granularityFor(49*time.Hour))
	assert.Equal(t, GranularityDay, granularityFor(90*day))
	assert.Equal(t, GranularityMonth, granularityFor(91*day))
}

func TestTruncate(t *testing.T) {
	ts := time.Date(2024, 6, 15, 13, 45, 12, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 6, 15, 13, 0, 0, 0, time.UTC), truncate(ts, GranularityHour))
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), truncate(ts, GranularityDay))
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), truncate(ts, GranularityMonth))
}
