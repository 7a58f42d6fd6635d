package newsense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/series"
)

var fetchStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// seriesHandler serves the login endpoint and delegates series requests.
func seriesHandler(serve func(w http.ResponseWriter, r *http.Request)) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(loginEndpoint, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc(seriesEndpoint, serve)
	return mux
}

func pointsResponse(start time.Time, values ...float64) map[string]any {
	points := make([]map[string]any, len(values))
	for i, v := range values {
		points[i] = map[string]any{
			"ts":    start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			"value": v,
		}
	}
	return map[string]any{"points": points}
}

func newTestFetcher(t *testing.T, handler http.Handler, cfg FetcherConfig) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(WithBaseURL(srv.URL))
	require.NoError(t, err)
	return NewFetcher(client, cfg, nil), srv
}

func rangeQuery(span time.Duration) *resolver.ResolvedQuery {
	return &resolver.ResolvedQuery{
		MetricID:  "rev_001",
		TimeRange: series.TimeRange{Start: fetchStart, End: fetchStart.Add(span)},
	}
}

func fastRetries() FetcherConfig {
	return FetcherConfig{
		ChunkSpan:      24 * time.Hour,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestFetch(t *testing.T) {
	t.Run("single chunk happy path", func(t *testing.T) {
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(pointsResponse(fetchStart, 1, 2, 3))
		}), fastRetries())

		records, warnings, err := f.Fetch(context.Background(), rangeQuery(6*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, warnings)
		require.Len(t, records, 3)
		assert.True(t, records[0].Timestamp.Before(records[1].Timestamp))
	})

	t.Run("failed chunk yields partial data and one warning", func(t *testing.T) {
		badChunk := strconv.FormatInt(fetchStart.Add(24*time.Hour).UnixMilli(), 10)
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			start := r.URL.Query().Get("startTs")
			if start == badChunk {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
				return
			}
			ms, _ := strconv.ParseInt(start, 10, 64)
			json.NewEncoder(w).Encode(pointsResponse(time.UnixMilli(ms).UTC(), 1, 2))
		}), fastRetries())

		records, warnings, err := f.Fetch(context.Background(), rangeQuery(72*time.Hour))
		require.NoError(t, err)
		require.Len(t, records, 4)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "partial data")

		for i := 1; i < len(records); i++ {
			assert.False(t, records[i].Timestamp.Before(records[i-1].Timestamp))
		}
	})

	t.Run("all chunks failed", func(t *testing.T) {
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}), fastRetries())

		records, warnings, err := f.Fetch(context.Background(), rangeQuery(72*time.Hour))
		assert.Nil(t, records)
		assert.Nil(t, warnings)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Len(t, fetchErr.Causes, 3)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		var calls atomic.Int32
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, "busy", http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(pointsResponse(fetchStart, 1))
		}), fastRetries())

		records, warnings, err := f.Fetch(context.Background(), rangeQuery(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Len(t, records, 1)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("terminal failure is not retried", func(t *testing.T) {
		var calls atomic.Int32
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad metric", http.StatusBadRequest)
		}), fastRetries())

		_, _, err := f.Fetch(context.Background(), rangeQuery(time.Hour))
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("pagination cursor is followed", func(t *testing.T) {
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			resp := pointsResponse(fetchStart, 1)
			if r.URL.Query().Get("cursor") == "" {
				resp["nextCursor"] = "page-2"
			} else {
				resp = pointsResponse(fetchStart.Add(time.Hour), 2)
			}
			json.NewEncoder(w).Encode(resp)
		}), fastRetries())

		records, _, err := f.Fetch(context.Background(), rangeQuery(2*time.Hour))
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("duplicate points are dropped with a warning", func(t *testing.T) {
		f, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(pointsResponse(fetchStart, 1, 1)) // same value, distinct ts
		}), fastRetries())

		records, warnings, err := f.Fetch(context.Background(), rangeQuery(time.Hour))
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Empty(t, warnings)

		f2, _ := newTestFetcher(t, seriesHandler(func(w http.ResponseWriter, r *http.Request) {
			ts := fetchStart.UnixMilli()
			fmt.Fprintf(w, `{"points":[{"ts":%d,"value":1},{"ts":%d,"value":1}]}`, ts, ts)
		}), fastRetries())

		records, warnings, err = f2.Fetch(context.Background(), rangeQuery(time.Hour))
		require.NoError(t, err)
		assert.Len(t, records, 1)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "dropped duplicate point")
	})
}

func TestSplitRange(t *testing.T) {
	day := 24 * time.Hour

	chunks := splitRange(series.TimeRange{Start: fetchStart, End: fetchStart.Add(6 * time.Hour)}, day)
	require.Len(t, chunks, 1)

	chunks = splitRange(series.TimeRange{Start: fetchStart, End: fetchStart.Add(60 * time.Hour)}, day)
	require.Len(t, chunks, 3)
	assert.Equal(t, fetchStart, chunks[0].Start)
	assert.Equal(t, fetchStart.Add(24*time.Hour), chunks[1].Start)
	assert.Equal(t, fetchStart.Add(60*time.Hour), chunks[2].End)
}

func TestAggregationFor(t *testing.T) {
	day := 24 * time.Hour

	interval, agg := aggregationFor(3 * day)
	assert.Equal(t, time.Duration(0), interval)
	assert.Empty(t, agg)

	interval, agg = aggregationFor(14 * day)
	assert.Equal(t, time.Hour, interval)
	assert.Equal(t, "avg", agg)

	interval, _ = aggregationFor(60 * day)
	assert.Equal(t, day, interval)

	interval, _ = aggregationFor(180 * day)
	assert.Equal(t, 7*day, interval)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(ErrNotAuthorized))
	assert.False(t, isTransient(&APIError{StatusCode: 400}))
	assert.True(t, isTransient(&APIError{StatusCode: 503}))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(errors.New("opaque")))
}
