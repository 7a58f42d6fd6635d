package newsense

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrNoBaseURL)

	c, err := NewClient(WithBaseURL("http://example.test/"))
	require.NoError(t, err)
	assert.Equal(t, "http://example.test", c.baseURL)
}

func TestClientAuthentication(t *testing.T) {
	t.Run("token is acquired once and attached to requests", func(t *testing.T) {
		var logins atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc(loginEndpoint, func(w http.ResponseWriter, r *http.Request) {
			logins.Add(1)
			var creds map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "reader", creds["username"])
			assert.Equal(t, "secret", creds["password"])
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
		})
		mux.HandleFunc(seriesEndpoint, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok-123", r.Header.Get("X-Authorization"))
			json.NewEncoder(w).Encode(SeriesPage{})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		c, err := NewClient(WithBaseURL(srv.URL), WithCredentials("reader", "secret"))
		require.NoError(t, err)

		for range 2 {
			_, err = c.Series(context.Background(), SeriesRequest{MetricID: "rev_001"})
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), logins.Load())
	})

	t.Run("rejected credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c, err := NewClient(WithBaseURL(srv.URL), WithCredentials("reader", "wrong"))
		require.NoError(t, err)

		_, err = c.Series(context.Background(), SeriesRequest{MetricID: "rev_001"})
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})
}

func TestClientSeries(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc(loginEndpoint, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc(seriesEndpoint, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "rev_001", q.Get("metric"))
		assert.Equal(t, fmt.Sprint(start.UnixMilli()), q.Get("startTs"))
		assert.Equal(t, fmt.Sprint(end.UnixMilli()), q.Get("endTs"))
		assert.Equal(t, "store_a", q.Get("f.store"))
		assert.Equal(t, "3600000", q.Get("interval"))
		assert.Equal(t, "avg", q.Get("agg"))
		json.NewEncoder(w).Encode(map[string]any{
			"unit":   "kw",
			"points": []map[string]any{{"ts": start.UnixMilli(), "value": 1.5}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	require.NoError(t, err)

	page, err := c.Series(context.Background(), SeriesRequest{
		MetricID: "rev_001",
		Filters:  map[string]string{"store": "store_a"},
		Start:    start,
		End:      end,
		Interval: time.Hour,
		Agg:      "avg",
	})
	require.NoError(t, err)
	assert.Equal(t, "kw", page.Unit)
	assert.Len(t, page.Points, 1)
}

func TestClientCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(loginEndpoint, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc(catalogEndpoint, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "0":
			json.NewEncoder(w).Encode(map[string]any{
				"data":        []CatalogItem{{ID: "rev_001", Name: "revenue"}},
				"hasNextPage": true,
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"data":        []CatalogItem{{ID: "temp_001", Name: "temperature"}},
				"hasNextPage": false,
			})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL))
	require.NoError(t, err)

	items, err := c.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "rev_001", items[0].ID)
	assert.Equal(t, "temp_001", items[1].ID)
}

func TestAPIErrorTransient(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 500}).Transient())
	assert.True(t, (&APIError{StatusCode: 429}).Transient())
	assert.True(t, (&APIError{StatusCode: 408}).Transient())
	assert.False(t, (&APIError{StatusCode: 400}).Transient())
	assert.False(t, (&APIError{StatusCode: 404}).Transient())
}
