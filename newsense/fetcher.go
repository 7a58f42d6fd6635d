package newsense

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/newsense-analyst/log"
	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/series"
)

// FetcherConfig configures chunking, concurrency and retry behavior.
type FetcherConfig struct {
	// ChunkSpan is the widest time range covered by a single sub-request.
	ChunkSpan time.Duration
	// MaxInFlight bounds concurrent sub-requests to respect provider limits.
	MaxInFlight int
	// MaxRetries is the per-chunk attempt limit for transient failures.
	MaxRetries int
	// InitialBackoff is the first retry delay; it doubles up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Units converts reported units to canonical ones during normalization.
	Units UnitTable
}

// DefaultFetcherConfig returns the default fetcher configuration.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		ChunkSpan:      30 * 24 * time.Hour,
		MaxInFlight:    5,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Units:          DefaultUnitTable(),
	}
}

// Fetcher turns resolved queries into data API calls and normalized records.
type Fetcher struct {
	client *Client
	cfg    FetcherConfig
	logger log.Logger
}

// NewFetcher creates a Fetcher. A nil logger disables logging.
func NewFetcher(client *Client, cfg FetcherConfig, logger log.Logger) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.ChunkSpan <= 0 {
		cfg.ChunkSpan = def.ChunkSpan
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Units == nil {
		cfg.Units = def.Units
	}
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Fetcher{client: client, cfg: cfg, logger: logger}
}

type chunkResult struct {
	records  []series.Record
	warnings []string
	err      error
}

// Fetch retrieves and normalizes the data for a resolved query. Chunks run
// concurrently; a failed chunk does not cancel its siblings. When some chunks
// fail the successful records are returned with one warning per failed chunk;
// only when every chunk fails does Fetch return a *FetchError carrying the
// aggregated causes.
func (f *Fetcher) Fetch(ctx context.Context, q *resolver.ResolvedQuery) ([]series.Record, []string, error) {
	chunks := splitRange(q.TimeRange, f.cfg.ChunkSpan)
	interval, agg := aggregationFor(q.TimeRange.Span())
	filters := q.FilterMap()

	results := make([]chunkResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxInFlight)
	for i, chunk := range chunks {
		g.Go(func() error {
			records, warnings, err := f.fetchChunk(gctx, q.MetricID, filters, chunk, interval, agg)
			results[i] = chunkResult{records: records, warnings: warnings, err: err}
			// Errors are aggregated below; never fail the group so sibling
			// chunks keep running.
			return nil
		})
	}
	_ = g.Wait()

	var (
		records  []series.Record
		warnings []string
		causes   []error
	)
	for i, res := range results {
		if res.err != nil {
			f.logger.Warn("chunk %s failed: %v", chunks[i], res.err)
			causes = append(causes, fmt.Errorf("chunk %s: %w", chunks[i], res.err))
			warnings = append(warnings, fmt.Sprintf("partial data: range %s failed: %v", chunks[i], res.err))
			continue
		}
		records = append(records, res.records...)
		warnings = append(warnings, res.warnings...)
	}

	if len(causes) == len(chunks) {
		return nil, nil, &FetchError{Causes: causes}
	}

	series.Sort(records)
	records, dropped := series.Dedupe(records)
	for _, sig := range dropped {
		warnings = append(warnings, fmt.Sprintf("dropped duplicate point %s", sig))
	}

	f.logger.Debug("fetched %d record(s) over %d chunk(s), %d failed",
		len(records), len(chunks), len(causes))
	return records, warnings, nil
}

// fetchChunk retrieves one chunk with bounded retries and exponential backoff.
// Only transient failures are retried.
func (f *Fetcher) fetchChunk(ctx context.Context, metricID string, filters map[string]string, chunk series.TimeRange, interval time.Duration, agg string) ([]series.Record, []string, error) {
	var lastErr error
	delay := f.cfg.InitialBackoff

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		records, warnings, err := f.fetchChunkOnce(ctx, metricID, filters, chunk, interval, agg)
		if err == nil {
			return records, warnings, nil
		}
		lastErr = err

		if !isTransient(err) {
			return nil, nil, err
		}
		if attempt == f.cfg.MaxRetries {
			break
		}

		// Jittered exponential backoff, abandoned on cancellation.
		jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
		select {
		case <-time.After(delay + jitter):
			delay = min(delay*2, f.cfg.MaxBackoff)
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	return nil, nil, fmt.Errorf("max retries (%d) exceeded: %w", f.cfg.MaxRetries, lastErr)
}

// fetchChunkOnce walks the pagination cursor within a single chunk.
func (f *Fetcher) fetchChunkOnce(ctx context.Context, metricID string, filters map[string]string, chunk series.TimeRange, interval time.Duration, agg string) ([]series.Record, []string, error) {
	var (
		records  []series.Record
		warnings []string
		cursor   string
	)
	for {
		page, err := f.client.Series(ctx, SeriesRequest{
			MetricID: metricID,
			Filters:  filters,
			Start:    chunk.Start,
			End:      chunk.End,
			Interval: interval,
			Agg:      agg,
			Cursor:   cursor,
		})
		if err != nil {
			return nil, nil, err
		}

		pageRecords, pageWarnings := normalizePage(page, metricID, filters, f.cfg.Units)
		records = append(records, pageRecords...)
		warnings = append(warnings, pageWarnings...)

		if page.NextCursor == "" {
			return records, warnings, nil
		}
		cursor = page.NextCursor
	}
}

// splitRange cuts a time range into chunks no wider than span.
func splitRange(tr series.TimeRange, span time.Duration) []series.TimeRange {
	if tr.Span() <= span {
		return []series.TimeRange{tr}
	}
	var chunks []series.TimeRange
	start := tr.Start
	for start.Before(tr.End) {
		end := start.Add(span)
		if end.After(tr.End) {
			end = tr.End
		}
		chunks = append(chunks, series.TimeRange{Start: start, End: end})
		start = end
	}
	return chunks
}

// aggregationFor picks the server-side aggregation interval for a span,
// matching the chart granularity thresholds: raw below a week, hourly up to
// a month, daily up to a quarter, weekly beyond.
func aggregationFor(span time.Duration) (time.Duration, string) {
	switch {
	case span > 90*24*time.Hour:
		return 7 * 24 * time.Hour, "avg"
	case span > 30*24*time.Hour:
		return 24 * time.Hour, "avg"
	case span > 7*24*time.Hour:
		return time.Hour, "avg"
	default:
		return 0, ""
	}
}

// isTransient classifies an error as retryable. Authentication and
// malformed-request failures are terminal; timeouts and 5xx-class responses
// are transient.
func isTransient(err error) bool {
	if errors.Is(err, ErrNotAuthorized) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
