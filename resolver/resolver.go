// Package resolver matches free-text questions against the knowledge graph
// and produces structured queries for the data fetcher.
package resolver

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/smallnest/newsense-analyst/kg"
	"github.com/smallnest/newsense-analyst/series"
)

// maxWindow is the widest n-gram considered when extracting candidate terms.
const maxWindow = 3

// DefaultRecencyWindow is applied when the question names no time range.
const DefaultRecencyWindow = 7 * 24 * time.Hour

// DimensionFilter binds one dimension key to a matched canonical value.
type DimensionFilter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ResolvedQuery is the structured representation of a user's intent. It is
// created once per turn and never mutated afterwards.
type ResolvedQuery struct {
	MetricID string    `json:"metric_id"`
	Metric   *kg.Entry `json:"metric,omitempty"`

	// DimensionFilters keep insertion order: the order the terms matched.
	DimensionFilters []DimensionFilter `json:"dimension_filters,omitempty"`

	TimeRange  series.TimeRange `json:"time_range"`
	Latest     bool             `json:"latest,omitempty"`
	Confidence float64          `json:"confidence"`
}

// Filter returns the bound value for a dimension key.
func (q *ResolvedQuery) Filter(key string) (string, bool) {
	for _, f := range q.DimensionFilters {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// FilterMap returns the dimension filters as a map.
func (q *ResolvedQuery) FilterMap() map[string]string {
	m := make(map[string]string, len(q.DimensionFilters))
	for _, f := range q.DimensionFilters {
		m[f.Key] = f.Value
	}
	return m
}

// Config configures a Resolver.
type Config struct {
	// RecencyWindow is the default time range when the question has none.
	RecencyWindow time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Resolver converts free text into resolved queries using the knowledge graph.
type Resolver struct {
	store   *kg.Store
	recency time.Duration
	now     func() time.Time
}

// New creates a Resolver over a knowledge graph store.
func New(store *kg.Store, cfg Config) *Resolver {
	r := &Resolver{
		store:   store,
		recency: cfg.RecencyWindow,
		now:     cfg.Now,
	}
	if r.recency <= 0 {
		r.recency = DefaultRecencyWindow
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

type window struct {
	start, length int
	term          string
	metrics       []kg.Candidate
	dims          []kg.Candidate
}

// quality returns the best match quality in the window, used to order
// claims so an exact unigram beats a fuzzy trigram covering it.
func (w *window) quality() float64 {
	best := 0.0
	for _, c := range w.metrics {
		if q := c.Quality(); q > best {
			best = q
		}
	}
	for _, c := range w.dims {
		if q := c.Quality(); q > best {
			best = q
		}
	}
	return best
}

// Resolve converts a question into a ResolvedQuery. It fails with
// *NoMetricError, *AmbiguousMetricError or *ConflictingDimensionError; all
// three are recoverable by re-prompting the user.
func (r *Resolver) Resolve(question string) (*ResolvedQuery, error) {
	snap := r.store.Snapshot()

	timeRange, latest, remainder, _ := extractTimeRange(question, r.now(), r.recency)
	tokens := tokenize(remainder)

	windows := claimWindows(matchWindows(snap, tokens), len(tokens))

	var metricOnly, withDims []*window
	for _, w := range windows {
		if len(w.metrics) > 0 && len(w.dims) == 0 {
			metricOnly = append(metricOnly, w)
		} else if len(w.dims) > 0 {
			withDims = append(withDims, w)
		}
	}

	// A term matching both a metric and a dimension resolves as a metric only
	// when no independent metric term exists; otherwise it stays a filter.
	metricSources := metricOnly
	if len(metricSources) == 0 {
		for _, w := range withDims {
			if len(w.metrics) > 0 {
				metricSources = append(metricSources, w)
			}
		}
	}

	metric, metricWin, err := selectMetric(metricSources, windows)
	if err != nil {
		return nil, err
	}

	q := &ResolvedQuery{
		MetricID:  metric.Entry.CanonicalID,
		Metric:    metric.Entry,
		TimeRange: timeRange,
		Latest:    latest,
	}

	qualities := []float64{metric.Quality()}
	for _, w := range withDims {
		if w == metricWin {
			continue
		}
		best := w.dims[0]
		key := best.Entry.Key()
		if bound, ok := q.Filter(key); ok {
			if bound == best.Entry.CanonicalID {
				continue
			}
			return nil, &ConflictingDimensionError{
				Key:      key,
				Existing: bound,
				Conflict: best.Entry.CanonicalID,
			}
		}
		q.DimensionFilters = append(q.DimensionFilters, DimensionFilter{
			Key:   key,
			Value: best.Entry.CanonicalID,
		})
		qualities = append(qualities, best.Quality())
	}

	sum := 0.0
	for _, v := range qualities {
		sum += v
	}
	q.Confidence = sum / float64(len(qualities))

	return q, nil
}

// selectMetric picks exactly one metric candidate or fails. The window that
// supplied the winner is returned so it is not reused as a dimension filter.
func selectMetric(sources, all []*window) (kg.Candidate, *window, error) {
	type scored struct {
		cand kg.Candidate
		win  *window
	}
	best := make(map[string]scored)
	for _, w := range sources {
		for _, c := range w.metrics {
			prev, ok := best[c.Entry.CanonicalID]
			if !ok || c.Quality() > prev.cand.Quality() {
				best[c.Entry.CanonicalID] = scored{cand: c, win: w}
			}
		}
	}

	if len(best) == 0 {
		return kg.Candidate{}, nil, &NoMetricError{Suggestions: metricSuggestions(all)}
	}

	top := 0.0
	for _, s := range best {
		if q := s.cand.Quality(); q > top {
			top = q
		}
	}
	var winners []scored
	for _, s := range best {
		if s.cand.Quality() == top {
			winners = append(winners, s)
		}
	}
	sort.Slice(winners, func(i, j int) bool {
		return winners[i].cand.Entry.CanonicalID < winners[j].cand.Entry.CanonicalID
	})

	if len(winners) > 1 {
		entries := make([]*kg.Entry, len(winners))
		for i, s := range winners {
			entries[i] = s.cand.Entry
		}
		return kg.Candidate{}, nil, &AmbiguousMetricError{Candidates: entries}
	}
	return winners[0].cand, winners[0].win, nil
}

func metricSuggestions(windows []*window) []string {
	seen := make(map[string]bool)
	var names []string
	for _, w := range windows {
		for _, c := range w.metrics {
			if !seen[c.Entry.Name] {
				seen[c.Entry.Name] = true
				names = append(names, c.Entry.Name)
			}
		}
	}
	sort.Strings(names)
	if len(names) > 3 {
		names = names[:3]
	}
	return names
}

// matchWindows looks up every 1..maxWindow token n-gram in both categories
// and keeps the windows that matched anything.
func matchWindows(snap *kg.Snapshot, tokens []string) []*window {
	var out []*window
	for n := maxWindow; n >= 1; n-- {
		for i := 0; i+n <= len(tokens); i++ {
			term := strings.Join(tokens[i:i+n], " ")
			w := &window{
				start:   i,
				length:  n,
				term:    term,
				metrics: snap.Lookup(term, kg.CategoryMetric),
				dims:    snap.Lookup(term, kg.CategoryDimension),
			}
			if len(w.metrics) > 0 || len(w.dims) > 0 {
				out = append(out, w)
			}
		}
	}
	return out
}

// claimWindows resolves overlaps: windows are granted tokens in order of
// match quality, then width, then position, so an exact short match is never
// shadowed by a fuzzy wider one.
func claimWindows(windows []*window, tokenCount int) []*window {
	sort.SliceStable(windows, func(i, j int) bool {
		if windows[i].quality() != windows[j].quality() {
			return windows[i].quality() > windows[j].quality()
		}
		if windows[i].length != windows[j].length {
			return windows[i].length > windows[j].length
		}
		return windows[i].start < windows[j].start
	})

	claimed := make([]bool, tokenCount)
	var kept []*window
	for _, w := range windows {
		free := true
		for i := w.start; i < w.start+w.length; i++ {
			if claimed[i] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for i := w.start; i < w.start+w.length; i++ {
			claimed[i] = true
		}
		kept = append(kept, w)
	}

	// Restore text order so dimension filters keep insertion order.
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}
