package resolver

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/newsense-analyst/series"
)

var (
	isoDateRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	lastNRe    = regexp.MustCompile(`(?:last|past)\s+(\d+)\s+(day|week|month|year)s?`)
	latestRe   = regexp.MustCompile(`\b(latest|most recent|current value|right now)\b`)
	rangePairRe = regexp.MustCompile(`(?:from|between)\s+(\d{4}-\d{2}-\d{2})\s+(?:to|and|until)\s+(\d{4}-\d{2}-\d{2})`)
)

// fixed relative phrases, checked in order so longer phrases win.
var relativePhrases = []string{
	"year to date", "last week", "this week", "last month", "this month",
	"last year", "this year", "yesterday", "today",
}

// extractTimeRange pulls a time range out of the question text. It returns
// the range, whether the user asked for the latest value, the question with
// the recognized phrase removed, and whether the range was explicit in the
// question (false means the configured recency window was applied).
func extractTimeRange(text string, now time.Time, recency time.Duration) (series.TimeRange, bool, string, bool) {
	lower := strings.ToLower(text)
	latest := false

	if m := latestRe.FindString(lower); m != "" {
		latest = true
		lower = strings.Replace(lower, m, " ", 1)
	}

	if m := rangePairRe.FindStringSubmatch(lower); m != nil {
		start, err1 := time.ParseInLocation("2006-01-02", m[1], now.Location())
		end, err2 := time.ParseInLocation("2006-01-02", m[2], now.Location())
		if err1 == nil && err2 == nil {
			if end.Before(start) {
				start, end = end, start
			}
			lower = strings.Replace(lower, m[0], " ", 1)
			return series.TimeRange{Start: start, End: endOfDay(end)}, latest, lower, true
		}
	}

	if dates := isoDateRe.FindAllString(lower, 2); len(dates) > 0 {
		start, err := time.ParseInLocation("2006-01-02", dates[0], now.Location())
		if err == nil {
			end := start
			if len(dates) == 2 {
				if e, err := time.ParseInLocation("2006-01-02", dates[1], now.Location()); err == nil {
					end = e
				}
			}
			if end.Before(start) {
				start, end = end, start
			}
			for _, d := range dates {
				lower = strings.Replace(lower, d, " ", 1)
			}
			return series.TimeRange{Start: start, End: endOfDay(end)}, latest, lower, true
		}
	}

	if m := lastNRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		var start time.Time
		switch m[2] {
		case "day":
			start = now.AddDate(0, 0, -n)
		case "week":
			start = now.AddDate(0, 0, -7*n)
		case "month":
			start = now.AddDate(0, -n, 0)
		case "year":
			start = now.AddDate(-n, 0, 0)
		}
		lower = strings.Replace(lower, m[0], " ", 1)
		return series.TimeRange{Start: startOfDay(start), End: now}, latest, lower, true
	}

	for _, phrase := range relativePhrases {
		if !strings.Contains(lower, phrase) {
			continue
		}
		lower = strings.Replace(lower, phrase, " ", 1)
		tr := resolvePhrase(phrase, now)
		return tr, latest, lower, true
	}

	if latest {
		return series.TimeRange{Start: now.Add(-24 * time.Hour), End: now}, true, lower, true
	}

	return series.TimeRange{Start: startOfDay(now.Add(-recency)), End: now}, false, lower, false
}

func resolvePhrase(phrase string, now time.Time) series.TimeRange {
	switch phrase {
	case "today":
		return series.TimeRange{Start: startOfDay(now), End: now}
	case "yesterday":
		y := now.AddDate(0, 0, -1)
		return series.TimeRange{Start: startOfDay(y), End: endOfDay(y)}
	case "last week":
		return series.TimeRange{Start: startOfDay(now.AddDate(0, 0, -7)), End: now}
	case "this week":
		// Monday-based week start.
		offset := (int(now.Weekday()) + 6) % 7
		return series.TimeRange{Start: startOfDay(now.AddDate(0, 0, -offset)), End: now}
	case "last month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		prev := first.AddDate(0, -1, 0)
		return series.TimeRange{Start: prev, End: first.Add(-time.Second)}
	case "this month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return series.TimeRange{Start: first, End: now}
	case "last year":
		start := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
		end := time.Date(now.Year()-1, 12, 31, 23, 59, 59, 0, now.Location())
		return series.TimeRange{Start: start, End: end}
	case "this year", "year to date":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return series.TimeRange{Start: start, End: now}
	}
	return series.TimeRange{Start: startOfDay(now), End: now}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
