package newsense

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/newsense-analyst/series"
)

// Conversion rescales a reported unit into the canonical unit.
type Conversion struct {
	To     string  `json:"to" mapstructure:"to"`
	Factor float64 `json:"factor" mapstructure:"factor"`
}

// UnitTable maps lowercased reported units to their canonical conversion.
// Units absent from the table are flagged as warnings, never silently dropped.
type UnitTable map[string]Conversion

// DefaultUnitTable covers the unit variants the provider is known to report.
func DefaultUnitTable() UnitTable {
	return UnitTable{
		"kw":  {To: "w", Factor: 1000},
		"mw":  {To: "w", Factor: 1e6},
		"kwh": {To: "wh", Factor: 1000},
		"mwh": {To: "wh", Factor: 1e6},
		"w":   {To: "w", Factor: 1},
		"wh":  {To: "wh", Factor: 1},
	}
}

// normalizePage reconciles one raw page into NormalizedRecords. Field names
// vary across payload variants (ts/timestamp, value-as-string, point-level or
// page-level unit); everything is mapped onto the canonical shape here.
func normalizePage(page *SeriesPage, metricID string, filters map[string]string, units UnitTable) ([]series.Record, []string) {
	raw := page.Points
	if len(raw) == 0 && len(page.Data) > 0 {
		if pts, ok := page.Data[metricID]; ok {
			raw = pts
		} else {
			// Legacy shape keyed by a provider-side name; take the only key.
			for _, pts := range page.Data {
				raw = pts
				break
			}
		}
	}

	var (
		records      []series.Record
		warnings     []string
		unknownUnits = make(map[string]bool)
		malformed    int
	)

	for _, msg := range raw {
		var fields map[string]any
		if err := json.Unmarshal(msg, &fields); err != nil {
			malformed++
			continue
		}

		ts, ok := pointTimestamp(fields)
		if !ok {
			malformed++
			continue
		}
		value, ok := pointValue(fields)
		if !ok {
			malformed++
			continue
		}

		unit := pointUnit(fields, page.Unit)
		if unit != "" {
			if conv, known := units[strings.ToLower(unit)]; known {
				value *= conv.Factor
			} else if !unknownUnits[unit] {
				unknownUnits[unit] = true
				warnings = append(warnings,
					fmt.Sprintf("no unit conversion known for %q, values passed through unchanged", unit))
			}
		}

		dims := make(map[string]string, len(filters))
		for k, v := range filters {
			dims[k] = v
		}
		for k, v := range pointDimensions(fields) {
			dims[k] = v
		}

		records = append(records, series.Record{
			Timestamp:  ts,
			Dimensions: dims,
			Value:      value,
		})
	}

	if malformed > 0 {
		warnings = append(warnings,
			fmt.Sprintf("skipped %d malformed point(s) in response", malformed))
	}
	return records, warnings
}

func pointTimestamp(fields map[string]any) (time.Time, bool) {
	for _, key := range []string{"ts", "timestamp", "time"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return time.UnixMilli(int64(t)).UTC(), true
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed.UTC(), true
				}
			}
		}
	}
	return time.Time{}, false
}

func pointValue(fields map[string]any) (float64, bool) {
	for _, key := range []string{"value", "val", "v"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}

func pointUnit(fields map[string]any, fallback string) string {
	if u, ok := fields["unit"].(string); ok && u != "" {
		return u
	}
	return fallback
}

func pointDimensions(fields map[string]any) map[string]string {
	for _, key := range []string{"dims", "dimensions"} {
		raw, ok := fields[key].(map[string]any)
		if !ok {
			continue
		}
		dims := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				dims[k] = s
			}
		}
		return dims
	}
	return nil
}
