package kg

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Required source columns, in no particular order. dimension_key is optional.
var requiredColumns = []string{
	"entity_name", "category", "canonical_id", "aliases", "visualization_hint",
}

// aliasSeparator splits the aliases cell into individual aliases.
const aliasSeparator = ";"

// RowError describes one malformed source row.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// LoadError reports why a knowledge graph source could not be loaded. Every
// malformed row is reported individually rather than silently skipped.
type LoadError struct {
	Rows []RowError
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("knowledge graph load failed: %v", e.Err)
	}
	reasons := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		reasons = append(reasons, r.String())
	}
	return fmt.Sprintf("knowledge graph load failed: %d malformed row(s): %s",
		len(e.Rows), strings.Join(reasons, "; "))
}

func (e *LoadError) Unwrap() error { return e.Err }

// Parse reads a CSV knowledge graph source and builds an immutable snapshot.
// It fails with a *LoadError when required columns are missing, any row is
// malformed, a canonical id is duplicated within a category, or an alias
// collides across canonical ids within a category.
func Parse(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("reading header: %w", err)}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, &LoadError{Err: fmt.Errorf("missing required column %q", name)}
		}
	}
	dimKeyCol, hasDimKey := cols["dimension_key"]

	var (
		entries  []Entry
		rowErrs  []RowError
		seenID   = make(map[Category]map[string]int)  // canonical id -> line
		aliasFor = make(map[Category]map[string]string) // alias -> canonical id
	)

	line := 1
	for {
		row, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: err.Error()})
			continue
		}

		cell := func(name string) string {
			return strings.TrimSpace(row[cols[name]])
		}

		e := Entry{
			Name:        cell("entity_name"),
			Category:    Category(strings.ToLower(cell("category"))),
			CanonicalID: cell("canonical_id"),
			VizHint:     VizHint(strings.ToLower(cell("visualization_hint"))),
		}
		if hasDimKey && dimKeyCol < len(row) {
			e.DimensionKey = strings.ToLower(strings.TrimSpace(row[dimKeyCol]))
		}
		if raw := cell("aliases"); raw != "" {
			for _, a := range strings.Split(raw, aliasSeparator) {
				if a = strings.TrimSpace(a); a != "" {
					e.Aliases = append(e.Aliases, a)
				}
			}
		}

		switch {
		case e.Name == "":
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "empty entity_name"})
			continue
		case e.CanonicalID == "":
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "empty canonical_id"})
			continue
		case !ValidCategory(e.Category):
			rowErrs = append(rowErrs, RowError{Line: line,
				Reason: fmt.Sprintf("unknown category %q", e.Category)})
			continue
		}
		if e.VizHint == "" {
			e.VizHint = VizLine
		}
		if !ValidVizHint(e.VizHint) {
			rowErrs = append(rowErrs, RowError{Line: line,
				Reason: fmt.Sprintf("unknown visualization_hint %q", e.VizHint)})
			continue
		}

		if seenID[e.Category] == nil {
			seenID[e.Category] = make(map[string]int)
			aliasFor[e.Category] = make(map[string]string)
		}
		if prev, dup := seenID[e.Category][e.CanonicalID]; dup {
			rowErrs = append(rowErrs, RowError{Line: line,
				Reason: fmt.Sprintf("duplicate canonical_id %q in category %q (first seen on line %d)",
					e.CanonicalID, e.Category, prev)})
			continue
		}
		seenID[e.Category][e.CanonicalID] = line

		collided := false
		for _, a := range append([]string{e.Name}, e.Aliases...) {
			key := strings.ToLower(a)
			if owner, ok := aliasFor[e.Category][key]; ok && owner != e.CanonicalID {
				rowErrs = append(rowErrs, RowError{Line: line,
					Reason: fmt.Sprintf("alias %q collides with canonical_id %q in category %q",
						a, owner, e.Category)})
				collided = true
				break
			}
		}
		if collided {
			continue
		}
		for _, a := range append([]string{e.Name}, e.Aliases...) {
			aliasFor[e.Category][strings.ToLower(a)] = e.CanonicalID
		}

		entries = append(entries, e)
	}

	if len(rowErrs) > 0 {
		return nil, &LoadError{Rows: rowErrs}
	}
	return newSnapshot(entries), nil
}
