package kg

import (
	"sort"
	"strings"
)

// minFuzzyLen is the shortest term considered for substring matching; shorter
// terms produce too many accidental hits.
const minFuzzyLen = 3

// Snapshot is an immutable index over the knowledge graph. In-flight
// resolutions hold a snapshot reference, so a concurrent reload never changes
// what they observe.
type Snapshot struct {
	entries    []Entry
	byCategory map[Category][]*Entry
	byName     map[Category]map[string]*Entry
	byAlias    map[Category]map[string]*Entry
}

func newSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{
		entries:    entries,
		byCategory: make(map[Category][]*Entry),
		byName:     make(map[Category]map[string]*Entry),
		byAlias:    make(map[Category]map[string]*Entry),
	}
	for i := range entries {
		e := &entries[i]
		s.byCategory[e.Category] = append(s.byCategory[e.Category], e)
		if s.byName[e.Category] == nil {
			s.byName[e.Category] = make(map[string]*Entry)
			s.byAlias[e.Category] = make(map[string]*Entry)
		}
		s.byName[e.Category][strings.ToLower(e.Name)] = e
		for _, a := range e.Aliases {
			s.byAlias[e.Category][strings.ToLower(a)] = e
		}
	}
	return s
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }

// Entries returns a copy of all entries.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup returns candidates for a term within a category, ranked exact name
// match > alias match > fuzzy substring match. The result is empty when
// nothing matches. Candidates of equal kind are ordered by canonical id so
// repeated lookups are deterministic.
func (s *Snapshot) Lookup(term string, cat Category) []Candidate {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	var out []Candidate
	matched := make(map[string]bool)

	if e, ok := s.byName[cat][term]; ok {
		out = append(out, Candidate{Entry: e, Kind: MatchExact})
		matched[e.CanonicalID] = true
	}
	if e, ok := s.byAlias[cat][term]; ok && !matched[e.CanonicalID] {
		out = append(out, Candidate{Entry: e, Kind: MatchAlias})
		matched[e.CanonicalID] = true
	}

	if len(term) >= minFuzzyLen {
		var fuzzy []Candidate
		for _, e := range s.byCategory[cat] {
			if matched[e.CanonicalID] {
				continue
			}
			if fuzzyMatches(term, e) {
				fuzzy = append(fuzzy, Candidate{Entry: e, Kind: MatchFuzzy})
				matched[e.CanonicalID] = true
			}
		}
		sort.Slice(fuzzy, func(i, j int) bool {
			return fuzzy[i].Entry.CanonicalID < fuzzy[j].Entry.CanonicalID
		})
		out = append(out, fuzzy...)
	}

	return out
}

func fuzzyMatches(term string, e *Entry) bool {
	name := strings.ToLower(e.Name)
	if strings.Contains(name, term) || strings.Contains(term, name) {
		return true
	}
	for _, a := range e.Aliases {
		alias := strings.ToLower(a)
		if len(alias) >= minFuzzyLen &&
			(strings.Contains(alias, term) || strings.Contains(term, alias)) {
			return true
		}
	}
	return false
}
