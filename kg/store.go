package kg

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Store holds the active knowledge graph snapshot. Reload builds a fresh
// snapshot and swaps the pointer atomically; readers that already took a
// snapshot keep resolving against it and never observe a half-updated index.
type Store struct {
	snap     atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
}

// NewStore creates a store around an existing snapshot.
func NewStore(snap *Snapshot) *Store {
	s := &Store{}
	s.snap.Store(snap)
	return s
}

// Load reads a knowledge graph source and returns a store holding it.
func Load(r io.Reader) (*Store, error) {
	snap, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return NewStore(snap), nil
}

// LoadFile loads a knowledge graph from a CSV file.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()
	return Load(f)
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Reload parses the source and atomically replaces the active snapshot.
// On a parse error the previous snapshot stays in place.
func (s *Store) Reload(r io.Reader) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := Parse(r)
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	return nil
}

// ReloadFile reloads the store from a CSV file.
func (s *Store) ReloadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &LoadError{Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()
	return s.Reload(f)
}
