// Package memstore keeps formulation records in process memory.
// It backs STORE_DRIVER=memory for local development and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/formulations/internal/core"
)

// Store is a concurrency-safe in-memory core.RecordStore.
type Store struct {
	mu      sync.RWMutex
	records map[string]core.Record // keyed by CURP
	order   []string               // CURPs in insertion order
}

var (
	_ core.RecordStore = (*Store)(nil)
	_ core.Pinger      = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]core.Record)}
}

// InsertMany adds every record whose CURP is not yet stored.
func (s *Store) InsertMany(_ context.Context, records []core.Record, policy core.UpsertPolicy) (core.WriteResult, error) {
	if policy != core.InsertOnly {
		return core.WriteResult{}, core.ErrUnsupportedPolicy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res core.WriteResult
	for _, rec := range records {
		if _, exists := s.records[rec.CURP]; exists {
			res.Skipped++
			continue
		}
		s.insertLocked(rec)
		res.Inserted++
	}
	return res, nil
}

// Create inserts rec, failing with core.ErrDuplicateKey if its CURP exists.
func (s *Store) Create(_ context.Context, rec core.Record) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.CURP]; exists {
		return core.Record{}, core.ErrDuplicateKey
	}
	return s.insertLocked(rec), nil
}

func (s *Store) insertLocked(rec core.Record) core.Record {
	rec.ID = uuid.NewString()
	if rec.Fulfilled != nil {
		rec.Fulfilled = append([]string{}, rec.Fulfilled...)
	}
	s.records[rec.CURP] = rec
	s.order = append(s.order, rec.CURP)
	return rec
}

// Exists reports whether curp is stored.
func (s *Store) Exists(_ context.Context, curp string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[curp]
	return ok, nil
}

// List returns all records, newest first. Records with the same timestamp
// are returned most recently inserted first.
func (s *Store) List(_ context.Context) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Record, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.records[s.order[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Get returns the record stored for curp.
func (s *Store) Get(curp string) (core.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[curp]
	return rec, ok
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}
