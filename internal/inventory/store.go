package inventory

import (
	"sync"
	"time"

	"github.com/FranksOps/endpoints/internal/endpoint"
)

// Store maps canonical endpoint URLs to their aggregate records. Upsert is
// the only mutation besides Clear. Reads hand out copies, so callers never
// observe a record changing under them.
type Store struct {
	mu      sync.RWMutex
	records map[string]*endpoint.Record
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for first/last-seen timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*endpoint.Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates the record for endpointURL with a count of 1, or bumps the
// count and last-seen time of the existing one. Host and sourceURL are only
// stored on creation. It returns the record after the change.
func (s *Store) Upsert(endpointURL, host, sourceURL string) endpoint.Record {
	nowMS := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[endpointURL]
	if !ok {
		rec = &endpoint.Record{
			EndpointURL: endpointURL,
			Host:        host,
			SourceURL:   sourceURL,
			Count:       1,
			FirstSeenAt: nowMS,
			LastSeenAt:  nowMS,
		}
		s.records[endpointURL] = rec
		return *rec
	}

	rec.Count++
	// wall clocks can step backwards
	if nowMS > rec.LastSeenAt {
		rec.LastSeenAt = nowMS
	}
	return *rec
}

// Get returns the record for endpointURL.
func (s *Store) Get(endpointURL string) (endpoint.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[endpointURL]
	if !ok {
		return endpoint.Record{}, false
	}
	return *rec, true
}

// All returns a snapshot of every record in no particular order.
func (s *Store) All() []endpoint.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]endpoint.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

// Len returns the number of distinct endpoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear discards every record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*endpoint.Record)
}
