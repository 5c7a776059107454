package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"moviefinder/internal/domain"
)

// Store keeps search counters in process memory. It implements both the
// plain and the atomic counter store contracts; all operations hold mu.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*domain.SearchCounter
	byTerm  map[string]string
	order   []string
	now     func() time.Time
	pingErr error
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byID:   make(map[string]*domain.SearchCounter),
		byTerm: make(map[string]string),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) FindByTerm(ctx context.Context, searchTerm string) (domain.SearchCounter, error) {
	if err := ctx.Err(); err != nil {
		return domain.SearchCounter{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTerm[searchTerm]
	if !ok {
		return domain.SearchCounter{}, domain.ErrNotFound
	}
	return *s.byID[id], nil
}

// Create inserts a new record with count 1. Like a document store without a
// unique constraint, it does not reject a second record for the same term;
// FindByTerm keeps returning the first one.
func (s *Store) Create(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, error) {
	if err := ctx.Err(); err != nil {
		return domain.SearchCounter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(write), nil
}

func (s *Store) Update(ctx context.Context, id string, count int64, write domain.CounterWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Count = count
	rec.MovieID = write.MovieID
	rec.PosterURL = write.PosterURL
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) IncrementOrCreate(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, domain.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.SearchCounter{}, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTerm[write.SearchTerm]; ok {
		rec := s.byID[id]
		rec.Count++
		rec.MovieID = write.MovieID
		rec.PosterURL = write.PosterURL
		rec.UpdatedAt = s.now().UTC()
		return *rec, domain.UpsertIncremented, nil
	}
	return s.insertLocked(write), domain.UpsertCreated, nil
}

// ListTop orders by count descending; equal counts keep insertion order.
func (s *Store) ListTop(ctx context.Context, limit int) ([]domain.SearchCounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	records := make([]domain.SearchCounter, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, *s.byID[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Count > records[j].Count
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

// SetPingError makes Ping report err until cleared with nil.
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

// Len returns the number of stored records, duplicates included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) insertLocked(write domain.CounterWrite) domain.SearchCounter {
	rec := &domain.SearchCounter{
		ID:         uuid.NewString(),
		SearchTerm: write.SearchTerm,
		Count:      1,
		MovieID:    write.MovieID,
		PosterURL:  write.PosterURL,
		UpdatedAt:  s.now().UTC(),
	}
	s.byID[rec.ID] = rec
	if _, exists := s.byTerm[write.SearchTerm]; !exists {
		s.byTerm[write.SearchTerm] = rec.ID
	}
	s.order = append(s.order, rec.ID)
	return *rec
}
