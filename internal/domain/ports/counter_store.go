package ports

import (
	"context"

	"moviefinder/internal/domain"
)

// CounterStore is the list/create/update contract every backend offers.
// FindByTerm returns domain.ErrNotFound when no record exists.
type CounterStore interface {
	FindByTerm(ctx context.Context, searchTerm string) (domain.SearchCounter, error)
	Create(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, error)
	Update(ctx context.Context, id string, count int64, write domain.CounterWrite) error
	ListTop(ctx context.Context, limit int) ([]domain.SearchCounter, error)
	Ping(ctx context.Context) error
}

// AtomicCounterStore is implemented by backends with a native
// increment-or-create primitive. The tracker prefers it when present.
type AtomicCounterStore interface {
	CounterStore
	IncrementOrCreate(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, domain.UpsertOutcome, error)
}
