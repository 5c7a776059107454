package domain

import "time"

// SearchCounter is the persisted popularity record for one search term.
// SearchTerm is the natural key and is stored byte-exact.
type SearchCounter struct {
	ID         string    `json:"id"`
	SearchTerm string    `json:"searchTerm"`
	Count      int64     `json:"count"`
	MovieID    int       `json:"movieId"`
	PosterURL  string    `json:"posterUrl"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// CounterWrite carries the fields written on every observation of a term.
type CounterWrite struct {
	SearchTerm string
	MovieID    int
	PosterURL  string
}

// UpsertOutcome reports which branch an increment-or-create took.
type UpsertOutcome string

const (
	UpsertCreated     UpsertOutcome = "created"
	UpsertIncremented UpsertOutcome = "incremented"
)

const (
	DefaultTrendingLimit = 5
	MaxTrendingLimit     = 100
)

// ClampTrendingLimit maps non-positive limits to the default and caps large ones.
func ClampTrendingLimit(limit int) int {
	if limit <= 0 {
		return DefaultTrendingLimit
	}
	if limit > MaxTrendingLimit {
		return MaxTrendingLimit
	}
	return limit
}
