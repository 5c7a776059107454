package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"moviefinder/internal/domain"
	"moviefinder/internal/telemetry"
)

type MovieClient interface {
	FetchMovies(ctx context.Context, query string) ([]domain.MovieSummary, error)
}

type Tracker interface {
	RecordSearch(ctx context.Context, searchTerm string, movie domain.MovieSummary) error
	Trending(ctx context.Context, limit int) ([]domain.SearchCounter, error)
}

const defaultTrackTimeout = 5 * time.Second

type Service struct {
	movies         MovieClient
	tracker        Tracker
	logger         *slog.Logger
	trackTimeout   time.Duration
	posterFallback string
	inflight       sync.WaitGroup
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTrackTimeout bounds each background tracking write.
func WithTrackTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.trackTimeout = timeout
		}
	}
}

func WithPosterFallback(fallback string) ServiceOption {
	return func(s *Service) {
		if fallback != "" {
			s.posterFallback = fallback
		}
	}
}

func NewService(movies MovieClient, tracker Tracker, opts ...ServiceOption) *Service {
	s := &Service{
		movies:         movies,
		tracker:        tracker,
		logger:         slog.Default(),
		trackTimeout:   defaultTrackTimeout,
		posterFallback: domain.DefaultPosterFallback,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Search runs one fetch for query. An empty result set is a successful
// no_results state, not an error. Only fetch failures are returned. After a
// successful non-empty query the top result is handed to the tracker in the
// background; the search never waits for or fails because of it.
func (s *Service) Search(ctx context.Context, query string) (domain.SearchResult, error) {
	movies, err := s.movies.FetchMovies(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrNoResults) {
			return domain.SearchResult{
				Query:   query,
				State:   domain.SearchStateNoResults,
				Message: domain.NoResultsMessage,
				Items:   []domain.MovieResult{},
			}, nil
		}
		return domain.SearchResult{Query: query, Items: []domain.MovieResult{}}, domain.WrapFetch(err)
	}

	if query != "" && len(movies) > 0 {
		s.track(ctx, query, movies[0])
	}

	items := make([]domain.MovieResult, 0, len(movies))
	for _, movie := range movies {
		items = append(items, domain.MovieResult{
			MovieSummary: movie,
			PosterURL:    domain.PosterURL(movie.PosterPath, s.posterFallback),
			Year:         movie.Year(),
		})
	}
	return domain.SearchResult{Query: query, State: domain.SearchStateOK, Items: items}, nil
}

func (s *Service) track(ctx context.Context, query string, movie domain.MovieSummary) {
	if s.tracker == nil {
		return
	}
	// Detached from the request: a finished or cancelled search must not
	// cancel the write.
	trackCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(trackCtx, s.trackTimeout)
		defer cancel()
		if err := s.tracker.RecordSearch(ctx, query, movie); err != nil {
			s.logger.Warn("search tracking failed",
				slog.String("query", telemetry.Truncate(query, 80)),
				slog.Int("movieId", movie.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Trending never fails from the caller's point of view: errors are logged
// and an empty list is returned.
func (s *Service) Trending(ctx context.Context, limit int) []domain.SearchCounter {
	if s.tracker == nil {
		return []domain.SearchCounter{}
	}
	records, err := s.tracker.Trending(ctx, limit)
	if err != nil {
		s.logger.Warn("trending read failed", slog.String("error", err.Error()))
		return []domain.SearchCounter{}
	}
	if records == nil {
		return []domain.SearchCounter{}
	}
	return records
}

// Wait blocks until background tracking writes finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
