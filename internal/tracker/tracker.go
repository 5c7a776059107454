// Package tracker records how often each search term is used and serves the
// most popular terms. It is best-effort telemetry: every error is returned
// wrapped in domain.ErrTelemetryFailure for the caller to log and drop, and
// nothing is retried.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"moviefinder/internal/domain"
	"moviefinder/internal/domain/ports"
	"moviefinder/internal/metrics"
	"moviefinder/internal/telemetry"
)

type Tracker struct {
	store          ports.CounterStore
	atomic         ports.AtomicCounterStore
	posterFallback string
	logger         *slog.Logger
	tracer         trace.Tracer
	readTimeout    time.Duration
	trending       singleflight.Group
}

const defaultReadTimeout = 5 * time.Second

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithPosterFallback sets the value stored when a movie has no poster.
func WithPosterFallback(fallback string) Option {
	return func(t *Tracker) {
		if fallback != "" {
			t.posterFallback = fallback
		}
	}
}

// WithReadTimeout bounds the shared store read behind Trending.
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Tracker) {
		if timeout > 0 {
			t.readTimeout = timeout
		}
	}
}

// WithoutAtomicUpsert forces lookup-then-branch even when the store offers
// an atomic primitive.
func WithoutAtomicUpsert() Option {
	return func(t *Tracker) {
		t.atomic = nil
	}
}

func New(store ports.CounterStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:          store,
		posterFallback: domain.DefaultPosterFallback,
		logger:         slog.Default(),
		tracer:         otel.Tracer("moviefinder/tracker"),
		readTimeout:    defaultReadTimeout,
	}
	if atomicStore, ok := store.(ports.AtomicCounterStore); ok {
		t.atomic = atomicStore
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Atomic reports whether RecordSearch uses the store's native upsert.
func (t *Tracker) Atomic() bool {
	return t.atomic != nil
}

// RecordSearch counts one observation of searchTerm and stores movie as the
// term's current top result. movieId and posterUrl are overwritten on every
// observation, not only on creation.
//
// Without an atomic store this is a read followed by a separate write. Two
// truly concurrent callers for the same term can both create a record or both
// write the same count+1; that loss is accepted.
func (t *Tracker) RecordSearch(ctx context.Context, searchTerm string, movie domain.MovieSummary) error {
	ctx, span := t.tracer.Start(ctx, "tracker.RecordSearch", trace.WithAttributes(
		attribute.Int("movie.id", movie.ID),
		attribute.Bool("tracker.atomic", t.atomic != nil),
	))
	defer span.End()

	write := domain.CounterWrite{
		SearchTerm: searchTerm,
		MovieID:    movie.ID,
		PosterURL:  domain.PosterURL(movie.PosterPath, t.posterFallback),
	}

	rec, outcome, err := t.upsert(ctx, write)
	if err != nil {
		metrics.TrackerWritesTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "record search failed")
		return domain.WrapTelemetry(err)
	}
	metrics.TrackerWritesTotal.WithLabelValues(string(outcome)).Inc()
	span.SetAttributes(
		attribute.String("tracker.outcome", string(outcome)),
		attribute.Int64("tracker.count", rec.Count),
	)
	t.logger.Debug("search counter recorded",
		slog.String("searchTerm", telemetry.Truncate(searchTerm, 80)),
		slog.String("outcome", string(outcome)),
		slog.Int64("count", rec.Count),
	)
	return nil
}

func (t *Tracker) upsert(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, domain.UpsertOutcome, error) {
	if t.atomic != nil {
		return t.atomic.IncrementOrCreate(ctx, write)
	}

	existing, err := t.store.FindByTerm(ctx, write.SearchTerm)
	switch {
	case err == nil:
		count := existing.Count + 1
		if err := t.store.Update(ctx, existing.ID, count, write); err != nil {
			return domain.SearchCounter{}, "", err
		}
		existing.Count = count
		existing.MovieID = write.MovieID
		existing.PosterURL = write.PosterURL
		return existing, domain.UpsertIncremented, nil
	case errors.Is(err, domain.ErrNotFound):
		created, err := t.store.Create(ctx, write)
		if err != nil {
			return domain.SearchCounter{}, "", err
		}
		return created, domain.UpsertCreated, nil
	default:
		return domain.SearchCounter{}, "", err
	}
}

// Trending returns at most limit records by count descending. Order among
// equal counts is whatever the store yields. On failure the slice is empty,
// never nil, and the error wraps domain.ErrTelemetryFailure.
//
// Concurrent calls for the same limit share one store read. That read is
// detached from the caller that started it and bounded by the read timeout,
// so a caller that goes away only abandons its own wait.
func (t *Tracker) Trending(ctx context.Context, limit int) ([]domain.SearchCounter, error) {
	limit = domain.ClampTrendingLimit(limit)

	readCtx := context.WithoutCancel(ctx)
	ch := t.trending.DoChan(strconv.Itoa(limit), func() (any, error) {
		ctx, cancel := context.WithTimeout(readCtx, t.readTimeout)
		defer cancel()
		ctx, span := t.tracer.Start(ctx, "tracker.Trending", trace.WithAttributes(attribute.Int("limit", limit)))
		defer span.End()

		records, err := t.store.ListTop(ctx, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "trending read failed")
			return nil, err
		}
		return records, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		metrics.TrackerTrendingReadsTotal.WithLabelValues("abandoned").Inc()
		return []domain.SearchCounter{}, domain.WrapTelemetry(ctx.Err())
	}
	if res.Err != nil {
		metrics.TrackerTrendingReadsTotal.WithLabelValues("failed").Inc()
		return []domain.SearchCounter{}, domain.WrapTelemetry(res.Err)
	}
	metrics.TrackerTrendingReadsTotal.WithLabelValues("ok").Inc()

	shared, _ := res.Val.([]domain.SearchCounter)
	// Callers of a shared flight must not alias each other's slice.
	records := make([]domain.SearchCounter, 0, min(len(shared), limit))
	for _, rec := range shared {
		if len(records) == limit {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping checks that the backing store is reachable.
func (t *Tracker) Ping(ctx context.Context) error {
	if err := t.store.Ping(ctx); err != nil {
		return domain.WrapTelemetry(err)
	}
	return nil
}
