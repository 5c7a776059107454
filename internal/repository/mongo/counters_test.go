package mongo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFromDoc(t *testing.T) {
	oid := primitive.NewObjectID()
	now := time.Now().UTC()
	doc := counterDoc{
		ID:         oid,
		SearchTerm: "batman",
		Count:      3,
		MovieID:    414906,
		PosterURL:  "https://image.tmdb.org/t/p/w500/abc.jpg",
		CreatedAt:  now.Unix() - 60,
		UpdatedAt:  now.Unix(),
	}

	rec := fromDoc(doc)

	if rec.ID != oid.Hex() {
		t.Errorf("ID: expected %q, got %q", oid.Hex(), rec.ID)
	}
	if rec.SearchTerm != "batman" {
		t.Errorf("SearchTerm: expected 'batman', got %q", rec.SearchTerm)
	}
	if rec.Count != 3 {
		t.Errorf("Count: expected 3, got %d", rec.Count)
	}
	if rec.MovieID != 414906 {
		t.Errorf("MovieID: expected 414906, got %d", rec.MovieID)
	}
	if rec.PosterURL != doc.PosterURL {
		t.Errorf("PosterURL: expected %q, got %q", doc.PosterURL, rec.PosterURL)
	}
	if !rec.UpdatedAt.Equal(time.Unix(now.Unix(), 0).UTC()) {
		t.Errorf("UpdatedAt: expected %v, got %v", time.Unix(now.Unix(), 0).UTC(), rec.UpdatedAt)
	}
}

func TestFromDoc_ZeroValues(t *testing.T) {
	rec := fromDoc(counterDoc{SearchTerm: "x"})
	if rec.ID != "" {
		t.Errorf("expected empty ID for zero ObjectID, got %q", rec.ID)
	}
	if !rec.UpdatedAt.IsZero() {
		t.Errorf("expected zero UpdatedAt, got %v", rec.UpdatedAt)
	}
}

func TestEnsureIndexesOnWriteRetriesAfterStartupFailure(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	attempts := 0
	failing := true
	repo := &CounterRepository{
		now:    func() time.Time { return clock },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		createIndexes: func(context.Context) error {
			attempts++
			if failing {
				return errors.New("server selection timeout")
			}
			return nil
		},
	}
	ctx := context.Background()

	if err := repo.EnsureIndexes(ctx); err == nil {
		t.Fatal("expected startup index failure")
	}

	repo.ensureIndexesOnWrite(ctx)
	if attempts != 2 {
		t.Fatalf("first write: expected an index attempt, got %d attempts", attempts)
	}

	clock = clock.Add(10 * time.Second)
	repo.ensureIndexesOnWrite(ctx)
	if attempts != 2 {
		t.Fatalf("write within retry interval attempted indexes again (%d attempts)", attempts)
	}

	failing = false
	clock = clock.Add(indexRetryInterval)
	repo.ensureIndexesOnWrite(ctx)
	if attempts != 3 {
		t.Fatalf("write after retry interval: expected 3 attempts, got %d", attempts)
	}

	clock = clock.Add(2 * indexRetryInterval)
	repo.ensureIndexesOnWrite(ctx)
	if attempts != 3 {
		t.Fatalf("indexes were created, expected no further attempts, got %d", attempts)
	}
}
