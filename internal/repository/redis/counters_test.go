package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"moviefinder/internal/domain"
)

func TestFromHash(t *testing.T) {
	rec := fromHash("batman", 3, map[string]string{
		"id":        "abc",
		"movieId":   "414906",
		"posterUrl": "https://image.tmdb.org/t/p/w500/abc.jpg",
		"updatedAt": "1700000000",
	})
	if rec.ID != "abc" || rec.SearchTerm != "batman" || rec.Count != 3 || rec.MovieID != 414906 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.UpdatedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("UpdatedAt = %v", rec.UpdatedAt)
	}
}

func TestFromHashMissingFields(t *testing.T) {
	rec := fromHash("x", 1, map[string]string{"movieId": "nope"})
	if rec.MovieID != 0 || !rec.UpdatedAt.IsZero() || rec.ID != "" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     any
		want    int64
		wantErr bool
	}{
		{"4", 4, false},
		{"12.0", 12, false},
		{int64(7), 7, false},
		{float64(2), 2, false},
		{"abc", 0, true},
		{nil, 0, true},
	}
	for _, tt := range tests {
		got, err := parseScore(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseScore(%v) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseScore(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestMemberString(t *testing.T) {
	if got := memberString("a"); got != "a" {
		t.Fatalf("got %q", got)
	}
	if got := memberString([]byte("b")); got != "b" {
		t.Fatalf("got %q", got)
	}
	if got := memberString(12); got != "12" {
		t.Fatalf("got %q", got)
	}
}

// setupTestStore connects to Redis (REDIS_TEST_URL, default localhost) and
// returns a store under a unique key prefix. Skips when Redis is unreachable.
func setupTestStore(t *testing.T) *CounterStore {
	t.Helper()
	raw := os.Getenv("REDIS_TEST_URL")
	if raw == "" {
		raw = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		t.Fatalf("parse REDIS_TEST_URL: %v", err)
	}
	opts.DialTimeout = time.Second
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", raw, err)
	}

	prefix := fmt.Sprintf("moviefinder_test_%d:", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			_ = client.Del(ctx, iter.Val()).Err()
		}
		_ = client.Close()
	})
	return NewCounterStore(client, prefix)
}

func TestIntegration_IncrementOrCreate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec, outcome, err := store.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: "batman", MovieID: 414906, PosterURL: "p1"})
	if err != nil {
		t.Fatalf("IncrementOrCreate: %v", err)
	}
	if outcome != domain.UpsertCreated || rec.Count != 1 || rec.ID == "" {
		t.Fatalf("unexpected first upsert: %s %+v", outcome, rec)
	}
	firstID := rec.ID

	rec, outcome, err = store.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: "batman", MovieID: 268, PosterURL: "p2"})
	if err != nil {
		t.Fatalf("IncrementOrCreate: %v", err)
	}
	if outcome != domain.UpsertIncremented || rec.Count != 2 || rec.ID != firstID {
		t.Fatalf("unexpected second upsert: %s %+v", outcome, rec)
	}

	found, err := store.FindByTerm(ctx, "batman")
	if err != nil {
		t.Fatalf("FindByTerm: %v", err)
	}
	if found.Count != 2 || found.MovieID != 268 || found.PosterURL != "p2" || found.ID != firstID {
		t.Fatalf("unexpected stored record: %+v", found)
	}
}

func TestIntegration_CreateUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.FindByTerm(ctx, "dune"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	created, err := store.Create(ctx, domain.CounterWrite{SearchTerm: "dune", MovieID: 1, PosterURL: "a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Count != 1 || created.ID == "" {
		t.Fatalf("unexpected created record: %+v", created)
	}
	if err := store.Update(ctx, created.ID, 4, domain.CounterWrite{SearchTerm: "dune", MovieID: 2, PosterURL: "b"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := store.FindByTerm(ctx, "dune")
	if got.Count != 4 || got.MovieID != 2 || got.PosterURL != "b" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if err := store.Update(ctx, "missing", 1, domain.CounterWrite{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_ListTop(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	counts := map[string]int{"a": 1, "b": 5, "c": 3, "d": 2}
	for term, n := range counts {
		for i := 0; i < n; i++ {
			if _, _, err := store.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: term, MovieID: n}); err != nil {
				t.Fatalf("IncrementOrCreate: %v", err)
			}
		}
	}

	top, err := store.ListTop(ctx, 3)
	if err != nil {
		t.Fatalf("ListTop: %v", err)
	}
	want := []string{"b", "c", "d"}
	if len(top) != len(want) {
		t.Fatalf("len = %d, want %d", len(top), len(want))
	}
	for i, term := range want {
		if top[i].SearchTerm != term || top[i].Count != int64(counts[term]) {
			t.Fatalf("top[%d] = %+v, want term %q count %d", i, top[i], term, counts[term])
		}
	}
}
