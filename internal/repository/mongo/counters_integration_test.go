package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviefinder/internal/domain"
)

// testMongoURI returns the MongoDB connection URI for integration tests.
// Defaults to localhost:27017. Set MONGO_TEST_URI to override.
func testMongoURI() string {
	if uri := os.Getenv("MONGO_TEST_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// setupTestRepo connects to MongoDB and returns a repository backed by a
// unique test database, dropped on cleanup. Skips when MongoDB is unreachable.
func setupTestRepo(t *testing.T) *CounterRepository {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	uri := testMongoURI()
	client, err := Connect(ctx, uri,
		options.Client().SetConnectTimeout(2*time.Second).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("MongoDB not available at %s: %v", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		t.Skipf("MongoDB ping failed at %s: %v", uri, err)
	}

	dbName := fmt.Sprintf("moviefinder_test_%d", time.Now().UnixNano())
	repo := NewCounterRepository(client, dbName, "search_counters")
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		t.Fatalf("EnsureIndexes: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = client.Database(dbName).Drop(ctx2)
		_ = client.Disconnect(ctx2)
	})
	return repo
}

func TestIntegration_IncrementOrCreate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec, outcome, err := repo.IncrementOrCreate(ctx, domain.CounterWrite{
		SearchTerm: "batman", MovieID: 414906, PosterURL: "https://image.tmdb.org/t/p/w500/abc.jpg",
	})
	if err != nil {
		t.Fatalf("IncrementOrCreate: %v", err)
	}
	if outcome != domain.UpsertCreated || rec.Count != 1 || rec.ID == "" {
		t.Fatalf("unexpected first upsert: outcome=%s rec=%+v", outcome, rec)
	}

	rec, outcome, err = repo.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: "batman", MovieID: 268, PosterURL: "p2"})
	if err != nil {
		t.Fatalf("IncrementOrCreate: %v", err)
	}
	if outcome != domain.UpsertIncremented || rec.Count != 2 || rec.MovieID != 268 {
		t.Fatalf("unexpected second upsert: outcome=%s rec=%+v", outcome, rec)
	}
}

func TestIntegration_ConcurrentUpsertsKeepOneRecord(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: "race"}); err != nil {
				t.Errorf("IncrementOrCreate: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := repo.FindByTerm(ctx, "race")
	if err != nil {
		t.Fatalf("FindByTerm: %v", err)
	}
	if rec.Count != workers {
		t.Fatalf("count = %d, want %d", rec.Count, workers)
	}
}

func TestIntegration_CreateUpdateFind(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.FindByTerm(ctx, "dune"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	created, err := repo.Create(ctx, domain.CounterWrite{SearchTerm: "dune", MovieID: 438631, PosterURL: "a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Update(ctx, created.ID, 7, domain.CounterWrite{SearchTerm: "dune", MovieID: 693134, PosterURL: "b"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.FindByTerm(ctx, "dune")
	if err != nil {
		t.Fatalf("FindByTerm: %v", err)
	}
	if got.Count != 7 || got.MovieID != 693134 || got.PosterURL != "b" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if err := repo.Update(ctx, "not-an-object-id", 1, domain.CounterWrite{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for bad id, got %v", err)
	}
}

func TestIntegration_ListTop(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	counts := map[string]int{"a": 1, "b": 5, "c": 3, "d": 2}
	for term, n := range counts {
		for i := 0; i < n; i++ {
			if _, _, err := repo.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: term}); err != nil {
				t.Fatalf("IncrementOrCreate: %v", err)
			}
		}
	}

	top, err := repo.ListTop(ctx, 3)
	if err != nil {
		t.Fatalf("ListTop: %v", err)
	}
	want := []string{"b", "c", "d"}
	if len(top) != len(want) {
		t.Fatalf("len = %d, want %d", len(top), len(want))
	}
	for i, term := range want {
		if top[i].SearchTerm != term {
			t.Fatalf("top[%d] = %q, want %q", i, top[i].SearchTerm, term)
		}
	}
}

func TestIntegration_FirstWriteCreatesIndexes(t *testing.T) {
	base := setupTestRepo(t)
	ctx := context.Background()
	db := base.collection.Database()
	repo := NewCounterRepository(db.Client(), db.Name(), "unindexed_counters")

	if _, _, err := repo.IncrementOrCreate(ctx, domain.CounterWrite{SearchTerm: "batman", MovieID: 268}); err != nil {
		t.Fatalf("IncrementOrCreate: %v", err)
	}

	cursor, err := repo.collection.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("list indexes: %v", err)
	}
	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		t.Fatalf("decode indexes: %v", err)
	}
	found := false
	for _, idx := range indexes {
		raw, err := bson.Marshal(idx["key"])
		if err != nil {
			t.Fatalf("marshal index key: %v", err)
		}
		if _, err := bson.Raw(raw).LookupErr("searchTerm"); err == nil && idx["unique"] == true {
			found = true
		}
	}
	if !found {
		t.Fatalf("unique searchTerm index missing after first write: %v", indexes)
	}
}
