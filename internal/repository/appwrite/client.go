// Package appwrite keeps search counters in an Appwrite databases collection
// through the official Go SDK. Appwrite offers only list/create/update, so
// callers that need an upsert must do lookup-then-branch themselves.
//
// SDK calls take no context. Each operation checks ctx before it starts, and
// the configured http.Client bounds the request itself.
package appwrite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/appwrite/sdk-for-go/appwrite"
	"github.com/appwrite/sdk-for-go/databases"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/query"

	"moviefinder/internal/domain"
)

type Config struct {
	Endpoint     string
	ProjectID    string
	DatabaseID   string
	CollectionID string
	// APIKey is optional. Without it requests run with the collection's
	// anonymous permissions.
	APIKey string
	Client *http.Client
}

type CounterStore struct {
	db           *databases.Databases
	databaseID   string
	collectionID string
}

type document struct {
	ID         string `json:"$id"`
	UpdatedAt  string `json:"$updatedAt,omitempty"`
	SearchTerm string `json:"searchTerm"`
	Count      int64  `json:"count"`
	MovieID    int    `json:"movie_id"`
	PosterURL  string `json:"poster_url"`
}

type documentList struct {
	Total     int        `json:"total"`
	Documents []document `json:"documents"`
}

// statusCoder is implemented by the SDK's error type.
type statusCoder interface {
	GetStatusCode() int
}

func NewCounterStore(cfg Config) *CounterStore {
	endpoint := appwrite.WithEndpoint(strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"))
	project := appwrite.WithProject(strings.TrimSpace(cfg.ProjectID))
	clt := appwrite.NewClient(endpoint, project)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		clt = appwrite.NewClient(endpoint, project, appwrite.WithKey(key))
	}
	if cfg.Client != nil {
		clt.Client = cfg.Client
	} else {
		clt.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CounterStore{
		db:           appwrite.NewDatabases(clt),
		databaseID:   strings.TrimSpace(cfg.DatabaseID),
		collectionID: strings.TrimSpace(cfg.CollectionID),
	}
}

func (s *CounterStore) FindByTerm(ctx context.Context, searchTerm string) (domain.SearchCounter, error) {
	list, err := s.listDocuments(ctx, query.Equal("searchTerm", searchTerm))
	if err != nil {
		return domain.SearchCounter{}, err
	}
	if len(list.Documents) == 0 {
		return domain.SearchCounter{}, domain.ErrNotFound
	}
	return fromDocument(list.Documents[0]), nil
}

func (s *CounterStore) Create(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, error) {
	if err := ctx.Err(); err != nil {
		return domain.SearchCounter{}, err
	}
	created, err := s.db.CreateDocument(s.databaseID, s.collectionID, id.Unique(), map[string]any{
		"searchTerm": write.SearchTerm,
		"count":      1,
		"movie_id":   write.MovieID,
		"poster_url": write.PosterURL,
	})
	if err != nil {
		return domain.SearchCounter{}, err
	}
	var doc document
	if err := created.Decode(&doc); err != nil {
		return domain.SearchCounter{}, fmt.Errorf("decode appwrite document: %w", err)
	}
	return fromDocument(doc), nil
}

func (s *CounterStore) Update(ctx context.Context, documentID string, count int64, write domain.CounterWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.UpdateDocument(s.databaseID, s.collectionID, documentID,
		s.db.WithUpdateDocumentData(map[string]any{
			"count":      count,
			"movie_id":   write.MovieID,
			"poster_url": write.PosterURL,
		}),
	)
	if statusOf(err) == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}

func (s *CounterStore) ListTop(ctx context.Context, n int) ([]domain.SearchCounter, error) {
	if n <= 0 {
		n = domain.DefaultTrendingLimit
	}
	list, err := s.listDocuments(ctx, query.OrderDesc("count"), query.Limit(n))
	if err != nil {
		return nil, err
	}
	records := make([]domain.SearchCounter, 0, len(list.Documents))
	for _, doc := range list.Documents {
		records = append(records, fromDocument(doc))
	}
	return records, nil
}

// Ping lists a single document, which checks endpoint, project, ids and
// credentials in one request.
func (s *CounterStore) Ping(ctx context.Context) error {
	_, err := s.listDocuments(ctx, query.Limit(1))
	return err
}

func (s *CounterStore) listDocuments(ctx context.Context, queries ...string) (documentList, error) {
	if err := ctx.Err(); err != nil {
		return documentList{}, err
	}
	resp, err := s.db.ListDocuments(s.databaseID, s.collectionID, s.db.WithListDocumentsQueries(queries))
	if err != nil {
		return documentList{}, err
	}
	var list documentList
	if err := resp.Decode(&list); err != nil {
		return documentList{}, fmt.Errorf("decode appwrite document list: %w", err)
	}
	return list, nil
}

// statusOf returns the HTTP status carried by an SDK error, or 0.
func statusOf(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.GetStatusCode()
	}
	return 0
}

func fromDocument(doc document) domain.SearchCounter {
	rec := domain.SearchCounter{
		ID:         doc.ID,
		SearchTerm: doc.SearchTerm,
		Count:      doc.Count,
		MovieID:    doc.MovieID,
		PosterURL:  doc.PosterURL,
	}
	if doc.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, doc.UpdatedAt); err == nil {
			rec.UpdatedAt = ts.UTC()
		}
	}
	return rec
}
