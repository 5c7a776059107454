package mongo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"moviefinder/internal/domain"
)

type counterDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	SearchTerm string             `bson:"searchTerm"`
	Count      int64              `bson:"count"`
	MovieID    int                `bson:"movieId"`
	PosterURL  string             `bson:"posterUrl"`
	CreatedAt  int64              `bson:"createdAt"`
	UpdatedAt  int64              `bson:"updatedAt"`
}

type CounterRepository struct {
	collection    *mongo.Collection
	now           func() time.Time
	logger        *slog.Logger
	createIndexes func(context.Context) error

	indexMu    sync.Mutex
	indexed    bool
	indexTried time.Time
}

// indexRetryInterval spaces out index attempts made from the write path.
const indexRetryInterval = time.Minute

type RepositoryOption func(*CounterRepository)

func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(r *CounterRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewCounterRepository(client *mongo.Client, dbName, collectionName string, opts ...RepositoryOption) *CounterRepository {
	r := &CounterRepository{
		collection: client.Database(dbName).Collection(collectionName),
		now:        time.Now,
		logger:     slog.Default(),
	}
	r.createIndexes = r.createIndexModels
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureIndexes makes searchTerm unique so the upsert path can never create
// a second record for a term, and indexes count for the trending read.
// Writes call it themselves until it has succeeded once, so a store that was
// down at startup still gets its indexes.
func (r *CounterRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.createIndexes == nil {
		return nil
	}
	if err := r.createIndexes(ctx); err != nil {
		return err
	}
	r.indexMu.Lock()
	r.indexed = true
	r.indexMu.Unlock()
	return nil
}

// ensureIndexesOnWrite is the write-path guard behind EnsureIndexes. A failed
// attempt is logged and the write goes ahead.
func (r *CounterRepository) ensureIndexesOnWrite(ctx context.Context) {
	r.indexMu.Lock()
	if r.indexed || (!r.indexTried.IsZero() && r.now().Sub(r.indexTried) < indexRetryInterval) {
		r.indexMu.Unlock()
		return
	}
	r.indexTried = r.now()
	r.indexMu.Unlock()

	if err := r.EnsureIndexes(ctx); err != nil {
		r.logger.Warn("mongo index setup failed", slog.String("error", err.Error()))
	}
}

func (r *CounterRepository) createIndexModels(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "searchTerm", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "count", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *CounterRepository) FindByTerm(ctx context.Context, searchTerm string) (domain.SearchCounter, error) {
	var doc counterDoc
	if err := r.collection.FindOne(ctx, bson.M{"searchTerm": searchTerm}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.SearchCounter{}, domain.ErrNotFound
		}
		return domain.SearchCounter{}, err
	}
	return fromDoc(doc), nil
}

func (r *CounterRepository) Create(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, error) {
	r.ensureIndexesOnWrite(ctx)
	now := r.now().UTC().Unix()
	doc := counterDoc{
		ID:         primitive.NewObjectID(),
		SearchTerm: write.SearchTerm,
		Count:      1,
		MovieID:    write.MovieID,
		PosterURL:  write.PosterURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return domain.SearchCounter{}, err
	}
	return fromDoc(doc), nil
}

func (r *CounterRepository) Update(ctx context.Context, id string, count int64, write domain.CounterWrite) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"count":     count,
		"movieId":   write.MovieID,
		"posterUrl": write.PosterURL,
		"updatedAt": r.now().UTC().Unix(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementOrCreate is a single findOneAndUpdate with upsert. Two upserts
// racing on a missing term can still collide on the unique index; the loser
// is retried once, at which point the document exists and $inc applies.
func (r *CounterRepository) IncrementOrCreate(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, domain.UpsertOutcome, error) {
	r.ensureIndexesOnWrite(ctx)
	doc, err := r.upsert(ctx, write)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		doc, err = r.upsert(ctx, write)
	}
	if err != nil {
		return domain.SearchCounter{}, "", err
	}
	outcome := domain.UpsertIncremented
	if doc.Count == 1 {
		outcome = domain.UpsertCreated
	}
	return fromDoc(doc), outcome, nil
}

func (r *CounterRepository) upsert(ctx context.Context, write domain.CounterWrite) (counterDoc, error) {
	now := r.now().UTC().Unix()
	update := bson.M{
		"$inc": bson.M{"count": int64(1)},
		"$set": bson.M{
			"movieId":   write.MovieID,
			"posterUrl": write.PosterURL,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc counterDoc
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"searchTerm": write.SearchTerm}, update, opts).Decode(&doc)
	return doc, err
}

func (r *CounterRepository) ListTop(ctx context.Context, limit int) ([]domain.SearchCounter, error) {
	if limit <= 0 {
		limit = domain.DefaultTrendingLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "count", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []counterDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.SearchCounter, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDoc(doc))
	}
	return records, nil
}

func (r *CounterRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}

func fromDoc(doc counterDoc) domain.SearchCounter {
	rec := domain.SearchCounter{
		SearchTerm: doc.SearchTerm,
		Count:      doc.Count,
		MovieID:    doc.MovieID,
		PosterURL:  doc.PosterURL,
	}
	if !doc.ID.IsZero() {
		rec.ID = doc.ID.Hex()
	}
	if doc.UpdatedAt > 0 {
		rec.UpdatedAt = time.Unix(doc.UpdatedAt, 0).UTC()
	}
	return rec
}
