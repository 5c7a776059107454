package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"moviefinder/internal/domain"
)

const defaultKeyPrefix = "moviefinder:counters:"

// Key layout under prefix:
//
//	trending      sorted set, member = search term, score = count
//	term:<term>   hash with id, movieId, posterUrl, updatedAt
//	ids           hash mapping record id -> search term
type CounterStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// incrementScript bumps the score and overwrites the movie fields in one
// server-side step. The id is assigned only on the first observation.
var incrementScript = redis.NewScript(`
local count = redis.call('ZINCRBY', KEYS[1], 1, ARGV[1])
local created = redis.call('HSETNX', KEYS[2], 'id', ARGV[2])
if created == 1 then
	redis.call('HSET', KEYS[3], ARGV[2], ARGV[1])
end
redis.call('HSET', KEYS[2], 'movieId', ARGV[3], 'posterUrl', ARGV[4], 'updatedAt', ARGV[5])
return {count, redis.call('HGET', KEYS[2], 'id'), created}
`)

// createScript inserts a record with count 1 unless the term already has
// one, in which case the existing count is left as is.
var createScript = redis.NewScript(`
local created = redis.call('HSETNX', KEYS[2], 'id', ARGV[2])
if created == 1 then
	redis.call('HSET', KEYS[3], ARGV[2], ARGV[1])
	redis.call('ZADD', KEYS[1], 1, ARGV[1])
end
redis.call('HSET', KEYS[2], 'movieId', ARGV[3], 'posterUrl', ARGV[4], 'updatedAt', ARGV[5])
return {redis.call('ZSCORE', KEYS[1], ARGV[1]), redis.call('HGET', KEYS[2], 'id')}
`)

func NewCounterStore(client redis.UniversalClient, prefix string) *CounterStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &CounterStore{client: client, prefix: prefix, now: time.Now}
}

func (s *CounterStore) trendingKey() string { return s.prefix + "trending" }
func (s *CounterStore) idsKey() string { return s.prefix + "ids" }
func (s *CounterStore) termKey(term string) string {
	return s.prefix + "term:" + term
}

func (s *CounterStore) scriptKeys(term string) []string {
	return []string{s.trendingKey(), s.termKey(term), s.idsKey()}
}

func (s *CounterStore) scriptArgs(write domain.CounterWrite) []any {
	return []any{
		write.SearchTerm,
		uuid.NewString(),
		strconv.Itoa(write.MovieID),
		write.PosterURL,
		strconv.FormatInt(s.now().UTC().Unix(), 10),
	}
}

func (s *CounterStore) FindByTerm(ctx context.Context, searchTerm string) (domain.SearchCounter, error) {
	score, err := s.client.ZScore(ctx, s.trendingKey(), searchTerm).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SearchCounter{}, domain.ErrNotFound
		}
		return domain.SearchCounter{}, err
	}
	fields, err := s.client.HGetAll(ctx, s.termKey(searchTerm)).Result()
	if err != nil {
		return domain.SearchCounter{}, err
	}
	return fromHash(searchTerm, score, fields), nil
}

func (s *CounterStore) Create(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, error) {
	values, err := createScript.Run(ctx, s.client, s.scriptKeys(write.SearchTerm), s.scriptArgs(write)...).Slice()
	if err != nil {
		return domain.SearchCounter{}, err
	}
	if len(values) < 2 {
		return domain.SearchCounter{}, fmt.Errorf("unexpected create reply: %v", values)
	}
	count, err := parseScore(values[0])
	if err != nil {
		return domain.SearchCounter{}, err
	}
	return s.record(write, values[1], count), nil
}

func (s *CounterStore) Update(ctx context.Context, id string, count int64, write domain.CounterWrite) error {
	term, err := s.client.HGet(ctx, s.idsKey(), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.trendingKey(), redis.Z{Score: float64(count), Member: term})
		pipe.HSet(ctx, s.termKey(term),
			"movieId", strconv.Itoa(write.MovieID),
			"posterUrl", write.PosterURL,
			"updatedAt", strconv.FormatInt(s.now().UTC().Unix(), 10),
		)
		return nil
	})
	return err
}

func (s *CounterStore) IncrementOrCreate(ctx context.Context, write domain.CounterWrite) (domain.SearchCounter, domain.UpsertOutcome, error) {
	values, err := incrementScript.Run(ctx, s.client, s.scriptKeys(write.SearchTerm), s.scriptArgs(write)...).Slice()
	if err != nil {
		return domain.SearchCounter{}, "", err
	}
	if len(values) < 3 {
		return domain.SearchCounter{}, "", fmt.Errorf("unexpected increment reply: %v", values)
	}
	count, err := parseScore(values[0])
	if err != nil {
		return domain.SearchCounter{}, "", err
	}
	outcome := domain.UpsertIncremented
	if created, _ := values[2].(int64); created == 1 {
		outcome = domain.UpsertCreated
	}
	return s.record(write, values[1], count), outcome, nil
}

// ListTop reads the sorted set highest first. Equal scores come back in
// reverse lexicographic member order.
func (s *CounterStore) ListTop(ctx context.Context, limit int) ([]domain.SearchCounter, error) {
	if limit <= 0 {
		limit = domain.DefaultTrendingLimit
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.trendingKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []domain.SearchCounter{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, z := range members {
			cmds[i] = pipe.HGetAll(ctx, s.termKey(memberString(z.Member)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.SearchCounter, 0, len(members))
	for i, z := range members {
		records = append(records, fromHash(memberString(z.Member), z.Score, cmds[i].Val()))
	}
	return records, nil
}

func (s *CounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CounterStore) record(write domain.CounterWrite, rawID any, count int64) domain.SearchCounter {
	id, _ := rawID.(string)
	return domain.SearchCounter{
		ID:         id,
		SearchTerm: write.SearchTerm,
		Count:      count,
		MovieID:    write.MovieID,
		PosterURL:  write.PosterURL,
		UpdatedAt:  time.Unix(s.now().UTC().Unix(), 0).UTC(),
	}
}

func fromHash(term string, score float64, fields map[string]string) domain.SearchCounter {
	rec := domain.SearchCounter{
		ID:         fields["id"],
		SearchTerm: term,
		Count:      int64(score),
		PosterURL:  fields["posterUrl"],
	}
	if movieID, err := strconv.Atoi(fields["movieId"]); err == nil {
		rec.MovieID = movieID
	}
	if updated, err := strconv.ParseInt(fields["updatedAt"], 10, 64); err == nil && updated > 0 {
		rec.UpdatedAt = time.Unix(updated, 0).UTC()
	}
	return rec
}

func parseScore(raw any) (int64, error) {
	switch v := raw.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse score %q: %w", v, err)
		}
		return int64(f), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected score type %T", raw)
	}
}

func memberString(member any) string {
	switch v := member.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
