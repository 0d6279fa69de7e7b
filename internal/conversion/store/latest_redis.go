package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gradenorm/internal/conversion/models"
	id "gradenorm/pkg/domain"
)

// Redis key prefix for the latest-conversion index
const latestKeyPrefix = "conv:latest:"

// RedisLatestIndex caches the newest conversion per (exam, target system) so
// reads do not have to scan the append-only trail. The trail in the primary
// store remains the source of truth; a cache miss falls back to it.
type RedisLatestIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisLatestIndexOption configures a RedisLatestIndex instance.
type RedisLatestIndexOption func(*RedisLatestIndex)

// WithLatestTTL bounds how long an index entry lives without refresh.
func WithLatestTTL(ttl time.Duration) RedisLatestIndexOption {
	return func(idx *RedisLatestIndex) {
		idx.ttl = ttl
	}
}

func NewRedisLatestIndex(client *redis.Client, opts ...RedisLatestIndexOption) *RedisLatestIndex {
	idx := &RedisLatestIndex{
		client: client,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(idx)
		}
	}
	return idx
}

// Set overwrites the index entry for the record's (exam, target) pair.
// Callers invoke this on every append, so the entry always holds the newest
// record.
func (idx *RedisLatestIndex) Set(ctx context.Context, rec *models.ConversionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal conversion record: %w", err)
	}
	return idx.client.Set(ctx, latestKey(rec.ExamID, rec.ToSystem), payload, idx.ttl).Err()
}

// Get returns the indexed record, or (nil, false, nil) on a miss.
func (idx *RedisLatestIndex) Get(ctx context.Context, examID id.ExamID, toSystem string) (*models.ConversionRecord, bool, error) {
	payload, err := idx.client.Get(ctx, latestKey(examID, toSystem)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec models.ConversionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		// A corrupt entry is treated as a miss; the primary store wins.
		return nil, false, nil
	}
	return &rec, true, nil
}

func latestKey(examID id.ExamID, toSystem string) string {
	return latestKeyPrefix + examID.String() + ":" + toSystem
}
