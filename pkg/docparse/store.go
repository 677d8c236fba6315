package docparse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefixJob   = "job:"
	keyPrefixCache = "cache:"

	// defaultCacheTTL keeps extraction results for a week; resumes and
	// job posts rarely change faster than that.
	defaultCacheTTL = 7 * 24 * time.Hour

	// defaultJobTTL keeps async job records for a day.
	defaultJobTTL = 24 * time.Hour
)

// Job statuses stored alongside async extraction work.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// ErrJobNotFound reports an unknown or expired job ID.
var ErrJobNotFound = errors.New("job not found")

// JobRecord is the persisted state of one async extraction.
type JobRecord struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Store keeps extraction caches and job records in Redis.
type Store struct {
	rdb      *redis.Client
	cacheTTL time.Duration
	jobTTL   time.Duration
}

// NewStore wraps an existing Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, cacheTTL: defaultCacheTTL, jobTTL: defaultJobTTL}
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// CacheKey derives a stable key from document text, so resubmitting the
// same document is a cache hit.
func CacheKey(kind, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefixCache + kind + ":" + hex.EncodeToString(sum[:])[:16]
}

// CachedResult loads a cached extraction into out. The second return is
// false on a miss.
func (s *Store) CachedResult(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("cache decode: %w", err)
	}
	return true, nil
}

// CacheResult stores an extraction under key.
func (s *Store) CacheResult(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// SetJobStatus upserts an async job record.
func (s *Store) SetJobStatus(ctx context.Context, jobID string, rec JobRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("job encode: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefixJob+jobID, raw, s.jobTTL).Err(); err != nil {
		return fmt.Errorf("job set: %w", err)
	}
	return nil
}

// JobStatus loads an async job record.
func (s *Store) JobStatus(ctx context.Context, jobID string) (JobRecord, error) {
	raw, err := s.rdb.Get(ctx, keyPrefixJob+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return JobRecord{}, ErrJobNotFound
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("job get: %w", err)
	}
	var rec JobRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return JobRecord{}, fmt.Errorf("job decode: %w", err)
	}
	return rec, nil
}

// ClearCache removes a cached extraction, forcing a re-parse.
func (s *Store) ClearCache(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
