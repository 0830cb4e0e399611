package cacheredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"noskid/internal/domain"
	"noskid/internal/usecase"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "noskid:cert:"
	maxRetries = 5
)

// Cache keeps one JSON document per verification key. Invalid documents get
// a key TTL so they do not accumulate; freshness is decided from cached_at.
type Cache struct {
	client     *redis.Client
	invalidTTL time.Duration
}

type storedEntry struct {
	IsValid  bool                    `json:"is_valid"`
	Record   *domain.AuthorityRecord `json:"record,omitempty"`
	CachedAt time.Time               `json:"cached_at"`
}

func New(addr, password string, db int, invalidTTL time.Duration) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewWithClient(client, invalidTTL), nil
}

func NewWithClient(client *redis.Client, invalidTTL time.Duration) *Cache {
	if invalidTTL <= 0 {
		invalidTTL = usecase.DefaultInvalidTTL
	}
	return &Cache{client: client, invalidTTL: invalidTTL}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return domain.ErrDBUnavailable
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) GetFresh(ctx context.Context, key domain.VerificationKey, invalidSince time.Time) (*domain.CacheEntry, error) {
	if c == nil || c.client == nil {
		return nil, domain.ErrDBUnavailable
	}
	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	entry, err := decodeEntry(key, raw)
	if err != nil {
		return nil, err
	}
	if !entry.IsValid && !entry.CachedAt.After(invalidSince) {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

func (c *Cache) UpsertValid(ctx context.Context, key domain.VerificationKey, record domain.AuthorityRecord, cachedAt time.Time) error {
	return c.update(ctx, key, func(prev *domain.CacheEntry) domain.CacheEntry {
		return domain.MergeValid(prev, key, record, cachedAt)
	})
}

func (c *Cache) UpsertInvalid(ctx context.Context, key domain.VerificationKey, cachedAt time.Time) error {
	return c.update(ctx, key, func(prev *domain.CacheEntry) domain.CacheEntry {
		return domain.MergeInvalid(prev, key, cachedAt)
	})
}

// update is an optimistic read-merge-write on one key.
func (c *Cache) update(ctx context.Context, key domain.VerificationKey, merge func(prev *domain.CacheEntry) domain.CacheEntry) error {
	if c == nil || c.client == nil {
		return domain.ErrDBUnavailable
	}
	rk := redisKey(key)
	txf := func(tx *redis.Tx) error {
		var prev *domain.CacheEntry
		raw, err := tx.Get(ctx, rk).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			// An undecodable document is overwritten.
			if entry, derr := decodeEntry(key, raw); derr == nil {
				prev = &entry
			}
		}
		next := merge(prev)
		value, err := encodeEntry(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, value, expiryFor(next, c.invalidTTL))
			return nil
		})
		return err
	}
	for i := 0; i < maxRetries; i++ {
		err := c.client.Watch(ctx, txf, rk)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("cert cache update for %s: too much contention", key.Prefix())
}

func redisKey(key domain.VerificationKey) string {
	return keyPrefix + key.String()
}

func encodeEntry(e domain.CacheEntry) ([]byte, error) {
	return json.Marshal(storedEntry{IsValid: e.IsValid, Record: e.Record, CachedAt: e.CachedAt.UTC()})
}

func decodeEntry(key domain.VerificationKey, raw []byte) (domain.CacheEntry, error) {
	var s storedEntry
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("decode cert cache entry: %w", err)
	}
	return domain.CacheEntry{Key: key, IsValid: s.IsValid, Record: s.Record, CachedAt: s.CachedAt}, nil
}

// expiryFor returns zero (no expiry) for valid entries, which also clears a
// TTL left by an earlier invalid write.
func expiryFor(e domain.CacheEntry, invalidTTL time.Duration) time.Duration {
	if e.IsValid {
		return 0
	}
	return invalidTTL + time.Minute
}

var _ usecase.CertCacheRepository = (*Cache)(nil)
