package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed store. Generations live in a sorted set
// scored by creation time; each generation's entries are one hash.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "plantid:shell:"
	}
	return &redisStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *redisStore) generationsKey() string {
	return s.prefix + "generations"
}

func (s *redisStore) entriesKey(generation string) string {
	return s.prefix + "gen:" + generation
}

func (s *redisStore) register(ctx context.Context, pipe redis.Pipeliner, generation string) {
	pipe.ZAddNX(ctx, s.generationsKey(), redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: generation,
	})
}

func (s *redisStore) Open(ctx context.Context, generation string) error {
	if generation == "" {
		return fmt.Errorf("generation name required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.register(ctx, pipe, generation)
		return nil
	})
	return err
}

func (s *redisStore) Match(ctx context.Context, generation, key string) (Entry, bool, error) {
	raw, err := s.client.HGet(ctx, s.entriesKey(generation), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Put watches the generation set so a concurrent Delete aborts the write
// instead of leaving orphaned entries behind.
func (s *redisStore) Put(ctx context.Context, generation string, entry Entry) error {
	if entry.Key == "" {
		return fmt.Errorf("entry key required")
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		err := tx.ZScore(ctx, s.generationsKey(), generation).Err()
		if errors.Is(err, redis.Nil) {
			return ErrGenerationNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.entriesKey(generation), entry.Key, data)
			return nil
		})
		return err
	}, s.generationsKey())
}

func (s *redisStore) PutAll(ctx context.Context, generation string, entries []Entry) error {
	if generation == "" {
		return fmt.Errorf("generation name required")
	}

	now := time.Now()
	fields := make([]any, 0, len(entries)*2)
	for _, entry := range entries {
		if entry.Key == "" {
			return fmt.Errorf("entry key required")
		}
		if entry.StoredAt.IsZero() {
			entry.StoredAt = now
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		fields = append(fields, entry.Key, data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.register(ctx, pipe, generation)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.entriesKey(generation), fields...)
		}
		return nil
	})
	return err
}

func (s *redisStore) Keys(ctx context.Context, generation string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.entriesKey(generation)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *redisStore) Generations(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, s.generationsKey(), 0, -1).Result()
}

func (s *redisStore) Delete(ctx context.Context, generation string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entriesKey(generation))
		removed = pipe.ZRem(ctx, s.generationsKey(), generation)
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	count, err := s.client.ZCard(ctx, s.generationsKey()).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        DriverRedis,
		"generations": count,
		"prefix":      s.prefix,
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
