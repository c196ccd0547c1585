// Copyright 2024-2026 Aiku AI

package linkstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps links in a single redis hash so several bridge instances
// can share them.
type RedisStore struct {
	cli *redis.Client
	key string
}

// OpenRedis connects to the server at url, e.g. redis://localhost:6379/0.
func OpenRedis(url, key string) (*RedisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("links.redis_url is required for the redis backend")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisStore{cli: redis.NewClient(opt), key: key}, nil
}

func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	links, err := s.cli.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	return links, nil
}

// Save replaces the hash in one MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, links map[string]string) error {
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(links) > 0 {
			fields := make(map[string]any, len(links))
			for k, v := range links {
				fields[k] = v
			}
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.cli.Close()
}
