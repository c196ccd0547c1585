// Copyright 2024-2026 Aiku AI

// Package linkstore persists the identity link map for the relay.
package linkstore

import (
	"fmt"
	"io"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// DefaultRedisKey is the hash the redis backend stores links in.
const DefaultRedisKey = "discord_telegram_bridge:links"

// Store is a relay.LinkStore holding resources that must be released.
type Store interface {
	relay.LinkStore
	io.Closer
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PebbleStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open creates the backend selected by cfg.Type.
func Open(cfg *relay.LinksConfig) (Store, error) {
	switch cfg.Type {
	case "", "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("links.path is required for the file backend")
		}
		return NewFileStore(cfg.Path), nil
	case "pebble":
		if cfg.Path == "" {
			return nil, fmt.Errorf("links.path is required for the pebble backend")
		}
		return OpenPebble(cfg.Path)
	case "redis":
		key := cfg.RedisKey
		if key == "" {
			key = DefaultRedisKey
		}
		return OpenRedis(cfg.RedisURL, key)
	case "memory":
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown link store type %q", cfg.Type)
	}
}
