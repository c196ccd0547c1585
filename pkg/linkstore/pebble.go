// Copyright 2024-2026 Aiku AI

package linkstore

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

var (
	pebbleKeyPrefix = []byte("link:")
	// pebbleKeyEnd is the exclusive upper bound of the link keyspace.
	pebbleKeyEnd = []byte("link;")
)

// PebbleStore keeps each link as its own key in a pebble database.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates the database directory at path.
func OpenPebble(path string) (*PebbleStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: pebbleKeyPrefix, UpperBound: pebbleKeyEnd})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	links := make(map[string]string)
	for ok := it.First(); ok; ok = it.Next() {
		// Key and Value are only valid until the next step, string() copies.
		links[string(it.Key()[len(pebbleKeyPrefix):])] = string(it.Value())
	}
	return links, it.Error()
}

// Save replaces every stored link in a single synced batch.
func (s *PebbleStore) Save(ctx context.Context, links map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(pebbleKeyPrefix, pebbleKeyEnd, nil); err != nil {
		return err
	}
	for key, val := range links {
		if err := b.Set(append(append([]byte{}, pebbleKeyPrefix...), key...), []byte(val), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit links: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
