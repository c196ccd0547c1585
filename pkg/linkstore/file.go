// Copyright 2024-2026 Aiku AI

package linkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 200 * time.Millisecond

// FileStore keeps links in a JSON object on disk. Numeric ids are written as
// JSON numbers, and both numbers and strings are accepted on load.
type FileStore struct {
	path string

	mu sync.Mutex
	// written is the last content this store wrote, so the watcher can
	// skip its own saves.
	written []byte
}

// NewFileStore creates a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the file. A missing file is an empty map.
func (s *FileStore) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	} else if err != nil {
		return nil, err
	}
	return decodeLinks(data)
}

func decodeLinks(data []byte) (map[string]string, error) {
	links := make(map[string]string)
	if len(bytes.TrimSpace(data)) == 0 {
		return links, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse link file: %w", err)
	}
	for key, val := range raw {
		var num json.Number
		var str string
		switch {
		case json.Unmarshal(val, &str) == nil:
			links[key] = str
		case json.Unmarshal(val, &num) == nil:
			links[key] = num.String()
		default:
			return nil, fmt.Errorf("invalid value for %q in link file: %s", key, val)
		}
	}
	return links, nil
}

func encodeLinks(links map[string]string) ([]byte, error) {
	raw := make(map[string]any, len(links))
	for key, val := range links {
		if _, err := strconv.ParseInt(val, 10, 64); err == nil {
			raw[key] = json.Number(val)
		} else {
			raw[key] = val
		}
	}
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(ctx context.Context, links map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeLinks(links)
	if err != nil {
		return fmt.Errorf("failed to encode links: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	s.written = data
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

// Watch calls onChange whenever the file is changed by someone else. It
// watches the parent directory so atomic replacements are seen, and returns
// once the watcher is running. Watching stops when ctx is done.
func (s *FileStore) Watch(ctx context.Context, log zerolog.Logger, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	absPath, err := filepath.Abs(s.path)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err = watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}
	log = log.With().Str("path", absPath).Logger()
	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != absPath || !evt.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				debounce = time.After(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Link file watcher error")
			case <-debounce:
				debounce = nil
				if s.externallyChanged() {
					log.Info().Msg("Link file changed, reloading")
					onChange(ctx)
				}
			}
		}
	}()
	log.Debug().Msg("Watching link file")
	return nil
}

func (s *FileStore) externallyChanged() bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !bytes.Equal(data, s.written)
}
