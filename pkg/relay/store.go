// Copyright 2024-2026 Aiku AI

package relay

import (
	"container/list"
	"strconv"
	"sync"
)

// DefaultMessageMapSize is the default number of pairs the correlation store
// retains.
const DefaultMessageMapSize = 200

// MessageRecord is one half of a correlation pair, keyed by the message on
// Key.Platform.
type MessageRecord struct {
	Key           MessageKey
	CounterpartID string
	// IsMedia reports whether the counterpart is a caption-bearing media
	// message.
	IsMedia bool
	// RenderedContent is the last content relayed to the counterpart.
	RenderedContent string
}

// Pair describes a successfully relayed message and its mirror.
type Pair struct {
	DiscordID       string
	TelegramID      int
	DiscordIsMedia  bool
	TelegramIsMedia bool
	// DiscordContent and TelegramContent are the rendered contents sent to
	// each side.
	DiscordContent  string
	TelegramContent string
}

type storedPair struct {
	discord  MessageRecord
	telegram MessageRecord
}

func (p *storedPair) half(key MessageKey) *MessageRecord {
	if key.Platform == PlatformDiscord {
		return &p.discord
	}
	return &p.telegram
}

// CorrelationStore is a bounded FIFO of message pairs. Every pair is indexed
// by both of its message keys, and both halves are inserted and evicted
// together. Safe for concurrent use.
type CorrelationStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[MessageKey]*list.Element
}

// NewCorrelationStore creates a store holding at most capacity pairs.
// A non-positive capacity uses DefaultMessageMapSize.
func NewCorrelationStore(capacity int) *CorrelationStore {
	if capacity <= 0 {
		capacity = DefaultMessageMapSize
	}
	return &CorrelationStore{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[MessageKey]*list.Element, capacity*2),
	}
}

// Put records a pair. Any existing pair that shares either message id is
// removed first. When the store is full the oldest pair is evicted. Put
// reports whether an eviction happened.
func (s *CorrelationStore) Put(p Pair) (evicted bool) {
	dk := DiscordKey(p.DiscordID)
	tk := TelegramKey(p.TelegramID)
	sp := &storedPair{
		discord: MessageRecord{
			Key:             dk,
			CounterpartID:   strconv.Itoa(p.TelegramID),
			IsMedia:         p.TelegramIsMedia,
			RenderedContent: p.TelegramContent,
		},
		telegram: MessageRecord{
			Key:             tk,
			CounterpartID:   p.DiscordID,
			IsMedia:         p.DiscordIsMedia,
			RenderedContent: p.DiscordContent,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(dk)
	s.removeLocked(tk)
	for s.order.Len() >= s.capacity {
		s.removeElementLocked(s.order.Front())
		evicted = true
	}
	elem := s.order.PushBack(sp)
	s.index[dk] = elem
	s.index[tk] = elem
	return evicted
}

// Lookup returns the record stored under key.
func (s *CorrelationStore) Lookup(key MessageKey) (MessageRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.index[key]
	if !ok {
		return MessageRecord{}, false
	}
	return *elem.Value.(*storedPair).half(key), true
}

// Remove deletes the whole pair that key belongs to.
func (s *CorrelationStore) Remove(key MessageKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

// SetRendered updates the rendered counterpart content of the record stored
// under key.
func (s *CorrelationStore) SetRendered(key MessageKey, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.index[key]
	if !ok {
		return false
	}
	elem.Value.(*storedPair).half(key).RenderedContent = content
	return true
}

// Len returns the number of pairs held.
func (s *CorrelationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *CorrelationStore) removeLocked(key MessageKey) bool {
	elem, ok := s.index[key]
	if !ok {
		return false
	}
	s.removeElementLocked(elem)
	return true
}

func (s *CorrelationStore) removeElementLocked(elem *list.Element) {
	sp := s.order.Remove(elem).(*storedPair)
	delete(s.index, sp.discord.Key)
	delete(s.index, sp.telegram.Key)
}
