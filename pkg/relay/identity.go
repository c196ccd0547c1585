// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LinkStore persists the identity map. The map is flat: "discord:<id>" maps
// to a Telegram user id, "telegram:<id>" to a Discord user id and
// "telegram_username:<name>" to a Telegram user id.
type LinkStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, links map[string]string) error
}

// IdentityLinker maps Discord users to Telegram users. Each user has at most
// one partner on the other side. Safe for concurrent use.
type IdentityLinker struct {
	store LinkStore
	log   zerolog.Logger

	// saveMu serializes persistence so snapshots reach the store in order.
	saveMu sync.Mutex

	mu         sync.RWMutex
	toTelegram map[string]int64
	toDiscord  map[int64]string
	usernames  map[string]int64
}

// NewIdentityLinker creates an empty linker persisting to store. A nil store
// keeps links in memory only.
func NewIdentityLinker(store LinkStore, log zerolog.Logger) *IdentityLinker {
	return &IdentityLinker{
		store:      store,
		log:        log.With().Str("component", "identity_linker").Logger(),
		toTelegram: make(map[string]int64),
		toDiscord:  make(map[int64]string),
		usernames:  make(map[string]int64),
	}
}

// Load replaces the in-memory links with the contents of the store and
// returns how many Discord users were added and removed.
func (l *IdentityLinker) Load(ctx context.Context) (added, removed int, err error) {
	if l.store == nil {
		return 0, 0, nil
	}
	data, err := l.store.Load(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load identity links: %w", err)
	}
	added, removed = l.Replace(data)
	return added, removed, nil
}

// Replace swaps the in-memory links for the flat map links without
// persisting it. Invalid entries are skipped.
func (l *IdentityLinker) Replace(links map[string]string) (added, removed int) {
	toTelegram := make(map[string]int64)
	toDiscord := make(map[int64]string)
	usernames := make(map[string]int64)
	for key, value := range links {
		switch {
		case strings.HasPrefix(key, discordLinkPrefix):
			tgID, err := ParseTelegramUserID(value)
			if err != nil {
				l.log.Warn().Err(err).Str("key", key).Msg("Skipping invalid identity link")
				continue
			}
			toTelegram[strings.TrimPrefix(key, discordLinkPrefix)] = tgID
		case strings.HasPrefix(key, usernameLinkPrefix):
			tgID, err := ParseTelegramUserID(value)
			if err != nil {
				l.log.Warn().Err(err).Str("key", key).Msg("Skipping invalid username link")
				continue
			}
			usernames[normalizeUsername(strings.TrimPrefix(key, usernameLinkPrefix))] = tgID
		case strings.HasPrefix(key, telegramLinkPrefix):
			tgID, err := ParseTelegramUserID(strings.TrimPrefix(key, telegramLinkPrefix))
			if err != nil || value == "" {
				l.log.Warn().Str("key", key).Msg("Skipping invalid identity link")
				continue
			}
			toDiscord[tgID] = value
		}
	}
	toTelegram, toDiscord = l.pairLinks(toTelegram, toDiscord)

	l.mu.Lock()
	defer l.mu.Unlock()
	for discordID := range l.toTelegram {
		if _, ok := toTelegram[discordID]; !ok {
			removed++
		}
	}
	for discordID, tgID := range toTelegram {
		if cur, ok := l.toTelegram[discordID]; !ok || cur != tgID {
			added++
		}
	}
	l.toTelegram, l.toDiscord, l.usernames = toTelegram, toDiscord, usernames
	l.log.Info().
		Int("added", added).
		Int("removed", removed).
		Int("total", len(toTelegram)).
		Msg("Identity links loaded")
	return added, removed
}

// pairLinks reduces the raw entries of both directions to a one-to-one
// mapping. Entries present in both directions are kept first, then
// "telegram:" entries in id order, then "discord:" entries in id order.
// An entry whose user already has a partner is dropped.
func (l *IdentityLinker) pairLinks(rawTelegram map[string]int64, rawDiscord map[int64]string) (map[string]int64, map[int64]string) {
	toTelegram := make(map[string]int64, len(rawTelegram))
	toDiscord := make(map[int64]string, len(rawDiscord))
	for tgID, discordID := range rawDiscord {
		if cur, ok := rawTelegram[discordID]; ok && cur == tgID {
			toTelegram[discordID] = tgID
			toDiscord[tgID] = discordID
		}
	}
	pair := func(discordID string, tgID int64) {
		_, discordTaken := toTelegram[discordID]
		_, telegramTaken := toDiscord[tgID]
		switch {
		case discordTaken && toTelegram[discordID] == tgID:
		case discordTaken || telegramTaken:
			l.log.Warn().
				Str("discord_user_id", discordID).
				Int64("telegram_user_id", tgID).
				Msg("Dropping conflicting identity link")
		default:
			toTelegram[discordID] = tgID
			toDiscord[tgID] = discordID
		}
	}
	for _, tgID := range slices.Sorted(maps.Keys(rawDiscord)) {
		pair(rawDiscord[tgID], tgID)
	}
	for _, discordID := range slices.Sorted(maps.Keys(rawTelegram)) {
		pair(discordID, rawTelegram[discordID])
	}
	return toTelegram, toDiscord
}

// Import replaces the links with links and persists the result.
func (l *IdentityLinker) Import(ctx context.Context, links map[string]string) (added, removed int, err error) {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	added, removed = l.Replace(links)
	return added, removed, l.save(ctx, l.Snapshot())
}

// Resolve returns the partner of userID, where userID is a user on source.
// Telegram ids are rendered in decimal.
func (l *IdentityLinker) Resolve(source Platform, userID string) (string, bool) {
	switch source {
	case PlatformDiscord:
		tgID, ok := l.TelegramUserFor(userID)
		if !ok {
			return "", false
		}
		return FormatTelegramUserID(tgID), true
	case PlatformTelegram:
		tgID, err := ParseTelegramUserID(userID)
		if err != nil {
			return "", false
		}
		return l.DiscordUserFor(tgID)
	}
	return "", false
}

// TelegramUserFor returns the Telegram user linked to a Discord user.
func (l *IdentityLinker) TelegramUserFor(discordID string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tgID, ok := l.toTelegram[discordID]
	return tgID, ok
}

// DiscordUserFor returns the Discord user linked to a Telegram user.
func (l *IdentityLinker) DiscordUserFor(telegramID int64) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	discordID, ok := l.toDiscord[telegramID]
	return discordID, ok
}

// ResolveTelegramUsername returns the Discord user linked to the Telegram
// user with the given username. The lookup is case-insensitive.
func (l *IdentityLinker) ResolveTelegramUsername(username string) (string, bool) {
	name := normalizeUsername(username)
	if name == "" {
		return "", false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	tgID, ok := l.usernames[name]
	if !ok {
		return "", false
	}
	discordID, ok := l.toDiscord[tgID]
	return discordID, ok
}

// Link pairs a Discord user with a Telegram user, replacing any previous
// link of either. Linking an existing pair again is a no-op.
func (l *IdentityLinker) Link(ctx context.Context, discordID string, telegramID int64, telegramUsername string) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	name := normalizeUsername(telegramUsername)
	l.mu.Lock()
	if cur, ok := l.toTelegram[discordID]; ok && cur == telegramID && l.toDiscord[telegramID] == discordID &&
		(name == "" || l.usernames[name] == telegramID) {
		l.mu.Unlock()
		return nil
	}
	l.unlinkDiscordLocked(discordID)
	l.unlinkTelegramLocked(telegramID)
	l.toTelegram[discordID] = telegramID
	l.toDiscord[telegramID] = discordID
	if name != "" {
		l.usernames[name] = telegramID
	}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.log.Info().
		Str("discord_user_id", discordID).
		Int64("telegram_user_id", telegramID).
		Str("telegram_username", name).
		Msg("Linked accounts")
	return l.save(ctx, snapshot)
}

// Unlink removes every link of a Discord user. It reports whether the user
// was linked.
func (l *IdentityLinker) Unlink(ctx context.Context, discordID string) (bool, error) {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.Lock()
	if _, ok := l.toTelegram[discordID]; !ok {
		l.mu.Unlock()
		return false, nil
	}
	l.unlinkDiscordLocked(discordID)
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.log.Info().Str("discord_user_id", discordID).Msg("Unlinked account")
	return true, l.save(ctx, snapshot)
}

// Snapshot returns the links as the flat persisted map.
func (l *IdentityLinker) Snapshot() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Count returns the number of linked Discord users.
func (l *IdentityLinker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.toTelegram)
}

func (l *IdentityLinker) unlinkDiscordLocked(discordID string) {
	tgID, ok := l.toTelegram[discordID]
	if !ok {
		return
	}
	delete(l.toTelegram, discordID)
	if l.toDiscord[tgID] == discordID {
		delete(l.toDiscord, tgID)
	}
	l.dropUsernamesLocked(tgID)
}

func (l *IdentityLinker) unlinkTelegramLocked(telegramID int64) {
	if discordID, ok := l.toDiscord[telegramID]; ok {
		delete(l.toDiscord, telegramID)
		if l.toTelegram[discordID] == telegramID {
			delete(l.toTelegram, discordID)
		}
	}
	l.dropUsernamesLocked(telegramID)
}

func (l *IdentityLinker) dropUsernamesLocked(telegramID int64) {
	for name, id := range l.usernames {
		if id == telegramID {
			delete(l.usernames, name)
		}
	}
}

func (l *IdentityLinker) snapshotLocked() map[string]string {
	out := make(map[string]string, len(l.toTelegram)+len(l.toDiscord)+len(l.usernames))
	for discordID, tgID := range l.toTelegram {
		out[MakeDiscordLinkKey(discordID)] = FormatTelegramUserID(tgID)
	}
	for tgID, discordID := range l.toDiscord {
		out[MakeTelegramLinkKey(tgID)] = discordID
	}
	for name, tgID := range l.usernames {
		out[MakeUsernameLinkKey(name)] = FormatTelegramUserID(tgID)
	}
	return out
}

func (l *IdentityLinker) save(ctx context.Context, snapshot map[string]string) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save identity links: %w", err)
	}
	return nil
}
