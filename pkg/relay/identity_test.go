// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/rs/zerolog"
)

func TestIdentityLinker_LinkBothDirections(t *testing.T) {
	t.Parallel()
	store := &memoryLinkStore{}
	l := NewIdentityLinker(store, zerolog.Nop())
	ctx := context.Background()
	if err := l.Link(ctx, "u1", 42, "@BobBy"); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if tgID, ok := l.TelegramUserFor("u1"); !ok || tgID != 42 {
		t.Errorf("TelegramUserFor: got %d, %v", tgID, ok)
	}
	if id, ok := l.DiscordUserFor(42); !ok || id != "u1" {
		t.Errorf("DiscordUserFor: got %q, %v", id, ok)
	}
	if id, ok := l.ResolveTelegramUsername("bobby"); !ok || id != "u1" {
		t.Errorf("ResolveTelegramUsername: got %q, %v", id, ok)
	}
	if got, ok := l.Resolve(PlatformDiscord, "u1"); !ok || got != "42" {
		t.Errorf("Resolve(discord): got %q, %v", got, ok)
	}
	if got, ok := l.Resolve(PlatformTelegram, "42"); !ok || got != "u1" {
		t.Errorf("Resolve(telegram): got %q, %v", got, ok)
	}
	want := map[string]string{
		"discord:u1":              "42",
		"telegram:42":             "u1",
		"telegram_username:bobby": "42",
	}
	if got := store.Snapshot(); !maps.Equal(got, want) {
		t.Errorf("persisted: got %v, want %v", got, want)
	}
}

func TestIdentityLinker_RelinkReplacesPartners(t *testing.T) {
	t.Parallel()
	l := NewIdentityLinker(nil, zerolog.Nop())
	ctx := context.Background()
	_ = l.Link(ctx, "u1", 42, "bobby")
	_ = l.Link(ctx, "u2", 43, "")

	if err := l.Link(ctx, "u1", 43, ""); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, ok := l.DiscordUserFor(42); ok {
		t.Error("old Telegram partner of u1 should be unlinked")
	}
	if _, ok := l.TelegramUserFor("u2"); ok {
		t.Error("old Discord partner of 43 should be unlinked")
	}
	if _, ok := l.ResolveTelegramUsername("bobby"); ok {
		t.Error("username of the dropped Telegram user should be gone")
	}
	if l.Count() != 1 {
		t.Errorf("Count: got %d, want 1", l.Count())
	}
}

func TestIdentityLinker_LinkIdempotent(t *testing.T) {
	t.Parallel()
	store := &memoryLinkStore{}
	l := NewIdentityLinker(store, zerolog.Nop())
	ctx := context.Background()
	_ = l.Link(ctx, "u1", 42, "bobby")
	_ = l.Link(ctx, "u1", 42, "bobby")
	if store.saves != 1 {
		t.Errorf("saves: got %d, want 1", store.saves)
	}
}

func TestIdentityLinker_Unlink(t *testing.T) {
	t.Parallel()
	store := &memoryLinkStore{}
	l := NewIdentityLinker(store, zerolog.Nop())
	ctx := context.Background()
	_ = l.Link(ctx, "u1", 42, "bobby")

	unlinked, err := l.Unlink(ctx, "u1")
	if err != nil || !unlinked {
		t.Fatalf("Unlink: got %v, %v", unlinked, err)
	}
	if len(store.Snapshot()) != 0 {
		t.Errorf("persisted after unlink: got %v", store.Snapshot())
	}
	if unlinked, _ = l.Unlink(ctx, "u1"); unlinked {
		t.Error("second Unlink should report false")
	}
}

func TestIdentityLinker_Load(t *testing.T) {
	t.Parallel()
	store := &memoryLinkStore{}
	l := NewIdentityLinker(store, zerolog.Nop())
	_ = l.Link(context.Background(), "u5", 50, "")
	store.links = map[string]string{
		"discord:u1":              "42",
		"telegram:43":             "u2",
		"telegram_username:Carol": "43",
		"discord:bad":             "not-a-number",
		"telegram:nope":           "u9",
		"unrelated":               "x",
	}

	added, removed, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if added != 2 || removed != 1 {
		t.Errorf("Load: got added=%d removed=%d, want 2 and 1", added, removed)
	}
	if id, ok := l.DiscordUserFor(42); !ok || id != "u1" {
		t.Errorf("reverse of discord:u1: got %q, %v", id, ok)
	}
	if tgID, ok := l.TelegramUserFor("u2"); !ok || tgID != 43 {
		t.Errorf("reverse of telegram:43: got %d, %v", tgID, ok)
	}
	if id, ok := l.ResolveTelegramUsername("carol"); !ok || id != "u2" {
		t.Errorf("username lookup: got %q, %v", id, ok)
	}
	if _, ok := l.TelegramUserFor("u5"); ok {
		t.Error("links missing from the store should be dropped")
	}
}

func TestIdentityLinker_LoadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	l := NewIdentityLinker(&memoryLinkStore{err: boom}, zerolog.Nop())
	if _, _, err := l.Load(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Load: got %v, want %v", err, boom)
	}
	if err := l.Link(context.Background(), "u1", 42, ""); !errors.Is(err, boom) {
		t.Errorf("Link: got %v, want %v", err, boom)
	}
	if _, ok := l.TelegramUserFor("u1"); !ok {
		t.Error("link should stay in memory when saving fails")
	}
}

func TestIdentityLinker_Import(t *testing.T) {
	t.Parallel()
	store := &memoryLinkStore{}
	l := NewIdentityLinker(store, zerolog.Nop())
	added, removed, err := l.Import(context.Background(), map[string]string{"discord:u1": "42"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if added != 1 || removed != 0 {
		t.Errorf("Import: got added=%d removed=%d", added, removed)
	}
	want := map[string]string{"discord:u1": "42", "telegram:42": "u1"}
	if got := store.Snapshot(); !maps.Equal(got, want) {
		t.Errorf("persisted: got %v, want %v", got, want)
	}
}

func TestIdentityLinker_ReplaceConflicting(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		links map[string]string
		want  map[string]string
	}{
		{
			name:  "two discord users claim one telegram user",
			links: map[string]string{"discord:A": "1", "discord:C": "1"},
			want:  map[string]string{"discord:A": "1", "telegram:1": "A"},
		},
		{
			name:  "reverse entry wins",
			links: map[string]string{"discord:A": "1", "discord:C": "1", "telegram:1": "C"},
			want:  map[string]string{"discord:C": "1", "telegram:1": "C"},
		},
		{
			name:  "agreeing pair wins over a reverse entry",
			links: map[string]string{"discord:A": "2", "telegram:1": "A", "telegram:2": "A"},
			want:  map[string]string{"discord:A": "2", "telegram:2": "A"},
		},
		{
			name:  "one telegram user claims two discord users",
			links: map[string]string{"telegram:1": "A", "telegram:2": "A", "discord:B": "2"},
			want:  map[string]string{"discord:A": "1", "telegram:1": "A", "discord:B": "2", "telegram:2": "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := NewIdentityLinker(nil, zerolog.Nop())
			l.Replace(tt.links)
			if got := l.Snapshot(); !maps.Equal(got, tt.want) {
				t.Errorf("snapshot: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentityLinker_LinkAfterConflictingReload(t *testing.T) {
	t.Parallel()
	l := NewIdentityLinker(nil, zerolog.Nop())
	l.Replace(map[string]string{
		"discord:A":           "1",
		"discord:C":           "1",
		"telegram:1":          "A",
		"telegram_username:a": "1",
	})
	if err := l.Link(context.Background(), "C", 3, "c"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if id, ok := l.ResolveTelegramUsername("a"); !ok || id != "A" {
		t.Errorf("username of A: got %q, %v; want A, true", id, ok)
	}
	if id, ok := l.DiscordUserFor(3); !ok || id != "C" {
		t.Errorf("DiscordUserFor(3): got %q, %v; want C, true", id, ok)
	}
}

func TestIdentityLinker_InMemory(t *testing.T) {
	t.Parallel()
	l := NewIdentityLinker(nil, zerolog.Nop())
	if added, removed, err := l.Load(context.Background()); err != nil || added != 0 || removed != 0 {
		t.Errorf("Load without store: got %d, %d, %v", added, removed, err)
	}
	if err := l.Link(context.Background(), "u1", 42, ""); err != nil {
		t.Errorf("Link without store: %v", err)
	}
	if _, ok := l.Resolve(PlatformTelegram, "not-a-number"); ok {
		t.Error("Resolve should reject an invalid Telegram id")
	}
}
