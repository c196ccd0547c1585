// Copyright 2024-2026 Aiku AI

package relay

import "testing"

func TestPlatform(t *testing.T) {
	t.Parallel()
	if PlatformDiscord.String() != "discord" || PlatformTelegram.String() != "telegram" {
		t.Errorf("String: got %q and %q", PlatformDiscord, PlatformTelegram)
	}
	if Platform(0).String() != "unknown" {
		t.Errorf("zero platform: got %q", Platform(0))
	}
	if PlatformDiscord.Other() != PlatformTelegram || PlatformTelegram.Other() != PlatformDiscord {
		t.Error("Other should swap sides")
	}
}

func TestMessageKeys(t *testing.T) {
	t.Parallel()
	if got := DiscordKey("123").String(); got != "discord:123" {
		t.Errorf("DiscordKey: got %q", got)
	}
	if got := TelegramKey(45).String(); got != "telegram:45" {
		t.Errorf("TelegramKey: got %q", got)
	}
	if DiscordKey("45") == TelegramKey(45) {
		t.Error("keys of different platforms must differ")
	}
}

func TestParseTelegramMessageID(t *testing.T) {
	t.Parallel()
	if id, err := ParseTelegramMessageID("77"); err != nil || id != 77 {
		t.Errorf("ParseTelegramMessageID(77): got %d, %v", id, err)
	}
	if _, err := ParseTelegramMessageID("abc"); err == nil {
		t.Error("ParseTelegramMessageID should reject non-numeric ids")
	}
}

func TestLinkKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		got, want string
	}{
		{MakeDiscordLinkKey("u1"), "discord:u1"},
		{MakeTelegramLinkKey(-42), "telegram:-42"},
		{MakeUsernameLinkKey(" @BobBy "), "telegram_username:bobby"},
		{FormatTelegramUserID(42), "42"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
	if id, err := ParseTelegramUserID(" 42 "); err != nil || id != 42 {
		t.Errorf("ParseTelegramUserID: got %d, %v", id, err)
	}
	if _, err := ParseTelegramUserID("4.2"); err == nil {
		t.Error("ParseTelegramUserID should reject non-integers")
	}
}
