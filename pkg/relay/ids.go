// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// Platform identifies one side of the bridge.
type Platform int

const (
	PlatformDiscord Platform = iota + 1
	PlatformTelegram
)

func (p Platform) String() string {
	switch p {
	case PlatformDiscord:
		return "discord"
	case PlatformTelegram:
		return "telegram"
	default:
		return "unknown"
	}
}

// Other returns the opposite side of the bridge.
func (p Platform) Other() Platform {
	if p == PlatformDiscord {
		return PlatformTelegram
	}
	return PlatformDiscord
}

// MessageKey identifies a message on one platform.
type MessageKey struct {
	Platform Platform
	ID       string
}

func (k MessageKey) String() string {
	return k.Platform.String() + ":" + k.ID
}

// DiscordKey creates a MessageKey from a Discord message snowflake.
func DiscordKey(messageID string) MessageKey {
	return MessageKey{Platform: PlatformDiscord, ID: messageID}
}

// TelegramKey creates a MessageKey from a Telegram message id.
func TelegramKey(messageID int) MessageKey {
	return MessageKey{Platform: PlatformTelegram, ID: strconv.Itoa(messageID)}
}

// ParseTelegramMessageID extracts the Telegram message id from a stored
// counterpart id.
func ParseTelegramMessageID(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram message id %q: %w", id, err)
	}
	return n, nil
}

// Keys of the persisted identity map.
const (
	discordLinkPrefix  = "discord:"
	telegramLinkPrefix = "telegram:"
	usernameLinkPrefix = "telegram_username:"
)

// MakeDiscordLinkKey creates the persisted key for a Discord user.
func MakeDiscordLinkKey(discordID string) string {
	return discordLinkPrefix + discordID
}

// MakeTelegramLinkKey creates the persisted key for a Telegram user.
func MakeTelegramLinkKey(telegramID int64) string {
	return telegramLinkPrefix + strconv.FormatInt(telegramID, 10)
}

// MakeUsernameLinkKey creates the persisted key for a Telegram username.
// Usernames are case-insensitive.
func MakeUsernameLinkKey(username string) string {
	return usernameLinkPrefix + normalizeUsername(username)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

// FormatTelegramUserID renders a Telegram user id for persistence.
func FormatTelegramUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseTelegramUserID parses a persisted Telegram user id.
func ParseTelegramUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram user id %q: %w", s, err)
	}
	return id, nil
}
