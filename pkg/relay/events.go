// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"strconv"
	"strings"

	"github.com/aiku/discord-telegram-bridge/pkg/relay/telegramfmt"
)

// Event is an inbound platform event consumed by the relay.
type Event interface {
	Source() Platform
}

// DiscordUser describes the author of a Discord event.
type DiscordUser struct {
	ID         string
	Username   string
	GlobalName string
	Nick       string
	Bot        bool
}

// DisplayName returns the guild nickname, then the global name, then the
// username.
func (u DiscordUser) DisplayName() string {
	switch {
	case u.Nick != "":
		return u.Nick
	case u.GlobalName != "":
		return u.GlobalName
	case u.Username != "":
		return u.Username
	default:
		return "User (" + u.ID + ")"
	}
}

// Attachment is a file attached to a Discord message.
type Attachment struct {
	URL         string
	Filename    string
	ContentType string
	Size        int
}

// IsImage reports whether the attachment can be sent as a Telegram photo.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// DiscordMessage is a message posted or edited on Discord.
type DiscordMessage struct {
	ID          string
	ChannelID   string
	GuildID     string
	Author      DiscordUser
	Content     string
	Attachments []Attachment
	// ReplyToID is the id of the message this one replies to, if any.
	ReplyToID string
	// MentionNames maps mentioned user ids to their display names.
	MentionNames map[string]string
}

// DiscordMessageEvent is a new Discord message.
type DiscordMessageEvent struct {
	Message DiscordMessage
}

// DiscordEditEvent is an edit of a Discord message's content.
type DiscordEditEvent struct {
	Message DiscordMessage
}

// DiscordReactionEvent is a reaction added to or removed from a Discord
// message.
type DiscordReactionEvent struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	Added     bool
}

// DiscordVoiceStateEvent is a change of a member's voice channel.
type DiscordVoiceStateEvent struct {
	GuildID string
	User    DiscordUser
	// ChannelID is the voice channel after the change, empty when the user
	// left voice entirely.
	ChannelID         string
	PreviousChannelID string
}

// InteractionResponse answers a component interaction.
type InteractionResponse struct {
	Content string
	// Ephemeral responses are only shown to the interacting user.
	Ephemeral bool
	// UpdateMessage replaces the content of the message carrying the
	// component and disables the component.
	UpdateMessage bool
}

// DiscordLinkSelectEvent is a selection in a !link menu.
type DiscordLinkSelectEvent struct {
	ChannelID string
	MessageID string
	User      DiscordUser
	CustomID  string
	Values    []string
	// Respond answers the interaction. It must be called exactly once.
	Respond func(ctx context.Context, resp InteractionResponse) error
}

func (*DiscordMessageEvent) Source() Platform    { return PlatformDiscord }
func (*DiscordEditEvent) Source() Platform       { return PlatformDiscord }
func (*DiscordReactionEvent) Source() Platform   { return PlatformDiscord }
func (*DiscordVoiceStateEvent) Source() Platform { return PlatformDiscord }
func (*DiscordLinkSelectEvent) Source() Platform { return PlatformDiscord }
func (*TelegramMessageEvent) Source() Platform   { return PlatformTelegram }
func (*TelegramEditEvent) Source() Platform      { return PlatformTelegram }
func (*TelegramReactionEvent) Source() Platform  { return PlatformTelegram }

// TelegramUser describes the sender of a Telegram event.
type TelegramUser struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
}

// FullName joins the first and last name.
func (u TelegramUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName returns "Full Name (@username)", falling back to whichever
// part exists and finally to "User (<id>)".
func (u TelegramUser) DisplayName() string {
	name := u.FullName()
	switch {
	case name != "" && u.Username != "":
		return name + " (@" + u.Username + ")"
	case name != "":
		return name
	case u.Username != "":
		return "@" + u.Username
	default:
		return "User (" + strconv.FormatInt(u.ID, 10) + ")"
	}
}

// TelegramSticker is a sticker attached to a Telegram message.
type TelegramSticker struct {
	FileID   string
	Emoji    string
	Animated bool
	Video    bool
}

// TelegramMessage is a message posted or edited in Telegram.
type TelegramMessage struct {
	ID     int
	ChatID int64
	From   TelegramUser
	// Text holds the message text, or the caption of a media message.
	Text     string
	Entities []telegramfmt.Entity
	// ReplyToID is the id of the message this one replies to, or zero.
	ReplyToID int
	// PhotoFileID is the file id of the largest photo size, if any.
	PhotoFileID string
	Sticker     *TelegramSticker
}

// HasMedia reports whether the message carries a photo or sticker.
func (m *TelegramMessage) HasMedia() bool {
	return m.PhotoFileID != "" || m.Sticker != nil
}

// TelegramMessageEvent is a new Telegram message.
type TelegramMessageEvent struct {
	Message TelegramMessage
}

// TelegramEditEvent is an edit of a Telegram message.
type TelegramEditEvent struct {
	Message TelegramMessage
}

// TelegramReactionEvent is a change of one user's reactions on a Telegram
// message.
type TelegramReactionEvent struct {
	ChatID    int64
	MessageID int
	User      TelegramUser
	OldEmojis []string
	NewEmojis []string
}
