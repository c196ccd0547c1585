// Copyright 2024-2026 Aiku AI

package relay

import "context"

// OutgoingFile is a file uploaded with an outbound message.
type OutgoingFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// DiscordOutgoing is a message sent to Discord.
type DiscordOutgoing struct {
	Content   string
	Files     []OutgoingFile
	ReplyToID string
	// MentionUserIDs lists the only users the message may ping. Role and
	// everyone mentions never ping.
	MentionUserIDs []string
}

// LinkOption is one entry of a !link selection menu.
type LinkOption struct {
	Label    string
	Value    string
	Disabled bool
}

// LinkMenu is a single-choice selection menu.
type LinkMenu struct {
	Content     string
	CustomID    string
	Placeholder string
	Options     []LinkOption
	ReplyToID   string
}

// VoiceMember is a member connected to a voice channel.
type VoiceMember struct {
	UserID string
	Name   string
	Bot    bool
}

// DiscordAPI is the set of Discord operations the relay needs. Directory
// lookups are served from the gateway cache and do not block.
type DiscordAPI interface {
	SelfID() string
	SendMessage(ctx context.Context, channelID string, msg *DiscordOutgoing) (string, error)
	EditMessage(ctx context.Context, channelID, messageID, content string, mentionUserIDs []string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	// MessageReactions returns the unicode reactions currently on a message,
	// in display order. Custom emoji are omitted.
	MessageReactions(ctx context.Context, channelID, messageID string) ([]string, error)
	SendLinkMenu(ctx context.Context, channelID string, menu *LinkMenu) (string, error)
	// CloseLinkMenu replaces the menu message content and disables the menu.
	CloseLinkMenu(ctx context.Context, channelID, messageID, content string) error

	MemberName(guildID, userID string) (string, bool)
	RoleName(guildID, roleID string) (string, bool)
	ChannelName(channelID string) (string, bool)
	// RoleMembers returns the non-bot members holding a role.
	RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error)
	VoiceChannelMembers(ctx context.Context, guildID, channelID string) ([]VoiceMember, error)
}

// TelegramAPI is the set of Telegram operations the relay needs. Text and
// captions are Telegram HTML.
type TelegramAPI interface {
	SelfID() int64
	SendText(ctx context.Context, chatID int64, html string, replyTo int) (int, error)
	SendPhoto(ctx context.Context, chatID int64, photo OutgoingFile, caption string, replyTo int) (int, error)
	// SendMediaGroup sends up to ten photos as an album with the caption on
	// the first one and returns the ids of the sent messages.
	SendMediaGroup(ctx context.Context, chatID int64, photos []OutgoingFile, caption string, replyTo int) ([]int, error)
	EditText(ctx context.Context, chatID int64, messageID int, html string) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
	// SetReactions replaces the bot's reactions on a message. An empty list
	// clears them.
	SetReactions(ctx context.Context, chatID int64, messageID int, emojis []string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	ChatAdministrators(ctx context.Context, chatID int64) ([]TelegramUser, error)
}

// Downloader fetches remote files such as Discord attachments and emoji.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}
