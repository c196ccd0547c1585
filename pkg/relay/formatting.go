// Copyright 2024-2026 Aiku AI

package relay

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/aiku/discord-telegram-bridge/pkg/relay/discordfmt"
	"github.com/aiku/discord-telegram-bridge/pkg/relay/telegramfmt"
)

// Notes appended when a reply target has no counterpart.
const (
	unmappedReplyHTML     = "\n<i>(in reply to an unmapped message)</i>"
	unmappedReplyMarkdown = "\n*(in reply to an unmapped message)*"
)

// discordResolver resolves mention tokens of one Discord message.
type discordResolver struct {
	discord  DiscordAPI
	linker   *IdentityLinker
	guildID  string
	mentions map[string]string
}

var _ discordfmt.Resolver = (*discordResolver)(nil)

func (d *discordResolver) MemberName(userID string) (string, bool) {
	if name, ok := d.mentions[userID]; ok && name != "" {
		return name, true
	}
	return d.discord.MemberName(d.guildID, userID)
}

func (d *discordResolver) LinkedTelegramID(userID string) (int64, bool) {
	return d.linker.TelegramUserFor(userID)
}

func (d *discordResolver) RoleName(roleID string) (string, bool) {
	return d.discord.RoleName(d.guildID, roleID)
}

func (d *discordResolver) ChannelName(channelID string) (string, bool) {
	return d.discord.ChannelName(channelID)
}

func (r *Relay) renderDiscord(msg *DiscordMessage) *discordfmt.Result {
	return discordfmt.Render(msg.Content, &discordResolver{
		discord:  r.discord,
		linker:   r.linker,
		guildID:  msg.GuildID,
		mentions: msg.MentionNames,
	})
}

// discordSenderName renders the display name of a Discord author.
func (r *Relay) discordSenderName(u DiscordUser) string {
	return r.cfg.Bridge.FormatDisplayname(DisplaynameParams{
		Name:       u.DisplayName(),
		Username:   u.Username,
		Nickname:   u.Nick,
		GlobalName: u.GlobalName,
		ID:         u.ID,
	})
}

// telegramSenderName renders the display name of a Telegram sender.
func (r *Relay) telegramSenderName(u TelegramUser) string {
	return r.cfg.Bridge.FormatDisplayname(DisplaynameParams{
		Name:      u.DisplayName(),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		ID:        strconv.FormatInt(u.ID, 10),
	})
}

// telegramHeader is the bold sender line prefixed to messages sent to
// Telegram. Linked senders are rendered as a mention of their Telegram
// account.
func (r *Relay) telegramHeader(u DiscordUser) string {
	name := discordfmt.DefuseMassMentions(r.discordSenderName(u))
	if tgID, ok := r.linker.TelegramUserFor(u.ID); ok {
		return "<b>" + discordfmt.UserLink(tgID, name) + ":</b>\n"
	}
	return "<b>" + discordfmt.EscapeHTML(name) + ":</b>\n"
}

// discordHeader is the bold sender prefix of messages sent to Discord.
// Linked senders get a mention of their Discord account, which is never
// allowed to ping.
func (r *Relay) discordHeader(u TelegramUser) string {
	name := telegramfmt.Escape(r.telegramSenderName(u))
	if discordID, ok := r.linker.DiscordUserFor(u.ID); ok {
		return "**" + name + "** (<@" + discordID + ">): "
	}
	return "**" + name + ":** "
}

// attachmentLine links a Discord attachment that is not sent as a photo.
func attachmentLine(a Attachment) string {
	name := a.Filename
	if name == "" {
		name = "attachment"
	}
	line := "📎 " + `<a href="` + discordfmt.EscapeHTML(a.URL) + `">` + discordfmt.EscapeHTML(name) + "</a>"
	if a.Size > 0 {
		line += " (" + humanize.IBytes(uint64(a.Size)) + ")"
	}
	return line
}

// telegramPost is a Discord message rendered for Telegram.
type telegramPost struct {
	// HTML is the sender header followed by the body, untruncated.
	HTML string
	// Empty is set when the message has no body, so HTML is just the header.
	Empty  bool
	Emojis []discordfmt.CustomEmoji
}

// composeTelegram renders a Discord message for Telegram. Attachments in
// linked are rendered as link lines; the others are expected to be sent as
// photos.
func (r *Relay) composeTelegram(msg *DiscordMessage, linked []Attachment, replyMapped bool) telegramPost {
	res := r.renderDiscord(msg)
	var body strings.Builder
	body.WriteString(res.HTML)
	for _, a := range linked {
		if body.Len() > 0 {
			body.WriteByte('\n')
		}
		body.WriteString(attachmentLine(a))
	}
	if msg.ReplyToID != "" && !replyMapped {
		body.WriteString(unmappedReplyHTML)
	}
	header := r.telegramHeader(msg.Author)
	if strings.TrimSpace(body.String()) == "" {
		return telegramPost{HTML: strings.TrimSuffix(header, "\n"), Empty: true, Emojis: res.Emojis}
	}
	return telegramPost{HTML: header + body.String(), Emojis: res.Emojis}
}

// composeDiscord builds the Discord markdown for a Telegram message and
// returns the Discord users it may ping.
func (r *Relay) composeDiscord(msg *TelegramMessage, extra string, replyMapped bool) (string, []string) {
	res := telegramfmt.Render(msg.Text, msg.Entities, r.linker)
	body := res.Markdown
	if extra != "" {
		if body != "" {
			body += "\n"
		}
		body += extra
	}
	if msg.ReplyToID != 0 && !replyMapped {
		body += unmappedReplyMarkdown
	}
	return telegramfmt.Truncate(r.discordHeader(msg.From)+body, telegramfmt.MessageLimit), res.Mentioned
}
