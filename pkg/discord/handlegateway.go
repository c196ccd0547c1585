// Copyright 2024-2026 Aiku AI

package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	c.selfID.Store(r.User.ID)
	c.log.Info().
		Str("user_id", r.User.ID).
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Discord gateway ready")
}

func (c *Client) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg := c.convertMessage(m.Message)
	if msg == nil {
		return
	}
	c.log.Trace().Str("message_id", msg.ID).Str("channel_id", msg.ChannelID).Msg("Received message")
	c.queue(&relay.DiscordMessageEvent{Message: *msg})
}

func (c *Client) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	// Embed unfurls arrive as updates without an edit timestamp.
	if m.Message == nil || m.EditedTimestamp == nil {
		return
	}
	msg := c.convertMessage(m.Message)
	if msg == nil {
		return
	}
	c.log.Trace().Str("message_id", msg.ID).Str("channel_id", msg.ChannelID).Msg("Received edit")
	c.queue(&relay.DiscordEditEvent{Message: *msg})
}

func (c *Client) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	c.queue(convertReaction(r.MessageReaction, true))
}

func (c *Client) onReactionRemove(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.MessageReaction == nil {
		return
	}
	c.queue(convertReaction(r.MessageReaction, false))
}

func (c *Client) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || v.GuildID == "" {
		return
	}
	evt := &relay.DiscordVoiceStateEvent{
		GuildID:   v.GuildID,
		ChannelID: v.ChannelID,
	}
	if v.Member != nil && v.Member.User != nil {
		evt.User = convertUser(v.Member.User, v.Member)
	} else {
		evt.User = c.lookupUser(v.GuildID, &discordgo.User{ID: v.UserID}, nil)
	}
	if v.BeforeUpdate != nil {
		evt.PreviousChannelID = v.BeforeUpdate.ChannelID
	}
	if evt.ChannelID == evt.PreviousChannelID {
		// Mute and deafen toggles.
		return
	}
	c.queue(evt)
}

func (c *Client) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	evt := c.convertLinkSelect(i.Interaction)
	if evt == nil {
		return
	}
	c.queue(evt)
}

// convertMessage returns nil for messages the relay can't act on: those
// without an author and system messages.
func (c *Client) convertMessage(m *discordgo.Message) *relay.DiscordMessage {
	if m == nil || m.Author == nil {
		return nil
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		c.log.Trace().Int("message_type", int(m.Type)).Str("message_id", m.ID).Msg("Ignoring system message")
		return nil
	}
	msg := &relay.DiscordMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    c.lookupUser(m.GuildID, m.Author, m.Member),
		Content:   m.Content,
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, relay.Attachment{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	if m.Type == discordgo.MessageTypeReply && m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	if len(m.Mentions) > 0 {
		msg.MentionNames = make(map[string]string, len(m.Mentions))
		for _, u := range m.Mentions {
			if u == nil {
				continue
			}
			msg.MentionNames[u.ID] = c.lookupUser(m.GuildID, u, nil).DisplayName()
		}
	}
	return msg
}

func convertReaction(r *discordgo.MessageReaction, added bool) *relay.DiscordReactionEvent {
	return &relay.DiscordReactionEvent{
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
		Added:     added,
	}
}

func (c *Client) convertLinkSelect(i *discordgo.Interaction) *relay.DiscordLinkSelectEvent {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return nil
	}
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, relay.LinkMenuPrefix) {
		c.log.Trace().Str("custom_id", data.CustomID).Msg("Ignoring unknown component interaction")
		return nil
	}
	evt := &relay.DiscordLinkSelectEvent{
		ChannelID: i.ChannelID,
		CustomID:  data.CustomID,
		Values:    data.Values,
		Respond: func(ctx context.Context, resp relay.InteractionResponse) error {
			return c.respond(ctx, i, resp)
		},
	}
	if i.Message != nil {
		evt.MessageID = i.Message.ID
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		evt.User = convertUser(i.Member.User, i.Member)
	case i.User != nil:
		evt.User = convertUser(i.User, nil)
	}
	return evt
}

// lookupUser describes a guild member. The member sent with the event wins
// over the gateway cache, which is only consulted when the event has none.
func (c *Client) lookupUser(guildID string, u *discordgo.User, member *discordgo.Member) relay.DiscordUser {
	if member != nil {
		return convertUser(u, member)
	}
	if guildID != "" {
		if m, err := c.session.State.Member(guildID, u.ID); err == nil {
			if m.User != nil {
				u = m.User
			}
			return convertUser(u, m)
		}
	}
	return convertUser(u, nil)
}

func convertUser(u *discordgo.User, m *discordgo.Member) relay.DiscordUser {
	user := relay.DiscordUser{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
	}
	if m != nil {
		user.Nick = m.Nick
	}
	return user
}
