// Copyright 2024-2026 Aiku AI

package telegram

import (
	tele "gopkg.in/telebot.v3"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
	"github.com/aiku/discord-telegram-bridge/pkg/relay/telegramfmt"
)

const reactionTypeEmoji = "emoji"

// route converts an update into a relay event. It always returns false so
// telebot's own dispatch never sees the update.
func (c *Client) route(u *tele.Update) bool {
	switch {
	case u.Message != nil:
		if msg := convertMessage(u.Message); msg != nil {
			c.log.Trace().Int("message_id", msg.ID).Int64("chat_id", msg.ChatID).Msg("Received message")
			c.queue(&relay.TelegramMessageEvent{Message: *msg})
		}
	case u.EditedMessage != nil:
		if msg := convertMessage(u.EditedMessage); msg != nil {
			c.log.Trace().Int("message_id", msg.ID).Int64("chat_id", msg.ChatID).Msg("Received edit")
			c.queue(&relay.TelegramEditEvent{Message: *msg})
		}
	case u.MessageReaction != nil:
		if evt := convertReaction(u.MessageReaction); evt != nil {
			c.queue(evt)
		}
	default:
		c.log.Trace().Int("update_id", u.ID).Msg("Unhandled update type")
	}
	return false
}

// convertMessage returns nil for service messages and messages without a
// sender.
func convertMessage(m *tele.Message) *relay.TelegramMessage {
	if m.Chat == nil || m.Sender == nil {
		return nil
	}
	msg := &relay.TelegramMessage{
		ID:     m.ID,
		ChatID: m.Chat.ID,
		From:   convertUser(m.Sender),
		Text:   m.Text,
	}
	entities := m.Entities
	if msg.Text == "" {
		msg.Text = m.Caption
		entities = m.CaptionEntities
	}
	msg.Entities = convertEntities(entities)
	// Topic messages reply to the topic's root implicitly.
	if m.ReplyTo != nil && !(m.TopicMessage && m.ReplyTo.TopicCreated != nil) {
		msg.ReplyToID = m.ReplyTo.ID
	}
	if m.Photo != nil {
		msg.PhotoFileID = m.Photo.FileID
	}
	if m.Sticker != nil {
		msg.Sticker = &relay.TelegramSticker{
			FileID:   m.Sticker.FileID,
			Emoji:    m.Sticker.Emoji,
			Animated: m.Sticker.Animated,
			Video:    m.Sticker.Video,
		}
	}
	return msg
}

func convertUser(u *tele.User) relay.TelegramUser {
	return relay.TelegramUser{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		IsBot:     u.IsBot,
	}
}

func convertEntities(entities tele.Entities) []telegramfmt.Entity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]telegramfmt.Entity, 0, len(entities))
	for _, e := range entities {
		ent := telegramfmt.Entity{
			Type:     string(e.Type),
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		}
		if e.User != nil {
			ent.UserID = e.User.ID
		}
		out = append(out, ent)
	}
	return out
}

// convertReaction keeps plain emoji reactions only. Anonymous admins react
// on behalf of the group, which stands in as the user.
func convertReaction(r *tele.MessageReaction) *relay.TelegramReactionEvent {
	if r.Chat == nil {
		return nil
	}
	evt := &relay.TelegramReactionEvent{
		ChatID:    r.Chat.ID,
		MessageID: r.MessageID,
		OldEmojis: emojis(r.OldReaction),
		NewEmojis: emojis(r.NewReaction),
	}
	switch {
	case r.User != nil:
		evt.User = convertUser(r.User)
	case r.ActorChat != nil:
		evt.User = relay.TelegramUser{ID: r.ActorChat.ID, FirstName: r.ActorChat.Title}
	default:
		return nil
	}
	return evt
}

func emojis(reactions []tele.Reaction) []string {
	var out []string
	for _, r := range reactions {
		if r.Type == reactionTypeEmoji && r.Emoji != "" {
			out = append(out, r.Emoji)
		}
	}
	return out
}
