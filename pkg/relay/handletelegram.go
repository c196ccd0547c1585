// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exslices"
	"go.mau.fi/util/variationselector"
)

func (r *Relay) telegramLog(msg *TelegramMessage) zerolog.Logger {
	return r.log.With().
		Int("telegram_msg_id", msg.ID).
		Int64("telegram_user_id", msg.From.ID).
		Logger()
}

// discordReplyTarget returns the Discord counterpart of a replied-to
// Telegram message.
func (r *Relay) discordReplyTarget(replyToID int) (string, bool) {
	if replyToID == 0 {
		return "", false
	}
	rec, ok := r.store.Lookup(TelegramKey(replyToID))
	if !ok || rec.CounterpartID == "" {
		return "", false
	}
	return rec.CounterpartID, true
}

// parseTelegramCommand extracts the lower-case command name from text
// starting with "/name" or "/name@bot".
func parseTelegramCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

func (r *Relay) handleTelegramMessage(ctx context.Context, msg *TelegramMessage) {
	if msg.From.ID == r.telegram.SelfID() {
		r.skip("own_message")
		return
	}
	if cmd, ok := parseTelegramCommand(msg.Text); ok {
		r.handleTelegramCommand(ctx, cmd, msg)
		return
	}
	log := r.telegramLog(msg)
	if msg.ChatID != r.cfg.Telegram.GroupID {
		log.Debug().Int64("chat_id", msg.ChatID).Msg("Ignoring message from unconfigured chat")
		r.skip("other_chat")
		return
	}

	replyTo, replyMapped := r.discordReplyTarget(msg.ReplyToID)
	out := &DiscordOutgoing{ReplyToID: replyTo}
	var placeholder string
	switch {
	case msg.PhotoFileID != "":
		photo, err := r.telegramPhoto(ctx, msg.PhotoFileID, log)
		if err != nil {
			log.Err(err).Msg("Failed to download Telegram photo")
			r.metrics.failed.WithLabelValues(directionToDiscord, "message").Inc()
			return
		}
		out.Files = append(out.Files, *photo)
	case msg.Sticker != nil:
		var sticker *OutgoingFile
		sticker, placeholder = r.telegramSticker(ctx, msg.Sticker, log)
		if sticker != nil {
			out.Files = append(out.Files, *sticker)
		}
	}

	var mentioned []string
	out.Content, mentioned = r.composeDiscord(msg, placeholder, replyMapped)
	if len(out.Files) == 0 && strings.TrimSpace(msg.Text) == "" && placeholder == "" {
		r.skip("empty")
		return
	}
	out.MentionUserIDs = mentioned

	var discordID string
	err := r.callDiscord(ctx, func(ctx context.Context) error {
		var err error
		discordID, err = r.discord.SendMessage(ctx, r.cfg.Discord.ChannelID, out)
		return err
	})
	if err != nil {
		log.Err(err).Msg("Failed to send Telegram message to Discord")
		r.metrics.failed.WithLabelValues(directionToDiscord, "message").Inc()
		return
	}
	r.putPair(Pair{
		DiscordID:       discordID,
		TelegramID:      msg.ID,
		DiscordIsMedia:  len(out.Files) > 0,
		TelegramIsMedia: msg.HasMedia(),
		DiscordContent:  out.Content,
		TelegramContent: msg.Text,
	})
	r.metrics.relayed.WithLabelValues(directionToDiscord, "message").Inc()
	log.Debug().Str("discord_msg_id", discordID).Msg("Relayed Telegram message to Discord")
}

func (r *Relay) handleTelegramEdit(ctx context.Context, msg *TelegramMessage) {
	if msg.ChatID != r.cfg.Telegram.GroupID || msg.From.ID == r.telegram.SelfID() {
		return
	}
	key := TelegramKey(msg.ID)
	rec, ok := r.store.Lookup(key)
	if !ok {
		r.skip("unmapped")
		return
	}
	log := r.telegramLog(msg).With().Str("discord_msg_id", rec.CounterpartID).Logger()

	var placeholder string
	if msg.Sticker != nil && (msg.Sticker.Animated || msg.Sticker.Video) {
		placeholder = stickerAnimatedText
	}
	_, replyMapped := r.discordReplyTarget(msg.ReplyToID)
	content, mentioned := r.composeDiscord(msg, placeholder, replyMapped)
	if content == rec.RenderedContent {
		r.skip("unchanged")
		return
	}
	err := r.callDiscord(ctx, func(ctx context.Context) error {
		return r.discord.EditMessage(ctx, r.cfg.Discord.ChannelID, rec.CounterpartID, content, mentioned)
	})
	switch {
	case err == nil, errors.Is(err, ErrNotModified):
		r.store.SetRendered(key, content)
		r.metrics.relayed.WithLabelValues(directionToDiscord, "edit").Inc()
		log.Debug().Msg("Relayed Telegram edit to Discord")
	case isStale(err):
		log.Warn().Err(err).Msg("Discord message is gone, forgetting pair")
		r.dropPair(key)
	default:
		log.Err(err).Msg("Failed to edit Discord message")
		r.metrics.failed.WithLabelValues(directionToDiscord, "edit").Inc()
	}
}

func (r *Relay) handleTelegramReaction(ctx context.Context, evt *TelegramReactionEvent) {
	if evt.ChatID != r.cfg.Telegram.GroupID || evt.User.ID == r.telegram.SelfID() {
		return
	}
	key := TelegramKey(evt.MessageID)
	rec, ok := r.store.Lookup(key)
	if !ok {
		r.skip("unmapped")
		return
	}
	log := r.log.With().
		Int("telegram_msg_id", evt.MessageID).
		Str("discord_msg_id", rec.CounterpartID).
		Logger()

	for _, emoji := range addedReactions(evt.OldEmojis, evt.NewEmojis) {
		err := r.callDiscord(ctx, func(ctx context.Context) error {
			return r.discord.AddReaction(ctx, r.cfg.Discord.ChannelID, rec.CounterpartID, emoji)
		})
		switch {
		case err == nil:
			r.metrics.relayed.WithLabelValues(directionToDiscord, "reaction").Inc()
		case errors.Is(err, ErrNotFound):
			log.Warn().Err(err).Msg("Discord message is gone, forgetting pair")
			r.dropPair(key)
			return
		case errors.Is(err, ErrForbidden):
			log.Err(err).Msg("Missing permission to add reactions on Discord")
			r.metrics.failed.WithLabelValues(directionToDiscord, "reaction").Inc()
			return
		default:
			log.Warn().Err(err).Str("emoji", emoji).Msg("Failed to add Discord reaction")
			r.metrics.failed.WithLabelValues(directionToDiscord, "reaction").Inc()
		}
	}
}

// addedReactions returns the emoji in updated but not in previous, in the
// fully-qualified form Discord expects.
func addedReactions(previous, updated []string) []string {
	old := make([]string, len(previous))
	for i, emoji := range previous {
		old[i] = variationselector.Remove(emoji)
	}
	var added []string
	for _, emoji := range updated {
		if !slices.Contains(old, variationselector.Remove(emoji)) {
			added = append(added, variationselector.FullyQualify(emoji))
		}
	}
	return exslices.DeduplicateUnsorted(added)
}

func formatChatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
