// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exslices"
	"go.mau.fi/util/variationselector"

	"github.com/aiku/discord-telegram-bridge/pkg/relay/discordfmt"
)

// mediaGroupLimit is the maximum number of photos in one Telegram album.
const mediaGroupLimit = 10

func (r *Relay) discordLog(msg *DiscordMessage) zerolog.Logger {
	return r.log.With().
		Str("discord_msg_id", msg.ID).
		Str("discord_user_id", msg.Author.ID).
		Logger()
}

// telegramReplyTarget returns the Telegram counterpart of a replied-to
// Discord message.
func (r *Relay) telegramReplyTarget(replyToID string) (int, bool) {
	if replyToID == "" {
		return 0, false
	}
	rec, ok := r.store.Lookup(DiscordKey(replyToID))
	if !ok {
		return 0, false
	}
	id, err := ParseTelegramMessageID(rec.CounterpartID)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (r *Relay) handleDiscordMessage(ctx context.Context, msg *DiscordMessage) {
	if msg.Author.ID == r.discord.SelfID() {
		r.skip("own_message")
		return
	}
	if prefix := r.cfg.Discord.CommandPrefix; prefix != "" && strings.HasPrefix(msg.Content, prefix) {
		r.handleDiscordCommand(ctx, msg)
		return
	}
	if msg.ChannelID != r.cfg.Discord.ChannelID {
		r.skip("other_chat")
		return
	}
	log := r.discordLog(msg)
	if r.presenceGateClosed(ctx, msg.GuildID, log) {
		r.skip("presence_gate")
		return
	}

	replyTo, replyMapped := r.telegramReplyTarget(msg.ReplyToID)
	photos, linked := r.downloadImages(ctx, msg.Attachments, log)
	post := r.composeTelegram(msg, linked, replyMapped)
	emojis := r.downloadEmojis(ctx, post.Emojis, log)

	var mainID int
	var isMedia bool
	var sent string
	var err error
	switch {
	case len(photos) == 1:
		sent = discordfmt.Truncate(post.HTML, discordfmt.CaptionLimit)
		err = r.callTelegram(ctx, func(ctx context.Context) error {
			mainID, err = r.telegram.SendPhoto(ctx, r.cfg.Telegram.GroupID, photos[0], sent, replyTo)
			return err
		})
		isMedia = true
	case len(photos) > 1:
		sent = discordfmt.Truncate(post.HTML, discordfmt.CaptionLimit)
		mainID, err = r.sendAlbum(ctx, photos, sent, replyTo)
		isMedia = true
	case !post.Empty:
		sent = discordfmt.Truncate(post.HTML, discordfmt.TextLimit)
		err = r.callTelegram(ctx, func(ctx context.Context) error {
			mainID, err = r.telegram.SendText(ctx, r.cfg.Telegram.GroupID, sent, replyTo)
			return err
		})
	}
	if err != nil {
		log.Err(err).Msg("Failed to send Discord message to Telegram")
		r.metrics.failed.WithLabelValues(directionToTelegram, "message").Inc()
		return
	}

	replyContext := replyTo
	if mainID != 0 {
		replyContext = mainID
	}
	for _, emoji := range emojis {
		var emojiID int
		err := r.callTelegram(ctx, func(ctx context.Context) error {
			var err error
			emojiID, err = r.telegram.SendPhoto(ctx, r.cfg.Telegram.GroupID, emoji, "", replyContext)
			return err
		})
		if err != nil {
			log.Err(err).Str("file_name", emoji.Name).Msg("Failed to send custom emoji to Telegram")
			continue
		}
		if mainID == 0 {
			mainID, isMedia, replyContext = emojiID, true, emojiID
		}
	}
	if mainID == 0 {
		r.skip("empty")
		return
	}

	r.putPair(Pair{
		DiscordID:       msg.ID,
		TelegramID:      mainID,
		DiscordIsMedia:  len(msg.Attachments) > 0,
		TelegramIsMedia: isMedia,
		DiscordContent:  msg.Content,
		TelegramContent: sent,
	})
	r.metrics.relayed.WithLabelValues(directionToTelegram, "message").Inc()
	log.Debug().Int("telegram_msg_id", mainID).Msg("Relayed Discord message to Telegram")
}

// sendAlbum sends photos as one or more media groups and returns the id of
// the first message sent. The caption goes on the first photo only.
func (r *Relay) sendAlbum(ctx context.Context, photos []OutgoingFile, caption string, replyTo int) (int, error) {
	var first int
	for i, chunk := range exslices.Chunk(photos, mediaGroupLimit) {
		chunkCaption, chunkReply := "", replyTo
		if i == 0 {
			chunkCaption = caption
		} else {
			chunkReply = first
		}
		var ids []int
		err := r.callTelegram(ctx, func(ctx context.Context) error {
			var err error
			if len(chunk) == 1 {
				var id int
				id, err = r.telegram.SendPhoto(ctx, r.cfg.Telegram.GroupID, chunk[0], chunkCaption, chunkReply)
				ids = []int{id}
			} else {
				ids, err = r.telegram.SendMediaGroup(ctx, r.cfg.Telegram.GroupID, chunk, chunkCaption, chunkReply)
			}
			return err
		})
		if err != nil {
			if first != 0 {
				// The first album is already out; keep it mapped.
				r.log.Err(err).Int("telegram_msg_id", first).Msg("Failed to send remaining photos to Telegram")
				return first, nil
			}
			return 0, err
		}
		if i == 0 && len(ids) > 0 {
			first = ids[0]
		}
	}
	return first, nil
}

func (r *Relay) handleDiscordEdit(ctx context.Context, msg *DiscordMessage) {
	if msg.Author.ID == r.discord.SelfID() || msg.ChannelID != r.cfg.Discord.ChannelID {
		return
	}
	key := DiscordKey(msg.ID)
	rec, ok := r.store.Lookup(key)
	if !ok {
		r.skip("unmapped")
		return
	}
	log := r.discordLog(msg).With().Str("telegram_msg_id", rec.CounterpartID).Logger()
	tgID, err := ParseTelegramMessageID(rec.CounterpartID)
	if err != nil {
		log.Err(err).Msg("Invalid Telegram message id in correlation store")
		return
	}

	// Images that were not sent as photos were linked inline.
	linked := msg.Attachments
	if rec.IsMedia {
		linked = nonImageAttachments(msg.Attachments)
	}
	_, replyMapped := r.telegramReplyTarget(msg.ReplyToID)
	post := r.composeTelegram(msg, linked, replyMapped)
	limit := discordfmt.TextLimit
	if rec.IsMedia {
		limit = discordfmt.CaptionLimit
	}
	content := discordfmt.Truncate(post.HTML, limit)
	if content == rec.RenderedContent {
		r.skip("unchanged")
		return
	}

	err = r.callTelegram(ctx, func(ctx context.Context) error {
		if rec.IsMedia {
			return r.telegram.EditCaption(ctx, r.cfg.Telegram.GroupID, tgID, content)
		}
		return r.telegram.EditText(ctx, r.cfg.Telegram.GroupID, tgID, content)
	})
	switch {
	case err == nil, errors.Is(err, ErrNotModified):
		r.store.SetRendered(key, content)
		r.metrics.relayed.WithLabelValues(directionToTelegram, "edit").Inc()
		log.Debug().Msg("Relayed Discord edit to Telegram")
	case isStale(err):
		log.Warn().Err(err).Msg("Telegram message is gone, forgetting pair")
		r.dropPair(key)
	default:
		log.Err(err).Msg("Failed to edit Telegram message")
		r.metrics.failed.WithLabelValues(directionToTelegram, "edit").Inc()
	}
}

func (r *Relay) handleDiscordReaction(ctx context.Context, evt *DiscordReactionEvent) {
	if evt.UserID == r.discord.SelfID() || evt.ChannelID != r.cfg.Discord.ChannelID {
		return
	}
	key := DiscordKey(evt.MessageID)
	rec, ok := r.store.Lookup(key)
	if !ok {
		r.skip("unmapped")
		return
	}
	log := r.log.With().
		Str("discord_msg_id", evt.MessageID).
		Str("telegram_msg_id", rec.CounterpartID).
		Logger()
	tgID, err := ParseTelegramMessageID(rec.CounterpartID)
	if err != nil {
		log.Err(err).Msg("Invalid Telegram message id in correlation store")
		return
	}
	defer r.reactionLocks.lock(key)()

	var glyphs []string
	err = r.callDiscord(ctx, func(ctx context.Context) error {
		glyphs, err = r.discord.MessageReactions(ctx, evt.ChannelID, evt.MessageID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Msg("Discord message is gone, forgetting pair")
			r.dropPair(key)
			return
		}
		log.Err(err).Msg("Failed to fetch Discord reactions")
		r.metrics.failed.WithLabelValues(directionToTelegram, "reaction").Inc()
		return
	}

	emojis := telegramReactions(glyphs, r.cfg.Bridge.MaxReactions)
	err = r.callTelegram(ctx, func(ctx context.Context) error {
		return r.telegram.SetReactions(ctx, r.cfg.Telegram.GroupID, tgID, emojis)
	})
	switch {
	case err == nil:
		r.metrics.relayed.WithLabelValues(directionToTelegram, "reaction").Inc()
		log.Debug().Strs("emojis", emojis).Msg("Synced reactions to Telegram")
	case isStale(err):
		log.Warn().Err(err).Msg("Telegram message is unavailable for reactions, forgetting pair")
		r.dropPair(key)
	default:
		log.Err(err).Strs("emojis", emojis).Msg("Failed to set Telegram reactions")
		r.metrics.failed.WithLabelValues(directionToTelegram, "reaction").Inc()
	}
}

// telegramReactions normalises Discord reaction glyphs for Telegram, which
// lists its reactions without variation selectors. The result holds distinct
// glyphs in their original order, at most limit of them.
func telegramReactions(glyphs []string, limit int) []string {
	out := make([]string, 0, len(glyphs))
	for _, glyph := range glyphs {
		if glyph = variationselector.Remove(glyph); glyph != "" {
			out = append(out, glyph)
		}
	}
	out = exslices.DeduplicateUnsorted(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// presenceGateClosed reports whether every non-bot member holding the
// watched role is in the watched voice channel. Lookup failures keep the
// gate open.
func (r *Relay) presenceGateClosed(ctx context.Context, guildID string, log zerolog.Logger) bool {
	if !r.cfg.Discord.PresenceGateEnabled() {
		return false
	}
	var holders []string
	var inVoice []VoiceMember
	err := r.callDiscord(ctx, func(ctx context.Context) error {
		var err error
		holders, err = r.discord.RoleMembers(ctx, guildID, r.cfg.Discord.HumanRoleID)
		if err != nil {
			return err
		}
		inVoice, err = r.discord.VoiceChannelMembers(ctx, guildID, r.cfg.Discord.VoiceChannelID)
		return err
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check voice presence, forwarding anyway")
		return false
	}
	if len(holders) == 0 {
		return false
	}
	present := make(map[string]bool, len(inVoice))
	for _, m := range inVoice {
		if !m.Bot {
			present[m.UserID] = true
		}
	}
	for _, id := range holders {
		if !present[id] {
			return false
		}
	}
	log.Debug().Int("members", len(holders)).Msg("Skipping message, everyone is in voice")
	return true
}
