// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"strings"

	"github.com/aiku/discord-telegram-bridge/pkg/relay/discordfmt"
	"github.com/aiku/discord-telegram-bridge/pkg/relay/telegramfmt"
)

// handleVoiceState announces members joining the watched voice channel on
// both platforms, together with who is already there.
func (r *Relay) handleVoiceState(ctx context.Context, evt *DiscordVoiceStateEvent) {
	target := r.cfg.Discord.VoiceChannelID
	if !r.cfg.Discord.VoiceEnabled() || evt.User.Bot {
		return
	}
	if evt.ChannelID != target || evt.PreviousChannelID == target {
		return
	}
	log := r.log.With().Str("discord_user_id", evt.User.ID).Str("voice_channel_id", target).Logger()

	var members []VoiceMember
	err := r.callDiscord(ctx, func(ctx context.Context) error {
		var err error
		members, err = r.discord.VoiceChannelMembers(ctx, evt.GuildID, target)
		return err
	})
	present := err == nil
	if !present {
		log.Warn().Err(err).Msg("Failed to list voice channel members")
	}
	var others []string
	for _, m := range members {
		if m.UserID != evt.User.ID {
			others = append(others, m.Name)
		}
	}
	channelName, ok := r.discord.ChannelName(target)
	if !ok {
		channelName = target
	}
	name := evt.User.DisplayName()

	discordText := voiceAnnouncement(name, channelName, others, present, markdownBold, telegramfmt.Escape)
	telegramText := voiceAnnouncement(name, channelName, others, present, htmlBold, discordfmt.EscapeHTML)

	err = r.callDiscord(ctx, func(ctx context.Context) error {
		_, err := r.discord.SendMessage(ctx, r.cfg.Discord.ChannelID, &DiscordOutgoing{Content: discordText})
		return err
	})
	if err != nil {
		log.Err(err).Msg("Failed to announce voice join on Discord")
		r.metrics.failed.WithLabelValues(directionToDiscord, "voice").Inc()
	}
	err = r.callTelegram(ctx, func(ctx context.Context) error {
		_, err := r.telegram.SendText(ctx, r.cfg.Telegram.GroupID, telegramText, 0)
		return err
	})
	if err != nil {
		log.Err(err).Msg("Failed to announce voice join on Telegram")
		r.metrics.failed.WithLabelValues(directionToTelegram, "voice").Inc()
		return
	}
	r.metrics.relayed.WithLabelValues(directionToTelegram, "voice").Inc()
	log.Info().Int("already_present", len(others)).Msg("Announced voice join")
}

func markdownBold(s string) string { return "**" + s + "**" }
func htmlBold(s string) string     { return "<b>" + s + "</b>" }

// voiceAnnouncement renders a join announcement, escaping names with escape
// and emphasising them with bold. Who else is present is only mentioned when
// known.
func voiceAnnouncement(name, channel string, others []string, known bool, bold, escape func(string) string) string {
	var b strings.Builder
	b.WriteString("🎙️ " + bold(escape(name)) + " has joined the voice channel: " + bold(escape(channel)))
	if !known {
		return b.String()
	}
	if len(others) == 0 {
		b.WriteString("\n✨ They are the first one here!")
		return b.String()
	}
	escaped := make([]string, len(others))
	for i, other := range others {
		escaped[i] = escape(other)
	}
	b.WriteString("\n👥 Already present: " + strings.Join(escaped, ", "))
	return b.String()
}
