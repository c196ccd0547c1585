// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aiku/discord-telegram-bridge/pkg/relay/discordfmt"
)

// LinkMenuPrefix prefixes the custom id of every !link selection menu.
const LinkMenuPrefix = "link:"

const (
	// maxLinkOptions is the number of options a Discord select menu holds.
	maxLinkOptions     = 25
	maxLinkLabelLength = 100
	noAdminsValue      = "-1"
)

// linkSession is an open !link selection menu.
type linkSession struct {
	token     string
	userID    string
	channelID string
	messageID string
	admins    map[string]TelegramUser
	labels    map[string]string
	timer     *time.Timer
}

func (r *Relay) handleDiscordCommand(ctx context.Context, msg *DiscordMessage) {
	fields := strings.Fields(strings.TrimPrefix(msg.Content, r.cfg.Discord.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	log := r.discordLog(msg).With().Str("command", fields[0]).Logger()
	switch strings.ToLower(fields[0]) {
	case "link":
		r.commandLink(ctx, msg)
	case "unlink":
		r.commandUnlink(ctx, msg)
	default:
		log.Debug().Msg("Ignoring unknown command")
		return
	}
	log.Info().Msg("Handled command")
}

// replyDiscord answers a command message without pinging anyone.
func (r *Relay) replyDiscord(ctx context.Context, msg *DiscordMessage, content string) {
	err := r.callDiscord(ctx, func(ctx context.Context) error {
		_, err := r.discord.SendMessage(ctx, msg.ChannelID, &DiscordOutgoing{Content: content, ReplyToID: msg.ID})
		return err
	})
	if err != nil {
		r.log.Err(err).Str("discord_msg_id", msg.ID).Msg("Failed to reply to command")
	}
}

func (r *Relay) commandLink(ctx context.Context, msg *DiscordMessage) {
	if r.cfg.Telegram.GroupID == 0 {
		r.replyDiscord(ctx, msg, "❌ Telegram Group ID is not configured for this bot.")
		return
	}
	if tgID, ok := r.linker.TelegramUserFor(msg.Author.ID); ok {
		r.replyDiscord(ctx, msg, fmt.Sprintf(
			"ℹ️ Your account is already linked to Telegram ID `%d`. Use `%sunlink` first to change.",
			tgID, r.cfg.Discord.CommandPrefix,
		))
		return
	}

	var admins []TelegramUser
	err := r.callTelegram(ctx, func(ctx context.Context) error {
		var err error
		admins, err = r.telegram.ChatAdministrators(ctx, r.cfg.Telegram.GroupID)
		return err
	})
	if err != nil {
		r.log.Err(err).Int64("chat_id", r.cfg.Telegram.GroupID).Msg("Failed to fetch Telegram administrators")
		r.replyDiscord(ctx, msg, "❌ An error occurred fetching Telegram admins. Check the bridge logs for details.")
		return
	}
	if len(admins) == 0 {
		r.replyDiscord(ctx, msg, "❌ Could not fetch administrators from the Telegram group. Ensure the bot is an administrator there.")
		return
	}

	sess := &linkSession{
		token:     uuid.NewString(),
		userID:    msg.Author.ID,
		channelID: msg.ChannelID,
		admins:    make(map[string]TelegramUser),
		labels:    make(map[string]string),
	}
	menu := &LinkMenu{
		Content:     "Please select your corresponding Telegram admin account from the list below:",
		CustomID:    LinkMenuPrefix + sess.token,
		Placeholder: "Select your corresponding Telegram account...",
		ReplyToID:   msg.ID,
	}
	for _, admin := range admins[:min(len(admins), maxLinkOptions)] {
		if admin.IsBot {
			continue
		}
		value := strconv.FormatInt(admin.ID, 10)
		label := linkOptionLabel(admin)
		sess.admins[value] = admin
		sess.labels[value] = label
		menu.Options = append(menu.Options, LinkOption{Label: label, Value: value})
	}
	if len(menu.Options) == 0 {
		menu.Options = []LinkOption{{Label: "No admins found or bot lacks permissions.", Value: noAdminsValue, Disabled: true}}
	}

	// The session opens first so a quick selection finds it.
	r.openSession(sess)
	var menuID string
	err = r.callDiscord(ctx, func(ctx context.Context) error {
		var err error
		menuID, err = r.discord.SendLinkMenu(ctx, msg.ChannelID, menu)
		return err
	})
	if err != nil {
		r.takeSession(sess.token)
		r.log.Err(err).Str("discord_user_id", msg.Author.ID).Msg("Failed to send link menu")
		return
	}
	r.sessionsMu.Lock()
	sess.messageID = menuID
	r.sessionsMu.Unlock()
}

// linkOptionLabel renders "First Last (@username)" for a menu option.
func linkOptionLabel(u TelegramUser) string {
	label := u.FullName()
	if u.Username != "" {
		label = strings.TrimSpace(label + " (@" + u.Username + ")")
	}
	if label == "" {
		label = "User ID: " + strconv.FormatInt(u.ID, 10)
	}
	if runes := []rune(label); len(runes) > maxLinkLabelLength {
		label = string(runes[:maxLinkLabelLength])
	}
	return label
}

func (r *Relay) openSession(sess *linkSession) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()
	r.sessions[sess.token] = sess
	sess.timer = time.AfterFunc(r.cfg.Bridge.LinkSessionDuration(), func() {
		r.expireSession(sess.token)
	})
}

// takeSession removes and returns an open session.
func (r *Relay) takeSession(token string) *linkSession {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()
	sess, ok := r.sessions[token]
	if !ok {
		return nil
	}
	delete(r.sessions, token)
	sess.timer.Stop()
	return sess
}

func (r *Relay) peekSession(token string) *linkSession {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()
	return r.sessions[token]
}

func (r *Relay) expireSession(token string) {
	sess := r.takeSession(token)
	if sess == nil {
		return
	}
	r.sessionsMu.Lock()
	messageID := sess.messageID
	r.sessionsMu.Unlock()
	if messageID == "" {
		return
	}
	err := r.callDiscord(context.Background(), func(ctx context.Context) error {
		return r.discord.CloseLinkMenu(ctx, sess.channelID, messageID, "Link selection timed out.")
	})
	if err != nil {
		r.log.Warn().Err(err).Str("discord_msg_id", messageID).Msg("Failed to close expired link menu")
	}
}

// closeSessions stops every session timer without touching the menus.
func (r *Relay) closeSessions() {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()
	for token, sess := range r.sessions {
		sess.timer.Stop()
		delete(r.sessions, token)
	}
}

func (r *Relay) handleLinkSelect(ctx context.Context, evt *DiscordLinkSelectEvent) {
	log := r.log.With().Str("discord_user_id", evt.User.ID).Str("custom_id", evt.CustomID).Logger()
	respond := func(resp InteractionResponse) {
		err := r.callDiscord(ctx, func(ctx context.Context) error {
			return evt.Respond(ctx, resp)
		})
		if err != nil {
			log.Err(err).Msg("Failed to respond to link selection")
		}
	}

	token, ok := strings.CutPrefix(evt.CustomID, LinkMenuPrefix)
	if !ok {
		return
	}
	sess := r.peekSession(token)
	if sess == nil {
		respond(InteractionResponse{Content: "Link selection timed out.", Ephemeral: true})
		return
	}
	if evt.User.ID != sess.userID {
		respond(InteractionResponse{Content: "Sorry, only the person who ran the command can use this menu.", Ephemeral: true})
		return
	}
	if sess = r.takeSession(token); sess == nil {
		respond(InteractionResponse{Content: "Link selection timed out.", Ephemeral: true})
		return
	}

	value := ""
	if len(evt.Values) > 0 {
		value = evt.Values[0]
	}
	admin, ok := sess.admins[value]
	if !ok || value == noAdminsValue {
		respond(InteractionResponse{Content: "Selection cancelled or failed.", UpdateMessage: true})
		return
	}
	if err := r.linker.Link(ctx, evt.User.ID, admin.ID, admin.Username); err != nil {
		log.Err(err).Msg("Failed to save identity link")
		respond(InteractionResponse{Content: "❌ Failed to save the link, please try again.", UpdateMessage: true})
		return
	}
	r.metrics.links.Set(float64(r.linker.Count()))
	respond(InteractionResponse{
		Content: fmt.Sprintf(
			"✅ Linked your Discord account (<@%s>) to Telegram account: **%s**",
			evt.User.ID, discordfmt.DefuseMassMentions(sess.labels[value]),
		),
		UpdateMessage: true,
	})
}

func (r *Relay) commandUnlink(ctx context.Context, msg *DiscordMessage) {
	unlinked, err := r.linker.Unlink(ctx, msg.Author.ID)
	if err != nil {
		r.log.Err(err).Str("discord_user_id", msg.Author.ID).Msg("Failed to save identity links after unlink")
	}
	r.metrics.links.Set(float64(r.linker.Count()))
	if unlinked {
		r.replyDiscord(ctx, msg, fmt.Sprintf("✅ Unlinked your Discord account (<@%s>).", msg.Author.ID))
	} else {
		r.replyDiscord(ctx, msg, "ℹ️ Your Discord account was not linked.")
	}
}

func (r *Relay) handleTelegramCommand(ctx context.Context, cmd string, msg *TelegramMessage) {
	var text string
	replyTo := 0
	switch cmd {
	case "myid":
		text = fmt.Sprintf(
			"Hello %s!\nYour Telegram User ID is: <code>%d</code>\n\n"+
				"You can use this ID on Discord with the command:\n<code>%slink %d</code>",
			discordfmt.EscapeHTML(msg.From.FullName()), msg.From.ID,
			discordfmt.EscapeHTML(r.cfg.Discord.CommandPrefix), msg.From.ID,
		)
		replyTo = msg.ID
	case "chatid":
		text = chatIDText(msg.ChatID, r.cfg.Telegram.GroupID)
	default:
		r.skip("command")
		return
	}
	err := r.callTelegram(ctx, func(ctx context.Context) error {
		_, err := r.telegram.SendText(ctx, msg.ChatID, text, replyTo)
		return err
	})
	if err != nil {
		r.log.Err(err).Str("command", cmd).Int64("chat_id", msg.ChatID).Msg("Failed to answer Telegram command")
		return
	}
	r.log.Info().Str("command", cmd).Int64("telegram_user_id", msg.From.ID).Msg("Handled command")
}

func chatIDText(chatID, groupID int64) string {
	id := formatChatID(chatID)
	text := "ℹ️ Chat ID: <code>" + id + "</code>"
	switch {
	case groupID == 0:
		text += "\n\n⚠️ <code>TELEGRAM_GROUP_ID</code> is not set. Set it to <code>" + id +
			"</code> and restart the bot to enable forwarding from this group."
	case chatID != groupID:
		text += "\n\n⚠️ This chat ID does not match the configured <code>TELEGRAM_GROUP_ID</code> (<code>" +
			formatChatID(groupID) + "</code>). Forwarding is disabled for this chat."
	}
	return text
}
