// Copyright 2024-2026 Aiku AI

package discord

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	"go.mau.fi/util/ptr"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// guildMembersPageSize is the largest page the member list endpoint serves.
const guildMembersPageSize = 1000

// allowedMentions lets a message ping exactly the given users. Replies never
// ping the author of the replied-to message.
func allowedMentions(userIDs []string) *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse:       []discordgo.AllowedMentionType{},
		Users:       slices.Clone(userIDs),
		RepliedUser: false,
	}
}

func replyReference(channelID, messageID string) *discordgo.MessageReference {
	if messageID == "" {
		return nil
	}
	return &discordgo.MessageReference{
		MessageID:       messageID,
		ChannelID:       channelID,
		FailIfNotExists: ptr.Ptr(false),
	}
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg *relay.DiscordOutgoing) (string, error) {
	send := &discordgo.MessageSend{
		Content:         msg.Content,
		AllowedMentions: allowedMentions(msg.MentionUserIDs),
		Reference:       replyReference(channelID, msg.ReplyToID),
	}
	for _, f := range msg.Files {
		send.Files = append(send.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	sent, err := c.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyError(err)
	}
	return sent.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string, mentionUserIDs []string) error {
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:              messageID,
		Channel:         channelID,
		Content:         &content,
		AllowedMentions: allowedMentions(mentionUserIDs),
	}, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return classifyError(c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)))
}

func (c *Client) MessageReactions(ctx context.Context, channelID, messageID string) ([]string, error) {
	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classifyError(err)
	}
	glyphs := make([]string, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		if r == nil || r.Emoji == nil || r.Emoji.ID != "" || r.Emoji.Name == "" {
			continue
		}
		glyphs = append(glyphs, r.Emoji.Name)
	}
	return glyphs, nil
}

// linkMenuComponents renders a single-choice select menu. Discord can't
// disable individual options, so a menu whose options are all disabled is
// disabled as a whole and its disabled options are dropped otherwise.
func linkMenuComponents(menu *relay.LinkMenu) []discordgo.MessageComponent {
	sel := discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    menu.CustomID,
		Placeholder: menu.Placeholder,
		MinValues:   ptr.Ptr(1),
		MaxValues:   1,
	}
	var disabled []discordgo.SelectMenuOption
	for _, opt := range menu.Options {
		o := discordgo.SelectMenuOption{Label: opt.Label, Value: opt.Value}
		if opt.Disabled {
			disabled = append(disabled, o)
			continue
		}
		sel.Options = append(sel.Options, o)
	}
	if len(sel.Options) == 0 {
		sel.Options = disabled
		sel.Disabled = true
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{sel}},
	}
}

func (c *Client) SendLinkMenu(ctx context.Context, channelID string, menu *relay.LinkMenu) (string, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         menu.Content,
		Components:      linkMenuComponents(menu),
		AllowedMentions: allowedMentions(nil),
		Reference:       replyReference(channelID, menu.ReplyToID),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classifyError(err)
	}
	return sent.ID, nil
}

func (c *Client) CloseLinkMenu(ctx context.Context, channelID, messageID, content string) error {
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:              messageID,
		Channel:         channelID,
		Content:         &content,
		Components:      &[]discordgo.MessageComponent{},
		AllowedMentions: allowedMentions(nil),
	}, discordgo.WithContext(ctx))
	return classifyError(err)
}

// respond answers a component interaction. Updates replace the menu message
// and remove its components.
func (c *Client) respond(ctx context.Context, i *discordgo.Interaction, resp relay.InteractionResponse) error {
	data := &discordgo.InteractionResponseData{
		Content:         resp.Content,
		AllowedMentions: allowedMentions(nil),
	}
	typ := discordgo.InteractionResponseChannelMessageWithSource
	if resp.UpdateMessage {
		typ = discordgo.InteractionResponseUpdateMessage
		data.Components = []discordgo.MessageComponent{}
	}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := c.session.InteractionRespond(i, &discordgo.InteractionResponse{Type: typ, Data: data}, discordgo.WithContext(ctx))
	return classifyError(err)
}

func (c *Client) MemberName(guildID, userID string) (string, bool) {
	m, err := c.session.State.Member(guildID, userID)
	if err != nil || m.User == nil {
		return "", false
	}
	return convertUser(m.User, m).DisplayName(), true
}

func (c *Client) RoleName(guildID, roleID string) (string, bool) {
	r, err := c.session.State.Role(guildID, roleID)
	if err != nil {
		return "", false
	}
	return r.Name, true
}

func (c *Client) ChannelName(channelID string) (string, bool) {
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		return "", false
	}
	return ch.Name, true
}

func (c *Client) RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error) {
	var ids []string
	after := ""
	for {
		page, err := c.session.GuildMembers(guildID, after, guildMembersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classifyError(err)
		}
		for _, m := range page {
			if m.User == nil || m.User.Bot || !slices.Contains(m.Roles, roleID) {
				continue
			}
			ids = append(ids, m.User.ID)
		}
		if len(page) < guildMembersPageSize || page[len(page)-1].User == nil {
			return ids, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// VoiceChannelMembers lists the members connected to a voice channel from
// the gateway's voice state cache.
func (c *Client) VoiceChannelMembers(_ context.Context, guildID, channelID string) ([]relay.VoiceMember, error) {
	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		return nil, err
	}
	c.session.State.RLock()
	states := make([]discordgo.VoiceState, 0, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			states = append(states, *vs)
		}
	}
	c.session.State.RUnlock()

	members := make([]relay.VoiceMember, 0, len(states))
	for _, vs := range states {
		var user relay.DiscordUser
		if vs.Member != nil && vs.Member.User != nil {
			user = convertUser(vs.Member.User, vs.Member)
		} else {
			user = c.lookupUser(guildID, &discordgo.User{ID: vs.UserID}, nil)
		}
		members = append(members, relay.VoiceMember{
			UserID: vs.UserID,
			Name:   user.DisplayName(),
			Bot:    user.Bot,
		})
	}
	return members, nil
}

// CheckChannel verifies the bot can see channelID.
func (c *Client) CheckChannel(ctx context.Context, channelID string) error {
	ch, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord channel %s is not accessible: %w", channelID, classifyError(err))
	}
	c.log.Info().Str("channel_id", ch.ID).Str("channel_name", ch.Name).Msg("Found Discord channel")
	return nil
}
