// Copyright 2024-2026 Aiku AI

package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// telebot calls take no context, so cancellation is only checked before
// each call. The HTTP client timeout bounds the call itself.

func sendOptions(replyTo int) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, AllowWithoutReply: true}
	if replyTo > 0 {
		opts.ReplyTo = &tele.Message{ID: replyTo}
	}
	return opts
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

func photoFile(photo relay.OutgoingFile) tele.File {
	return tele.FromReader(bytes.NewReader(photo.Data))
}

func (c *Client) SendText(ctx context.Context, chatID int64, html string, replyTo int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := c.bot.Send(&tele.Chat{ID: chatID}, html, sendOptions(replyTo))
	if err != nil {
		return 0, c.classify(err)
	}
	return msg.ID, nil
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo relay.OutgoingFile, caption string, replyTo int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p := &tele.Photo{File: photoFile(photo), Caption: caption}
	msg, err := c.bot.Send(&tele.Chat{ID: chatID}, p, sendOptions(replyTo))
	if err != nil {
		return 0, c.classify(err)
	}
	return msg.ID, nil
}

func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, photos []relay.OutgoingFile, caption string, replyTo int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	album := make(tele.Album, 0, len(photos))
	for i, photo := range photos {
		p := &tele.Photo{File: photoFile(photo)}
		if i == 0 {
			p.Caption = caption
		}
		album = append(album, p)
	}
	msgs, err := c.bot.SendAlbum(&tele.Chat{ID: chatID}, album, sendOptions(replyTo))
	if err != nil {
		return nil, c.classify(err)
	}
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids, nil
}

func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Edit(stored(chatID, messageID), html, tele.ModeHTML)
	return c.classify(err)
}

func (c *Client) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.EditCaption(stored(chatID, messageID), caption, tele.ModeHTML)
	return c.classify(err)
}

func (c *Client) SetReactions(ctx context.Context, chatID int64, messageID int, emojis []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := tele.ReactionOptions{Reactions: make([]tele.Reaction, 0, len(emojis))}
	for _, e := range emojis {
		opts.Reactions = append(opts.Reactions, tele.Reaction{Type: reactionTypeEmoji, Emoji: e})
	}
	return c.classify(c.bot.React(&tele.Chat{ID: chatID}, stored(chatID, messageID), opts))
}

func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.bot.FileByID(fileID)
	if err != nil {
		return nil, c.classify(err)
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram returned no path for file %s", fileID)
	}
	data, err := c.downloader.Download(ctx, c.bot.URL+"/file/bot"+c.bot.Token+"/"+f.FilePath)
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return data, nil
}

func (c *Client) ChatAdministrators(ctx context.Context, chatID int64) ([]relay.TelegramUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members, err := c.bot.AdminsOf(&tele.Chat{ID: chatID})
	if err != nil {
		return nil, c.classify(err)
	}
	users := make([]relay.TelegramUser, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			users = append(users, convertUser(m.User))
		}
	}
	return users, nil
}

// CheckChat verifies the bot can see chatID.
func (c *Client) CheckChat(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := c.bot.ChatByID(chatID)
	if err != nil {
		return fmt.Errorf("telegram chat %d is not accessible: %w", chatID, c.classify(err))
	}
	c.log.Info().Int64("chat_id", chat.ID).Str("chat_title", chat.Title).Msg("Found Telegram chat")
	return nil
}
