// Copyright 2024-2026 Aiku AI

package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// telebot only types a fraction of Bot API errors and formats the rest as
// plain strings, so most are matched by description.
var descriptionSentinels = []struct {
	substr   string
	sentinel error
}{
	{"message is not modified", relay.ErrNotModified},
	{"message to edit not found", relay.ErrNotFound},
	{"message to react not found", relay.ErrNotFound},
	{"message_id_invalid", relay.ErrNotFound},
	{"chat not found", relay.ErrNotFound},
	{"message can't be edited", relay.ErrCannotEdit},
	{"message reactions are unavailable", relay.ErrReactionsUnavailable},
	{"too many requests", relay.ErrRateLimited},
	{"forbidden:", relay.ErrForbidden},
}

// classifyError wraps telebot errors with the matching relay sentinel.
func classifyError(err error) error {
	if err == nil || errors.Is(err, tele.ErrTrueResult) {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return fmt.Errorf("%w: %w", relay.ErrRateLimited, err)
	}
	desc := strings.ToLower(err.Error())
	for _, d := range descriptionSentinels {
		if strings.Contains(desc, d.substr) {
			return fmt.Errorf("%w: %w", d.sentinel, err)
		}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", relay.ErrForbidden, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", relay.ErrRateLimited, err)
		}
	}
	return err
}

// tokenError is an error whose message had the bot token removed. telebot
// keeps the request URL, which embeds the token, in transport errors.
type tokenError struct {
	msg string
	err error
}

func (e *tokenError) Error() string { return e.msg }
func (e *tokenError) Unwrap() error { return e.err }

func redactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &tokenError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}

// classify is classifyError for errors returned by this client's bot.
func (c *Client) classify(err error) error {
	return redactToken(classifyError(err), c.token)
}
