// Copyright 2024-2026 Aiku AI

package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// classifyError wraps discordgo errors with the relay sentinel matching the
// Discord error code, falling back to the HTTP status.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %w", relay.ErrRateLimited, err)
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %w", relay.ErrNotFound, err)
		case discordgo.ErrCodeCannotEditFromAnotherUser:
			return fmt.Errorf("%w: %w", relay.ErrCannotEdit, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %w", relay.ErrForbidden, err)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", relay.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", relay.ErrForbidden, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", relay.ErrRateLimited, err)
		}
	}
	return err
}
