// Copyright 2024-2026 Aiku AI

package relay

import "errors"

// Sentinel errors returned by DiscordAPI and TelegramAPI implementations.
// Adapters wrap SDK errors with these so the relay can classify failures
// with errors.Is.
var (
	// ErrNotFound means the target message no longer exists.
	ErrNotFound = errors.New("message not found")
	// ErrCannotEdit means the target message exists but can no longer be edited.
	ErrCannotEdit = errors.New("message can't be edited")
	// ErrNotModified means an edit would not change the target message.
	ErrNotModified = errors.New("message is not modified")
	// ErrReactionsUnavailable means reactions are disabled for the target.
	ErrReactionsUnavailable = errors.New("message reactions are unavailable")
	// ErrForbidden means the bot lacks permission for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited means the platform rejected the call due to rate limits.
	ErrRateLimited = errors.New("rate limited")
)

// isStale reports whether err means the counterpart of a pair is gone.
func isStale(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCannotEdit) ||
		errors.Is(err, ErrReactionsUnavailable)
}
