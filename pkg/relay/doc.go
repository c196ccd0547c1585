// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay mirrors messages, edits and reactions between one Discord
// channel and one Telegram group.
//
// # Core Types
//
// [Relay] consumes typed events from both platforms on two independent
// consumer loops and drives the formatters, the correlation store and the
// outbound platform calls.
//
// [CorrelationStore] is a bounded FIFO of message pairs. A pair is inserted
// only after a successful relay and is removed as a whole, either when it
// ages out or when the counterpart turns out to be gone.
//
// [IdentityLinker] maps Discord users to Telegram users so mentions on one
// side become native mentions on the other. Links are persisted through a
// [LinkStore].
//
// [DiscordAPI] and [TelegramAPI] are the outbound primitives implemented by
// the platform adapters in pkg/discord and pkg/telegram. Adapters translate
// SDK errors into the sentinel errors declared in this package.
//
// # Echo Prevention
//
// Messages and reactions authored by either bridge bot are never relayed.
// Command messages (prefix "!" on Discord, "/" on Telegram) are handled
// locally and never mirrored.
//
// # Sub-packages
//
//   - discordfmt converts Discord markdown to Telegram HTML.
//   - telegramfmt converts Telegram entities to Discord markdown.
package relay
