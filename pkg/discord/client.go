// Copyright 2024-2026 Aiku AI

// Package discord connects the relay to the Discord gateway and REST API
// through discordgo.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// Intents requested on the gateway. Message content and guild members are
// privileged and must be enabled for the bot in the developer portal.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentMessageContent

const eventBufferSize = 256

// Client is a bot connection to Discord. It delivers gateway events as
// relay events and implements relay.DiscordAPI.
type Client struct {
	session *discordgo.Session
	events  chan relay.Event
	selfID  atomic.Value

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

var _ relay.DiscordAPI = (*Client)(nil)

// New creates a client for a bot token. The "Bot " prefix is added when
// missing.
func New(token string, log zerolog.Logger) (*Client, error) {
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = Intents
	// Handlers run on the gateway goroutine so events keep their order.
	session.SyncEvents = true
	return newClient(session, log), nil
}

func newClient(session *discordgo.Session, log zerolog.Logger) *Client {
	c := &Client{
		session:  session,
		events:   make(chan relay.Event, eventBufferSize),
		stopChan: make(chan struct{}),
		log:      log.With().Str("component", "discord_client").Logger(),
	}
	session.AddHandler(c.onReady)
	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onMessageUpdate)
	session.AddHandler(c.onReactionAdd)
	session.AddHandler(c.onReactionRemove)
	session.AddHandler(c.onVoiceStateUpdate)
	session.AddHandler(c.onInteractionCreate)
	return c
}

// Connect opens the gateway connection. discordgo reconnects on its own
// after transient disconnects.
func (c *Client) Connect(ctx context.Context) error {
	c.log.Info().Msg("Connecting to Discord")
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord gateway: %w", err)
	}
	if u := c.session.State.User; u != nil {
		c.selfID.Store(u.ID)
	}
	return nil
}

// Close stops event delivery and closes the gateway connection.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	return c.session.Close()
}

// Events returns the inbound event feed.
func (c *Client) Events() <-chan relay.Event {
	return c.events
}

// SelfID returns the bot's user id once the gateway is ready.
func (c *Client) SelfID() string {
	id, _ := c.selfID.Load().(string)
	return id
}

// queue hands an event to the relay, blocking while the feed is full.
func (c *Client) queue(evt relay.Event) {
	select {
	case c.events <- evt:
	case <-c.stopChan:
	}
}
