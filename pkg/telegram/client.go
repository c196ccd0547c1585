// Copyright 2024-2026 Aiku AI

// Package telegram connects the relay to the Telegram Bot API through
// telebot.
package telegram

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

// AllowedUpdates are the update types requested from getUpdates. Telegram
// only delivers message_reaction when it is listed explicitly and the bot
// is a group administrator.
var AllowedUpdates = []string{"message", "edited_message", "message_reaction"}

const eventBufferSize = 256

// Client is a long-polling Telegram bot. It delivers updates as relay
// events and implements relay.TelegramAPI.
type Client struct {
	bot        *tele.Bot
	token      string
	downloader *relay.HTTPDownloader
	events     chan relay.Event

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
	log       zerolog.Logger
}

var _ relay.TelegramAPI = (*Client)(nil)

// New creates a client and verifies the token with getMe.
func New(cfg *relay.TelegramConfig, log zerolog.Logger) (*Client, error) {
	poll := time.Duration(cfg.PollTimeout) * time.Second
	return newClient(tele.Settings{
		URL:    cfg.APIURL,
		Token:  cfg.Token,
		Client: &http.Client{Timeout: poll + time.Minute},
		Poller: &tele.LongPoller{Timeout: poll, AllowedUpdates: AllowedUpdates},
	}, log)
}

func newClient(settings tele.Settings, log zerolog.Logger) (*Client, error) {
	c := &Client{
		token:    settings.Token,
		events:   make(chan relay.Event, eventBufferSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log:      log.With().Str("component", "telegram_client").Logger(),
	}
	// Every update is converted in the poller so reactions keep their
	// order relative to messages.
	settings.Poller = tele.NewMiddlewarePoller(settings.Poller, c.route)
	settings.Synchronous = true
	settings.ParseMode = tele.ModeHTML
	settings.OnError = c.onError
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", redactToken(classifyError(err), c.token))
	}
	c.bot = bot
	c.downloader = relay.NewHTTPDownloader(settings.Client)
	c.log.Info().
		Int64("user_id", bot.Me.ID).
		Str("username", bot.Me.Username).
		Msg("Telegram bot ready")
	return c, nil
}

// Start begins long polling in the background.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			c.bot.Start()
		}()
	})
}

// Close stops polling and event delivery.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		started := true
		c.startOnce.Do(func() { started = false })
		if started {
			c.bot.Stop()
			<-c.done
		}
	})
}

// Events returns the inbound event feed.
func (c *Client) Events() <-chan relay.Event {
	return c.events
}

func (c *Client) SelfID() int64 {
	return c.bot.Me.ID
}

func (c *Client) onError(err error, _ tele.Context) {
	c.log.Err(redactToken(err, c.token)).Msg("Telegram bot error")
}

// queue hands an event to the relay, blocking while the feed is full.
func (c *Client) queue(evt relay.Event) {
	select {
	case c.events <- evt:
	case <-c.stopChan:
	}
}
