// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Deps holds the collaborators of a Relay.
type Deps struct {
	Discord  DiscordAPI
	Telegram TelegramAPI
	// Linker defaults to an in-memory linker.
	Linker *IdentityLinker
	// Downloader defaults to an HTTPDownloader.
	Downloader Downloader
	// Metrics defaults to unregistered collectors.
	Metrics *Metrics
}

// Relay forwards events between one Discord channel and one Telegram group.
type Relay struct {
	cfg        *Config
	discord    DiscordAPI
	telegram   TelegramAPI
	linker     *IdentityLinker
	downloader Downloader
	metrics    *Metrics
	store      *CorrelationStore
	limiter    *rate.Limiter
	log        zerolog.Logger

	sessionsMu sync.Mutex
	sessions   map[string]*linkSession

	// reactionLocks keeps reaction syncs of one message in order so an
	// older snapshot never overwrites a newer one.
	reactionLocks messageLocks
}

// messageLocks serializes work per message.
type messageLocks struct {
	mu    sync.Mutex
	locks map[MessageKey]*messageLock
}

type messageLock struct {
	sync.Mutex
	refs int
}

// lock blocks until key is free and returns its unlock function.
func (m *messageLocks) lock(key MessageKey) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[MessageKey]*messageLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &messageLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// New creates a relay. cfg must have been post-processed.
func New(cfg *Config, deps Deps, log zerolog.Logger) (*Relay, error) {
	if deps.Discord == nil || deps.Telegram == nil {
		return nil, errors.New("both platform clients are required")
	}
	if deps.Linker == nil {
		deps.Linker = NewIdentityLinker(nil, log)
	}
	if deps.Downloader == nil {
		deps.Downloader = NewHTTPDownloader(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	b := &cfg.Bridge
	return &Relay{
		cfg:        cfg,
		discord:    deps.Discord,
		telegram:   deps.Telegram,
		linker:     deps.Linker,
		downloader: deps.Downloader,
		metrics:    deps.Metrics,
		store:      NewCorrelationStore(b.MessageMapSize),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(b.TelegramRatePerMinute)), b.TelegramBurst),
		log:        log.With().Str("component", "relay").Logger(),
		sessions:   make(map[string]*linkSession),
	}, nil
}

// Store returns the message correlation store.
func (r *Relay) Store() *CorrelationStore {
	return r.store
}

// Linker returns the identity linker.
func (r *Relay) Linker() *IdentityLinker {
	return r.linker
}

// Run consumes both event feeds until ctx is done or both feeds are closed.
// Events of one feed are handled concurrently, at most
// bridge.max_inflight at a time.
func (r *Relay) Run(ctx context.Context, discordEvents, telegramEvents <-chan Event) error {
	r.metrics.links.Set(float64(r.linker.Count()))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.consume(ctx, PlatformDiscord, discordEvents)
	})
	g.Go(func() error {
		return r.consume(ctx, PlatformTelegram, telegramEvents)
	})
	err := g.Wait()
	r.closeSessions()
	return err
}

func (r *Relay) consume(ctx context.Context, source Platform, events <-chan Event) error {
	log := r.log.With().Stringer("source", source).Logger()
	var workers errgroup.Group
	workers.SetLimit(r.cfg.Bridge.MaxInflight)
	defer workers.Wait()
	log.Debug().Msg("Consuming events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				log.Debug().Msg("Event feed closed")
				return nil
			}
			workers.Go(func() error {
				r.HandleEvent(ctx, evt)
				return nil
			})
		}
	}
}

// HandleEvent handles a single event synchronously. Failures are logged and
// never returned; a panic in a handler is recovered.
func (r *Relay) HandleEvent(ctx context.Context, evt Event) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Str("panic", fmt.Sprint(p)).
				Str("stack", string(debug.Stack())).
				Type("event_type", evt).
				Msg("Panic while handling event")
		}
	}()
	switch e := evt.(type) {
	case *DiscordMessageEvent:
		r.handleDiscordMessage(ctx, &e.Message)
	case *DiscordEditEvent:
		r.handleDiscordEdit(ctx, &e.Message)
	case *DiscordReactionEvent:
		r.handleDiscordReaction(ctx, e)
	case *DiscordVoiceStateEvent:
		r.handleVoiceState(ctx, e)
	case *DiscordLinkSelectEvent:
		r.handleLinkSelect(ctx, e)
	case *TelegramMessageEvent:
		r.handleTelegramMessage(ctx, &e.Message)
	case *TelegramEditEvent:
		r.handleTelegramEdit(ctx, &e.Message)
	case *TelegramReactionEvent:
		r.handleTelegramReaction(ctx, e)
	default:
		r.log.Trace().Type("event_type", evt).Msg("Unhandled event type")
	}
}

// callDiscord runs fn with the outbound timeout applied.
func (r *Relay) callDiscord(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Bridge.OutboundTimeoutDuration())
	defer cancel()
	return fn(ctx)
}

// callTelegram runs fn with the outbound timeout applied after waiting for
// the send limiter within the same deadline.
func (r *Relay) callTelegram(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Bridge.OutboundTimeoutDuration())
	defer cancel()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for telegram send slot: %w", err)
	}
	return fn(ctx)
}

// putPair records a delivered pair and updates the store metrics.
func (r *Relay) putPair(p Pair) {
	if r.store.Put(p) {
		r.metrics.evicted.Inc()
	}
	r.metrics.pairs.Set(float64(r.store.Len()))
}

// dropPair forgets a pair whose counterpart is gone.
func (r *Relay) dropPair(key MessageKey) {
	if r.store.Remove(key) {
		r.metrics.staleRemoved.Inc()
		r.log.Debug().Stringer("message_key", key).Msg("Removed stale message pair")
	}
	r.metrics.pairs.Set(float64(r.store.Len()))
}

func (r *Relay) skip(reason string) {
	r.metrics.skipped.WithLabelValues(reason).Inc()
}
