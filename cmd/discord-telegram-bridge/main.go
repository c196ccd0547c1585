// Copyright 2024-2026 Aiku AI

// Command discord-telegram-bridge relays messages, edits, reactions and
// replies between one Discord channel and one Telegram group.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.mau.fi/util/configupgrade"
	"go.mau.fi/util/exzerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/discord-telegram-bridge/pkg/discord"
	"github.com/aiku/discord-telegram-bridge/pkg/linkstore"
	"github.com/aiku/discord-telegram-bridge/pkg/relay"
	"github.com/aiku/discord-telegram-bridge/pkg/telegram"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const name = "discord-telegram-bridge"

var (
	configPath      = flag.MakeFull("c", "config", "The path to the config file.", "config.yaml").String()
	generateExample = flag.MakeFull("g", "generate-example-config", "Write the example config to the config path and exit.", "false").Bool()
	noUpdate        = flag.MakeFull("n", "no-update", "Don't save the updated config to disk.", "false").Bool()
	envFile         = flag.MakeFull("e", "env-file", "The path to a .env file to load.", ".env").String()
	version         = flag.MakeFull("v", "version", "View bridge version and quit.", "false").Bool()
	wantHelp, _     = flag.MakeHelpFlag()
)

func main() {
	flag.SetHelpTitles(
		name+" - A Discord-Telegram relay bridge.",
		name+" [-hgnv] [-c <path>] [-e <path>]",
	)
	err := flag.Parse()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *version {
		fmt.Printf("%s %s (commit %s, built %s)\n", name, Tag, Commit, BuildTime)
		os.Exit(0)
	} else if *generateExample {
		if err = os.WriteFile(*configPath, []byte(relay.ExampleConfig), 0600); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Failed to write example config:", err)
			os.Exit(11)
		}
		fmt.Println("Wrote example config to", *configPath)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(10)
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(12)
	}
	exzerolog.SetupDefaults(log)
	stdlog.SetFlags(0)
	stdlog.SetOutput(exzerolog.NewLogWriter(log.With().Str("component", "stdlog").Logger()).WithLevel(zerolog.WarnLevel))
	discord.SetLogger(*log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err = run(ctx, cfg, *log); err != nil {
		log.Fatal().Err(err).Msg("Bridge stopped with error")
	}
	log.Info().Msg("Bridge stopped")
}

// loadConfig reads the .env file, merges the config file into the example
// config and applies environment overrides.
func loadConfig() (*relay.Config, error) {
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", *envFile, err)
	}
	var data []byte
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
		// Environment-only deployments run on the example config.
		data = []byte(relay.ExampleConfig)
	} else {
		data, _, err = configupgrade.Do(*configPath, !*noUpdate, relay.Upgrader())
		if err != nil {
			return nil, fmt.Errorf("failed to upgrade config: %w", err)
		}
	}
	var cfg relay.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func run(ctx context.Context, cfg *relay.Config, log zerolog.Logger) error {
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("discord_channel", cfg.Discord.ChannelID).
		Int64("telegram_group", cfg.Telegram.GroupID).
		Msg("Starting bridge")

	store, err := linkstore.Open(&cfg.Links)
	if err != nil {
		return fmt.Errorf("failed to open link store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close link store")
		}
	}()
	linker := relay.NewIdentityLinker(store, log)
	if _, _, err = linker.Load(ctx); err != nil {
		return err
	}
	if fs, ok := store.(*linkstore.FileStore); ok && cfg.Links.Watch {
		err = fs.Watch(ctx, log, func(ctx context.Context) {
			if _, _, err := linker.Load(ctx); err != nil {
				log.Err(err).Msg("Failed to reload identity links")
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Link file watching disabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(registry)

	dc, err := discord.New(cfg.Discord.Token, log)
	if err != nil {
		return err
	}
	tg, err := telegram.New(&cfg.Telegram, log)
	if err != nil {
		return err
	}
	defer tg.Close()

	r, err := relay.New(cfg, relay.Deps{
		Discord:  dc,
		Telegram: tg,
		Linker:   linker,
		Metrics:  metrics,
	}, log)
	if err != nil {
		return err
	}

	if err = dc.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := dc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Discord session")
		}
	}()
	if err = dc.CheckChannel(ctx, cfg.Discord.ChannelID); err != nil {
		return err
	}
	if err = tg.CheckChat(ctx, cfg.Telegram.GroupID); err != nil {
		return err
	}
	tg.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(ctx, dc.Events(), tg.Events())
	})
	if cfg.AdminAPIAddr != "" {
		admin := relay.NewAdminAPI(r, registry, log)
		g.Go(func() error {
			return admin.ListenAndServe(ctx, cfg.AdminAPIAddr)
		})
	}
	log.Info().Msg("Bridge running")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
