// Copyright 2024-2026 Aiku AI

package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

var discordgoLevels = map[int]zerolog.Level{
	discordgo.LogError:         zerolog.ErrorLevel,
	discordgo.LogWarning:       zerolog.WarnLevel,
	discordgo.LogInformational: zerolog.InfoLevel,
	discordgo.LogDebug:         zerolog.DebugLevel,
}

// SetLogger routes discordgo's package-wide logging to log.
func SetLogger(log zerolog.Logger) {
	log = log.With().Str("component", "discordgo").Logger()
	discordgo.Logger = func(msgL, _ int, format string, a ...any) {
		level, ok := discordgoLevels[msgL]
		if !ok {
			level = zerolog.TraceLevel
		}
		log.WithLevel(level).Msg(fmt.Sprintf(format, a...))
	}
}
