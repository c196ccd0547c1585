// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bridge configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Links    LinksConfig    `yaml:"links"`
	// AdminAPIAddr is the listen address for the admin HTTP API. Empty
	// disables it.
	AdminAPIAddr string            `yaml:"admin_api_addr"`
	Logging      zeroconfig.Config `yaml:"logging"`
}

type DiscordConfig struct {
	Token          string `yaml:"token"`
	ChannelID      string `yaml:"channel_id"`
	CommandPrefix  string `yaml:"command_prefix"`
	VoiceChannelID string `yaml:"voice_channel_id"`
	HumanRoleID    string `yaml:"human_role_id"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	GroupID     int64  `yaml:"group_id"`
	APIURL      string `yaml:"api_url"`
	PollTimeout int    `yaml:"poll_timeout"`
}

type BridgeConfig struct {
	MessageMapSize        int    `yaml:"message_map_size"`
	MaxReactions          int    `yaml:"max_reactions"`
	OutboundTimeout       int    `yaml:"outbound_timeout"`
	TelegramRatePerMinute int    `yaml:"telegram_rate_per_minute"`
	TelegramBurst         int    `yaml:"telegram_burst"`
	MaxInflight           int    `yaml:"max_inflight"`
	LinkSessionTimeout    int    `yaml:"link_session_timeout"`
	DisplaynameTemplate   string `yaml:"displayname_template"`

	displaynameTemplate *template.Template `yaml:"-"`
}

type LinksConfig struct {
	Type     string `yaml:"type"`
	Path     string `yaml:"path"`
	Watch    bool   `yaml:"watch"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	// Name is the default display name of the sender.
	Name       string
	Username   string
	Nickname   string
	GlobalName string
	FirstName  string
	LastName   string
	ID         string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// Errors returned by PostProcess for missing required settings.
var (
	ErrMissingDiscordToken   = errors.New("discord.token is not set")
	ErrMissingDiscordChannel = errors.New("discord.channel_id is not set")
	ErrMissingTelegramToken  = errors.New("telegram.token is not set")
	ErrMissingTelegramGroup  = errors.New("telegram.group_id is not set")
)

// PostProcess fills in defaults, compiles the displayname template and
// validates the settings the bridge cannot run without.
func (c *Config) PostProcess() error {
	c.applyDefaults()
	var err error
	c.Bridge.displaynameTemplate, err = template.New("displayname").Parse(c.Bridge.DisplaynameTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse displayname template: %w", err)
	}
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, ErrMissingDiscordToken)
	}
	if c.Discord.ChannelID == "" {
		errs = append(errs, ErrMissingDiscordChannel)
	}
	if c.Telegram.Token == "" {
		errs = append(errs, ErrMissingTelegramToken)
	}
	if c.Telegram.GroupID == 0 {
		errs = append(errs, ErrMissingTelegramGroup)
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Discord.CommandPrefix == "" {
		c.Discord.CommandPrefix = "!"
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = 10
	}
	b := &c.Bridge
	if b.MessageMapSize <= 0 {
		b.MessageMapSize = DefaultMessageMapSize
	}
	if b.MaxReactions <= 0 {
		b.MaxReactions = 11
	}
	if b.OutboundTimeout <= 0 {
		b.OutboundTimeout = 30
	}
	if b.TelegramRatePerMinute <= 0 {
		b.TelegramRatePerMinute = 20
	}
	if b.TelegramBurst <= 0 {
		b.TelegramBurst = 5
	}
	if b.MaxInflight <= 0 {
		b.MaxInflight = 8
	}
	if b.LinkSessionTimeout <= 0 {
		b.LinkSessionTimeout = 180
	}
	if b.DisplaynameTemplate == "" {
		b.DisplaynameTemplate = "{{.Name}}"
	}
	if c.Links.Type == "" {
		c.Links.Type = "file"
	}
	if c.Links.Type == "file" && c.Links.Path == "" {
		c.Links.Path = "user_map.json"
	}
}

// ApplyEnv overrides settings from the environment variables the bridge has
// always honoured. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DISCORD_BOT_TOKEN":        &c.Discord.Token,
		"DISCORD_CHANNEL_ID":       &c.Discord.ChannelID,
		"DISCORD_VOICE_CHANNEL_ID": &c.Discord.VoiceChannelID,
		"DISCORD_HUMAN_ROLE_ID":    &c.Discord.HumanRoleID,
		"TELEGRAM_BOT_TOKEN":       &c.Telegram.Token,
		"USER_MAP_FILE":            &c.Links.Path,
	}
	for name, dst := range strs {
		if val, ok := lookup(name); ok && val != "" {
			*dst = val
		}
	}
	if val, ok := lookup("TELEGRAM_GROUP_ID"); ok && val != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse TELEGRAM_GROUP_ID: %w", err)
		}
		c.Telegram.GroupID = id
	}
	return nil
}

// OutboundTimeoutDuration returns the per-call timeout for platform calls.
func (b *BridgeConfig) OutboundTimeoutDuration() time.Duration {
	return time.Duration(b.OutboundTimeout) * time.Second
}

// LinkSessionDuration returns how long a !link menu stays valid.
func (b *BridgeConfig) LinkSessionDuration() time.Duration {
	return time.Duration(b.LinkSessionTimeout) * time.Second
}

// VoiceEnabled reports whether voice join announcements are configured.
func (d *DiscordConfig) VoiceEnabled() bool {
	return d.VoiceChannelID != ""
}

// PresenceGateEnabled reports whether forwarding pauses while the watched
// role is in the voice channel.
func (d *DiscordConfig) PresenceGateEnabled() bool {
	return d.VoiceChannelID != "" && d.HumanRoleID != ""
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "discord", "token")
	helper.Copy(up.Str, "discord", "channel_id")
	helper.Copy(up.Str, "discord", "command_prefix")
	helper.Copy(up.Str, "discord", "voice_channel_id")
	helper.Copy(up.Str, "discord", "human_role_id")
	helper.Copy(up.Str, "telegram", "token")
	helper.Copy(up.Int, "telegram", "group_id")
	helper.Copy(up.Str, "telegram", "api_url")
	helper.Copy(up.Int, "telegram", "poll_timeout")
	helper.Copy(up.Int, "bridge", "message_map_size")
	helper.Copy(up.Int, "bridge", "max_reactions")
	helper.Copy(up.Int, "bridge", "outbound_timeout")
	helper.Copy(up.Int, "bridge", "telegram_rate_per_minute")
	helper.Copy(up.Int, "bridge", "telegram_burst")
	helper.Copy(up.Int, "bridge", "max_inflight")
	helper.Copy(up.Int, "bridge", "link_session_timeout")
	helper.Copy(up.Str, "bridge", "displayname_template")
	helper.Copy(up.Str, "links", "type")
	helper.Copy(up.Str, "links", "path")
	helper.Copy(up.Bool, "links", "watch")
	helper.Copy(up.Str, "links", "redis_url")
	helper.Copy(up.Str, "links", "redis_key")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.Map, "logging")
}

// Upgrader returns the config upgrader that merges a user config into the
// embedded example config.
func Upgrader() *up.StructUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks: [][]string{
			{"telegram"},
			{"bridge"},
			{"links"},
			{"admin_api_addr"},
			{"logging"},
		},
		Base: ExampleConfig,
	}
}

// FormatDisplayname generates a display name from the template and params.
func (b *BridgeConfig) FormatDisplayname(params DisplaynameParams) string {
	if b.displaynameTemplate == nil {
		return params.Name
	}
	var buf []byte
	err := b.displaynameTemplate.Execute(
		(*templateBuffer)(&buf),
		params,
	)
	if err != nil || len(buf) == 0 {
		return params.Name
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
