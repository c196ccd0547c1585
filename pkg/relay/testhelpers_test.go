// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"maps"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

const (
	testGuildID    = "1"
	testChannelID  = "100"
	testGroupID    = int64(-1001)
	testDiscordMe  = "999"
	testTelegramMe = int64(777)
)

// call records one outbound platform call.
type call struct {
	Method    string
	ChatID    string
	MessageID string
	Text      string
	ReplyTo   string
	Files     []OutgoingFile
	Emojis    []string
	Mentions  []string
}

// fakeDiscord is an in-memory DiscordAPI that records every call.
type fakeDiscord struct {
	mu    sync.Mutex
	calls []call
	next  int

	Members     map[string]string
	Roles       map[string]string
	Channels    map[string]string
	RoleHolders []string
	Voice       []VoiceMember
	// Reactions maps message id to the glyphs shown on it.
	Reactions map[string][]string
	// Fail maps a method name to the error it returns.
	Fail  map[string]error
	Menus []*LinkMenu
	// AfterReactions runs after MessageReactions took its snapshot.
	AfterReactions func(messageID string)
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		next:      1000,
		Members:   map[string]string{"u1": "Alice", "u2": "Bob"},
		Roles:     map[string]string{"r1": "Mods"},
		Channels:  map[string]string{testChannelID: "general", "v1": "Lounge"},
		Reactions: make(map[string][]string),
		Fail:      make(map[string]error),
	}
}

func (f *fakeDiscord) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.Fail[c.Method]
}

func (f *fakeDiscord) Calls(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeDiscord) SelfID() string { return testDiscordMe }

func (f *fakeDiscord) SendMessage(_ context.Context, channelID string, msg *DiscordOutgoing) (string, error) {
	if err := f.record(call{Method: "SendMessage", ChatID: channelID, Text: msg.Content, ReplyTo: msg.ReplyToID, Files: msg.Files, Mentions: msg.MentionUserIDs}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return "d" + strconv.Itoa(f.next), nil
}

func (f *fakeDiscord) EditMessage(_ context.Context, channelID, messageID, content string, mentions []string) error {
	return f.record(call{Method: "EditMessage", ChatID: channelID, MessageID: messageID, Text: content, Mentions: mentions})
}

func (f *fakeDiscord) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	if err := f.record(call{Method: "AddReaction", ChatID: channelID, MessageID: messageID, Emojis: []string{emoji}}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.Reactions[messageID], emoji) {
		f.Reactions[messageID] = append(f.Reactions[messageID], emoji)
	}
	return nil
}

func (f *fakeDiscord) MessageReactions(_ context.Context, channelID, messageID string) ([]string, error) {
	if err := f.record(call{Method: "MessageReactions", ChatID: channelID, MessageID: messageID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	glyphs := slices.Clone(f.Reactions[messageID])
	hook := f.AfterReactions
	f.mu.Unlock()
	if hook != nil {
		hook(messageID)
	}
	return glyphs, nil
}

func (f *fakeDiscord) SendLinkMenu(_ context.Context, channelID string, menu *LinkMenu) (string, error) {
	if err := f.record(call{Method: "SendLinkMenu", ChatID: channelID, Text: menu.Content, ReplyTo: menu.ReplyToID}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Menus = append(f.Menus, menu)
	f.next++
	return "d" + strconv.Itoa(f.next), nil
}

func (f *fakeDiscord) CloseLinkMenu(_ context.Context, channelID, messageID, content string) error {
	return f.record(call{Method: "CloseLinkMenu", ChatID: channelID, MessageID: messageID, Text: content})
}

func (f *fakeDiscord) MemberName(_, userID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.Members[userID]
	return name, ok
}

func (f *fakeDiscord) RoleName(_, roleID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.Roles[roleID]
	return name, ok
}

func (f *fakeDiscord) ChannelName(channelID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.Channels[channelID]
	return name, ok
}

func (f *fakeDiscord) RoleMembers(context.Context, string, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail["RoleMembers"]; err != nil {
		return nil, err
	}
	return slices.Clone(f.RoleHolders), nil
}

func (f *fakeDiscord) VoiceChannelMembers(context.Context, string, string) ([]VoiceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail["VoiceChannelMembers"]; err != nil {
		return nil, err
	}
	return slices.Clone(f.Voice), nil
}

// fakeTelegram is an in-memory TelegramAPI that records every call.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []call
	next  int

	// Reactions maps message id to the bot's current reactions.
	Reactions map[int][]string
	Files     map[string][]byte
	Admins    []TelegramUser
	Fail      map[string]error
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		next:      500,
		Reactions: make(map[int][]string),
		Files:     make(map[string][]byte),
		Fail:      make(map[string]error),
	}
}

func (f *fakeTelegram) record(c call) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if err := f.Fail[c.Method]; err != nil {
		return 0, err
	}
	f.next++
	return f.next, nil
}

func (f *fakeTelegram) Calls(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTelegram) SelfID() int64 { return testTelegramMe }

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, html string, replyTo int) (int, error) {
	return f.record(call{Method: "SendText", ChatID: formatChatID(chatID), Text: html, ReplyTo: strconv.Itoa(replyTo)})
}

func (f *fakeTelegram) SendPhoto(_ context.Context, chatID int64, photo OutgoingFile, caption string, replyTo int) (int, error) {
	return f.record(call{Method: "SendPhoto", ChatID: formatChatID(chatID), Text: caption, ReplyTo: strconv.Itoa(replyTo), Files: []OutgoingFile{photo}})
}

func (f *fakeTelegram) SendMediaGroup(_ context.Context, chatID int64, photos []OutgoingFile, caption string, replyTo int) ([]int, error) {
	first, err := f.record(call{Method: "SendMediaGroup", ChatID: formatChatID(chatID), Text: caption, ReplyTo: strconv.Itoa(replyTo), Files: photos})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []int{first}
	for range photos[1:] {
		f.next++
		ids = append(ids, f.next)
	}
	return ids, nil
}

func (f *fakeTelegram) EditText(_ context.Context, chatID int64, messageID int, html string) error {
	_, err := f.record(call{Method: "EditText", ChatID: formatChatID(chatID), MessageID: strconv.Itoa(messageID), Text: html})
	return err
}

func (f *fakeTelegram) EditCaption(_ context.Context, chatID int64, messageID int, caption string) error {
	_, err := f.record(call{Method: "EditCaption", ChatID: formatChatID(chatID), MessageID: strconv.Itoa(messageID), Text: caption})
	return err
}

func (f *fakeTelegram) SetReactions(_ context.Context, chatID int64, messageID int, emojis []string) error {
	if _, err := f.record(call{Method: "SetReactions", ChatID: formatChatID(chatID), MessageID: strconv.Itoa(messageID), Emojis: emojis}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions[messageID] = slices.Clone(emojis)
	return nil
}

func (f *fakeTelegram) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail["DownloadFile"]; err != nil {
		return nil, err
	}
	data, ok := f.Files[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *fakeTelegram) ChatAdministrators(context.Context, int64) ([]TelegramUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail["ChatAdministrators"]; err != nil {
		return nil, err
	}
	return slices.Clone(f.Admins), nil
}

// fakeDownloader serves canned bytes by URL.
type fakeDownloader struct {
	mu    sync.Mutex
	files map[string][]byte
	urls  []string
}

func (d *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	data, ok := d.files[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

// memoryLinkStore is a LinkStore backed by a map.
type memoryLinkStore struct {
	mu    sync.Mutex
	links map[string]string
	saves int
	err   error
}

func (s *memoryLinkStore) Load(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return maps.Clone(s.links), nil
}

func (s *memoryLinkStore) Save(_ context.Context, links map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.links = maps.Clone(links)
	s.saves++
	return nil
}

func (s *memoryLinkStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.links)
}

// testEnv bundles a relay with its fakes.
type testEnv struct {
	relay    *Relay
	discord  *fakeDiscord
	telegram *fakeTelegram
	download *fakeDownloader
	links    *memoryLinkStore
}

func testConfig() *Config {
	cfg := &Config{
		Discord:  DiscordConfig{Token: "dtoken", ChannelID: testChannelID},
		Telegram: TelegramConfig{Token: "ttoken", GroupID: testGroupID},
		Bridge: BridgeConfig{
			TelegramRatePerMinute: 60000,
			TelegramBurst:         1000,
		},
	}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}
	env := &testEnv{
		discord:  newFakeDiscord(),
		telegram: newFakeTelegram(),
		download: &fakeDownloader{files: make(map[string][]byte)},
		links:    &memoryLinkStore{},
	}
	relay, err := New(cfg, Deps{
		Discord:    env.discord,
		Telegram:   env.telegram,
		Linker:     NewIdentityLinker(env.links, zerolog.Nop()),
		Downloader: env.download,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(relay.closeSessions)
	env.relay = relay
	return env
}

func discordMsg(id, authorID, content string) *DiscordMessageEvent {
	return &DiscordMessageEvent{Message: DiscordMessage{
		ID:        id,
		ChannelID: testChannelID,
		GuildID:   testGuildID,
		Author:    DiscordUser{ID: authorID, Username: "alice", GlobalName: "Alice"},
		Content:   content,
	}}
}

func telegramMsg(id int, text string) *TelegramMessageEvent {
	return &TelegramMessageEvent{Message: TelegramMessage{
		ID:     id,
		ChatID: testGroupID,
		From:   TelegramUser{ID: 42, FirstName: "Bob", Username: "bobby"},
		Text:   text,
	}}
}

// pngBytes returns a small encoded PNG image.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}
