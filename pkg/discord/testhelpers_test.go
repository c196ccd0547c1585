// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package discord

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

const (
	testSelfID  = "999"
	testGuildID = "1"
)

// rewriteTransport sends every request to a local test server.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// recordedRequest is one REST call received by the test server.
type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
}

// JSON decodes the request body into a generic map.
func (r recordedRequest) JSON(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(r.Body, &out); err != nil {
		t.Fatalf("decode %s %s body %q: %v", r.Method, r.Path, r.Body, err)
	}
	return out
}

type requestLog struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (l *requestLog) all() []recordedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedRequest(nil), l.requests...)
}

func (l *requestLog) last(t *testing.T) recordedRequest {
	t.Helper()
	reqs := l.all()
	if len(reqs) == 0 {
		t.Fatal("no requests recorded")
	}
	return reqs[len(reqs)-1]
}

// newTestClient returns a client whose REST calls go to handler. The
// gateway is never opened.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *requestLog) {
	t.Helper()
	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		log.mu.Lock()
		log.requests = append(log.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		log.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	session.Client = &http.Client{Transport: &rewriteTransport{target: target}, Timeout: 5 * time.Second}
	session.MaxRestRetries = 0
	c := newClient(session, zerolog.Nop())
	c.selfID.Store(testSelfID)
	return c, log
}

// jsonResponse replies with a fixed JSON body.
func jsonResponse(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func addTestGuild(t *testing.T, c *Client, guild *discordgo.Guild) {
	t.Helper()
	if err := c.session.State.GuildAdd(guild); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
}

// nextEvent reads one queued event without blocking.
func nextEvent(t *testing.T, c *Client) relay.Event {
	t.Helper()
	select {
	case evt := <-c.Events():
		return evt
	default:
		t.Fatal("no event queued")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case evt := <-c.Events():
		t.Fatalf("unexpected event %T: %+v", evt, evt)
	default:
	}
}
