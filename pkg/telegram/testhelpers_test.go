// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/aiku/discord-telegram-bridge/pkg/relay"
)

const (
	testToken   = "123:secret"
	testBotID   = int64(777)
	testGroupID = int64(-1001)
)

// apiCall is one Bot API request received by the fake server.
type apiCall struct {
	Method string
	Params map[string]string
	// Files maps multipart field names to uploaded content.
	Files map[string]string
}

// fakeBotAPI is a minimal Bot API server. Methods without a configured
// reply answer {"ok":true,"result":true}.
type fakeBotAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	calls   []apiCall
	replies map[string]string
	files   map[string]string
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{
		t: t,
		replies: map[string]string{
			"getMe": `{"ok":true,"result":{"id":777,"is_bot":true,"first_name":"Bridge","username":"bridge_bot"}}`,
		},
		files: make(map[string]string),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

// reply sets the raw response body for a method.
func (f *fakeBotAPI) reply(method, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method] = body
}

// result sets a successful response for a method.
func (f *fakeBotAPI) result(method, resultJSON string) {
	f.reply(method, `{"ok":true,"result":`+resultJSON+`}`)
}

func (f *fakeBotAPI) fail(method string, code int, description string) {
	body, _ := json.Marshal(map[string]any{"ok": false, "error_code": code, "description": description})
	f.reply(method, string(body))
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	if path, ok := strings.CutPrefix(r.URL.Path, "/file/bot"+testToken+"/"); ok {
		f.mu.Lock()
		data, found := f.files[path]
		f.mu.Unlock()
		if !found {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, data)
		return
	}
	method, ok := strings.CutPrefix(r.URL.Path, "/bot"+testToken+"/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	call := apiCall{Method: method, Params: make(map[string]string), Files: make(map[string]string)}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		// telebot uploads readers with an empty filename, which
		// ParseMultipartForm files under values, so parts are read here.
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			} else if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(part)
			if part.Header.Get("Content-Type") != "" {
				call.Files[part.FormName()] = string(data)
			} else {
				call.Params[part.FormName()] = string(data)
			}
		}
	} else {
		body, _ := io.ReadAll(r.Body)
		var params map[string]string
		if len(body) > 0 && string(body) != "null\n" {
			_ = json.Unmarshal(body, &params)
		}
		for k, v := range params {
			call.Params[k] = v
		}
	}

	f.mu.Lock()
	reply, found := f.replies[method]
	if method != "getUpdates" {
		f.calls = append(f.calls, call)
	}
	f.mu.Unlock()
	if method == "getUpdates" {
		f.serveUpdates(w, r, reply)
		return
	}
	if !found {
		reply = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

// serveUpdates hands out the configured updates once, then idles like a
// long poll.
func (f *fakeBotAPI) serveUpdates(w http.ResponseWriter, r *http.Request, reply string) {
	if reply != "" {
		f.reply("getUpdates", "")
		_, _ = io.WriteString(w, reply)
		return
	}
	select {
	case <-r.Context().Done():
	case <-time.After(50 * time.Millisecond):
	}
	_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
}

// last returns the most recent call of a method.
func (f *fakeBotAPI) last(method string) apiCall {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i]
		}
	}
	f.t.Fatalf("no %s call recorded", method)
	return apiCall{}
}

func newTestClient(t *testing.T) (*Client, *fakeBotAPI) {
	t.Helper()
	api := newFakeBotAPI(t)
	c, err := newClient(tele.Settings{
		URL:    api.srv.URL,
		Token:  testToken,
		Client: &http.Client{Timeout: 5 * time.Second},
		Poller: &tele.LongPoller{Timeout: time.Second, AllowedUpdates: AllowedUpdates},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c, api
}

// nextEvent waits briefly for a queued event.
func nextEvent(t *testing.T, c *Client) relay.Event {
	t.Helper()
	select {
	case evt := <-c.Events():
		return evt
	case <-time.After(5 * time.Second):
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
