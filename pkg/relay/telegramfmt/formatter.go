// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package telegramfmt converts Telegram message text and entities to Discord
// markdown.
package telegramfmt

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// MessageLimit is the maximum Discord message length in characters.
const MessageLimit = 2000

// Entity types as named by the Telegram Bot API.
const (
	EntityBold          = "bold"
	EntityItalic        = "italic"
	EntityUnderline     = "underline"
	EntityStrikethrough = "strikethrough"
	EntitySpoiler       = "spoiler"
	EntityCode          = "code"
	EntityPre           = "pre"
	EntityBlockquote    = "blockquote"
	EntityExpandable    = "expandable_blockquote"
	EntityTextLink      = "text_link"
	EntityURL           = "url"
	EntityMention       = "mention"
	EntityTextMention   = "text_mention"
)

// Entity is a formatting span over the message text. Offset and Length are
// measured in UTF-16 code units.
type Entity struct {
	Type     string
	Offset   int
	Length   int
	URL      string
	UserID   int64
	Language string
}

// Resolver maps Telegram users to linked Discord users.
type Resolver interface {
	DiscordUserFor(telegramID int64) (string, bool)
	ResolveTelegramUsername(username string) (string, bool)
}

// Result holds the output of Render.
type Result struct {
	Markdown string
	// Mentioned lists Discord user ids pinged by the output, in order.
	Mentioned []string
}

var (
	escapeRe       = regexp.MustCompile("([*_~`|>\\\\])")
	massMentionFix = strings.NewReplacer("@everyone", "@\u200beveryone", "@here", "@\u200bhere")
	markers        = map[string]string{
		EntityBold:          "**",
		EntityItalic:        "*",
		EntityUnderline:     "__",
		EntityStrikethrough: "~~",
		EntitySpoiler:       "||",
	}
)

// span is an entity resolved to UTF-16 bounds.
type span struct {
	Entity
	start, end int
	atomic     bool
}

func isAtomic(t string) bool {
	switch t {
	case EntityCode, EntityPre, EntityTextLink, EntityURL, EntityMention, EntityTextMention:
		return true
	}
	return false
}

func isWrapping(t string) bool {
	_, ok := markers[t]
	return ok || t == EntityBlockquote || t == EntityExpandable
}

type renderer struct {
	units     []uint16
	resolver  Resolver
	out       strings.Builder
	quote     int
	lineBreak bool
	mentioned []string
	// closedAt is the output length right after the last closing marker.
	closedAt int
}

// Render converts text with its entities to Discord markdown. Entities of
// unsupported types are rendered as plain text. A nil resolver leaves every
// mention unresolved.
func Render(text string, entities []Entity, r Resolver) *Result {
	if text == "" {
		return &Result{}
	}
	rd := &renderer{units: utf16.Encode([]rune(text)), resolver: r}
	spans := rd.spans(entities)

	var stack []*span
	pos, next := 0, 0
	n := len(rd.units)
	for {
		stack = rd.closeAt(stack, pos)
		if pos >= n {
			break
		}
		advanced := false
		for next < len(spans) && spans[next].start <= pos {
			sp := spans[next]
			next++
			if sp.atomic {
				rd.writeRaw(rd.atomic(sp))
				pos = sp.end
				advanced = true
				break
			}
			rd.open(sp)
			stack = append(stack, sp)
		}
		if advanced {
			continue
		}
		end := n
		if next < len(spans) && spans[next].start < end {
			end = spans[next].start
		}
		for _, sp := range stack {
			if sp.end < end {
				end = sp.end
			}
		}
		rd.writeText(rd.slice(pos, end))
		pos = end
	}
	return &Result{Markdown: rd.out.String(), Mentioned: rd.mentioned}
}

// spans clamps entities to the text and orders them outermost first. Atomic
// spans never overlap; wrapping spans that start or end inside one are
// widened to cover it.
func (rd *renderer) spans(entities []Entity) []*span {
	n := len(rd.units)
	var atomics, wrapping []*span
	for _, e := range entities {
		start := max(e.Offset, 0)
		end := min(e.Offset+e.Length, n)
		if start >= end {
			continue
		}
		if _, ok := markers[e.Type]; ok {
			// Discord ignores markers next to whitespace.
			for start < end && rd.isSpace(start) {
				start++
			}
			for end > start && rd.isSpace(end-1) {
				end--
			}
			if start == end {
				continue
			}
		}
		sp := &span{Entity: e, start: start, end: end, atomic: isAtomic(e.Type)}
		switch {
		case sp.atomic:
			atomics = append(atomics, sp)
		case isWrapping(e.Type):
			wrapping = append(wrapping, sp)
		}
	}
	slices.SortStableFunc(atomics, func(a, b *span) int { return a.start - b.start })
	kept := atomics[:0]
	lastEnd := 0
	for _, a := range atomics {
		if a.start < lastEnd {
			continue
		}
		kept = append(kept, a)
		lastEnd = a.end
	}
	for _, w := range wrapping {
		for _, a := range kept {
			if w.start > a.start && w.start < a.end {
				w.start = a.start
			}
			if w.end > a.start && w.end < a.end {
				w.end = a.end
			}
		}
	}
	all := append(wrapping, kept...)
	slices.SortStableFunc(all, func(a, b *span) int {
		if a.start != b.start {
			return a.start - b.start
		}
		if a.end != b.end {
			return b.end - a.end
		}
		switch {
		case a.atomic == b.atomic:
			return 0
		case a.atomic:
			return 1
		default:
			return -1
		}
	})
	return all
}

// closeAt closes every open span that ends at or before pos. Spans opened
// after one that closes are closed first and reopened so markers nest.
func (rd *renderer) closeAt(stack []*span, pos int) []*span {
	lowest := -1
	for i, sp := range stack {
		if sp.end <= pos {
			lowest = i
			break
		}
	}
	if lowest < 0 {
		return stack
	}
	var reopen []*span
	for len(stack) > lowest {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		rd.close(top)
		if top.end > pos {
			reopen = append(reopen, top)
		}
	}
	for i := len(reopen) - 1; i >= 0; i-- {
		rd.open(reopen[i])
		stack = append(stack, reopen[i])
	}
	return stack
}

func (rd *renderer) open(sp *span) {
	if sp.Type == EntityBlockquote || sp.Type == EntityExpandable {
		if rd.out.Len() > 0 && !strings.HasSuffix(rd.out.String(), "\n") {
			rd.out.WriteByte('\n')
		}
		rd.out.WriteString("> ")
		rd.quote++
		rd.lineBreak = false
		return
	}
	m := markers[sp.Type]
	if n := rd.out.Len(); n > 0 && n == rd.closedAt && rd.out.String()[n-1] == m[0] {
		// Keep a closing run and an opening run from merging into one.
		rd.out.WriteString("\u200b")
	}
	rd.out.WriteString(m)
}

func (rd *renderer) close(sp *span) {
	if sp.Type == EntityBlockquote || sp.Type == EntityExpandable {
		rd.quote--
		rd.lineBreak = true
		return
	}
	rd.out.WriteString(markers[sp.Type])
	rd.closedAt = rd.out.Len()
}

func (rd *renderer) isSpace(i int) bool {
	u := rd.units[i]
	return !utf16.IsSurrogate(rune(u)) && unicode.IsSpace(rune(u))
}

func (rd *renderer) atomic(sp *span) string {
	content := rd.slice(sp.start, sp.end)
	switch sp.Type {
	case EntityCode:
		fence := "`"
		if strings.Contains(content, "`") {
			fence = "``"
			if strings.HasPrefix(content, "`") || strings.HasSuffix(content, "`") {
				content = " " + content + " "
			}
		}
		return fence + content + fence
	case EntityPre:
		content = strings.ReplaceAll(content, "```", "``\u200b`")
		return "```" + sp.Language + "\n" + strings.TrimSuffix(content, "\n") + "\n```"
	case EntityURL:
		return content
	case EntityTextLink:
		if id, ok := telegramUserLink(sp.URL); ok {
			if mention, ok := rd.mentionUser(id); ok {
				return mention
			}
			return Escape(content)
		}
		if !safeURL(sp.URL) {
			return Escape(content)
		}
		return "[" + Escape(content) + "](" + sp.URL + ")"
	case EntityMention:
		if rd.resolver != nil {
			if id, ok := rd.resolver.ResolveTelegramUsername(strings.TrimPrefix(content, "@")); ok {
				rd.addMention(id)
				return "<@" + id + ">"
			}
		}
		return Escape(content)
	case EntityTextMention:
		if mention, ok := rd.mentionUser(sp.UserID); ok {
			return mention
		}
		return Escape(content)
	}
	return Escape(content)
}

func (rd *renderer) mentionUser(telegramID int64) (string, bool) {
	if rd.resolver == nil || telegramID == 0 {
		return "", false
	}
	id, ok := rd.resolver.DiscordUserFor(telegramID)
	if !ok {
		return "", false
	}
	rd.addMention(id)
	return "<@" + id + ">", true
}

func (rd *renderer) addMention(id string) {
	if !slices.Contains(rd.mentioned, id) {
		rd.mentioned = append(rd.mentioned, id)
	}
}

func (rd *renderer) writeText(s string) {
	rd.writeRaw(Escape(s))
}

// writeRaw appends s, continuing any open block quote across line breaks.
func (rd *renderer) writeRaw(s string) {
	if s == "" {
		return
	}
	if rd.lineBreak {
		rd.lineBreak = false
		if !strings.HasPrefix(s, "\n") {
			rd.out.WriteByte('\n')
		}
	}
	if rd.quote > 0 {
		s = strings.ReplaceAll(s, "\n", "\n> ")
	}
	rd.out.WriteString(s)
}

func (rd *renderer) slice(start, end int) string {
	return string(utf16.Decode(rd.units[start:end]))
}

func telegramUserLink(url string) (int64, bool) {
	rest, ok := strings.CutPrefix(url, "tg://user?id=")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}

func safeURL(url string) bool {
	lower := strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Escape backslash-escapes Discord markdown characters and defuses mass
// mentions.
func Escape(s string) string {
	return DefuseMassMentions(escapeRe.ReplaceAllString(s, `\$1`))
}

// DefuseMassMentions breaks @everyone and @here with a zero-width space.
func DefuseMassMentions(s string) string {
	return massMentionFix.Replace(s)
}

// Truncate shortens s to at most limit characters, marking the cut with an
// ellipsis. The cut never splits a <@id> mention or a backslash escape.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := string([]rune(s)[:limit-1])
	if i := strings.LastIndex(cut, "<@"); i >= 0 && !strings.Contains(cut[i:], ">") {
		cut = cut[:i]
	}
	if n := len(cut) - len(strings.TrimRight(cut, `\`)); n%2 == 1 {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}
