// Copyright 2024-2026 Aiku AI

// Package discordfmt converts Discord markdown to Telegram HTML.
package discordfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Telegram limits, in UTF-16 code units of visible text.
const (
	TextLimit    = 4096
	CaptionLimit = 1024
)

// Resolver looks up display names and identity links for mention tokens.
// All methods may be called concurrently.
type Resolver interface {
	MemberName(userID string) (string, bool)
	LinkedTelegramID(userID string) (int64, bool)
	RoleName(roleID string) (string, bool)
	ChannelName(channelID string) (string, bool)
}

// CustomEmoji is a Discord custom emoji referenced by a message.
type CustomEmoji struct {
	Name     string
	ID       string
	Animated bool
}

// URL returns the CDN address of the emoji image.
func (e CustomEmoji) URL() string {
	ext := "png"
	if e.Animated {
		ext = "gif"
	}
	return "https://cdn.discordapp.com/emojis/" + e.ID + "." + ext
}

// Result holds the output of Render.
type Result struct {
	HTML   string
	Emojis []CustomEmoji
	// Fallback is set when the formatted output was mis-nested and HTML holds
	// escaped plain text instead.
	Fallback bool
}

var (
	codeBlockRe    = regexp.MustCompile("(?s)```(?:([\\w+#.-]+)\\n)?(.*?)```")
	doubleCodeRe   = regexp.MustCompile("``(.+?)``")
	codeRe         = regexp.MustCompile("`([^`\n]+)`")
	customEmojiRe  = regexp.MustCompile(`<(a?):(\w+):(\d+)>`)
	userMentionRe  = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRe  = regexp.MustCompile(`<@&(\d+)>`)
	channelRe      = regexp.MustCompile(`<#(\d+)>`)
	maskedLinkRe   = regexp.MustCompile(`\[([^\]\n]+)\]\(<?(https?://[^)\s>]+)>?\)`)
	angleURLRe     = regexp.MustCompile(`<(https?://[^\s>]+)>`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>\x00]+`)
	boldItalicRe   = regexp.MustCompile(`\*\*\*(.+?)\*\*\*`)
	boldRe         = regexp.MustCompile(`\*\*(.+?)\*\*`)
	underlineRe    = regexp.MustCompile(`__(.+?)__`)
	starItalicRe   = regexp.MustCompile(`\*([^\s*](?:[^*\n]*?[^\s*])?)\*`)
	underItalicRe  = regexp.MustCompile(`(^|[^\w\\])_([^_\n]+?)_($|[^\w])`)
	strikeRe       = regexp.MustCompile(`~~(.+?)~~`)
	spoilerRe      = regexp.MustCompile(`\|\|(.+?)\|\|`)
	tagRe          = regexp.MustCompile(`<(/?)([a-z-]+)(?:\s[^>]*)?>`)
	placeholderRe  = regexp.MustCompile("\x00(CODEBLOCK|CODE|TOKEN)(\\d+)\x00")
	allowedTags    = map[string]bool{"b": true, "i": true, "u": true, "s": true, "a": true, "code": true, "pre": true, "span": true, "blockquote": true}
	htmlEscaper    = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	massMentionFix = strings.NewReplacer("@everyone", "@\u200beveryone", "@here", "@\u200bhere")
)

// codeBlock holds extracted code data.
type codeBlock struct {
	lang    string
	content string
	raw     string
	inline  bool
}

type renderer struct {
	resolver Resolver
	codes    []codeBlock
	tokens   []string
	emojis   []CustomEmoji
}

// Render converts a Discord message body to Telegram HTML. A nil resolver
// renders every user mention as unknown.
func Render(text string, r Resolver) *Result {
	if text == "" {
		return &Result{}
	}
	rd := &renderer{resolver: r}

	// Step 1: Extract code into placeholders.
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		content := strings.TrimSuffix(strings.TrimPrefix(parts[2], "\n"), "\n")
		return rd.code(codeBlock{lang: parts[1], content: content, raw: match})
	})
	processed = doubleCodeRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := doubleCodeRe.FindStringSubmatch(match)
		return rd.code(codeBlock{content: strings.TrimSpace(parts[1]), raw: match, inline: true})
	})
	processed = codeRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := codeRe.FindStringSubmatch(match)
		return rd.code(codeBlock{content: parts[1], raw: match, inline: true})
	})

	// Step 2: Replace mentions, emoji and links with opaque tokens.
	processed = customEmojiRe.ReplaceAllStringFunc(processed, rd.customEmoji)
	processed = roleMentionRe.ReplaceAllStringFunc(processed, rd.roleMention)
	processed = userMentionRe.ReplaceAllStringFunc(processed, rd.userMention)
	processed = channelRe.ReplaceAllStringFunc(processed, rd.channelMention)
	processed = maskedLinkRe.ReplaceAllStringFunc(processed, rd.maskedLink)
	processed = angleURLRe.ReplaceAllStringFunc(processed, func(match string) string {
		return rd.token(EscapeHTML(match[1 : len(match)-1]))
	})
	processed = bareURLRe.ReplaceAllStringFunc(processed, func(match string) string {
		return rd.token(EscapeHTML(match))
	})

	// Mass mentions are defused in text only; URL tokens stay intact.
	escaped := DefuseMassMentions(EscapeHTML(processed))

	// Step 3: Inline formatting, in precedence order.
	formatted := boldItalicRe.ReplaceAllString(escaped, "<b><i>$1</i></b>")
	formatted = boldRe.ReplaceAllString(formatted, "<b>$1</b>")
	formatted = underlineRe.ReplaceAllString(formatted, "<u>$1</u>")
	formatted = starItalicRe.ReplaceAllString(formatted, "<i>$1</i>")
	for {
		next := underItalicRe.ReplaceAllString(formatted, "$1<i>$2</i>$3")
		if next == formatted {
			break
		}
		formatted = next
	}
	formatted = strikeRe.ReplaceAllString(formatted, "<s>$1</s>")
	formatted = spoilerRe.ReplaceAllString(formatted, `<span class="tg-spoiler">$1</span>`)

	// Step 4: Block quotes.
	formatted = applyQuotes(formatted)

	// Step 5: Restore placeholders.
	out := rd.restore(formatted, false)
	if Valid(out) {
		return &Result{HTML: out, Emojis: rd.emojis}
	}
	return &Result{
		HTML:     rd.restore(escaped, true),
		Emojis:   rd.emojis,
		Fallback: true,
	}
}

func (rd *renderer) code(cb codeBlock) string {
	idx := len(rd.codes)
	rd.codes = append(rd.codes, cb)
	name := "CODEBLOCK"
	if cb.inline {
		name = "CODE"
	}
	return "\x00" + name + strconv.Itoa(idx) + "\x00"
}

func (rd *renderer) token(rendered string) string {
	idx := len(rd.tokens)
	rd.tokens = append(rd.tokens, rendered)
	return "\x00TOKEN" + strconv.Itoa(idx) + "\x00"
}

func (rd *renderer) customEmoji(match string) string {
	parts := customEmojiRe.FindStringSubmatch(match)
	emoji := CustomEmoji{Name: parts[2], ID: parts[3], Animated: parts[1] == "a"}
	seen := false
	for _, e := range rd.emojis {
		if e.ID == emoji.ID {
			seen = true
			break
		}
	}
	if !seen {
		rd.emojis = append(rd.emojis, emoji)
	}
	return rd.token(":" + EscapeHTML(emoji.Name) + ":")
}

func (rd *renderer) userMention(match string) string {
	id := userMentionRe.FindStringSubmatch(match)[1]
	var name string
	var ok bool
	if rd.resolver != nil {
		name, ok = rd.resolver.MemberName(id)
	}
	if !ok {
		return rd.token(EscapeHTML("@Unknown User (" + id + ")"))
	}
	if tgID, linked := rd.resolver.LinkedTelegramID(id); linked {
		return rd.token(UserLink(tgID, DefuseMassMentions(name)))
	}
	return rd.token(EscapeHTML(DefuseMassMentions("@" + name)))
}

func (rd *renderer) roleMention(match string) string {
	id := roleMentionRe.FindStringSubmatch(match)[1]
	if rd.resolver != nil {
		if name, ok := rd.resolver.RoleName(id); ok {
			return rd.token(EscapeHTML(DefuseMassMentions("@" + strings.TrimPrefix(name, "@"))))
		}
	}
	return rd.token(EscapeHTML("@Unknown Role (" + id + ")"))
}

func (rd *renderer) channelMention(match string) string {
	id := channelRe.FindStringSubmatch(match)[1]
	if rd.resolver != nil {
		if name, ok := rd.resolver.ChannelName(id); ok {
			return rd.token("#" + EscapeHTML(name))
		}
	}
	return rd.token(EscapeHTML("#Unknown Channel (" + id + ")"))
}

func (rd *renderer) maskedLink(match string) string {
	parts := maskedLinkRe.FindStringSubmatch(match)
	text, href := parts[1], parts[2]
	// Tokens nested in the label are flattened back to their rendered text.
	label := rd.restore(DefuseMassMentions(EscapeHTML(text)), true)
	return rd.token(`<a href="` + strings.ReplaceAll(EscapeHTML(href), `"`, "&quot;") + `">` + label + `</a>`)
}

// restore replaces placeholders with their rendered form. In plain mode code
// is emitted as escaped source instead of tags.
func (rd *renderer) restore(s string, plain bool) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderRe.FindStringSubmatch(match)
		idx, err := strconv.Atoi(parts[2])
		if err != nil {
			return ""
		}
		if parts[1] == "TOKEN" {
			if idx < len(rd.tokens) {
				return rd.tokens[idx]
			}
			return ""
		}
		if idx < len(rd.codes) {
			return rd.codes[idx].render(plain)
		}
		return ""
	})
}

func (cb codeBlock) render(plain bool) string {
	if plain {
		return EscapeHTML(DefuseMassMentions(cb.raw))
	}
	content := EscapeHTML(DefuseMassMentions(cb.content))
	switch {
	case cb.inline:
		return "<code>" + content + "</code>"
	case cb.lang != "":
		return `<pre><code class="language-` + EscapeHTML(cb.lang) + `">` + content + `</code></pre>`
	default:
		return "<pre>" + content + "</pre>"
	}
}

// applyQuotes wraps "> " lines and ">>> " tails in blockquote tags. The input
// is already HTML-escaped.
func applyQuotes(s string) string {
	if !strings.Contains(s, "&gt;") {
		return s
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	var quoted []string
	flush := func() {
		if len(quoted) == 0 {
			return
		}
		out = append(out, "<blockquote>"+strings.Join(quoted, "\n")+"</blockquote>")
		quoted = nil
	}
	for i, line := range lines {
		if rest, ok := strings.CutPrefix(line, "&gt;&gt;&gt; "); ok {
			quoted = append(quoted, rest)
			quoted = append(quoted, lines[i+1:]...)
			break
		}
		if rest, ok := strings.CutPrefix(line, "&gt; "); ok {
			quoted = append(quoted, rest)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()
	return strings.Join(out, "\n")
}

// EscapeHTML escapes the three characters Telegram's HTML parser reserves.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// DefuseMassMentions breaks @everyone and @here with a zero-width space.
func DefuseMassMentions(s string) string {
	return massMentionFix.Replace(s)
}

// UserLink renders a Telegram user mention that links to the given id.
func UserLink(telegramID int64, name string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, telegramID, EscapeHTML(name))
}

// Valid reports whether every tag in s is a supported Telegram tag and tags
// are properly nested.
func Valid(s string) bool {
	var stack []string
	for _, m := range tagRe.FindAllStringSubmatch(s, -1) {
		name := m[2]
		if !allowedTags[name] {
			return false
		}
		if m[1] == "" {
			stack = append(stack, name)
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != name {
			return false
		}
		stack = stack[:len(stack)-1]
	}
	return len(stack) == 0
}
