// Copyright 2024-2026 Aiku AI

package discordfmt

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const ellipsis = "…"

// maxEntityLen bounds how far an '&' may be from its ';' to be treated as
// an entity rather than a literal ampersand.
const maxEntityLen = 10

// VisibleLength returns the length of the text Telegram renders from s, in
// UTF-16 code units. Tags count as zero and entities as one.
func VisibleLength(s string) int {
	n := 0
	walk(s, func(seg string, units int, _ bool) bool {
		n += units
		return true
	})
	return n
}

// Truncate shortens s so its visible text fits in limit UTF-16 code units.
// The cut never lands inside a tag or an entity, an ellipsis marks it, and
// every tag still open at the cut is closed.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if VisibleLength(s) <= limit {
		return s
	}
	budget := limit - utf16Len(ellipsis)
	var b strings.Builder
	var open []string
	used := 0
	walk(s, func(seg string, units int, tag bool) bool {
		if tag {
			name, closing := tagName(seg)
			if closing {
				if len(open) > 0 && open[len(open)-1] == name {
					open = open[:len(open)-1]
				}
			} else if name != "" {
				open = append(open, name)
			}
			b.WriteString(seg)
			return true
		}
		if used+units > budget {
			return false
		}
		used += units
		b.WriteString(seg)
		return true
	})
	b.WriteString(ellipsis)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}

// walk splits s into tags, entities and single runes and calls fn for each
// until it returns false.
func walk(s string, fn func(seg string, units int, tag bool) bool) {
	for i := 0; i < len(s); {
		switch s[i] {
		case '<':
			if end := strings.IndexByte(s[i:], '>'); end >= 0 {
				if !fn(s[i:i+end+1], 0, true) {
					return
				}
				i += end + 1
				continue
			}
		case '&':
			if end := strings.IndexByte(s[i:], ';'); end > 0 && end <= maxEntityLen {
				if !fn(s[i:i+end+1], 1, false) {
					return
				}
				i += end + 1
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if !fn(s[i:i+size], utf16.RuneLen(r), false) {
			return
		}
		i += size
	}
}

func tagName(tag string) (name string, closing bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(tag, "<"), ">")
	if rest, ok := strings.CutPrefix(inner, "/"); ok {
		closing = true
		inner = rest
	}
	if idx := strings.IndexAny(inner, " \t\n/"); idx >= 0 {
		inner = inner[:idx]
	}
	return inner, closing
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
