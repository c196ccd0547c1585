// Copyright 2024-2026 Aiku AI

package discordfmt

import (
	"strings"
	"testing"
)

type fakeResolver struct {
	members  map[string]string
	links    map[string]int64
	roles    map[string]string
	channels map[string]string
}

func (f *fakeResolver) MemberName(id string) (string, bool) {
	name, ok := f.members[id]
	return name, ok
}

func (f *fakeResolver) LinkedTelegramID(id string) (int64, bool) {
	tgID, ok := f.links[id]
	return tgID, ok
}

func (f *fakeResolver) RoleName(id string) (string, bool) {
	name, ok := f.roles[id]
	return name, ok
}

func (f *fakeResolver) ChannelName(id string) (string, bool) {
	name, ok := f.channels[id]
	return name, ok
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		members:  map[string]string{"1": "Alice", "2": "Bob <3"},
		links:    map[string]int64{"1": 42},
		roles:    map[string]string{"10": "Mods"},
		channels: map[string]string{"20": "general"},
	}
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()
	result := Render("", nil)
	if result.HTML != "" {
		t.Errorf("empty input HTML: got %q", result.HTML)
	}
	if len(result.Emojis) != 0 {
		t.Errorf("empty input Emojis: got %d", len(result.Emojis))
	}
}

func TestRenderInline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello world", "hello world"},
		{"bold and italic", "**bold** and _ital_", "<b>bold</b> and <i>ital</i>"},
		{"bold italic", "***both***", "<b><i>both</i></b>"},
		{"underline", "__under__", "<u>under</u>"},
		{"star italic", "*soft*", "<i>soft</i>"},
		{"strikethrough", "~~gone~~", "<s>gone</s>"},
		{"spoiler", "||secret||", `<span class="tg-spoiler">secret</span>`},
		{"snake case", "snake_case_name", "snake_case_name"},
		{"spaced stars", "2 * 3 * 4", "2 * 3 * 4"},
		{"unclosed bold", "**unclosed", "**unclosed"},
		{"escaping", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"two italics", "_a_ _b_", "<i>a</i> <i>b</i>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.input, nil).HTML
			if got != tt.want {
				t.Errorf("Render(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"inline", "use `a<b>`", "use <code>a&lt;b&gt;</code>"},
		{"inline keeps markers", "`**not bold**`", "<code>**not bold**</code>"},
		{"double backtick", "``a`b``", "<code>a`b</code>"},
		{"block with language", "```go\nfmt.Println(\"**hi**\")\n```", `<pre><code class="language-go">fmt.Println("**hi**")</code></pre>`},
		{"block without language", "```\nx := 1\n```", "<pre>x := 1</pre>"},
		{"single line block", "```hello world```", "<pre>hello world</pre>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.input, nil).HTML
			if got != tt.want {
				t.Errorf("Render(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderMentions(t *testing.T) {
	t.Parallel()
	r := newFakeResolver()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"linked user", "hi <@1>", `hi <a href="tg://user?id=42">Alice</a>`},
		{"nickname form", "hi <@!1>", `hi <a href="tg://user?id=42">Alice</a>`},
		{"soft mention", "hi <@2>", "hi @Bob &lt;3"},
		{"unknown user", "hi <@3>", "hi @Unknown User (3)"},
		{"role", "<@&10> ping", "@Mods ping"},
		{"unknown role", "<@&11>", "@Unknown Role (11)"},
		{"channel", "see <#20>", "see #general"},
		{"unknown channel", "see <#21>", "see #Unknown Channel (21)"},
		{"everyone", "@everyone look", "@\u200beveryone look"},
		{"here", "@here look", "@\u200bhere look"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.input, r).HTML
			if got != tt.want {
				t.Errorf("Render(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderMassMentionsInLinks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare url", "see https://x.com/@here/x", `see https://x.com/@here/x`},
		{"angle url", "<https://x.com/@everyone>", `https://x.com/@everyone`},
		{"masked link keeps href", "[@everyone](https://x.com/@everyone)", `<a href="https://x.com/@everyone">@` + "\u200b" + `everyone</a>`},
		{"text beside url", "@here https://x.com/@here", "@\u200bhere https://x.com/@here"},
		{"inline code", "`@here`", "<code>@\u200bhere</code>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Render(tt.input, nil).HTML; got != tt.want {
				t.Errorf("Render(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderDefusesResolvedNames(t *testing.T) {
	t.Parallel()
	r := newFakeResolver()
	r.roles["12"] = "@everyone"
	if got, want := Render("<@&12>", r).HTML, "@\u200beveryone"; got != want {
		t.Errorf("everyone role: got %q, want %q", got, want)
	}
}

func TestRenderNilResolverMention(t *testing.T) {
	t.Parallel()
	got := Render("<@123>", nil).HTML
	if got != "@Unknown User (123)" {
		t.Errorf("nil resolver: got %q, want %q", got, "@Unknown User (123)")
	}
}

func TestRenderCustomEmoji(t *testing.T) {
	t.Parallel()
	result := Render("hi <:pepe:123> <a:dance:456> <:pepe:123>", nil)
	if result.HTML != "hi :pepe: :dance: :pepe:" {
		t.Errorf("HTML: got %q", result.HTML)
	}
	if len(result.Emojis) != 2 {
		t.Fatalf("Emojis: got %d, want 2", len(result.Emojis))
	}
	if got := result.Emojis[0].URL(); got != "https://cdn.discordapp.com/emojis/123.png" {
		t.Errorf("static URL: got %q", got)
	}
	if got := result.Emojis[1].URL(); got != "https://cdn.discordapp.com/emojis/456.gif" {
		t.Errorf("animated URL: got %q", got)
	}
}

func TestRenderLinks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"masked", "[docs](https://example.com/a_b)", `<a href="https://example.com/a_b">docs</a>`},
		{"unsafe scheme", "[x](javascript:alert(1))", "[x](javascript:alert(1))"},
		{"bare url keeps underscores", "see https://x.com/a_b_c ok", "see https://x.com/a_b_c ok"},
		{"angle url", "<https://example.com>", "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.input, nil).HTML
			if got != tt.want {
				t.Errorf("Render(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderQuotes(t *testing.T) {
	t.Parallel()
	if got := Render("> quoted\nplain", nil).HTML; got != "<blockquote>quoted</blockquote>\nplain" {
		t.Errorf("line quote: got %q", got)
	}
	if got := Render("intro\n>>> a\nb", nil).HTML; got != "intro\n<blockquote>a\nb</blockquote>" {
		t.Errorf("tail quote: got %q", got)
	}
}

func TestRenderMisnestedFallsBack(t *testing.T) {
	t.Parallel()
	result := Render("**a __b** c__ <@1>", newFakeResolver())
	if !result.Fallback {
		t.Errorf("expected fallback for mis-nested markup, got %q", result.HTML)
	}
	want := `**a __b** c__ <a href="tg://user?id=42">Alice</a>`
	if result.HTML != want {
		t.Errorf("fallback HTML: got %q, want %q", result.HTML, want)
	}
	if !Valid(result.HTML) {
		t.Errorf("fallback HTML is not valid: %q", result.HTML)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  bool
	}{
		{"plain", true},
		{"<b>x</b>", true},
		{"<b><i>x</i></b>", true},
		{"<b><i>x</b></i>", false},
		{"<b>x", false},
		{"</b>", false},
		{"<script>x</script>", false},
		{`<span class="tg-spoiler">x</span>`, true},
	}
	for _, tt := range tests {
		if got := Valid(tt.input); got != tt.want {
			t.Errorf("Valid(%q): got %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestUserLinkEscapesName(t *testing.T) {
	t.Parallel()
	got := UserLink(7, "a<b")
	if !strings.Contains(got, "a&lt;b") || !strings.HasPrefix(got, `<a href="tg://user?id=7">`) {
		t.Errorf("UserLink: got %q", got)
	}
}
