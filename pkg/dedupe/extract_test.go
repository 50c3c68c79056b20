package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractChatText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain slug", "[World] hello", "hello"},
		{"bold slug", "**[Say]** hello there", "hello there"},
		{"italic slug", "*[Party]* pull in 5", "pull in 5"},
		{"prefix and bold slug", "<:fc:1234> **[FC]** gm", "gm"},
		{"brackets in payload", "**[LS1]** see [this] item", "see [this] item"},
		{"brackets in prefix", "[x]y **[Shout]** wts", "wts"},
		{"bracketed prefix word", "[tag] **[Say]** [WTB] mats", "[WTB] mats"},
		{"bracketed prefix with plain slug", "[tag] [Say] hello", "[Say] hello"},
		{"multiline payload", "**[Say]** line one\nline two", "line one\nline two"},
		{"no slug", "just some text", ""},
		{"slug without payload", "**[Say]** ", ""},
		{"slug without space", "**[Say]**hello", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractChatText(tt.raw))
		})
	}
}

func TestExtractChatText_RecoversFormattedPayload(t *testing.T) {
	payloads := []string{"hello", "wts [Glamour Prism] 5k", "o/ everyone!", "a  b", "ünïcödé ok"}
	slugs := []string{"[World]", "**[Say]**", "*[CWLS1]*"}
	prefixes := []string{"", "🌐 ", "<:ls:99> "}

	for _, p := range prefixes {
		for _, s := range slugs {
			for _, c := range payloads {
				raw := p + s + " " + c
				assert.Equal(t, c, ExtractChatText(raw), "raw=%q", raw)
			}
		}
	}
}
