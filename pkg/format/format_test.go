package format

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
)

func TestFormat_Basic(t *testing.T) {
	f := New(Options{})

	msg, err := f.Format(bus.ChatEvent{Type: "FC", Sender: "Rhoda", World: "Zalera", Message: " hello there "})
	require.NoError(t, err)

	assert.Equal(t, "fc", msg.ChatType)
	assert.Equal(t, "Rhoda@Zalera", msg.DisplayName)
	assert.Equal(t, "**[FC]** hello there", msg.Content)
	assert.Empty(t, msg.CorrelationID)
}

func TestFormat_PrefixAndCustomSlug(t *testing.T) {
	f := New(Options{
		Prefixes: map[string]string{"LS1": "<@&42>"},
		Slugs:    map[string]string{"ls1": "Raid"},
	})

	msg, err := f.Format(bus.ChatEvent{Type: "ls1", Sender: "Rhoda", Message: "pull in 5"})
	require.NoError(t, err)
	assert.Equal(t, "<@&42> **[Raid]** pull in 5", msg.Content)
	assert.Equal(t, "Rhoda", msg.DisplayName)
}

func TestFormat_PartyFinderPrefix(t *testing.T) {
	f := New(Options{CFPrefix: "@Duty"})

	msg, err := f.Format(bus.ChatEvent{Type: PartyFinderType, Sender: "Rhoda", Message: "Party recruitment"})
	require.NoError(t, err)
	assert.Equal(t, "@Duty **[PF]** Party recruitment", msg.Content)

	msg, err = f.Format(bus.ChatEvent{Type: "say", Sender: "Rhoda", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "**[Say]** hi", msg.Content, "cf prefix only applies to party finder")
}

func TestFormat_EmptyMessage(t *testing.T) {
	_, err := New(Options{}).Format(bus.ChatEvent{Type: "say", Sender: "Rhoda", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestFormat_FallbackName(t *testing.T) {
	msg, err := New(Options{FallbackName: "Echo"}).Format(bus.ChatEvent{Type: "echo", Message: "You sense a presence."})
	require.NoError(t, err)
	assert.Equal(t, "Echo", msg.DisplayName)
}

func TestFormat_NeutralizesMentions(t *testing.T) {
	msg, err := New(Options{}).Format(bus.ChatEvent{Type: "shout", Sender: "Troll", Message: "@everyone look @here"})
	require.NoError(t, err)
	assert.NotContains(t, msg.Content, "@everyone")
	assert.NotContains(t, msg.Content, "@here")
}

func TestFormat_Truncates(t *testing.T) {
	f := New(Options{MaxLength: 20})

	msg, err := f.Format(bus.ChatEvent{Type: "say", Sender: "Rhoda", Message: strings.Repeat("ä", 50)})
	require.NoError(t, err)
	assert.Equal(t, 20, utf8.RuneCountInString(msg.Content))
	assert.True(t, strings.HasSuffix(msg.Content, "…"))
}

func TestDisplayName_Truncated(t *testing.T) {
	name := New(Options{}).DisplayName(bus.ChatEvent{Sender: strings.Repeat("a", 100), World: "Zalera"})
	assert.Equal(t, MaxDisplayNameLength, utf8.RuneCountInString(name))
}

func TestDefaultSlug(t *testing.T) {
	tests := map[string]string{
		"say":    "Say",
		" LS3 ":  "LS3",
		"cwls8":  "CWLS8",
		"custom": "Custom",
		"":       "Chat",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultSlug(in), in)
	}
}

// Formatted content must always yield its chat text back to the duplicate
// filter, whatever the prefix.
func TestFormat_ExtractableByDedupe(t *testing.T) {
	f := New(Options{
		Prefixes: map[string]string{"say": "[tag]", "fc": "**bold**"},
		CFPrefix: "<@&1>",
	})
	for _, typ := range []string{"say", "fc", PartyFinderType, "ls2", "unknown"} {
		msg, err := f.Format(bus.ChatEvent{Type: typ, Sender: "Rhoda", Message: "[WTB] mats [HQ]"})
		require.NoError(t, err)
		assert.Equal(t, "[WTB] mats [HQ]", dedupe.ExtractChatText(msg.Content), typ)
	}
}
