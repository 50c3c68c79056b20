package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsoleCommand(t *testing.T) {
	cmd := NewConsoleCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "console", cmd.Use)
	assert.Equal(t, []string{"c"}, cmd.Aliases)
	assert.True(t, cmd.HasExample())
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("message"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))

	sender := cmd.Flags().Lookup("sender")
	require.NotNil(t, sender)
	assert.Equal(t, "Console", sender.DefValue)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line      string
		wantType  string
		wantName  string
		wantWorld string
		wantText  string
	}{
		{"[fc] Rhoda@Zalera: gm", "fc", "Rhoda", "Zalera", "gm"},
		{"[ls1] Rhoda: pull in 5", "ls1", "Rhoda", "", "pull in 5"},
		{"hello there", "say", "Console", "", "hello there"},
		{"[shout] WTS: mats", "shout", "WTS", "", "mats"},
		{"note: with spaces before the colon", "say", "note", "", "with spaces before the colon"},
		{"two words: stay text", "say", "Console", "", "two words: stay text"},
		{"[] odd", "say", "Console", "", "[] odd"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ev, err := ParseLine(tt.line, "Console")
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, tt.wantName, ev.Sender)
			assert.Equal(t, tt.wantWorld, ev.World)
			assert.Equal(t, tt.wantText, ev.Message)
			assert.False(t, ev.Timestamp.IsZero())
		})
	}
}

func TestParseLine_Empty(t *testing.T) {
	_, err := ParseLine("[fc] Rhoda:  ", "Console")
	assert.ErrorIs(t, err, errEmptyLine)

	_, err = ParseLine("   ", "Console")
	assert.ErrorIs(t, err, errEmptyLine)
}
