package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/channels"
	"github.com/tinyland-inc/chatbridge/pkg/config"
	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
	"github.com/tinyland-inc/chatbridge/pkg/relay"
)

func TestNewRelayCommand(t *testing.T) {
	cmd := NewRelayCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "relay", cmd.Use)
	assert.Equal(t, []string{"r"}, cmd.Aliases)
	assert.False(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().ShorthandLookup("d"))
}

func TestNewStack_RequiresWebhook(t *testing.T) {
	_, err := NewStack(config.DefaultConfig(), StackOptions{})
	assert.ErrorContains(t, err, "webhook_url")
}

func TestNewStack_Wiring(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Discord.WebhookURL = "https://discord.com/api/webhooks/123/abc"
	cfg.Gateway.Port = 0

	stack, err := NewStack(cfg, StackOptions{WithSource: true, WithHealth: true})
	require.NoError(t, err)
	defer stack.Bus.Close()

	assert.Equal(t, "123", stack.Discord.WebhookID())
	assert.NotNil(t, stack.Source)
	assert.NotNil(t, stack.Health)
	assert.Equal(t, cfg.Dedupe.ToDedupe(), stack.Filter.Config())
	assert.False(t, stack.Relay.IsRunning())

	bare, err := NewStack(cfg, StackOptions{})
	require.NoError(t, err)
	defer bare.Bus.Close()
	assert.Nil(t, bare.Source)
	assert.Nil(t, bare.Health)
}

func TestStackShutdown_FinalSweepIgnoresThrottle(t *testing.T) {
	discord, err := channels.NewDiscordChannel(channels.DiscordConfig{
		WebhookURL: "https://discord.com/api/webhooks/123/abc",
	})
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		deleted []string
	)
	filter, err := dedupe.New(dedupe.DefaultConfig(), dedupe.DeleterFunc(func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		deleted = append(deleted, id)
		return nil
	}))
	require.NoError(t, err)

	mb := bus.NewMessageBus()
	r, err := relay.New(relay.Options{SweepInterval: time.Hour}, mb, discord, filter)
	require.NoError(t, err)
	stack := &Stack{Bus: mb, Discord: discord, Filter: filter, Relay: r}

	// A routine sweep just ran, so a throttled sweep would be skipped.
	_, err = r.Sweep(context.Background())
	require.NoError(t, err)

	now := time.Now()
	for i, id := range []string{"1", "2"} {
		r.Observe(dedupe.MessageRecord{
			ID:                id,
			AuthorDisplayName: "Rhoda@Zalera",
			RawContent:        "**[FC]** gm",
			SentAt:            now.Add(time.Duration(i) * time.Millisecond),
			FromManagedSender: true,
		})
	}

	stack.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"2"}, deleted)
	assert.Equal(t, 1, filter.Len())
}
