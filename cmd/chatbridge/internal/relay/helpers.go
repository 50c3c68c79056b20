package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal"
	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/channels"
	"github.com/tinyland-inc/chatbridge/pkg/config"
	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
	"github.com/tinyland-inc/chatbridge/pkg/format"
	"github.com/tinyland-inc/chatbridge/pkg/health"
	"github.com/tinyland-inc/chatbridge/pkg/logger"
	"github.com/tinyland-inc/chatbridge/pkg/relay"
	"github.com/tinyland-inc/chatbridge/pkg/source"
)

const shutdownTimeout = 5 * time.Second

// Stack is a fully wired relay: bus, Discord channel, duplicate filter,
// relay loops and, optionally, the game chat source and health server.
type Stack struct {
	Bus     *bus.MessageBus
	Discord *channels.DiscordChannel
	Filter  *dedupe.Filter
	Relay   *relay.Relay
	Source  *source.WebSocketSource
	Health  *health.Server

	cancel context.CancelFunc
	done   chan struct{}
}

// StackOptions selects the optional parts of a Stack.
type StackOptions struct {
	WithSource bool
	WithHealth bool
}

// ApplyLogLevel sets the log level from the config unless debug forces it.
func ApplyLogLevel(cfg *config.Config, debug bool) {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
		return
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
}

// NewStack builds every component from cfg without starting anything.
func NewStack(cfg *config.Config, opts StackOptions) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	discord, err := channels.NewDiscordChannel(channels.DiscordConfig{
		WebhookURL:     cfg.Discord.WebhookURL,
		BotToken:       cfg.Discord.BotToken,
		ChannelID:      cfg.Discord.ChannelID,
		AllowChatTypes: cfg.Discord.AllowChatTypes,
		RequestTimeout: cfg.Discord.RequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating discord channel: %w", err)
	}

	filter, err := dedupe.New(cfg.Dedupe.ToDedupe(), discord,
		dedupe.WithLogger(logger.Component("dedupe")))
	if err != nil {
		return nil, fmt.Errorf("error creating duplicate filter: %w", err)
	}

	msgBus := bus.NewMessageBusSize(cfg.Relay.BufferSize)

	formatter := format.New(format.Options{
		Prefixes:     cfg.Format.Prefixes,
		Slugs:        cfg.Format.Slugs,
		CFPrefix:     cfg.Format.CFPrefix,
		AvatarURL:    cfg.Format.AvatarURL,
		FallbackName: cfg.Format.FallbackName,
		MaxLength:    discord.MaxMessageLength(),
	})

	r, err := relay.New(relay.Options{
		SweepInterval:      cfg.Dedupe.SweepInterval(),
		RateLimitPerMinute: cfg.Relay.RateLimitPerMinute,
		RateBurst:          cfg.Relay.RateBurst,
		StatsSchedule:      cfg.Relay.StatsSchedule,
		Formatter:          formatter,
	}, msgBus, discord, filter)
	if err != nil {
		msgBus.Close()
		return nil, fmt.Errorf("error creating relay: %w", err)
	}
	discord.SetObserver(r.Observe)

	s := &Stack{Bus: msgBus, Discord: discord, Filter: filter, Relay: r}

	if opts.WithSource {
		s.Source, err = source.NewWebSocketSource(source.WebSocketConfig{
			URL:          cfg.Source.URL,
			Token:        cfg.Source.Token,
			ReconnectMin: time.Duration(cfg.Source.ReconnectMinMS) * time.Millisecond,
			ReconnectMax: time.Duration(cfg.Source.ReconnectMaxMS) * time.Millisecond,
		}, msgBus)
		if err != nil {
			msgBus.Close()
			return nil, fmt.Errorf("error creating chat source: %w", err)
		}
	}

	if opts.WithHealth && cfg.Gateway.Enabled {
		s.Health = health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
		s.Health.RegisterCheck("discord", func() error {
			if !discord.IsRunning() {
				return errors.New("discord channel not running")
			}
			return nil
		})
		s.Health.RegisterCheck("relay", func() error {
			if !r.IsRunning() {
				return errors.New("relay not running")
			}
			return nil
		})
		if src := s.Source; src != nil {
			s.Health.RegisterCheck("source", func() error {
				if !src.Connected() {
					return errors.New("chat source disconnected")
				}
				return nil
			})
		}
	}

	return s, nil
}

// Start opens the Discord channel and launches the relay, the source and the
// health server in the background.
func (s *Stack) Start(ctx context.Context) error {
	if err := s.Discord.Start(ctx); err != nil {
		return fmt.Errorf("error starting discord channel: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.Relay.Run(ctx); err != nil {
			logger.ErrorCF("relay", "Relay stopped with error", map[string]any{"error": err.Error()})
		}
	}()

	if s.Source != nil {
		go func() {
			if err := s.Source.Run(ctx); err != nil {
				logger.ErrorCF("source", "Chat source stopped with error", map[string]any{"error": err.Error()})
			}
		}()
	}

	if s.Health != nil {
		go func() {
			if err := s.Health.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
			}
		}()
		s.Health.SetReady(true)
	}
	return nil
}

// Shutdown stops everything Start launched, then runs a final sweep so
// duplicates posted just before exit are not left behind.
func (s *Stack) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.Health != nil {
		s.Health.SetReady(false)
		_ = s.Health.Stop(ctx)
	}
	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	if _, err := s.Relay.Flush(ctx); err != nil {
		logger.WarnCF("relay", "Final sweep failed", map[string]any{"error": err.Error()})
	}

	s.Bus.Close()
	if err := s.Discord.Stop(ctx); err != nil {
		logger.WarnCF("discord", "Error stopping channel", map[string]any{"error": err.Error()})
	}
	logger.Sync()
}

func relayCmd(debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	ApplyLogLevel(cfg, debug)

	stack, err := NewStack(cfg, StackOptions{WithSource: true, WithHealth: true})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stack.Start(ctx); err != nil {
		return err
	}

	logger.InfoCF("relay", "Relay initialized", map[string]any{
		"instance_id":      stack.Relay.InstanceID(),
		"webhook_id":       stack.Discord.WebhookID(),
		"source":           cfg.Source.URL,
		"observe_gateway":  cfg.Discord.BotToken != "",
		"allow_chat_types": []string(cfg.Discord.AllowChatTypes),
	})

	fmt.Printf("%s Relaying %s to Discord webhook %s\n", internal.Logo, cfg.Source.URL, stack.Discord.WebhookID())
	if stack.Health != nil {
		fmt.Printf("✓ Health endpoints available at http://%s/health, /ready and /metrics\n", stack.Health.Addr())
	}
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	stack.Shutdown()
	fmt.Printf("✓ Relay stopped (%d sent, %d suppressed, %d deleted)\n",
		stack.Relay.Stats().Sent, stack.Relay.Stats().Suppressed, stack.Relay.Stats().Deleted)

	return nil
}
