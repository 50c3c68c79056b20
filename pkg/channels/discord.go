package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
	"github.com/tinyland-inc/chatbridge/pkg/logger"
)

const (
	discordMaxMessageLength      = 2000
	discordDefaultRequestTimeout = 10 * time.Second
)

var (
	ErrInvalidWebhookURL = errors.New("invalid discord webhook url")
	ErrNotRunning        = errors.New("channel not running")
)

type DiscordConfig struct {
	WebhookURL string
	// BotToken and ChannelID enable gateway observation of messages posted
	// by the same webhook from other relay instances. Both are optional.
	BotToken       string
	ChannelID      string
	AllowChatTypes []string
	RequestTimeout time.Duration
}

type DiscordOption func(*DiscordChannel)

// WithHTTPClient replaces the HTTP client used for webhook requests.
func WithHTTPClient(client *http.Client) DiscordOption {
	return func(c *DiscordChannel) {
		if client != nil {
			c.rest.Client = client
		}
	}
}

// DiscordChannel posts messages through a Discord webhook and deletes them
// through the same webhook, so no bot permissions are needed for either.
type DiscordChannel struct {
	*BaseChannel
	webhookID    string
	webhookToken string
	channelID    string
	botToken     string
	timeout      time.Duration

	rest    *discordgo.Session
	gateway *discordgo.Session
	log     *logger.ComponentLogger
}

func NewDiscordChannel(cfg DiscordConfig, opts ...DiscordOption) (*DiscordChannel, error) {
	id, token, err := ParseWebhookURL(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook endpoints authenticate through the token in the URL.
	rest, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = discordDefaultRequestTimeout
	}

	c := &DiscordChannel{
		BaseChannel:  NewBaseChannel("discord", cfg.AllowChatTypes, WithMaxMessageLength(discordMaxMessageLength)),
		webhookID:    id,
		webhookToken: token,
		channelID:    cfg.ChannelID,
		botToken:     cfg.BotToken,
		timeout:      timeout,
		rest:         rest,
		log:          logger.Component("discord"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseWebhookURL extracts the webhook ID and token from a URL of the form
// https://discord.com/api[/vN]/webhooks/{id}/{token}.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidWebhookURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidWebhookURL, u.Scheme)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] != "webhooks" {
			continue
		}
		id, token = parts[i+1], parts[i+2]
		if id != "" && token != "" {
			return id, token, nil
		}
	}
	return "", "", fmt.Errorf("%w: expected /api/webhooks/{id}/{token}", ErrInvalidWebhookURL)
}

// WebhookID returns the ID of the managed webhook.
func (c *DiscordChannel) WebhookID() string {
	return c.webhookID
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.log.Info("Starting Discord channel", map[string]any{
		"webhook_id": c.webhookID,
		"observe":    c.botToken != "" && c.channelID != "",
	})

	if c.botToken != "" && c.channelID != "" {
		if err := c.openGateway(); err != nil {
			return err
		}
	}

	c.SetRunning(true)
	return nil
}

func (c *DiscordChannel) openGateway() error {
	token := c.botToken
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return fmt.Errorf("discord gateway session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord gateway connect: %w", err)
	}
	c.gateway = session
	c.log.Info("Discord gateway connected", map[string]any{"channel_id": c.channelID})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.log.Info("Stopping Discord channel", nil)
	c.SetRunning(false)

	if c.gateway != nil {
		if err := c.gateway.Close(); err != nil {
			return fmt.Errorf("discord gateway close: %w", err)
		}
		c.gateway = nil
	}
	return nil
}

// Send executes the webhook and waits for Discord to return the created
// message.
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) (dedupe.MessageRecord, error) {
	if !c.IsRunning() {
		return dedupe.MessageRecord{}, ErrNotRunning
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &discordgo.WebhookParams{
		Content:   msg.Content,
		Username:  msg.DisplayName,
		AvatarURL: msg.AvatarURL,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{
				discordgo.AllowedMentionTypeRoles,
				discordgo.AllowedMentionTypeUsers,
			},
		},
	}

	m, err := c.rest.WebhookExecute(c.webhookID, c.webhookToken, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return dedupe.MessageRecord{}, fmt.Errorf("discord webhook execute: %w", err)
	}
	if m == nil {
		return dedupe.MessageRecord{}, errors.New("discord webhook execute: empty response")
	}

	rec := c.recordFromMessage(m, msg.DisplayName)
	c.log.Debug("Message sent", map[string]any{
		"id":             rec.ID,
		"author":         rec.AuthorDisplayName,
		"correlation_id": msg.CorrelationID,
	})
	return rec, nil
}

// DeleteMessage deletes a message previously posted by the webhook. A
// message that no longer exists is reported as dedupe.ErrNotFound.
func (c *DiscordChannel) DeleteMessage(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.rest.WebhookMessageDelete(c.webhookID, c.webhookToken, id, discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}
	if isUnknownMessage(err) {
		return fmt.Errorf("discord delete %s: %w", id, dedupe.ErrNotFound)
	}
	return fmt.Errorf("discord delete %s: %w", id, err)
}

func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func (c *DiscordChannel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	if m.ChannelID != c.channelID || m.WebhookID != c.webhookID {
		return
	}
	rec := c.recordFromMessage(m.Message, "")
	c.log.Debug("Observed managed message", map[string]any{
		"id":     rec.ID,
		"author": rec.AuthorDisplayName,
	})
	c.HandleObserved(rec)
}

func (c *DiscordChannel) recordFromMessage(m *discordgo.Message, fallbackName string) dedupe.MessageRecord {
	name := fallbackName
	if m.Author != nil && m.Author.Username != "" {
		name = m.Author.Username
	}
	sentAt := m.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	return dedupe.MessageRecord{
		ID:                m.ID,
		AuthorDisplayName: name,
		RawContent:        m.Content,
		SentAt:            sentAt,
		FromManagedSender: m.WebhookID != "" && m.WebhookID == c.webhookID,
	}
}
