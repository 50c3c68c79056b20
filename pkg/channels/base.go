package channels

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
)

// Channel is the messaging-platform side of the relay. Send returns the
// record of the delivered message as confirmed by the platform.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) (dedupe.MessageRecord, error)
	DeleteMessage(ctx context.Context, id string) error
	IsRunning() bool
	IsAllowed(chatType string) bool
}

// ObserveFunc receives messages posted by the managed sender that this
// process did not send itself, e.g. from another relay instance.
type ObserveFunc func(rec dedupe.MessageRecord)

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a channel.
// The formatter truncates content to this limit. A value of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

// MessageLengthProvider is an opt-in interface that channels implement
// to advertise their maximum message length.
type MessageLengthProvider interface {
	MaxMessageLength() int
}

type BaseChannel struct {
	running          atomic.Bool
	name             string
	allowList        []string
	maxMessageLength int

	observeMu sync.RWMutex
	observe   ObserveFunc
}

func NewBaseChannel(name string, allowList []string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{
		name:      name,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// MaxMessageLength returns the maximum message length (in runes) for this channel.
// A value of 0 means no limit.
func (c *BaseChannel) MaxMessageLength() int {
	return c.maxMessageLength
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed reports whether messages of chatType are relayed. An empty allow
// list allows everything. Entries may use the compound "code|name" form, in
// which case either part matches.
func (c *BaseChannel) IsAllowed(chatType string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	chatType = strings.ToLower(strings.TrimSpace(chatType))
	if chatType == "" {
		return false
	}

	for _, allowed := range c.allowList {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		code, name := allowed, ""
		if idx := strings.Index(allowed, "|"); idx > 0 {
			code, name = allowed[:idx], allowed[idx+1:]
		}
		if chatType == allowed || chatType == code || (name != "" && chatType == name) {
			return true
		}
	}

	return false
}

// SetObserver installs the callback for messages observed on the platform.
func (c *BaseChannel) SetObserver(fn ObserveFunc) {
	c.observeMu.Lock()
	defer c.observeMu.Unlock()
	c.observe = fn
}

// HandleObserved forwards rec to the observer, if any.
func (c *BaseChannel) HandleObserved(rec dedupe.MessageRecord) {
	c.observeMu.RLock()
	fn := c.observe
	c.observeMu.RUnlock()

	if fn != nil {
		fn(rec)
	}
}
