// Package source connects to the game client and feeds its chat events into
// the message bus.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/logger"
	"github.com/tinyland-inc/chatbridge/pkg/metrics"
)

const (
	defaultReconnectMin     = time.Second
	defaultReconnectMax     = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	maxMessageSize          = 64 * 1024
)

var ErrNoURL = errors.New("source url is required")

type WebSocketConfig struct {
	URL string
	// Token, when set, is sent as a bearer Authorization header.
	Token            string
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
}

// WebSocketSource reads JSON chat events from a websocket and publishes
// them as inbound bus messages. It reconnects with exponential backoff
// until its context is cancelled.
type WebSocketSource struct {
	cfg    WebSocketConfig
	bus    *bus.MessageBus
	dialer *websocket.Dialer
	log    *logger.ComponentLogger

	connected atomic.Bool
	received  atomic.Int64
	dropped   atomic.Int64
	now       func() time.Time
}

func NewWebSocketSource(cfg WebSocketConfig, mb *bus.MessageBus) (*WebSocketSource, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNoURL
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, fmt.Errorf("source url must use ws:// or wss:// (got %q)", cfg.URL)
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(defaultReconnectMax, cfg.ReconnectMin)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	return &WebSocketSource{
		cfg: cfg,
		bus: mb,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: logger.Component("source"),
		now: time.Now,
	}, nil
}

func (s *WebSocketSource) Name() string { return "websocket" }

// Connected reports whether a connection is currently open.
func (s *WebSocketSource) Connected() bool {
	return s.connected.Load()
}

// Received returns the number of events published to the bus.
func (s *WebSocketSource) Received() int64 {
	return s.received.Load()
}

// Dropped returns the number of frames that could not be decoded.
func (s *WebSocketSource) Dropped() int64 {
	return s.dropped.Load()
}

// Run connects and reads until ctx is done. It only returns a non-nil error
// when the bus is closed.
func (s *WebSocketSource) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectMin
	for {
		start := s.now()
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, bus.ErrBusClosed) {
			return err
		}

		// A connection that stayed up for a while resets the backoff.
		if s.now().Sub(start) > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMin
		}
		s.log.Warn("Source disconnected, reconnecting", map[string]any{
			"error":   errString(err),
			"backoff": backoff.String(),
		})

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, s.cfg.ReconnectMax)
	}
}

func (s *WebSocketSource) session(ctx context.Context) error {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", s.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s.connected.Store(true)
	metrics.SetSourceUp(true)
	s.log.Info("Source connected", map[string]any{"url": s.cfg.URL})

	// Unblock ReadMessage when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer func() {
		s.connected.Store(false)
		metrics.SetSourceUp(false)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		ev, err := s.decode(data)
		if err != nil {
			s.dropped.Add(1)
			s.log.Warn("Invalid chat event", map[string]any{"error": err.Error()})
			continue
		}
		if err := s.bus.PublishInbound(ctx, ev); err != nil {
			return err
		}
		s.received.Add(1)
	}
}

func (s *WebSocketSource) decode(data []byte) (bus.ChatEvent, error) {
	var ev bus.ChatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return bus.ChatEvent{}, fmt.Errorf("decode: %w", err)
	}
	if strings.TrimSpace(ev.Type) == "" {
		return bus.ChatEvent{}, errors.New("chat event has no type")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	return ev, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
