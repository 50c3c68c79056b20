// Package relay moves game chat events from the bus to a messaging channel
// and keeps the duplicate filter reconciled.
//
// Three loops run for the lifetime of a Relay: the format loop turns
// inbound chat events into outbound messages, the delivery loop sends them
// through the sink, and the sweep loop reconciles the duplicate filter on a
// ticker and whenever a send or an observation nudges it. A fourth loop logs
// statistics on a cron schedule when one is configured.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tinyland-inc/chatbridge/pkg/bus"
	"github.com/tinyland-inc/chatbridge/pkg/channels"
	"github.com/tinyland-inc/chatbridge/pkg/dedupe"
	"github.com/tinyland-inc/chatbridge/pkg/format"
	"github.com/tinyland-inc/chatbridge/pkg/logger"
	"github.com/tinyland-inc/chatbridge/pkg/metrics"
)

// ErrAlreadyRunning is returned by Run when the relay is already running.
var ErrAlreadyRunning = errors.New("relay is already running")

// Outcome is the result of one delivery attempt.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// Filter reasons reported to metrics.
const (
	reasonChatType = "chat_type"
	reasonEmpty    = "empty"
)

// Sink delivers formatted messages. *channels.DiscordChannel satisfies it.
type Sink interface {
	Send(ctx context.Context, msg bus.OutboundMessage) (dedupe.MessageRecord, error)
	IsAllowed(chatType string) bool
}

// Options configures a Relay.
type Options struct {
	// SweepInterval is the period of the reconciliation ticker.
	SweepInterval time.Duration

	// RateLimitPerMinute caps webhook sends. 0 disables the limit.
	RateLimitPerMinute int
	RateBurst          int

	// StatsSchedule is a cron expression for the statistics report. Empty
	// disables it.
	StatsSchedule string

	// Formatter renders chat events. nil uses the default formatter,
	// truncating to the sink's MaxMessageLength when it provides one.
	Formatter *format.Formatter
}

// Relay wires a message bus, a sink and a duplicate filter together.
type Relay struct {
	opts       Options
	bus        *bus.MessageBus
	sink       Sink
	filter     *dedupe.Filter
	formatter  *format.Formatter
	limiter    *rate.Limiter
	nudge      chan struct{}
	instanceID string
	running    atomic.Bool
	log        *logger.ComponentLogger

	received      atomic.Int64
	filtered      atomic.Int64
	sent          atomic.Int64
	suppressed    atomic.Int64
	failed        atomic.Int64
	observed      atomic.Int64
	deleted       atomic.Int64
	alreadyGone   atomic.Int64
	agedOut       atomic.Int64
	sweeps        atomic.Int64
	sweepFailures atomic.Int64
}

// New creates a Relay. The bus, sink and filter are required.
func New(opts Options, mb *bus.MessageBus, sink Sink, filter *dedupe.Filter) (*Relay, error) {
	if mb == nil {
		return nil, fmt.Errorf("relay: message bus is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("relay: sink is required")
	}
	if filter == nil {
		return nil, fmt.Errorf("relay: duplicate filter is required")
	}
	if opts.SweepInterval <= 0 {
		return nil, fmt.Errorf("relay: sweep interval must be positive, got %s", opts.SweepInterval)
	}
	if opts.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("relay: rate limit must not be negative")
	}
	if opts.StatsSchedule != "" && !gronx.IsValid(opts.StatsSchedule) {
		return nil, fmt.Errorf("relay: invalid stats schedule %q", opts.StatsSchedule)
	}

	formatter := opts.Formatter
	if formatter == nil {
		var maxLength int
		if p, ok := sink.(channels.MessageLengthProvider); ok {
			maxLength = p.MaxMessageLength()
		}
		formatter = format.New(format.Options{MaxLength: maxLength})
	}

	metrics.Init()

	return &Relay{
		opts:       opts,
		bus:        mb,
		sink:       sink,
		filter:     filter,
		formatter:  formatter,
		limiter:    newLimiter(opts.RateLimitPerMinute, opts.RateBurst),
		nudge:      make(chan struct{}, 1),
		instanceID: uuid.NewString(),
		log:        logger.Component("relay"),
	}, nil
}

func newLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// InstanceID identifies this relay process in logs.
func (r *Relay) InstanceID() string {
	return r.instanceID
}

func (r *Relay) IsRunning() bool {
	return r.running.Load()
}

// Run blocks until ctx is done or the bus is closed.
func (r *Relay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.log.Info("Relay started", map[string]any{
		"instance_id":    r.instanceID,
		"sweep_interval": r.opts.SweepInterval.String(),
		"rate_per_min":   r.opts.RateLimitPerMinute,
		"stats_schedule": r.opts.StatsSchedule,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.formatLoop(gctx) })
	g.Go(func() error { return r.deliverLoop(gctx) })
	g.Go(func() error { return r.sweepLoop(gctx) })
	if r.opts.StatsSchedule != "" {
		g.Go(func() error { return r.statsLoop(gctx) })
	}

	err := g.Wait()
	r.log.Info("Relay stopped", r.Stats().fields())
	if errors.Is(err, bus.ErrBusClosed) {
		return nil
	}
	return err
}

// busDone distinguishes a closed bus from a canceled context after a
// consume call reported no message.
func busDone(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return bus.ErrBusClosed
}

func (r *Relay) formatLoop(ctx context.Context) error {
	for {
		ev, ok := r.bus.ConsumeInbound(ctx)
		if !ok {
			return busDone(ctx)
		}
		msg, ok := r.prepare(ev)
		if !ok {
			continue
		}
		if err := r.bus.PublishOutbound(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// prepare filters and formats one chat event.
func (r *Relay) prepare(ev bus.ChatEvent) (bus.OutboundMessage, bool) {
	r.received.Add(1)
	chatType := format.NormalizeType(ev.Type)
	metrics.ObserveEvent(chatType)

	if !r.sink.IsAllowed(chatType) {
		r.filtered.Add(1)
		metrics.ObserveFiltered(reasonChatType)
		r.log.Debug("Chat type not relayed", map[string]any{"chat_type": chatType})
		return bus.OutboundMessage{}, false
	}

	msg, err := r.formatter.Format(ev)
	if err != nil {
		r.filtered.Add(1)
		metrics.ObserveFiltered(reasonEmpty)
		r.log.Debug("Dropping chat event", map[string]any{
			"chat_type": chatType,
			"sender":    ev.Sender,
			"error":     err.Error(),
		})
		return bus.OutboundMessage{}, false
	}
	msg.CorrelationID = uuid.NewString()
	return msg, true
}

func (r *Relay) deliverLoop(ctx context.Context) error {
	for {
		msg, ok := r.bus.SubscribeOutbound(ctx)
		if !ok {
			return busDone(ctx)
		}
		if _, err := r.Deliver(ctx, msg); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

// Deliver sends one message unless an equivalent message from the same
// author was delivered within the outgoing window. The guard is checked
// again after waiting on the rate limiter. A sent message is registered
// with the duplicate filter and nudges the sweep loop.
func (r *Relay) Deliver(ctx context.Context, msg bus.OutboundMessage) (Outcome, error) {
	if r.suppress(msg) {
		return OutcomeSuppressed, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return r.fail(msg, fmt.Errorf("rate limiter: %w", err))
	}
	if r.suppress(msg) {
		return OutcomeSuppressed, nil
	}

	var (
		rec dedupe.MessageRecord
		err error
	)
	d := metrics.TimeFunc(metrics.SendDuration, func() {
		rec, err = r.sink.Send(ctx, msg)
	})
	if err != nil {
		return r.fail(msg, err)
	}

	registered := r.filter.Register(rec)
	r.sent.Add(1)
	metrics.ObserveDelivery(string(OutcomeSent))
	metrics.SetTracked(r.filter.Len())
	r.log.Debug("Message relayed", map[string]any{
		"correlation_id": msg.CorrelationID,
		"message_id":     rec.ID,
		"author":         msg.DisplayName,
		"registered":     registered,
		"duration_ms":    d.Milliseconds(),
	})

	r.Nudge()
	return OutcomeSent, nil
}

func (r *Relay) suppress(msg bus.OutboundMessage) bool {
	if !r.filter.ShouldSuppress(msg.DisplayName, msg.Content) {
		return false
	}
	r.suppressed.Add(1)
	metrics.ObserveDelivery(string(OutcomeSuppressed))
	r.log.Info("Suppressed duplicate message", map[string]any{
		"correlation_id": msg.CorrelationID,
		"author":         msg.DisplayName,
		"chat_type":      msg.ChatType,
	})
	return true
}

func (r *Relay) fail(msg bus.OutboundMessage, err error) (Outcome, error) {
	r.failed.Add(1)
	metrics.ObserveDelivery(string(OutcomeFailed))
	r.log.Error("Failed to relay message", map[string]any{
		"correlation_id": msg.CorrelationID,
		"author":         msg.DisplayName,
		"chat_type":      msg.ChatType,
		"error":          err.Error(),
	})
	return OutcomeFailed, err
}

// Observe registers a managed-sender message delivered by someone else,
// typically another relay instance, and nudges the sweep loop.
func (r *Relay) Observe(rec dedupe.MessageRecord) {
	if !r.filter.Register(rec) {
		return
	}
	r.observed.Add(1)
	metrics.IncObserved()
	metrics.SetTracked(r.filter.Len())
	r.log.Debug("Observed managed message", map[string]any{
		"message_id": rec.ID,
		"author":     rec.AuthorDisplayName,
	})
	r.Nudge()
}

// Nudge asks the sweep loop for a pass without blocking. Nudges that
// arrive while one is pending are dropped.
func (r *Relay) Nudge() {
	select {
	case r.nudge <- struct{}{}:
	default:
	}
}

func (r *Relay) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	// retry fires once the throttle that skipped a sweep has passed.
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-r.nudge:
		case <-retry:
		}
		retry = nil
		if report, _ := r.Sweep(ctx); report.Skipped {
			retry = time.After(r.filter.Config().MinSweepInterval)
		}
	}
}

// Sweep runs one reconciliation pass and records its result. A failed
// upstream delete is logged and returned; the next pass retries it.
func (r *Relay) Sweep(ctx context.Context) (dedupe.SweepReport, error) {
	report, err := r.filter.Reconcile(ctx)
	return r.recordSweep(report, err)
}

// Flush runs a sweep that ignores the throttle. It is used once the loops
// have stopped so duplicates posted just before exit are still removed.
func (r *Relay) Flush(ctx context.Context) (dedupe.SweepReport, error) {
	report, err := r.filter.ReconcileNow(ctx)
	return r.recordSweep(report, err)
}

func (r *Relay) recordSweep(report dedupe.SweepReport, err error) (dedupe.SweepReport, error) {
	defer metrics.SetTracked(r.filter.Len())

	if err != nil {
		r.sweepFailures.Add(1)
		r.deleted.Add(int64(len(report.Deleted)))
		r.alreadyGone.Add(int64(len(report.AlreadyGone)))
		metrics.ObserveSweep("failed", len(report.Deleted), len(report.AlreadyGone), 0, report.Duration)
		fields := map[string]any{"error": err.Error()}
		var delErr *dedupe.DeleteError
		if errors.As(err, &delErr) {
			fields["message_id"] = delErr.ID
		}
		r.log.Error("Duplicate sweep failed", fields)
		return report, err
	}
	if report.Skipped {
		metrics.ObserveSweep("skipped", 0, 0, 0, 0)
		return report, nil
	}

	r.sweeps.Add(1)
	r.deleted.Add(int64(len(report.Deleted)))
	r.alreadyGone.Add(int64(len(report.AlreadyGone)))
	r.agedOut.Add(int64(report.AgedOut))
	metrics.ObserveSweep("ok", len(report.Deleted), len(report.AlreadyGone), report.AgedOut, report.Duration)
	return report, nil
}
