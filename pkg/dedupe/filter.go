package dedupe

import (
	"fmt"
	"sync"
	"time"
)

// Logger is the diagnostic sink used by the Filter. *logger.ComponentLogger
// satisfies it.
type Logger interface {
	Debug(message string, fields map[string]any)
	Info(message string, fields map[string]any)
	Warn(message string, fields map[string]any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]any) {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Warn(string, map[string]any)  {}

// Option configures a Filter.
type Option func(*Filter)

func WithLogger(l Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.log = l
		}
	}
}

// WithClock replaces time.Now. Tests use it to drive the windows.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		if now != nil {
			f.now = now
		}
	}
}

func WithStore(s Store) Option {
	return func(f *Filter) {
		if s != nil {
			f.store = s
		}
	}
}

// Filter is the duplicate-suppression engine for one channel.
type Filter struct {
	cfg     Config
	store   Store
	deleter Deleter
	log     Logger
	now     func() time.Time

	sweepMu   sync.Mutex // held for the duration of a sweep
	lastMu    sync.Mutex
	lastSweep time.Time
}

// New creates a Filter. deleter is required; Reconcile has nothing to call
// without it.
func New(cfg Config, deleter Deleter, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedupe config: %w", err)
	}
	if deleter == nil {
		return nil, fmt.Errorf("dedupe: deleter is required")
	}
	f := &Filter{
		cfg:     cfg,
		store:   NewMemoryStore(),
		deleter: deleter,
		log:     nopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Filter) Config() Config {
	return f.cfg
}

// Len returns the number of records currently tracked.
func (f *Filter) Len() int {
	return f.store.Len()
}

// Register records a confirmed delivery. Records that are not from the
// managed sender, have no content or no ID, or are already known are
// ignored and false is returned.
func (f *Filter) Register(rec MessageRecord) bool {
	if !rec.eligible() {
		f.log.Debug("Ignoring ineligible record", map[string]any{
			"id":      rec.ID,
			"author":  rec.AuthorDisplayName,
			"managed": rec.FromManagedSender,
		})
		return false
	}
	if !f.store.Insert(rec) {
		return false
	}
	f.log.Debug("Registered record", map[string]any{
		"id":      rec.ID,
		"author":  rec.AuthorDisplayName,
		"sent_at": rec.SentAt,
		"tracked": f.store.Len(),
	})
	return true
}

// ShouldSuppress reports whether a candidate message should not be sent
// because an equivalent record was delivered within the outgoing window.
// rawContent is the fully formatted body; its chat text is compared. The
// store is not modified.
func (f *Filter) ShouldSuppress(displayName, rawContent string) bool {
	if ExtractChatText(rawContent) == "" {
		return false
	}

	now := f.now()
	var (
		match   *MessageRecord
		elapsed time.Duration
	)
	for _, rec := range f.store.Recent() {
		rec := rec
		if !IsDuplicateContent(rec.AuthorDisplayName, rec.RawContent, displayName, rawContent) {
			continue
		}
		// Records observed from other instances can arrive out of order, so
		// keep the youngest match rather than the first one seen.
		if age := rec.Age(now); match == nil || age < elapsed {
			match, elapsed = &rec, age
		}
	}

	if match != nil && elapsed < f.cfg.OutgoingWindow {
		f.log.Debug("Suppressing duplicate message", map[string]any{
			"author":     displayName,
			"matched_id": match.ID,
			"elapsed_ms": elapsed.Milliseconds(),
		})
		return true
	}

	f.log.Debug("Sending", map[string]any{"author": displayName})
	return false
}
