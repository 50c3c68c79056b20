package dedupe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeDeleter records delete calls. errs maps an ID to the error returned
// for it; block, when set, is waited on before every delete returns.
type fakeDeleter struct {
	mu      sync.Mutex
	calls   []string
	errs    map[string]error
	block   chan struct{}
	entered chan string
}

func (d *fakeDeleter) DeleteMessage(ctx context.Context, id string) error {
	d.mu.Lock()
	d.calls = append(d.calls, id)
	err := d.errs[id]
	block, entered := d.block, d.entered
	d.mu.Unlock()

	if entered != nil {
		entered <- id
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *fakeDeleter) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func newTestFilter(t *testing.T, clock *fakeClock, deleter Deleter) *Filter {
	t.Helper()
	f, err := New(DefaultConfig(), deleter, WithClock(clock.Now))
	require.NoError(t, err)
	return f
}

func managed(id, name, raw string, at time.Time) MessageRecord {
	return MessageRecord{
		ID:                id,
		AuthorDisplayName: name,
		RawContent:        raw,
		SentAt:            at,
		FromManagedSender: true,
	}
}

// storedIDs returns the tracked IDs in insertion order.
func storedIDs(f *Filter) []string {
	recent := f.store.Recent()
	ids := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		ids = append(ids, recent[i].ID)
	}
	return ids
}
