package dedupe

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepReport describes one Reconcile pass.
type SweepReport struct {
	// Skipped is true when the call was throttled or another sweep was
	// already running. No other field is set in that case.
	Skipped bool

	Scanned int // records inside the retention window
	AgedOut int // records dropped for age, without an upstream delete

	Deleted     []string // IDs deleted upstream during this pass
	AlreadyGone []string // IDs whose delete reported ErrNotFound

	Duration time.Duration
}

// Removed returns every ID dropped from the store as a duplicate.
func (r SweepReport) Removed() []string {
	out := make([]string, 0, len(r.Deleted)+len(r.AlreadyGone))
	out = append(out, r.Deleted...)
	return append(out, r.AlreadyGone...)
}

// Reconcile deletes the newer copy of every duplicate pair inside the
// retention window and compacts the store.
//
// Calls made less than MinSweepInterval after the previous sweep return a
// skipped report. Upstream deletes run without holding the store lock.
// If any delete fails with something other than ErrNotFound, no further
// deletes are started, records already deleted in the pass are dropped,
// the age-out compaction is skipped and the first such error is returned
// as a *DeleteError. A canceled ctx is handled the same way and returned
// as is.
func (f *Filter) Reconcile(ctx context.Context) (SweepReport, error) {
	if !f.sweepMu.TryLock() {
		return SweepReport{Skipped: true}, nil
	}
	defer f.sweepMu.Unlock()

	start := f.now()
	if !f.claimSweep(start, false) {
		return SweepReport{Skipped: true}, nil
	}
	return f.reconcile(ctx, start)
}

// ReconcileNow runs a sweep regardless of MinSweepInterval, waiting for a
// sweep already in progress to finish first. It is meant for a last pass
// before shutdown.
func (f *Filter) ReconcileNow(ctx context.Context) (SweepReport, error) {
	f.sweepMu.Lock()
	defer f.sweepMu.Unlock()

	start := f.now()
	f.claimSweep(start, true)
	return f.reconcile(ctx, start)
}

func (f *Filter) reconcile(ctx context.Context, start time.Time) (SweepReport, error) {
	window := f.store.SnapshotWindow(start, f.cfg.RetentionWindow)
	report := SweepReport{Scanned: len(window)}

	targets := duplicateTargets(window)
	f.log.Debug("Dedupe cached messages", map[string]any{
		"total":      f.store.Len(),
		"recent":     len(window),
		"duplicates": len(targets),
	})

	if len(targets) > 0 {
		deleted, gone, err := f.deleteAll(ctx, targets)
		report.Deleted, report.AlreadyGone = deleted, gone
		if err != nil {
			f.store.RemoveMany(report.Removed())
			report.Duration = f.now().Sub(start)
			return report, err
		}
	}

	// Records registered after the snapshot are newer than the cutoff and
	// survive the compaction.
	cutoff := start.Add(-f.cfg.RetentionWindow)
	aged, _ := f.store.Compact(cutoff, report.Removed())
	report.AgedOut = aged
	report.Duration = f.now().Sub(start)

	if len(targets) > 0 || aged > 0 {
		f.log.Info("Reconciled duplicates", map[string]any{
			"scanned":      report.Scanned,
			"deleted":      len(report.Deleted),
			"already_gone": len(report.AlreadyGone),
			"aged_out":     report.AgedOut,
		})
	}
	return report, nil
}

// claimSweep records now as the last sweep time unless the previous sweep
// was less than MinSweepInterval ago and force is false.
func (f *Filter) claimSweep(now time.Time, force bool) bool {
	f.lastMu.Lock()
	defer f.lastMu.Unlock()

	if !force && !f.lastSweep.IsZero() && now.Sub(f.lastSweep) < f.cfg.MinSweepInterval {
		return false
	}
	f.lastSweep = now
	return true
}

// duplicateTargets compares every pair of the window (sorted oldest first)
// and returns the newer member of each duplicate pair, each record at most
// once, in window order.
func duplicateTargets(window []MessageRecord) []MessageRecord {
	seen := make(map[string]struct{})
	var targets []MessageRecord
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			if !IsDuplicateRecord(window[i], window[j]) {
				continue
			}
			newer := window[j]
			if window[i].SentAt.After(newer.SentAt) {
				newer = window[i]
			}
			if _, dup := seen[newer.ID]; dup {
				continue
			}
			seen[newer.ID] = struct{}{}
			targets = append(targets, newer)
		}
	}
	return targets
}

func (f *Filter) deleteAll(ctx context.Context, targets []MessageRecord) (deleted, gone []string, err error) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.DeleteConcurrency)

	for _, rec := range targets {
		if gctx.Err() != nil {
			break
		}
		rec := rec
		g.Go(func() error {
			// A failed delete cancels gctx; deletes not yet started are
			// left for the next sweep.
			if gctx.Err() != nil {
				return nil
			}
			f.log.Debug("Delete", map[string]any{
				"id":      rec.ID,
				"author":  rec.AuthorDisplayName,
				"content": rec.RawContent,
			})

			err := f.deleter.DeleteMessage(ctx, rec.ID)
			switch {
			case err == nil:
				mu.Lock()
				deleted = append(deleted, rec.ID)
				mu.Unlock()
				return nil
			case errors.Is(err, ErrNotFound):
				f.log.Debug("Message could not be deleted, already gone", map[string]any{"id": rec.ID})
				mu.Lock()
				gone = append(gone, rec.ID)
				mu.Unlock()
				return nil
			default:
				f.log.Warn("Delete failed", map[string]any{"id": rec.ID, "error": err.Error()})
				return &DeleteError{ID: rec.ID, Err: err}
			}
		})
	}

	if err = g.Wait(); err == nil {
		err = ctx.Err()
	}
	return deleted, gone, err
}
