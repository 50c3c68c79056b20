package relay

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
)

// Stats is a snapshot of the relay counters since start.
type Stats struct {
	Received      int64 `json:"received"`
	Filtered      int64 `json:"filtered"`
	Sent          int64 `json:"sent"`
	Suppressed    int64 `json:"suppressed"`
	Failed        int64 `json:"failed"`
	Observed      int64 `json:"observed"`
	Deleted       int64 `json:"deleted"`
	AlreadyGone   int64 `json:"already_gone"`
	AgedOut       int64 `json:"aged_out"`
	Sweeps        int64 `json:"sweeps"`
	SweepFailures int64 `json:"sweep_failures"`
	Tracked       int   `json:"tracked"`
}

func (s Stats) fields() map[string]any {
	return map[string]any{
		"received":       s.Received,
		"filtered":       s.Filtered,
		"sent":           s.Sent,
		"suppressed":     s.Suppressed,
		"failed":         s.Failed,
		"observed":       s.Observed,
		"deleted":        s.Deleted,
		"already_gone":   s.AlreadyGone,
		"aged_out":       s.AgedOut,
		"sweeps":         s.Sweeps,
		"sweep_failures": s.SweepFailures,
		"tracked":        s.Tracked,
	}
}

func (r *Relay) Stats() Stats {
	return Stats{
		Received:      r.received.Load(),
		Filtered:      r.filtered.Load(),
		Sent:          r.sent.Load(),
		Suppressed:    r.suppressed.Load(),
		Failed:        r.failed.Load(),
		Observed:      r.observed.Load(),
		Deleted:       r.deleted.Load(),
		AlreadyGone:   r.alreadyGone.Load(),
		AgedOut:       r.agedOut.Load(),
		Sweeps:        r.sweeps.Load(),
		SweepFailures: r.sweepFailures.Load(),
		Tracked:       r.filter.Len(),
	}
}

// nextReport returns the first tick of schedule strictly after now, in UTC.
func nextReport(schedule string, now time.Time) (time.Time, error) {
	return gronx.NextTickAfter(schedule, now.UTC(), false)
}

func (r *Relay) statsLoop(ctx context.Context) error {
	for {
		next, err := nextReport(r.opts.StatsSchedule, time.Now())
		if err != nil {
			r.log.Error("Cannot schedule statistics report", map[string]any{
				"schedule": r.opts.StatsSchedule,
				"error":    err.Error(),
			})
			return nil
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		r.logStats()
	}
}

func (r *Relay) logStats() {
	fields := r.Stats().fields()
	fields["instance_id"] = r.instanceID
	r.log.Info("Relay statistics", fields)
}
