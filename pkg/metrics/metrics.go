// Package metrics holds the Prometheus series exported by the relay.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsReceived    *prometheus.CounterVec // by chat_type
	EventsFiltered    *prometheus.CounterVec // by reason
	MessagesRelayed   *prometheus.CounterVec // by outcome: sent|suppressed|failed
	ObservedMessages  prometheus.Counter
	DuplicatesDeleted prometheus.Counter
	DuplicatesGone    prometheus.Counter
	RecordsAgedOut    prometheus.Counter
	SweepsTotal       *prometheus.CounterVec // by result: ok|skipped|failed
	DeleteFailures    prometheus.Counter

	// Histograms (seconds)
	SendDuration  prometheus.Observer
	SweepDuration prometheus.Observer

	// Gauges
	TrackedRecords prometheus.Gauge
	SourceUp       prometheus.Gauge // 1=connected,0=disconnected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbridge_events_received_total", Help: "Chat events received from the source"}, []string{"chat_type"})
		EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbridge_events_filtered_total", Help: "Chat events dropped before delivery"}, []string{"reason"})
		MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbridge_messages_total", Help: "Delivery attempts by outcome"}, []string{"outcome"})
		ObservedMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbridge_observed_messages_total", Help: "Managed-sender messages observed from other instances"})
		DuplicatesDeleted = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbridge_duplicates_deleted_total", Help: "Duplicate messages deleted by reconciliation"})
		DuplicatesGone = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbridge_duplicates_already_gone_total", Help: "Duplicate messages that were already deleted upstream"})
		RecordsAgedOut = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbridge_records_aged_out_total", Help: "Records dropped from the store for age"})
		SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbridge_sweeps_total", Help: "Reconciliation sweeps by result"}, []string{"result"})
		DeleteFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbridge_delete_failures_total", Help: "Sweeps aborted by a failed upstream delete"})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatbridge_send_duration_seconds", Help: "Webhook send duration seconds", Buckets: prometheus.DefBuckets})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatbridge_sweep_duration_seconds", Help: "Reconciliation sweep duration seconds", Buckets: prometheus.DefBuckets})
		TrackedRecords = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatbridge_tracked_records", Help: "Records currently held by the duplicate filter"})
		SourceUp = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatbridge_source_up", Help: "Game chat source connected=1 disconnected=0"})
	})
}

// ObserveEvent counts a received chat event.
func ObserveEvent(chatType string) {
	if EventsReceived != nil {
		EventsReceived.WithLabelValues(chatType).Inc()
	}
}

// ObserveFiltered counts an event dropped for reason.
func ObserveFiltered(reason string) {
	if EventsFiltered != nil {
		EventsFiltered.WithLabelValues(reason).Inc()
	}
}

// ObserveDelivery counts a delivery outcome.
func ObserveDelivery(outcome string) {
	if MessagesRelayed != nil {
		MessagesRelayed.WithLabelValues(outcome).Inc()
	}
}

// ObserveSweep records one reconciliation pass.
func ObserveSweep(result string, deleted, gone, aged int, d time.Duration) {
	if SweepsTotal == nil {
		return
	}
	SweepsTotal.WithLabelValues(result).Inc()
	if result == "skipped" {
		return
	}
	DuplicatesDeleted.Add(float64(deleted))
	DuplicatesGone.Add(float64(gone))
	RecordsAgedOut.Add(float64(aged))
	SweepDuration.Observe(d.Seconds())
	if result == "failed" {
		DeleteFailures.Inc()
	}
}

// SetTracked records the current size of the record store.
func SetTracked(n int) {
	if TrackedRecords != nil {
		TrackedRecords.Set(float64(n))
	}
}

// SetSourceUp sets the source gauge to 1 if connected else 0.
func SetSourceUp(up bool) {
	if SourceUp == nil {
		return
	}
	if up {
		SourceUp.Set(1)
	} else {
		SourceUp.Set(0)
	}
}

// IncObserved counts a message observed from another instance.
func IncObserved() {
	if ObservedMessages != nil {
		ObservedMessages.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
