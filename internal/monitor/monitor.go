package monitor

// #region imports
import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/hlcs-dev/supervisor/internal/telemetry"
)

// #endregion

// #region monitor

// Monitor samples named telemetry signals on a fixed interval and emits
// debounced AnomalyEvents. Each signal keeps its own rolling baseline and
// debounce streak; one event fires after Consecutive breaches, then the
// streak resets.
type Monitor struct {
	tel      *telemetry.Store
	signals  []SignalConfig
	interval time.Duration

	events  chan AnomalyEvent
	dropped atomic.Int64

	// per-signal debounce state, touched only by the sampling goroutine
	streak   map[string]int
	lastSeen map[string]time.Time
}

// New creates a monitor over the given telemetry store. queueSize bounds
// the event channel; a full queue drops the oldest event rather than
// blocking the sampling loop.
func New(tel *telemetry.Store, signals []SignalConfig, interval time.Duration, queueSize int) *Monitor {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Monitor{
		tel:      tel,
		signals:  signals,
		interval: interval,
		events:   make(chan AnomalyEvent, queueSize),
		streak:   make(map[string]int),
		lastSeen: make(map[string]time.Time),
	}
}

// Events is the queue consumed by the autocorrector.
func (m *Monitor) Events() <-chan AnomalyEvent {
	return m.events
}

// Dropped reports how many events were discarded to a full queue.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// #endregion monitor

// #region run

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("[MON] sampling %d signals every %s", len(m.signals), m.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[MON] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep checks every configured signal once.
func (m *Monitor) sweep() {
	for _, sig := range m.signals {
		if err := m.check(sig); err != nil {
			log.Printf("[MON] %s: %v", sig.Name, err)
		}
	}
}

// #endregion run

// #region check

// check evaluates one signal's latest sample against its rolling baseline.
// The baseline is the mean of the Window samples preceding the latest one.
func (m *Monitor) check(sig SignalConfig) error {
	samples, err := m.tel.Window(sig.Name, sig.Window+1)
	if err != nil {
		return err
	}
	// Need at least one baseline sample plus the sample under test.
	if len(samples) < 2 {
		return nil
	}

	latest := samples[len(samples)-1]
	if !latest.CreatedAt.After(m.lastSeen[sig.Name]) {
		// No fresh data since the last sweep; a stale sample is not a
		// new consecutive observation.
		return nil
	}
	m.lastSeen[sig.Name] = latest.CreatedAt

	baseline := telemetry.Mean(samples[:len(samples)-1])
	if baseline == 0 {
		return nil
	}

	rel := (latest.Value - baseline) / baseline
	breached := false
	switch sig.Direction {
	case DirectionAbove:
		breached = rel >= sig.Deviation
	case DirectionBelow:
		breached = -rel >= sig.Deviation
	}

	if !breached {
		if m.streak[sig.Name] > 0 {
			log.Printf("[MON] %s recovered after %d breach(es)", sig.Name, m.streak[sig.Name])
		}
		m.streak[sig.Name] = 0
		return nil
	}

	m.streak[sig.Name]++
	log.Printf("[MON] %s breach %d/%d: observed=%.3f baseline=%.3f",
		sig.Name, m.streak[sig.Name], sig.Consecutive, latest.Value, baseline)
	if m.streak[sig.Name] < sig.Consecutive {
		return nil
	}
	m.streak[sig.Name] = 0

	m.emit(AnomalyEvent{
		Signal:    sig.Name,
		Observed:  latest.Value,
		Baseline:  baseline,
		Threshold: sig.Deviation,
		Severity:  severityFor(rel, sig),
		At:        latest.CreatedAt,
	})
	return nil
}

// severityFor grades a breach critical when the deviation is at least
// double the configured threshold.
func severityFor(rel float64, sig SignalConfig) Severity {
	magnitude := rel
	if sig.Direction == DirectionBelow {
		magnitude = -rel
	}
	if magnitude >= 2*sig.Deviation {
		return SeverityCritical
	}
	return SeverityWarning
}

// #endregion check

// #region emit

// emit enqueues without blocking. A full queue sheds its oldest event so
// the sampling loop never stalls on a slow consumer.
func (m *Monitor) emit(ev AnomalyEvent) {
	for {
		select {
		case m.events <- ev:
			log.Printf("[MON] anomaly: signal=%s severity=%s observed=%.3f baseline=%.3f",
				ev.Signal, ev.Severity, ev.Observed, ev.Baseline)
			return
		default:
		}
		select {
		case <-m.events:
			m.dropped.Add(1)
			log.Printf("[MON] event queue full, dropped oldest (total %d)", m.dropped.Load())
		default:
		}
	}
}

// #endregion emit
