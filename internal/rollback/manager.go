package rollback

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hlcs-dev/supervisor/internal/autocorrect"
	"github.com/hlcs-dev/supervisor/internal/config"
	"github.com/hlcs-dev/supervisor/internal/narrative"
	"github.com/hlcs-dev/supervisor/internal/telemetry"
)

// #endregion

// #region manager-config

// Config bounds the post-action observation window. A record resolves at
// the wall-clock deadline or once MinSamples post-action samples arrive,
// whichever comes first.
type Config struct {
	Window     time.Duration
	MinSamples int
	Tolerance  float64
	Poll       time.Duration
	Directions map[string]string // signal name → "above" | "below"
}

// DefaultConfig returns the built-in observation window.
func DefaultConfig() Config {
	return Config{
		Window:     10 * time.Minute,
		MinSamples: 5,
		Tolerance:  0.10,
		Poll:       15 * time.Second,
	}
}

// #endregion manager-config

// #region manager

// Manager gates tentative config tuning. Every applied action passes
// through an observation window; the persisted Record is the single
// source of truth for whether a revert is needed, so a restart resumes
// open windows instead of forgetting them.
type Manager struct {
	db   *sql.DB
	cfg  *config.Store
	tel  *telemetry.Store
	opts Config
	narr *narrative.Store

	onResolve func(key string)

	mu      sync.Mutex
	pending map[string]Record // by config key
}

// New migrates the action_records table on the shared database handle.
// narr may be nil.
func New(cfg *config.Store, tel *telemetry.Store, opts Config, narr *narrative.Store) (*Manager, error) {
	db := cfg.DB()
	if _, err := db.Exec(recordsSchema); err != nil {
		return nil, fmt.Errorf("migrate action records: %w", err)
	}
	return &Manager{
		db:      db,
		cfg:     cfg,
		tel:     tel,
		opts:    opts,
		narr:    narr,
		pending: make(map[string]Record),
	}, nil
}

// OnResolve registers a hook invoked with the config key after each
// record leaves pending. The autocorrector uses it to drain deferrals.
func (m *Manager) OnResolve(fn func(key string)) {
	m.onResolve = fn
}

// Busy reports whether a config key has an open observation window.
func (m *Manager) Busy(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key]
	return ok
}

// #endregion manager

// #region observe

// Observe opens an observation window for an action about to be applied.
// snapshot is the pre-action config value the key reverts to on
// regression. The key reservation is atomic: a key that already has an
// open window is rejected with *autocorrect.ActionConflictError, so two
// concurrent callers can never both open a window for the same key.
func (m *Manager) Observe(act autocorrect.Action, snapshot float64) error {
	now := time.Now().UTC()
	baseline := act.Baseline
	if baseline == 0 {
		// No anomaly baseline on the action; fall back to the recent mean.
		samples, err := m.tel.Window(act.Signal, m.opts.MinSamples)
		if err != nil {
			return fmt.Errorf("baseline for %s: %w", act.Signal, err)
		}
		baseline = telemetry.Mean(samples)
	}

	direction := m.opts.Directions[act.Signal]
	if direction == "" {
		direction = "above"
	}

	r := Record{
		ID:         act.ID,
		Key:        act.Key,
		PrevValue:  snapshot,
		NewValue:   act.To,
		Signal:     act.Signal,
		Direction:  direction,
		Baseline:   baseline,
		Tolerance:  m.opts.Tolerance,
		MinSamples: m.opts.MinSamples,
		AppliedAt:  now,
		Deadline:   now.Add(m.opts.Window),
		Outcome:    OutcomePending,
	}

	m.mu.Lock()
	if _, busy := m.pending[r.Key]; busy {
		m.mu.Unlock()
		return &autocorrect.ActionConflictError{Key: r.Key}
	}
	m.pending[r.Key] = r
	m.mu.Unlock()

	if err := insertRecord(m.db, r); err != nil {
		m.mu.Lock()
		delete(m.pending, r.Key)
		m.mu.Unlock()
		return err
	}

	log.Printf("[RB] observing %s until %s (signal=%s baseline=%.3f)",
		r.Key, r.Deadline.Format(time.RFC3339), r.Signal, r.Baseline)
	return nil
}

// Abort discards a window whose config write never landed. The record
// is deleted rather than resolved: the action never took effect, so
// there is nothing to commit or revert.
func (m *Manager) Abort(actionID string) error {
	if _, err := m.db.Exec(`DELETE FROM action_records WHERE id = ? AND outcome = ?`, actionID, OutcomePending); err != nil {
		return fmt.Errorf("abort record %s: %w", actionID, err)
	}
	m.mu.Lock()
	for key, r := range m.pending {
		if r.ID == actionID {
			delete(m.pending, key)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// #endregion observe

// #region resume

// Resume reloads pending records after a restart and continues their
// windows from the persisted deadlines.
func (m *Manager) Resume() error {
	records, err := pendingRecords(m.db)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for _, r := range records {
		m.pending[r.Key] = r
	}
	m.mu.Unlock()
	if len(records) > 0 {
		log.Printf("[RB] resumed %d open observation window(s)", len(records))
	}
	return nil
}

// #endregion resume

// #region run

// Run polls open windows until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[RB] stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			m.sweep(time.Now().UTC())
		}
	}
}

// sweep resolves every window that has hit its deadline or sample count.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	open := make([]Record, 0, len(m.pending))
	for _, r := range m.pending {
		open = append(open, r)
	}
	m.mu.Unlock()

	for _, r := range open {
		samples, err := m.tel.Since(r.Signal, r.AppliedAt)
		if err != nil {
			log.Printf("[RB] %s: %v", r.Key, err)
			continue
		}
		if now.Before(r.Deadline) && len(samples) < r.MinSamples {
			continue
		}
		if err := m.resolve(r, samples); err != nil {
			log.Printf("[RB] resolve %s: %v", r.Key, err)
		}
	}
}

// #endregion run

// #region resolve

// resolve closes one window: revert on regression beyond tolerance,
// commit otherwise. The config revert happens before the record leaves
// pending, so a crash in between replays the revert instead of losing it.
func (m *Manager) resolve(r Record, samples []telemetry.Sample) error {
	postMean := telemetry.Mean(samples)
	regressed := len(samples) > 0 && r.Baseline != 0 && regression(r, postMean)

	outcome := OutcomeCommitted
	if regressed {
		outcome = OutcomeRolledBack
		if _, err := m.cfg.Set(r.Key, r.PrevValue, "rollback"); err != nil {
			return fmt.Errorf("revert %s: %w", r.Key, err)
		}
		log.Printf("[RB] regression on %s: post=%.3f baseline=%.3f, reverted %s to %v",
			r.Signal, postMean, r.Baseline, r.Key, r.PrevValue)
	} else {
		log.Printf("[RB] committed %s: post=%.3f baseline=%.3f", r.Key, postMean, r.Baseline)
	}

	transitioned, err := resolveRecord(m.db, r.ID, outcome, postMean)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.pending, r.Key)
	m.mu.Unlock()

	if transitioned {
		if m.narr != nil {
			summary := fmt.Sprintf("%s %s: post=%.3f baseline=%.3f", r.Key, outcome, postMean, r.Baseline)
			if err := m.narr.Append(narrative.KindActionResolved, r.ID, summary, r); err != nil {
				log.Printf("[RB] narrative append: %v", err)
			}
		}
		if m.onResolve != nil {
			m.onResolve(r.Key)
		}
	}
	return nil
}

// regression reports whether the post-action mean is worse than the
// baseline beyond tolerance, in the signal's bad direction.
func regression(r Record, postMean float64) bool {
	switch r.Direction {
	case "below":
		return postMean < r.Baseline*(1-r.Tolerance)
	default:
		return postMean > r.Baseline*(1+r.Tolerance)
	}
}

// #endregion resolve
