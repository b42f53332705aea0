package autocorrect

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hlcs-dev/supervisor/internal/config"
	"github.com/hlcs-dev/supervisor/internal/monitor"
	"github.com/hlcs-dev/supervisor/internal/narrative"
)

// #endregion

// #region signature

type signature struct {
	Signal   string
	Severity monitor.Severity
}

// #endregion signature

// #region observer

// Observer watches applied actions through their observation window.
// Observe atomically reserves the action's config key and opens the
// window; a key with a pending observation is rejected with
// *ActionConflictError. Abort discards a window whose config write
// never landed.
type Observer interface {
	Observe(act Action, snapshot float64) error
	Abort(actionID string) error
}

// #endregion observer

// #region corrector

// Corrector maps anomaly events to corrective actions through an explicit
// rule table. Unknown signatures produce no action. In suggest mode actions
// are recorded but never applied; in apply mode they are written to the
// config store and handed to the observer.
type Corrector struct {
	mode     Mode
	cfg      *config.Store
	rules    map[signature]config.RuleSpec
	observer Observer
	narr     *narrative.Store

	mu       sync.Mutex
	deferred map[string][]monitor.AnomalyEvent // per-key FIFO of deferred events
}

// New builds a corrector from the configured rule table. observer and narr
// may be nil (suggest-only deployments run without a rollback manager).
func New(mode Mode, cfg *config.Store, rules []config.RuleSpec, observer Observer, narr *narrative.Store) *Corrector {
	table := make(map[signature]config.RuleSpec, len(rules))
	for _, r := range rules {
		table[signature{Signal: r.Signal, Severity: monitor.Severity(r.Severity)}] = r
	}
	return &Corrector{
		mode:     mode,
		cfg:      cfg,
		rules:    table,
		observer: observer,
		narr:     narr,
		deferred: make(map[string][]monitor.AnomalyEvent),
	}
}

// #endregion corrector

// #region run

// Run consumes anomaly events until ctx is cancelled.
func (c *Corrector) Run(ctx context.Context, events <-chan monitor.AnomalyEvent) {
	log.Printf("[CORR] running in %s mode, %d rules", c.mode, len(c.rules))
	for {
		select {
		case <-ctx.Done():
			log.Printf("[CORR] stopped: %v", ctx.Err())
			return
		case ev := <-events:
			if _, err := c.Handle(ev); err != nil {
				log.Printf("[CORR] handle %s/%s: %v", ev.Signal, ev.Severity, err)
			}
		}
	}
}

// #endregion run

// #region handle

// Handle maps one anomaly event to a corrective action, or to nothing when
// no rule matches. A deferred action (key busy) also returns (nil, nil);
// the event is queued and replayed when the key's observation resolves.
func (c *Corrector) Handle(ev monitor.AnomalyEvent) (*Action, error) {
	rule, ok := c.rules[signature{Signal: ev.Signal, Severity: ev.Severity}]
	if !ok {
		log.Printf("[CORR] no rule for %s/%s, no action", ev.Signal, ev.Severity)
		return nil, nil
	}

	cur, err := c.cfg.Get(rule.Key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rule.Key, err)
	}

	act := Action{
		ID:        uuid.NewString(),
		Signal:    ev.Signal,
		Severity:  ev.Severity,
		Baseline:  ev.Baseline,
		Key:       rule.Key,
		From:      cur,
		To:        propose(rule, cur),
		Predicted: rule.Predicted,
		Mode:      c.mode,
		CreatedAt: time.Now().UTC(),
	}
	c.record(narrative.KindActionSuggested, act,
		fmt.Sprintf("%s/%s → %s: %v → %v", ev.Signal, ev.Severity, act.Key, act.From, act.To))

	if c.mode == ModeSuggest {
		log.Printf("[CORR] suggest: %s %v → %v (%s)", act.Key, act.From, act.To, act.Predicted)
		return &act, nil
	}

	if err := c.apply(act); err != nil {
		var conflict *ActionConflictError
		if errors.As(err, &conflict) {
			c.mu.Lock()
			c.deferred[act.Key] = append(c.deferred[act.Key], ev)
			c.mu.Unlock()
			log.Printf("[CORR] deferred: %v (queued for replay)", conflict)
			return nil, nil
		}
		return nil, err
	}
	return &act, nil
}

// apply opens the observation window, then writes the proposed value.
// The observer's reservation is the arbiter for concurrent actions on
// one key, so the config store is never touched for a busy or rejected
// key. A config write failure aborts the freshly opened window.
func (c *Corrector) apply(act Action) error {
	if c.observer != nil {
		if err := c.observer.Observe(act, act.From); err != nil {
			return fmt.Errorf("observe %s: %w", act.Key, err)
		}
	}
	if _, err := c.cfg.Set(act.Key, act.To, "autocorrect"); err != nil {
		if c.observer != nil {
			if aerr := c.observer.Abort(act.ID); aerr != nil {
				log.Printf("[CORR] abort window %s: %v", act.ID, aerr)
			}
		}
		return fmt.Errorf("apply %s: %w", act.Key, err)
	}
	log.Printf("[CORR] applied: %s %v → %v (%s)", act.Key, act.From, act.To, act.Predicted)
	c.record(narrative.KindActionApplied, act,
		fmt.Sprintf("applied %s: %v → %v", act.Key, act.From, act.To))
	return nil
}

// #endregion handle

// #region resolved

// Resolved replays the oldest deferred event for a key once its pending
// observation has finished. Remaining deferred events wait their turn.
func (c *Corrector) Resolved(key string) {
	c.mu.Lock()
	queue := c.deferred[key]
	if len(queue) == 0 {
		c.mu.Unlock()
		return
	}
	head := queue[0]
	if len(queue) == 1 {
		delete(c.deferred, key)
	} else {
		c.deferred[key] = queue[1:]
	}
	c.mu.Unlock()

	log.Printf("[CORR] replaying deferred event for %s (%d still queued)", key, len(queue)-1)
	if _, err := c.Handle(head); err != nil {
		log.Printf("[CORR] deferred replay %s: %v", key, err)
	}
}

// #endregion resolved

// #region helpers

// propose computes the new value from the rule's adjustment.
func propose(rule config.RuleSpec, cur float64) float64 {
	switch rule.Adjust {
	case "scale":
		return cur * rule.Amount
	case "delta":
		return cur + rule.Amount
	default: // "set", enforced by config validation
		return rule.Amount
	}
}

func (c *Corrector) record(kind string, act Action, summary string) {
	if c.narr == nil {
		return
	}
	if err := c.narr.Append(kind, act.ID, summary, act); err != nil {
		log.Printf("[CORR] narrative append: %v", err)
	}
}

// #endregion helpers
