package autocorrect

// #region imports
import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hlcs-dev/supervisor/internal/config"
	"github.com/hlcs-dev/supervisor/internal/monitor"
	"github.com/hlcs-dev/supervisor/internal/narrative"
)

// #endregion

// #region helpers

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func tempConfig(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.NewStore(filepath.Join(t.TempDir(), "supervisor.db"))
	if err != nil {
		t.Fatalf("config store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeObserver records observed actions. Keys in busy reject Observe
// with a conflict, mimicking an already-open window; a non-nil err
// fails every Observe outright.
type fakeObserver struct {
	busy     map[string]bool
	err      error
	observed []Action
	snaps    []float64
	aborted  []string
}

func (f *fakeObserver) Observe(act Action, snapshot float64) error {
	if f.err != nil {
		return f.err
	}
	if f.busy[act.Key] {
		return &ActionConflictError{Key: act.Key}
	}
	f.observed = append(f.observed, act)
	f.snaps = append(f.snaps, snapshot)
	return nil
}

func (f *fakeObserver) Abort(actionID string) error {
	f.aborted = append(f.aborted, actionID)
	return nil
}

func latencyRule() config.RuleSpec {
	return config.RuleSpec{
		Signal:    "task_latency_ms",
		Severity:  "warning",
		Key:       "router.complexity_threshold",
		Adjust:    "scale",
		Amount:    1.2,
		Predicted: "fewer composite executions",
	}
}

func latencyEvent() monitor.AnomalyEvent {
	return monitor.AnomalyEvent{
		Signal:   "task_latency_ms",
		Observed: 900,
		Baseline: 500,
		Severity: monitor.SeverityWarning,
		At:       time.Now().UTC(),
	}
}

// #endregion helpers

// #region rule-table

func TestHandleUnknownSignatureNoAction(t *testing.T) {
	cfg := tempConfig(t)
	c := New(ModeApply, cfg, []config.RuleSpec{latencyRule()}, nil, nil)

	tests := []struct {
		name string
		ev   monitor.AnomalyEvent
	}{
		{"unknown-signal", monitor.AnomalyEvent{Signal: "disk_io", Severity: monitor.SeverityWarning}},
		{"unmapped-severity", monitor.AnomalyEvent{Signal: "task_latency_ms", Severity: monitor.SeverityCritical}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := c.Handle(tt.ev)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if act != nil {
				t.Errorf("expected no action for unmapped signature, got %+v", act)
			}
		})
	}
}

// #endregion rule-table

// #region modes

func TestSuggestModeNeverTouchesConfig(t *testing.T) {
	cfg := tempConfig(t)
	if _, err := cfg.Set("router.complexity_threshold", 0.5, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	narr, err := narrative.NewStore(cfg.DB())
	if err != nil {
		t.Fatalf("narrative: %v", err)
	}
	obs := &fakeObserver{busy: map[string]bool{}}
	c := New(ModeSuggest, cfg, []config.RuleSpec{latencyRule()}, obs, narr)

	act, err := c.Handle(latencyEvent())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if act == nil {
		t.Fatal("expected a suggested action")
	}
	if act.From != 0.5 || !near(act.To, 0.6) {
		t.Errorf("action: got %v → %v, want 0.5 → 0.6", act.From, act.To)
	}

	if got := cfg.GetOr("router.complexity_threshold", -1); got != 0.5 {
		t.Errorf("config mutated in suggest mode: %v", got)
	}
	if len(obs.observed) != 0 {
		t.Errorf("observer invoked in suggest mode")
	}

	eps, err := narr.Recent(10)
	if err != nil {
		t.Fatalf("narrative read: %v", err)
	}
	if len(eps) != 1 || eps[0].Kind != narrative.KindActionSuggested {
		t.Errorf("episodes: got %+v, want one action_suggested", eps)
	}
}

func TestApplyModeWritesConfigAndObserves(t *testing.T) {
	cfg := tempConfig(t)
	if _, err := cfg.Set("router.complexity_threshold", 0.5, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	obs := &fakeObserver{busy: map[string]bool{}}
	c := New(ModeApply, cfg, []config.RuleSpec{latencyRule()}, obs, nil)

	act, err := c.Handle(latencyEvent())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if act == nil {
		t.Fatal("expected an applied action")
	}

	if got := cfg.GetOr("router.complexity_threshold", -1); !near(got, 0.6) {
		t.Errorf("config: got %v, want 0.6", got)
	}
	if len(obs.observed) != 1 {
		t.Fatalf("observer calls: got %d, want 1", len(obs.observed))
	}
	if obs.snaps[0] != 0.5 {
		t.Errorf("snapshot: got %v, want pre-action 0.5", obs.snaps[0])
	}
}

func TestObserveFailureLeavesConfigUntouched(t *testing.T) {
	cfg := tempConfig(t)
	if _, err := cfg.Set("router.complexity_threshold", 0.5, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	obs := &fakeObserver{err: errors.New("records table unavailable")}
	c := New(ModeApply, cfg, []config.RuleSpec{latencyRule()}, obs, nil)

	if _, err := c.Handle(latencyEvent()); err == nil {
		t.Fatal("expected an error when the observation window cannot open")
	}

	// the window opens before the write, so a failed Observe must not
	// leave an unwatched config mutation behind
	if got := cfg.GetOr("router.complexity_threshold", -1); got != 0.5 {
		t.Errorf("config mutated without an observation window: %v", got)
	}
	if len(obs.observed) != 0 {
		t.Errorf("observed actions: got %d, want 0", len(obs.observed))
	}
}

// #endregion modes

// #region deferral

func TestBusyKeyDefersThenReplaysInOrder(t *testing.T) {
	cfg := tempConfig(t)
	if _, err := cfg.Set("router.complexity_threshold", 0.5, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rules := []config.RuleSpec{
		latencyRule(),
		{
			Signal: "task_failures", Severity: "warning",
			Key: "router.complexity_threshold", Adjust: "delta", Amount: 0.1,
		},
	}
	obs := &fakeObserver{busy: map[string]bool{"router.complexity_threshold": true}}
	c := New(ModeApply, cfg, rules, obs, nil)

	// both events target the busy key and get queued
	act, err := c.Handle(latencyEvent())
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if act != nil {
		t.Errorf("deferred event returned an action: %+v", act)
	}
	if _, err := c.Handle(monitor.AnomalyEvent{
		Signal: "task_failures", Severity: monitor.SeverityWarning,
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if got := cfg.GetOr("router.complexity_threshold", -1); got != 0.5 {
		t.Errorf("config mutated while key busy: %v", got)
	}

	// first resolve replays the oldest deferred event only
	obs.busy["router.complexity_threshold"] = false
	c.Resolved("router.complexity_threshold")

	if len(obs.observed) != 1 {
		t.Fatalf("observer calls after first resolve: got %d, want 1", len(obs.observed))
	}
	if obs.observed[0].Signal != "task_latency_ms" {
		t.Errorf("replay order: got %s first, want task_latency_ms", obs.observed[0].Signal)
	}
	if got := cfg.GetOr("router.complexity_threshold", -1); !near(got, 0.6) {
		t.Errorf("config after first replay: got %v, want 0.6", got)
	}

	// second resolve drains the remaining event against the new value
	c.Resolved("router.complexity_threshold")
	if len(obs.observed) != 2 {
		t.Fatalf("observer calls after second resolve: got %d, want 2", len(obs.observed))
	}
	if obs.observed[1].Signal != "task_failures" {
		t.Errorf("replay order: got %s second, want task_failures", obs.observed[1].Signal)
	}
	if got := cfg.GetOr("router.complexity_threshold", -1); !near(got, 0.7) {
		t.Errorf("config after second replay: got %v, want 0.7", got)
	}

	// nothing left queued
	c.Resolved("router.complexity_threshold")
	if len(obs.observed) != 2 {
		t.Errorf("resolve with empty queue replayed something")
	}
}

// #endregion deferral

// #region propose

func TestProposeAdjustments(t *testing.T) {
	tests := []struct {
		name   string
		adjust string
		amount float64
		cur    float64
		want   float64
	}{
		{"scale", "scale", 1.5, 0.4, 0.6},
		{"delta", "delta", -0.1, 0.5, 0.4},
		{"set", "set", 0.9, 0.5, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := propose(config.RuleSpec{Adjust: tt.adjust, Amount: tt.amount}, tt.cur)
			if !near(got, tt.want) {
				t.Errorf("propose: got %v, want %v", got, tt.want)
			}
		})
	}
}

// #endregion propose
