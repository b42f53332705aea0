package orchestrator

// #region imports
import (
	"context"
	"time"

	"github.com/hlcs-dev/supervisor/internal/gateway"
)

// #endregion

// #region task

// Task is one unit of incoming work. Immutable once created.
type Task struct {
	ID        string
	Payload   string
	ArrivedAt time.Time
}

// #endregion task

// #region strategy-id

// StrategyID identifies an execution strategy.
type StrategyID string

const (
	StrategySimple    StrategyID = "simple"
	StrategyComposite StrategyID = "composite"
)

// #endregion strategy-id

// #region classification

// Classification is the classifier's routing input.
// Fallback marks the conservative default taken when the classify
// capability was unreachable; it always routes composite.
type Classification struct {
	Complexity float32 // in [0,1]
	Fallback   bool
}

// #endregion classification

// #region exec-context

// ExecContext accumulates intermediate step outputs keyed by step name,
// plus the reserved keys "payload", "feedback" and "prior_result". It is
// owned by one task lifecycle and discarded at its end.
type ExecContext map[string]any

// #endregion exec-context

// #region evaluation

// Evaluation scores one produced result.
type Evaluation struct {
	Quality   float32 // in [0,1]
	Rationale string
}

// #endregion evaluation

// #region attempt

// Attempt records one execution's result and its evaluation. The ordered
// attempt list is the per-task audit sequence.
type Attempt struct {
	Iteration int
	Result    string
	Eval      Evaluation
}

// #endregion attempt

// #region outcome

// OutcomeTag distinguishes "good enough" from "gave up".
type OutcomeTag string

const (
	OutcomeAccepted  OutcomeTag = "accepted"
	OutcomeExhausted OutcomeTag = "quality_exhausted"
)

// Outcome is the final product of one task lifecycle.
type Outcome struct {
	TaskID     string
	Strategy   StrategyID
	Complexity float32
	Result     string
	Tag        OutcomeTag
	Iterations int
	Attempts   []Attempt
}

// #endregion outcome

// #region interfaces

// SkillCaller abstracts the skill gateway for testing.
type SkillCaller interface {
	Call(ctx context.Context, capability string, args map[string]any) (gateway.Result, error)
}

// ConfigReader reads live tuning parameters from the shared config store.
type ConfigReader interface {
	GetOr(key string, fallback float64) float64
}

// #endregion interfaces
