package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"log"
)

// #endregion

// #region states

// RefineState names the refinement state machine states:
// Executing → Evaluating → {Accepted | Refining → Executing | Exhausted}.
type RefineState string

const (
	StateExecuting  RefineState = "executing"
	StateEvaluating RefineState = "evaluating"
	StateAccepted   RefineState = "accepted"
	StateRefining   RefineState = "refining"
	StateExhausted  RefineState = "exhausted"
)

// #endregion states

// #region refine-config

// RefineConfig bounds the refinement loop. MaxIterations counts refinement
// re-executions after the initial attempt.
type RefineConfig struct {
	QualityThreshold float32
	MaxIterations    int
}

// DefaultRefineConfig returns the built-in refinement budget.
func DefaultRefineConfig() RefineConfig {
	return RefineConfig{QualityThreshold: 0.7, MaxIterations: 3}
}

// #endregion refine-config

// #region loop

// RefineLoop re-invokes a strategy with evaluator feedback until the
// quality threshold is met or the iteration budget runs out.
type RefineLoop struct {
	evaluator *Evaluator
	cfg       RefineConfig
}

// NewRefineLoop creates a loop with the given evaluator and budget.
func NewRefineLoop(evaluator *Evaluator, cfg RefineConfig) *RefineLoop {
	return &RefineLoop{evaluator: evaluator, cfg: cfg}
}

// Run drives one task through execute/evaluate/refine. Iterations are
// strictly sequential: each refinement payload depends on the previous
// evaluation. Exhaustion returns the best-scoring attempt seen, tagged
// quality_exhausted, so callers can tell "good enough" from "gave up".
func (l *RefineLoop) Run(ctx context.Context, task Task, strat Strategy, ec ExecContext) (Outcome, error) {
	iter := 0
	current := task
	var attempts []Attempt

	for {
		log.Printf("[ORCH] refine: iter=%d → %s (%s)", iter, StateExecuting, strat.ID())
		result, err := strat.Execute(ctx, current, ec)
		if err != nil {
			return Outcome{}, err
		}

		log.Printf("[ORCH] refine: iter=%d → %s", iter, StateEvaluating)
		eval, err := l.evaluator.Evaluate(ctx, result, task)
		if err != nil {
			return Outcome{}, err
		}
		attempts = append(attempts, Attempt{Iteration: iter, Result: result, Eval: eval})

		if eval.Quality >= l.cfg.QualityThreshold {
			log.Printf("[ORCH] refine: iter=%d quality=%.2f → %s", iter, eval.Quality, StateAccepted)
			return Outcome{
				TaskID:     task.ID,
				Result:     result,
				Tag:        OutcomeAccepted,
				Iterations: iter,
				Attempts:   attempts,
			}, nil
		}

		if iter >= l.cfg.MaxIterations {
			best := bestAttempt(attempts)
			log.Printf("[ORCH] refine: iter=%d quality=%.2f → %s (best iter=%d quality=%.2f)",
				iter, eval.Quality, StateExhausted, best.Iteration, best.Eval.Quality)
			return Outcome{
				TaskID:     task.ID,
				Result:     best.Result,
				Tag:        OutcomeExhausted,
				Iterations: iter,
				Attempts:   attempts,
			}, nil
		}

		log.Printf("[ORCH] refine: iter=%d quality=%.2f rationale=%q → %s",
			iter, eval.Quality, eval.Rationale, StateRefining)
		ec["prior_result"] = result
		ec["feedback"] = eval.Rationale
		current = Task{
			ID:        task.ID,
			Payload:   refinementPayload(task, result, eval),
			ArrivedAt: task.ArrivedAt,
		}
		iter++
	}
}

// #endregion loop

// #region helpers

// bestAttempt returns the attempt with the highest recorded quality,
// which is not necessarily the last one.
func bestAttempt(attempts []Attempt) Attempt {
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.Eval.Quality > best.Eval.Quality {
			best = a
		}
	}
	return best
}

// refinementPayload combines the original task, the prior result, and the
// evaluator's rationale into the next execution's payload.
func refinementPayload(task Task, prior string, eval Evaluation) string {
	return fmt.Sprintf(
		"Task: %s\n\nPrevious answer (quality %.2f): %s\n\nReviewer feedback: %s\n\nProduce an improved answer.",
		task.Payload, eval.Quality, prior, eval.Rationale,
	)
}

// #endregion helpers
