package orchestrator

// #region imports
import (
	"context"
	"errors"
	"log"

	"github.com/tidwall/gjson"

	"github.com/hlcs-dev/supervisor/internal/gateway"
)

// #endregion

// #region evaluator

// Evaluator delegates quality scoring to the "evaluate" capability.
// It never fabricates a score: when the gateway yields no usable quality
// signal, evaluation fails with EvaluationUnavailableError and the caller
// decides what to do with the unscored result.
type Evaluator struct {
	gw SkillCaller
}

// NewEvaluator creates an evaluator backed by the given gateway.
func NewEvaluator(gw SkillCaller) *Evaluator {
	return &Evaluator{gw: gw}
}

// #endregion evaluator

// #region evaluate

// Evaluate scores result against the original task. One local retry is
// allowed for a transient gateway failure before the error surfaces.
func (e *Evaluator) Evaluate(ctx context.Context, result string, task Task) (Evaluation, error) {
	args := map[string]any{
		"payload": task.Payload,
		"result":  result,
	}

	res, err := e.gw.Call(ctx, "evaluate", args)
	if err != nil {
		var ue *gateway.UnavailableError
		if errors.As(err, &ue) && gateway.Retriable(ue.Err) {
			log.Printf("[ORCH] evaluate transient failure, one retry: %v", err)
			res, err = e.gw.Call(ctx, "evaluate", args)
		}
		if err != nil {
			return Evaluation{}, &EvaluationUnavailableError{Reason: "gateway failure", Err: err}
		}
	}

	score := gjson.GetBytes(res.Payload, "quality")
	if !score.Exists() || score.Type != gjson.Number {
		return Evaluation{}, &EvaluationUnavailableError{Reason: "no numeric quality score in response"}
	}
	if score.Num < 0 || score.Num > 1 {
		return Evaluation{}, &EvaluationUnavailableError{Reason: "quality score out of [0,1]"}
	}

	return Evaluation{
		Quality:   float32(score.Num),
		Rationale: gjson.GetBytes(res.Payload, "rationale").String(),
	}, nil
}

// #endregion evaluate
