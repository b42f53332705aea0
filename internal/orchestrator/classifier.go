package orchestrator

// #region imports
import (
	"context"
	"log"
	"strings"

	"github.com/tidwall/gjson"
)

// #endregion

// #region classifier

// Classifier scores task complexity via the "classify" capability.
type Classifier struct {
	gw SkillCaller
}

// NewClassifier creates a classifier backed by the given gateway.
func NewClassifier(gw SkillCaller) *Classifier {
	return &Classifier{gw: gw}
}

// #endregion classifier

// #region classify

// Classify scores a task. An empty payload is an InvalidInputError. When
// the classify capability is unreachable or returns no usable score, the
// conservative default (complexity 1.0, composite route) is taken instead
// of failing: over-routing to the expensive path beats dropping the task.
func (c *Classifier) Classify(ctx context.Context, task Task) (Classification, error) {
	payload := strings.TrimSpace(task.Payload)
	if payload == "" {
		return Classification{}, &InvalidInputError{Reason: "empty task payload"}
	}

	res, err := c.gw.Call(ctx, "classify", map[string]any{"payload": task.Payload})
	if err != nil {
		log.Printf("[ORCH] classify gateway failed, conservative default: %v", err)
		return Classification{Complexity: 1.0, Fallback: true}, nil
	}

	score := gjson.GetBytes(res.Payload, "complexity")
	if !score.Exists() || score.Type != gjson.Number {
		log.Printf("[ORCH] classify returned no usable score, conservative default")
		return Classification{Complexity: 1.0, Fallback: true}, nil
	}

	complexity := clampScore(float32(score.Num))
	if floor := heuristicFloor(payload); complexity < floor {
		complexity = floor
	}

	return Classification{Complexity: complexity}, nil
}

// #endregion classify

// #region heuristic-floor

// heuristicFloor keeps obviously involved payloads off the simple path
// even when the skill under-scores them.
func heuristicFloor(payload string) float32 {
	wordCount := len(strings.Fields(payload))
	questionMarks := strings.Count(payload, "?")
	if wordCount > 50 || questionMarks >= 3 {
		return 0.5
	}
	return 0
}

// #endregion heuristic-floor

// #region helpers

func clampScore(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
