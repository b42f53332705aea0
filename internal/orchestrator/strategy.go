package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tidwall/gjson"

	"github.com/hlcs-dev/supervisor/internal/gateway"
)

// #endregion

// #region step-config

// StepConfig bounds per-step retries for transient gateway failures.
type StepConfig struct {
	Retries     int           // attempts beyond the first
	BackoffBase time.Duration // doubled after each failure
}

// DefaultStepConfig returns the built-in retry policy.
func DefaultStepConfig() StepConfig {
	return StepConfig{Retries: 2, BackoffBase: 500 * time.Millisecond}
}

// #endregion step-config

// #region step

// Step is one named stage of a composite pipeline. DependsOn may only
// reference steps declared earlier in the list, which keeps the dependency
// graph acyclic by construction. Precondition is an expression over the
// execution context; empty means the step always runs. Args builds the
// capability arguments; nil sends the raw task payload.
type Step struct {
	Name         string
	Capability   string
	DependsOn    []string
	Precondition string
	Args         func(task Task, ec ExecContext) map[string]any
}

// #endregion step

// #region strategy-interface

// Strategy executes a task against the gateway and returns the answer
// candidate text.
type Strategy interface {
	ID() StrategyID
	Execute(ctx context.Context, task Task, ec ExecContext) (string, error)
}

// #endregion strategy-interface

// #region simple-strategy

// SimpleStrategy answers with a single "generate" call.
type SimpleStrategy struct {
	gw  SkillCaller
	cfg StepConfig
}

// NewSimple creates the single-call strategy.
func NewSimple(gw SkillCaller, cfg StepConfig) *SimpleStrategy {
	return &SimpleStrategy{gw: gw, cfg: cfg}
}

func (s *SimpleStrategy) ID() StrategyID { return StrategySimple }

func (s *SimpleStrategy) Execute(ctx context.Context, task Task, ec ExecContext) (string, error) {
	res, err := callWithRetry(ctx, s.gw, "generate", map[string]any{"payload": task.Payload}, s.cfg)
	if err != nil {
		return "", fmt.Errorf("simple generate: %w", err)
	}
	return payloadText(res.Payload), nil
}

// #endregion simple-strategy

// #region composite-strategy

// CompositeStrategy runs an ordered multi-step pipeline with inter-step
// data dependencies. Step outputs land in the execution context under the
// step's name; the final answer is the output of the last executed step.
type CompositeStrategy struct {
	gw       SkillCaller
	steps    []Step
	cfg      StepConfig
	programs map[string]*vm.Program
}

// NewComposite validates the pipeline and precompiles preconditions.
// A step referencing an undeclared or later step is rejected here rather
// than failing mid-execution.
func NewComposite(gw SkillCaller, steps []Step, cfg StepConfig) (*CompositeStrategy, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("composite: empty pipeline")
	}
	declared := make(map[string]bool, len(steps))
	programs := make(map[string]*vm.Program)
	for _, st := range steps {
		if st.Name == "" {
			return nil, fmt.Errorf("composite: step with empty name")
		}
		if declared[st.Name] {
			return nil, fmt.Errorf("composite: duplicate step %q", st.Name)
		}
		for _, dep := range st.DependsOn {
			if !declared[dep] {
				return nil, fmt.Errorf("composite: step %q depends on undeclared step %q", st.Name, dep)
			}
		}
		if st.Precondition != "" {
			prog, err := expr.Compile(st.Precondition,
				expr.Env(map[string]any{}),
				expr.AllowUndefinedVariables(),
				expr.AsBool(),
			)
			if err != nil {
				return nil, fmt.Errorf("composite: step %q precondition: %w", st.Name, err)
			}
			programs[st.Precondition] = prog
		}
		declared[st.Name] = true
	}
	return &CompositeStrategy{gw: gw, steps: steps, cfg: cfg, programs: programs}, nil
}

func (c *CompositeStrategy) ID() StrategyID { return StrategyComposite }

func (c *CompositeStrategy) Execute(ctx context.Context, task Task, ec ExecContext) (string, error) {
	ec["payload"] = task.Payload

	executed := make(map[string]bool, len(c.steps))
	var finalText string
	produced := false

	for _, st := range c.steps {
		// A step whose dependency was skipped is skipped too.
		depsMet := true
		for _, dep := range st.DependsOn {
			if !executed[dep] {
				depsMet = false
				break
			}
		}
		if !depsMet {
			log.Printf("[ORCH] step %s skipped: dependency not executed", st.Name)
			continue
		}

		if st.Precondition != "" {
			ok, err := c.evalPrecondition(st, ec)
			if err != nil {
				return "", fmt.Errorf("step %q precondition: %w", st.Name, err)
			}
			if !ok {
				log.Printf("[ORCH] step %s skipped: precondition false", st.Name)
				continue
			}
		}

		args := map[string]any{"payload": task.Payload}
		if st.Args != nil {
			args = st.Args(task, ec)
		}
		res, err := callWithRetry(ctx, c.gw, st.Capability, args, c.cfg)
		if err != nil {
			return "", &StepExhaustedError{Step: st.Name, Attempts: c.cfg.Retries + 1, Err: err}
		}

		ec[st.Name] = decodePayload(res.Payload)
		executed[st.Name] = true
		finalText = payloadText(res.Payload)
		produced = true
	}

	if !produced {
		return "", fmt.Errorf("composite: all steps skipped, no answer produced")
	}
	return finalText, nil
}

func (c *CompositeStrategy) evalPrecondition(st Step, ec ExecContext) (bool, error) {
	prog := c.programs[st.Precondition]
	out, err := expr.Run(prog, map[string]any(ec))
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("did not yield a boolean")
	}
	return ok, nil
}

// #endregion composite-strategy

// #region default-pipeline

// DefaultPipeline is the built-in composite flow: optional image analysis,
// evidence search, then generation over whatever the earlier steps produced.
func DefaultPipeline() []Step {
	return []Step{
		{
			Name:         "analyze",
			Capability:   "analyze",
			Precondition: `payload contains "image"`,
		},
		{
			Name:       "search",
			Capability: "search",
		},
		{
			Name:       "generate",
			Capability: "generate",
			DependsOn:  []string{"search"},
			Args: func(task Task, ec ExecContext) map[string]any {
				args := map[string]any{"payload": task.Payload}
				if v, ok := ec["search"]; ok {
					args["evidence"] = v
				}
				if v, ok := ec["analyze"]; ok {
					args["analysis"] = v
				}
				if v, ok := ec["prior_result"]; ok {
					args["prior_result"] = v
				}
				if v, ok := ec["feedback"]; ok {
					args["feedback"] = v
				}
				return args
			},
		},
	}
}

// #endregion default-pipeline

// #region call-with-retry

// callWithRetry invokes a capability with bounded retries and exponential
// backoff. Only transient gateway failures are retried; caller mistakes and
// capability-reported failures surface immediately.
func callWithRetry(ctx context.Context, gw SkillCaller, capability string, args map[string]any, cfg StepConfig) (gateway.Result, error) {
	delay := cfg.BackoffBase
	var lastErr error

	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return gateway.Result{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		res, err := gw.Call(ctx, capability, args)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var ue *gateway.UnavailableError
		if errors.As(err, &ue) && gateway.Retriable(ue.Err) {
			log.Printf("[ORCH] %s attempt %d failed, retrying: %v", capability, attempt+1, err)
			continue
		}
		break
	}
	return gateway.Result{}, lastErr
}

// #endregion call-with-retry

// #region payload-helpers

// payloadText extracts the answer text from a capability payload: a "text"
// field when present, a bare JSON string, else the raw bytes.
func payloadText(payload json.RawMessage) string {
	if text := gjson.GetBytes(payload, "text"); text.Exists() {
		return text.String()
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return string(payload)
}

// decodePayload unmarshals a payload into a generic value for the
// execution context, falling back to the raw string.
func decodePayload(payload json.RawMessage) any {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	return v
}

// #endregion payload-helpers
