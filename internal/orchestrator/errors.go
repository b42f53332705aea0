package orchestrator

// #region imports
import "fmt"

// #endregion

// #region invalid-input

// InvalidInputError reports a malformed task. Caller's fault, never retried.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid task: %s", e.Reason)
}

// #endregion invalid-input

// #region step-exhausted

// StepExhaustedError reports that a composite step failed all its retry
// attempts. The whole execution fails; no partial answer is returned.
type StepExhaustedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepExhaustedError) Error() string {
	return fmt.Sprintf("step %q exhausted after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *StepExhaustedError) Unwrap() error { return e.Err }

// #endregion step-exhausted

// #region evaluation-unavailable

// EvaluationUnavailableError reports that no real quality signal could be
// obtained. It is surfaced, never replaced with a substitute score.
type EvaluationUnavailableError struct {
	Reason string
	Err    error
}

func (e *EvaluationUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("evaluation unavailable: %s", e.Reason)
}

func (e *EvaluationUnavailableError) Unwrap() error { return e.Err }

// #endregion evaluation-unavailable
