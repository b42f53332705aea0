package autocorrect

// #region imports
import (
	"fmt"
	"time"

	"github.com/hlcs-dev/supervisor/internal/monitor"
)

// #endregion

// #region mode

// Mode gates whether corrective actions touch live configuration.
type Mode string

const (
	ModeSuggest Mode = "suggest"
	ModeApply   Mode = "apply"
)

// #endregion mode

// #region action

// Action is one proposed or applied configuration mutation.
type Action struct {
	ID        string
	Signal    string
	Severity  monitor.Severity
	Baseline  float64 // metric baseline at anomaly time, the revert comparison point
	Key       string
	From      float64
	To        float64
	Predicted string
	Mode      Mode
	CreatedAt time.Time
}

// #endregion action

// #region errors

// ActionConflictError marks an action deferred because its config key
// already has a pending observation. Internal bookkeeping, never
// surfaced to the event producer.
type ActionConflictError struct {
	Key string
}

func (e *ActionConflictError) Error() string {
	return fmt.Sprintf("config key %q has a pending observation", e.Key)
}

// #endregion errors
