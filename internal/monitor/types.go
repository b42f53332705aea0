package monitor

// #region severity

import "time"

// Severity grades how far past its threshold a signal has drifted.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// #endregion severity

// #region event

// AnomalyEvent is one debounced threshold breach. Events are immutable
// once emitted; the autocorrector only reads them.
type AnomalyEvent struct {
	Signal    string
	Observed  float64
	Baseline  float64
	Threshold float64 // relative deviation that was breached
	Severity  Severity
	At        time.Time
}

// #endregion event

// #region signal-config

// Direction names which way a signal gets worse.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// SignalConfig sets baseline, breach, and debounce behavior for one signal.
type SignalConfig struct {
	Name        string
	Window      int     // baseline sample count
	Deviation   float64 // relative breach threshold vs baseline mean
	Consecutive int     // breaches in a row before an event fires
	Direction   string  // DirectionAbove or DirectionBelow
}

// #endregion signal-config
