package gateway

// #region imports
import "fmt"

// #endregion

// #region unavailable-error

// UnavailableError reports a transport-level failure reaching a capability.
// Transient: callers may retry under their own bounded policy.
type UnavailableError struct {
	Capability string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("gateway capability %q unavailable: %v", e.Capability, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// #endregion unavailable-error

// #region capability-error

// CapabilityError reports that the skill service answered but flagged the
// call as failed. Kind carries the service's error kind verbatim.
type CapabilityError struct {
	Capability string
	Kind       string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %q failed: %s", e.Capability, e.Kind)
}

// #endregion capability-error
