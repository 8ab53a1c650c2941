package channel

// State represents the validity state of a channel value.
type State string

const (
	// StateValid marks a channel holding a current, non-missing value.
	StateValid State = "valid"
	// StateDisabled marks a channel excluded from dispatch.
	StateDisabled State = "disabled"
	// StateNotAvailable marks a configured channel that has not received a value yet.
	StateNotAvailable State = "not_available"
	// StateUnknownError marks channels of a connector whose hook failed.
	StateUnknownError State = "unknown_error"
	// StateTimeoutError marks channels of a connector that timed out.
	StateTimeoutError State = "timeout_error"
	// StateDisconnecting is the transient marker applied while a connector shuts down.
	StateDisconnecting State = "disconnecting"
	// StateDisconnected marks channels of a disconnected connector.
	StateDisconnected State = "disconnected"
)

// String returns the state name.
func (s State) String() string { return string(s) }
