package core

// StepStatus represents the execution status of a step or scenario
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Expected element or state did not appear
	StatusErrored                   // Driver or device failure
	StatusSkipped                   // Not executed because an earlier step aborted the scenario
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name so reports stay readable.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// ErrorCategory classifies why a scenario failed
type ErrorCategory int

const (
	ErrCategoryNone           ErrorCategory = iota // No error
	ErrCategoryPrecondition                        // Device could not be put into a known starting screen
	ErrCategoryElementMissing                      // Required element not found within its timeout
	ErrCategoryAssertion                           // Element found but expected state never materialized
	ErrCategoryConnection                          // Device/server connection lost
	ErrCategoryConfig                              // Invalid configuration
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryPrecondition:
		return "precondition"
	case ErrCategoryElementMissing:
		return "element_missing"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category by name.
func (c ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Status maps a failure category onto the step status it produces.
// Connection failures are infrastructure errors, everything else is a test failure.
func (c ErrorCategory) Status() StepStatus {
	switch c {
	case ErrCategoryNone:
		return StatusPassed
	case ErrCategoryConnection, ErrCategoryConfig:
		return StatusErrored
	default:
		return StatusFailed
	}
}
