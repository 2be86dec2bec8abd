package agent

// ProcessStatus is the lifecycle state of an agent process.
type ProcessStatus string

const (
	StatusReady     ProcessStatus = "READY"
	StatusRunning   ProcessStatus = "RUNNING"
	StatusWaiting   ProcessStatus = "WAITING"
	StatusPaused    ProcessStatus = "PAUSED"
	StatusStuck     ProcessStatus = "STUCK"
	StatusCompleted ProcessStatus = "COMPLETED"
	StatusFailed    ProcessStatus = "FAILED"
	StatusKilled    ProcessStatus = "KILLED"
)

// Terminal reports whether the status admits no further transitions.
func (s ProcessStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusKilled, StatusStuck:
		return true
	}
	return false
}

// ActionStatusCode is the outcome of one action execution.
type ActionStatusCode string

const (
	ActionCompleted ActionStatusCode = "COMPLETED"
	ActionFailed    ActionStatusCode = "FAILED"
)

// ActionStatus is returned by Action.Execute.
type ActionStatus struct {
	Code ActionStatusCode
	// Message describes a failure, empty on success.
	Message string
}

// Completed is the success status.
func Completed() ActionStatus { return ActionStatus{Code: ActionCompleted} }

// Failed builds a business-failure status with the given message.
func Failed(message string) ActionStatus {
	return ActionStatus{Code: ActionFailed, Message: message}
}
