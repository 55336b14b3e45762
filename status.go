package stepflow

import "fmt"

// Status is the lifecycle state of an Execution. Only the engine moves an execution between statuses.
type Status int

const (
	StatusUnknown   Status = 0
	StatusRunning   Status = 1
	StatusWaiting   Status = 2
	StatusSucceeded Status = 3
	StatusFailed    Status = 4
	statusSentinel  Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusRunning:
		return "Running"
	case StatusWaiting:
		return "Waiting"
	case StatusSucceeded:
		return "Succeeded"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

func (s Status) Valid() bool {
	return s > StatusUnknown && s < statusSentinel
}

// Finished reports whether the status is terminal. Finished executions are never invoked again.
func (s Status) Finished() bool {
	switch s {
	case StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
