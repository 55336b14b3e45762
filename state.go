package stepflow

import "github.com/andrewwormald/stepflow/internal/metrics"

// ProcessState is the state of a background process launched by Run.
type ProcessState string

const (
	ProcessStateUnknown  ProcessState = ""
	ProcessStateShutdown ProcessState = "Shutdown"
	ProcessStateRunning  ProcessState = "Running"
	ProcessStateIdle     ProcessState = "Idle"
)

func (w *Workflow) updateState(processName string, s ProcessState) {
	w.internalStateMu.Lock()
	defer w.internalStateMu.Unlock()

	switch s {
	case ProcessStateIdle:
		metrics.ProcessStates.WithLabelValues(w.name, processName).Set(2)
	case ProcessStateRunning:
		metrics.ProcessStates.WithLabelValues(w.name, processName).Set(1)
	case ProcessStateShutdown:
		metrics.ProcessStates.WithLabelValues(w.name, processName).Set(0.0)
	}

	w.internalState[processName] = s
}

func (w *Workflow) States() map[string]ProcessState {
	w.internalStateMu.Lock()
	defer w.internalStateMu.Unlock()

	states := make(map[string]ProcessState)
	for k, v := range w.internalState {
		states[k] = v
	}

	return states
}
