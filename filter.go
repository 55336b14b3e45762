package stepflow

func MakeFilter(filters ...ExecutionFilter) *executionFilters {
	var ef executionFilters
	for _, f := range filters {
		f(&ef)
	}

	return &ef
}

type executionFilters struct {
	byStatus FilterValue[Status]
	byStep   FilterValue[string]
}

func (e executionFilters) ByStatus() FilterValue[Status] {
	return e.byStatus
}

func (e executionFilters) ByStep() FilterValue[string] {
	return e.byStep
}

// Matches is used by stores that filter in memory.
func (e executionFilters) Matches(ex *Execution) bool {
	if e.byStatus.Enabled && ex.Status != e.byStatus.Value {
		return false
	}

	if e.byStep.Enabled && ex.Step != e.byStep.Value {
		return false
	}

	return true
}

type FilterValue[T any] struct {
	Enabled bool
	Value   T
}

func makeFilterValue[T any](value T) FilterValue[T] {
	return FilterValue[T]{
		Enabled: true,
		Value:   value,
	}
}

type ExecutionFilter func(filters *executionFilters)

func FilterByStatus(s Status) ExecutionFilter {
	return func(filters *executionFilters) {
		filters.byStatus = makeFilterValue(s)
	}
}

func FilterByStep(step string) ExecutionFilter {
	return func(filters *executionFilters) {
		filters.byStep = makeFilterValue(step)
	}
}
