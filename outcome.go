package stepflow

type outcomeKind int

const (
	outcomeDone outcomeKind = 0
	outcomeWait outcomeKind = 1
)

// Outcome is the non-error result of a step: either the execution is done or the engine must poll a predicate.
// A step reports the fatal Error outcome by returning a non-nil error instead.
type Outcome struct {
	kind      outcomeKind
	result    any
	directive WaitDirective
}

// Done completes the execution. The result is stored on the execution in its JSON encoding.
func Done(result any) Outcome {
	return Outcome{kind: outcomeDone, result: result}
}

// Wait hands the directive to the engine which schedules the predicate.
func Wait(d WaitDirective) Outcome {
	return Outcome{kind: outcomeWait, directive: d}
}

func (o Outcome) IsWait() bool {
	return o.kind == outcomeWait
}

func (o Outcome) Directive() (WaitDirective, bool) {
	return o.directive, o.kind == outcomeWait
}

func (o Outcome) Result() any {
	return o.result
}
