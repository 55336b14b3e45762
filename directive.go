package stepflow

import (
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/robfig/cron/v3"
)

// WaitDirective instructs the engine to invoke Predicate every IntervalSeconds until it returns true, at most
// MaxAttempts times, before moving on to Next. Both names refer to steps registered on the workflow so that the
// directive can be reconstructed from the stored execution alone.
type WaitDirective struct {
	IntervalSeconds int    `json:"interval_seconds"`
	MaxAttempts     int    `json:"max_attempts"`
	Predicate       string `json:"predicate"`
	Next            string `json:"next"`
}

func (d WaitDirective) Interval() time.Duration {
	return time.Duration(d.IntervalSeconds) * time.Second
}

// Validate checks the directive on its own. Name resolution is done by the engine.
func (d WaitDirective) Validate() error {
	meta := j.MKV{
		"interval_seconds": d.IntervalSeconds,
		"max_attempts":     d.MaxAttempts,
		"predicate":        d.Predicate,
		"next":             d.Next,
	}

	if d.IntervalSeconds <= 0 {
		return errors.Wrap(ErrInvalidDirective, "interval must be positive", meta)
	}

	if d.MaxAttempts < 1 {
		return errors.Wrap(ErrInvalidDirective, "max attempts must be at least one", meta)
	}

	if d.Predicate == "" || d.Next == "" {
		return errors.Wrap(ErrInvalidDirective, "predicate and next step are required", meta)
	}

	return nil
}

// nextCheck returns when the predicate is due again.
func (d WaitDirective) nextCheck(now time.Time) time.Time {
	return cron.Every(d.Interval()).Next(now)
}

// WaitState is the engine owned progress of the active directive.
type WaitState struct {
	Directive WaitDirective `json:"directive"`
	Attempts  int           `json:"attempts"`
}

func (ws WaitState) Exhausted() bool {
	return ws.Attempts >= ws.Directive.MaxAttempts
}

// DirectiveBuilder builds a WaitDirective fluently:
//
//	return stepflow.WaitFor(20).MaxAttempts(60).Until("checkStackCompleted").ThenCall("createStorageGateway"), nil
type DirectiveBuilder struct {
	d WaitDirective
}

// WaitFor starts a directive that polls every intervalSeconds. The attempt cap defaults to one.
func WaitFor(intervalSeconds int) *DirectiveBuilder {
	return &DirectiveBuilder{d: WaitDirective{IntervalSeconds: intervalSeconds, MaxAttempts: 1}}
}

func (b *DirectiveBuilder) MaxAttempts(n int) *DirectiveBuilder {
	b.d.MaxAttempts = n
	return b
}

func (b *DirectiveBuilder) Until(predicate string) *DirectiveBuilder {
	b.d.Predicate = predicate
	return b
}

// ThenCall completes the directive and returns it as a step Outcome.
func (b *DirectiveBuilder) ThenCall(next string) Outcome {
	b.d.Next = next
	return Wait(b.d)
}
