package workflow

import (
	"context"
	"time"
)

// Outcome is the result kind of one workflow step.
type Outcome string

const (
	Success         Outcome = "success"
	FatalFailure    Outcome = "fatal_failure"
	NonFatalFailure Outcome = "non_fatal_failure"
	Skipped         Outcome = "skipped"
)

// StepResult records how a single step ended.
type StepResult struct {
	Step     string
	Outcome  Outcome
	Err      *Error
	Duration time.Duration
}

// Compensation undoes (or consciously declines to undo) a completed step.
type Compensation struct {
	Step   string
	Reason string
	Undo   func(ctx context.Context) error // nil means intentionally left in place
}

// Compensations is a stack of compensations pushed as steps complete.
type Compensations struct {
	stack []Compensation
}

// Push records the compensation of a completed step.
func (c *Compensations) Push(comp Compensation) {
	c.stack = append(c.stack, comp)
}

// Retain records that a completed step is intentionally not undone on failure.
func (c *Compensations) Retain(step, reason string) {
	c.Push(Compensation{Step: step, Reason: reason})
}

// Unwind runs compensations in reverse order and returns the steps it left in place.
// Errors from Undo functions are collected in the returned slice.
func (c *Compensations) Unwind(ctx context.Context) (retained []Compensation, errs []error) {
	for i := len(c.stack) - 1; i >= 0; i-- {
		comp := c.stack[i]
		if comp.Undo == nil {
			retained = append(retained, comp)
			continue
		}
		if err := comp.Undo(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.stack = nil
	return retained, errs
}

// Len returns the number of recorded compensations.
func (c *Compensations) Len() int {
	return len(c.stack)
}
