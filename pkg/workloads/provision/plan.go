// Package provision executes ordered multi-object creation with
// compensating deletes.
//
// Run start, interactive-session start and secondary-cluster start all
// create several cluster objects where a later failure must tear down
// the earlier successes. Plan is that pattern as one reusable value.
package provision

import (
	"context"
	"errors"
	"fmt"
)

// Step is one (create, delete) pair of a Plan.
type Step struct {
	// Name of the object this step provisions, for error messages.
	Name string

	Create func(ctx context.Context) error
	Delete func(ctx context.Context) error
}

// Plan is an ordered list of Steps, executed front to back.
type Plan struct {
	steps []Step
}

// Add appends a step. Steps run in the order added; deletes run in
// reverse.
func (p *Plan) Add(step Step) {
	p.steps = append(p.steps, step)
}

// Rollback deletes every object a successful Execute created, in
// reverse creation order. Best-effort: all deletes are attempted and
// failures are joined into one error.
type Rollback func(ctx context.Context) error

// Execute runs each step's Create in order.
//
// When a Create fails, the already-created objects are deleted in
// reverse order and the causing error is returned; delete failures
// are joined onto it. The returned Rollback is nil on failure.
//
// On success the returned Rollback tears the whole plan down, for
// callers whose adopting commit fails after provisioning succeeded.
func (p *Plan) Execute(ctx context.Context) (Rollback, error) {
	done := []Step{}
	for _, step := range p.steps {
		if err := step.Create(ctx); err != nil {
			cause := fmt.Errorf("creating %s: %w", step.Name, err)
			if rerr := deleteAll(ctx, done); rerr != nil {
				return nil, errors.Join(cause, rerr)
			}
			return nil, cause
		}
		done = append(done, step)
	}

	return func(ctx context.Context) error {
		return deleteAll(ctx, done)
	}, nil
}

func deleteAll(ctx context.Context, steps []Step) error {
	errs := []error{}
	for i := len(steps) - 1; 0 <= i; i-- {
		step := steps[i]
		if step.Delete == nil {
			continue
		}
		if err := step.Delete(ctx); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
