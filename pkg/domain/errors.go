package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict rejects a transition request that is not a legal
	// edge of the run status graph. State is never mutated.
	ErrConflict = errors.New("conflicting run status")

	// ErrRunDeleted rejects operations on a run already deleted.
	// Kept distinct from ErrConflict so callers can answer "gone"
	// instead of "conflict".
	ErrRunDeleted = errors.New("run is deleted")

	// ErrDeletion rejects deleting a run that is still running.
	ErrDeletion = errors.New("run cannot be deleted")

	// ErrMissing means a run, user, secret or cluster object is
	// absent. Nothing was created, so nothing is compensated.
	ErrMissing = errors.New("missing")

	// ErrExternal marks a failed call to the orchestrator or the
	// store. Retryable: any partially-created orchestrator objects
	// have been compensated before this surfaces.
	ErrExternal = errors.New("external call failed, please retry")

	// ErrValidation rejects malformed requests before any side effect.
	ErrValidation = errors.New("invalid request")

	// ErrSession marks interactive-session provisioning failures.
	ErrSession = errors.New("interactive session error")
)

// NewErrConflict builds the rejection for an illegal transition
// request, naming the run and its current state.
func NewErrConflict(runId string, current RunStatus) error {
	return fmt.Errorf("%w: run %s is already %s", ErrConflict, runId, current.HumanState())
}

// NewErrRunDeleted builds the distinct rejection for operations on a
// deleted run.
func NewErrRunDeleted(runId string) error {
	return fmt.Errorf("%w: run %s", ErrRunDeleted, runId)
}

// NewErrDeletion rejects deletion of a run in an undeletable state.
func NewErrDeletion(runId string, current RunStatus) error {
	return fmt.Errorf(
		"%w: run %s is %s; stop it first", ErrDeletion, runId, current,
	)
}

func NewErrMissing(kind string, id string) error {
	return fmt.Errorf("%w: %s %s", ErrMissing, kind, id)
}

// NewErrExternal wraps a failed orchestrator or store call.
func NewErrExternal(cause error) error {
	return fmt.Errorf("%w: %s", ErrExternal, cause)
}
