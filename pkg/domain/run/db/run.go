package db

import (
	"context"

	"github.com/skein-run/skein/pkg/domain"
)

// NewRun is the input of Interface.Create.
type NewRun struct {
	// Run id. Generated when empty.
	Id string

	Owner string
	Name  string

	Spec domain.Specification

	// Git reference the workflow came from. Optional.
	GitRef string

	// Workspace directory, already decided by the caller.
	Workspace string
}

type Interface interface {
	// Create registers a run with status=created, allocating the next
	// run number for (owner, name).
	//
	// Returns the created run, or error. A duplicate run id yields an
	// error wrapping domain.ErrValidation.
	Create(ctx context.Context, run NewRun) (domain.Run, error)

	// Get returns a run with its services, session and shares.
	//
	// Returns error wrapping domain.ErrMissing when no such run.
	Get(ctx context.Context, runId string) (domain.Run, error)

	// Siblings returns every run with the given (owner, name),
	// ordered by run number.
	Siblings(ctx context.Context, owner string, name string) ([]domain.Run, error)

	// List returns runs owned by or shared with the user. Shares past
	// their expiry are not honored.
	List(ctx context.Context, userId string) ([]domain.Run, error)

	// SetStarted persists the adoption of a successful orchestrator
	// submission: status, the merged input parameters and the merged
	// operational options, in one transaction. On restart it also
	// resets progress and clears terminal timestamps.
	SetStarted(ctx context.Context, runId string, status domain.RunStatus, inputParameters map[string]any, operationalOptions map[string]any) error

	// ApplyTransition applies a reported status to a run, atomically
	// with appending log text, merging progress and, when the new
	// status is terminal, stamping the terminal timestamp (exactly
	// once).
	//
	// The legality check runs inside the transaction against the
	// current row. Returns the updated run; or error wrapping
	// domain.ErrConflict when the transition is not legal (the run is
	// already terminal, or the reported status is no legal edge), or
	// domain.ErrMissing when no such run.
	ApplyTransition(ctx context.Context, runId string, next domain.RunStatus, appendLogs string, progress *domain.Progress) (domain.Run, error)

	// MarkDeleted sets status=deleted. Workspace removal is a
	// distinct operation; see quota.Interface.Retract.
	MarkDeleted(ctx context.Context, runId string) error

	// AddShare grants a user access to a run.
	AddShare(ctx context.Context, share domain.Share) error

	// RemoveShare revokes a grant. Error wrapping domain.ErrMissing
	// when no such grant.
	RemoveShare(ctx context.Context, runId string, userId string) error
}
