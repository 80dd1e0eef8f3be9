package domain

import (
	"fmt"
	"time"
)

type RunStatus string

const (
	// This Run is registered but not yet submitted to the orchestrator.
	Created RunStatus = "created"

	// This Run's batch job has been submitted and is waiting to be scheduled.
	Pending RunStatus = "pending"

	// This Run is queued by the execution engine.
	Queued RunStatus = "queued"

	// This Run's workflow engine is executing.
	Running RunStatus = "running"

	// This Run has completed successfully.
	Finished RunStatus = "finished"

	// This Run stopped with an error.
	Failed RunStatus = "failed"

	// This Run was stopped on user request.
	Stopped RunStatus = "stopped"

	// This Run was deleted. Administrative status, never reached
	// through the status-event path.
	Deleted RunStatus = "deleted"
)

func (rs RunStatus) String() string {
	return string(rs)
}

func AsRunStatus(status string) (RunStatus, error) {
	switch status {
	case string(Created):
		return Created, nil
	case string(Pending):
		return Pending, nil
	case string(Queued):
		return Queued, nil
	case string(Running):
		return Running, nil
	case string(Finished):
		return Finished, nil
	case string(Failed):
		return Failed, nil
	case string(Stopped):
		return Stopped, nil
	case string(Deleted):
		return Deleted, nil
	default:
		return "", fmt.Errorf("%w: '%s' is not a run status", ErrValidation, status)
	}
}

// AliveStatuses are statuses from which further progress or termination
// events are still expected.
func AliveStatuses() []RunStatus {
	return []RunStatus{Created, Pending, Queued, Running}
}

// TerminalStatuses are the statuses the executing engine can report as
// its final word. Deleted is not among them.
func TerminalStatuses() []RunStatus {
	return []RunStatus{Finished, Failed, Stopped}
}

func (rs RunStatus) Alive() bool {
	switch rs {
	case Created, Pending, Queued, Running:
		return true
	default:
		return false
	}
}

// Terminal means terminal-by-event. Deleted is handled apart.
func (rs RunStatus) Terminal() bool {
	switch rs {
	case Finished, Failed, Stopped:
		return true
	default:
		return false
	}
}

// CanTransition tells whether a status event reporting next may be
// applied to a run currently in rs.
//
// Any alive status accepts any status the engine reports. Terminal
// statuses (and Deleted) are absorbing: once reached, no event moves
// the run again. Late or duplicate terminal events are to be discarded
// by the caller.
func (rs RunStatus) CanTransition(next RunStatus) bool {
	if !rs.Alive() {
		return false
	}
	switch next {
	case Pending, Queued, Running, Finished, Failed, Stopped:
		return true
	default:
		return false
	}
}

// HumanState is how the status reads in conflict messages,
// "run X is already <HumanState>".
func (rs RunStatus) HumanState() string {
	switch rs {
	case Created:
		return "created and not yet started"
	case Stopped:
		return "stopped"
	case Deleted:
		return "deleted"
	default:
		return string(rs)
	}
}

// RunBody is the durable core of a Run as kept in the store.
type RunBody struct {
	// Caller-supplied or generated UUID.
	Id string

	// Owner's user id.
	Owner string

	// Human name. (Owner, Name, Number) is unique.
	Name string

	// Monotonically increasing per (Owner, Name).
	Number int

	Status RunStatus

	// Immutable workflow document, set at creation.
	Spec Specification

	// Git reference the workflow was created from, if any.
	GitRef string

	// Run-scoped input parameter overrides, re-merged at every start.
	InputParameters map[string]any

	// Run-scoped operational option overrides.
	OperationalOptions map[string]any

	Progress Progress

	// Accumulated engine and auxiliary-service log text.
	// Append-only once the run is terminal.
	LogText string

	// Absolute path of the workspace directory.
	Workspace string

	// True once the workspace directory has been removed.
	// Removal is one-way.
	WorkspaceRemoved bool

	// Bytes recorded against this run by the quota ledger.
	DiskUsage int64

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	StoppedAt  *time.Time
}

type Run struct {
	RunBody

	// Auxiliary services attached to this run, if any.
	Services []Service

	// Live interactive session, if any. At most one.
	Session *InteractiveSession

	// Sharing grants.
	SharedWith []Share
}

// Share grants another user read access to a run.
type Share struct {
	RunId      string
	UserId     string
	Message    string
	ValidUntil *time.Time
}

func (s Share) Equal(o Share) bool {
	return s.RunId == o.RunId &&
		s.UserId == o.UserId &&
		s.Message == o.Message &&
		((s.ValidUntil == nil && o.ValidUntil == nil) ||
			(s.ValidUntil != nil && o.ValidUntil != nil && s.ValidUntil.Equal(*o.ValidUntil)))
}

// StartOptions are the caller's knobs for Run Manager start.
type StartOptions struct {
	// Extra input parameters, merged over the run's stored ones.
	InputParameters map[string]any

	// Extra operational options, merged over the spec's defaults.
	OperationalOptions map[string]any

	// Restart a run that already reached failed/finished/queued/pending.
	Restart bool
}

// DeleteOptions are the caller's knobs for Run Manager delete.
type DeleteOptions struct {
	// Apply to every non-running run with the same (owner, name).
	AllRuns bool

	// Remove the workspace directory and retract its quota usage.
	// The REST boundary always sets this; the manager honors false.
	Workspace bool
}

// MergedInputParameters computes the effective input parameters for a
// start, later wins: spec defaults, then stored overrides, then the
// call-time overrides. Recomputed on every start, never cached.
func (rb RunBody) MergedInputParameters(callTime map[string]any) map[string]any {
	merged := map[string]any{}
	for k, v := range rb.Spec.Parameters {
		merged[k] = v
	}
	for k, v := range rb.InputParameters {
		merged[k] = v
	}
	for k, v := range callTime {
		merged[k] = v
	}
	return merged
}

// MergedOperationalOptions computes the effective operational options:
// the specification carries no defaults, so this is stored overridden
// by call-time.
func (rb RunBody) MergedOperationalOptions(callTime map[string]any) map[string]any {
	merged := map[string]any{}
	for k, v := range rb.OperationalOptions {
		merged[k] = v
	}
	for k, v := range callTime {
		merged[k] = v
	}
	return merged
}
