// Package run is the run manager: the lifecycle operations the REST
// layer exposes, tying the store, the orchestrator and the workspace
// together.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skein-run/skein/pkg/configs"
	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/cluster"
	jobdb "github.com/skein-run/skein/pkg/domain/job/db"
	quotadb "github.com/skein-run/skein/pkg/domain/quota/db"
	rundb "github.com/skein-run/skein/pkg/domain/run/db"
	runk8s "github.com/skein-run/skein/pkg/domain/run/k8s"
	"github.com/skein-run/skein/pkg/domain/session"
	"github.com/skein-run/skein/pkg/domain/workspace"
	"github.com/skein-run/skein/pkg/utils/slices"
	"github.com/skein-run/skein/pkg/workloads/provision"
	kubeapierr "k8s.io/apimachinery/pkg/api/errors"
)

// ProgressSnapshot is what get-status returns: the run's progress
// counters, optionally with the child jobs behind them.
type ProgressSnapshot struct {
	Status   domain.RunStatus
	Progress domain.Progress

	// Jobs is populated only when the caller asked for job detail.
	Jobs []domain.Job
}

// LogBundle is what get-logs returns: the run-level engine log plus
// per-job log items ordered by creation.
type LogBundle struct {
	WorkflowLogs string
	Jobs         []domain.Job
}

type Interface interface {
	// Create registers a run with status=created and makes its
	// workspace directory. Empty name defaults to "workflow".
	Create(ctx context.Context, owner string, name string, spec domain.Specification, gitRef string) (domain.Run, error)

	// Get returns a run with its services, session and shares.
	Get(ctx context.Context, runId string) (domain.Run, error)

	// List returns runs owned by or shared with the user.
	List(ctx context.Context, userId string) ([]domain.Run, error)

	// Start submits the run's object graph to the orchestrator and,
	// only after the whole submission succeeded, persists the started
	// status with the merged parameters in one transaction.
	//
	// Submission failures compensate whatever was created and return
	// an error wrapping domain.ErrExternal with the store untouched.
	// A store failure after a successful submission tears the
	// submitted objects down again before the error returns.
	Start(ctx context.Context, runId string, opts domain.StartOptions) error

	// Stop requests cooperative termination of a running run: the
	// batch job is deleted (zero grace, background propagation), the
	// run's running child jobs' backend jobs are deleted best-effort,
	// and the run transitions to stopped.
	Stop(ctx context.Context, runId string) error

	// Delete tears a non-running run down: session, workspace plus
	// recorded quota, status, job caches with their archived
	// artifacts. With AllRuns it applies to every non-running sibling
	// sharing (owner, name).
	Delete(ctx context.Context, runId string, opts domain.DeleteOptions) error

	// Progress returns the run's progress counters.
	Progress(ctx context.Context, runId string, includeJobDetail bool) (ProgressSnapshot, error)

	// Logs returns the run's log bundle. steps filters the job items
	// by job name; empty means all.
	Logs(ctx context.Context, runId string, steps []string) (LogBundle, error)

	// Share grants a user read access. Sharing with the owner or with
	// an expiry in the past is rejected.
	Share(ctx context.Context, runId string, userId string, message string, validUntil *time.Time) error

	// Unshare revokes a grant.
	Unshare(ctx context.Context, runId string, userId string) error
}

type impl struct {
	conf       *configs.ClusterConfig
	runs       rundb.Interface
	jobs       jobdb.Interface
	quota      quotadb.Interface
	batch      runk8s.Interface
	clusters   cluster.Interface
	sessions   session.Interface
	workspaces *workspace.Root
}

// New builds the run manager. clusters may be nil when the deployment
// carries no secondary-compute configuration; runs declaring a
// cluster are then rejected at start.
func New(
	conf *configs.ClusterConfig,
	runs rundb.Interface,
	jobs jobdb.Interface,
	quota quotadb.Interface,
	batch runk8s.Interface,
	clusters cluster.Interface,
	sessions session.Interface,
	workspaces *workspace.Root,
) Interface {
	return &impl{
		conf: conf, runs: runs, jobs: jobs, quota: quota,
		batch: batch, clusters: clusters, sessions: sessions, workspaces: workspaces,
	}
}

func (i *impl) Create(ctx context.Context, owner string, name string, spec domain.Specification, gitRef string) (domain.Run, error) {
	if _, err := i.conf.Engines().Image(spec.Engine); err != nil {
		return domain.Run{}, err
	}
	if name == "" {
		name = "workflow"
	}

	runId := uuid.NewString()
	ws, err := i.workspaces.Create(owner, runId)
	if err != nil {
		return domain.Run{}, err
	}

	created, err := i.runs.Create(ctx, rundb.NewRun{
		Id:        runId,
		Owner:     owner,
		Name:      name,
		Spec:      spec,
		GitRef:    gitRef,
		Workspace: ws,
	})
	if err != nil {
		// The row is the adopting side; take the directory back.
		if rerr := i.workspaces.Remove(ws); rerr != nil {
			return domain.Run{}, errors.Join(err, rerr)
		}
		return domain.Run{}, err
	}
	return created, nil
}

func (i *impl) Get(ctx context.Context, runId string) (domain.Run, error) {
	return i.runs.Get(ctx, runId)
}

func (i *impl) List(ctx context.Context, userId string) ([]domain.Run, error) {
	return i.runs.List(ctx, userId)
}

func (i *impl) Start(ctx context.Context, runId string, opts domain.StartOptions) error {
	r, err := i.runs.Get(ctx, runId)
	if err != nil {
		return err
	}
	if err := startLegality(r, opts.Restart); err != nil {
		return err
	}

	ex, err := runk8s.NewExecutable(r, opts, i.conf)
	if err != nil {
		return err
	}

	plan := &provision.Plan{}
	if r.Spec.WantsCluster() {
		if i.clusters == nil {
			return fmt.Errorf(
				"%w: run %s declares a compute cluster but none is configured",
				domain.ErrValidation, r.Id,
			)
		}
		plan.Add(provision.Step{
			Name:   "compute cluster of run " + r.Id,
			Create: func(ctx context.Context) error { return i.clusters.Deploy(ctx, r) },
			Delete: func(ctx context.Context) error { return i.clusters.Teardown(ctx, r.Id) },
		})
	}
	plan.Add(provision.Step{
		Name:   "batch job of run " + r.Id,
		Create: func(ctx context.Context) error { return i.batch.SpawnBatch(ctx, ex) },
		Delete: func(ctx context.Context) error { return i.batch.RemoveBatch(ctx, r.Id) },
	})
	if repos := r.Spec.Resources.CVMFSRepos; 0 < len(repos) {
		plan.Add(provision.Step{
			Name:   "cvmfs claims of run " + r.Id,
			Create: func(ctx context.Context) error { return i.batch.EnsureCVMFS(ctx, repos) },
			// Claims are shared across runs; never compensated.
			Delete: nil,
		})
	}

	rollback, err := plan.Execute(ctx)
	if err != nil {
		return domain.NewErrExternal(err)
	}

	if err := i.runs.SetStarted(ctx, r.Id, domain.Pending, ex.InputParameters, ex.OperationalOptions); err != nil {
		// The commit that would adopt the submitted objects failed;
		// take them down again.
		cause := domain.NewErrExternal(err)
		if rerr := rollback(ctx); rerr != nil {
			return errors.Join(cause, rerr)
		}
		return cause
	}
	return nil
}

// startLegality is the start edge of the status graph. Restart widens
// the legal set to runs that already left created.
func startLegality(r domain.Run, restart bool) error {
	if r.Status == domain.Deleted {
		return domain.NewErrRunDeleted(r.Id)
	}
	if restart {
		switch r.Status {
		case domain.Failed, domain.Finished, domain.Queued, domain.Pending:
			return nil
		}
	} else {
		switch r.Status {
		case domain.Created, domain.Queued:
			return nil
		}
	}
	return domain.NewErrConflict(r.Id, r.Status)
}

func (i *impl) Stop(ctx context.Context, runId string) error {
	r, err := i.runs.Get(ctx, runId)
	if err != nil {
		return err
	}
	if r.Status != domain.Running {
		return domain.NewErrConflict(r.Id, r.Status)
	}

	if err := i.batch.RemoveBatch(ctx, r.Id); err != nil && !kubeapierr.IsNotFound(err) {
		return domain.NewErrExternal(err)
	}

	// Child jobs are the sidecar's; their batch objects survive the
	// main job's deletion. Best effort, keep going on failure.
	running, err := i.jobs.ByRunAndStatus(ctx, r.Id, domain.JobRunning)
	if err != nil {
		return err
	}
	for _, j := range running {
		if j.BackendJobId == "" {
			continue
		}
		if err := i.batch.RemoveJob(ctx, j.BackendJobId); err != nil && !kubeapierr.IsNotFound(err) {
			continue
		}
	}

	_, err = i.runs.ApplyTransition(ctx, r.Id, domain.Stopped, "", nil)
	return err
}

func (i *impl) Delete(ctx context.Context, runId string, opts domain.DeleteOptions) error {
	r, err := i.runs.Get(ctx, runId)
	if err != nil {
		return err
	}
	if r.Status == domain.Running {
		return domain.NewErrDeletion(r.Id, r.Status)
	}

	targets := []domain.Run{r}
	if opts.AllRuns {
		siblings, err := i.runs.Siblings(ctx, r.Owner, r.Name)
		if err != nil {
			return err
		}
		targets = slices.Filter(siblings, func(s domain.Run) bool {
			return s.Status != domain.Running
		})
	}

	for _, t := range targets {
		if err := i.deleteOne(ctx, t, opts); err != nil {
			return err
		}
	}
	return nil
}

func (i *impl) deleteOne(ctx context.Context, r domain.Run, opts domain.DeleteOptions) error {
	if r.Session != nil {
		if err := i.sessions.Close(ctx, r.Id); err != nil && !errors.Is(err, domain.ErrMissing) {
			return err
		}
	}

	if opts.Workspace && !r.WorkspaceRemoved {
		if err := i.workspaces.Remove(r.Workspace); err != nil {
			return err
		}
		// Freed bytes come from the recorded usage, not a re-scan of
		// the already-removed tree.
		if _, err := i.quota.Retract(ctx, r.Id); err != nil {
			return err
		}
	}

	if err := i.runs.MarkDeleted(ctx, r.Id); err != nil {
		return err
	}

	artifacts, err := i.jobs.PurgeCacheByRun(ctx, r.Id)
	if err != nil {
		return err
	}
	removals := []error{}
	for _, dir := range artifacts {
		if err := i.workspaces.Remove(dir); err != nil {
			removals = append(removals, err)
		}
	}
	return errors.Join(removals...)
}

func (i *impl) Progress(ctx context.Context, runId string, includeJobDetail bool) (ProgressSnapshot, error) {
	r, err := i.runs.Get(ctx, runId)
	if err != nil {
		return ProgressSnapshot{}, err
	}

	snapshot := ProgressSnapshot{Status: r.Status, Progress: r.Progress}
	if includeJobDetail {
		jobs, err := i.jobs.ByRun(ctx, r.Id)
		if err != nil {
			return ProgressSnapshot{}, err
		}
		snapshot.Jobs = jobs
	}
	return snapshot, nil
}

func (i *impl) Logs(ctx context.Context, runId string, steps []string) (LogBundle, error) {
	r, err := i.runs.Get(ctx, runId)
	if err != nil {
		return LogBundle{}, err
	}
	jobs, err := i.jobs.ByRun(ctx, r.Id)
	if err != nil {
		return LogBundle{}, err
	}

	if 0 < len(steps) {
		wanted := map[string]bool{}
		for _, s := range steps {
			wanted[s] = true
		}
		jobs = slices.Filter(jobs, func(j domain.Job) bool { return wanted[j.Name] })
	}

	return LogBundle{WorkflowLogs: r.LogText, Jobs: jobs}, nil
}

func (i *impl) Share(ctx context.Context, runId string, userId string, message string, validUntil *time.Time) error {
	r, err := i.runs.Get(ctx, runId)
	if err != nil {
		return err
	}
	if r.Owner == userId {
		return fmt.Errorf(
			"%w: run %s cannot be shared with its owner", domain.ErrValidation, r.Id,
		)
	}
	if validUntil != nil && !validUntil.After(time.Now()) {
		return fmt.Errorf(
			"%w: share expiry %s is not in the future", domain.ErrValidation, validUntil.Format(time.RFC3339),
		)
	}
	return i.runs.AddShare(ctx, domain.Share{
		RunId:      r.Id,
		UserId:     userId,
		Message:    message,
		ValidUntil: validUntil,
	})
}

func (i *impl) Unshare(ctx context.Context, runId string, userId string) error {
	if _, err := i.runs.Get(ctx, runId); err != nil {
		return err
	}
	return i.runs.RemoveShare(ctx, runId, userId)
}
