package db

import (
	"context"

	"github.com/skein-run/skein/pkg/domain"
)

type Interface interface {
	// ByRun returns the run's child jobs ordered by creation.
	ByRun(ctx context.Context, runId string) ([]domain.Job, error)

	// ByRunAndStatus returns the run's child jobs in the given status.
	ByRunAndStatus(ctx context.Context, runId string, status domain.JobStatus) ([]domain.Job, error)

	// GetCache looks a cache record up by job id. Error wrapping
	// domain.ErrMissing when the job was not cache-eligible.
	GetCache(ctx context.Context, jobId string) (domain.JobCache, error)

	// StoreCache records fingerprints against an existing cache row.
	StoreCache(ctx context.Context, cache domain.JobCache) error

	// PurgeCacheByRun drops every cache row keyed by the run's jobs
	// and returns their result paths so the caller can remove the
	// archived artifact directories.
	PurgeCacheByRun(ctx context.Context, runId string) ([]string, error)
}
