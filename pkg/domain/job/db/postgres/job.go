package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	"github.com/skein-run/skein/pkg/domain"
	kerr "github.com/skein-run/skein/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/skein-run/skein/pkg/domain/job/db"
)

type pgJob struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdb.Interface {
	return &pgJob{pool: pool}
}

const jobColumns = `
	"job_id", "run_id", "status", "backend_job_id",
	"name", "image", "command", "logs", "started_at", "finished_at"
`

func (j *pgJob) ByRun(ctx context.Context, runId string) ([]domain.Job, error) {
	return j.find(
		ctx,
		`select `+jobColumns+` from "job" where "run_id" = $1 order by "created_at"`,
		runId,
	)
}

func (j *pgJob) ByRunAndStatus(ctx context.Context, runId string, status domain.JobStatus) ([]domain.Job, error) {
	return j.find(
		ctx,
		`
		select `+jobColumns+` from "job"
		where "run_id" = $1 and "status" = $2
		order by "created_at"
		`,
		runId, string(status),
	)
}

func (j *pgJob) find(ctx context.Context, sql string, args ...interface{}) ([]domain.Job, error) {
	rows, err := j.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		var job domain.Job
		var status string
		if err := rows.Scan(
			&job.Id, &job.RunId, &status, &job.BackendJobId,
			&job.Name, &job.Image, &job.Command, &job.LogText,
			&job.StartedAt, &job.FinishedAt,
		); err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (j *pgJob) GetCache(ctx context.Context, jobId string) (domain.JobCache, error) {
	var cache domain.JobCache
	err := j.pool.QueryRow(
		ctx,
		`
		select "job_id", "parameters_fingerprint", "workspace_fingerprint", "result_path"
		from "job_cache" where "job_id" = $1
		`,
		jobId,
	).Scan(
		&cache.JobId, &cache.ParametersFingerprint,
		&cache.WorkspaceFingerprint, &cache.ResultPath,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobCache{}, kerr.Missing{Table: "job_cache", Identity: jobId}
		}
		return domain.JobCache{}, err
	}
	return cache, nil
}

func (j *pgJob) StoreCache(ctx context.Context, cache domain.JobCache) error {
	tag, err := j.pool.Exec(
		ctx,
		`
		update "job_cache" set
			"parameters_fingerprint" = $2,
			"workspace_fingerprint" = $3,
			"result_path" = $4
		where "job_id" = $1
		`,
		cache.JobId, cache.ParametersFingerprint,
		cache.WorkspaceFingerprint, cache.ResultPath,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() < 1 {
		return kerr.Missing{Table: "job_cache", Identity: cache.JobId}
	}
	return nil
}

func (j *pgJob) PurgeCacheByRun(ctx context.Context, runId string) ([]string, error) {
	rows, err := j.pool.Query(
		ctx,
		`
		delete from "job_cache"
		where "job_id" in (select "job_id" from "job" where "run_id" = $1)
		returning "result_path"
		`,
		runId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		if path != "" {
			paths = append(paths, path)
		}
	}
	return paths, rows.Err()
}
