package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	"github.com/skein-run/skein/pkg/domain"
	kerr "github.com/skein-run/skein/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/skein-run/skein/pkg/domain/run/db"
)

type pgRun struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdb.Interface {
	return &pgRun{pool: pool}
}

func (r *pgRun) Create(ctx context.Context, run kdb.NewRun) (domain.Run, error) {
	runId := run.Id
	if runId == "" {
		runId = uuid.NewString()
	}

	spec, err := jsonb(run.Spec)
	if err != nil {
		return domain.Run{}, err
	}
	emptyProgress, err := jsonb(domain.Progress{})
	if err != nil {
		return domain.Run{}, err
	}

	// The run number is allocated inside the insert. Two concurrent
	// creates for the same (owner, name) can race to the same number;
	// the unique constraint rejects the loser and we try again.
	for {
		var number int
		var createdAt time.Time
		err := r.pool.QueryRow(
			ctx,
			`
			insert into "run" (
				"run_id", "owner", "name", "number", "status",
				"spec", "git_ref", "input_parameters", "operational_options",
				"progress", "logs", "workspace"
			)
			values (
				$1, $2, $3,
				(
					select coalesce(max("number"), 0) + 1
					from "run" where "owner" = $2 and "name" = $3
				),
				$4, $5, $6, '{}'::jsonb, '{}'::jsonb, $7, '', $8
			)
			returning "number", "created_at"
			`,
			runId, run.Owner, run.Name, domain.Created.String(),
			spec, run.GitRef, emptyProgress, run.Workspace,
		).Scan(&number, &createdAt)

		if err == nil {
			return domain.Run{
				RunBody: domain.RunBody{
					Id:                 runId,
					Owner:              run.Owner,
					Name:               run.Name,
					Number:             number,
					Status:             domain.Created,
					Spec:               run.Spec,
					GitRef:             run.GitRef,
					InputParameters:    map[string]any{},
					OperationalOptions: map[string]any{},
					Workspace:          run.Workspace,
					CreatedAt:          createdAt,
				},
			}, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if pgErr.ConstraintName == "run_pkey" {
				return domain.Run{}, fmt.Errorf(
					"%w: run id %s is taken", domain.ErrValidation, runId,
				)
			}
			continue // lost the run-number race
		}
		return domain.Run{}, err
	}
}

func (r *pgRun) Get(ctx context.Context, runId string) (domain.Run, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Run{}, err
	}
	defer tx.Rollback(ctx)

	run, err := getRun(ctx, tx, runId, false)
	if err != nil {
		return domain.Run{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

const runColumns = `
	"run_id", "owner", "name", "number", "status",
	"spec", "git_ref", "input_parameters", "operational_options", "progress",
	"logs", "workspace", "workspace_removed", "disk_usage",
	"created_at", "started_at", "finished_at", "stopped_at"
`

func scanRun(row interface{ Scan(...interface{}) error }) (domain.Run, error) {
	var (
		run      domain.Run
		status   string
		spec     pgtype.JSONB
		params   pgtype.JSONB
		options  pgtype.JSONB
		progress pgtype.JSONB
	)
	if err := row.Scan(
		&run.Id, &run.Owner, &run.Name, &run.Number, &status,
		&spec, &run.GitRef, &params, &options, &progress,
		&run.LogText, &run.Workspace, &run.WorkspaceRemoved, &run.DiskUsage,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt, &run.StoppedAt,
	); err != nil {
		return domain.Run{}, err
	}

	runStatus, err := domain.AsRunStatus(status)
	if err != nil {
		return domain.Run{}, err
	}
	run.Status = runStatus

	run.InputParameters = map[string]any{}
	run.OperationalOptions = map[string]any{}
	if err := fromJSONB(spec, &run.Spec); err != nil {
		return domain.Run{}, err
	}
	if err := fromJSONB(params, &run.InputParameters); err != nil {
		return domain.Run{}, err
	}
	if err := fromJSONB(options, &run.OperationalOptions); err != nil {
		return domain.Run{}, err
	}
	if err := fromJSONB(progress, &run.Progress); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

// getRun reads one run row with its attachments. forUpdate locks the
// run row for the rest of the transaction.
func getRun(ctx context.Context, tx kpool.Tx, runId string, forUpdate bool) (domain.Run, error) {
	lock := ""
	if forUpdate {
		lock = `for update of "run"`
	}

	run, err := scanRun(tx.QueryRow(
		ctx,
		`select `+runColumns+` from "run" where "run_id" = $1 `+lock,
		runId,
	))
	if err != nil {
		if isNoRows(err) {
			return domain.Run{}, kerr.Missing{Table: "run", Identity: runId}
		}
		return domain.Run{}, err
	}

	if run.Services, err = getServices(ctx, tx, runId); err != nil {
		return domain.Run{}, err
	}
	if run.Session, err = getSession(ctx, tx, runId); err != nil {
		return domain.Run{}, err
	}
	if run.SharedWith, err = getShares(ctx, tx, runId); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func getServices(ctx context.Context, tx kpool.Tx, runId string) ([]domain.Service, error) {
	rows, err := tx.Query(
		ctx,
		`select "name", "kind", "status" from "service" where "run_id" = $1 order by "name"`,
		runId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []domain.Service{}
	for rows.Next() {
		var name, kind, status string
		if err := rows.Scan(&name, &kind, &status); err != nil {
			return nil, err
		}
		serviceStatus, err := domain.AsServiceStatus(status)
		if err != nil {
			return nil, err
		}
		services = append(services, domain.Service{
			Name: name, Kind: domain.ServiceKind(kind),
			Status: serviceStatus, RunId: runId,
		})
	}
	return services, rows.Err()
}

func getSession(ctx context.Context, tx kpool.Tx, runId string) (*domain.InteractiveSession, error) {
	rows, err := tx.Query(
		ctx,
		`
		select "session_id", "name", "kind", "path", "status"
		from "session" where "run_id" = $1 and "status" != $2
		`,
		runId, domain.ServiceDeleted.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var session *domain.InteractiveSession
	for rows.Next() {
		var s domain.InteractiveSession
		var kind, status string
		if err := rows.Scan(&s.Id, &s.Name, &kind, &s.Path, &status); err != nil {
			return nil, err
		}
		s.RunId = runId
		s.Kind = domain.SessionKind(kind)
		serviceStatus, err := domain.AsServiceStatus(status)
		if err != nil {
			return nil, err
		}
		s.Status = serviceStatus
		session = &s
	}
	return session, rows.Err()
}

func getShares(ctx context.Context, tx kpool.Tx, runId string) ([]domain.Share, error) {
	rows, err := tx.Query(
		ctx,
		`select "user_id", "message", "valid_until" from "run_share" where "run_id" = $1`,
		runId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shares := []domain.Share{}
	for rows.Next() {
		share := domain.Share{RunId: runId}
		if err := rows.Scan(&share.UserId, &share.Message, &share.ValidUntil); err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

func (r *pgRun) Siblings(ctx context.Context, owner string, name string) ([]domain.Run, error) {
	return r.findRuns(
		ctx,
		`
		select `+runColumns+` from "run"
		where "owner" = $1 and "name" = $2
		order by "number"
		`,
		owner, name,
	)
}

func (r *pgRun) List(ctx context.Context, userId string) ([]domain.Run, error) {
	return r.findRuns(
		ctx,
		`
		select `+runColumns+` from "run"
		where "owner" = $1
			or "run_id" in (
				select "run_id" from "run_share"
				where "user_id" = $1
					and ("valid_until" is null or now() < "valid_until")
			)
		order by "created_at"
		`,
		userId,
	)
}

func (r *pgRun) findRuns(ctx context.Context, sql string, args ...interface{}) ([]domain.Run, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *pgRun) SetStarted(ctx context.Context, runId string, status domain.RunStatus, inputParameters map[string]any, operationalOptions map[string]any) error {
	params, err := jsonb(inputParameters)
	if err != nil {
		return err
	}
	options, err := jsonb(operationalOptions)
	if err != nil {
		return err
	}
	emptyProgress, err := jsonb(domain.Progress{})
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(
		ctx,
		`
		update "run" set
			"status" = $2,
			"input_parameters" = $3,
			"operational_options" = $4,
			"progress" = case
				when "status" in ($5, $6, $7) then $8::jsonb
				else "progress"
			end,
			"finished_at" = null,
			"stopped_at" = null
		where "run_id" = $1
		`,
		runId, status.String(), params, options,
		domain.Finished.String(), domain.Failed.String(), domain.Stopped.String(), emptyProgress,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() < 1 {
		return kerr.Missing{Table: "run", Identity: runId}
	}
	return nil
}

func (r *pgRun) ApplyTransition(ctx context.Context, runId string, next domain.RunStatus, appendLogs string, progress *domain.Progress) (domain.Run, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Run{}, err
	}
	defer tx.Rollback(ctx)

	run, err := getRun(ctx, tx, runId, true)
	if err != nil {
		return domain.Run{}, err
	}

	if !run.Status.CanTransition(next) {
		return domain.Run{}, domain.NewErrConflict(runId, run.Status)
	}

	run.LogText += appendLogs
	if progress != nil {
		run.Progress = run.Progress.Merge(*progress)
	}
	mergedProgress, err := jsonb(run.Progress)
	if err != nil {
		return domain.Run{}, err
	}

	// Timestamps are written exactly once, at the transition that
	// reaches the status.
	now := time.Now()
	if next == domain.Running && run.StartedAt == nil {
		run.StartedAt = &now
	}
	switch next {
	case domain.Finished, domain.Failed:
		if run.FinishedAt == nil {
			run.FinishedAt = &now
		}
	case domain.Stopped:
		if run.StoppedAt == nil {
			run.StoppedAt = &now
		}
	}
	run.Status = next

	if _, err := tx.Exec(
		ctx,
		`
		update "run" set
			"status" = $2, "logs" = $3, "progress" = $4,
			"started_at" = $5, "finished_at" = $6, "stopped_at" = $7
		where "run_id" = $1
		`,
		runId, run.Status.String(), run.LogText, mergedProgress,
		run.StartedAt, run.FinishedAt, run.StoppedAt,
	); err != nil {
		return domain.Run{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Run{}, err
	}
	return run, nil
}

func (r *pgRun) MarkDeleted(ctx context.Context, runId string) error {
	tag, err := r.pool.Exec(
		ctx,
		`update "run" set "status" = $2 where "run_id" = $1`,
		runId, domain.Deleted.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() < 1 {
		return kerr.Missing{Table: "run", Identity: runId}
	}
	return nil
}

func (r *pgRun) AddShare(ctx context.Context, share domain.Share) error {
	_, err := r.pool.Exec(
		ctx,
		`
		insert into "run_share" ("run_id", "user_id", "message", "valid_until")
		values ($1, $2, $3, $4)
		on conflict ("run_id", "user_id") do update
			set "message" = excluded."message",
				"valid_until" = excluded."valid_until"
		`,
		share.RunId, share.UserId, share.Message, share.ValidUntil,
	)
	return err
}

func (r *pgRun) RemoveShare(ctx context.Context, runId string, userId string) error {
	tag, err := r.pool.Exec(
		ctx,
		`delete from "run_share" where "run_id" = $1 and "user_id" = $2`,
		runId, userId,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() < 1 {
		return kerr.Missing{
			Table:    "run_share",
			Identity: fmt.Sprintf("(%s, %s)", runId, userId),
		}
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
