package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	kerr "github.com/skein-run/skein/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/skein-run/skein/pkg/domain/quota/db"
)

type pgQuota struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdb.Interface {
	return &pgQuota{pool: pool}
}

func (q *pgQuota) Record(ctx context.Context, runId string, delta int64) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(
		ctx,
		`
		update "run" set "disk_usage" = "disk_usage" + $2
		where "run_id" = $1
		returning "owner"
		`,
		runId, delta,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kerr.Missing{Table: "run", Identity: runId}
		}
		return err
	}

	if _, err := tx.Exec(
		ctx,
		`update "user" set "disk_usage" = "disk_usage" + $2 where "user_id" = $1`,
		owner, delta,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (q *pgQuota) Retract(ctx context.Context, runId string) (int64, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// The freed amount is what the ledger recorded, never a fresh
	// disk scan. workspace_removed gates double retraction.
	var owner string
	var freed int64
	var removed bool
	err = tx.QueryRow(
		ctx,
		`
		select "owner", "disk_usage", "workspace_removed"
		from "run" where "run_id" = $1
		for update
		`,
		runId,
	).Scan(&owner, &freed, &removed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, kerr.Missing{Table: "run", Identity: runId}
		}
		return 0, err
	}
	if removed {
		return 0, nil
	}

	if _, err := tx.Exec(
		ctx,
		`
		update "run" set "disk_usage" = 0, "workspace_removed" = true
		where "run_id" = $1
		`,
		runId,
	); err != nil {
		return 0, err
	}

	if freed != 0 {
		if _, err := tx.Exec(
			ctx,
			`update "user" set "disk_usage" = "disk_usage" - $2 where "user_id" = $1`,
			owner, freed,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return freed, nil
}
