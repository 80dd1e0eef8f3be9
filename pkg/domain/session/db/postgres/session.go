package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	"github.com/skein-run/skein/pkg/domain"
	kerr "github.com/skein-run/skein/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/skein-run/skein/pkg/domain/session/db"
)

type pgSession struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdb.Interface {
	return &pgSession{pool: pool}
}

func (s *pgSession) Open(ctx context.Context, session domain.InteractiveSession) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var live int
	if err := tx.QueryRow(
		ctx,
		`
		select count(*) from "session"
		where "run_id" = $1 and "status" != $2
		`,
		session.RunId, domain.ServiceDeleted.String(),
	).Scan(&live); err != nil {
		return err
	}
	if 0 < live {
		return fmt.Errorf(
			"%w: run %s already has a live session", domain.ErrSession, session.RunId,
		)
	}

	if _, err := tx.Exec(
		ctx,
		`
		insert into "session" ("session_id", "run_id", "name", "kind", "path", "status")
		values ($1, $2, $3, $4, $5, $6)
		`,
		session.Id, session.RunId, session.Name,
		session.Kind.String(), session.Path, session.Status.String(),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *pgSession) Live(ctx context.Context, runId string) (domain.InteractiveSession, error) {
	var session domain.InteractiveSession
	var kind, status string
	err := s.pool.QueryRow(
		ctx,
		`
		select "session_id", "name", "kind", "path", "status"
		from "session"
		where "run_id" = $1 and "status" != $2
		`,
		runId, domain.ServiceDeleted.String(),
	).Scan(&session.Id, &session.Name, &kind, &session.Path, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InteractiveSession{}, kerr.Missing{Table: "session", Identity: runId}
		}
		return domain.InteractiveSession{}, err
	}
	session.RunId = runId
	session.Kind = domain.SessionKind(kind)
	serviceStatus, err := domain.AsServiceStatus(status)
	if err != nil {
		return domain.InteractiveSession{}, err
	}
	session.Status = serviceStatus
	return session, nil
}

func (s *pgSession) Close(ctx context.Context, runId string) (domain.InteractiveSession, error) {
	session, err := s.Live(ctx, runId)
	if err != nil {
		return domain.InteractiveSession{}, err
	}

	if _, err := s.pool.Exec(
		ctx,
		`update "session" set "status" = $2 where "session_id" = $1`,
		session.Id, domain.ServiceDeleted.String(),
	); err != nil {
		return domain.InteractiveSession{}, err
	}
	session.Status = domain.ServiceDeleted
	return session, nil
}
