package postgres

import (
	"context"
	"fmt"

	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
	"github.com/skein-run/skein/pkg/domain"
	kerr "github.com/skein-run/skein/pkg/domain/errors/dberrors/postgres"
	kdb "github.com/skein-run/skein/pkg/domain/cluster/db"
)

type pgService struct {
	pool kpool.Pool
}

func New(pool kpool.Pool) kdb.Interface {
	return &pgService{pool: pool}
}

func (s *pgService) Put(ctx context.Context, service domain.Service) error {
	_, err := s.pool.Exec(
		ctx,
		`
		insert into "service" ("run_id", "name", "kind", "status")
		values ($1, $2, $3, $4)
		on conflict ("run_id", "name") do update
			set "kind" = excluded."kind", "status" = excluded."status"
		`,
		service.RunId, service.Name,
		string(service.Kind), service.Status.String(),
	)
	return err
}

func (s *pgService) SetStatus(ctx context.Context, runId string, name string, status domain.ServiceStatus) error {
	tag, err := s.pool.Exec(
		ctx,
		`update "service" set "status" = $3 where "run_id" = $1 and "name" = $2`,
		runId, name, status.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() < 1 {
		return kerr.Missing{
			Table:    "service",
			Identity: fmt.Sprintf("(%s, %s)", runId, name),
		}
	}
	return nil
}
