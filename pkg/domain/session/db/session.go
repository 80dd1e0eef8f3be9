package db

import (
	"context"

	"github.com/skein-run/skein/pkg/domain"
)

type Interface interface {
	// Open persists a session row. One live session per run; an
	// existing live session yields an error wrapping domain.ErrSession.
	Open(ctx context.Context, session domain.InteractiveSession) error

	// Live returns the run's live session, error wrapping
	// domain.ErrMissing when there is none.
	Live(ctx context.Context, runId string) (domain.InteractiveSession, error)

	// Close marks the run's live session deleted and returns it, so
	// the caller can tear its cluster objects down by name.
	Close(ctx context.Context, runId string) (domain.InteractiveSession, error)
}
