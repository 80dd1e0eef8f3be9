package db

import (
	"context"

	"github.com/skein-run/skein/pkg/domain"
)

// Interface keeps the auxiliary service rows attached to runs, like
// the secondary-cluster dashboard endpoint.
type Interface interface {
	// Put upserts a service row.
	Put(ctx context.Context, service domain.Service) error

	// SetStatus flips a service row's status. Error wrapping
	// domain.ErrMissing when no such row.
	SetStatus(ctx context.Context, runId string, name string, status domain.ServiceStatus) error
}
