package db

import "context"

// Interface is the disk-quota ledger. Bytes are recorded per run and
// aggregated per owner; both move together in one transaction.
type Interface interface {
	// Record adds delta bytes to the run's usage and the owner's
	// aggregate. Negative deltas subtract.
	Record(ctx context.Context, runId string, delta int64) error

	// Retract removes the run's recorded usage (not a live re-scan)
	// from both the run and its owner, and marks the workspace
	// removed, all in one transaction. Returns the freed bytes.
	//
	// Retraction is one-way; a second call frees zero.
	Retract(ctx context.Context, runId string) (int64, error)
}
