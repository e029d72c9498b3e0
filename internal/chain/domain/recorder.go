package domain

import (
	"context"
	"time"
)

// Recorder writes mirror events to the blockchain gateway. Every call is
// fire-and-forget from the caller's perspective: the returned error exists
// for logging and metrics only and must never fail the local write.
type Recorder interface {
	MarkOverdue(ctx context.Context, ev ContractOverdue) error
	RecordPenalty(ctx context.Context, ev PenaltyRecorded) error
	TerminateContract(ctx context.Context, ev ContractTerminated) error

	// PruneBefore removes outbox rows created before the cutoff. Returns the
	// number of rows removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
