package store

import (
	"context"
	"time"
)

// CallRecord is a finished call kept in the local history. Room tokens are
// never stored.
type CallRecord struct {
	ID         int64
	Attempt    string // session attempt id, unique per call
	CallID     string
	Role       string
	RemoteName string
	EndReason  string
	Failure    string
	Duration   time.Duration
	StartedAt  time.Time
	EndedAt    time.Time
}

// CallLogStore handles call history persistence.
type CallLogStore interface {
	// SaveCall persists a finished call and sets its ID. Saving the same
	// attempt twice keeps the first record.
	SaveCall(ctx context.Context, rec *CallRecord) error

	// ListCalls returns the newest calls first.
	// If beforeID is provided, returns calls older than that ID.
	ListCalls(ctx context.Context, limit int, beforeID *int64) ([]*CallRecord, error)

	// Close closes the underlying database connection.
	Close() error
}
