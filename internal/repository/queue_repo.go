package repository

import (
	"context"
	"time"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// QueueRepository defines all persistence operations for queue entries.
// The pgx implementation is in pg_queue_repo.go.
// Tests use a hand-written mock (mock_queue_repo.go).
//
// All mutation goes through guarded conditional updates: MarkSent,
// MarkFailed and ScheduleRetry succeed only while the entry is still
// pending and claimed by the given worker, and return ErrClaimLost
// otherwise. This is the single coordination mechanism between
// concurrent dispatchers.
type QueueRepository interface {
	// Create inserts a new entry. Returns domain.ErrDuplicate if a
	// non-cancelled entry for the same dedup key already exists.
	Create(ctx context.Context, e *domain.QueueEntry) error

	GetByID(ctx context.Context, id string) (*domain.QueueEntry, error)

	// GetActiveByKey returns the non-cancelled entry for the key, or
	// domain.ErrNotFound if none exists.
	GetActiveByKey(ctx context.Context, key domain.DedupKey) (*domain.QueueEntry, error)

	List(ctx context.Context, filter domain.ListFilter) ([]*domain.QueueEntry, int, error)

	// Claim atomically takes a lease on up to limit eligible entries:
	// status=pending, scheduled_at <= now, and no live lease held by
	// another worker. Ordered by (priority, scheduled_at). Expired
	// leases are reclaimable, so crashed workers need no cleanup.
	Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*domain.QueueEntry, error)

	MarkSent(ctx context.Context, id, workerID string, sentAt time.Time) error

	// MarkFailed records the terminal failure. retryCount is the final
	// attempt count (incremented past the entry's current value when the
	// last attempt was itself retryable but exhausted the budget).
	MarkFailed(ctx context.Context, id, workerID string, retryCount int, rec domain.ErrorRecord) error
	ScheduleRetry(ctx context.Context, id, workerID string, retryCount int, nextAttempt time.Time, rec domain.ErrorRecord) error

	// SaveResolved persists the resolved recipient lists on a claimed entry.
	SaveResolved(ctx context.Context, id, workerID string, to, cc []string) error

	// CancelByKey cancels all still-pending, unclaimed entries for the
	// record. Returns the number of entries cancelled.
	CancelByKey(ctx context.Context, module, referenceID, scope string) (int, error)

	// Requeue returns a failed entry to pending for another dispatch
	// round (operator remediation). Error history is preserved.
	Requeue(ctx context.Context, id string) error

	CountByStatus(ctx context.Context) (map[domain.Status]int, error)

	// CountExpiredLeases counts pending entries whose claim lease has
	// lapsed, i.e. work abandoned by a crashed or stalled worker that
	// the next claim round will pick up again.
	CountExpiredLeases(ctx context.Context) (int, error)
}
