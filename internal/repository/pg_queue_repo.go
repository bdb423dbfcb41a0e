package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peoplehub/hr-notify/internal/domain"
)

const entryColumns = `
	id, module, reference_id, kind, scope, priority,
	recipients, resolve_ctx, resolved_to, resolved_cc, payload,
	status, retry_count, max_retries, scheduled_at,
	claimed_by, claimed_until, error_history, sent_at,
	created_at, updated_at`

type pgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPgQueueRepository returns a QueueRepository backed by PostgreSQL.
func NewPgQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgQueueRepository{pool: pool}
}

func (r *pgQueueRepository) Create(ctx context.Context, e *domain.QueueEntry) error {
	recipients, err := json.Marshal(e.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	resolveCtx, err := json.Marshal(e.ResolveCtx)
	if err != nil {
		return fmt.Errorf("marshal resolve context: %w", err)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	history, err := json.Marshal(e.ErrorHistory)
	if err != nil {
		return fmt.Errorf("marshal error history: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO queue_entries
			(id, module, reference_id, kind, scope, priority,
			 recipients, resolve_ctx, resolved_to, resolved_cc, payload,
			 status, retry_count, max_retries, scheduled_at,
			 error_history, sent_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.ID, e.Module, e.ReferenceID, e.Kind, e.Scope, e.Priority,
		recipients, resolveCtx, e.ResolvedTo, e.ResolvedCC, payload,
		e.Status, e.RetryCount, e.MaxRetries, e.ScheduledAt,
		history, e.SentAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// The partial unique index closed a check-then-insert race.
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *pgQueueRepository) GetActiveByKey(ctx context.Context, key domain.DedupKey) (*domain.QueueEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE module = $1 AND reference_id = $2 AND kind = $3 AND scope = $4
		  AND status <> 'cancelled'`,
		key.Module, key.ReferenceID, key.Kind, key.Scope)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *pgQueueRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.QueueEntry, int, error) {
	where, args, next := buildListWhere(f)
	offset := (f.Page - 1) * f.Limit

	// Count total matching rows for pagination metadata.
	var total int
	countQuery := "SELECT COUNT(*) FROM queue_entries" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue entries: %w", err)
	}

	// Pagination placeholders continue the builder's numbering.
	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM queue_entries%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, entryColumns, where, next, next+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	return entries, total, err
}

func (r *pgQueueRepository) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]*domain.QueueEntry, error) {
	// FOR UPDATE SKIP LOCKED lets concurrent dispatchers claim disjoint
	// sets without blocking each other; the claimed_until predicate lets
	// entries whose worker crashed become claimable again.
	rows, err := r.pool.Query(ctx, `
		UPDATE queue_entries q
		SET claimed_by = $1,
		    claimed_until = NOW() + $2,
		    updated_at = NOW()
		FROM (
			SELECT id FROM queue_entries
			WHERE status = 'pending'
			  AND scheduled_at <= NOW()
			  AND (claimed_until IS NULL OR claimed_until <= NOW())
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 0
					WHEN 'high'   THEN 1
					WHEN 'normal' THEN 2
					ELSE 3
				END,
				scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		) due
		WHERE q.id = due.id
		RETURNING `+qualify("q", entryColumns),
		workerID, lease, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queue entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *pgQueueRepository) MarkSent(ctx context.Context, id, workerID string, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'sent', sent_at = $1,
		    claimed_by = NULL, claimed_until = NULL,
		    updated_at = NOW()
		WHERE id = $2 AND status = 'pending' AND claimed_by = $3`,
		sentAt, id, workerID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *pgQueueRepository) MarkFailed(ctx context.Context, id, workerID string, retryCount int, rec domain.ErrorRecord) error {
	recJSON, err := json.Marshal([]domain.ErrorRecord{rec})
	if err != nil {
		return fmt.Errorf("marshal error record: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'failed',
		    retry_count = $1,
		    error_history = error_history || $2::jsonb,
		    claimed_by = NULL, claimed_until = NULL,
		    updated_at = NOW()
		WHERE id = $3 AND status = 'pending' AND claimed_by = $4`,
		retryCount, recJSON, id, workerID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *pgQueueRepository) ScheduleRetry(ctx context.Context, id, workerID string, retryCount int, nextAttempt time.Time, rec domain.ErrorRecord) error {
	recJSON, err := json.Marshal([]domain.ErrorRecord{rec})
	if err != nil {
		return fmt.Errorf("marshal error record: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET retry_count = $1,
		    scheduled_at = $2,
		    error_history = error_history || $3::jsonb,
		    claimed_by = NULL, claimed_until = NULL,
		    updated_at = NOW()
		WHERE id = $4 AND status = 'pending' AND claimed_by = $5`,
		retryCount, nextAttempt, recJSON, id, workerID)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *pgQueueRepository) SaveResolved(ctx context.Context, id, workerID string, to, cc []string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET resolved_to = $1, resolved_cc = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'pending' AND claimed_by = $4`,
		to, cc, id, workerID)
	if err != nil {
		return fmt.Errorf("save resolved recipients: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *pgQueueRepository) CancelByKey(ctx context.Context, module, referenceID, scope string) (int, error) {
	// Claimed entries are mid-flight and cannot be cancelled.
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled', updated_at = NOW()
		WHERE module = $1 AND reference_id = $2 AND scope = $3
		  AND status = 'pending'
		  AND (claimed_until IS NULL OR claimed_until <= NOW())`,
		module, referenceID, scope)
	if err != nil {
		return 0, fmt.Errorf("cancel by key: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgQueueRepository) Requeue(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'pending', retry_count = 0, scheduled_at = NOW(),
		    claimed_by = NULL, claimed_until = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`, id)
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrNotRequeueable
	}
	return nil
}

func (r *pgQueueRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM queue_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var s domain.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *pgQueueRepository) CountExpiredLeases(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE status = 'pending'
		  AND claimed_until IS NOT NULL
		  AND claimed_until <= NOW()`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired leases: %w", err)
	}
	return n, nil
}

// ---- helpers ----

// scanEntry reads a single queue entry row from any pgx row type.
func scanEntry(row pgx.Row) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	var recipients, resolveCtx, payload, history []byte

	err := row.Scan(
		&e.ID, &e.Module, &e.ReferenceID, &e.Kind, &e.Scope, &e.Priority,
		&recipients, &resolveCtx, &e.ResolvedTo, &e.ResolvedCC, &payload,
		&e.Status, &e.RetryCount, &e.MaxRetries, &e.ScheduledAt,
		&e.ClaimedBy, &e.ClaimedUntil, &history, &e.SentAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(recipients, &e.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	if err := json.Unmarshal(resolveCtx, &e.ResolveCtx); err != nil {
		return nil, fmt.Errorf("unmarshal resolve context: %w", err)
	}
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal(history, &e.ErrorHistory); err != nil {
		return nil, fmt.Errorf("unmarshal error history: %w", err)
	}
	return &e, nil
}

func scanEntries(rows pgx.Rows) ([]*domain.QueueEntry, error) {
	var result []*domain.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// qualify prefixes every column in a comma-separated list with an alias,
// for RETURNING clauses on aliased updates.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// buildListWhere builds a parameterised WHERE clause from a ListFilter.
// next is the first free placeholder index, so callers appending their
// own args continue the numbering instead of recounting.
func buildListWhere(f domain.ListFilter) (where string, args []any, next int) {
	var conditions []string

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Module != nil {
		add("module = $%d", *f.Module)
	}
	if f.Kind != nil {
		add("kind = $%d", *f.Kind)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}

	next = len(args) + 1
	if len(conditions) == 0 {
		return "", args, next
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, next
}
