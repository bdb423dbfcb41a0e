package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peoplehub/hr-notify/internal/domain"
)

type pgInAppRepository struct {
	pool *pgxpool.Pool
}

// NewPgInAppRepository returns an InAppRepository backed by PostgreSQL.
func NewPgInAppRepository(pool *pgxpool.Pool) InAppRepository {
	return &pgInAppRepository{pool: pool}
}

func (r *pgInAppRepository) Create(ctx context.Context, n *domain.InAppNotification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO inapp_notifications
			(id, recipient_id, title, message, kind, payload, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.RecipientID, n.Title, n.Message, n.Kind, payload, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert in-app notification: %w", err)
	}
	return nil
}

func (r *pgInAppRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, page, limit int) ([]*domain.InAppNotification, int, error) {
	where := " WHERE recipient_id = $1"
	if unreadOnly {
		where += " AND is_read = FALSE"
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM inapp_notifications"+where, recipientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count in-app notifications: %w", err)
	}

	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_id, title, message, kind, payload, is_read, created_at
		FROM inapp_notifications`+where+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, recipientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list in-app notifications: %w", err)
	}
	defer rows.Close()

	var result []*domain.InAppNotification
	for rows.Next() {
		n, err := scanInApp(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, n)
	}
	return result, total, rows.Err()
}

func (r *pgInAppRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inapp_notifications
		SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanInApp(row pgx.Row) (*domain.InAppNotification, error) {
	var n domain.InAppNotification
	var payload []byte
	err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Kind, &payload, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &n.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &n, nil
}
