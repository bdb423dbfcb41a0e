package repository

import (
	"context"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// InAppRepository persists immediately-visible notifications.
// Writes are single-shot: there is no retry bookkeeping here.
type InAppRepository interface {
	Create(ctx context.Context, n *domain.InAppNotification) error
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, page, limit int) ([]*domain.InAppNotification, int, error)
	MarkRead(ctx context.Context, recipientID, id string) error
}
