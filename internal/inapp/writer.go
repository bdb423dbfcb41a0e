// Package inapp writes immediately-visible notifications. This path is
// synchronous and independent of the email queue: a failure is logged
// and surfaced to the caller, but never blocks the triggering business
// transaction and is never retried automatically.
package inapp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/repository"
)

type Writer struct {
	repo   repository.InAppRepository
	logger *zap.Logger
}

func NewWriter(repo repository.InAppRepository, logger *zap.Logger) *Writer {
	return &Writer{repo: repo, logger: logger}
}

// Notify writes one notification for the recipient.
func (w *Writer) Notify(ctx context.Context, recipientID, kind, title, message string, payload map[string]any) error {
	n := &domain.InAppNotification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	if err := w.repo.Create(ctx, n); err != nil {
		w.logger.Error("in-app notification write failed",
			zap.String("recipient_id", recipientID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// List returns the recipient's notifications, newest first.
func (w *Writer) List(ctx context.Context, recipientID string, unreadOnly bool, page, limit int) ([]*domain.InAppNotification, int, error) {
	return w.repo.ListByRecipient(ctx, recipientID, unreadOnly, page, limit)
}

// MarkRead flags one notification as read.
func (w *Writer) MarkRead(ctx context.Context, recipientID, id string) error {
	return w.repo.MarkRead(ctx, recipientID, id)
}
