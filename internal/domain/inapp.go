package domain

import "time"

// InAppNotification is the immediately-visible notification written at
// event time. It has no retry semantics: a failed write is logged and
// surfaced to the caller, never requeued.
type InAppNotification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Kind        string         `json:"kind"`
	Payload     map[string]any `json:"payload,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   time.Time      `json:"created_at"`
}
