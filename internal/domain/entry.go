package domain

import "time"

// Priority controls dispatch ordering. Urgent is processed first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Rank maps a priority to a sortable integer; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	default:
		return 3
	}
}

// Status tracks the lifecycle of a queue entry.
// There is no in-between "processing" status: a claimed entry stays
// pending and is fenced by its lease (claimed_by / claimed_until).
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition may occur.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// RecipientSpec is the declarative recipient description attached to an
// event. To and CCStatic carry concrete addresses; ToUserIDs and CCTags
// are resolved against the directory at resolution time.
type RecipientSpec struct {
	To        []string `json:"to,omitempty"`
	ToUserIDs []string `json:"to_user_ids,omitempty"`
	CCStatic  []string `json:"cc_static,omitempty"`
	CCTags    []string `json:"cc_dynamic_tags,omitempty"`
}

// ResolveContext carries the acting user and the record's owning entities.
// It is persisted alongside the spec so a dispatcher can re-resolve on
// retry with the exact same inputs.
type ResolveContext struct {
	ActorID    string `json:"actor_id,omitempty"`
	ActorEmail string `json:"actor_email,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// ErrorRecord is one append-only failure entry on a queue entry.
type ErrorRecord struct {
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt"`
	Class   string    `json:"class"`
	Message string    `json:"message"`
}

// DedupKey identifies one logical notification. At most one non-cancelled
// queue entry exists per key at any time.
type DedupKey struct {
	Module      string
	ReferenceID string
	Kind        string
	Scope       string
}

// QueueEntry is the durable unit of outbound email work.
type QueueEntry struct {
	ID           string          `json:"id"`
	Module       string          `json:"module"`
	ReferenceID  string          `json:"reference_id"`
	Kind         string          `json:"kind"`
	Scope        string          `json:"scope,omitempty"`
	Priority     Priority        `json:"priority"`
	Recipients   RecipientSpec   `json:"recipients"`
	ResolveCtx   ResolveContext  `json:"resolve_ctx"`
	ResolvedTo   []string        `json:"resolved_to,omitempty"`
	ResolvedCC   []string        `json:"resolved_cc,omitempty"`
	Payload      map[string]any  `json:"payload,omitempty"`
	Status       Status          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	ClaimedBy    *string         `json:"claimed_by,omitempty"`
	ClaimedUntil *time.Time      `json:"claimed_until,omitempty"`
	ErrorHistory []ErrorRecord   `json:"error_history,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (e *QueueEntry) Key() DedupKey {
	return DedupKey{Module: e.Module, ReferenceID: e.ReferenceID, Kind: e.Kind, Scope: e.Scope}
}

// Event is one correlated sub-update reported by a business-event producer.
// LastPart is the caller-computed completeness signal: the producer must
// set it inside the same transaction as the final sub-update, so a logical
// operation spanning N rows emits exactly one notification.
type Event struct {
	Module      string         `json:"module"`
	ReferenceID string         `json:"reference_id"`
	Kind        string         `json:"kind"`
	Scope       string         `json:"scope,omitempty"`
	Priority    Priority       `json:"priority"`
	Recipients  RecipientSpec  `json:"recipients"`
	ResolveCtx  ResolveContext `json:"resolve_ctx"`
	Payload     map[string]any `json:"payload,omitempty"`
	LastPart    bool           `json:"is_last_expected_part"`
}

func (ev *Event) Validate() error {
	if ev.Module == "" {
		return ErrInvalidModule
	}
	if ev.ReferenceID == "" {
		return ErrInvalidReference
	}
	if ev.Kind == "" {
		return ErrInvalidKind
	}
	if ev.Priority == "" {
		ev.Priority = PriorityNormal
	}
	if !ev.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if len(ev.Recipients.To) == 0 && len(ev.Recipients.ToUserIDs) == 0 {
		return ErrNoRecipients
	}
	return nil
}

func (ev *Event) Key() DedupKey {
	return DedupKey{Module: ev.Module, ReferenceID: ev.ReferenceID, Kind: ev.Kind, Scope: ev.Scope}
}

// ListFilter holds query parameters for the operator listing surface.
type ListFilter struct {
	Status *Status
	Module *string
	Kind   *string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}
