// Package guard decides when a business event has completed and exactly
// one notification should be emitted. Producers report every correlated
// sub-update; the guard turns the final one into an in-app notification
// and a queued email, and suppresses everything else.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/inapp"
	"github.com/peoplehub/hr-notify/internal/repository"
	"github.com/peoplehub/hr-notify/internal/resolver"
	"github.com/peoplehub/hr-notify/internal/template"
)

// Result reports what the guard did with a sub-update.
type Result string

const (
	// ResultCreated: the operation completed and one entry was enqueued.
	ResultCreated Result = "created"
	// ResultDuplicate: an active entry for this key already exists.
	// Informational, not an error.
	ResultDuplicate Result = "duplicate_suppressed"
	// ResultIncomplete: more sub-updates are expected; nothing emitted.
	ResultIncomplete Result = "incomplete"
	// ResultFailed: the operation completed but recipient resolution
	// failed terminally; a failed entry was recorded for the operator.
	ResultFailed Result = "resolution_failed"
)

// Guard is invoked synchronously inside the producer's business
// transaction. It must never block longer than the resolver's bounded
// timeout, and its failures must never fail the producer's transaction —
// callers treat a non-nil error as an observability concern.
type Guard struct {
	queue      repository.QueueRepository
	resolver   *resolver.Resolver
	templates  template.Renderer
	inapp      *inapp.Writer
	maxRetries int
	logger     *zap.Logger
}

func New(
	queue repository.QueueRepository,
	res *resolver.Resolver,
	templates template.Renderer,
	writer *inapp.Writer,
	maxRetries int,
	logger *zap.Logger,
) *Guard {
	return &Guard{
		queue:      queue,
		resolver:   res,
		templates:  templates,
		inapp:      writer,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// OnSubUpdate processes one correlated sub-update.
//
// Completeness is decided by the caller, not inferred from row changes:
// ev.LastPart must be computed inside the same transaction as the final
// sub-update (e.g. "evaluated count == total goals"). Five goal
// evaluations therefore produce one kra_evaluated notification, emitted
// on the fifth call only.
//
// Idempotency: the dedup key (module, reference_id, kind, scope) is
// checked before any work, and the queue's unique index closes the
// check-then-insert race between concurrent producers.
func (g *Guard) OnSubUpdate(ctx context.Context, ev domain.Event) (Result, *domain.QueueEntry, error) {
	if err := ev.Validate(); err != nil {
		return "", nil, err
	}

	if existing, err := g.queue.GetActiveByKey(ctx, ev.Key()); err == nil {
		g.logger.Debug("duplicate notification suppressed",
			zap.String("module", ev.Module),
			zap.String("reference_id", ev.ReferenceID),
			zap.String("kind", ev.Kind),
			zap.String("scope", ev.Scope),
		)
		return ResultDuplicate, existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", nil, fmt.Errorf("dedup lookup: %w", err)
	}

	if !ev.LastPart {
		return ResultIncomplete, nil, nil
	}

	resolved, err := g.resolver.Resolve(ctx, ev.Module, ev.Recipients, ev.ResolveCtx)
	if err != nil {
		// Terminal: record a failed entry so the operation stays visible
		// for operator remediation instead of silently vanishing.
		entry := g.buildEntry(ev)
		entry.Status = domain.StatusFailed
		entry.ErrorHistory = []domain.ErrorRecord{{
			At:      time.Now().UTC(),
			Attempt: 0,
			Class:   domain.Classify(err),
			Message: err.Error(),
		}}
		if createErr := g.queue.Create(ctx, entry); createErr != nil && !errors.Is(createErr, domain.ErrDuplicate) {
			g.logger.Error("could not record failed entry", zap.Error(createErr))
		}
		return ResultFailed, entry, err
	}

	entry := g.buildEntry(ev)
	entry.ResolvedTo = resolved.ToAddresses()
	entry.ResolvedCC = resolved.CCAddresses()

	if err := g.queue.Create(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost the race to a concurrent producer; their entry stands
			// and they own the in-app write too.
			existing, getErr := g.queue.GetActiveByKey(ctx, ev.Key())
			if getErr != nil {
				return ResultDuplicate, nil, nil
			}
			return ResultDuplicate, existing, nil
		}
		return "", nil, fmt.Errorf("enqueue: %w", err)
	}

	// The unique index has fenced this producer as the single winner for
	// the key, so the in-app write happens at most once per recipient.
	g.writeInApp(ctx, ev, resolved)

	g.logger.Info("notification enqueued",
		zap.String("id", entry.ID),
		zap.String("module", entry.Module),
		zap.String("kind", entry.Kind),
		zap.Int("recipients", len(entry.ResolvedTo)),
	)
	return ResultCreated, entry, nil
}

// Cancel marks all still-pending entries for the record as cancelled,
// used when the underlying business record is deleted before dispatch.
// Entries mid-flight under a live claim are not touched.
func (g *Guard) Cancel(ctx context.Context, module, referenceID, scope string) (int, error) {
	n, err := g.queue.CancelByKey(ctx, module, referenceID, scope)
	if err != nil {
		return 0, fmt.Errorf("cancel: %w", err)
	}
	if n > 0 {
		g.logger.Info("queue entries cancelled",
			zap.String("module", module),
			zap.String("reference_id", referenceID),
			zap.String("scope", scope),
			zap.Int("count", n),
		)
	}
	return n, nil
}

func (g *Guard) buildEntry(ev domain.Event) *domain.QueueEntry {
	now := time.Now().UTC()
	return &domain.QueueEntry{
		ID:          uuid.New().String(),
		Module:      ev.Module,
		ReferenceID: ev.ReferenceID,
		Kind:        ev.Kind,
		Scope:       ev.Scope,
		Priority:    ev.Priority,
		Recipients:  ev.Recipients,
		ResolveCtx:  ev.ResolveCtx,
		Payload:     ev.Payload,
		Status:      domain.StatusPending,
		MaxRetries:  g.maxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// writeInApp renders the kind's template once and writes one in-app
// notification per primary recipient with a known user ID. Best-effort:
// failures are logged, never propagated, never retried.
func (g *Guard) writeInApp(ctx context.Context, ev domain.Event, resolved *resolver.Resolved) {
	rendered, err := g.templates.Render(ev.Kind, ev.Payload)
	if err != nil {
		g.logger.Warn("in-app render failed; skipping in-app write",
			zap.String("kind", ev.Kind), zap.Error(err))
		return
	}

	for _, u := range resolved.To {
		if u.ID == "" {
			continue // address-only recipient, no in-app identity
		}
		if err := g.inapp.Notify(ctx, u.ID, ev.Kind, rendered.Subject, rendered.Body, ev.Payload); err != nil {
			g.logger.Warn("in-app write failed",
				zap.String("recipient_id", u.ID),
				zap.String("kind", ev.Kind),
				zap.Error(err),
			)
		}
	}
}
