// Package dispatcher drains the queue store. Multiple dispatcher
// instances may run concurrently; the atomic lease claim on each entry
// is the only coordination between them.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/mailer"
	"github.com/peoplehub/hr-notify/internal/ratelimiter"
	"github.com/peoplehub/hr-notify/internal/repository"
	"github.com/peoplehub/hr-notify/internal/resolver"
	"github.com/peoplehub/hr-notify/internal/template"
)

// Outcome is the per-entry result of a ProcessBatch run.
type Outcome struct {
	EntryID string
	Status  domain.Status
	Retried bool
	Err     error
}

// Hooks carries the metric callback functions injected by main.
// Using a struct keeps the dispatcher constructor signature clean.
type Hooks struct {
	OnSent   func(module string, latency time.Duration)
	OnFailed func(module string)
	OnRetry  func(module string)
}

func (h *Hooks) fill() {
	if h.OnSent == nil {
		h.OnSent = func(string, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(string) {}
	}
	if h.OnRetry == nil {
		h.OnRetry = func(string) {}
	}
}

// Dispatcher claims pending entries, renders content, and hands the
// message to the outbound provider, recording every outcome through the
// state machine's guarded transitions.
type Dispatcher struct {
	workerID  string
	repo      repository.QueueRepository
	resolver  *resolver.Resolver
	templates template.Renderer
	mail      mailer.Mailer
	limiter   *ratelimiter.Limiter

	lease       time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration

	logger *zap.Logger
	hooks  Hooks
}

func New(
	workerID string,
	repo repository.QueueRepository,
	res *resolver.Resolver,
	templates template.Renderer,
	mail mailer.Mailer,
	limiter *ratelimiter.Limiter,
	lease, backoffBase, backoffMax time.Duration,
	logger *zap.Logger,
	hooks Hooks,
) *Dispatcher {
	hooks.fill()
	return &Dispatcher{
		workerID:    workerID,
		repo:        repo,
		resolver:    res,
		templates:   templates,
		mail:        mail,
		limiter:     limiter,
		lease:       lease,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
		logger:      logger,
		hooks:       hooks,
	}
}

// ProcessBatch claims up to limit eligible entries and processes each.
// Entries come back ordered by (priority, scheduled_at); an entry whose
// claim another dispatcher won simply does not appear in this batch.
func (d *Dispatcher) ProcessBatch(ctx context.Context, limit int) ([]Outcome, error) {
	claimed, err := d.repo.Claim(ctx, d.workerID, limit, d.lease)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(claimed))
	for _, e := range claimed {
		outcomes = append(outcomes, d.process(ctx, e))
	}
	return outcomes, nil
}

func (d *Dispatcher) process(ctx context.Context, e *domain.QueueEntry) Outcome {
	start := time.Now()
	log := d.logger.With(
		zap.String("entry_id", e.ID),
		zap.String("module", e.Module),
		zap.String("kind", e.Kind),
	)

	to, cc := e.ResolvedTo, e.ResolvedCC
	if len(to) == 0 {
		// Not pre-resolved by the guard; resolve now. Re-resolution is
		// safe because resolution is pure over the persisted inputs.
		resolved, err := d.resolver.Resolve(ctx, e.Module, e.Recipients, e.ResolveCtx)
		if err != nil {
			return d.fail(ctx, e, err, log)
		}
		to, cc = resolved.ToAddresses(), resolved.CCAddresses()
		if err := d.repo.SaveResolved(ctx, e.ID, d.workerID, to, cc); err != nil {
			log.Warn("could not persist resolved recipients", zap.Error(err))
		}
	}

	rendered, err := d.templates.Render(e.Kind, e.Payload)
	if err != nil {
		return d.fail(ctx, e, err, log)
	}

	// Block here until the outbound rate limiter grants a token.
	if err := d.limiter.Wait(ctx); err != nil {
		// ctx cancelled while waiting — dispatcher is shutting down.
		// The lease will expire and another worker picks the entry up.
		return Outcome{EntryID: e.ID, Status: e.Status, Err: err}
	}

	result, err := d.mail.Send(ctx, &mailer.Message{
		To:      to,
		CC:      cc,
		Subject: rendered.Subject,
		Body:    rendered.Body,
	})
	if err != nil {
		// The failed attempt counts against the cap: once retry_count
		// would reach max_retries the entry goes terminal, so an entry
		// with max_retries=N is attempted exactly N times.
		if domain.Retryable(err) && e.RetryCount+1 < e.MaxRetries {
			return d.retry(ctx, e, err, log)
		}
		return d.fail(ctx, e, err, log)
	}

	sentAt := time.Now().UTC()
	if err := d.repo.MarkSent(ctx, e.ID, d.workerID, sentAt); err != nil {
		log.Error("failed to mark as sent", zap.Error(err))
		return Outcome{EntryID: e.ID, Status: e.Status, Err: err}
	}

	d.hooks.OnSent(e.Module, time.Since(start))
	log.Info("email dispatched",
		zap.String("provider_msg_id", result.ProviderID),
		zap.Int("retry_count", e.RetryCount),
		zap.Duration("latency", time.Since(start)),
	)
	return Outcome{EntryID: e.ID, Status: domain.StatusSent}
}

// retry schedules the next attempt with exponential backoff:
//
//	delay = backoffBase * 2^retry_count, capped at backoffMax
func (d *Dispatcher) retry(ctx context.Context, e *domain.QueueEntry, sendErr error, log *zap.Logger) Outcome {
	delay := Backoff(d.backoffBase, d.backoffMax, e.RetryCount)
	next := time.Now().UTC().Add(delay)

	rec := domain.ErrorRecord{
		At:      time.Now().UTC(),
		Attempt: e.RetryCount + 1,
		Class:   domain.Classify(sendErr),
		Message: sendErr.Error(),
	}
	if err := d.repo.ScheduleRetry(ctx, e.ID, d.workerID, e.RetryCount+1, next, rec); err != nil {
		log.Error("failed to schedule retry", zap.Error(err))
		return Outcome{EntryID: e.ID, Status: e.Status, Err: err}
	}

	d.hooks.OnRetry(e.Module)
	log.Warn("send failed; retry scheduled",
		zap.Int("retry_count", e.RetryCount+1),
		zap.Duration("delay", delay),
		zap.Error(sendErr),
	)
	return Outcome{EntryID: e.ID, Status: domain.StatusPending, Retried: true, Err: sendErr}
}

func (d *Dispatcher) fail(ctx context.Context, e *domain.QueueEntry, cause error, log *zap.Logger) Outcome {
	// A retryable failure that exhausts the budget still consumed an
	// attempt; record the increment so retry_count lands on max_retries.
	finalCount := e.RetryCount
	if domain.Retryable(cause) {
		finalCount++
	}

	rec := domain.ErrorRecord{
		At:      time.Now().UTC(),
		Attempt: finalCount,
		Class:   domain.Classify(cause),
		Message: cause.Error(),
	}
	if err := d.repo.MarkFailed(ctx, e.ID, d.workerID, finalCount, rec); err != nil {
		log.Error("failed to mark as failed", zap.Error(err))
		return Outcome{EntryID: e.ID, Status: e.Status, Err: err}
	}

	d.hooks.OnFailed(e.Module)
	log.Error("entry failed terminally",
		zap.String("class", rec.Class),
		zap.Int("retry_count", finalCount),
		zap.Error(cause),
	)
	return Outcome{EntryID: e.ID, Status: domain.StatusFailed, Err: cause}
}

// Backoff computes the retry delay for the given attempt count.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
