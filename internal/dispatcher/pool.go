package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/config"
	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/mailer"
	"github.com/peoplehub/hr-notify/internal/ratelimiter"
	"github.com/peoplehub/hr-notify/internal/repository"
	"github.com/peoplehub/hr-notify/internal/resolver"
	"github.com/peoplehub/hr-notify/internal/template"
)

// Pool runs a set of dispatchers, each polling the queue store on the
// configured interval. Workers share no in-process state: the DB claim
// is the only coordination, so pools in separate processes are safe too.
type Pool struct {
	workers  []*Dispatcher
	repo     repository.QueueRepository
	interval time.Duration
	batch    int
	logger   *zap.Logger

	// onDepth receives the pending-entry count after each poll round.
	onDepth func(pending int)

	wg sync.WaitGroup
}

func NewPool(
	cfg *config.Config,
	repo repository.QueueRepository,
	res *resolver.Resolver,
	templates template.Renderer,
	mail mailer.Mailer,
	limiter *ratelimiter.Limiter,
	logger *zap.Logger,
	hooks Hooks,
	onDepth func(pending int),
) *Pool {
	if onDepth == nil {
		onDepth = func(int) {}
	}

	workers := make([]*Dispatcher, cfg.DispatchWorkers)
	for i := range workers {
		workerID := fmt.Sprintf("dispatcher-%d-%s", i, uuid.New().String()[:8])
		workers[i] = New(
			workerID, repo, res, templates, mail, limiter,
			cfg.ClaimLease, cfg.RetryBase, cfg.RetryMax,
			logger.With(zap.String("worker_id", workerID)),
			hooks,
		)
	}

	return &Pool{
		workers:  workers,
		repo:     repo,
		interval: cfg.DispatchInterval,
		batch:    cfg.DispatchBatch,
		logger:   logger,
		onDepth:  onDepth,
	}
}

// Start launches all workers as goroutines.
// The provided ctx is forwarded to every worker; cancelling it
// triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Dispatcher) {
			defer p.wg.Done()
			p.run(ctx, w)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context so in-flight sends finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, w *Dispatcher) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	w.logger.Info("dispatcher started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			outcomes, err := w.ProcessBatch(ctx, p.batch)
			if err != nil {
				w.logger.Error("batch processing error", zap.Error(err))
				continue
			}
			if len(outcomes) > 0 {
				w.logger.Info("batch processed", zap.Int("count", len(outcomes)))
			}
			p.observeDepth(ctx)
		}
	}
}

func (p *Pool) observeDepth(ctx context.Context) {
	counts, err := p.repo.CountByStatus(ctx)
	if err != nil {
		p.logger.Warn("queue depth query failed", zap.Error(err))
		return
	}
	p.onDepth(counts[domain.StatusPending])

	// Expired leases are reclaimed by the next claim round without any
	// cleanup step; surface them in the logs for crash-recovery visibility.
	if expired, err := p.repo.CountExpiredLeases(ctx); err == nil && expired > 0 {
		p.logger.Warn("entries with expired claim leases awaiting reclaim",
			zap.Int("count", expired))
	}
}
