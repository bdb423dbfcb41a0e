package dispatcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/directory"
	"github.com/peoplehub/hr-notify/internal/dispatcher"
	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/mailer"
	"github.com/peoplehub/hr-notify/internal/ratelimiter"
	"github.com/peoplehub/hr-notify/internal/repository"
	"github.com/peoplehub/hr-notify/internal/resolver"
	"github.com/peoplehub/hr-notify/internal/template"
)

func newDispatcher(workerID string, repo repository.QueueRepository, mail mailer.Mailer) *dispatcher.Dispatcher {
	dir := directory.NewMockDirectory()
	dir.AddUser(directory.User{ID: "emp-1", Email: "alice@corp.example"})
	res := resolver.New(dir, nil, time.Second, zap.NewNop())

	return dispatcher.New(
		workerID, repo, res, template.Defaults(), mail,
		ratelimiter.New(1000),
		time.Minute,    // lease
		10*time.Millisecond, time.Second, // backoff base/max
		zap.NewNop(),
		dispatcher.Hooks{},
	)
}

func leaveEntry() *domain.QueueEntry {
	now := time.Now().UTC()
	return &domain.QueueEntry{
		ID:          uuid.New().String(),
		Module:      "leave",
		ReferenceID: "leave-" + uuid.New().String()[:8],
		Kind:        "leave_approved",
		Priority:    domain.PriorityNormal,
		Recipients:  domain.RecipientSpec{ToUserIDs: []string{"emp-1"}},
		ResolvedTo:  []string{"alice@corp.example"},
		Payload: map[string]any{
			"employee_name": "Alice",
			"leave_type":    "annual",
			"start_date":    "2026-09-01",
			"end_date":      "2026-09-05",
			"approver_name": "Bob",
		},
		Status:      domain.StatusPending,
		MaxRetries:  3,
		ScheduledAt: now.Add(-time.Second),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func retryableErr(msg string) error {
	return &domain.TransportError{Retryable: true, Err: errors.New(msg)}
}

func TestDispatcher_SendsPendingEntry(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	outcomes, err := d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != domain.StatusSent {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}

	if mail.SentCount() != 1 {
		t.Fatalf("expected 1 send, got %d", mail.SentCount())
	}
	msg := mail.Sent[0]
	if msg.To[0] != "alice@corp.example" {
		t.Fatalf("unexpected recipient: %v", msg.To)
	}
	if msg.Subject != "Leave request approved" {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}

	got, _ := repo.GetByID(ctx, e.ID)
	if got.Status != domain.StatusSent || got.SentAt == nil {
		t.Fatalf("expected sent entry with sent_at, got %+v", got)
	}
}

// Two timeouts then success with max_retries=3: final status sent,
// retry_count=2, two error records.
func TestDispatcher_RetryThenSucceed(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	mail.Errs = []error{retryableErr("timeout 1"), retryableErr("timeout 2")}
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 5 {
			t.Fatal("entry never reached a terminal state")
		}
		outcomes, err := d.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(outcomes) == 0 {
			// Backed off into the near future; the test backoff base is
			// small enough to just wait out.
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if outcomes[0].Status == domain.StatusSent {
			break
		}
	}

	got, _ := repo.GetByID(ctx, e.ID)
	if got.Status != domain.StatusSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if got.RetryCount != 2 {
		t.Fatalf("expected retry_count=2, got %d", got.RetryCount)
	}
	if len(got.ErrorHistory) != 2 {
		t.Fatalf("expected 2 error records, got %d", len(got.ErrorHistory))
	}
}

// With max_retries=3 the entry is attempted exactly 3 times: two
// rescheduled retries, then a terminal failure with retry_count=3.
// The mailer is scripted with exactly 3 errors, so any extra attempt
// would succeed and show up as a sent message.
func TestDispatcher_RetriesExhausted(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	mail.Errs = []error{
		retryableErr("timeout 1"), retryableErr("timeout 2"), retryableErr("timeout 3"),
	}
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	e.MaxRetries = 3
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	for attempt := 0; ; attempt++ {
		if attempt > 8 {
			t.Fatal("entry never reached a terminal state")
		}
		outcomes, err := d.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(outcomes) == 0 {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if outcomes[0].Status == domain.StatusFailed {
			break
		}
	}

	got, _ := repo.GetByID(ctx, e.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.RetryCount != got.MaxRetries {
		t.Fatalf("expected retry_count == max_retries, got %d/%d", got.RetryCount, got.MaxRetries)
	}
	// 2 retry records + 1 terminal record, one per attempt.
	if len(got.ErrorHistory) != 3 {
		t.Fatalf("expected 3 error records, got %d", len(got.ErrorHistory))
	}
	if last := got.ErrorHistory[2]; last.Attempt != 3 {
		t.Fatalf("expected terminal record for attempt 3, got %d", last.Attempt)
	}

	// No further automatic transitions: the failed entry is not claimable.
	outcomes, _ := d.ProcessBatch(ctx, 10)
	if len(outcomes) != 0 {
		t.Fatalf("expected no claimable entries after terminal failure, got %d", len(outcomes))
	}
	if mail.SentCount() != 0 {
		t.Fatalf("expected exactly 3 attempts and no sends, got %d sends", mail.SentCount())
	}
}

func TestDispatcher_TerminalTransportErrorSkipsRetry(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	mail.Errs = []error{&domain.TransportError{Retryable: false, Err: errors.New("invalid address")}}
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	outcomes, err := d.ProcessBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", outcomes[0].Status)
	}

	got, _ := repo.GetByID(ctx, e.ID)
	if got.RetryCount != 0 {
		t.Fatalf("expected no retries for terminal error, got %d", got.RetryCount)
	}
}

func TestDispatcher_RenderErrorIsTerminal(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	d := newDispatcher("w1", repo, mailer.NewMockMailer())
	ctx := context.Background()

	e := leaveEntry()
	e.Kind = "unknown_kind"
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	outcomes, _ := d.ProcessBatch(ctx, 10)
	if outcomes[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", outcomes[0].Status)
	}
	got, _ := repo.GetByID(ctx, e.ID)
	if got.ErrorHistory[0].Class != domain.ClassRender {
		t.Fatalf("expected render class, got %s", got.ErrorHistory[0].Class)
	}
}

// An unresolved entry is resolved at dispatch time; an unresolvable one
// fails terminally with a resolution record.
func TestDispatcher_ResolvesAtDispatchTime(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	e.ResolvedTo = nil
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	outcomes, _ := d.ProcessBatch(ctx, 10)
	if outcomes[0].Status != domain.StatusSent {
		t.Fatalf("expected sent, got %+v", outcomes[0])
	}
	if mail.Sent[0].To[0] != "alice@corp.example" {
		t.Fatalf("unexpected recipient: %v", mail.Sent[0].To)
	}
}

func TestDispatcher_ResolutionErrorIsTerminal(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	d := newDispatcher("w1", repo, mailer.NewMockMailer())
	ctx := context.Background()

	e := leaveEntry()
	e.ResolvedTo = nil
	e.Recipients = domain.RecipientSpec{ToUserIDs: []string{"ghost"}}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	outcomes, _ := d.ProcessBatch(ctx, 10)
	if outcomes[0].Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", outcomes[0].Status)
	}
	got, _ := repo.GetByID(ctx, e.ID)
	if got.ErrorHistory[0].Class != domain.ClassResolution {
		t.Fatalf("expected resolution class, got %s", got.ErrorHistory[0].Class)
	}
}

// Re-running a batch after an entry is sent must not resend it.
func TestDispatcher_RedispatchSafety(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	if _, err := d.ProcessBatch(ctx, 10); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		outcomes, err := d.ProcessBatch(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(outcomes) != 0 {
			t.Fatalf("expected empty batch after sent, got %d", len(outcomes))
		}
	}
	if mail.SentCount() != 1 {
		t.Fatalf("expected exactly 1 send, got %d", mail.SentCount())
	}
}

// A cancelled entry is never claimed or transitioned further.
func TestDispatcher_CancelledEntryNeverDispatched(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	d := newDispatcher("w1", repo, mail)
	ctx := context.Background()

	e := leaveEntry()
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CancelByKey(ctx, e.Module, e.ReferenceID, e.Scope); err != nil {
		t.Fatal(err)
	}

	outcomes, _ := d.ProcessBatch(ctx, 10)
	if len(outcomes) != 0 {
		t.Fatalf("expected cancelled entry to be unclaimable, got %d outcomes", len(outcomes))
	}
	if mail.SentCount() != 0 {
		t.Fatal("cancelled entry must not be sent")
	}
}

// Two dispatchers over the same store: every entry is sent exactly once.
func TestDispatcher_TwoWorkersNoDoubleSend(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	mail := mailer.NewMockMailer()
	d1 := newDispatcher("w1", repo, mail)
	d2 := newDispatcher("w2", repo, mail)
	ctx := context.Background()

	const entries = 20
	for i := 0; i < entries; i++ {
		if err := repo.Create(ctx, leaveEntry()); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan int, 2)
	for _, d := range []*dispatcher.Dispatcher{d1, d2} {
		go func(d *dispatcher.Dispatcher) {
			sent := 0
			for {
				outcomes, err := d.ProcessBatch(ctx, 5)
				if err != nil {
					t.Errorf("batch error: %v", err)
					break
				}
				if len(outcomes) == 0 {
					break
				}
				sent += len(outcomes)
			}
			done <- sent
		}(d)
	}

	total := <-done + <-done
	if total != entries {
		t.Fatalf("expected %d processed entries across workers, got %d", entries, total)
	}
	if mail.SentCount() != entries {
		t.Fatalf("expected %d sends, got %d", entries, mail.SentCount())
	}
}

func TestBackoff(t *testing.T) {
	base, max := 30*time.Second, 30*time.Minute

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{5, 16 * time.Minute},
		{6, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tc := range tests {
		if got := dispatcher.Backoff(base, max, tc.retryCount); got != tc.want {
			t.Fatalf("retryCount=%d: expected %v, got %v", tc.retryCount, tc.want, got)
		}
	}
}
