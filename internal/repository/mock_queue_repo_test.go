package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/peoplehub/hr-notify/internal/domain"
	"github.com/peoplehub/hr-notify/internal/repository"
)

func pendingEntry(module, ref, kind string, p domain.Priority) *domain.QueueEntry {
	now := time.Now().UTC()
	return &domain.QueueEntry{
		ID:          uuid.New().String(),
		Module:      module,
		ReferenceID: ref,
		Kind:        kind,
		Priority:    p,
		Recipients:  domain.RecipientSpec{To: []string{"emp@corp.example"}},
		Status:      domain.StatusPending,
		MaxRetries:  3,
		ScheduledAt: now.Add(-time.Second),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMockQueueRepository_DuplicateKeyRejected(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	ctx := context.Background()

	first := pendingEntry("leave", "leave-1", "leave_approved", domain.PriorityNormal)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := pendingEntry("leave", "leave-1", "leave_approved", domain.PriorityNormal)
	if err := repo.Create(ctx, second); err != domain.ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Cancelling the first entry frees the key for a new one.
	if _, err := repo.CancelByKey(ctx, "leave", "leave-1", ""); err != nil {
		t.Fatal(err)
	}
	third := pendingEntry("leave", "leave-1", "leave_approved", domain.PriorityNormal)
	if err := repo.Create(ctx, third); err != nil {
		t.Fatalf("expected create after cancel to succeed, got %v", err)
	}
}

func TestMockQueueRepository_ClaimOrdering(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	ctx := context.Background()

	low := pendingEntry("leave", "r1", "leave_approved", domain.PriorityLow)
	urgent := pendingEntry("leave", "r2", "leave_approved", domain.PriorityUrgent)
	normal := pendingEntry("leave", "r3", "leave_approved", domain.PriorityNormal)
	for _, e := range []*domain.QueueEntry{low, urgent, normal} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	claimed, err := repo.Claim(ctx, "w1", 2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].ID != urgent.ID {
		t.Fatalf("expected urgent first, got %s", claimed[0].Priority)
	}
	if claimed[1].ID != normal.ID {
		t.Fatalf("expected normal second, got %s", claimed[1].Priority)
	}
}

// A claimed entry must not be claimable by another worker until the lease
// expires; after the terminal status is recorded it is gone for good.
func TestMockQueueRepository_ConcurrentClaimSingleWinner(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	ctx := context.Background()

	e := pendingEntry("leave", "leave-9", "leave_approved", domain.PriorityNormal)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerID := uuid.New().String()
			claimed, err := repo.Claim(ctx, workerID, 10, time.Minute)
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			if len(claimed) == 1 {
				wins <- workerID
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", len(winners))
	}

	if err := repo.MarkSent(ctx, e.ID, winners[0], time.Now().UTC()); err != nil {
		t.Fatalf("winner could not mark sent: %v", err)
	}

	// A sent entry is never claimable again.
	claimed, err := repo.Claim(ctx, "late-worker", 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no claimable entries after sent, got %d", len(claimed))
	}
}

func TestMockQueueRepository_ExpiredLeaseReclaimable(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	ctx := context.Background()

	e := pendingEntry("policy", "pol-1", "policy_assigned", domain.PriorityNormal)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	// First worker claims with an already-expired lease (simulated crash).
	if _, err := repo.Claim(ctx, "crashed", 10, -time.Second); err != nil {
		t.Fatal(err)
	}

	claimed, err := repo.Claim(ctx, "recovering", 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected expired lease to be reclaimable, got %d claims", len(claimed))
	}

	// The crashed worker's late terminal write must be fenced out.
	if err := repo.MarkSent(ctx, e.ID, "crashed", time.Now().UTC()); err != domain.ErrClaimLost {
		t.Fatalf("expected ErrClaimLost for stale worker, got %v", err)
	}
}

func TestMockQueueRepository_Requeue(t *testing.T) {
	repo := repository.NewMockQueueRepository()
	ctx := context.Background()

	e := pendingEntry("asset", "as-1", "asset_assigned", domain.PriorityNormal)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	if err := repo.Requeue(ctx, e.ID); err != domain.ErrNotRequeueable {
		t.Fatalf("expected ErrNotRequeueable for pending entry, got %v", err)
	}

	claimed, _ := repo.Claim(ctx, "w1", 1, time.Minute)
	rec := domain.ErrorRecord{At: time.Now().UTC(), Attempt: 1, Class: domain.ClassTransport, Message: "boom"}
	if err := repo.MarkFailed(ctx, claimed[0].ID, "w1", claimed[0].RetryCount, rec); err != nil {
		t.Fatal(err)
	}

	if err := repo.Requeue(ctx, e.ID); err != nil {
		t.Fatalf("unexpected requeue error: %v", err)
	}
	got, _ := repo.GetByID(ctx, e.ID)
	if got.Status != domain.StatusPending || got.RetryCount != 0 {
		t.Fatalf("expected pending entry with retry_count=0, got %s/%d", got.Status, got.RetryCount)
	}
	if len(got.ErrorHistory) != 1 {
		t.Fatalf("expected error history preserved, got %d records", len(got.ErrorHistory))
	}
}
