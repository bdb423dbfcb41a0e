package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// MockQueueRepository is a hand-written, in-memory implementation of
// QueueRepository used in unit tests. It mirrors the conditional-update
// semantics of the Postgres implementation, including lease fencing,
// so claim races can be exercised without a database.
type MockQueueRepository struct {
	mu      sync.Mutex
	entries map[string]*domain.QueueEntry

	// Optional error overrides — set in tests to simulate failure paths.
	CreateErr  error
	GetByIDErr error
	ClaimErr   error
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{entries: make(map[string]*domain.QueueEntry)}
}

func cloneEntry(e *domain.QueueEntry) *domain.QueueEntry {
	clone := *e
	clone.ErrorHistory = append([]domain.ErrorRecord(nil), e.ErrorHistory...)
	clone.ResolvedTo = append([]string(nil), e.ResolvedTo...)
	clone.ResolvedCC = append([]string(nil), e.ResolvedCC...)
	return &clone
}

func (m *MockQueueRepository) Create(_ context.Context, e *domain.QueueEntry) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.Key() == e.Key() && existing.Status != domain.StatusCancelled {
			return domain.ErrDuplicate
		}
	}
	m.entries[e.ID] = cloneEntry(e)
	return nil
}

func (m *MockQueueRepository) GetByID(_ context.Context, id string) (*domain.QueueEntry, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneEntry(e), nil
}

func (m *MockQueueRepository) GetActiveByKey(_ context.Context, key domain.DedupKey) (*domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Key() == key && e.Status != domain.StatusCancelled {
			return cloneEntry(e), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockQueueRepository) List(_ context.Context, f domain.ListFilter) ([]*domain.QueueEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.QueueEntry
	for _, e := range m.entries {
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		if f.Module != nil && e.Module != *f.Module {
			continue
		}
		if f.Kind != nil && e.Kind != *f.Kind {
			continue
		}
		result = append(result, cloneEntry(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, len(result), nil
}

func (m *MockQueueRepository) Claim(_ context.Context, workerID string, limit int, lease time.Duration) ([]*domain.QueueEntry, error) {
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var eligible []*domain.QueueEntry
	for _, e := range m.entries {
		if e.Status != domain.StatusPending {
			continue
		}
		if e.ScheduledAt.After(now) {
			continue
		}
		if e.ClaimedUntil != nil && e.ClaimedUntil.After(now) {
			continue
		}
		eligible = append(eligible, e)
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority.Rank() != eligible[j].Priority.Rank() {
			return eligible[i].Priority.Rank() < eligible[j].Priority.Rank()
		}
		return eligible[i].ScheduledAt.Before(eligible[j].ScheduledAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	until := now.Add(lease)
	claimed := make([]*domain.QueueEntry, 0, len(eligible))
	for _, e := range eligible {
		worker := workerID
		e.ClaimedBy = &worker
		e.ClaimedUntil = &until
		e.UpdatedAt = now
		claimed = append(claimed, cloneEntry(e))
	}
	return claimed, nil
}

// holdsClaim reports whether the entry is still pending under workerID's lease.
func holdsClaim(e *domain.QueueEntry, workerID string) bool {
	return e.Status == domain.StatusPending && e.ClaimedBy != nil && *e.ClaimedBy == workerID
}

func (m *MockQueueRepository) MarkSent(_ context.Context, id, workerID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !holdsClaim(e, workerID) {
		return domain.ErrClaimLost
	}
	e.Status = domain.StatusSent
	e.SentAt = &sentAt
	e.ClaimedBy = nil
	e.ClaimedUntil = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueRepository) MarkFailed(_ context.Context, id, workerID string, retryCount int, rec domain.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !holdsClaim(e, workerID) {
		return domain.ErrClaimLost
	}
	e.Status = domain.StatusFailed
	e.RetryCount = retryCount
	e.ErrorHistory = append(e.ErrorHistory, rec)
	e.ClaimedBy = nil
	e.ClaimedUntil = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueRepository) ScheduleRetry(_ context.Context, id, workerID string, retryCount int, nextAttempt time.Time, rec domain.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !holdsClaim(e, workerID) {
		return domain.ErrClaimLost
	}
	e.RetryCount = retryCount
	e.ScheduledAt = nextAttempt
	e.ErrorHistory = append(e.ErrorHistory, rec)
	e.ClaimedBy = nil
	e.ClaimedUntil = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueRepository) SaveResolved(_ context.Context, id, workerID string, to, cc []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !holdsClaim(e, workerID) {
		return domain.ErrClaimLost
	}
	e.ResolvedTo = append([]string(nil), to...)
	e.ResolvedCC = append([]string(nil), cc...)
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueRepository) CancelByKey(_ context.Context, module, referenceID, scope string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cancelled := 0
	for _, e := range m.entries {
		if e.Module != module || e.ReferenceID != referenceID || e.Scope != scope {
			continue
		}
		if e.Status != domain.StatusPending {
			continue
		}
		if e.ClaimedUntil != nil && e.ClaimedUntil.After(now) {
			continue
		}
		e.Status = domain.StatusCancelled
		e.UpdatedAt = now
		cancelled++
	}
	return cancelled, nil
}

func (m *MockQueueRepository) Requeue(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Status != domain.StatusFailed {
		return domain.ErrNotRequeueable
	}
	e.Status = domain.StatusPending
	e.RetryCount = 0
	e.ScheduledAt = time.Now().UTC()
	e.ClaimedBy = nil
	e.ClaimedUntil = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueRepository) CountExpiredLeases(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, e := range m.entries {
		if e.Status == domain.StatusPending && e.ClaimedUntil != nil && !e.ClaimedUntil.After(now) {
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) CountByStatus(_ context.Context) (map[domain.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.Status]int)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

var _ QueueRepository = (*MockQueueRepository)(nil)
