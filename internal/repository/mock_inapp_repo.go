package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// MockInAppRepository is an in-memory InAppRepository for unit tests.
type MockInAppRepository struct {
	mu            sync.Mutex
	notifications map[string]*domain.InAppNotification

	CreateErr error
}

func NewMockInAppRepository() *MockInAppRepository {
	return &MockInAppRepository{notifications: make(map[string]*domain.InAppNotification)}
}

func (m *MockInAppRepository) Create(_ context.Context, n *domain.InAppNotification) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.notifications[n.ID] = &clone
	return nil
}

func (m *MockInAppRepository) ListByRecipient(_ context.Context, recipientID string, unreadOnly bool, _, _ int) ([]*domain.InAppNotification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.InAppNotification
	for _, n := range m.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		clone := *n
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, len(result), nil
}

func (m *MockInAppRepository) MarkRead(_ context.Context, recipientID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotFound
	}
	n.IsRead = true
	return nil
}

var _ InAppRepository = (*MockInAppRepository)(nil)
