package mailer

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockMailer records sent messages and can be scripted to fail.
// Errs are consumed one per Send call; once exhausted, sends succeed.
type MockMailer struct {
	mu   sync.Mutex
	Sent []Message
	Errs []error
}

func NewMockMailer() *MockMailer { return &MockMailer{} }

func (m *MockMailer) Send(_ context.Context, msg *Message) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return nil, err
		}
	}

	m.Sent = append(m.Sent, *msg)
	return &Result{ProviderID: uuid.New().String()}, nil
}

// SentCount returns how many messages were accepted.
func (m *MockMailer) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

var _ Mailer = (*MockMailer)(nil)
