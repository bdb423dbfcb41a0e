package directory

import (
	"context"
	"sync"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// MockDirectory is an in-memory Directory for unit tests.
type MockDirectory struct {
	mu       sync.RWMutex
	users    map[string]User
	managers map[string]string   // employee ID -> manager ID
	roles    map[string][]string // role -> user IDs
	teams    map[string][]string // employee ID -> team member IDs

	// Err, when set, is returned by every lookup.
	Err error
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		users:    make(map[string]User),
		managers: make(map[string]string),
		roles:    make(map[string][]string),
		teams:    make(map[string][]string),
	}
}

func (m *MockDirectory) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockDirectory) SetManager(employeeID, managerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.managers[employeeID] = managerID
}

func (m *MockDirectory) AddRole(role string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[role] = append(m.roles[role], userIDs...)
}

func (m *MockDirectory) SetTeam(employeeID string, memberIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[employeeID] = memberIDs
}

func (m *MockDirectory) UserByID(_ context.Context, id string) (*User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *MockDirectory) ManagerOf(_ context.Context, employeeID string) (*User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	managerID, ok := m.managers[employeeID]
	if !ok {
		return nil, nil
	}
	u, ok := m.users[managerID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MockDirectory) UsersWithRole(_ context.Context, role string) ([]User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []User
	for _, id := range m.roles[role] {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MockDirectory) TeamMembersOf(_ context.Context, employeeID string) ([]User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []User
	for _, id := range m.teams[employeeID] {
		if u, ok := m.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

var _ Directory = (*MockDirectory)(nil)
