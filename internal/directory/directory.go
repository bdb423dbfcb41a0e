// Package directory is the client for the external user/role service.
// The resolver is its only consumer: it answers "who is X's manager",
// "who holds role R", and "who is on X's team".
package directory

import "context"

// User is a directory record. ID is the HR system's user identifier;
// Email is the deliverable address.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Directory abstracts the user/role service.
// Mocking this interface in tests gives full control over lookup
// behaviour without making real HTTP calls.
type Directory interface {
	// UserByID returns the user record, or domain.ErrNotFound.
	UserByID(ctx context.Context, id string) (*User, error)

	// ManagerOf returns the employee's manager, or (nil, nil) when no
	// manager is assigned. An unassigned manager is not an error.
	ManagerOf(ctx context.Context, employeeID string) (*User, error)

	// UsersWithRole returns everyone holding the named role (hr, admin,
	// finance). An unknown or empty role yields an empty slice.
	UsersWithRole(ctx context.Context, role string) ([]User, error)

	// TeamMembersOf returns the employee's team members.
	TeamMembersOf(ctx context.Context, employeeID string) ([]User, error)
}
