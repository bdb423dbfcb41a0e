package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/peoplehub/hr-notify/internal/domain"
)

// HTTPDirectory talks to the directory service over its JSON API.
// The base URL is injected from config so tests can point to a local mock.
type HTTPDirectory struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (d *HTTPDirectory) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	found, err := d.getJSON(ctx, "/users/"+url.PathEscape(id), &u)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (d *HTTPDirectory) ManagerOf(ctx context.Context, employeeID string) (*User, error) {
	var u User
	found, err := d.getJSON(ctx, "/users/"+url.PathEscape(employeeID)+"/manager", &u)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil // no manager assigned
	}
	return &u, nil
}

func (d *HTTPDirectory) UsersWithRole(ctx context.Context, role string) ([]User, error) {
	var users []User
	found, err := d.getJSON(ctx, "/roles/"+url.PathEscape(role)+"/users", &users)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return users, nil
}

func (d *HTTPDirectory) TeamMembersOf(ctx context.Context, employeeID string) ([]User, error) {
	var users []User
	found, err := d.getJSON(ctx, "/users/"+url.PathEscape(employeeID)+"/team", &users)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return users, nil
}

// getJSON performs a GET and decodes the response body into out.
// A 404 reports found=false without error; lookups treat absence as
// an ordinary outcome, not a failure.
func (d *HTTPDirectory) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("unexpected directory status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode directory response: %w", err)
	}
	return true, nil
}

var _ Directory = (*HTTPDirectory)(nil)
