// Package resolver turns a declarative recipient spec into a concrete,
// deduplicated address list.
package resolver

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/directory"
	"github.com/peoplehub/hr-notify/internal/domain"
)

// Dynamic recipient tags understood by Resolve.
const (
	TagManager     = "manager"
	TagHR          = "hr"
	TagAdmin       = "admin"
	TagFinance     = "finance"
	TagTeamMembers = "team_members"
)

// Resolved is the concrete recipient set. To recipients carry user IDs
// where known so the in-app writer can address them; CC entries from
// static configuration have an empty ID.
type Resolved struct {
	To []directory.User
	CC []directory.User
}

// ToAddresses returns the deliverable To addresses in order.
func (r *Resolved) ToAddresses() []string { return addresses(r.To) }

// CCAddresses returns the deliverable CC addresses in order.
func (r *Resolved) CCAddresses() []string { return addresses(r.CC) }

func addresses(users []directory.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Email)
	}
	return out
}

// Resolver resolves recipient specs against the directory service.
//
// Resolution is a pure function of (spec, resolve context, directory
// state): re-resolution on a retry with unchanged inputs yields the
// same result. Directory calls run under a bounded timeout; a stalled
// or failing directory converts to a terminal ResolutionError rather
// than hanging the caller's transaction.
type Resolver struct {
	dir      directory.Directory
	staticCC map[string][]string // module tag -> default CC addresses
	timeout  time.Duration
	logger   *zap.Logger
}

func New(dir directory.Directory, staticCC map[string][]string, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{dir: dir, staticCC: staticCC, timeout: timeout, logger: logger}
}

// Resolve expands the spec's user IDs and dynamic tags into addresses.
//
// Rules:
//   - a To user that cannot be found is a ResolutionError (terminal);
//   - a dynamic CC tag that resolves to nobody is silently omitted;
//   - the acting user is excluded from their own CC;
//   - all address lists are deduplicated, and CC never repeats a To address;
//   - an empty To set after resolution is a ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, module string, spec domain.RecipientSpec, rc domain.ResolveContext) (*Resolved, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var to []directory.User
	for _, addr := range spec.To {
		to = append(to, directory.User{Email: addr})
	}
	for _, id := range spec.ToUserIDs {
		u, err := r.dir.UserByID(ctx, id)
		if err != nil {
			return nil, &domain.ResolutionError{Reason: "lookup to recipient " + id, Err: err}
		}
		to = append(to, *u)
	}

	var cc []directory.User
	for _, addr := range spec.CCStatic {
		cc = append(cc, directory.User{Email: addr})
	}
	for _, addr := range r.staticCC[module] {
		cc = append(cc, directory.User{Email: addr})
	}

	for _, tag := range spec.CCTags {
		users, err := r.resolveTag(ctx, tag, rc)
		if err != nil {
			return nil, err
		}
		cc = append(cc, users...)
	}

	// Tag lookups come back in directory order; sort so the result is
	// stable across retries.
	sort.Slice(cc, func(i, j int) bool { return cc[i].Email < cc[j].Email })

	resolved := &Resolved{
		To: dedupe(to, nil, rc, false),
		CC: dedupe(cc, to, rc, true),
	}
	if len(resolved.To) == 0 {
		return nil, &domain.ResolutionError{Reason: "no resolvable primary recipient"}
	}
	return resolved, nil
}

func (r *Resolver) resolveTag(ctx context.Context, tag string, rc domain.ResolveContext) ([]directory.User, error) {
	switch tag {
	case TagManager:
		if rc.EmployeeID == "" {
			return nil, nil
		}
		u, err := r.dir.ManagerOf(ctx, rc.EmployeeID)
		if err != nil {
			return nil, &domain.ResolutionError{Reason: "lookup manager of " + rc.EmployeeID, Err: err}
		}
		if u == nil {
			return nil, nil // no manager assigned; omitted, not an error
		}
		return []directory.User{*u}, nil

	case TagHR, TagAdmin, TagFinance:
		users, err := r.dir.UsersWithRole(ctx, tag)
		if err != nil {
			return nil, &domain.ResolutionError{Reason: "lookup role " + tag, Err: err}
		}
		return users, nil

	case TagTeamMembers:
		if rc.EmployeeID == "" {
			return nil, nil
		}
		users, err := r.dir.TeamMembersOf(ctx, rc.EmployeeID)
		if err != nil {
			return nil, &domain.ResolutionError{Reason: "lookup team of " + rc.EmployeeID, Err: err}
		}
		return users, nil

	default:
		r.logger.Warn("unknown recipient tag omitted", zap.String("tag", tag))
		return nil, nil
	}
}

// dedupe removes duplicate addresses from users, preserving order. Any
// address already present in taken is dropped too, and when excludeActor
// is set the acting user is removed so approvers do not CC themselves.
func dedupe(users, taken []directory.User, rc domain.ResolveContext, excludeActor bool) []directory.User {
	seen := make(map[string]bool, len(taken))
	for _, u := range taken {
		seen[normalize(u.Email)] = true
	}

	var out []directory.User
	for _, u := range users {
		addr := normalize(u.Email)
		if addr == "" || seen[addr] {
			continue
		}
		if excludeActor && isActor(u, rc) {
			continue
		}
		seen[addr] = true
		out = append(out, u)
	}
	return out
}

func isActor(u directory.User, rc domain.ResolveContext) bool {
	if rc.ActorID != "" && u.ID == rc.ActorID {
		return true
	}
	return rc.ActorEmail != "" && normalize(u.Email) == normalize(rc.ActorEmail)
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
