package store

import (
	"context"
	"strings"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

// ownerEditableUserFields may be changed by a user on their own profile.
// Everything else (role, level, walletBalance, attempt counters) is written
// by trusted server code or an admin.
var ownerEditableUserFields = map[string]bool{
	"name":        true,
	"phoneNumber": true,
	"country":     true,
	"state":       true,
	"avatarUrl":   true,
}

// Rules are the access rules evaluated for every non-system operation.
type Rules struct {
	adminEmails map[string]bool
}

// NewRules builds the rule set. Principals whose email is in adminEmails may
// provision their own profile with the admin role.
func NewRules(adminEmails []string) *Rules {
	r := &Rules{adminEmails: make(map[string]bool)}
	for _, e := range adminEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			r.adminEmails[e] = true
		}
	}
	return r
}

// IsAdminEmail reports whether email is allow-listed for the admin role.
func (r *Rules) IsAdminEmail(email string) bool {
	return r.adminEmails[strings.ToLower(strings.TrimSpace(email))]
}

// Check authorizes a single-record operation. existing is the stored record
// (nil when absent), incoming the attempted write (nil for reads and deletes).
// The returned error is a *models.PermissionError.
func (r *Rules) Check(ctx context.Context, op models.Operation, path string, existing, incoming Record) error {
	if IsSystem(ctx) {
		return nil
	}
	if r.allowed(ctx, op, path, existing, incoming) {
		return nil
	}
	return models.NewPermissionError(path, op, payload(incoming))
}

// CheckQuery authorizes a read-many over q.
func (r *Rules) CheckQuery(ctx context.Context, q Query) error {
	if IsSystem(ctx) {
		return nil
	}
	caller, ok := CallerFrom(ctx)
	allowed := false
	if ok {
		switch q.Collection {
		case CollectionTasks, CollectionSettings:
			allowed = true
		case CollectionSubmissions, CollectionTransactions:
			if caller.IsAdmin() {
				allowed = true
			} else if v, found := q.EqualityValue("userId"); found {
				allowed = v == caller.UID
			}
		case CollectionUsers, CollectionAgents:
			allowed = caller.IsAdmin()
		}
	}
	if allowed {
		return nil
	}
	return models.NewPermissionError(q.Collection, models.OpReadMany, nil)
}

func (r *Rules) allowed(ctx context.Context, op models.Operation, path string, existing, incoming Record) bool {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return false
	}
	collection, id, err := SplitPath(path)
	if err != nil {
		return false
	}
	if caller.IsAdmin() {
		return true
	}

	switch collection {
	case CollectionUsers:
		if id != caller.UID {
			return false
		}
		switch op {
		case models.OpReadOne:
			return true
		case models.OpCreate:
			return r.allowedProvision(caller, incoming)
		case models.OpUpdate:
			for field := range incoming {
				if !ownerEditableUserFields[field] {
					return false
				}
			}
			return true
		}
		return false

	case CollectionTasks, CollectionSettings:
		return op == models.OpReadOne

	case CollectionSubmissions:
		switch op {
		case models.OpReadOne:
			return existing != nil && existing["userId"] == caller.UID
		case models.OpCreate:
			return existing == nil && incoming["userId"] == caller.UID &&
				(incoming["status"] == nil || incoming["status"] == models.SubmissionPending)
		}
		return false

	case CollectionTransactions:
		return op == models.OpReadOne && existing != nil && existing["userId"] == caller.UID
	}
	return false
}

func (r *Rules) allowedProvision(caller Caller, incoming Record) bool {
	if incoming["id"] != nil && incoming["id"] != caller.UID {
		return false
	}
	switch incoming["role"] {
	case models.RoleUser:
	case models.RoleAdmin:
		if !r.IsAdminEmail(caller.Email) {
			return false
		}
	default:
		return false
	}
	// A fresh profile starts at the floor; nobody grants themselves a balance.
	if bal, ok := toFloat(incoming["walletBalance"]); !ok || bal != 0 {
		return false
	}
	if lvl, ok := toFloat(incoming["level"]); !ok || lvl != 1 {
		return false
	}
	return true
}

func payload(incoming Record) map[string]any {
	if incoming == nil {
		return nil
	}
	return map[string]any(incoming.Clone())
}
