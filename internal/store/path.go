package store

import (
	"fmt"
	"strings"
)

// Collections known to the access rules.
const (
	CollectionUsers        = "users"
	CollectionTasks        = "tasks"
	CollectionSubmissions  = "submissions"
	CollectionTransactions = "transactions"
	CollectionSettings     = "settings"
	CollectionAgents       = "agents"
)

// SplitPath parses "collection/id".
func SplitPath(path string) (collection, id string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return parts[0], parts[1], nil
}

// Join builds a record locator.
func Join(collection, id string) string {
	return collection + "/" + id
}

// UserPath is the locator of a principal's profile.
func UserPath(uid string) string {
	return Join(CollectionUsers, uid)
}
