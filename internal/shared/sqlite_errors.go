// Package shared provides small helpers used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// IsSQLiteConflictError reports whether the error is a SQLite concurrency
// error (SQLITE_BUSY or "database is locked"). The modernc driver exposes
// these only through the error text, so callers that want retry logic have
// to match on it.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
