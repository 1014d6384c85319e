package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStructural marks a migration that depends on a missing base object.
// Structural errors are fatal and never retried.
var ErrStructural = errors.New("structural schema error")

// structuralErr wraps ErrStructural with the failing migration's identity.
func structuralErr(version, table string) error {
	return fmt.Errorf("%w: migration %s requires missing table %q", ErrStructural, version, table)
}

// isTransientErr reports whether an error looks like SQLite lock contention.
// Such errors are eligible for exactly one local retry.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
