package db

import (
	"strings"

	"github.com/itgyani/blogpulse/errors"
)

// ErrDatabaseClosed is returned when the connection was closed during shutdown
// while a dispatch was still recording its outcome.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err means the connection is closed.
// The driver returns its own unwrapped error, hence the message fallback.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
