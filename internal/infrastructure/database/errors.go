package database

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrNotOpen is returned by HealthCheck on a nil or closed-over DB.
var ErrNotOpen = errors.New("database: not open")

// IsMissingTable reports whether err is SQLite complaining that a table or
// view referenced by the statement does not exist.
func IsMissingTable(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrError && strings.Contains(sqliteErr.Error(), "no such table")
}
