// Package database provides SQLite connectivity for the whereabouts state file.
//
// This package manages:
//   - Opening the single-file database (creating its directory)
//   - Busy timeout configuration
//   - Connection lifecycle and health checks
//   - Classification of SQLite errors callers recover from
//
// Schema is not managed here. The state store creates its own schema on
// demand when it sees IsMissingTable.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "state.sqlite", BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
