// Package storage is the optional delivery journal: an append-only record of
// shown, closed, failed and rejected notifications.
//
// Drivers:
//   - "file": JSON Lines, one record per line
//   - "sqlite": SQLite database via modernc.org/sqlite
//
// The journal is write-only. Nothing is read back at startup; handles from a
// previous run are meaningless to a restarted daemon.
package storage
