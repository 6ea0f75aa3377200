//go:build !cgo_sqlite
// +build !cgo_sqlite

package store

// This file is compiled when building without the cgo_sqlite tag. The pure
// Go driver needs no C compiler and cross-compiles everywhere.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	"fmt"

	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

// sqliteDSN builds a driver-specific DSN. The busy timeout keeps concurrent
// write transactions queueing instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}
