//go:build cgo_sqlite
// +build cgo_sqlite

package store

// This file is compiled when building with CGO and the cgo_sqlite tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "cgo_sqlite" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// sqliteDSN builds a driver-specific DSN. The busy timeout keeps concurrent
// write transactions queueing instead of failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
}
