// Package store provides durable persistence for project context documents.
//
// Two interchangeable backends implement the Store interface:
//
//   - SQLiteStore: one projects table keyed by unique name, nested
//     sequences and maps as JSON text columns, every multi-field mutation
//     wrapped in a transaction. Connection checkout is bounded: callers
//     block up to a configured timeout and then fail with ErrPoolExhausted.
//
//   - FileStore: one JSON document per project under a root directory.
//     Writes for a project are serialized by a per-project exclusive lock
//     and made durable with write-to-temp-then-rename, so readers never
//     observe a torn document.
//
// The backend is selected at startup via configuration. Mutation semantics
// (feature/step dedup, issue upsert, one-way resolution, monotonic
// updated_at) live in apply.go and are shared by both backends.
//
// # Build Tags
//
// The SQLite driver follows the build configuration:
//
//   - Default / CGO_ENABLED=0: modernc.org/sqlite (pure Go)
//   - -tags cgo_sqlite with CGO: github.com/mattn/go-sqlite3
package store
