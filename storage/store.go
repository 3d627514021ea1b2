// Package storage holds the hub's read-only diagnostic snapshot: a small
// JSON document holding the room roster and session count, published for the
// status HTTP surface. It is not chat state of record — the hub's own
// tables are authoritative and are never persisted here.
package storage

import "context"

type Store interface {
	// Set writes value at path in the snapshot document.
	Set(ctx context.Context, path string, value interface{}) error

	// Get reads the raw JSON at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Snapshot returns the entire document.
	Snapshot() ([]byte, error)

	Close() error
}
