// Package store defines the opaque key-value persistence contract for agent
// processes and awaitables. Callers supply serialization; stores move bytes.
// Implementations must never expose partial writes: a Get returns either the
// bytes of a completed Put or ErrNotFound.
package store

import (
	"context"
	"errors"
)

// Kind namespaces stored records.
type Kind string

const (
	// KindProcess stores agent process snapshots by process id.
	KindProcess Kind = "process"
	// KindAwaitable stores persistent awaitables by awaitable id.
	KindAwaitable Kind = "awaitable"
)

// ErrNotFound reports that no record exists under the requested key.
var ErrNotFound = errors.New("store: not found")

// Store is the opaque persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put writes data under (kind, id), replacing any previous value
	// atomically.
	Put(ctx context.Context, kind Kind, id string, data []byte) error

	// Get returns the bytes stored under (kind, id) or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) ([]byte, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind Kind, id string) error

	// List returns the ids stored under kind, in unspecified order.
	List(ctx context.Context, kind Kind) ([]string, error)
}
