// Package store defines the contract with the external store service.
package store

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when the referenced store does not exist.
	ErrNotFound = errors.New("store not found")
	// ErrUnavailable is returned when the store service cannot be reached.
	ErrUnavailable = errors.New("store service unavailable")
)

// Snapshot is the seller identity copied onto an order at creation time.
type Snapshot struct {
	ID   string
	Name string
}

// Client provides store lookup. No local state is retained between calls.
type Client interface {
	FetchStore(ctx context.Context, storeID string) (*Snapshot, error)
}
