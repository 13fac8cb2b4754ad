// Package storage defines the interface and shared plumbing for the backends
// that persist or share fetch snapshots.
package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/fluidwatch/internal/feed"
)

// StorageEngineInterface is an interface that provides a few standardized
// methods for various storage backends
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- feed.Snapshot
}
