package ports

import (
	"context"

	"github.com/aretw0/patchbay/pkg/domain"
)

// SnapshotStore persists patch snapshots by name.
// Implementations must store private copies: callers may keep mutating the
// snapshot they passed to Save or received from Load.
type SnapshotStore interface {
	// Save persists the snapshot under name, replacing any previous one.
	Save(ctx context.Context, name string, snap *domain.Snapshot) error

	// Load retrieves a snapshot.
	// Returns domain.ErrSnapshotNotFound if the name does not exist.
	Load(ctx context.Context, name string) (*domain.Snapshot, error)

	// Delete removes a snapshot. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all stored names.
	List(ctx context.Context) ([]string, error)
}
