package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes patch edits between host instances that share
// one patch store. Keys are patch names.
type DistributedLocker interface {
	// Lock blocks until the patch key is held or ctx is done. The lock
	// expires after ttl if the holder never calls the returned UnlockFunc.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
