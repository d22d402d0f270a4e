package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/patchbay/internal/logging"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a patch.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access to stored patches. Local access is guarded by a
// per-name mutex; an optional distributed locker extends that across
// replicas. Unused mutexes are reference counted away.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager on top of store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(name string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[name]
	if !exists {
		entry = &lockEntry{}
		m.locks[name] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[name]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, name)
	}
}

// Load retrieves a stored patch.
func (m *Manager) Load(ctx context.Context, name string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, name, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, name)
		return err
	})
	return snap, err
}

// LoadOrCreate loads a patch, or stores and returns an empty one.
func (m *Manager) LoadOrCreate(ctx context.Context, name string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, name, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			return fmt.Errorf("failed to check patch existence: %w", err)
		}

		snap = &domain.Snapshot{
			Version: domain.SnapshotVersion,
			Name:    name,
			Nodes:   []domain.NodeSnapshot{},
			Arcs:    []domain.Arc{},
		}
		if err := m.store.Save(ctx, name, snap); err != nil {
			return fmt.Errorf("failed to initialize patch: %w", err)
		}
		return nil
	})
	return snap, err
}

// Save persists a snapshot.
func (m *Manager) Save(ctx context.Context, name string, snap *domain.Snapshot) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		return m.store.Save(ctx, name, snap)
	})
}

// SaveEditor snapshots a live patch, strips session-unsafe properties and
// stores it under name.
func (m *Manager) SaveEditor(ctx context.Context, name string, ed ports.Editor) error {
	snap := ed.Snapshot(domain.SanitizeProperties)
	snap.Name = name
	return m.Save(ctx, name, snap)
}

// Restore loads name into ed. Arcs the editor rejects are reported in the
// returned error, but the rest of the patch is applied.
func (m *Manager) Restore(ctx context.Context, name string, ed ports.Editor) error {
	snap, err := m.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := ed.ApplySnapshot(snap); err != nil {
		m.logger.Warn("patch restored with errors", "patch", name, "err", err)
		return err
	}
	return nil
}

// Delete removes a stored patch.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.WithLock(ctx, name, func(ctx context.Context) error {
		return m.store.Delete(ctx, name)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock runs fn while holding the lock for name.
func (m *Manager) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	entry := m.acquire(name)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(name)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, name, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"patch", name,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
