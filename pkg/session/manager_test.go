package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/patchbay/pkg/adapters/memory"
	"github.com/aretw0/patchbay/pkg/adapters/redis"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/aretw0/patchbay/pkg/registry"
	"github.com/aretw0/patchbay/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates IO latency to provoke races if locking is missing.
type SlowStore struct {
	data  map[string]*domain.Snapshot
	saves int
	mu    sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, name string, snap *domain.Snapshot) error {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]*domain.Snapshot)
	}
	s.data[name] = snap.Clone()
	s.saves++
	return nil
}

func (s *SlowStore) Load(ctx context.Context, name string) (*domain.Snapshot, error) {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.data[name]; ok {
		return snap.Clone(), nil
	}
	return nil, domain.ErrSnapshotNotFound
}

func (s *SlowStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func newEditor(t *testing.T) *graph.Manager {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterProvider(nodes.NewProvider()))
	reg.Seal()
	return graph.New(reg)
}

func TestManager_Locking(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	name := "race-test"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, name, func(ctx context.Context) error {
				// Read-modify-write; updates are lost without serialization.
				snap, err := store.Load(ctx, name)
				if err != nil {
					snap = &domain.Snapshot{}
				}
				snap.Version++
				return store.Save(ctx, name, snap)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Version)
}

func TestManager_LoadOrCreate(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	name := "atomic-init"

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := manager.LoadOrCreate(ctx, name)
			assert.NoError(t, err)
			assert.NotNil(t, snap)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, name, snap.Name)
	assert.Equal(t, domain.SnapshotVersion, snap.Version)
	assert.Equal(t, 1, store.saves, "only one caller should create the patch")
}

func TestManager_SaveEditorAndRestore(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(memory.NewStore())

	src := newEditor(t)
	in, err := src.AddNode(domain.NodeDescription{Identifier: domain.TypeAudioInput}, domain.RootID)
	require.NoError(t, err)
	out, err := src.AddNode(domain.NodeDescription{Identifier: domain.TypeAudioOutput}, domain.RootID)
	require.NoError(t, err)
	_, err = src.Connect(in.ID, 0, out.ID, 0)
	require.NoError(t, err)
	require.NoError(t, src.SetProperty(out.ID, "_handle", "live"))
	require.NoError(t, src.SetProperty(out.ID, "gain", 0.5))

	require.NoError(t, manager.SaveEditor(ctx, "desk", src))

	stored, err := manager.Load(ctx, "desk")
	require.NoError(t, err)
	assert.Equal(t, "desk", stored.Name)
	require.Len(t, stored.Nodes, 2)
	assert.NotContains(t, stored.Nodes[1].Properties.Custom, "_handle")
	assert.Equal(t, 0.5, stored.Nodes[1].Properties.Custom["gain"])

	dst := newEditor(t)
	require.NoError(t, manager.Restore(ctx, "desk", dst))

	arcs, err := dst.Arcs(domain.RootID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Arc{domain.NewArc(in.ID, 0, out.ID, 0)}, arcs)
}

func TestManager_RestoreMissing(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	err := manager.Restore(context.Background(), "nope", newEditor(t))
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestManager_DistributedLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := redis.NewFromClient(client)
	manager := session.NewManager(store, session.WithLocker(redis.NewLocker(client, "test:")))
	ctx := context.Background()

	err = manager.WithLock(ctx, "shared", func(ctx context.Context) error {
		assert.True(t, mr.Exists("test:lock:shared"), "distributed lock should be held inside fn")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:shared"))

	snap, err := manager.LoadOrCreate(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", snap.Name)

	names, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, names)
}
