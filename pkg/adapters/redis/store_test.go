package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/patchbay/pkg/adapters/redis"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/golang/snappy"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunSnapshotStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	name := "patch-ttl"
	snap := &domain.Snapshot{Version: domain.SnapshotVersion, Name: name}

	require.NoError(t, store.Save(ctx, name, snap))

	names, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, names, name)

	// Key expiry in miniredis is driven by FastForward.
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, name)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	// Index pruning compares against the wall clock.
	time.Sleep(1200 * time.Millisecond)

	names, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, names)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()
	name := "my-patch"

	require.NoError(t, store.Save(ctx, name, &domain.Snapshot{Version: domain.SnapshotVersion}))

	assert.True(t, mr.Exists("custom:app:data:my-patch"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, list, name)
}

func TestRedisStore_PatchNamedIndex(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "index", &domain.Snapshot{Version: domain.SnapshotVersion, Name: "index"}))

	loaded, err := store.Load(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, "index", loaded.Name)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"index"}, names)
}

func TestRedisStore_ValuesAreCompressed(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "c", &domain.Snapshot{Version: domain.SnapshotVersion, Name: "c"}))

	raw, err := mr.Get(redis.DefaultPrefix + "data:c")
	require.NoError(t, err)
	decoded, err := snappy.Decode(nil, []byte(raw))
	require.NoError(t, err)
	assert.Contains(t, string(decoded), `"name":"c"`)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	require.NoError(t, mr.Set(redis.DefaultPrefix+"data:bad", "not snappy"))

	_, err := store.Load(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSnapshotNotFound)
}
