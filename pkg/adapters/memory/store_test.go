package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/patchbay/pkg/adapters/memory"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}

func TestMemoryStore_ListSorted(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, store.Save(ctx, name, &domain.Snapshot{Version: domain.SnapshotVersion}))
	}

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
