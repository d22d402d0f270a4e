package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(name string) *domain.Snapshot {
	return &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Name:    name,
		Nodes: []domain.NodeSnapshot{
			{
				ID:         1,
				Identifier: domain.TypeAudioInput,
				Format:     domain.FormatInternal,
				Ports:      domain.Layout().AudioOuts(2).Build(),
				Properties: domain.Properties{Name: "in", UUID: "2f1c7c1e-6f0a-4b65-9f8a-3d2c8b0e9a11"},
			},
			{
				ID:         2,
				Identifier: domain.TypeGraph,
				Format:     domain.FormatGraph,
				Ports:      domain.Layout().AudioIns(2).Build(),
				Properties: domain.Properties{Name: "rack", Bypass: true, Custom: map[string]any{"preset": "warm"}},
				Graph: &domain.Snapshot{
					Nodes: []domain.NodeSnapshot{{ID: 3, Identifier: domain.TypeAudioInput, Format: domain.FormatInternal}},
					Arcs:  []domain.Arc{},
				},
			},
		},
		Arcs: []domain.Arc{domain.NewArc(1, 0, 2, 0), domain.NewArc(1, 1, 2, 1)},
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	name := "contract-test-patch-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(name)

		err := store.Save(ctx, name, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, name, loaded.Name)
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, domain.NodeID(2), loaded.Nodes[1].ID)
		assert.Equal(t, domain.TypeGraph, loaded.Nodes[1].Identifier)
		assert.True(t, loaded.Nodes[1].Properties.Bypass)
		assert.Equal(t, "warm", loaded.Nodes[1].Properties.Custom["preset"])
		assert.Equal(t, snap.Nodes[0].Ports, loaded.Nodes[0].Ports)
		require.NotNil(t, loaded.Nodes[1].Graph)
		assert.Len(t, loaded.Nodes[1].Graph.Nodes, 1)
		assert.ElementsMatch(t, snap.Arcs, loaded.Arcs)
	})

	t.Run("Stored Copy Is Private", func(t *testing.T) {
		snap := contractSnapshot(name)
		require.NoError(t, store.Save(ctx, name, snap))

		snap.Nodes[0].Properties.Name = "mutated"
		snap.Arcs = nil

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "in", loaded.Nodes[0].Properties.Name)
		assert.Len(t, loaded.Arcs, 2)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+name)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, name, contractSnapshot(name)))

		err := store.Delete(ctx, name)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, name)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := name + "-1"
		id2 := name + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1))
		_ = store.Save(ctx, id2, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, id1)
		assert.Contains(t, names, id2)
	})
}
