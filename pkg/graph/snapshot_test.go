package graph_test

import (
	"testing"

	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPatch creates a small patch with a nested graph, custom properties
// and one missing type.
func buildPatch(t *testing.T, m *graph.Manager) {
	t.Helper()
	in := add(t, m, domain.TypeAudioInput, domain.RootID)
	router, err := m.AddNode(domain.NodeDescription{
		Identifier: domain.TypeAudioRouter,
		Properties: domain.Properties{
			Name:     "matrix",
			Position: domain.Position{X: 10, Y: 20},
			Custom:   map[string]any{"inputs": 2, "outputs": 2},
		},
	}, domain.RootID)
	require.NoError(t, err)
	g := add(t, m, domain.TypeGraph, domain.RootID)
	innerIn := add(t, m, domain.TypeAudioInput, g)
	innerOut := add(t, m, domain.TypeAudioOutput, g)
	out := add(t, m, domain.TypeAudioOutput, domain.RootID)
	ghost, err := m.AddNode(domain.NodeDescription{
		Identifier: "vst3:gone",
		Ports:      domain.Layout().AudioIns(1).Build(),
	}, domain.RootID)
	require.Error(t, err)

	for _, pair := range [][2]domain.NodeID{{in, router.ID}, {router.ID, g}, {innerIn, innerOut}} {
		_, err := m.ConnectStereo(pair[0], pair[1])
		require.NoError(t, err)
	}
	_, err = m.Connect(g, 2, out, 0)
	require.NoError(t, err)
	_, err = m.Connect(g, 3, ghost.ID, 0)
	require.NoError(t, err)
	require.NoError(t, m.SetBypass(router.ID, true))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	m := newManager(t, graph.WithName("live"))
	buildPatch(t, m)
	snap := m.Snapshot()

	assert.Equal(t, domain.SnapshotVersion, snap.Version)
	assert.Equal(t, "live", snap.Name)
	assert.Equal(t, 7, snap.CountNodes())
	assert.Len(t, snap.Arcs, 6)

	restored := newManager(t)
	require.NoError(t, restored.ApplySnapshot(snap.Clone()))
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, "live", restored.Name())

	// Fresh ids continue after the restored ones.
	next := add(t, restored, typeSink, domain.RootID)
	assert.Equal(t, domain.NodeID(8), next)
}

func TestSnapshot_MissingTypesKeepArcs(t *testing.T) {
	snap := &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Nodes: []domain.NodeSnapshot{
			{ID: 3, Identifier: typeSource, Ports: domain.Layout().AudioOuts(1).Build()},
			{ID: 9, Identifier: "unknown.type", Ports: domain.Layout().AudioIns(2).Build()},
		},
		Arcs: []domain.Arc{domain.NewArc(3, 0, 9, 1)},
	}
	m := newManager(t)
	require.NoError(t, m.ApplySnapshot(snap))

	n, err := m.Node(9)
	require.NoError(t, err)
	assert.True(t, n.Properties.Missing)
	arcs, err := m.Arcs(domain.RootID)
	require.NoError(t, err)
	assert.Equal(t, snap.Arcs, arcs)

	clean := m.Snapshot(domain.SanitizeProperties)
	assert.False(t, clean.Nodes[1].Properties.Missing)
	assert.True(t, m.Snapshot().Nodes[1].Properties.Missing, "filters work on a copy")
}

func TestSnapshot_Apply(t *testing.T) {
	t.Run("Rejected Arcs Are Reported", func(t *testing.T) {
		snap := &domain.Snapshot{
			Nodes: []domain.NodeSnapshot{
				{ID: 1, Identifier: typeSource},
				{ID: 2, Identifier: typeSink},
			},
			Arcs: []domain.Arc{domain.NewArc(1, 0, 2, 0), domain.NewArc(2, 0, 1, 0)},
		}
		m := newManager(t)
		err := m.ApplySnapshot(snap)
		assert.ErrorIs(t, err, domain.ErrWouldCycle)
		arcs, _ := m.Arcs(domain.RootID)
		assert.Len(t, arcs, 1)
	})

	t.Run("Invalid Ids Change Nothing", func(t *testing.T) {
		m := newManager(t)
		existing := add(t, m, typeSource, domain.RootID)
		err := m.ApplySnapshot(&domain.Snapshot{Nodes: []domain.NodeSnapshot{
			{ID: 4, Identifier: typeSink},
			{ID: 5, Identifier: domain.TypeGraph, Graph: &domain.Snapshot{
				Nodes: []domain.NodeSnapshot{{ID: 4, Identifier: typeSink}},
			}},
		}})
		assert.ErrorIs(t, err, graph.ErrInvalidSnapshot)
		_, err = m.Node(existing)
		assert.NoError(t, err)

		assert.ErrorIs(t, m.ApplySnapshot(&domain.Snapshot{Version: domain.SnapshotVersion + 1}), graph.ErrInvalidSnapshot)
		assert.ErrorIs(t, m.ApplySnapshot(nil), graph.ErrInvalidSnapshot)
	})

	t.Run("Replaces The Running Patch", func(t *testing.T) {
		e := runtime.NewEngine(runtime.WithFormat(48000, 32))
		m := newManager(t, graph.WithEngine(e))
		old := add(t, m, typeSource, domain.RootID)
		require.NoError(t, m.Commit())
		oldUnit, err := m.Unit(old)
		require.NoError(t, err)

		require.NoError(t, m.ApplySnapshot(&domain.Snapshot{Nodes: []domain.NodeSnapshot{
			{ID: 10, Identifier: typeSink},
		}}))
		assert.Equal(t, []domain.NodeID{10}, e.Active().Order())
		assert.True(t, oldUnit.(*nodes.Missing).Released(), "detached engine disposes right away")
		assert.False(t, m.Dirty())
	})
}
